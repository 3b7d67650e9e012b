package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// DefaultInputSize is the square input side of the default YOLOv8 export.
const DefaultInputSize = 640

// Preprocessed is a frame prepared for the numerical engine.
type Preprocessed struct {
	// Tensor is the (1, 3, S, S) float32 input, channel-major RGB in [0, 1].
	Tensor *tensor.Dense
	// OriginalWidth is the width of the source frame.
	OriginalWidth int
	// OriginalHeight is the height of the source frame.
	OriginalHeight int
}

// Preprocess prepares a frame for the model.
//
// The frame is stretched to size x size without preserving the aspect ratio (no
// letterboxing), so non-square frames are geometrically distorted before
// inference. Every 8-bit channel value is divided by 255 and written channel-major:
// all red values, then all green values, then all blue values, each in row-major order.
// A new tensor is allocated on every call.
//
// Arguments:
//   - img: The frame to prepare.
//   - size: The square model input side (S).
//
// Returns:
//   - *Preprocessed: The tensor and the original frame dimensions.
//   - error: ErrInvalidFrame if the frame is empty, or an error if size is not positive.
func Preprocess(img image.Image, size int) (*Preprocessed, error) {
	if size <= 0 {
		return nil, errors.Errorf("input size must be positive, got %d", size)
	}
	if img == nil {
		return nil, errors.Wrap(ErrInvalidFrame, "nil image")
	}
	bounds := img.Bounds()
	if bounds.Dx() < 1 || bounds.Dy() < 1 {
		return nil, errors.Wrapf(ErrInvalidFrame, "frame is %dx%d", bounds.Dx(), bounds.Dy())
	}

	resized := img
	if bounds.Dx() != size || bounds.Dy() != size {
		resized = resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	}
	origin := resized.Bounds().Min

	channelSize := size * size
	data := make([]float32, 3*channelSize)
	red := data[0:channelSize]
	green := data[channelSize : channelSize*2]
	blue := data[channelSize*2 : channelSize*3]

	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(origin.X+x, origin.Y+y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}

	return &Preprocessed{
		Tensor:         tensor.New(tensor.WithShape(1, 3, size, size), tensor.WithBacking(data)),
		OriginalWidth:  bounds.Dx(),
		OriginalHeight: bounds.Dy(),
	}, nil
}

// TensorData returns the float32 backing slice of a preprocessed tensor.
func TensorData(t *tensor.Dense) ([]float32, error) {
	if t == nil {
		return nil, errors.New("nil tensor")
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("expected float32 tensor, got %T", t.Data())
	}
	return data, nil
}
