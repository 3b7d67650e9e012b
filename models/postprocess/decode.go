package postprocess

import (
	"github.com/nvr-ai/go-intrusion/images"
	"github.com/nvr-ai/go-intrusion/models"
	"github.com/pkg/errors"
)

// ErrMalformedOutput is returned when a raw model output does not have the
// expected number of values.
var ErrMalformedOutput = errors.New("malformed model output")

// DecodeConfig describes the layout of a YOLO-style raw output tensor.
type DecodeConfig struct {
	// InputSize is the square model input side (S) that box coordinates refer to.
	InputSize int
	// NumCandidates is the number of candidate boxes (N).
	NumCandidates int
	// Classes is the vocabulary the class scores are indexed against (K entries).
	Classes *models.OutputClassSet
}

// DefaultDecodeConfig is the layout of a 640x640 YOLOv8 export: (1, 84, 8400).
func DefaultDecodeConfig() DecodeConfig {
	return DecodeConfig{
		InputSize:     640,
		NumCandidates: 8400,
		Classes:       models.YOLOClasses,
	}
}

// Fields returns the number of values per candidate (4 box fields plus one score per class).
func (c DecodeConfig) Fields() int {
	return 4 + c.Classes.Len()
}

// OutputLen returns the exact length a raw output buffer must have.
func (c DecodeConfig) OutputLen() int {
	return c.Fields() * c.NumCandidates
}

// Decode turns a raw field-major output buffer into detections in original-image pixels.
//
// The value for candidate i and field f lives at output[f*N+i]. Fields 0-3 are the
// box center and size (cx, cy, w, h) in model-input pixels and fields 4.. are the
// per-class scores. For every candidate the highest class score is selected (the
// lowest index wins ties), candidates scoring below confThreshold are discarded and
// the box is rescaled from the SxS input space to the WxH source frame.
//
// Arguments:
//   - output: The raw model output.
//   - cfg: The output layout.
//   - originalWidth: The width of the source frame.
//   - originalHeight: The height of the source frame.
//   - confThreshold: The minimum class score to keep a candidate.
//
// Returns:
//   - []Detection: The surviving detections in candidate order; empty (never nil) when none pass.
//   - error: ErrMalformedOutput when the buffer length does not match the layout.
func Decode(
	output []float32,
	cfg DecodeConfig,
	originalWidth, originalHeight int,
	confThreshold float32,
) ([]Detection, error) {
	if cfg.InputSize <= 0 || cfg.NumCandidates <= 0 || cfg.Classes == nil {
		return nil, errors.Errorf("invalid decode config: %+v", cfg)
	}
	if len(output) != cfg.OutputLen() {
		return nil, errors.Wrapf(
			ErrMalformedOutput,
			"expected %d values (%d fields x %d candidates), got %d",
			cfg.OutputLen(), cfg.Fields(), cfg.NumCandidates, len(output),
		)
	}

	n := cfg.NumCandidates
	numClasses := cfg.Classes.Len()
	scaleX := float32(originalWidth) / float32(cfg.InputSize)
	scaleY := float32(originalHeight) / float32(cfg.InputSize)

	detections := make([]Detection, 0)
	for i := 0; i < n; i++ {
		var maxScore float32
		maxClassID := 0
		for c := 0; c < numClasses; c++ {
			score := output[(4+c)*n+i]
			if score > maxScore {
				maxScore = score
				maxClassID = c
			}
		}

		if maxScore < confThreshold {
			continue
		}

		cx := output[i] * scaleX
		cy := output[n+i] * scaleY
		w := output[2*n+i] * scaleX
		h := output[3*n+i] * scaleY

		detections = append(detections, NewDetection(
			cfg.Classes.Classes[maxClassID].Name,
			maxClassID,
			maxScore,
			images.RectFromCenter(cx, cy, w, h),
		))
	}

	return detections, nil
}
