// Package annotate draws detections onto frames and encodes snapshots.
package annotate

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/nvr-ai/go-intrusion/models"
	"github.com/nvr-ai/go-intrusion/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/image/font/gofont/goregular"
)

// Colors used for each category overlay.
var (
	HumanColor  = color.RGBA{R: 239, G: 68, B: 68, A: 255}
	AnimalColor = color.RGBA{R: 245, G: 158, B: 11, A: 255}
	ObjectColor = color.RGBA{R: 34, G: 197, B: 94, A: 255}
)

var font *truetype.Font

// init parses the embedded label font.
func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// ColorFor returns the overlay color of a category.
func ColorFor(c models.Category) color.RGBA {
	switch c {
	case models.CategoryHuman:
		return HumanColor
	case models.CategoryAnimal:
		return AnimalColor
	default:
		return ObjectColor
	}
}

// Caption is the text drawn above a detection box, e.g. "person 87% (Human)".
func Caption(d postprocess.Detection) string {
	return fmt.Sprintf("%s %.0f%% (%s)", d.ClassName, d.Confidence*100, d.Label)
}

// Draw returns a copy of img with every detection outlined and captioned.
//
// Arguments:
//   - img: The source frame. It is not modified.
//   - detections: Boxes in img pixel coordinates.
//
// Returns:
//   - image.Image: The annotated frame.
func Draw(img image.Image, detections []postprocess.Detection) image.Image {
	dc := gg.NewContextForImage(img)
	offset := img.Bounds().Min

	lineWidth := float64(max(2, img.Bounds().Dx()/320))
	fontSize := float64(max(12, img.Bounds().Dx()/60))
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: fontSize}))

	for _, d := range detections {
		c := ColorFor(d.Label)
		x1 := float64(d.Box.X1) - float64(offset.X)
		y1 := float64(d.Box.Y1) - float64(offset.Y)
		w := float64(d.Box.Width())
		h := float64(d.Box.Height())

		dc.SetColor(c)
		dc.SetLineWidth(lineWidth)
		dc.DrawRectangle(x1, y1, w, h)
		dc.Stroke()

		caption := Caption(d)
		tw, th := dc.MeasureString(caption)
		ty := y1 - th - 4
		if ty < 0 {
			ty = y1
		}
		dc.DrawRectangle(x1, ty, tw+8, th+4)
		dc.Fill()
		dc.SetColor(color.White)
		dc.DrawString(caption, x1+4, ty+th)
	}

	return dc.Image()
}

// EncodeJPEG encodes img as JPEG.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.Wrap(err, "encoding jpeg")
	}
	return buf.Bytes(), nil
}

// Snapshot encodes img as a base64 JPEG data URL suitable for a log record.
func Snapshot(img image.Image, quality int) (string, error) {
	data, err := EncodeJPEG(img, quality)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// WriteFile saves img as PNG or JPEG depending on the path extension. An
// unsupported extension is rejected before anything is created on disk.
func WriteFile(path string, img image.Image) (err error) {
	var encode func(f *os.File) error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		encode = func(f *os.File) error { return png.Encode(f, img) }
	case ".jpg", ".jpeg":
		encode = func(f *os.File) error { return jpeg.Encode(f, img, &jpeg.Options{Quality: 90}) }
	default:
		return errors.Errorf("unsupported output format %q", filepath.Ext(path))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating output directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating output file")
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))

	return errors.Wrapf(encode(f), "writing %s", path)
}
