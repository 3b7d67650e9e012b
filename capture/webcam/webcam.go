// Package webcam - Camera frame source backed by OpenCV.
package webcam

import (
	"context"
	"image"
	"sync"

	"github.com/nvr-ai/go-intrusion/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Config selects and sizes the capture device.
type Config struct {
	// Device is a device index ("0") or a stream URL / file path.
	Device string `json:"device" yaml:"device"`
	// Width requests a capture width. Zero keeps the device default.
	Width int `json:"width"  yaml:"width"`
	// Height requests a capture height. Zero keeps the device default.
	Height int `json:"height" yaml:"height"`
	// Resolution names a preset such as "720p". It overrides Width and Height.
	Resolution string `json:"resolution" yaml:"resolution"`
}

// Size returns the requested capture size.
func (c Config) Size() (width, height int, err error) {
	if c.Resolution == "" {
		return c.Width, c.Height, nil
	}
	res, err := images.ParseResolution(c.Resolution)
	if err != nil {
		return 0, 0, err
	}
	return res.Width, res.Height, nil
}

// Source reads frames from a camera with gocv.VideoCapture.
type Source struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
	device  string
}

// Open opens the capture device.
//
// Arguments:
//   - cfg: The device configuration.
//
// Returns:
//   - *Source: The open source.
//   - error: An error if the device cannot be opened.
func Open(cfg Config) (*Source, error) {
	width, height, err := cfg.Size()
	if err != nil {
		return nil, err
	}
	capture, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, errors.Wrapf(err, "opening capture device %q", cfg.Device)
	}
	if width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(width))
	}
	if height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}

	return &Source{
		capture: capture,
		mat:     gocv.NewMat(),
		device:  cfg.Device,
	}, nil
}

// Next grabs and converts the next frame. Empty reads are retried until ctx ends.
func (s *Source) Next(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil, errors.New("capture device closed")
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ok := s.capture.Read(&s.mat); !ok {
			return nil, errors.Errorf("cannot read device %s", s.device)
		}
		if s.mat.Empty() {
			continue
		}

		img, err := s.mat.ToImage()
		if err != nil {
			return nil, errors.Wrap(err, "converting frame")
		}
		return img, nil
	}
}

// Close releases the device.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil
	}
	err := s.capture.Close()
	if matErr := s.mat.Close(); err == nil {
		err = matErr
	}
	s.capture = nil
	return errors.Wrap(err, "closing capture device")
}
