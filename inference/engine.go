// Package inference - Detector and numerical engine contracts.
package inference

import (
	"context"
	"image"

	"github.com/nvr-ai/go-intrusion/models/postprocess"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

var (
	// ErrModelNotLoaded is returned when inference is requested before a model is loaded.
	ErrModelNotLoaded = errors.New("model not loaded")
	// ErrNoDetector is returned when neither the primary nor the fallback detector could load.
	ErrNoDetector = errors.New("no detector available")
	// ErrInvalidFrame is returned for frames that cannot be preprocessed.
	ErrInvalidFrame = errors.New("invalid frame")
)

// Forwarder is the opaque numerical engine behind a detector: it runs one
// preprocessed (1, 3, S, S) tensor through the model and returns the flat raw output.
type Forwarder interface {
	Forward(ctx context.Context, input *tensor.Dense) ([]float32, error)
	Close() error
}

// Detector turns frames into post-processed detections.
//
// A Detector is constructed unloaded. Load acquires the model, Detect may only be
// called once IsLoaded reports true (it returns ErrModelNotLoaded otherwise), and
// Close releases the model.
type Detector interface {
	Name() string
	Load(ctx context.Context) error
	IsLoaded() bool
	Detect(
		ctx context.Context,
		img image.Image,
		confThreshold, iouThreshold float32,
	) ([]postprocess.Detection, error)
	Close() error
}
