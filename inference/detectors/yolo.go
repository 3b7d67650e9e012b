// Package detectors - Detector implementations.
package detectors

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/nvr-ai/go-intrusion/inference"
	"github.com/nvr-ai/go-intrusion/inference/providers"
	"github.com/nvr-ai/go-intrusion/inference/providers/opencv"
	"github.com/nvr-ai/go-intrusion/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Loader opens the numerical engine of a detector.
type Loader func(ctx context.Context) (inference.Forwarder, error)

// YOLO is the primary detector: a YOLOv8-style model producing a field-major
// (4+K) x N raw output.
type YOLO struct {
	mu        sync.RWMutex
	name      string
	loader    Loader
	decode    postprocess.DecodeConfig
	forwarder inference.Forwarder
	logger    *zap.SugaredLogger
}

var _ inference.Detector = (*YOLO)(nil)

// NewYOLO creates an unloaded YOLO detector for the configured engine.
//
// Arguments:
//   - cfg: The detector configuration.
//   - logger: The logger. A nil logger discards output.
//
// Returns:
//   - *YOLO: The unloaded detector.
func NewYOLO(cfg Config, logger *zap.SugaredLogger) *YOLO {
	return NewYOLOWithLoader("yolo", cfg.DecodeConfig(), EngineLoader(cfg), logger)
}

// NewYOLOWithLoader creates an unloaded YOLO detector backed by an arbitrary engine.
func NewYOLOWithLoader(
	name string,
	decode postprocess.DecodeConfig,
	loader Loader,
	logger *zap.SugaredLogger,
) *YOLO {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &YOLO{
		name:   name,
		loader: loader,
		decode: decode,
		logger: logger.Named(name),
	}
}

// EngineLoader returns the Loader for the engine selected in cfg.
func EngineLoader(cfg Config) Loader {
	return func(ctx context.Context) (inference.Forwarder, error) {
		if err := cfg.Validate(); err != nil {
			return nil, errors.Wrap(err, "invalid detector config")
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cfg.Engine == inference.EngineOpenCV {
			net, err := opencv.NewNet(cfg.ModelPath, cfg.OpenCV)
			if err != nil {
				return nil, err
			}
			return net, nil
		}
		session, err := providers.NewSession(cfg.ModelPath, cfg.Session)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

// Name returns the detector name.
func (d *YOLO) Name() string {
	return d.name
}

// Load opens the engine. Loading an already loaded detector is a no-op.
func (d *YOLO) Load(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.forwarder != nil {
		return nil
	}

	start := time.Now()
	forwarder, err := d.loader(ctx)
	if err != nil {
		return errors.Wrapf(err, "loading %s", d.name)
	}
	d.forwarder = forwarder
	d.logger.Infow("model loaded", "duration", time.Since(start))
	return nil
}

// IsLoaded reports whether Detect can be called.
func (d *YOLO) IsLoaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.forwarder != nil
}

// Detect runs the full pipeline on one frame: preprocess, forward, decode and NMS.
//
// Arguments:
//   - ctx: Cancels the request before the engine runs.
//   - img: The frame.
//   - confThreshold: The minimum class score to keep a candidate.
//   - iouThreshold: The overlap at or above which lower-scoring boxes are suppressed.
//
// Returns:
//   - []postprocess.Detection: The detections in descending confidence order.
//   - error: inference.ErrModelNotLoaded before Load, or any stage error.
func (d *YOLO) Detect(
	ctx context.Context,
	img image.Image,
	confThreshold, iouThreshold float32,
) ([]postprocess.Detection, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.forwarder == nil {
		return nil, inference.ErrModelNotLoaded
	}

	input, err := inference.Preprocess(img, d.decode.InputSize)
	if err != nil {
		return nil, err
	}

	output, err := d.forwarder.Forward(ctx, input.Tensor)
	if err != nil {
		return nil, errors.Wrap(err, "forward")
	}

	detections, err := postprocess.Decode(
		output,
		d.decode,
		input.OriginalWidth,
		input.OriginalHeight,
		confThreshold,
	)
	if err != nil {
		return nil, err
	}

	return postprocess.ApplyNMS(detections, &postprocess.NMSConfig{IoUThreshold: iouThreshold}), nil
}

// Close releases the engine. The detector returns to the unloaded state.
func (d *YOLO) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.forwarder == nil {
		return nil
	}
	err := d.forwarder.Close()
	d.forwarder = nil
	return err
}
