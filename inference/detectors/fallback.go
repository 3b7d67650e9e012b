package detectors

import (
	"context"
	"image"
	"sync"

	"github.com/nvr-ai/go-intrusion/inference"
	"github.com/nvr-ai/go-intrusion/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// State is the readiness of a Fallback detector.
type State int

const (
	// StateUnloaded is the initial state.
	StateUnloaded State = iota
	// StateLoadingPrimary is entered while the primary detector loads.
	StateLoadingPrimary
	// StatePrimaryReady means detection runs on the primary detector.
	StatePrimaryReady
	// StateLoadingFallback is entered after the primary failed to load.
	StateLoadingFallback
	// StateFallbackReady means detection runs on the fallback detector.
	StateFallbackReady
	// StateLoadFailed means neither detector could load.
	StateLoadFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoadingPrimary:
		return "loading-primary"
	case StatePrimaryReady:
		return "primary-ready"
	case StateLoadingFallback:
		return "loading-fallback"
	case StateFallbackReady:
		return "fallback-ready"
	case StateLoadFailed:
		return "load-failed"
	default:
		return "unknown"
	}
}

// Ready reports whether a detector is active in this state.
func (s State) Ready() bool {
	return s == StatePrimaryReady || s == StateFallbackReady
}

// Fallback composes a primary and a fallback detector. The primary is tried
// first; any load failure switches to the fallback. Only when both fail does
// loading return inference.ErrNoDetector.
type Fallback struct {
	loadMu sync.Mutex // serializes EnsureReady

	mu     sync.RWMutex
	state  State
	active inference.Detector

	primary  inference.Detector
	fallback inference.Detector
	logger   *zap.SugaredLogger
}

var _ inference.Detector = (*Fallback)(nil)

// NewFallback creates an unloaded Fallback detector.
//
// Arguments:
//   - primary: The preferred detector.
//   - fallback: The detector used when the primary cannot load. May be nil.
//   - logger: The logger. A nil logger discards output.
//
// Returns:
//   - *Fallback: The unloaded detector.
func NewFallback(primary, fallback inference.Detector, logger *zap.SugaredLogger) *Fallback {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Fallback{
		primary:  primary,
		fallback: fallback,
		logger:   logger.Named("fallback"),
	}
}

// State returns the current state.
func (f *Fallback) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

func (f *Fallback) setState(state State, active inference.Detector) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	f.active = active
}

// Name returns the name of the active detector, or "none" before readiness.
func (f *Fallback) Name() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.active == nil {
		return "none"
	}
	return f.active.Name()
}

// EnsureReady loads the primary detector, or the fallback when the primary fails.
// It is a no-op once a detector is ready; after a double failure it retries from
// the primary.
//
// Arguments:
//   - ctx: Passed to the detectors' Load.
//
// Returns:
//   - error: nil when a detector is active, otherwise an error matching
//     inference.ErrNoDetector that carries both load failures.
func (f *Fallback) EnsureReady(ctx context.Context) error {
	f.loadMu.Lock()
	defer f.loadMu.Unlock()

	if f.State().Ready() {
		return nil
	}

	f.setState(StateLoadingPrimary, nil)
	primaryErr := f.primary.Load(ctx)
	if primaryErr == nil {
		f.setState(StatePrimaryReady, f.primary)
		f.logger.Infow("detector ready", "detector", f.primary.Name())
		return nil
	}
	f.logger.Warnw("primary detector failed to load", "detector", f.primary.Name(), "error", primaryErr)

	if f.fallback == nil {
		f.setState(StateLoadFailed, nil)
		return multierr.Combine(inference.ErrNoDetector, errors.Wrap(primaryErr, "primary"))
	}

	f.setState(StateLoadingFallback, nil)
	fallbackErr := f.fallback.Load(ctx)
	if fallbackErr == nil {
		f.setState(StateFallbackReady, f.fallback)
		f.logger.Infow("fallback detector ready", "detector", f.fallback.Name())
		return nil
	}
	f.logger.Errorw("fallback detector failed to load", "detector", f.fallback.Name(), "error", fallbackErr)

	f.setState(StateLoadFailed, nil)
	return multierr.Combine(
		inference.ErrNoDetector,
		errors.Wrap(primaryErr, "primary"),
		errors.Wrap(fallbackErr, "fallback"),
	)
}

// Load is EnsureReady.
func (f *Fallback) Load(ctx context.Context) error {
	return f.EnsureReady(ctx)
}

// IsLoaded reports whether a detector is active.
func (f *Fallback) IsLoaded() bool {
	return f.State().Ready()
}

// Detect delegates to the active detector.
func (f *Fallback) Detect(
	ctx context.Context,
	img image.Image,
	confThreshold, iouThreshold float32,
) ([]postprocess.Detection, error) {
	f.mu.RLock()
	active := f.active
	f.mu.RUnlock()

	if active == nil {
		return nil, inference.ErrModelNotLoaded
	}
	return active.Detect(ctx, img, confThreshold, iouThreshold)
}

// Close releases both detectors and returns to the unloaded state.
func (f *Fallback) Close() error {
	f.loadMu.Lock()
	defer f.loadMu.Unlock()

	f.setState(StateUnloaded, nil)
	err := f.primary.Close()
	if f.fallback != nil {
		err = multierr.Append(err, f.fallback.Close())
	}
	return err
}
