package detectors

import (
	"context"
	"image"
	"testing"

	"github.com/nvr-ai/go-intrusion/images"
	"github.com/nvr-ai/go-intrusion/inference"
	"github.com/nvr-ai/go-intrusion/models/postprocess"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"
)

// stubDetector is a controllable inference.Detector.
type stubDetector struct {
	name       string
	loadErr    error
	loads      int
	loaded     bool
	closed     bool
	detections []postprocess.Detection
}

func (s *stubDetector) Name() string { return s.name }

func (s *stubDetector) Load(context.Context) error {
	s.loads++
	if s.loadErr != nil {
		return s.loadErr
	}
	s.loaded = true
	return nil
}

func (s *stubDetector) IsLoaded() bool { return s.loaded }

func (s *stubDetector) Detect(context.Context, image.Image, float32, float32) ([]postprocess.Detection, error) {
	if !s.loaded {
		return nil, inference.ErrModelNotLoaded
	}
	return s.detections, nil
}

func (s *stubDetector) Close() error {
	s.closed = true
	s.loaded = false
	return nil
}

func frame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 4, 4))
}

func TestFallback_PrimaryReady(t *testing.T) {
	primary := &stubDetector{
		name:       "yolo",
		detections: []postprocess.Detection{postprocess.NewDetection("person", 0, 0.9, images.Rect{})},
	}
	fallback := &stubDetector{name: "remote"}
	f := NewFallback(primary, fallback, zaptest.NewLogger(t).Sugar())

	assert.Equal(t, StateUnloaded, f.State())
	assert.Equal(t, "none", f.Name())

	require.NoError(t, f.EnsureReady(context.Background()))
	assert.Equal(t, StatePrimaryReady, f.State())
	assert.Equal(t, "yolo", f.Name())
	assert.True(t, f.IsLoaded())
	assert.Zero(t, fallback.loads)

	detections, err := f.Detect(context.Background(), frame(), 0.3, 0.45)
	require.NoError(t, err)
	assert.Len(t, detections, 1)

	// Ready is sticky.
	require.NoError(t, f.EnsureReady(context.Background()))
	assert.Equal(t, 1, primary.loads)
}

func TestFallback_FallbackReady(t *testing.T) {
	primary := &stubDetector{name: "yolo", loadErr: errors.New("model missing")}
	fallback := &stubDetector{
		name:       "remote",
		detections: []postprocess.Detection{postprocess.NewDetection("cat", -1, 0.7, images.Rect{})},
	}
	f := NewFallback(primary, fallback, zaptest.NewLogger(t).Sugar())

	require.NoError(t, f.Load(context.Background()))
	assert.Equal(t, StateFallbackReady, f.State())
	assert.Equal(t, "remote", f.Name())

	detections, err := f.Detect(context.Background(), frame(), 0.3, 0.45)
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Equal(t, "cat", detections[0].ClassName)
}

func TestFallback_LoadFailed(t *testing.T) {
	primaryErr := errors.New("model missing")
	fallbackErr := errors.New("service down")
	primary := &stubDetector{name: "yolo", loadErr: primaryErr}
	fallback := &stubDetector{name: "remote", loadErr: fallbackErr}
	f := NewFallback(primary, fallback, zaptest.NewLogger(t).Sugar())

	err := f.EnsureReady(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, inference.ErrNoDetector))
	assert.True(t, errors.Is(err, primaryErr))
	assert.True(t, errors.Is(err, fallbackErr))
	assert.Len(t, multierr.Errors(err), 3)
	assert.Equal(t, StateLoadFailed, f.State())
	assert.False(t, f.IsLoaded())

	_, err = f.Detect(context.Background(), frame(), 0.3, 0.45)
	assert.True(t, errors.Is(err, inference.ErrModelNotLoaded))

	// A later attempt starts from the primary again.
	primary.loadErr = nil
	require.NoError(t, f.EnsureReady(context.Background()))
	assert.Equal(t, StatePrimaryReady, f.State())
	assert.Equal(t, 2, primary.loads)
	assert.Equal(t, 1, fallback.loads)
}

func TestFallback_NoFallbackConfigured(t *testing.T) {
	primary := &stubDetector{name: "yolo", loadErr: errors.New("model missing")}
	f := NewFallback(primary, nil, nil)

	err := f.EnsureReady(context.Background())
	assert.True(t, errors.Is(err, inference.ErrNoDetector))
	assert.Equal(t, StateLoadFailed, f.State())
	require.NoError(t, f.Close())
}

func TestFallback_DetectBeforeReady(t *testing.T) {
	f := NewFallback(&stubDetector{name: "yolo"}, &stubDetector{name: "remote"}, nil)
	_, err := f.Detect(context.Background(), frame(), 0.3, 0.45)
	assert.True(t, errors.Is(err, inference.ErrModelNotLoaded))
}

func TestFallback_Close(t *testing.T) {
	primary := &stubDetector{name: "yolo"}
	fallback := &stubDetector{name: "remote"}
	f := NewFallback(primary, fallback, nil)
	require.NoError(t, f.EnsureReady(context.Background()))

	require.NoError(t, f.Close())
	assert.True(t, primary.closed)
	assert.True(t, fallback.closed)
	assert.Equal(t, StateUnloaded, f.State())
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateUnloaded:        "unloaded",
		StateLoadingPrimary:  "loading-primary",
		StatePrimaryReady:    "primary-ready",
		StateLoadingFallback: "loading-fallback",
		StateFallbackReady:   "fallback-ready",
		StateLoadFailed:      "load-failed",
		State(42):            "unknown",
	}
	for state, expected := range tests {
		assert.Equal(t, expected, state.String())
	}
	assert.True(t, StatePrimaryReady.Ready())
	assert.True(t, StateFallbackReady.Ready())
	assert.False(t, StateLoadingFallback.Ready())
}
