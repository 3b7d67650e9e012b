// Package controller - Tests for the detection loop lifecycle.
package controller

import (
	"context"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nvr-ai/go-intrusion/images"
	"github.com/nvr-ai/go-intrusion/inference"
	"github.com/nvr-ai/go-intrusion/models/postprocess"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// sliceSource replays a fixed number of frames, optionally failing some reads.
type sliceSource struct {
	mu     sync.Mutex
	frames int
	next   int
	failAt map[int]bool
	closed bool
}

func (s *sliceSource) Next(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= s.frames {
		return nil, io.EOF
	}
	i := s.next
	s.next++
	if s.failAt[i] {
		return nil, errors.New("camera hiccup")
	}
	return image.NewRGBA(image.Rect(0, 0, 4+i, 4)), nil
}

func (s *sliceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// MockDetector provides controllable detection results for testing.
type MockDetector struct {
	detect   func(ctx context.Context, img image.Image) ([]postprocess.Detection, error)
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (m *MockDetector) Name() string                { return "mock" }
func (m *MockDetector) Load(context.Context) error { return nil }
func (m *MockDetector) IsLoaded() bool              { return true }
func (m *MockDetector) Close() error                { return nil }

func (m *MockDetector) Detect(
	ctx context.Context,
	img image.Image,
	_, _ float32,
) ([]postprocess.Detection, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		seen := m.maxSeen.Load()
		if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if m.detect == nil {
		return []postprocess.Detection{
			postprocess.NewDetection("person", 0, 0.9, images.Rect{X2: 1, Y2: 1}),
		}, nil
	}
	return m.detect(ctx, img)
}

// collector records handler calls.
type collector struct {
	mu      sync.Mutex
	results []Result
}

func (c *collector) handle(_ context.Context, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *collector) ids() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int, len(c.results))
	for i, r := range c.results {
		ids[i] = r.Frame.ID
	}
	return ids
}

func waitDone(t *testing.T, l *Loop) {
	t.Helper()
	select {
	case <-l.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not finish")
	}
}

func TestLoop_RunsUntilSourceExhausted(t *testing.T) {
	source := &sliceSource{frames: 5}
	detector := &MockDetector{}
	results := &collector{}

	loop := NewLoop(detector, source, results.handle, DefaultConfig(), zaptest.NewLogger(t).Sugar())
	require.NoError(t, loop.Start(context.Background()))
	waitDone(t, loop)

	assert.NoError(t, loop.Err())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, results.ids())
	assert.Equal(t, int64(5), loop.Stats().Frames)
	assert.Equal(t, "mock", results.results[0].Detector)
	assert.Len(t, results.results[0].Detections, 1)
	assert.Equal(t, int32(1), detector.maxSeen.Load(), "cycles must not overlap")

	require.NoError(t, loop.Stop())
	assert.True(t, source.closed)
}

func TestLoop_SkipsFailedFrames(t *testing.T) {
	source := &sliceSource{frames: 4, failAt: map[int]bool{2: true}}
	detector := &MockDetector{
		detect: func(_ context.Context, img image.Image) ([]postprocess.Detection, error) {
			if img.Bounds().Dx() == 5 { // frame 1
				return nil, errors.New("inference failed")
			}
			return nil, nil
		},
	}
	results := &collector{}

	loop := NewLoop(detector, source, results.handle, DefaultConfig(), zaptest.NewLogger(t).Sugar())
	require.NoError(t, loop.Start(context.Background()))
	waitDone(t, loop)

	assert.NoError(t, loop.Err())
	assert.Equal(t, []int{0, 3}, results.ids())
	stats := loop.Stats()
	assert.Equal(t, int64(2), stats.Frames)
	assert.Equal(t, int64(2), stats.Skipped)
	require.NoError(t, loop.Stop())
}

func TestLoop_TerminatesWhenModelNotLoaded(t *testing.T) {
	source := &sliceSource{frames: 10}
	detector := &MockDetector{
		detect: func(context.Context, image.Image) ([]postprocess.Detection, error) {
			return nil, inference.ErrModelNotLoaded
		},
	}
	results := &collector{}

	loop := NewLoop(detector, source, results.handle, DefaultConfig(), zaptest.NewLogger(t).Sugar())
	require.NoError(t, loop.Start(context.Background()))
	waitDone(t, loop)

	assert.True(t, errors.Is(loop.Err(), inference.ErrModelNotLoaded))
	assert.Empty(t, results.ids())
	assert.Equal(t, 1, source.next)
	require.NoError(t, loop.Stop())
}

func TestLoop_StopDiscardsInFlightResult(t *testing.T) {
	entered := make(chan struct{})
	source := &sliceSource{frames: 100}
	detector := &MockDetector{
		detect: func(ctx context.Context, _ image.Image) ([]postprocess.Detection, error) {
			close(entered)
			<-ctx.Done()
			// The engine finishes after the loop was stopped.
			return []postprocess.Detection{postprocess.NewDetection("person", 0, 0.9, images.Rect{})}, nil
		},
	}
	results := &collector{}

	loop := NewLoop(detector, source, results.handle, DefaultConfig(), zaptest.NewLogger(t).Sugar())
	require.NoError(t, loop.Start(context.Background()))

	<-entered
	require.NoError(t, loop.Stop())

	assert.Empty(t, results.ids())
	assert.NoError(t, loop.Err())
	assert.True(t, source.closed)
	assert.Equal(t, 1, source.next, "no further cycle is scheduled")

	// Stop is idempotent.
	require.NoError(t, loop.Stop())
}

func TestLoop_ParentContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := &sliceSource{frames: 1 << 20}
	cfg := DefaultConfig()
	cfg.Interval = time.Millisecond

	loop := NewLoop(&MockDetector{}, source, nil, cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, loop.Start(ctx))

	cancel()
	waitDone(t, loop)
	assert.NoError(t, loop.Err())
	require.NoError(t, loop.Stop())
}

func TestLoop_StartTwice(t *testing.T) {
	loop := NewLoop(&MockDetector{}, &sliceSource{}, nil, DefaultConfig(), nil)
	require.NoError(t, loop.Start(context.Background()))
	assert.Error(t, loop.Start(context.Background()))
	require.NoError(t, loop.Stop())
}

func TestLoop_StopWithoutStart(t *testing.T) {
	source := &sliceSource{}
	loop := NewLoop(&MockDetector{}, source, nil, DefaultConfig(), nil)
	require.NoError(t, loop.Stop())
	assert.True(t, source.closed)
	waitDone(t, loop)
	require.NoError(t, loop.Stop())
}

func TestLoop_StartAfterStop(t *testing.T) {
	source := &sliceSource{frames: 3}
	detector := &MockDetector{}
	loop := NewLoop(detector, source, nil, DefaultConfig(), nil)
	require.NoError(t, loop.Stop())

	err := loop.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped")
	assert.Zero(t, loop.Stats().Frames)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative confidence", func(c *Config) { c.ConfidenceThreshold = -0.1 }},
		{"confidence above one", func(c *Config) { c.ConfidenceThreshold = 1.5 }},
		{"zero iou", func(c *Config) { c.IoUThreshold = 0 }},
		{"negative interval", func(c *Config) { c.Interval = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
