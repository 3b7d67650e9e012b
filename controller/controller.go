// Package controller - Cancellable per-frame detection loop.
package controller

import (
	"context"
	"image"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/nvr-ai/go-intrusion/inference"
	"github.com/nvr-ai/go-intrusion/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// sourceRetryDelay is the minimum pause after a failed frame read.
const sourceRetryDelay = 50 * time.Millisecond

// Frame is a single frame of video.
type Frame struct {
	ID        int
	Image     image.Image
	Timestamp time.Time
}

// FrameSource produces frames for the loop. Next blocks until a frame is
// available and returns io.EOF when the source is exhausted.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Result is the outcome of one detection cycle.
type Result struct {
	Frame      Frame
	Detections []postprocess.Detection
	Latency    time.Duration
	Detector   string
}

// Handler consumes detection results. It runs on the loop goroutine, so the next
// cycle starts only after it returns.
type Handler func(ctx context.Context, result Result)

// Config controls the detection loop.
type Config struct {
	// ConfidenceThreshold filters candidates below this class score.
	ConfidenceThreshold float32 `json:"confidence" yaml:"confidence"`
	// IoUThreshold controls Non-Maximum Suppression.
	IoUThreshold float32 `json:"iou"        yaml:"iou"`
	// Interval is the pause between the end of one cycle and the start of the next.
	Interval time.Duration `json:"interval"   yaml:"interval"`
}

// DefaultConfig returns the thresholds used by the detectors (0.3 / 0.45) and no pause.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.3,
		IoUThreshold:        postprocess.DefaultIoUThreshold,
	}
}

// Validate checks the thresholds and pacing.
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return errors.Errorf("confidence threshold must be in [0, 1], got %v", c.ConfidenceThreshold)
	}
	if c.IoUThreshold <= 0 || c.IoUThreshold > 1 {
		return errors.Errorf("iou threshold must be in (0, 1], got %v", c.IoUThreshold)
	}
	if c.Interval < 0 {
		return errors.Errorf("interval must not be negative, got %s", c.Interval)
	}
	return nil
}

// Stats summarizes the work done by a loop.
type Stats struct {
	Frames      int64         `json:"frames"`
	Skipped     int64         `json:"skipped"`
	LastLatency time.Duration `json:"last_latency"`
	FPS         float64       `json:"fps"`
}

// Loop runs detection on consecutive frames, strictly one at a time. A cycle is
// only scheduled after the previous one has finished.
type Loop struct {
	detector inference.Detector
	source   FrameSource
	handler  Handler
	config   Config
	clock    clock.Clock
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	stats   Stats
	begin   time.Time

	stopOnce sync.Once
	closeErr error
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces the wall clock used for timestamps, latency and pauses.
func WithClock(c clock.Clock) Option {
	return func(l *Loop) {
		l.clock = c
	}
}

// NewLoop creates a stopped loop.
//
// Arguments:
//   - detector: The detector run on every frame.
//   - source: The frame producer. The loop closes it on Stop.
//   - handler: Receives every successful result. May be nil.
//   - cfg: Thresholds and pacing.
//   - logger: The logger. A nil logger discards output.
//
// Returns:
//   - *Loop: The loop, ready to Start.
func NewLoop(
	detector inference.Detector,
	source FrameSource,
	handler Handler,
	cfg Config,
	logger *zap.SugaredLogger,
	opts ...Option,
) *Loop {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if handler == nil {
		handler = func(context.Context, Result) {}
	}
	l := &Loop{
		detector: detector,
		source:   source,
		handler:  handler,
		config:   cfg,
		clock:    clock.New(),
		logger:   logger.Named("loop"),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the loop goroutine. It may be called once, and not after Stop.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return errors.New("loop already stopped")
	}
	if l.started {
		return errors.New("loop already started")
	}
	l.started = true
	l.begin = l.clock.Now()

	ctx, l.cancel = context.WithCancel(ctx)
	go l.run(ctx)
	return nil
}

// Stop cancels the loop, waits for an in-flight cycle to finish (its result is
// discarded) and closes the frame source. Done is closed once Stop returns,
// even for a loop that never started. Stop is idempotent.
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		started, cancel := l.started, l.cancel
		l.mu.Unlock()

		if started {
			cancel()
			<-l.done
		} else {
			close(l.done)
		}
		l.closeErr = l.source.Close()
	})
	return l.closeErr
}

// Done is closed when the loop goroutine exits.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Err returns the error that terminated the loop, if any. Cancellation and
// source exhaustion are not errors.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := l.stats
	if elapsed := l.clock.Since(l.begin).Seconds(); elapsed > 0 && l.started {
		stats.FPS = float64(stats.Frames) / elapsed
	}
	return stats
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	err := l.cycle(ctx)

	l.mu.Lock()
	l.err = err
	l.mu.Unlock()

	if err != nil {
		l.logger.Errorw("detection loop terminated", "error", err)
		return
	}
	l.logger.Infow("detection loop stopped", "frames", l.Stats().Frames)
}

func (l *Loop) cycle(ctx context.Context) error {
	for id := 0; ; id++ {
		if ctx.Err() != nil {
			return nil
		}

		img, err := l.source.Next(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, io.EOF) {
			l.logger.Infow("frame source exhausted", "frames", id)
			return nil
		}
		if err != nil {
			l.skip(id, errors.Wrap(err, "reading frame"))
			if !l.wait(ctx, max(l.config.Interval, sourceRetryDelay)) {
				return nil
			}
			continue
		}

		frame := Frame{ID: id, Image: img, Timestamp: l.clock.Now()}
		detections, err := l.detector.Detect(ctx, img, l.config.ConfidenceThreshold, l.config.IoUThreshold)
		latency := l.clock.Since(frame.Timestamp)

		// A result that arrives after cancellation belongs to a stopped loop.
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, inference.ErrModelNotLoaded) {
			return err
		}
		if err != nil {
			l.skip(id, err)
		} else {
			l.mu.Lock()
			l.stats.Frames++
			l.stats.LastLatency = latency
			l.mu.Unlock()

			l.handler(ctx, Result{
				Frame:      frame,
				Detections: detections,
				Latency:    latency,
				Detector:   l.detector.Name(),
			})
		}

		if !l.wait(ctx, l.config.Interval) {
			return nil
		}
	}
}

func (l *Loop) skip(id int, err error) {
	l.mu.Lock()
	l.stats.Skipped++
	l.mu.Unlock()
	l.logger.Warnw("frame skipped", "frame", id, "error", err)
}

// wait pauses for d. It returns false when ctx is cancelled.
func (l *Loop) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := l.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
