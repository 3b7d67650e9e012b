// Package monitor joins the detection loop with the alert feed: every
// intrusion alert is logged with the most recent detections and an annotated
// snapshot of the frame they came from.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/nvr-ai/go-intrusion/alerts"
	"github.com/nvr-ai/go-intrusion/annotate"
	"github.com/nvr-ai/go-intrusion/cloudlog"
	"github.com/nvr-ai/go-intrusion/controller"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Sink receives alert records.
type Sink interface {
	Log(ctx context.Context, rec cloudlog.Record) error
}

// Commander writes commands back to the relay.
type Commander interface {
	Send(ctx context.Context, cmd alerts.Command) error
}

// Config controls how alerts are matched to frames.
type Config struct {
	// MaxFrameAge drops detections older than this from a record. Zero keeps any age.
	MaxFrameAge time.Duration
	// SnapshotQuality is the JPEG quality of the snapshot. Zero disables snapshots.
	SnapshotQuality int
	// AutoAck sends LED_OFF once an intrusion has been logged.
	AutoAck bool
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithClock replaces the clock used for frame ages and record times.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		m.clock = c
	}
}

// WithCommander sets the relay used for acknowledgements.
func WithCommander(c Commander) Option {
	return func(m *Monitor) {
		m.commander = c
	}
}

// Monitor keeps the latest detection result and turns alerts into records.
type Monitor struct {
	cfg       Config
	sink      Sink
	commander Commander
	clock     clock.Clock
	logger    *zap.SugaredLogger

	mu     sync.RWMutex
	latest *controller.Result
}

// New creates a monitor that logs to sink.
func New(sink Sink, cfg Config, logger *zap.SugaredLogger, opts ...Option) *Monitor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	m := &Monitor{
		cfg:    cfg,
		sink:   sink,
		clock:  clock.New(),
		logger: logger.Named("monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observe records a detection result. It is a controller.Handler.
func (m *Monitor) Observe(_ context.Context, result controller.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = &result
}

// Latest returns the most recent result that is not older than MaxFrameAge.
func (m *Monitor) Latest() (controller.Result, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.latest == nil {
		return controller.Result{}, false
	}
	if m.cfg.MaxFrameAge > 0 && m.clock.Since(m.latest.Frame.Timestamp) > m.cfg.MaxFrameAge {
		return controller.Result{}, false
	}
	return *m.latest, true
}

// Handle processes one feed message. Non-intrusion messages produce no record.
func (m *Monitor) Handle(ctx context.Context, msg alerts.Message) (*cloudlog.Record, error) {
	if msg.IsLEDStatus() {
		m.logger.Infow("led status", "status", msg.Status)
		return nil, nil
	}
	if !msg.IsIntrusion() {
		m.logger.Debugw("sensor message", "raw", msg.Raw)
		return nil, nil
	}

	result, ok := m.Latest()
	rec := cloudlog.NewRecord(msg, result.Detections, m.clock.Now())
	if ok && result.Frame.Image != nil && m.cfg.SnapshotQuality > 0 {
		snapshot, err := annotate.Snapshot(annotate.Draw(result.Frame.Image, result.Detections), m.cfg.SnapshotQuality)
		if err != nil {
			m.logger.Warnw("snapshot failed", "error", err)
		} else {
			rec.Snapshot = snapshot
		}
	}

	m.logger.Infow("intrusion",
		"sensor", rec.Sensor,
		"classification", rec.Classification,
		"detections", len(rec.Detections),
		"frame", result.Frame.ID,
	)
	if err := m.sink.Log(ctx, rec); err != nil {
		return &rec, errors.Wrap(err, "logging intrusion")
	}

	if m.cfg.AutoAck && m.commander != nil {
		if err := m.commander.Send(ctx, alerts.Command{Command: alerts.CommandLEDOff}); err != nil {
			m.logger.Warnw("acknowledging intrusion failed", "error", err)
		}
	}
	return &rec, nil
}

// Run handles messages until ctx ends or messages is closed. Per-message
// failures are logged and do not stop the monitor.
func (m *Monitor) Run(ctx context.Context, messages <-chan alerts.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if _, err := m.Handle(ctx, msg); err != nil {
				m.logger.Errorw("alert handling failed", "error", err)
			}
		}
	}
}
