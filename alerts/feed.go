package alerts

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by Send while the feed has no live connection.
var ErrNotConnected = errors.New("alert feed not connected")

// Config describes the feed endpoint.
type Config struct {
	// URL is the relay's WebSocket address.
	URL string `json:"url" yaml:"url"`
	// ReconnectDelay is the wait between a dropped connection and the next dial.
	ReconnectDelay time.Duration `json:"reconnectDelay" yaml:"reconnectDelay"`
	// HandshakeTimeout bounds each dial.
	HandshakeTimeout time.Duration `json:"handshakeTimeout" yaml:"handshakeTimeout"`
	// Buffer is the capacity of the Messages channel.
	Buffer int `json:"buffer" yaml:"buffer"`
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() Config {
	return Config{
		URL:              "ws://localhost:8765",
		ReconnectDelay:   2 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		Buffer:           16,
	}
}

// Validate checks the feed configuration.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("alerts url is required")
	}
	if c.ReconnectDelay <= 0 {
		return errors.Errorf("alerts reconnectDelay must be positive, got %s", c.ReconnectDelay)
	}
	if c.Buffer < 0 {
		return errors.Errorf("alerts buffer must not be negative, got %d", c.Buffer)
	}
	return nil
}

// Option customizes a Feed.
type Option func(*Feed)

// WithClock replaces the clock used for reconnect delays.
func WithClock(c clock.Clock) Option {
	return func(f *Feed) {
		f.clock = c
	}
}

// Feed keeps a WebSocket connection to the relay open, redialing after
// failures, and republishes decoded messages on Messages.
type Feed struct {
	cfg      Config
	logger   *zap.SugaredLogger
	clock    clock.Clock
	dialer   *websocket.Dialer
	messages chan Message
	running  atomic.Bool

	// mu serializes writers and guards conn.
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewFeed creates an idle feed. Call Run to connect.
func NewFeed(cfg Config, logger *zap.SugaredLogger, opts ...Option) *Feed {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	f := &Feed{
		cfg:    cfg,
		logger: logger,
		clock:  clock.New(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		messages: make(chan Message, cfg.Buffer),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Messages returns the decoded message stream. It is closed when Run returns.
func (f *Feed) Messages() <-chan Message {
	return f.messages
}

// Connected reports whether a connection is currently open.
func (f *Feed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn != nil
}

// Run dials the relay and reads until ctx is cancelled. Connection failures
// are logged and retried after Config.ReconnectDelay. Run returns nil on
// cancellation.
func (f *Feed) Run(ctx context.Context) error {
	if err := f.cfg.Validate(); err != nil {
		return err
	}
	if !f.running.CompareAndSwap(false, true) {
		return errors.New("alert feed already running")
	}
	defer close(f.messages)

	for {
		if ctx.Err() != nil {
			return nil
		}

		f.logger.Infow("connecting to alert feed", "url", f.cfg.URL)
		conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			f.logger.Warnw("alert feed dial failed", "url", f.cfg.URL, "error", err, "retry", f.cfg.ReconnectDelay)
			if !f.sleep(ctx, f.cfg.ReconnectDelay) {
				return nil
			}
			continue
		}

		f.logger.Infow("alert feed connected", "url", f.cfg.URL)
		f.setConn(conn)
		err = f.read(ctx, conn)
		f.setConn(nil)
		_ = conn.Close()

		if ctx.Err() != nil {
			return nil
		}
		f.logger.Warnw("alert feed disconnected", "error", err, "retry", f.cfg.ReconnectDelay)
		if !f.sleep(ctx, f.cfg.ReconnectDelay) {
			return nil
		}
	}
}

// Send writes a command to the relay.
func (f *Feed) Send(ctx context.Context, cmd Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return ErrNotConnected
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := f.conn.SetWriteDeadline(deadline); err != nil {
			return errors.Wrap(err, "setting write deadline")
		}
		defer f.conn.SetWriteDeadline(time.Time{}) //nolint:errcheck
	}
	if err := f.conn.WriteJSON(cmd); err != nil {
		return errors.Wrapf(err, "sending %s", cmd.Command)
	}
	f.logger.Debugw("alert feed command sent", "command", cmd.Command)
	return nil
}

func (f *Feed) read(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "reading alert feed")
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Debugw("dropping undecodable alert message", "error", err, "payload", string(data))
			continue
		}

		select {
		case f.messages <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Feed) setConn(conn *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn = conn
}

func (f *Feed) sleep(ctx context.Context, d time.Duration) bool {
	t := f.clock.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
