// Package cloudlog ships intrusion records to the alert logging webhook.
package cloudlog

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/go-intrusion/alerts"
	"github.com/nvr-ai/go-intrusion/models"
	"github.com/nvr-ai/go-intrusion/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Record types.
const (
	TypeIntrusion = "intrusion"
	TypeSafe      = "safe"
)

// maxErrorBody caps how much of a failed response body is kept in the error.
const maxErrorBody = 512

// Config describes the webhook endpoint.
type Config struct {
	// URL of the webhook. Empty disables the sink.
	URL string `json:"url" yaml:"url"`
	// Token is sent as a bearer token when set.
	Token string `json:"token" yaml:"token"`
	// Timeout bounds each request.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// SnapshotQuality is the JPEG quality of attached snapshots. Zero disables snapshots.
	SnapshotQuality int `json:"snapshotQuality" yaml:"snapshotQuality"`
}

// DefaultConfig returns a disabled sink with sane request settings.
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		SnapshotQuality: 75,
	}
}

// Validate checks the sink configuration.
func (c Config) Validate() error {
	if c.URL != "" && c.Timeout <= 0 {
		return errors.Errorf("sink timeout must be positive, got %s", c.Timeout)
	}
	if c.SnapshotQuality < 0 || c.SnapshotQuality > 100 {
		return errors.Errorf("sink snapshotQuality must be in [0,100], got %d", c.SnapshotQuality)
	}
	return nil
}

// DetectionSummary is the compact form of a detection stored in a record.
type DetectionSummary struct {
	Class string  `json:"class"`
	Score float32 `json:"score"`
}

// Record is one logged alert.
type Record struct {
	ID             string             `json:"id"`
	Timestamp      string             `json:"timestamp"`
	Type           string             `json:"type"`
	Message        string             `json:"message"`
	Sensor         string             `json:"sensor"`
	Classification models.Category    `json:"classification"`
	Detections     []DetectionSummary `json:"detections"`
	Snapshot       string             `json:"snapshot,omitempty"`
}

// NewRecord builds a record from a feed message and the detections of the
// frame captured for it. The record time falls back to now when the message
// carries no parseable timestamp.
func NewRecord(msg alerts.Message, detections []postprocess.Detection, now time.Time) Record {
	ts, ok := msg.Time()
	if !ok {
		ts = now
	}

	rec := Record{
		ID:             uuid.NewString(),
		Timestamp:      ts.Format(time.RFC3339),
		Type:           TypeSafe,
		Message:        "All clear",
		Sensor:         msg.Sensor(),
		Classification: models.Classify(postprocess.Labels(detections)),
		Detections:     make([]DetectionSummary, len(detections)),
	}
	if msg.IsIntrusion() {
		rec.Type = TypeIntrusion
		rec.Message = msg.Alert
		if rec.Classification != models.CategoryNone {
			rec.Message += ": " + string(rec.Classification)
		}
	}
	for i, d := range detections {
		rec.Detections[i] = DetectionSummary{Class: d.ClassName, Score: d.Confidence}
	}
	return rec
}

// Response is the webhook reply.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Warning string `json:"warning,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Client posts records to the webhook.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.SugaredLogger
}

// NewClient creates a webhook client.
func NewClient(cfg Config, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Enabled reports whether records are sent anywhere.
func (c *Client) Enabled() bool {
	return c.cfg.URL != ""
}

// SnapshotQuality returns the configured snapshot JPEG quality.
func (c *Client) SnapshotQuality() int {
	return c.cfg.SnapshotQuality
}

// Log posts rec. It is a no-op when the sink is disabled. A non-2xx status
// or a reply with success false is an error; a reply warning is logged.
func (c *Client) Log(ctx context.Context, rec Record) error {
	if !c.Enabled() {
		return nil
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encoding record")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "posting record")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return errors.Errorf("webhook returned %s: %s", resp.Status, bytes.TrimSpace(data))
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var reply Response
	if err := json.Unmarshal(data, &reply); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	if !reply.Success {
		return errors.Errorf("webhook rejected record: %s", reply.Error)
	}
	if reply.Warning != "" {
		c.logger.Warnw("webhook accepted record with warning", "id", rec.ID, "warning", reply.Warning)
	}
	c.logger.Debugw("record logged", "id", rec.ID, "type", rec.Type, "message", reply.Message)
	return nil
}
