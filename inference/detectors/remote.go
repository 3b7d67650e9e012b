package detectors

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/nvr-ai/go-intrusion/images"
	"github.com/nvr-ai/go-intrusion/inference"
	"github.com/nvr-ai/go-intrusion/models"
	"github.com/nvr-ai/go-intrusion/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// RemotePrediction is one object as reported by the remote detection service.
// Bbox is [x, y, width, height] in source-frame pixels.
type RemotePrediction struct {
	Class string     `json:"class"`
	Score float32    `json:"score"`
	Bbox  [4]float32 `json:"bbox"`
}

// Remote is a general-purpose fallback detector served over HTTP. Frames are
// uploaded as JPEG and the service answers with a JSON list of RemotePrediction.
type Remote struct {
	config RemoteConfig
	client *http.Client
	loaded atomic.Bool
	logger *zap.SugaredLogger
}

var _ inference.Detector = (*Remote)(nil)

// NewRemote creates an unloaded remote detector.
//
// Arguments:
//   - cfg: The remote service configuration.
//   - logger: The logger. A nil logger discards output.
//
// Returns:
//   - *Remote: The unloaded detector.
func NewRemote(cfg RemoteConfig, logger *zap.SugaredLogger) *Remote {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Remote{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named("remote"),
	}
}

// Name returns the detector name.
func (r *Remote) Name() string {
	return "remote"
}

// Load checks that the service is reachable and ready.
func (r *Remote) Load(ctx context.Context) error {
	if err := r.config.Validate(); err != nil {
		return errors.Wrap(err, "invalid remote detector config")
	}
	if r.config.PingURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.config.PingURL, nil)
		if err != nil {
			return errors.Wrap(err, "building ping request")
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return errors.Wrap(err, "pinging remote detector")
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errors.Errorf("remote detector not ready: %s", resp.Status)
		}
	}
	r.loaded.Store(true)
	r.logger.Infow("remote detector ready", "url", r.config.URL)
	return nil
}

// IsLoaded reports whether Detect can be called.
func (r *Remote) IsLoaded() bool {
	return r.loaded.Load()
}

// Detect uploads the frame and converts the predictions to detections. The
// confidence filter and NMS are applied locally with the given thresholds.
func (r *Remote) Detect(
	ctx context.Context,
	img image.Image,
	confThreshold, iouThreshold float32,
) ([]postprocess.Detection, error) {
	if !r.loaded.Load() {
		return nil, inference.ErrModelNotLoaded
	}
	if img == nil || img.Bounds().Empty() {
		return nil, errors.Wrap(inference.ErrInvalidFrame, "empty frame")
	}

	var body bytes.Buffer
	if err := jpeg.Encode(&body, img, &jpeg.Options{Quality: r.config.JPEGQuality}); err != nil {
		return nil, errors.Wrap(err, "encoding frame")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.config.URL, &body)
	if err != nil {
		return nil, errors.Wrap(err, "building detect request")
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "calling remote detector")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("remote detector http error: %s", resp.Status)
	}

	var predictions []RemotePrediction
	if err := json.NewDecoder(resp.Body).Decode(&predictions); err != nil {
		return nil, errors.Wrap(err, "decoding remote predictions")
	}

	return ConvertPredictions(predictions, confThreshold, iouThreshold), nil
}

// ConvertPredictions normalizes remote predictions into detections: corner
// boxes, vocabulary index, three-way label, confidence filter and NMS.
func ConvertPredictions(
	predictions []RemotePrediction,
	confThreshold, iouThreshold float32,
) []postprocess.Detection {
	detections := make([]postprocess.Detection, 0, len(predictions))
	for _, p := range predictions {
		if p.Score < confThreshold {
			continue
		}
		detections = append(detections, postprocess.NewDetection(
			p.Class,
			models.COCOClasses.Index(p.Class),
			p.Score,
			images.RectFromXYWH(p.Bbox[0], p.Bbox[1], p.Bbox[2], p.Bbox[3]),
		))
	}
	return postprocess.ApplyNMS(detections, &postprocess.NMSConfig{IoUThreshold: iouThreshold})
}

// Close marks the detector unloaded and releases idle connections.
func (r *Remote) Close() error {
	r.loaded.Store(false)
	r.client.CloseIdleConnections()
	return nil
}
