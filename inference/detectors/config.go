// Package detectors - Detector configuration.
package detectors

import (
	"time"

	"github.com/nvr-ai/go-intrusion/inference"
	"github.com/nvr-ai/go-intrusion/inference/providers"
	"github.com/nvr-ai/go-intrusion/inference/providers/opencv"
	"github.com/nvr-ai/go-intrusion/models"
	"github.com/nvr-ai/go-intrusion/models/postprocess"
	"github.com/pkg/errors"
)

// Config represents the configuration of the primary YOLO detector.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string `json:"modelPath" yaml:"modelPath"`
	// Engine selects the numerical engine: "onnx" or "opencv".
	Engine inference.EngineType `json:"engine"    yaml:"engine"`
	// Session configures the ONNX Runtime engine.
	Session providers.Config `json:"session"   yaml:"session"`
	// OpenCV configures the OpenCV DNN engine.
	OpenCV opencv.Config `json:"opencv"    yaml:"opencv"`
}

// DefaultConfig returns a configuration for a 640x640 YOLOv8 export on ONNX Runtime.
//
// Returns:
//   - Config: The default configuration.
//
// @example
// config := DefaultConfig()
// config.ModelPath = "models/yolov8n.onnx"
// detector := NewYOLO(config, logger)
func DefaultConfig() Config {
	return Config{
		ModelPath: "models/yolov8n.onnx",
		Engine:    inference.EngineONNX,
		Session:   providers.DefaultConfig(),
		OpenCV:    opencv.DefaultConfig(),
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model path is required")
	}
	if _, err := inference.ParseEngineType(string(c.Engine)); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if c.Session.OutputFields != 4+models.YOLOClasses.Len() {
		return errors.Errorf(
			"output fields %d do not match the %d-class vocabulary",
			c.Session.OutputFields, models.YOLOClasses.Len(),
		)
	}
	return nil
}

// DecodeConfig returns the raw output layout the model produces.
func (c Config) DecodeConfig() postprocess.DecodeConfig {
	return postprocess.DecodeConfig{
		InputSize:     c.Session.InputSize,
		NumCandidates: c.Session.NumCandidates,
		Classes:       models.YOLOClasses,
	}
}

// RemoteConfig represents the configuration of the remote fallback detector.
type RemoteConfig struct {
	// URL receives frames (HTTP PUT of a JPEG) and answers with detections.
	URL string `json:"url"         yaml:"url"`
	// PingURL answers 200 when the service is ready. Empty skips the readiness check.
	PingURL string `json:"pingUrl"     yaml:"pingUrl"`
	// Timeout bounds every request.
	Timeout time.Duration `json:"timeout"     yaml:"timeout"`
	// JPEGQuality of the uploaded frame (1-100).
	JPEGQuality int `json:"jpegQuality" yaml:"jpegQuality"`
}

// DefaultRemoteConfig returns the configuration of a local TorchServe-style service.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		URL:         "http://127.0.0.1:8080/predictions/coco_ssd",
		PingURL:     "http://127.0.0.1:8080/ping",
		Timeout:     5 * time.Second,
		JPEGQuality: 85,
	}
}

// Validate checks the configuration for consistency.
func (c RemoteConfig) Validate() error {
	if c.URL == "" {
		return errors.New("remote detector url is required")
	}
	if c.Timeout <= 0 {
		return errors.Errorf("remote detector timeout must be positive, got %s", c.Timeout)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return errors.Errorf("jpeg quality must be in [1, 100], got %d", c.JPEGQuality)
	}
	return nil
}
