package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-intrusion/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Valid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intrusion.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  modelPath: /opt/models/yolov8s.onnx
  engine: opencv
fallback:
  enabled: true
  url: http://detector.local/predict
  timeout: 3s
detect:
  confidence: 0.5
  interval: 250ms
alerts:
  url: ws://rig.local:8765
sink:
  url: https://example.invalid/functions/v1/log-alert
capture:
  frames: ./frames
log:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/models/yolov8s.onnx", cfg.Model.ModelPath)
	assert.Equal(t, inference.EngineOpenCV, cfg.Model.Engine)
	assert.Equal(t, 640, cfg.Model.Session.InputSize)

	assert.True(t, cfg.Fallback.Enabled)
	assert.Equal(t, "http://detector.local/predict", cfg.Fallback.URL)
	assert.Equal(t, 3*time.Second, cfg.Fallback.Timeout)
	assert.Equal(t, 85, cfg.Fallback.JPEGQuality)

	assert.InDelta(t, 0.5, cfg.Detect.ConfidenceThreshold, 1e-6)
	assert.InDelta(t, 0.45, cfg.Detect.IoUThreshold, 1e-6)
	assert.Equal(t, 250*time.Millisecond, cfg.Detect.Interval)

	assert.Equal(t, "ws://rig.local:8765", cfg.Alerts.URL)
	assert.Equal(t, 2*time.Second, cfg.Alerts.ReconnectDelay)
	assert.Equal(t, 10*time.Second, cfg.Sink.Timeout)
	assert.Equal(t, "./frames", cfg.Capture.Frames)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "model:\n  weights: x\n"},
		{"bad engine", "model:\n  engine: tflite\n"},
		{"bad threshold", "detect:\n  iou: 2\n"},
		{"bad level", "log:\n  level: chatty\n"},
		{"enabled fallback without url", "fallback:\n  enabled: true\n  url: \"\"\n"},
		{"no capture", "capture:\n  webcam:\n    device: \"\"\n"},
		{"bad resolution", "capture:\n  webcam:\n    resolution: 9k\n"},
		{"not yaml", "model: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMarshal_RoundTrip(t *testing.T) {
	data, err := Default().Marshal()
	require.NoError(t, err)

	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
