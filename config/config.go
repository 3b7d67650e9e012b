// Package config loads the YAML configuration of the intrusion pipeline.
package config

import (
	"bytes"
	"os"

	"github.com/nvr-ai/go-intrusion/alerts"
	"github.com/nvr-ai/go-intrusion/capture/webcam"
	"github.com/nvr-ai/go-intrusion/cloudlog"
	"github.com/nvr-ai/go-intrusion/controller"
	"github.com/nvr-ai/go-intrusion/inference/detectors"
	"github.com/nvr-ai/go-intrusion/logging"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// FallbackConfig enables and configures the remote fallback detector.
type FallbackConfig struct {
	Enabled                bool `json:"enabled" yaml:"enabled"`
	detectors.RemoteConfig `yaml:",inline"`
}

// CaptureConfig selects the frame source. Frames takes precedence over the webcam.
type CaptureConfig struct {
	// Frames is a directory of still images replayed in frame order.
	Frames string `json:"frames" yaml:"frames"`
	// Repeat restarts the directory replay at the end.
	Repeat bool          `json:"repeat" yaml:"repeat"`
	Webcam webcam.Config `json:"webcam" yaml:"webcam"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// Config is the complete pipeline configuration.
type Config struct {
	Model    detectors.Config  `json:"model"    yaml:"model"`
	Fallback FallbackConfig    `json:"fallback" yaml:"fallback"`
	Detect   controller.Config `json:"detect"   yaml:"detect"`
	Alerts   alerts.Config     `json:"alerts"   yaml:"alerts"`
	Sink     cloudlog.Config   `json:"sink"     yaml:"sink"`
	Capture  CaptureConfig     `json:"capture"  yaml:"capture"`
	Log      LogConfig         `json:"log"      yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Model:    detectors.DefaultConfig(),
		Fallback: FallbackConfig{RemoteConfig: detectors.DefaultRemoteConfig()},
		Detect:   controller.DefaultConfig(),
		Alerts:   alerts.DefaultConfig(),
		Sink:     cloudlog.DefaultConfig(),
		Capture:  CaptureConfig{Webcam: webcam.Config{Device: "0"}},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads path, overlays it on Default and validates the result.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "loading %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, errors.Wrap(err, "decoding yaml")
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section and reports all failures together.
func (c Config) Validate() error {
	var err error
	err = multierr.Append(err, errors.Wrap(c.Model.Validate(), "model"))
	if c.Fallback.Enabled {
		err = multierr.Append(err, errors.Wrap(c.Fallback.Validate(), "fallback"))
	}
	err = multierr.Append(err, errors.Wrap(c.Detect.Validate(), "detect"))
	err = multierr.Append(err, errors.Wrap(c.Alerts.Validate(), "alerts"))
	err = multierr.Append(err, errors.Wrap(c.Sink.Validate(), "sink"))
	if c.Capture.Frames == "" && c.Capture.Webcam.Device == "" {
		err = multierr.Append(err, errors.New("capture: frames or webcam.device is required"))
	}
	if _, _, serr := c.Capture.Webcam.Size(); serr != nil {
		err = multierr.Append(err, errors.Wrap(serr, "capture"))
	}
	if _, lerr := logging.ParseLevel(c.Log.Level); lerr != nil {
		err = multierr.Append(err, errors.Wrap(lerr, "log"))
	}
	return err
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	return data, errors.Wrap(err, "encoding yaml")
}
