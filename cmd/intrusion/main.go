// Package main is the intrusion detection command line.
package main

import (
	"fmt"
	"os"

	"github.com/nvr-ai/go-intrusion/config"
	"github.com/nvr-ai/go-intrusion/inference"
	"github.com/nvr-ai/go-intrusion/inference/detectors"
	"github.com/nvr-ai/go-intrusion/inference/providers"
	"github.com/nvr-ai/go-intrusion/logging"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	// Global flags.
	flagConfig      = "config"
	flagLogLevel    = "log-level"
	flagModel       = "model"
	flagEngine      = "engine"
	flagBackend     = "backend"
	flagConfidence  = "confidence"
	flagIoU         = "iou"
	flagFallbackURL = "fallback-url"
	flagAlertsURL   = "alerts-url"
	flagSinkURL     = "sink-url"

	// Command flags.
	flagImage       = "image"
	flagOut         = "out"
	flagFrames      = "frames"
	flagDevice      = "device"
	flagAutoAck     = "auto-ack"
	flagMaxFrameAge = "max-frame-age"
	flagAck         = "ack"
)

func main() {
	var logger *zap.SugaredLogger

	app := &cli.App{
		Name:  "intrusion",
		Usage: "detect people and animals behind sensor intrusion alerts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{Name: flagLogLevel, Usage: "log level (debug, info, warn, error)"},
			&cli.StringFlag{Name: flagModel, Usage: "path to the YOLOv8 ONNX `FILE`"},
			&cli.StringFlag{Name: flagEngine, Usage: "numerical engine (onnx, opencv)"},
			&cli.StringFlag{Name: flagBackend, Usage: "ONNX Runtime execution provider (cpu, coreml, openvino, cuda)"},
			&cli.Float64Flag{Name: flagConfidence, Usage: "confidence threshold"},
			&cli.Float64Flag{Name: flagIoU, Usage: "NMS IoU threshold"},
			&cli.StringFlag{Name: flagFallbackURL, Usage: "enable the remote fallback detector at `URL`"},
			&cli.StringFlag{Name: flagAlertsURL, Usage: "alert feed WebSocket `URL`"},
			&cli.StringFlag{Name: flagSinkURL, Usage: "alert logging webhook `URL`"},
		},
		Before: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger, err = logging.NewLogger("intrusion", cfg.Log.Level)
			if err != nil {
				return err
			}
			c.App.Metadata = map[string]interface{}{"config": cfg, "logger": logger}
			return nil
		},
		After: func(c *cli.Context) error {
			if logger != nil {
				_ = logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			detectCommand(),
			watchCommand(),
			alertsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads --config (or the defaults) and applies flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}

	if c.IsSet(flagLogLevel) {
		cfg.Log.Level = c.String(flagLogLevel)
	}
	if c.IsSet(flagModel) {
		cfg.Model.ModelPath = c.String(flagModel)
	}
	if c.IsSet(flagEngine) {
		cfg.Model.Engine = inference.EngineType(c.String(flagEngine))
	}
	if c.IsSet(flagBackend) {
		cfg.Model.Session.Backend = providers.ProviderBackend(c.String(flagBackend))
	}
	if c.IsSet(flagConfidence) {
		cfg.Detect.ConfidenceThreshold = float32(c.Float64(flagConfidence))
	}
	if c.IsSet(flagIoU) {
		cfg.Detect.IoUThreshold = float32(c.Float64(flagIoU))
	}
	if c.IsSet(flagFallbackURL) {
		cfg.Fallback.Enabled = true
		cfg.Fallback.URL = c.String(flagFallbackURL)
		cfg.Fallback.PingURL = ""
	}
	if c.IsSet(flagAlertsURL) {
		cfg.Alerts.URL = c.String(flagAlertsURL)
	}
	if c.IsSet(flagSinkURL) {
		cfg.Sink.URL = c.String(flagSinkURL)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func fromContext(c *cli.Context) (config.Config, *zap.SugaredLogger) {
	return c.App.Metadata["config"].(config.Config), c.App.Metadata["logger"].(*zap.SugaredLogger)
}

// newDetector wires the primary YOLO detector behind the fallback state machine.
func newDetector(cfg config.Config, logger *zap.SugaredLogger) *detectors.Fallback {
	primary := detectors.NewYOLO(cfg.Model, logger)
	var fallback inference.Detector
	if cfg.Fallback.Enabled {
		fallback = detectors.NewRemote(cfg.Fallback.RemoteConfig, logger)
	}
	return detectors.NewFallback(primary, fallback, logger)
}
