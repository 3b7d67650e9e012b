package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nvr-ai/go-intrusion/alerts"
	"github.com/nvr-ai/go-intrusion/capture"
	"github.com/nvr-ai/go-intrusion/capture/webcam"
	"github.com/nvr-ai/go-intrusion/cloudlog"
	"github.com/nvr-ai/go-intrusion/config"
	"github.com/nvr-ai/go-intrusion/controller"
	"github.com/nvr-ai/go-intrusion/monitor"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "run the camera loop and log every intrusion alert with its detections",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagFrames, Usage: "replay images from `DIR` instead of the camera"},
			&cli.StringFlag{Name: flagDevice, Usage: "camera device index or stream URL"},
			&cli.BoolFlag{Name: flagAutoAck, Usage: "switch the alarm LED off after logging an intrusion"},
			&cli.DurationFlag{
				Name:  flagMaxFrameAge,
				Value: 2 * time.Second,
				Usage: "ignore detections older than this when an alert arrives",
			},
		},
		Action: runWatch,
	}
}

func openSource(cfg config.CaptureConfig) (controller.FrameSource, error) {
	if cfg.Frames != "" {
		return capture.NewDirectorySource(cfg.Frames, cfg.Repeat)
	}
	return webcam.Open(cfg.Webcam)
}

func runWatch(c *cli.Context) (err error) {
	cfg, logger := fromContext(c)
	if c.IsSet(flagFrames) {
		cfg.Capture.Frames = c.String(flagFrames)
	}
	if c.IsSet(flagDevice) {
		cfg.Capture.Frames = ""
		cfg.Capture.Webcam.Device = c.String(flagDevice)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	detector := newDetector(cfg, logger)
	defer func() {
		err = multierr.Append(err, detector.Close())
	}()
	if err := detector.Load(ctx); err != nil {
		return err
	}

	source, err := openSource(cfg.Capture)
	if err != nil {
		return err
	}

	feed := alerts.NewFeed(cfg.Alerts, logger)
	sink := cloudlog.NewClient(cfg.Sink, logger)
	if !sink.Enabled() {
		logger.Warnw("alert logging webhook not configured, records are only logged locally")
	}
	mon := monitor.New(sink, monitor.Config{
		MaxFrameAge:     c.Duration(flagMaxFrameAge),
		SnapshotQuality: sink.SnapshotQuality(),
		AutoAck:         c.Bool(flagAutoAck),
	}, logger, monitor.WithCommander(feed))

	loop := controller.NewLoop(detector, source, mon.Observe, cfg.Detect, logger)

	logger.Infow("watching", "detector", detector.Name(), "alerts", cfg.Alerts.URL)
	return runPipeline(ctx, loop, feed, mon, logger)
}

// runPipeline runs the alert feed, the monitor and the detection loop until
// ctx ends or one of them fails. A loop whose frame source runs out ends the
// whole pipeline.
func runPipeline(
	ctx context.Context,
	loop *controller.Loop,
	feed *alerts.Feed,
	mon *monitor.Monitor,
	logger *zap.SugaredLogger,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return feed.Run(gctx)
	})
	g.Go(func() error {
		return mon.Run(gctx, feed.Messages())
	})
	g.Go(func() error {
		if err := loop.Start(gctx); err != nil {
			return err
		}
		select {
		case <-loop.Done():
			if loop.Err() == nil && gctx.Err() == nil {
				logger.Infow("frame source finished, stopping watch")
			}
			cancel()
		case <-gctx.Done():
		}
		stopErr := loop.Stop()
		stats := loop.Stats()
		logger.Infow("detection loop stopped", "frames", stats.Frames, "skipped", stats.Skipped, "fps", stats.FPS)
		return multierr.Append(loop.Err(), stopErr)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
