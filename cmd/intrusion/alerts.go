package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvr-ai/go-intrusion/alerts"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func alertsCommand() *cli.Command {
	return &cli.Command{
		Name:  "alerts",
		Usage: "print the alert feed as JSON lines",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: flagAck, Usage: "switch the alarm LED off after every intrusion"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger := fromContext(c)
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			feed := alerts.NewFeed(cfg.Alerts, logger)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return feed.Run(gctx)
			})
			g.Go(func() error {
				enc := json.NewEncoder(c.App.Writer)
				for msg := range feed.Messages() {
					if err := enc.Encode(struct {
						alerts.Message
						Sensor    string `json:"sensor"`
						Intrusion bool   `json:"intrusion"`
					}{msg, msg.Sensor(), msg.IsIntrusion()}); err != nil {
						return errors.Wrap(err, "writing message")
					}
					if c.Bool(flagAck) && msg.IsIntrusion() {
						if err := feed.Send(gctx, alerts.Command{Command: alerts.CommandLEDOff}); err != nil {
							logger.Warnw("acknowledging intrusion failed", "error", err)
						}
					}
				}
				return nil
			})
			return g.Wait()
		},
	}
}
