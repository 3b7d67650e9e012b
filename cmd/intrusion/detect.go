package main

import (
	"encoding/json"
	"time"

	"github.com/nvr-ai/go-intrusion/annotate"
	"github.com/nvr-ai/go-intrusion/capture"
	"github.com/nvr-ai/go-intrusion/models"
	"github.com/nvr-ai/go-intrusion/models/postprocess"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
)

// detectReport is printed by the detect command.
type detectReport struct {
	Image          string                  `json:"image"`
	Detector       string                  `json:"detector"`
	Classification models.Category         `json:"classification"`
	Latency        string                  `json:"latency"`
	Detections     []postprocess.Detection `json:"detections"`
}

func detectCommand() *cli.Command {
	return &cli.Command{
		Name:  "detect",
		Usage: "run detection on a single image and print the result as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagImage, Usage: "input image `FILE`", Required: true},
			&cli.StringFlag{Name: flagOut, Usage: "write the annotated image to `FILE` (.png, .jpg)"},
		},
		Action: runDetect,
	}
}

func runDetect(c *cli.Context) (err error) {
	cfg, logger := fromContext(c)

	img, err := capture.LoadImage(c.String(flagImage))
	if err != nil {
		return err
	}

	detector := newDetector(cfg, logger)
	defer func() {
		err = multierr.Append(err, detector.Close())
	}()
	if err := detector.Load(c.Context); err != nil {
		return err
	}

	start := time.Now()
	detections, err := detector.Detect(c.Context, img, cfg.Detect.ConfidenceThreshold, cfg.Detect.IoUThreshold)
	if err != nil {
		return errors.Wrap(err, "detecting")
	}

	report := detectReport{
		Image:          c.String(flagImage),
		Detector:       detector.Name(),
		Classification: models.Classify(postprocess.Labels(detections)),
		Latency:        time.Since(start).String(),
		Detections:     detections,
	}
	if out := c.String(flagOut); out != "" {
		if err := annotate.WriteFile(out, annotate.Draw(img, detections)); err != nil {
			return err
		}
		logger.Infow("annotated image written", "path", out)
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(report), "writing report")
}
