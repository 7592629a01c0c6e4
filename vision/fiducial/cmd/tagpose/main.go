// Package main plays recorded tag detections against images and prints the estimated tag poses.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	goutils "go.viam.com/utils"

	"go.viam.com/fiducial/logging"
	"go.viam.com/fiducial/vision/fiducial"
	"go.viam.com/fiducial/vision/fiducial/replay"
)

const (
	flagConfig    = "config"
	flagRecording = "recording"
	flagProfile   = "profile"
	flagDebug     = "debug"
	flagOut       = "out"
	flagLogFile   = "log-file"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	var (
		logger    logging.Logger
		logCloser io.Closer
	)

	return &cli.App{
		Name:  "tagpose",
		Usage: "estimate fiducial tag poses",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.PathFlag{
				Name:  flagLogFile,
				Usage: "also write JSON logs to `FILE`, rotated as it grows",
			},
		},
		Before: func(c *cli.Context) error {
			level := zapcore.InfoLevel
			if c.Bool(flagDebug) {
				level = zapcore.DebugLevel
			}
			switch {
			case c.Path(flagLogFile) != "":
				logger, logCloser = logging.NewFileLogger("tagpose", c.Path(flagLogFile), level)
			case level == zapcore.DebugLevel:
				logger = logging.NewDebugLogger("tagpose")
			default:
				logger = logging.NewLogger("tagpose")
			}
			logging.ReplaceGlobal(logger)
			return nil
		},
		After: func(c *cli.Context) error {
			if logger == nil {
				return nil
			}
			goutils.UncheckedError(logger.Sync())
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "detect",
				Usage:     "estimate the pose of every recorded tag in each image",
				ArgsUsage: "IMAGE...",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     flagConfig,
						Aliases:  []string{"c"},
						Usage:    "load the pipeline configuration from `FILE`",
						Required: true,
					},
					&cli.PathFlag{
						Name:     flagRecording,
						Aliases:  []string{"r"},
						Usage:    "play detector output from `FILE`",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  flagProfile,
						Usage: "print detector stage timings",
					},
				},
				Action: func(c *cli.Context) error {
					return detectAction(c, logger)
				},
			},
			{
				Name:      "synthesize",
				Usage:     "write a recording of tags seen by a perfect detector",
				ArgsUsage: "ID:X,Y,Z[:THETA,RX,RY,RZ]... (camera frame, theta in degrees)",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     flagConfig,
						Aliases:  []string{"c"},
						Usage:    "load the pipeline configuration from `FILE`",
						Required: true,
					},
					&cli.PathFlag{
						Name:     flagOut,
						Aliases:  []string{"o"},
						Usage:    "write the recording to `FILE`",
						Required: true,
					},
				},
				Action: synthesizeAction,
			},
		},
	}
}

func detectAction(c *cli.Context, logger logging.Logger) (err error) {
	if c.NArg() == 0 {
		return errors.New("no images given")
	}
	conf, err := fiducial.ReadConfig(c.Path(flagConfig))
	if err != nil {
		return err
	}
	if err := conf.Camera.Validate("camera"); err != nil {
		return err
	}
	rec, err := replay.ReadRecording(c.Path(flagRecording))
	if err != nil {
		return err
	}
	m, err := fiducial.NewManager(replay.NewBackend(rec), conf, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, m.Close())
	}()

	paths := c.Args().Slice()
	imgs, err := loadImages(c.Context, paths, conf.Width, conf.Height, logger)
	if err != nil {
		return err
	}
	params := conf.CameraParameters()
	for i, path := range paths {
		rs, err := m.ProcessImage(c.Context, imgs[i], params)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s (frame %d)\n%s\n", path, rs.Frame(), posesTable(rs))
		if c.Bool(flagProfile) {
			fmt.Fprintln(c.App.Writer, intervalsTable(m.Profile()))
		}
	}
	if c.Bool(flagProfile) {
		if summary := m.ProfileSummary(); summary != nil {
			stages, err := summary.Stages()
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, summaryTable(stages))
		}
	}
	stats := m.Stats()
	logger.Infow("done",
		"frames", stats.Frames,
		"detection_failures", stats.DetectionFailures,
		"discarded", stats.Discarded,
		"non_converged", stats.NonConverged)
	return nil
}

func synthesizeAction(c *cli.Context) error {
	conf, err := fiducial.ReadConfig(c.Path(flagConfig))
	if err != nil {
		return err
	}
	if err := conf.Camera.Validate("camera"); err != nil {
		return err
	}
	if c.NArg() == 0 {
		return errors.New("no tags given")
	}
	params := conf.CameraParameters()
	var frame replay.Frame
	for _, spec := range c.Args().Slice() {
		id, pose, err := parseTag(spec)
		if err != nil {
			return err
		}
		det, err := fiducial.SynthesizeDetection(id, pose, params)
		if err != nil {
			return err
		}
		det.Family = conf.Family
		frame.Detections = append(frame.Detections, det)
	}
	return replay.WriteRecording(c.Path(flagOut), &replay.Recording{
		Family: conf.Family,
		Width:  conf.Width,
		Height: conf.Height,
		Frames: []replay.Frame{frame},
		Loop:   true,
	})
}
