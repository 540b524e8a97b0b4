package main

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/disintegration/imaging"
	"github.com/krau/autotone/config"
	"github.com/krau/autotone/inference"
	"github.com/krau/autotone/logging"
	"github.com/krau/autotone/model"
	"github.com/krau/autotone/onnx"
	"github.com/krau/autotone/preprocess"
	"github.com/krau/autotone/server"
	"github.com/krau/autotone/service"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

var configPath string

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Serve the recommendation API over HTTP",
	Action: func(c *cli.Context) error {
		ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		cfg := config.C()
		logger := logging.New(cfg.LogLevel, cfg.LogFormat)
		logger.Info().Msg("starting autotone")

		mgr, shutdown, err := setup(cfg, logger)
		if err != nil {
			return err
		}
		defer shutdown()

		// the server answers 503 until the model is ready
		go func() { _ = mgr.Load(ctx) }()

		rec := service.New(mgr, inference.New(logger), logger)
		defer rec.Close()
		return server.New(rec, cfg, logger).Run(ctx, cfg.Addr())
	},
}

var (
	applyFlag bool
	outPath   string
)

var recommendCommand = &cli.Command{
	Name:      "recommend",
	Usage:     "Recommend an adjustment for a single image",
	ArgsUsage: "[image]  (read from stdin when omitted)",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:        "apply",
			Usage:       "Print the CSS filter for the recommended adjustment",
			Aliases:     []string{"a"},
			Destination: &applyFlag,
		},
		&cli.StringFlag{
			Name:        "out",
			Usage:       "Write the adjusted image to this path",
			Aliases:     []string{"o"},
			Destination: &outPath,
		},
	},
	Action: func(c *cli.Context) error {
		ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		cfg := config.C()
		logger := logging.New(cfg.LogLevel, cfg.LogFormat)

		img, format, err := readImage(c.Args().First())
		if err != nil {
			return err
		}

		mgr, shutdown, err := setup(cfg, logger)
		if err != nil {
			return err
		}
		defer shutdown()
		if err := mgr.Load(ctx); err != nil {
			return errors.New(service.Message(err))
		}

		rec := service.New(mgr, inference.New(logger), logger)
		res, err := rec.Analyze(ctx, "", img, format)
		if err != nil {
			return errors.New(service.Message(err))
		}
		fmt.Fprintln(c.App.Writer, res.Text)

		if !applyFlag && outPath == "" {
			return nil
		}
		adj, err := rec.Adjust(ctx, res.SessionID)
		if err != nil {
			return errors.New(service.Message(err))
		}
		if applyFlag {
			fmt.Fprintf(c.App.Writer, "filter: %s\n", adj.Filter)
		}
		if outPath != "" {
			out, err := rec.Render(res.SessionID)
			if err != nil {
				return err
			}
			if err := imaging.Save(out, outPath); err != nil {
				return fmt.Errorf("failed to write %s: %w", outPath, err)
			}
			logger.Info().Str("path", outPath).Msg("adjusted image written")
		}
		return nil
	},
}

// setup initializes the ONNX Runtime environment and an unloaded model
// manager. The returned func releases both.
func setup(cfg config.Config, logger zerolog.Logger) (*model.Manager, func(), error) {
	if err := onnx.Init(cfg.Libonnx, logger); err != nil {
		return nil, nil, err
	}
	loader := model.NewArtifactLoader(model.ArtifactConfig{
		URL:      cfg.ModelURL,
		Dir:      cfg.ModelDir,
		FileName: cfg.ModelFileName,
		MetaName: cfg.ModelMetaName,
	}, onnx.Opener{Workers: cfg.Workers, Logger: logger}, logger)
	mgr := model.New(loader, logger)
	return mgr, func() {
		if err := mgr.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close model")
		}
		onnx.Destroy()
	}, nil
}

func readImage(path string) (image.Image, string, error) {
	var r io.Reader
	switch {
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		r = f
	case !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()):
		r = os.Stdin
	default:
		return nil, "", errors.New("no image given: pass a path or pipe the image on stdin")
	}
	img, format, err := preprocess.Decode(r)
	if err != nil {
		return nil, "", errors.New(service.Message(err))
	}
	return img, format, nil
}

func main() {
	app := &cli.App{
		Name:  "autotone",
		Usage: "Recommend a photo adjustment with an ONNX image classifier",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Path to a .toml, .yaml or .json config file",
				Aliases:     []string{"c"},
				EnvVars:     []string{"AUTOTONE_CONFIG"},
				Destination: &configPath,
			},
		},
		Before: func(c *cli.Context) error {
			if configPath == "" {
				return nil
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			config.Set(cfg)
			return nil
		},
		Commands: []*cli.Command{serveCommand, recommendCommand},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
