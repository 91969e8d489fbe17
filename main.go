package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/chaos-io/bgremove/config"
	"github.com/chaos-io/bgremove/filter"
	"github.com/chaos-io/bgremove/rembg"
	"github.com/chaos-io/bgremove/server"
	"github.com/chaos-io/bgremove/session"
	"github.com/chaos-io/bgremove/util"
	nhttp "github.com/chaos-io/bgremove/util/http"
)

type cliOptions struct {
	in, bg, out string
	settings    filter.Settings
}

func main() {
	var (
		configPath string
		opts       cliOptions
	)
	opts.settings = filter.DefaultSettings()

	flag.StringVar(&configPath, "config", "", "path to YAML config file")
	flag.StringVar(&opts.in, "in", "", "subject image (path or URL); when set, process once and exit")
	flag.StringVar(&opts.bg, "bg", "", "optional background image (path or URL)")
	flag.StringVar(&opts.out, "out", "", "output PNG path (default: output.filename from config)")
	flag.Float64Var(&opts.settings.Brightness, "brightness", 1.0, "brightness factor [0.5, 2.0]")
	flag.Float64Var(&opts.settings.Contrast, "contrast", 1.0, "contrast factor [0.5, 2.0]")
	flag.BoolVar(&opts.settings.Grayscale, "grayscale", false, "convert to grayscale")
	flag.BoolVar(&opts.settings.Blur, "blur", false, "apply gaussian blur")
	flag.BoolVar(&opts.settings.EdgeEnhance, "edge-enhance", false, "apply edge enhancement")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(cfg.Logging.NewLogger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.in != "" {
		err = runOnce(ctx, cfg, opts)
	} else {
		err = serve(ctx, cfg)
	}
	if err != nil {
		slog.Error("exit with error", "error", err)
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	remover, pinger := newRemover(cfg)
	ctrl := newController(cfg, remover)

	var prober *rembg.Prober
	if pinger != nil && cfg.Remover.Probe != "" {
		var err error
		prober, err = rembg.NewProber(pinger, cfg.Remover.Probe, cfg.Remover.Timeout)
		if err != nil {
			return fmt.Errorf("schedule extractor probe: %w", err)
		}
	}

	return server.New(cfg, ctrl, prober).Run(ctx)
}

func runOnce(ctx context.Context, cfg *config.Config, opts cliOptions) error {
	defer util.Trace("process " + opts.in)()

	if err := opts.settings.Validate(); err != nil {
		return err
	}

	remover, _ := newRemover(cfg)
	ctrl := newController(cfg, remover)
	cli := nhttp.NewHTTPClient()

	subject, err := loadAsset(ctx, cli, opts.in, ctrl.MaxUploadBytes())
	if err != nil {
		return err
	}
	var background *session.Asset
	if opts.bg != "" {
		bg, err := loadAsset(ctx, cli, opts.bg, ctrl.MaxUploadBytes())
		if err != nil {
			return err
		}
		background = &bg
	}

	res, err := ctrl.Run(ctx, subject, background, opts.settings)
	if err != nil {
		var perr *session.PipelineError
		if errors.As(err, &perr) {
			fmt.Fprintln(os.Stderr, session.Message(err))
		}
		return err
	}

	out := opts.out
	if out == "" {
		out = cfg.Output.Filename
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(out, res.PNG, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	slog.Info("Done!", "output", out, "width", res.Width, "height", res.Height)
	return nil
}

func loadAsset(ctx context.Context, cli nhttp.IClient, path string, limit int64) (session.Asset, error) {
	data, size, err := util.Load(ctx, cli, path, limit)
	if err != nil {
		return session.Asset{}, err
	}
	return session.Asset{Name: filepath.Base(path), Data: data, Size: size}, nil
}

// newRemover 按配置组装：远端推理 / 直通，外面再套复用 alpha 和并发限制
func newRemover(cfg *config.Config) (rembg.Remover, rembg.Pinger) {
	var (
		remover rembg.Remover
		pinger  rembg.Pinger
	)
	switch cfg.Remover.Backend {
	case config.BackendPassthrough:
		remover = rembg.NewDefaultRemBG()
	default:
		remote := rembg.NewRemoteRemBG(cfg.Remover.BaseURL,
			rembg.WithModel(cfg.Remover.Model),
			rembg.WithTimeout(cfg.Remover.Timeout),
			rembg.WithHealthPath(cfg.Remover.HealthPath),
		)
		remover, pinger = remote, remote
	}

	if cfg.Remover.ReuseAlpha {
		remover = rembg.NewReuseAlpha(remover)
	}
	return rembg.NewLimited(remover, cfg.Remover.Concurrency), pinger
}

func newController(cfg *config.Config, remover rembg.Remover) *session.Controller {
	return session.NewController(remover,
		session.WithMaxUploadBytes(cfg.Upload.MaxBytes),
		session.WithMaxPixels(cfg.Upload.MaxPixels),
		session.WithBackend(cfg.Remover.Backend),
	)
}
