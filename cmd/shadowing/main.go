// Command shadowing is the interactive listen-and-repeat trainer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lxm0851/shadowing/internal/app"
	"github.com/lxm0851/shadowing/internal/config"
	"github.com/lxm0851/shadowing/internal/logging"
	"github.com/lxm0851/shadowing/internal/observe"
	"github.com/lxm0851/shadowing/internal/state"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	folder := flag.String("folder", "", "media folder to open on startup")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "shadowing: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "shadowing: %v\n", err)
		}
		return 1
	}

	// ── State directory + logger ──────────────────────────────────────────────
	dir, err := state.Open(cfg.App.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shadowing: %v\n", err)
		return 1
	}
	logger, logCloser, err := logging.New(logging.Options{
		Dir:     dir.LogsDir(),
		Level:   string(cfg.App.LogLevel),
		Console: false,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "shadowing: %v\n", err)
		return 1
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	slog.Info("shadowing starting",
		"version", version,
		"config", *configPath,
		"data_dir", dir.Root(),
		"recognizer", cfg.Recognizer.Provider,
	)

	// ── Metrics provider ──────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(sctx); err != nil {
			slog.Warn("metrics shutdown", "err", err)
		}
	}()

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg,
		app.WithStateDir(dir),
		app.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer application.Shutdown()

	if *folder != "" {
		if err := application.OpenFolder(*folder); err != nil {
			slog.Error("failed to open folder", "folder", *folder, "err", err)
			return 1
		}
	}

	fmt.Println("shadowing ready — type 'open <folder>' then 'start'; 'quit' to exit")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("application error", "err", err)
		return 1
	}
	slog.Info("shadowing stopped")
	return 0
}
