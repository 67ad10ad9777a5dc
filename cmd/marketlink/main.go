// Command marketlink links equivalent prediction markets across venues. It
// loads configuration, validates it, wires dependencies, sets up signal
// handling, and runs the configured mode.
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

	"github.com/alanyoungcy/marketlink/internal/app"
	"github.com/alanyoungcy/marketlink/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override mode: match, policy, server, full, ingest")
	topic := flag.String("topic", "", "limit match/policy to one topic")
	dryRun := flag.Bool("dry-run", false, "compute matches without writing suggestions")
	apply := flag.Bool("apply", false, "policy mode: apply decisions instead of reporting them")
	explain := flag.Bool("explain", false, "policy mode: include every predicate per link")
	seed := flag.String("seed", "", "JSON file of markets to import before running")
	flag.Parse()

	logger := newLogger("info")
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	logger = newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("marketlink starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger, app.Options{
		Topic:   *topic,
		DryRun:  *dryRun,
		Apply:   *apply,
		Explain: *explain,
		Seed:    *seed,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = application.Run(ctx)
	stop()
	application.Close()

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Info("marketlink stopped")
	case errors.Is(err, app.ErrRunFailed):
		logger.Error("marketlink finished with run errors")
		os.Exit(1)
	default:
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the JSON logger on stderr so stdout carries only run
// summaries and policy reports. Unknown level names mean info.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
