// Package app provides the top-level application lifecycle for marketlink. It
// wires the stores, coordination backends, report archive and notifications,
// builds the matching services on top, and runs the configured mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alanyoungcy/marketlink/internal/config"
	"github.com/alanyoungcy/marketlink/internal/matcher"
	"github.com/alanyoungcy/marketlink/internal/pipeline"
	"github.com/alanyoungcy/marketlink/internal/platform/kalshi"
	"github.com/alanyoungcy/marketlink/internal/platform/polymarket"
	"github.com/alanyoungcy/marketlink/internal/policy"
	"github.com/alanyoungcy/marketlink/internal/service"
)

// ErrRunFailed is returned by the one-shot modes when any run or policy pass
// finished with errors. The command exits non-zero on it.
var ErrRunFailed = errors.New("run finished with errors")

// Options carries the command-line switches that refine a mode.
type Options struct {
	Topic   string // empty means every enabled topic
	DryRun  bool
	Apply   bool
	Explain bool
	Seed    string    // optional JSON file of markets imported before the mode runs
	Out     io.Writer // one-shot mode output; defaults to stdout
}

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	opts    Options
	logger  *slog.Logger
	closers []func()
}

// services are the domain components built over the wired dependencies.
type services struct {
	markets   *service.MarketService
	links     *service.LinkService
	scheduler *pipeline.Scheduler
	ingester  *pipeline.Ingester
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger, opts Options) *App {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &App{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode and blocks until the mode finishes or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "app: starting",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)
	a.logger.DebugContext(ctx, "app: configuration", slog.Any("config", config.RedactedConfig(a.cfg)))

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	svc, err := a.build(deps)
	if err != nil {
		return fmt.Errorf("app: build services: %w", err)
	}

	if a.opts.Seed != "" {
		if err := a.seed(ctx, svc.markets); err != nil {
			return err
		}
	}

	switch strings.ToLower(a.cfg.Mode) {
	case "match":
		return a.MatchMode(ctx, svc)
	case "policy":
		return a.PolicyMode(ctx, svc)
	case "server":
		return a.ServerMode(ctx, deps, svc)
	case "full":
		return a.FullMode(ctx, deps, svc)
	case "ingest":
		return a.IngestMode(ctx, svc)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

func (a *App) build(deps *Dependencies) (*services, error) {
	markets := service.NewMarketService(deps.Markets, a.logger)
	links := service.NewLinkService(deps.Links, deps.Audit, deps.Bus,
		service.LinkServiceOpts{ReopenRejected: a.cfg.Matching.ReopenRejected}, a.logger)

	engineOpts := []matcher.Option{matcher.WithRecorder(deps.Metrics)}
	if deps.ReportWriter != nil {
		engineOpts = append(engineOpts, matcher.WithArchive(deps.ReportWriter))
	}
	if deps.Notifier.Enabled() {
		engineOpts = append(engineOpts, matcher.WithAlerter(deps.Notifier))
	}
	engine := matcher.NewEngine(markets, links, a.logger, engineOpts...)
	pol := policy.NewEngine(links, a.logger)

	topics, err := a.cfg.PipelineTopics()
	if err != nil {
		return nil, err
	}
	sched := pipeline.NewScheduler(engine, pol, deps.Locks, topics, pipeline.Options{
		LockTTL:  a.cfg.Matching.LockTTL.Duration,
		Recorder: deps.Metrics,
	}, a.logger)

	ingester, err := a.newIngester(markets, deps)
	if err != nil {
		return nil, err
	}

	return &services{markets: markets, links: links, scheduler: sched, ingester: ingester}, nil
}

// newIngester builds the venue listing refresh over the configured REST
// clients.
func (a *App) newIngester(markets *service.MarketService, deps *Dependencies) (*pipeline.Ingester, error) {
	ic := a.cfg.Ingest
	gamma := polymarket.NewGammaClient(ic.PolymarketGammaURL, ic.PageSize, ic.MaxPages)
	ks := kalshi.NewClient(ic.KalshiBaseURL, ic.KalshiKeyID, ic.PageSize, ic.MaxPages)
	if ic.KalshiPrivateKeyPath != "" {
		pemBytes, err := os.ReadFile(ic.KalshiPrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("ingest: read kalshi key: %w", err)
		}
		if err := ks.SetRSAPrivateKey(pemBytes); err != nil {
			return nil, err
		}
	}
	return pipeline.NewIngester(
		[]pipeline.MarketFetcher{gamma, ks},
		markets,
		ic.Interval.Duration,
		deps.Metrics,
		a.logger,
	), nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("app: shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
