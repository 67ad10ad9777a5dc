package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketlink/internal/domain"
	"github.com/alanyoungcy/marketlink/internal/matcher"
	"github.com/alanyoungcy/marketlink/internal/pipeline"
	"github.com/alanyoungcy/marketlink/internal/policy"
	"github.com/alanyoungcy/marketlink/internal/server"
	"github.com/alanyoungcy/marketlink/internal/server/handler"
	"github.com/alanyoungcy/marketlink/internal/server/ws"
	"github.com/alanyoungcy/marketlink/internal/service"
)

// MatchMode runs the selected topic, or every topic, once and prints a
// summary line per run. Scheduled policy passes follow each clean run as
// configured per topic.
func (a *App) MatchMode(ctx context.Context, svc *services) error {
	var (
		results []*matcher.RunResult
		err     error
	)
	if a.opts.Topic != "" {
		var res *matcher.RunResult
		res, err = svc.scheduler.RunTopic(ctx, a.opts.Topic, a.opts.DryRun)
		if res != nil {
			results = append(results, res)
		}
	} else {
		results, err = svc.scheduler.RunAll(ctx, a.opts.DryRun)
	}

	failed := false
	for _, res := range results {
		fmt.Fprintln(a.opts.Out, pipeline.Summary(res))
		for _, e := range res.Errors {
			fmt.Fprintf(a.opts.Out, "  error: %s\n", e)
		}
		failed = failed || res.Failed()
	}
	if err != nil {
		return fmt.Errorf("app: match: %w", err)
	}
	if failed {
		return ErrRunFailed
	}
	return nil
}

// PolicyMode runs the auto-confirm and auto-reject passes and prints the
// reports as JSON. Nothing is mutated without Apply.
func (a *App) PolicyMode(ctx context.Context, svc *services) error {
	topics := svc.scheduler.Topics()
	if a.opts.Topic != "" {
		topics = []string{a.opts.Topic}
	}
	opts := policy.Options{Apply: a.opts.Apply, Explain: a.opts.Explain, Actor: "cli"}

	var all []*policy.Report
	var errs []error
	for _, name := range topics {
		reports, err := svc.scheduler.RunPolicy(ctx, name, opts)
		all = append(all, reports...)
		if err != nil {
			errs = append(errs, err)
		}
	}

	enc := json.NewEncoder(a.opts.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{"reports": all}); err != nil {
		return fmt.Errorf("app: policy: write report: %w", err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("app: policy: %w", err)
	}
	for _, r := range all {
		if r != nil && r.Failed > 0 {
			return ErrRunFailed
		}
	}
	return nil
}

// IngestMode refreshes the market store from both venues once and prints
// the imported count per venue.
func (a *App) IngestMode(ctx context.Context, svc *services) error {
	counts, err := svc.ingester.RunOnce(ctx)
	for _, v := range []domain.Venue{domain.VenuePolymarket, domain.VenueKalshi} {
		if n, ok := counts[v]; ok {
			fmt.Fprintf(a.opts.Out, "%s: imported=%d\n", v, n)
		}
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "app: ingest finished with errors", slog.String("error", err.Error()))
		return ErrRunFailed
	}
	return nil
}

// ServerMode serves the API and the link event stream until ctx is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies, svc *services) error {
	a.logger.InfoContext(ctx, "app: starting server mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, svc)
	return g.Wait()
}

// FullMode runs the scheduler alongside the API server, and the listing
// refresh when ingest is enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies, svc *services) error {
	a.logger.InfoContext(ctx, "app: starting full mode")
	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.Ingest.Enabled {
		g.Go(func() error {
			return svc.ingester.Start(ctx)
		})
	}
	g.Go(func() error {
		return svc.scheduler.Start(ctx)
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svc)
	}
	return g.Wait()
}

// startHTTPServer adds the websocket hub and the HTTP server to g. The server
// is shut down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *services) {
	hub := ws.NewHub(deps.Bus, deps.Metrics.WebsocketClients, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.New(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks),
		Links:   handler.NewLinkHandler(svc.links, deps.Audit, a.logger),
		Runs:    handler.NewRunHandler(svc.scheduler, deps.ReportReader, a.logger),
		Metrics: deps.Metrics.Handler(),
	}, hub, deps.Metrics, deps.Limiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// seedMarket is the JSON shape of one entry in a seed file.
type seedMarket struct {
	ID        string            `json:"id"`
	Venue     string            `json:"venue"`
	Title     string            `json:"title"`
	Category  string            `json:"category"`
	CloseTime *time.Time        `json:"close_time"`
	Metadata  map[string]string `json:"metadata"`
}

// seed imports the markets listed in the Seed file.
func (a *App) seed(ctx context.Context, markets *service.MarketService) error {
	raw, err := os.ReadFile(a.opts.Seed)
	if err != nil {
		return fmt.Errorf("app: seed: %w", err)
	}
	var entries []seedMarket
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("app: seed %s: %w", a.opts.Seed, err)
	}
	ms := make([]domain.EligibleMarket, len(entries))
	for i, e := range entries {
		ms[i] = domain.EligibleMarket{
			ID:        e.ID,
			Venue:     domain.Venue(e.Venue),
			Title:     e.Title,
			Category:  e.Category,
			CloseTime: e.CloseTime,
			Metadata:  e.Metadata,
		}
	}
	n, err := markets.Import(ctx, ms)
	if err != nil {
		return fmt.Errorf("app: seed: %w", err)
	}
	a.logger.InfoContext(ctx, "app: seeded markets", slog.String("file", a.opts.Seed), slog.Int("markets", n))
	return nil
}
