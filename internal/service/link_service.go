package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketlink/internal/domain"
)

// LinkServiceOpts configures link lifecycle policy.
type LinkServiceOpts struct {
	// ReopenRejected lets a re-scored pair move a rejected link back to
	// suggested.
	ReopenRejected bool
}

// LinkService is the suggestion store: it owns the link lifecycle, writes
// audit entries for manual transitions and publishes link events.
type LinkService struct {
	links  domain.LinkStore
	audit  domain.AuditStore
	bus    domain.SignalBus
	opts   LinkServiceOpts
	logger *slog.Logger
}

// NewLinkService creates a LinkService. audit and bus may be nil.
func NewLinkService(
	links domain.LinkStore,
	audit domain.AuditStore,
	bus domain.SignalBus,
	opts LinkServiceOpts,
	logger *slog.Logger,
) *LinkService {
	return &LinkService{
		links:  links,
		audit:  audit,
		bus:    bus,
		opts:   opts,
		logger: logger.With(slog.String("component", "link_service")),
	}
}

func (s *LinkService) upsertOpts() domain.UpsertOpts {
	return domain.UpsertOpts{ReopenRejected: s.opts.ReopenRejected}
}

// Upsert stores one scored pair. Confirmed links come back unchanged.
func (s *LinkService) Upsert(ctx context.Context, in domain.SuggestionInput) (domain.UpsertResult, error) {
	res, err := s.links.Upsert(ctx, in, s.upsertOpts())
	if err != nil {
		return domain.UpsertResult{}, fmt.Errorf("link_service: upsert %s/%s: %w", in.LeftMarketID, in.RightMarketID, err)
	}
	if res.Created {
		s.publish(ctx, "created", res.Link)
	}
	return res, nil
}

// UpsertBatch stores one left market's suggestions as a unit. A non-nil
// error means nothing in the batch was written; per-item errors leave the
// other items intact.
func (s *LinkService) UpsertBatch(ctx context.Context, ins []domain.SuggestionInput) ([]domain.UpsertResult, []error, error) {
	if len(ins) == 0 {
		return nil, nil, nil
	}
	results, errs, err := s.links.UpsertBatch(ctx, ins, s.upsertOpts())
	if err != nil {
		return nil, nil, fmt.Errorf("link_service: upsert batch for %s: %w", ins[0].LeftMarketID, err)
	}
	for i, r := range results {
		if errs[i] == nil && r.Created {
			s.publish(ctx, "created", r.Link)
		}
	}
	return results, errs, nil
}

// Confirm marks a link confirmed. Re-scoring never touches it afterwards.
func (s *LinkService) Confirm(ctx context.Context, id, actor string) (domain.Link, error) {
	return s.transition(ctx, id, domain.LinkConfirmed, actor, nil)
}

// Reject marks a link rejected.
func (s *LinkService) Reject(ctx context.Context, id, actor string) (domain.Link, error) {
	return s.transition(ctx, id, domain.LinkRejected, actor, nil)
}

// Transition moves a link to status and records detail in the audit log.
func (s *LinkService) Transition(ctx context.Context, id string, status domain.LinkStatus, actor string, detail map[string]any) (domain.Link, error) {
	return s.transition(ctx, id, status, actor, detail)
}

func (s *LinkService) transition(ctx context.Context, id string, status domain.LinkStatus, actor string, extra map[string]any) (domain.Link, error) {
	prev, err := s.links.GetByID(ctx, id)
	if err != nil {
		return domain.Link{}, fmt.Errorf("link_service: get %s: %w", id, err)
	}
	l, err := s.links.SetStatus(ctx, id, status)
	if err != nil {
		return domain.Link{}, fmt.Errorf("link_service: set %s %s: %w", id, status, err)
	}
	if prev.Status == status {
		return l, nil
	}

	detail := map[string]any{
		"link_id":         l.ID,
		"actor":           actor,
		"previous_status": string(prev.Status),
		"status":          string(l.Status),
		"score":           l.Score,
		"topic":           l.Topic,
		"left":            string(l.LeftVenue) + ":" + l.LeftMarketID,
		"right":           string(l.RightVenue) + ":" + l.RightMarketID,
	}
	for k, v := range extra {
		detail[k] = v
	}
	if s.audit != nil {
		if err := s.audit.Log(ctx, "link."+string(status), detail); err != nil {
			s.logger.WarnContext(ctx, "link_service: audit log failed",
				slog.String("link_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	s.publish(ctx, string(status), l)

	s.logger.InfoContext(ctx, "link_service: status changed",
		slog.String("link_id", id),
		slog.String("from", string(prev.Status)),
		slog.String("to", string(status)),
		slog.String("actor", actor),
	)
	return l, nil
}

// Get returns one link.
func (s *LinkService) Get(ctx context.Context, id string) (domain.Link, error) {
	l, err := s.links.GetByID(ctx, id)
	if err != nil {
		return domain.Link{}, fmt.Errorf("link_service: get %s: %w", id, err)
	}
	return l, nil
}

// HasConfirmedLink reports whether a market is already resolved.
func (s *LinkService) HasConfirmedLink(ctx context.Context, venue domain.Venue, marketID string) (bool, error) {
	ok, err := s.links.HasConfirmedLink(ctx, venue, marketID)
	if err != nil {
		return false, fmt.Errorf("link_service: has confirmed %s: %w", marketID, err)
	}
	return ok, nil
}

// ConfirmedMarketIDs batches HasConfirmedLink over many markets.
func (s *LinkService) ConfirmedMarketIDs(ctx context.Context, venue domain.Venue, ids []string) (map[string]bool, error) {
	out, err := s.links.ConfirmedMarketIDs(ctx, venue, ids)
	if err != nil {
		return nil, fmt.Errorf("link_service: confirmed ids: %w", err)
	}
	return out, nil
}

// List returns links matching filter.
func (s *LinkService) List(ctx context.Context, f domain.LinkFilter) ([]domain.Link, error) {
	links, err := s.links.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("link_service: list: %w", err)
	}
	return links, nil
}

// Stats returns link counts.
func (s *LinkService) Stats(ctx context.Context) (domain.LinkStats, error) {
	st, err := s.links.Stats(ctx)
	if err != nil {
		return domain.LinkStats{}, fmt.Errorf("link_service: stats: %w", err)
	}
	return st, nil
}

// publish is best effort; a missing or failing bus never fails the caller.
func (s *LinkService) publish(ctx context.Context, typ string, l domain.Link) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.LinkEvent{
		Type:   typ,
		LinkID: l.ID,
		Topic:  l.Topic,
		Score:  l.Score,
		Status: string(l.Status),
		Left:   string(l.LeftVenue) + ":" + l.LeftMarketID,
		Right:  string(l.RightVenue) + ":" + l.RightMarketID,
		At:     time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.LinkEventsChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "link_service: publish failed",
			slog.String("link_id", l.ID),
			slog.String("error", err.Error()),
		)
	}
}
