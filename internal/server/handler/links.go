package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketlink/internal/domain"
)

// LinkService is the suggestion-store surface the API exposes.
type LinkService interface {
	List(ctx context.Context, f domain.LinkFilter) ([]domain.Link, error)
	Get(ctx context.Context, id string) (domain.Link, error)
	Stats(ctx context.Context) (domain.LinkStats, error)
	Confirm(ctx context.Context, id, actor string) (domain.Link, error)
	Reject(ctx context.Context, id, actor string) (domain.Link, error)
}

// AuditLister reads the audit log.
type AuditLister interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// LinkView is the JSON shape of a link.
type LinkView struct {
	ID            string            `json:"id"`
	LeftVenue     string            `json:"left_venue"`
	LeftMarketID  string            `json:"left_market_id"`
	RightVenue    string            `json:"right_venue"`
	RightMarketID string            `json:"right_market_id"`
	Score         float64           `json:"score"`
	Reason        string            `json:"reason"`
	Status        string            `json:"status"`
	AlgoVersion   string            `json:"algo_version"`
	Topic         string            `json:"topic"`
	Meta          map[string]string `json:"meta,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func viewOf(l domain.Link) LinkView {
	return LinkView{
		ID:            l.ID,
		LeftVenue:     string(l.LeftVenue),
		LeftMarketID:  l.LeftMarketID,
		RightVenue:    string(l.RightVenue),
		RightMarketID: l.RightMarketID,
		Score:         l.Score,
		Reason:        l.Reason,
		Status:        string(l.Status),
		AlgoVersion:   l.AlgoVersion,
		Topic:         l.Topic,
		Meta:          l.Meta,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}

// LinkHandler serves the link review endpoints.
type LinkHandler struct {
	links  LinkService
	audit  AuditLister
	logger *slog.Logger
}

// NewLinkHandler creates a LinkHandler. audit may be nil.
func NewLinkHandler(links LinkService, audit AuditLister, logger *slog.Logger) *LinkHandler {
	return &LinkHandler{links: links, audit: audit, logger: logger.With(slog.String("handler", "links"))}
}

// List returns links filtered by status, topic, venues and score range.
// GET /api/links
func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.LinkFilter{
		Status:     domain.LinkStatus(q.Get("status")),
		Topic:      q.Get("topic"),
		LeftVenue:  domain.Venue(q.Get("left_venue")),
		RightVenue: domain.Venue(q.Get("right_venue")),
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	var err error
	if f.MinScore, err = queryFloat(r, "min_score"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid min_score")
		return
	}
	if f.MaxScore, err = queryFloat(r, "max_score"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid max_score")
		return
	}
	f.Limit, f.Offset = pagination(r)

	links, err := h.links.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, "list", err)
		return
	}
	views := make([]LinkView, len(links))
	for i, l := range links {
		views[i] = viewOf(l)
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": views, "limit": f.Limit, "offset": f.Offset})
}

// Get returns one link.
// GET /api/links/{id}
func (h *LinkHandler) Get(w http.ResponseWriter, r *http.Request) {
	l, err := h.links.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(l))
}

// Stats returns counts by status and topic.
// GET /api/links/stats
func (h *LinkHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.links.Stats(r.Context())
	if err != nil {
		h.fail(w, r, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     st.Total,
		"by_status": st.ByStatus,
		"by_topic":  st.ByTopic,
	})
}

// Confirm marks a link confirmed.
// POST /api/links/{id}/confirm
func (h *LinkHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	l, err := h.links.Confirm(r.Context(), r.PathValue("id"), actor(r))
	if err != nil {
		h.fail(w, r, "confirm", err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(l))
}

// Reject marks a link rejected.
// POST /api/links/{id}/reject
func (h *LinkHandler) Reject(w http.ResponseWriter, r *http.Request) {
	l, err := h.links.Reject(r.Context(), r.PathValue("id"), actor(r))
	if err != nil {
		h.fail(w, r, "reject", err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(l))
}

// Audit returns audit entries newest first.
// GET /api/audit
func (h *LinkHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotImplemented, "audit log not configured")
		return
	}
	limit, offset := pagination(r)
	opts := domain.ListOpts{Limit: limit, Offset: offset}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since")
			return
		}
		opts.Since = &t
	}
	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.fail(w, r, "audit", err)
		return
	}
	out := make([]map[string]any, len(entries))
	for i, e := range entries {
		out[i] = map[string]any{"id": e.ID, "event": e.Event, "detail": e.Detail, "created_at": e.CreatedAt}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *LinkHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "links: "+op+" failed", slog.String("error", err.Error()))
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}
