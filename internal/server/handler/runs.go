package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/marketlink/internal/domain"
	"github.com/alanyoungcy/marketlink/internal/matcher"
	"github.com/alanyoungcy/marketlink/internal/pipeline"
	"github.com/alanyoungcy/marketlink/internal/policy"
)

// TopicRunner triggers runs and policy passes.
type TopicRunner interface {
	Topics() []string
	Last(topic string) (*matcher.RunResult, bool)
	RunTopic(ctx context.Context, name string, dryRun bool) (*matcher.RunResult, error)
	RunPolicy(ctx context.Context, name string, opts policy.Options) ([]*policy.Report, error)
}

// RunHandler serves manual runs, policy passes and archived reports.
type RunHandler struct {
	runner  TopicRunner
	reports domain.BlobReader
	logger  *slog.Logger
}

// NewRunHandler creates a RunHandler. reports may be nil when archiving is
// disabled.
func NewRunHandler(runner TopicRunner, reports domain.BlobReader, logger *slog.Logger) *RunHandler {
	return &RunHandler{runner: runner, reports: reports, logger: logger.With(slog.String("handler", "runs"))}
}

// ListTopics returns each topic with its latest result, if any.
// GET /api/runs
func (h *RunHandler) ListTopics(w http.ResponseWriter, r *http.Request) {
	out := make([]map[string]any, 0)
	for _, name := range h.runner.Topics() {
		entry := map[string]any{"topic": name}
		if res, ok := h.runner.Last(name); ok {
			entry["last"] = res
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": out})
}

// Last returns the latest result for one topic.
// GET /api/runs/{topic}
func (h *RunHandler) Last(w http.ResponseWriter, r *http.Request) {
	res, ok := h.runner.Last(r.PathValue("topic"))
	if !ok {
		writeError(w, http.StatusNotFound, "no run recorded for topic")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Trigger runs one topic now. ?dry_run=true skips persistence.
// POST /api/runs/{topic}
func (h *RunHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	topic := r.PathValue("topic")
	res, err := h.runner.RunTopic(r.Context(), topic, queryBool(r, "dry_run"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Policy runs the auto-confirm and auto-reject passes for one topic.
// ?apply=true mutates; ?explain=true includes every predicate.
// POST /api/policy/{topic}
func (h *RunHandler) Policy(w http.ResponseWriter, r *http.Request) {
	reports, err := h.runner.RunPolicy(r.Context(), r.PathValue("topic"), policy.Options{
		Apply:   queryBool(r, "apply"),
		Explain: queryBool(r, "explain"),
		Actor:   "api:" + actor(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// ListReports lists archived run reports for a topic, optionally one day.
// GET /api/reports?topic=macro&date=2026-01-02
func (h *RunHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusNotImplemented, "report archive not configured")
		return
	}
	q := r.URL.Query()
	prefix := "reports/"
	if t := q.Get("topic"); t != "" {
		prefix += t + "/"
		if d := q.Get("date"); d != "" {
			prefix += d + "/"
		}
	}
	infos, err := h.reports.List(r.Context(), prefix)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]map[string]any, len(infos))
	for i, info := range infos {
		out[i] = map[string]any{"path": info.Path, "size": info.Size, "last_modified": info.LastModified}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": out})
}

// GetReport streams one archived report.
// GET /api/reports/{path...}
func (h *RunHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusNotImplemented, "report archive not configured")
		return
	}
	path := "reports/" + r.PathValue("path")
	if strings.Contains(path, "..") {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	body, err := h.reports.Get(r.Context(), path)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "runs: stream report", slog.String("path", path), slog.String("error", err.Error()))
	}
}

func (h *RunHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, pipeline.ErrUnknownTopic) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "runs: request failed", slog.String("error", err.Error()))
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}
