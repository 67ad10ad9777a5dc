// Package metrics exposes matching and policy activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/marketlink/internal/matcher"
	"github.com/alanyoungcy/marketlink/internal/policy"
)

const namespace = "marketlink"

// Recorder owns a private registry so tests can build as many as they like.
type Recorder struct {
	registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	MarketsFetched   *prometheus.GaugeVec
	Candidates       *prometheus.CounterVec
	GateFailures     *prometheus.CounterVec
	Dropped          *prometheus.CounterVec
	LinksWritten     *prometheus.CounterVec
	PersistFailures  *prometheus.CounterVec
	LastSuccess      *prometheus.GaugeVec
	PolicyDecisions  *prometheus.CounterVec
	PolicyFailures   *prometheus.CounterVec
	ServerRequests   *prometheus.CounterVec
	ServerLatency    *prometheus.HistogramVec
	WebsocketClients prometheus.Gauge
	IngestedMarkets  *prometheus.CounterVec
	IngestFailures   *prometheus.CounterVec
}

// New creates a Recorder with every collector registered, plus the Go and
// process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total",
			Help: "Matching runs by topic and outcome (ok, failed, aborted).",
		}, []string{"topic", "outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "run_duration_seconds",
			Help:    "Wall time of a matching run.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"topic"}),
		MarketsFetched: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "markets_fetched",
			Help: "Eligible markets in the latest run, by side.",
		}, []string{"topic", "side"}),
		Candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "candidates_considered_total",
			Help: "Candidate pairs scored.",
		}, []string{"topic"}),
		GateFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "gate_failures_total",
			Help: "Candidate pairs rejected by a hard gate.",
		}, []string{"topic", "gate"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pairs_dropped_total",
			Help: "Scored pairs removed by dedup and caps.",
		}, []string{"topic", "reason"}),
		LinksWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "links_written_total",
			Help: "Suggestion upserts by result (created, updated, unchanged).",
		}, []string{"topic", "result"}),
		PersistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "persist_failures_total",
			Help: "Suggestions that failed to persist.",
		}, []string{"topic"}),
		LastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_success_timestamp_seconds",
			Help: "Finish time of the last run without errors.",
		}, []string{"topic"}),
		PolicyDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "policy_applied_total",
			Help: "Links transitioned by an auto-policy pass.",
		}, []string{"topic", "pass"}),
		PolicyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "policy_failures_total",
			Help: "Auto-policy transitions that failed.",
		}, []string{"topic", "pass"}),
		ServerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP API requests by route and status class.",
		}, []string{"route", "code"}),
		ServerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP API latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		WebsocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "websocket_clients",
			Help: "Connected link-event websocket clients.",
		}),
		IngestedMarkets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ingested_markets_total",
			Help: "Market listings imported from a venue.",
		}, []string{"venue"}),
		IngestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ingest_failures_total",
			Help: "Venue listing passes that returned an error.",
		}, []string{"venue"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.RunsTotal, r.RunDuration, r.MarketsFetched, r.Candidates,
		r.GateFailures, r.Dropped, r.LinksWritten, r.PersistFailures,
		r.LastSuccess, r.PolicyDecisions, r.PolicyFailures,
		r.ServerRequests, r.ServerLatency, r.WebsocketClients,
		r.IngestedMarkets, r.IngestFailures,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveRun implements matcher.Recorder.
func (r *Recorder) ObserveRun(res *matcher.RunResult) {
	topic := res.Topic
	outcome := "ok"
	switch {
	case res.Aborted:
		outcome = "aborted"
	case res.Failed():
		outcome = "failed"
	}
	r.RunsTotal.WithLabelValues(topic, outcome).Inc()
	r.RunDuration.WithLabelValues(topic).Observe(res.Duration().Seconds())

	c := res.Counters
	r.MarketsFetched.WithLabelValues(topic, "left").Set(float64(c.LeftMarkets))
	r.MarketsFetched.WithLabelValues(topic, "right").Set(float64(c.RightMarkets))
	r.Candidates.WithLabelValues(topic).Add(float64(c.CandidatesConsidered))
	for gate, n := range c.GateFailures {
		r.GateFailures.WithLabelValues(topic, gate).Add(float64(n))
	}
	for reason, n := range c.Dropped {
		r.Dropped.WithLabelValues(topic, reason).Add(float64(n))
	}
	r.Dropped.WithLabelValues(topic, "belowMinScore").Add(float64(c.BelowMinScore))
	r.LinksWritten.WithLabelValues(topic, "created").Add(float64(c.Created))
	r.LinksWritten.WithLabelValues(topic, "updated").Add(float64(c.Updated))
	r.LinksWritten.WithLabelValues(topic, "unchanged").Add(float64(c.Unchanged))
	r.PersistFailures.WithLabelValues(topic).Add(float64(c.PersistFailures))

	if outcome == "ok" {
		r.LastSuccess.WithLabelValues(topic).Set(float64(res.FinishedAt.Unix()))
	}
}

// ObservePolicy records an auto-policy pass.
func (r *Recorder) ObservePolicy(rep *policy.Report) {
	if rep == nil || rep.Disabled {
		return
	}
	r.PolicyDecisions.WithLabelValues(rep.Topic, rep.Pass).Add(float64(rep.Applied))
	r.PolicyFailures.WithLabelValues(rep.Topic, rep.Pass).Add(float64(rep.Failed))
}

// ObserveIngest records one venue listing pass.
func (r *Recorder) ObserveIngest(venue string, imported int, err error) {
	r.IngestedMarkets.WithLabelValues(venue).Add(float64(imported))
	if err != nil {
		r.IngestFailures.WithLabelValues(venue).Inc()
	}
}

// ObserveRequest records one HTTP request.
func (r *Recorder) ObserveRequest(route string, status int, seconds float64) {
	r.ServerRequests.WithLabelValues(route, statusClass(status)).Inc()
	r.ServerLatency.WithLabelValues(route).Observe(seconds)
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
