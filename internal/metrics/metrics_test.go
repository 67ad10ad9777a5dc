package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketlink/internal/matcher"
	"github.com/alanyoungcy/marketlink/internal/policy"
)

func TestObserveRun(t *testing.T) {
	r := New()
	start := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)

	r.ObserveRun(&matcher.RunResult{
		Topic:      "macro",
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
		Counters: matcher.Counters{
			LeftMarkets:          10,
			RightMarkets:         20,
			CandidatesConsidered: 7,
			GateFailures:         map[string]int{"period": 3},
			Dropped:              map[string]int{"rightCap": 2},
			Created:              4,
		},
	})
	r.ObserveRun(&matcher.RunResult{Topic: "macro", Aborted: true, Errors: []string{"fetch"}})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.RunsTotal.WithLabelValues("macro", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RunsTotal.WithLabelValues("macro", "aborted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.GateFailures.WithLabelValues("macro", "period")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Dropped.WithLabelValues("macro", "rightCap")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.LinksWritten.WithLabelValues("macro", "created")))
	assert.Equal(t, 20.0, testutil.ToFloat64(r.MarketsFetched.WithLabelValues("macro", "right")))
	assert.Equal(t, float64(start.Add(2*time.Second).Unix()), testutil.ToFloat64(r.LastSuccess.WithLabelValues("macro")))
}

func TestObservePolicyAndHandler(t *testing.T) {
	r := New()
	r.ObservePolicy(&policy.Report{Pass: policy.PassConfirm, Topic: "crypto", Applied: 2, Failed: 1})
	r.ObservePolicy(&policy.Report{Pass: policy.PassReject, Topic: "crypto", Disabled: true, Applied: 9})
	r.ObserveRequest("GET /api/links", http.StatusNotFound, 0.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.PolicyDecisions.WithLabelValues("crypto", policy.PassConfirm)))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.PolicyDecisions.WithLabelValues("crypto", policy.PassReject)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ServerRequests.WithLabelValues("GET /api/links", "4xx")))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "marketlink_policy_applied_total")
}

func TestObserveIngest(t *testing.T) {
	r := New()
	r.ObserveIngest("kalshi", 40, nil)
	r.ObserveIngest("kalshi", 5, errors.New("HTTP 502"))

	assert.Equal(t, 45.0, testutil.ToFloat64(r.IngestedMarkets.WithLabelValues("kalshi")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.IngestFailures.WithLabelValues("kalshi")))
}
