package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketlink/internal/config"
	"github.com/alanyoungcy/marketlink/internal/pipeline"
)

const seedJSON = `[
  {"id": "pm-1", "venue": "polymarket", "title": "Bitcoin above $100,000 on Dec 31, 2025?", "close_time": "2025-12-31T23:00:00Z"},
  {"id": "k-1", "venue": "kalshi", "title": "BTC > $100k by end of Dec 2025", "close_time": "2025-12-31T22:00:00Z"},
  {"id": "", "venue": "kalshi", "title": "dropped, no id"}
]`

func testConfig(mode string) *config.Config {
	cfg := config.Defaults()
	cfg.Mode = mode
	cfg.Postgres.Enabled = false
	cfg.Server.Enabled = false
	return &cfg
}

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "markets.json")
	require.NoError(t, os.WriteFile(path, []byte(seedJSON), 0o600))
	return path
}

func run(t *testing.T, cfg *config.Config, opts Options) (string, error) {
	t.Helper()
	var out bytes.Buffer
	opts.Out = &out
	a := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), opts)
	defer a.Close()
	err := a.Run(context.Background())
	return out.String(), err
}

func TestMatchMode_AllTopics(t *testing.T) {
	out, err := run(t, testConfig("match"), Options{Seed: writeSeed(t), DryRun: true})
	require.NoError(t, err)
	for _, topic := range []string{"crypto", "macro", "politics"} {
		assert.Contains(t, out, topic+" run ")
	}
	assert.Contains(t, out, "(dry run)")
}

func TestMatchMode_SingleTopic(t *testing.T) {
	out, err := run(t, testConfig("match"), Options{Seed: writeSeed(t), Topic: "crypto"})
	require.NoError(t, err)
	assert.Contains(t, out, "crypto run ")
	assert.NotContains(t, out, "macro run ")
}

func TestMatchMode_UnknownTopic(t *testing.T) {
	_, err := run(t, testConfig("match"), Options{Topic: "sports"})
	assert.ErrorIs(t, err, pipeline.ErrUnknownTopic)
}

func TestPolicyMode_ReportsPerPass(t *testing.T) {
	out, err := run(t, testConfig("policy"), Options{Topic: "macro", Explain: true})
	require.NoError(t, err)

	var body struct {
		Reports []struct {
			Pass   string `json:"pass"`
			Topic  string `json:"topic"`
			DryRun bool   `json:"dry_run"`
		} `json:"reports"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	require.Len(t, body.Reports, 2)
	assert.Equal(t, "auto_confirm", body.Reports[0].Pass)
	assert.Equal(t, "auto_reject", body.Reports[1].Pass)
	assert.True(t, body.Reports[0].DryRun)
}

func TestRun_SeedFileMissing(t *testing.T) {
	_, err := run(t, testConfig("match"), Options{Seed: filepath.Join(t.TempDir(), "none.json")})
	assert.ErrorContains(t, err, "app: seed")
}

func TestRun_UnsupportedMode(t *testing.T) {
	_, err := run(t, testConfig("trade"), Options{})
	assert.ErrorContains(t, err, `unsupported mode "trade"`)
}

func TestServerMode_StopsOnCancel(t *testing.T) {
	cfg := testConfig("server")
	cfg.Server.Port = 0
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{Out: io.Discard})
	defer a.Close()
	assert.NoError(t, a.Run(ctx))
}

func TestIngestMode_ImportsBothVenues(t *testing.T) {
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"pm-9","question":"Will the Fed cut in December?","active":true,"endDate":"2026-12-10T19:00:00Z"}]`))
	}))
	defer gamma.Close()
	ks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ks.Close()

	cfg := testConfig("ingest")
	cfg.Ingest.PolymarketGammaURL = gamma.URL
	cfg.Ingest.KalshiBaseURL = ks.URL

	out, err := run(t, cfg, Options{})
	assert.ErrorIs(t, err, ErrRunFailed)
	assert.Contains(t, out, "polymarket: imported=1")
	assert.Contains(t, out, "kalshi: imported=0")
}
