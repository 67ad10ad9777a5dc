package kalshi

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketlink/internal/domain"
)

func TestClient_ListOpenMarketsFollowsCursor(t *testing.T) {
	var cursors []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		assert.Empty(t, r.Header.Get("KALSHI-ACCESS-SIGNATURE"))
		cursor := r.URL.Query().Get("cursor")
		cursors = append(cursors, cursor)

		resp := map[string]any{}
		if cursor == "" {
			resp["cursor"] = "page2"
			resp["markets"] = []map[string]any{{
				"ticker": "KXBTC-26DEC31-T100000", "event_ticker": "KXBTC-26DEC31",
				"title": "Bitcoin above 100k on Dec 31?", "status": "active", "category": "Crypto",
				"close_time": "2026-12-31T22:00:00Z", "strike_type": "greater", "floor_strike": 100000,
			}}
		} else {
			resp["cursor"] = ""
			resp["markets"] = []map[string]any{
				{"ticker": "FED-26DEC", "title": "Fed cut?", "status": "open", "expiration_time": "2026-12-10T19:00:00Z"},
				{"ticker": "OLD", "title": "Settled", "status": "settled"},
			}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	ms, err := NewClient(srv.URL, "", 100, 5).ListOpenMarkets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"", "page2"}, cursors)
	require.Len(t, ms, 2)

	btc := ms[0]
	assert.Equal(t, "KXBTC-26DEC31-T100000", btc.ID)
	assert.Equal(t, domain.VenueKalshi, btc.Venue)
	assert.Equal(t, "crypto", btc.Category)
	assert.Equal(t, "KXBTC-26DEC31", btc.Metadata["event_ticker"])
	assert.Equal(t, "100000", btc.Metadata["floor_strike"])
	assert.NotContains(t, btc.Metadata, "ticker")
	require.NotNil(t, btc.CloseTime)
	assert.Equal(t, time.Date(2026, 12, 31, 22, 0, 0, 0, time.UTC), *btc.CloseTime)

	require.NotNil(t, ms[1].CloseTime, "falls back to expiration time")
}

func TestClient_SignsWhenKeySet(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		_, _ = w.Write([]byte(`{"markets":[],"cursor":""}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-1", 0, 0)
	require.NoError(t, c.SetRSAPrivateKey(pemBytes))
	_, err = c.ListOpenMarkets(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "key-1", headers.Get("KALSHI-ACCESS-KEY"))
	assert.NotEmpty(t, headers.Get("KALSHI-ACCESS-SIGNATURE"))
	assert.NotEmpty(t, headers.Get("KALSHI-ACCESS-TIMESTAMP"))
}

func TestClient_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":"too_many_requests","message":"slow down"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", 0, 0).ListOpenMarkets(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Contains(t, err.Error(), "slow down")
}

func TestSetRSAPrivateKey_BadPEM(t *testing.T) {
	err := NewClient("", "", 0, 0).SetRSAPrivateKey([]byte("not a key"))
	assert.Error(t, err)
}
