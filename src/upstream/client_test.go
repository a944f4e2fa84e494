package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deribit-gateway/src/cache"
	"deribit-gateway/src/config"
	"deribit-gateway/src/limiter"
	"deribit-gateway/src/logger"
	"deribit-gateway/src/models"
)

func newTestClient(t *testing.T, handler http.Handler, retries int, clientID, clientSecret string) *Client {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	cfg := &config.Config{MConfig: &models.MConfig{
		Upstream: models.MUpstreamConfig{
			BaseURL:        ts.URL,
			RequestTimeout: 5,
			MaxRetries:     retries,
			ClientID:       clientID,
			ClientSecret:   clientSecret,
		},
	}}
	log := logger.NewLogger("error", "upstream-test")
	lim := limiter.NewLimiter(100, 100, 2*time.Second)
	ttl := cache.NewTTLCache(10*time.Second, 300*time.Second, 128)
	return NewClient(cfg, lim, ttl, log)
}

// -----------------------------------------------------------------------------

func TestCallRetriesTransientFailure(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"result": 42}`)
	}), 2, "", "")

	raw, err := c.CallPublic(context.Background(), "public/get_time", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `42`, string(raw))
	assert.Equal(t, int32(2), hits.Load())
}

func TestCallStopsOnPermanentFailure(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"error": {"code": 11044, "message": "not_open_order"}}`)
	}), 3, "", "")

	_, err := c.CallPublic(context.Background(), "public/ticker", map[string]string{"instrument_name": "nope"})
	require.Error(t, err)
	ue := AsError(err)
	assert.Equal(t, KindBadRequest, ue.Kind)
	assert.Equal(t, 11044, ue.Code)
	// Permanent failures never retry.
	assert.Equal(t, int32(1), hits.Load())
}

func TestCallExhaustsRetryBudget(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}), 1, "", "")

	_, err := c.CallPublic(context.Background(), "public/get_time", nil)
	require.Error(t, err)
	assert.Equal(t, KindUnavailable, AsError(err).Kind)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCallCachedSharesUpstreamResult(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"result": {"index_price": 50000}}`)
	}), 0, "", "")

	for i := 0; i < 3; i++ {
		spot, err := c.GetIndexPrice(context.Background(), "BTC")
		require.NoError(t, err)
		assert.Equal(t, 50000.0, spot)
	}
	assert.Equal(t, int32(1), hits.Load())

	stats := c.GetCacheStats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestPrivateCallAttachesBearerToken(t *testing.T) {
	var sawAuth atomic.Bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/public/auth":
			assert.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))
			fmt.Fprint(w, `{"result": {"access_token": "tok-123", "expires_in": 900}}`)
		case "/private/get_account_summary":
			if r.Header.Get("Authorization") == "Bearer tok-123" {
				sawAuth.Store(true)
			}
			fmt.Fprint(w, `{"result": {"equity": 1.5, "available_funds": 1.0, "margin_balance": 1.2}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c := newTestClient(t, handler, 0, "id", "secret")

	summary, err := c.GetAccountSummary(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, sawAuth.Load())
	assert.Equal(t, 1.5, summary.Equity)
}

func TestPrivateCallRefreshesExpiredToken(t *testing.T) {
	var authFetches, privateHits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/public/auth":
			n := authFetches.Add(1)
			fmt.Fprintf(w, `{"result": {"access_token": "tok-%d", "expires_in": 900}}`, n)
		case "/private/get_positions":
			privateHits.Add(1)
			if r.Header.Get("Authorization") != "Bearer tok-2" {
				// The first token is treated as revoked upstream.
				fmt.Fprint(w, `{"error": {"code": 13009, "message": "invalid_token"}}`)
				return
			}
			fmt.Fprint(w, `{"result": []}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c := newTestClient(t, handler, 0, "id", "secret")

	raw, err := c.CallPrivate(context.Background(), "private/get_positions", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
	assert.Equal(t, int32(2), authFetches.Load())
	assert.Equal(t, int32(2), privateHits.Load())
}

func TestPrivateCallRefreshesOnlyOnce(t *testing.T) {
	var authFetches, privateHits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/public/auth":
			n := authFetches.Add(1)
			fmt.Fprintf(w, `{"result": {"access_token": "tok-%d", "expires_in": 900}}`, n)
		case "/private/get_positions":
			privateHits.Add(1)
			fmt.Fprint(w, `{"error": {"code": 13009, "message": "invalid_token"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c := newTestClient(t, handler, 3, "id", "secret")

	_, err := c.CallPrivate(context.Background(), "private/get_positions", nil)
	require.Error(t, err)
	assert.Equal(t, KindAuthFailed, AsError(err).Kind)
	// The second auth failure surfaces without another refresh cycle.
	assert.Equal(t, int32(2), authFetches.Load())
	assert.Equal(t, int32(2), privateHits.Load())
}

func TestPrivateCallWithoutCredentials(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without credentials")
	}), 0, "", "")

	_, err := c.CallPrivate(context.Background(), "private/get_positions", nil)
	require.Error(t, err)
	assert.Equal(t, KindAuthFailed, AsError(err).Kind)
}

// -----------------------------------------------------------------------------

func TestClassifyRPCCode(t *testing.T) {
	cases := []struct {
		code int
		want Kind
	}{
		{10028, KindRateLimited},
		{10029, KindRateLimited},
		{13009, KindAuthFailed},
		{13004, KindAuthFailed},
		{-32602, KindBadRequest},
		{11044, KindBadRequest},
		{10004, KindNotFound},
		{10000, KindInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classifyRPCCode(tc.code, "x").Kind, "code %d", tc.code)
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{429, KindRateLimited},
		{401, KindAuthFailed},
		{403, KindAuthFailed},
		{404, KindNotFound},
		{500, KindUnavailable},
		{503, KindUnavailable},
		{400, KindBadRequest},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classifyHTTPStatus(tc.status).Kind, "status %d", tc.status)
	}
}

func TestTransientKinds(t *testing.T) {
	assert.True(t, (&Error{Kind: KindTimeout}).Transient())
	assert.True(t, (&Error{Kind: KindRateLimited}).Transient())
	assert.True(t, (&Error{Kind: KindUnavailable}).Transient())
	assert.False(t, (&Error{Kind: KindAuthFailed}).Transient())
	assert.False(t, (&Error{Kind: KindBadRequest}).Transient())
	assert.False(t, (&Error{Kind: KindNotFound}).Transient())
}

// -----------------------------------------------------------------------------

func TestFormatExpiry(t *testing.T) {
	ts := time.Date(2026, time.September, 27, 8, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, "27SEP26", FormatExpiry(ts))

	ts = time.Date(2026, time.January, 2, 8, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, "02JAN26", FormatExpiry(ts))
}

func TestNormalizeIV(t *testing.T) {
	pct := 80.0
	dec := 0.8
	require.NotNil(t, normalizeIV(&pct))
	assert.InDelta(t, 0.8, *normalizeIV(&pct), 1e-9)
	assert.InDelta(t, 0.8, *normalizeIV(&dec), 1e-9)
	assert.Nil(t, normalizeIV(nil))

	_, converted := normalizeIVFlag(&pct)
	assert.True(t, converted)
	_, converted = normalizeIVFlag(&dec)
	assert.False(t, converted)
}
