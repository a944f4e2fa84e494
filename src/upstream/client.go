package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"deribit-gateway/src/cache"
	"deribit-gateway/src/config"
	"deribit-gateway/src/limiter"
	"deribit-gateway/src/logger"
)

// -----------------------------------------------------------------------------
// Exchange RPC client with rate limiting, caching and retry
// -----------------------------------------------------------------------------

const authMethod = "public/auth"

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type authResult struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Client issues JSON-RPC-over-HTTP calls to the exchange. Every network
// attempt passes through the shared token bucket first; results of
// read-only methods can be cached through CallCached.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	limiter      *limiter.Limiter
	cache        *cache.TTLCache
	logger       *logger.Logger
	maxRetries   int
	userAgent    string
	clientID     string
	clientSecret string

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient wires the client to the shared limiter and cache.
func NewClient(cfg *config.Config, lim *limiter.Limiter, c *cache.TTLCache, log *logger.Logger) *Client {
	return &Client{
		baseURL: cfg.Upstream.BaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Upstream.RequestTimeout) * time.Second,
		},
		limiter:      lim,
		cache:        c,
		logger:       log,
		maxRetries:   cfg.Upstream.MaxRetries,
		userAgent:    cfg.Upstream.UserAgent,
		clientID:     cfg.Upstream.ClientID,
		clientSecret: cfg.Upstream.ClientSecret,
	}
}

// HasCredentials reports whether private methods can be used.
func (c *Client) HasCredentials() bool {
	return c.clientID != "" && c.clientSecret != ""
}

// GetCacheStats exposes the shared cache counters.
func (c *Client) GetCacheStats() cache.Stats {
	return c.cache.GetStats()
}

// -----------------------------------------------------------------------------

// CallPublic invokes a public method.
func (c *Client) CallPublic(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	return c.call(ctx, method, params, false)
}

// CallPrivate invokes an authenticated method, obtaining or refreshing the
// bearer token as needed.
func (c *Client) CallPrivate(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	if !c.HasCredentials() {
		return nil, newError(KindAuthFailed, 0, "no API credentials configured")
	}
	return c.call(ctx, method, params, true)
}

// CallCached invokes a public method through the TTL cache. Concurrent
// callers for the same method+params share a single upstream call.
func (c *Client) CallCached(ctx context.Context, class cache.Class, method string, params map[string]string) (json.RawMessage, error) {
	key := cacheKey(method, params)
	v, err := c.cache.Get(ctx, key, class, func(ctx context.Context) (interface{}, error) {
		return c.call(ctx, method, params, false)
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

func cacheKey(method string, params map[string]string) string {
	vals := url.Values{}
	for k, v := range params {
		vals.Set(k, v)
	}
	// Encode sorts keys, so equal param sets map to equal keys.
	return method + "?" + vals.Encode()
}

// -----------------------------------------------------------------------------

// call runs the bounded retry loop. Transient failures back off
// exponentially with jitter; an auth failure triggers one token refresh.
func (c *Client) call(ctx context.Context, method string, params map[string]string, auth bool) (json.RawMessage, error) {
	var lastErr *Error
	refreshed := false

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			c.logger.Debug("retrying %s in %v (attempt %d/%d): %v", method, delay, attempt, c.maxRetries, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &Error{Kind: KindTimeout, Message: "cancelled while backing off", Cause: ctx.Err()}
			}
		}

		result, err := c.doOnce(ctx, method, params, auth)
		if err == nil {
			return result, nil
		}

		ue := AsError(err)
		if ue.Kind == KindAuthFailed && auth && !refreshed {
			refreshed = true
			c.invalidateToken()
			// Refresh consumed the auth failure, retry immediately.
			attempt--
			lastErr = ue
			continue
		}
		if !ue.Transient() {
			return nil, ue
		}
		lastErr = ue
	}

	return nil, lastErr
}

// doOnce performs a single HTTP exchange, limiter included.
func (c *Client) doOnce(ctx context.Context, method string, params map[string]string, auth bool) (json.RawMessage, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		if be, ok := err.(*limiter.ErrBudgetExceeded); ok {
			return nil, &Error{Kind: KindRateLimited, Message: "local rate limit budget exceeded", RetryAfter: be.RetryAfter}
		}
		return nil, &Error{Kind: KindTimeout, Message: "cancelled awaiting rate limiter", Cause: err}
	}

	vals := url.Values{}
	for k, v := range params {
		vals.Set(k, v)
	}
	reqURL := fmt.Sprintf("%s/%s", c.baseURL, method)
	if len(vals) > 0 {
		reqURL += "?" + vals.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, newError(KindBadRequest, 0, err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if auth {
		token, err := c.ensureToken(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &Error{Kind: KindTimeout, Message: "request timed out", Cause: err}
		}
		return nil, &Error{Kind: KindUnavailable, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Message: "reading response failed", Cause: err}
	}

	var env rpcEnvelope
	if jsonErr := json.Unmarshal(body, &env); jsonErr != nil {
		return nil, classifyHTTPStatus(resp.StatusCode)
	}
	if env.Error != nil {
		return nil, classifyRPCCode(env.Error.Code, env.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPStatus(resp.StatusCode)
	}
	return env.Result, nil
}

func isTimeout(err error) bool {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return true
	}
	if ue, ok := err.(*url.Error); ok {
		return ue.Timeout() || ue.Err == context.DeadlineExceeded
	}
	return err == context.DeadlineExceeded
}

func backoffDelay(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
	if base > 8*time.Second {
		base = 8 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 4))
	return base + jitter
}

// -----------------------------------------------------------------------------
// Bearer token lifecycle
// -----------------------------------------------------------------------------

func (c *Client) invalidateToken() {
	c.tokenMu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.tokenMu.Unlock()
}

// ensureToken returns a valid bearer token, fetching one via the
// client-credentials grant when missing or near expiry.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-30*time.Second)) {
		return c.token, nil
	}

	result, err := c.doOnce(ctx, authMethod, map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	}, false)
	if err != nil {
		ue := AsError(err)
		if ue.Kind != KindTimeout && ue.Kind != KindRateLimited && ue.Kind != KindUnavailable {
			ue.Kind = KindAuthFailed
		}
		return "", ue
	}

	var ar authResult
	if err := json.Unmarshal(result, &ar); err != nil || ar.AccessToken == "" {
		return "", newError(KindAuthFailed, 0, "malformed token response")
	}

	c.token = ar.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(ar.ExpiresIn) * time.Second)
	return c.token, nil
}
