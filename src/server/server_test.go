package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deribit-gateway/src/analytics"
	"deribit-gateway/src/cache"
	"deribit-gateway/src/config"
	"deribit-gateway/src/limiter"
	"deribit-gateway/src/logger"
	"deribit-gateway/src/models"
	"deribit-gateway/src/rpc"
	"deribit-gateway/src/tools"
	"deribit-gateway/src/upstream"
	"deribit-gateway/src/utils"
)

// newTestServer builds the full gateway against a stub exchange and serves
// it from an ephemeral listener.
func newTestServer(t *testing.T) (*GatewayServer, *httptest.Server) {
	t.Helper()

	upstreamStub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/public/get_time":
			fmt.Fprintf(w, `{"result": %d}`, time.Now().UnixMilli())
		case "/public/status":
			fmt.Fprint(w, `{"result": {"locked": "false"}}`)
		default:
			fmt.Fprint(w, `{"error": {"code": -32601, "message": "method not found"}}`)
		}
	}))
	t.Cleanup(upstreamStub.Close)

	cfg := &models.MConfig{
		Name:     "gateway-test",
		Host:     "127.0.0.1",
		Port:     8742,
		LogLevel: "error",
		Upstream: models.MUpstreamConfig{
			BaseURL:        upstreamStub.URL,
			RequestTimeout: 5,
			MaxRetries:     0,
		},
		Analytics: models.MAnalyticsConfig{
			ContractSize:  1.0,
			SoftLimitByte: 2048,
			HardLimitByte: 5120,
		},
	}

	log := logger.NewLogger(cfg.LogLevel, cfg.Name)
	lim := limiter.NewLimiter(50, 50, 2*time.Second)
	ttl := cache.NewTTLCache(10*time.Second, 300*time.Second, 128)
	client := upstream.NewClient(&config.Config{MConfig: cfg}, lim, ttl, log)
	ring := utils.NewMetricsRing(64)

	registry, err := tools.NewRegistry(&tools.Deps{
		Client: client,
		Engine: analytics.NewEngine(cfg.Analytics.ContractSize),
		Config: &config.Config{MConfig: cfg},
		Logger: log,
		Ring:   ring,
	})
	require.NoError(t, err)

	srv := NewGatewayServer(cfg, log, registry, client, ring, nil, rpc.ServerInfo{Name: cfg.Name, Version: "0.0.0"})
	ts := httptest.NewServer(srv.engine)
	t.Cleanup(ts.Close)
	return srv, ts
}

// readSSEEvent blocks for one event frame, honoring the deadline through
// the reader goroutine below.
type sseEvent struct {
	Name string
	Data string
}

func readSSEEvent(t *testing.T, events <-chan sseEvent) sseEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for SSE event")
		return sseEvent{}
	}
}

func streamEvents(body *bufio.Reader) <-chan sseEvent {
	events := make(chan sseEvent, 8)
	go func() {
		defer close(events)
		var ev sseEvent
		for {
			line, err := body.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")
			switch {
			case line == "":
				if ev.Name != "" || ev.Data != "" {
					events <- ev
					ev = sseEvent{}
				}
			case strings.HasPrefix(line, "event: "):
				ev.Name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.Data = strings.TrimPrefix(line, "data: ")
			}
			// Comment keepalives fall through untouched.
		}
	}()
	return events
}

// -----------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var body struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Zero(t, body.Connections)
}

func TestToolsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/tools")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var body struct {
		Tools []tools.Descriptor `json:"tools"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	names := make(map[string]bool)
	for _, d := range body.Tools {
		names[d.Name] = true
	}
	for _, want := range []string{
		"deribit_status",
		"get_option_chain",
		"get_open_interest_by_strike",
		"compute_gamma_exposure",
		"compute_max_pain",
		"get_iv_term_structure",
		"get_skew_metrics",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
}

func TestToolsCallEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/tools/call", "application/json",
		bytes.NewBufferString(`{"name":"deribit_status","arguments":{}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var status models.MStatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.APIOk)

	resp, err = http.Post(ts.URL+"/tools/call", "application/json",
		bytes.NewBufferString(`{"name":"no_such_tool"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 404, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/tools/call", "application/json",
		bytes.NewBufferString(`{"arguments":{}}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 400, resp.StatusCode)
}

func TestInvocationsEndpointWithoutStore(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/invocations")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var body struct {
		Invocations []models.MInvocation `json:"invocations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Empty(t, body.Invocations)

	bad, err := http.Get(ts.URL + "/invocations?limit=zero")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, 200, bad.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/tools/call", "application/json",
		bytes.NewBufferString(`{"name":"deribit_status","arguments":{}}`))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var metrics models.MProcessingMetrics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&metrics))
	assert.GreaterOrEqual(t, metrics.Calls, 1)
}

// -----------------------------------------------------------------------------

func TestSSESessionLifecycle(t *testing.T) {
	srv, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/sse")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := streamEvents(bufio.NewReader(resp.Body))

	endpoint := readSSEEvent(t, events)
	require.Equal(t, "endpoint", endpoint.Name)
	require.True(t, strings.HasPrefix(endpoint.Data, "/messages?session_id="), "endpoint data %q", endpoint.Data)

	messagesURL := ts.URL + endpoint.Data

	// Initialize over the POST channel.
	post, err := http.Post(messagesURL, "application/json",
		bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`))
	require.NoError(t, err)
	require.Equal(t, 200, post.StatusCode)

	var initResp rpc.Response
	require.NoError(t, json.NewDecoder(post.Body).Decode(&initResp))
	post.Body.Close()
	require.Nil(t, initResp.Error)

	// The same response also rides the stream.
	pushed := readSSEEvent(t, events)
	assert.Equal(t, "message", pushed.Name)
	var streamed rpc.Response
	require.NoError(t, json.Unmarshal([]byte(pushed.Data), &streamed))
	assert.Nil(t, streamed.Error)

	// tools/list through the session.
	post, err = http.Post(messagesURL, "application/json",
		bytes.NewBufferString(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	require.NoError(t, err)
	require.Equal(t, 200, post.StatusCode)

	var listResp struct {
		Result struct {
			Tools []tools.Descriptor `json:"tools"`
		} `json:"result"`
		Error *rpc.Error `json:"error"`
	}
	require.NoError(t, json.NewDecoder(post.Body).Decode(&listResp))
	post.Body.Close()
	require.Nil(t, listResp.Error)

	names := make(map[string]bool)
	for _, d := range listResp.Result.Tools {
		names[d.Name] = true
	}
	for _, want := range []string{
		"get_option_chain",
		"get_open_interest_by_strike",
		"compute_gamma_exposure",
		"compute_max_pain",
		"get_iv_term_structure",
		"get_skew_metrics",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}

	// Notifications are acknowledged without a body.
	post, err = http.Post(messagesURL, "application/json",
		bytes.NewBufferString(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, 202, post.StatusCode)

	// The session is registered while the stream is open.
	id := strings.TrimPrefix(endpoint.Data, "/messages?session_id=")
	assert.NotNil(t, srv.lookupSession(id))
}

func TestMessagesRejectsUnknownSession(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/messages?session_id=nope", "application/json",
		bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 404, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/messages", "application/json",
		bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 400, resp.StatusCode)
}

func TestSSETeardownOnDisconnect(t *testing.T) {
	srv, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/sse")
	require.NoError(t, err)

	events := streamEvents(bufio.NewReader(resp.Body))
	endpoint := readSSEEvent(t, events)
	id := strings.TrimPrefix(endpoint.Data, "/messages?session_id=")
	require.NotNil(t, srv.lookupSession(id))

	resp.Body.Close()

	assert.Eventually(t, func() bool {
		return srv.lookupSession(id) == nil
	}, 3*time.Second, 50*time.Millisecond)
}

func TestKeepaliveIntervalFromConfig(t *testing.T) {
	srv, _ := newTestServer(t)

	// Unset in the test config, the default applies.
	assert.Equal(t, 15*time.Second, srv.keepaliveInterval())

	srv.Config.Keepalive = 3
	assert.Equal(t, 3*time.Second, srv.keepaliveInterval())
}
