package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/deploycheck/internal/config"
	"github.com/pendergraft/deploycheck/internal/sandbox"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...sandbox.Option) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(cfg, sandbox.New(opts...), logger)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func rpcCall(t *testing.T, url, method string) *http.Response {
	t.Helper()
	body := `{"jsonrpc":"2.0","id":1,"method":"` + method + `","params":[]}`
	resp, err := http.Post(url+"/", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_JSONRPC(t *testing.T) {
	ts := newTestServer(t, testConfig(t), sandbox.WithAccounts(2))

	resp := rpcCall(t, ts.URL, "eth_chainId")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Result string `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "0x7a69", out.Result)

	resp = rpcCall(t, ts.URL, "web3_clientVersion")
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, sandbox.ClientVersion, out.Result)
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	for _, path := range []string{"/health", "/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestServer_NotReady(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := newTestServer(t, testConfig(t),
		sandbox.WithStartupDelay(time.Hour),
		sandbox.WithClock(func() time.Time { return start }),
	)

	resp := rpcCall(t, ts.URL, "eth_chainId")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	ready, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	ready.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, ready.StatusCode)

	// liveness is independent of readiness
	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestServer_Deployments(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	resp, err := http.Get(ts.URL + "/api/v1/deployments")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestServer_RateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerSec = 0.001
	cfg.RateLimit.BurstSize = 1
	ts := newTestServer(t, cfg)

	first := rpcCall(t, ts.URL, "eth_chainId")
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second := rpcCall(t, ts.URL, "eth_chainId")
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}
