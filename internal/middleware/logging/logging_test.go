package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve runs req through the middleware and returns the decoded log entry and
// the body the wrapped handler saw.
func serve(t *testing.T, req *http.Request, status int, reply string) (map[string]any, string) {
	t.Helper()

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	var seen []byte
	handler := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = io.ReadAll(r.Body)
		if status != 0 {
			w.WriteHeader(status)
		}
		w.Write([]byte(reply))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logBuf.Bytes(), &entry))
	return entry, string(seen)
}

func TestMiddleware_LogsRequests(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		status     int
		reply      string
		wantStatus float64
	}{
		{"health probe", http.MethodGet, "/healthz", http.StatusOK, `{"status":"ok"}`, 200},
		{"node starting", http.MethodGet, "/readyz", http.StatusServiceUnavailable, `{"status":"starting"}`, 503},
		{"implicit 200", http.MethodGet, "/api/v1/deployments", 0, `{"deployments":[]}`, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.RemoteAddr = "192.168.1.100:12345"

			entry, _ := serve(t, req, tt.status, tt.reply)

			assert.Equal(t, "request", entry["msg"])
			assert.Equal(t, tt.method, entry["method"])
			assert.Equal(t, tt.path, entry["path"])
			assert.Equal(t, tt.wantStatus, entry["status"])
			assert.Equal(t, float64(len(tt.reply)), entry["bytes"])
			assert.Equal(t, "192.168.1.100", entry["client_ip"])
			assert.NotEmpty(t, entry["duration"])
			assert.NotContains(t, entry, "rpc_method")
		})
	}
}

func TestMiddleware_LogsRPCMethod(t *testing.T) {
	tests := []struct {
		name string
		body string
		want any
	}{
		{"single call", `{"jsonrpc":"2.0","id":1,"method":"eth_sendTransaction","params":[]}`, "eth_sendTransaction"},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"eth_accounts"},{"jsonrpc":"2.0","id":2,"method":"web3_clientVersion"}]`, "eth_accounts,web3_clientVersion"},
		{"leading whitespace", "\n  {\"jsonrpc\":\"2.0\",\"id\":7,\"method\":\"eth_getTransactionReceipt\"}", "eth_getTransactionReceipt"},
		{"not json", `hello`, nil},
		{"empty", ``, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.RemoteAddr = "127.0.0.1:8080"

			entry, seen := serve(t, req, http.StatusOK, "")

			// the RPC server must still see the full body
			assert.Equal(t, tt.body, seen)
			assert.Equal(t, tt.want, entry["rpc_method"])
		})
	}
}

func TestMiddleware_OversizedBodyIsPassedThrough(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":1,"method":"eth_sendRawTransaction","params":["0x` +
		strings.Repeat("ab", maxPeek) + `"]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.RemoteAddr = "127.0.0.1:8080"

	entry, seen := serve(t, req, http.StatusOK, "")

	assert.Equal(t, body, seen)
	assert.NotContains(t, entry, "rpc_method")
}

func TestMiddleware_RequestID(t *testing.T) {
	t.Run("from chi", func(t *testing.T) {
		var logBuf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&logBuf, nil))
		handler := middleware.RequestID(Middleware(logger)(http.NotFoundHandler()))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(logBuf.Bytes(), &entry))
		assert.NotEmpty(t, entry["request_id"])
		assert.Equal(t, float64(http.StatusNotFound), entry["status"])
	})

	t.Run("from context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "probe-42"))

		entry, _ := serve(t, req, http.StatusOK, "")
		assert.Equal(t, "probe-42", entry["request_id"])
	})
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	req.RemoteAddr = "[::1]:8545"
	assert.Equal(t, "::1", clientIP(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", clientIP(req))
}

func TestResponseWriter(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rr, status: http.StatusOK}

	rw.WriteHeader(http.StatusServiceUnavailable)
	rw.WriteHeader(http.StatusOK)
	assert.Equal(t, http.StatusServiceUnavailable, rw.status, "second WriteHeader is ignored")

	n, err := rw.Write([]byte("starting"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	_, _ = rw.Write([]byte("..."))
	assert.Equal(t, 11, rw.bytes)

	assert.Equal(t, rr, rw.Unwrap())
}
