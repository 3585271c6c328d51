// Package logging provides structured HTTP request logging middleware.
package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// maxPeek bounds how much of a JSON-RPC body is read to find the method names.
const maxPeek = 64 << 10

// responseWriter wraps http.ResponseWriter to capture status and bytes
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	bytes       int
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter for middleware that need it
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns an HTTP middleware that logs requests using structured logging.
// Each entry carries request_id, method, path, status, bytes, duration and client_ip.
// JSON-RPC requests also log rpc_method: the called method, or a comma separated
// list for batches.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				status:         http.StatusOK,
			}

			rpcMethod := ""
			if r.Method == http.MethodPost && r.Body != nil {
				rpcMethod = peekRPCMethod(r)
			}

			defer func() {
				attrs := []any{
					"request_id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", wrapped.status,
					"bytes", wrapped.bytes,
					"duration", time.Since(start).String(),
					"client_ip", clientIP(r),
				}
				if rpcMethod != "" {
					attrs = append(attrs, "rpc_method", rpcMethod)
				}
				logger.Info("request", attrs...)
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}

// peekRPCMethod reads the request body, restores it, and returns the JSON-RPC
// method names it names. Bodies that are not JSON-RPC yield "".
func peekRPCMethod(r *http.Request) string {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPeek+1))
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(body), rest), rest}
	if err != nil || len(body) > maxPeek {
		return ""
	}

	type call struct {
		Method string `json:"method"`
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []call
		if json.Unmarshal(trimmed, &batch) != nil {
			return ""
		}
		methods := make([]string, 0, len(batch))
		for _, c := range batch {
			methods = append(methods, c.Method)
		}
		return strings.Join(methods, ",")
	}

	var single call
	if json.Unmarshal(trimmed, &single) != nil {
		return ""
	}
	return single.Method
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
