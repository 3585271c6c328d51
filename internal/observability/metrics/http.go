package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

// Middleware returns HTTP middleware for request metrics.
func Middleware(next http.Handler) http.Handler {
	if !enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			duration := time.Since(start).Seconds()

			// Normalize path to avoid high cardinality from IDs
			path := normalizePath(r.URL.Path)

			httpRequestsTotal.WithLabelValues(
				r.Method,
				path,
				strconv.Itoa(rw.status),
			).Inc()

			httpDuration.WithLabelValues(
				r.Method,
				path,
			).Observe(duration)
		}()

		next.ServeHTTP(rw, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures status code.
func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// normalizePath replaces identifiers in inspection routes with {id}; anything
// outside the node's routes is reported as "other". For example:
//
//	/api/v1/deployments/0x5FbDB2315678afecb367f032d93F642f64180aa3 -> /api/v1/deployments/{id}
func normalizePath(path string) string {
	switch path {
	case "/", "/health", "/healthz", "/readyz", "/metrics":
		return path
	}

	if !strings.HasPrefix(path, "/api/v1/") {
		return "other"
	}

	parts := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	normalized := []string{"/api/v1"}
	for _, part := range parts {
		if part == "" {
			continue
		}
		if isLikelyID(part) {
			normalized = append(normalized, "{id}")
		} else {
			normalized = append(normalized, part)
		}
	}
	return strings.Join(normalized, "/")
}

// isLikelyID reports whether segment is an address, a hash, a uuid or a number.
func isLikelyID(segment string) bool {
	if common.IsHexAddress(segment) {
		return true
	}
	if _, err := hexutil.Decode(segment); err == nil {
		return true
	}
	if _, err := uuid.Parse(segment); err == nil {
		return true
	}
	_, err := strconv.ParseUint(segment, 10, 64)
	return err == nil
}
