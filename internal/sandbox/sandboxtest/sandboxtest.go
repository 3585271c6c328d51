// Package sandboxtest runs a sandbox node behind an httptest server with a
// controllable clock.
package sandboxtest

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pendergraft/deploycheck/internal/config"
	"github.com/pendergraft/deploycheck/internal/sandbox"
	"github.com/pendergraft/deploycheck/internal/server"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a clock set to a fixed instant.
func NewClock() *Clock {
	return &Clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Node is a running sandbox.
type Node struct {
	Backend *sandbox.Backend
	Clock   *Clock
	URL     string
}

// Start serves a sandbox until the test ends. The node's clock is fake, so
// transactions stay pending until the test advances it past the mining delay
// (one second unless opts override it).
func Start(t testing.TB, opts ...sandbox.Option) *Node {
	t.Helper()

	clock := NewClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := []sandbox.Option{
		sandbox.WithClock(clock.Now),
		sandbox.WithMiningDelay(time.Second),
		sandbox.WithLogger(logger),
	}
	backend := sandbox.New(append(base, opts...)...)

	cfg := &config.Config{
		Server: config.ServerConfig{MaxBodySizeMB: 8},
	}
	srv, err := server.New(cfg, backend, logger)
	if err != nil {
		t.Fatalf("starting sandbox: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})

	return &Node{Backend: backend, Clock: clock, URL: ts.URL}
}

// Mine advances the clock past the default mining delay.
func (n *Node) Mine() {
	n.Clock.Advance(time.Second)
}
