// Package harness wires the readiness probe, account provisioning, address
// derivation and the deployment orchestrator into a test session.
//
// Setup runs once per suite: it waits for the service and assigns the
// deployer and admin roles. Deploy runs once per test case.
package harness

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/pendergraft/deploycheck/internal/accounts"
	"github.com/pendergraft/deploycheck/internal/chains/evm"
	"github.com/pendergraft/deploycheck/internal/config"
	"github.com/pendergraft/deploycheck/internal/deployments/domain"
	"github.com/pendergraft/deploycheck/internal/derive"
	"github.com/pendergraft/deploycheck/internal/readiness"
	"github.com/pendergraft/deploycheck/internal/storage"
	"github.com/pendergraft/deploycheck/pkg/client"
)

// Default timeouts
const (
	DefaultReadyTimeout  = 300 * time.Second
	DefaultDeployTimeout = 120 * time.Second
)

// Service is the remote execution service a session talks to.
// *client.Client implements it.
type Service interface {
	readiness.HealthChecker
	accounts.IdentityLister
	accounts.NodeBackend
	accounts.KeyBackend
	domain.StatusReader
	Endpoint() string
}

var _ Service = (*client.Client)(nil)

type options struct {
	logger        *slog.Logger
	readyTimeout  time.Duration
	readyInterval time.Duration
	pollInterval  time.Duration
	deployTimeout time.Duration
	factory       common.Address
	keys          []*ecdsa.PrivateKey
	store         storage.AttemptStore
}

// Option configures a Session
type Option func(*options)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithReadyTimeout bounds the wait for the service in Setup.
func WithReadyTimeout(d time.Duration) Option {
	return func(o *options) { o.readyTimeout = d }
}

// WithReadyInterval sets the delay between health checks.
func WithReadyInterval(d time.Duration) Option {
	return func(o *options) { o.readyInterval = d }
}

// WithPollInterval sets the delay between status reads.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithDeployTimeout sets the default settlement timeout of Deploy.
func WithDeployTimeout(d time.Duration) Option {
	return func(o *options) { o.deployTimeout = d }
}

// WithFactory sets the factory addresses are derived for.
func WithFactory(addr common.Address) Option {
	return func(o *options) { o.factory = addr }
}

// WithPrivateKeys signs locally for identities whose key is given.
func WithPrivateKeys(keys ...*ecdsa.PrivateKey) Option {
	return func(o *options) { o.keys = append(o.keys, keys...) }
}

// WithLedger records every attempt in store and rejects salts it has seen.
func WithLedger(store storage.AttemptStore) Option {
	return func(o *options) { o.store = store }
}

// Session is a provisioned harness. It is safe for concurrent use; each
// Deploy is an independent flow.
type Session struct {
	id       string
	svc      Service
	wallets  []accounts.Wallet
	roles    *accounts.Roles
	deriver  *derive.Deriver
	orch     *domain.Orchestrator
	ledger   *ledger
	timeout  time.Duration
	logger   *slog.Logger
	closers  []func() error
	mu       sync.Mutex
	used     map[derive.Salt]struct{}
	closeErr error
	closed   bool
}

// Setup waits for svc to become ready, provisions its identities and assigns
// the deployer and admin roles, in that order. A failure is a *StageError
// and stops the run before any deployment.
func Setup(ctx context.Context, svc Service, opts ...Option) (*Session, error) {
	o := newOptions(opts)

	o.logger.Info("waiting for service", "endpoint", svc.Endpoint(), "timeout", o.readyTimeout.String())
	err := readiness.WaitUntilReady(ctx, svc, o.readyTimeout,
		readiness.WithInterval(o.readyInterval),
		readiness.WithLogger(o.logger),
	)
	if err != nil {
		return nil, stageErr(StageReadiness, err)
	}

	prov := accounts.NewProvisioner(svc,
		accounts.WithPrivateKeys(o.keys...),
		accounts.WithLogger(o.logger),
	)
	wallets, err := prov.GetTestIdentities(ctx)
	if err != nil {
		return nil, stageErr(StageProvisioning, err)
	}
	roles, err := accounts.AssignRoles(wallets, accounts.RoleDeployer, accounts.RoleAdmin)
	if err != nil {
		return nil, stageErr(StageProvisioning, err)
	}

	return newSession(svc, wallets, roles, o), nil
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		readyTimeout:  DefaultReadyTimeout,
		readyInterval: readiness.DefaultInterval,
		pollInterval:  domain.DefaultPollInterval,
		deployTimeout: DefaultDeployTimeout,
		factory:       evm.DefaultFactory,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

func newSession(svc Service, wallets []accounts.Wallet, roles *accounts.Roles, o *options) *Session {
	s := &Session{
		id:      uuid.NewString(),
		svc:     svc,
		wallets: wallets,
		roles:   roles,
		deriver: derive.New(evm.Create2Scheme{}, o.factory),
		timeout: o.deployTimeout,
		used:    make(map[derive.Salt]struct{}),
	}
	s.logger = o.logger.With("session", s.id)

	orchOpts := []domain.Option{
		domain.WithPollInterval(o.pollInterval),
		domain.WithLogger(s.logger),
	}
	if o.store != nil {
		s.ledger = newLedger(o.store, svc.Endpoint(), s.logger)
		orchOpts = append(orchOpts, domain.WithRecorder(s.ledger))
	}
	s.orch = domain.NewOrchestrator(svc, orchOpts...)
	return s
}

// Open dials the configured endpoint, opens the ledger if one is configured
// and runs Setup. Close releases both.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c, err := client.Dial(ctx, cfg.Harness.Endpoint)
	if err != nil {
		return nil, stageErr(StageReadiness, err)
	}
	closers := []func() error{func() error { c.Close(); return nil }}
	closeAll := func() {
		for _, fn := range closers {
			_ = fn()
		}
	}

	opts := []Option{
		WithLogger(logger),
		WithReadyTimeout(cfg.Harness.ReadyTimeout),
		WithReadyInterval(cfg.Harness.ReadyInterval),
		WithPollInterval(cfg.Harness.PollInterval),
		WithDeployTimeout(cfg.Harness.DeployTimeout),
		WithFactory(common.HexToAddress(cfg.Harness.Factory)),
	}

	if len(cfg.Harness.PrivateKeys) > 0 {
		keys, err := accounts.ParsePrivateKeys(cfg.Harness.PrivateKeys)
		if err != nil {
			closeAll()
			return nil, stageErr(StageProvisioning, err)
		}
		opts = append(opts, WithPrivateKeys(keys...))
	}

	store, err := storage.New(cfg.Ledger, logger)
	switch {
	case errors.Is(err, storage.ErrDisabled):
	case err != nil:
		closeAll()
		return nil, fmt.Errorf("opening ledger: %w", err)
	default:
		closers = append(closers, store.Close)
		if err := store.Migrate(ctx); err != nil {
			closeAll()
			return nil, err
		}
		opts = append(opts, WithLedger(store))
	}

	s, err := Setup(ctx, c, opts...)
	if err != nil {
		closeAll()
		return nil, err
	}
	s.closers = closers
	return s, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// Endpoint returns the service URL.
func (s *Session) Endpoint() string {
	return s.svc.Endpoint()
}

// Wallets returns every provisioned identity in service order.
func (s *Session) Wallets() []accounts.Wallet {
	out := make([]accounts.Wallet, len(s.wallets))
	copy(out, s.wallets)
	return out
}

// Roles returns the role assignment made in Setup.
func (s *Session) Roles() *accounts.Roles {
	return s.roles
}

// Factory returns the factory address plans are derived for.
func (s *Session) Factory() common.Address {
	return s.deriver.Factory()
}

// Close releases resources opened by Open. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.closeErr
	}
	s.closed = true
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closeErr = errors.Join(errs...)
	return s.closeErr
}
