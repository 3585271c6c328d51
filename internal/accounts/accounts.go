// Package accounts provisions the test identities a deployment run uses and
// binds them to named roles.
package accounts

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrInsufficientIdentities is returned when fewer identities exist than are required.
	ErrInsufficientIdentities = errors.New("insufficient test identities")
	// ErrUnknownRole is returned for a role that was never assigned.
	ErrUnknownRole = errors.New("unknown role")
)

// IdentityProvisioningError reports an identity shortfall.
type IdentityProvisioningError struct {
	Required  int
	Available int
}

func (e *IdentityProvisioningError) Error() string {
	return fmt.Sprintf("%s: need %d, service provides %d", ErrInsufficientIdentities, e.Required, e.Available)
}

func (e *IdentityProvisioningError) Unwrap() error {
	return ErrInsufficientIdentities
}

// IdentityLister lists the accounts a service manages, in service order.
type IdentityLister interface {
	Accounts(ctx context.Context) ([]common.Address, error)
}

// Wallet is a test identity able to sign deployment transactions.
type Wallet struct {
	Address common.Address
	Signer  Signer
}

func (w Wallet) String() string {
	return w.Address.Hex()
}

// Provisioner fetches test identities once and serves the cached sequence afterwards.
type Provisioner struct {
	svc    IdentityLister
	keys   map[common.Address]*ecdsa.PrivateKey
	logger *slog.Logger

	mu      sync.Mutex
	wallets []Wallet
}

// Option configures a Provisioner
type Option func(*Provisioner)

// WithPrivateKeys registers local keys. Identities whose address matches a key
// sign locally; the others are signed by the service.
func WithPrivateKeys(keys ...*ecdsa.PrivateKey) Option {
	return func(p *Provisioner) {
		for _, k := range keys {
			p.keys[crypto.PubkeyToAddress(k.PublicKey)] = k
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Provisioner) { p.logger = l }
}

// NewProvisioner creates a provisioner for svc. svc is used for listing and,
// when it implements NodeBackend or KeyBackend, for signing.
func NewProvisioner(svc IdentityLister, opts ...Option) *Provisioner {
	p := &Provisioner{
		svc:    svc,
		keys:   make(map[common.Address]*ecdsa.PrivateKey),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetTestIdentities returns the service's identities in a stable order. The
// first successful call fetches them; later calls return the same sequence.
func (p *Provisioner) GetTestIdentities(ctx context.Context) ([]Wallet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.wallets == nil {
		addrs, err := p.svc.Accounts(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing accounts: %w", err)
		}
		if len(addrs) == 0 {
			return nil, &IdentityProvisioningError{Required: 1, Available: 0}
		}

		wallets := make([]Wallet, len(addrs))
		local := 0
		for i, addr := range addrs {
			wallets[i] = Wallet{Address: addr, Signer: p.signerFor(addr)}
			if _, ok := wallets[i].Signer.(*KeySigner); ok {
				local++
			}
		}
		p.wallets = wallets
		p.logger.Info("provisioned test identities", "count", len(wallets), "local_signers", local)
	}

	out := make([]Wallet, len(p.wallets))
	copy(out, p.wallets)
	return out, nil
}

func (p *Provisioner) signerFor(addr common.Address) Signer {
	if key, ok := p.keys[addr]; ok {
		if kb, ok := p.svc.(KeyBackend); ok {
			return NewKeySigner(kb, key)
		}
	}
	if nb, ok := p.svc.(NodeBackend); ok {
		return NewNodeSigner(nb)
	}
	return nil
}

// ParsePrivateKeys decodes hex private keys, with or without a 0x prefix.
func ParsePrivateKeys(hexKeys []string) ([]*ecdsa.PrivateKey, error) {
	keys := make([]*ecdsa.PrivateKey, 0, len(hexKeys))
	for i, h := range hexKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(h), "0x"))
		if err != nil {
			return nil, fmt.Errorf("private key %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
