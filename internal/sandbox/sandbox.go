// Package sandbox implements a local, deterministic Ethereum-style development
// node. It manages a fixed set of unlocked accounts, exposes a CREATE2 deployment
// factory and mines each transaction after a configurable delay. It executes no
// EVM code: a deployment succeeds when its init code is non-empty and its target
// address is unused.
package sandbox

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pendergraft/deploycheck/internal/chains/evm"
)

// ClientVersion is reported by web3_clientVersion.
const ClientVersion = "deploycheck-sandbox/v1"

// Defaults
const (
	DefaultAccounts    = 10
	DefaultChainID     = 31337
	DefaultSeed        = "deploycheck"
	DefaultMiningDelay = 500 * time.Millisecond
)

var (
	// ErrNotFound is returned for unknown transactions and deployments.
	ErrNotFound = errors.New("not found")
	// ErrNotReady is returned while the node is still starting up.
	ErrNotReady = errors.New("node is starting")
)

// Deployment is a contract created through the factory.
type Deployment struct {
	Address      common.Address
	Factory      common.Address
	Deployer     common.Address
	GuardedSalt  common.Hash
	InitCodeHash common.Hash
	TxHash       common.Hash
	BlockNumber  uint64
	CreatedAt    time.Time
}

// txRecord is a transaction the node has accepted. Its outcome is decided at
// submission and revealed once minedAt has passed.
type txRecord struct {
	hash         common.Hash
	from         common.Address
	receipt      *types.Receipt
	revertReason string
	deployment   *Deployment
	minedAt      time.Time
}

// Backend is the sandbox node state. It is safe for concurrent use.
type Backend struct {
	mu sync.Mutex

	chainID      *big.Int
	factory      common.Address
	gasPrice     *big.Int
	miningDelay  time.Duration
	startupDelay time.Duration
	startedAt    time.Time
	now          func() time.Time
	logger       *slog.Logger

	keys     map[common.Address]*ecdsa.PrivateKey
	accounts []common.Address

	head      uint64
	nonces    map[common.Address]uint64
	txs       map[common.Hash]*txRecord
	deployed  map[common.Address]*txRecord
	createdAt []common.Hash // factory deployments in submission order
}

// Option configures a Backend
type Option func(*config)

type config struct {
	accounts     int
	chainID      int64
	seed         string
	factory      common.Address
	miningDelay  time.Duration
	startupDelay time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// WithAccounts sets the number of unlocked accounts (0 is allowed).
func WithAccounts(n int) Option {
	return func(c *config) { c.accounts = n }
}

// WithChainID sets the chain id.
func WithChainID(id int64) Option {
	return func(c *config) { c.chainID = id }
}

// WithSeed sets the seed accounts are derived from.
func WithSeed(seed string) Option {
	return func(c *config) { c.seed = seed }
}

// WithFactory installs the deployment factory at addr.
func WithFactory(addr common.Address) Option {
	return func(c *config) { c.factory = addr }
}

// WithMiningDelay sets how long a transaction stays pending.
func WithMiningDelay(d time.Duration) Option {
	return func(c *config) { c.miningDelay = d }
}

// WithStartupDelay makes the node report itself unavailable for d after creation.
func WithStartupDelay(d time.Duration) Option {
	return func(c *config) { c.startupDelay = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// New creates a sandbox node.
func New(opts ...Option) *Backend {
	cfg := config{
		accounts:    DefaultAccounts,
		chainID:     DefaultChainID,
		seed:        DefaultSeed,
		factory:     evm.DefaultFactory,
		miningDelay: DefaultMiningDelay,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &Backend{
		chainID:      big.NewInt(cfg.chainID),
		factory:      cfg.factory,
		gasPrice:     big.NewInt(1_000_000_000),
		miningDelay:  cfg.miningDelay,
		startupDelay: cfg.startupDelay,
		now:          cfg.now,
		logger:       cfg.logger,
		keys:         make(map[common.Address]*ecdsa.PrivateKey, cfg.accounts),
		nonces:       make(map[common.Address]uint64),
		txs:          make(map[common.Hash]*txRecord),
		deployed:     make(map[common.Address]*txRecord),
	}
	b.startedAt = b.now()

	for _, key := range DeriveKeys(cfg.seed, cfg.accounts) {
		addr := crypto.PubkeyToAddress(key.PublicKey)
		b.keys[addr] = key
		b.accounts = append(b.accounts, addr)
	}
	return b
}

// DeriveKeys returns n deterministic private keys for seed.
func DeriveKeys(seed string, n int) []*ecdsa.PrivateKey {
	keys := make([]*ecdsa.PrivateKey, 0, n)
	var idx [4]byte
	for i := 0; len(keys) < n; i++ {
		binary.BigEndian.PutUint32(idx[:], uint32(i))
		key, err := crypto.ToECDSA(crypto.Keccak256([]byte(seed), idx[:]))
		if err != nil {
			// hash outside the curve order; try the next index
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// ChainID returns the chain id.
func (b *Backend) ChainID() *big.Int {
	return new(big.Int).Set(b.chainID)
}

// Factory returns the deployment factory address.
func (b *Backend) Factory() common.Address {
	return b.factory
}

// Accounts returns the unlocked accounts in a stable order.
func (b *Backend) Accounts() []common.Address {
	out := make([]common.Address, len(b.accounts))
	copy(out, b.accounts)
	return out
}

// Ready returns ErrNotReady until the startup delay has passed.
func (b *Backend) Ready() error {
	if b.now().Sub(b.startedAt) < b.startupDelay {
		return ErrNotReady
	}
	return nil
}

// Deployments returns revealed factory deployments in creation order.
func (b *Backend) Deployments() []Deployment {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	out := make([]Deployment, 0, len(b.createdAt))
	for _, h := range b.createdAt {
		rec := b.txs[h]
		if rec.deployment != nil && !now.Before(rec.minedAt) {
			out = append(out, *rec.deployment)
		}
	}
	return out
}

// Deployment returns the revealed deployment at addr.
func (b *Backend) Deployment(addr common.Address) (*Deployment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.deployed[addr]
	if !ok || b.now().Before(rec.minedAt) {
		return nil, ErrNotFound
	}
	d := *rec.deployment
	return &d, nil
}

// Pending returns the hashes of transactions that have not been mined yet, sorted.
func (b *Backend) Pending() []common.Hash {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var out []common.Hash
	for h, rec := range b.txs {
		if now.Before(rec.minedAt) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}
