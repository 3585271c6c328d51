package accounts

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pendergraft/deploycheck/pkg/client"
)

// Signer kinds
const (
	SignerNode = "node"
	SignerKey  = "key"
)

// Signer signs and broadcasts a transaction for its wallet. Send hands the
// transaction to the service exactly once and does not wait for settlement.
type Signer interface {
	Kind() string
	Send(ctx context.Context, from common.Address, to *common.Address, data []byte) (common.Hash, error)
}

// NodeBackend is a service that signs with accounts it manages.
type NodeBackend interface {
	SendTransaction(ctx context.Context, args client.TransactionArgs) (common.Hash, error)
}

// KeyBackend is a service that accepts locally signed transactions.
type KeyBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendRawTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error)
}

// NodeSigner delegates signing to the service (eth_sendTransaction).
type NodeSigner struct {
	backend NodeBackend
}

// NewNodeSigner creates a NodeSigner
func NewNodeSigner(backend NodeBackend) *NodeSigner {
	return &NodeSigner{backend: backend}
}

// Kind returns SignerNode
func (s *NodeSigner) Kind() string { return SignerNode }

// Send submits the transaction through eth_sendTransaction. Gas and price are left to the node.
func (s *NodeSigner) Send(ctx context.Context, from common.Address, to *common.Address, data []byte) (common.Hash, error) {
	return s.backend.SendTransaction(ctx, client.TransactionArgs{
		From: from,
		To:   to,
		Data: data,
	})
}

// KeySigner signs legacy transactions with a local key (eth_sendRawTransaction).
// Sends from one KeySigner are serialized so concurrent deployments from the
// same wallet get consecutive nonces.
type KeySigner struct {
	backend KeyBackend
	key     *ecdsa.PrivateKey

	mu    sync.Mutex
	nonce uint64 // next nonce after the last accepted send
}

// NewKeySigner creates a KeySigner
func NewKeySigner(backend KeyBackend, key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{backend: backend, key: key}
}

// Kind returns SignerKey
func (s *KeySigner) Kind() string { return SignerKey }

// Send fills nonce, gas price and gas from the service, signs and broadcasts.
// The nonce is the larger of the service's pending nonce and the one after
// this signer's last accepted transaction.
func (s *KeySigner) Send(ctx context.Context, from common.Address, to *common.Address, data []byte) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetching chain id: %w", err)
	}
	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetching nonce: %w", err)
	}
	nonce = max(nonce, s.nonce)
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetching gas price: %w", err)
	}
	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: to, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimating gas: %w", err)
	}

	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    new(big.Int),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	}), types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("signing transaction: %w", err)
	}
	hash, err := s.backend.SendRawTransaction(ctx, tx)
	if err != nil {
		return common.Hash{}, err
	}
	s.nonce = nonce + 1
	return hash, nil
}
