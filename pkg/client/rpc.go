package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// TransactionArgs is the eth_sendTransaction payload for node-managed accounts.
type TransactionArgs struct {
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to,omitempty"`
	Gas      *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Data     hexutil.Bytes   `json:"data"`
}

// TxState is the settlement state reported for a transaction.
type TxState string

const (
	TxPending TxState = "pending"
	TxMined   TxState = "mined"
	TxFailed  TxState = "failed"
)

// TxStatus is one observation of a transaction.
type TxStatus struct {
	Hash        common.Hash
	State       TxState
	BlockNumber uint64
	GasUsed     uint64
	// Reason is the revert reason when State is TxFailed and the node reports one.
	Reason  string
	Receipt *types.Receipt
}

// Health reports whether the endpoint answers JSON-RPC requests.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.ClientVersion(ctx)
	return err
}

// ClientVersion returns web3_clientVersion.
func (c *Client) ClientVersion(ctx context.Context) (string, error) {
	var version string
	if err := c.rpc.CallContext(ctx, &version, "web3_clientVersion"); err != nil {
		return "", err
	}
	return version, nil
}

// ChainID returns the chain id of the connected network.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

// Accounts returns the unlocked accounts managed by the node, in node order.
func (c *Client) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := c.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

// SendTransaction asks the node to sign and broadcast a transaction from an
// unlocked account.
func (c *Client) SendTransaction(ctx context.Context, args TransactionArgs) (common.Hash, error) {
	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// SendRawTransaction broadcasts a locally signed transaction.
func (c *Client) SendRawTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

// PendingNonceAt returns the next nonce for account.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.eth.PendingNonceAt(ctx, account)
}

// SuggestGasPrice returns the node's gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

// EstimateGas estimates the gas needed for a call.
func (c *Client) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return c.eth.EstimateGas(ctx, call)
}

// TransactionReceipt returns the receipt of a mined transaction, or
// ethereum.NotFound while it is pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, hash)
}

// receiptWithReason is a receipt plus the non-standard revertReason field
// some dev nodes add to failed receipts.
type receiptWithReason struct {
	types.Receipt
	RevertReason string
}

func (r *receiptWithReason) UnmarshalJSON(data []byte) error {
	if err := r.Receipt.UnmarshalJSON(data); err != nil {
		return err
	}
	var extra struct {
		RevertReason string `json:"revertReason"`
	}
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	r.RevertReason = extra.RevertReason
	return nil
}

// TransactionStatus reports whether hash is pending, mined or failed. Failed
// statuses carry the node's revertReason when it sends one.
func (c *Client) TransactionStatus(ctx context.Context, hash common.Hash) (*TxStatus, error) {
	var rec *receiptWithReason
	if err := c.rpc.CallContext(ctx, &rec, "eth_getTransactionReceipt", hash); err != nil {
		return nil, fmt.Errorf("reading receipt: %w", err)
	}
	if rec == nil {
		return &TxStatus{Hash: hash, State: TxPending}, nil
	}

	receipt := &rec.Receipt
	status := &TxStatus{
		Hash:    hash,
		State:   TxMined,
		GasUsed: receipt.GasUsed,
		Receipt: receipt,
	}
	if receipt.BlockNumber != nil {
		status.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		status.State = TxFailed
		status.Reason = rec.RevertReason
	}
	return status, nil
}

// RPCErrorCode extracts the JSON-RPC error code from err, if err came from the node.
func RPCErrorCode(err error) (int, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), true
	}
	return 0, false
}
