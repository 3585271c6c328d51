package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// NewRPCServer exposes b over JSON-RPC under the eth, web3 and net namespaces.
func NewRPCServer(b *Backend) (*rpc.Server, error) {
	srv := rpc.NewServer()
	apis := map[string]any{
		"eth":  &ethAPI{b: b},
		"web3": &web3API{b: b},
		"net":  &netAPI{b: b},
	}
	for namespace, api := range apis {
		if err := srv.RegisterName(namespace, api); err != nil {
			srv.Stop()
			return nil, fmt.Errorf("registering %s API: %w", namespace, err)
		}
	}
	return srv, nil
}

type ethAPI struct {
	b *Backend
}

func (api *ethAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(api.b.ChainID())
}

func (api *ethAPI) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(api.b.BlockNumber())
}

func (api *ethAPI) Accounts() []common.Address {
	return api.b.Accounts()
}

func (api *ethAPI) GasPrice() *hexutil.Big {
	return (*hexutil.Big)(api.b.GasPrice())
}

// GetTransactionCount always answers for the pending state.
func (api *ethAPI) GetTransactionCount(addr common.Address, _ *rpc.BlockNumberOrHash) hexutil.Uint64 {
	return hexutil.Uint64(api.b.NonceAt(addr))
}

func (api *ethAPI) EstimateGas(args CallArgs, _ *rpc.BlockNumberOrHash) hexutil.Uint64 {
	return hexutil.Uint64(api.b.EstimateGas(args))
}

func (api *ethAPI) SendTransaction(args CallArgs) (common.Hash, error) {
	return api.b.SendTransaction(args)
}

func (api *ethAPI) SendRawTransaction(input hexutil.Bytes) (common.Hash, error) {
	return api.b.SendRawTransaction(input)
}

// GetTransactionReceipt returns null for pending and unknown transactions.
// Failed receipts carry a revertReason field next to the standard ones.
func (api *ethAPI) GetTransactionReceipt(hash common.Hash) (json.RawMessage, error) {
	receipt, reason, err := api.b.Receipt(hash)
	if errors.Is(err, ErrNotFound) || receipt == nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(receipt)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		return data, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	fields["revertReason"] = reason
	return json.Marshal(fields)
}

type web3API struct {
	b *Backend
}

func (api *web3API) ClientVersion() (string, error) {
	if err := api.b.Ready(); err != nil {
		return "", serverError("%v", err)
	}
	return ClientVersion, nil
}

type netAPI struct {
	b *Backend
}

func (api *netAPI) Version() string {
	return strconv.FormatInt(api.b.chainID.Int64(), 10)
}

func (api *netAPI) Listening() bool {
	return api.b.Ready() == nil
}
