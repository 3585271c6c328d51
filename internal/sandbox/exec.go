package sandbox

import (
	"encoding/binary"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"

	"github.com/pendergraft/deploycheck/internal/chains/evm"
	"github.com/pendergraft/deploycheck/internal/observability/metrics"
)

// Revert reasons reported in the receipt's revertReason field.
const (
	ReasonOutOfGas        = "out of gas"
	ReasonShortCalldata   = "factory: calldata shorter than salt"
	ReasonEmptyInitCode   = "factory: empty init code"
	ReasonInvalidOpcode   = "invalid opcode"
	ReasonCreateCollision = "factory: create collision"
)

// opInvalid is the designated invalid instruction; init code starting with it
// always reverts.
const opInvalid = 0xfe

// CallArgs are the arguments of eth_sendTransaction and eth_estimateGas.
// Both "data" and "input" are accepted; "input" wins.
type CallArgs struct {
	From     *common.Address `json:"from"`
	To       *common.Address `json:"to"`
	Gas      *hexutil.Uint64 `json:"gas"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
	Value    *hexutil.Big    `json:"value"`
	Nonce    *hexutil.Uint64 `json:"nonce"`
	Data     *hexutil.Bytes  `json:"data"`
	Input    *hexutil.Bytes  `json:"input"`
}

func (a CallArgs) data() []byte {
	if a.Input != nil {
		return *a.Input
	}
	if a.Data != nil {
		return *a.Data
	}
	return nil
}

// SendTransaction signs a transaction with an unlocked account and queues it.
func (b *Backend) SendTransaction(args CallArgs) (common.Hash, error) {
	if err := b.Ready(); err != nil {
		return common.Hash{}, serverError("%v", err)
	}
	if args.From == nil {
		return common.Hash{}, invalidParams("missing from address")
	}
	key, ok := b.keys[*args.From]
	if !ok {
		return common.Hash{}, serverError("unknown account %s", args.From.Hex())
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	nonce := b.nonces[*args.From]
	if args.Nonce != nil && uint64(*args.Nonce) != nonce {
		return common.Hash{}, serverError("invalid nonce: have %d, want %d", uint64(*args.Nonce), nonce)
	}

	data := args.data()
	gas := b.requiredGas(args.To, data)
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	}
	if err := checkIntrinsic(gas, args.To, data); err != nil {
		return common.Hash{}, err
	}

	gasPrice := b.gasPrice
	if args.GasPrice != nil {
		gasPrice = args.GasPrice.ToInt()
	}
	value := new(big.Int)
	if args.Value != nil {
		value = args.Value.ToInt()
	}

	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       args.To,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	}), types.LatestSignerForChainID(b.chainID), key)
	if err != nil {
		return common.Hash{}, serverError("signing transaction: %v", err)
	}
	return b.apply(*args.From, tx), nil
}

// SendRawTransaction queues a transaction signed by the caller. The sender
// does not need to be one of the unlocked accounts.
func (b *Backend) SendRawTransaction(raw []byte) (common.Hash, error) {
	if err := b.Ready(); err != nil {
		return common.Hash{}, serverError("%v", err)
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, invalidParams("decoding transaction: %v", err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx)
	if err != nil {
		return common.Hash{}, serverError("invalid sender: %v", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, known := b.txs[tx.Hash()]; known {
		return common.Hash{}, serverError("already known")
	}
	switch nonce := b.nonces[from]; {
	case tx.Nonce() < nonce:
		return common.Hash{}, serverError("nonce too low: next nonce %d, tx nonce %d", nonce, tx.Nonce())
	case tx.Nonce() > nonce:
		return common.Hash{}, serverError("nonce too high: next nonce %d, tx nonce %d", nonce, tx.Nonce())
	}
	if err := checkIntrinsic(tx.Gas(), tx.To(), tx.Data()); err != nil {
		return common.Hash{}, err
	}
	return b.apply(from, tx), nil
}

// EstimateGas returns the gas a transaction needs to succeed.
func (b *Backend) EstimateGas(args CallArgs) uint64 {
	return b.requiredGas(args.To, args.data())
}

// GasPrice returns the node's fixed gas price.
func (b *Backend) GasPrice() *big.Int {
	return new(big.Int).Set(b.gasPrice)
}

// NonceAt returns the next nonce for addr, counting queued transactions.
func (b *Backend) NonceAt(addr common.Address) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[addr]
}

// BlockNumber returns the number of the latest block.
func (b *Backend) BlockNumber() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head
}

// Receipt returns the receipt for hash once it is mined. A nil receipt with a
// nil error means the transaction is still pending.
func (b *Backend) Receipt(hash common.Hash) (*types.Receipt, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.txs[hash]
	if !ok {
		return nil, "", ErrNotFound
	}
	if b.now().Before(rec.minedAt) {
		return nil, "", nil
	}
	return rec.receipt, rec.revertReason, nil
}

// apply executes tx and stores its outcome. Callers hold b.mu.
func (b *Backend) apply(from common.Address, tx *types.Transaction) common.Hash {
	b.nonces[from]++
	b.head++

	hash := tx.Hash()
	now := b.now()
	rec := &txRecord{hash: hash, from: from, minedAt: now.Add(b.miningDelay)}

	var blockHash common.Hash
	binary.BigEndian.PutUint64(blockHash[24:], b.head)
	blockHash = crypto.Keccak256Hash(b.chainID.Bytes(), blockHash[:])

	gasUsed := b.requiredGas(tx.To(), tx.Data())
	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            types.ReceiptStatusSuccessful,
		TxHash:            hash,
		Logs:              []*types.Log{},
		EffectiveGasPrice: tx.GasPrice(),
		BlockHash:         blockHash,
		BlockNumber:       new(big.Int).SetUint64(b.head),
	}
	rec.receipt = receipt

	switch {
	case tx.Gas() < gasUsed:
		gasUsed = tx.Gas()
		b.revert(rec, ReasonOutOfGas)
	case tx.To() == nil:
		receipt.ContractAddress = crypto.CreateAddress(from, tx.Nonce())
	case *tx.To() == b.factory:
		b.deploy(rec, tx.Data(), now)
	}

	receipt.GasUsed = gasUsed
	receipt.CumulativeGasUsed = gasUsed
	for i, l := range receipt.Logs {
		l.TxHash = hash
		l.BlockHash = blockHash
		l.BlockNumber = b.head
		l.Index = uint(i)
		receipt.Bloom.Add(l.Address.Bytes())
		for _, topic := range l.Topics {
			receipt.Bloom.Add(topic.Bytes())
		}
	}

	b.txs[hash] = rec

	kind, status := "call", "success"
	switch {
	case tx.To() == nil:
		kind = "create"
	case *tx.To() == b.factory:
		kind = "deploy"
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		status = "reverted"
	}
	metrics.SandboxTransaction(kind, status)

	attrs := []any{
		"tx", hash.Hex(),
		"from", from.Hex(),
		"block", b.head,
		"status", receipt.Status,
	}
	if rec.deployment != nil {
		attrs = append(attrs, "contract", rec.deployment.Address.Hex())
	}
	if rec.revertReason != "" {
		attrs = append(attrs, "reason", rec.revertReason)
	}
	b.logger.Debug("transaction queued", attrs...)
	return hash
}

// deploy runs the factory: calldata is salt ++ initCode and the contract is
// created at CREATE2(factory, keccak256(pad32(sender) ++ salt), keccak256(initCode)).
func (b *Backend) deploy(rec *txRecord, data []byte, now time.Time) {
	salt, initCode, err := evm.SplitCallData(data)
	if err != nil {
		b.revert(rec, ReasonShortCalldata)
		return
	}
	if len(initCode) == 0 {
		b.revert(rec, ReasonEmptyInitCode)
		return
	}
	if initCode[0] == opInvalid {
		b.revert(rec, ReasonInvalidOpcode)
		return
	}

	scheme := evm.Create2Scheme{}
	addr := scheme.Address(b.factory, rec.from, salt, initCode)
	if _, taken := b.deployed[addr]; taken {
		b.revert(rec, ReasonCreateCollision)
		return
	}

	guarded := scheme.GuardSalt(rec.from, salt)
	rec.receipt.Logs = append(rec.receipt.Logs, evm.ContractCreationLog(b.factory, addr, guarded))
	rec.deployment = &Deployment{
		Address:      addr,
		Factory:      b.factory,
		Deployer:     rec.from,
		GuardedSalt:  guarded,
		InitCodeHash: crypto.Keccak256Hash(initCode),
		TxHash:       rec.hash,
		BlockNumber:  b.head,
		CreatedAt:    now,
	}
	b.deployed[addr] = rec
	b.createdAt = append(b.createdAt, rec.hash)
}

func (b *Backend) revert(rec *txRecord, reason string) {
	rec.receipt.Status = types.ReceiptStatusFailed
	rec.receipt.Logs = []*types.Log{}
	rec.revertReason = reason
}

func (b *Backend) requiredGas(to *common.Address, data []byte) uint64 {
	gas := intrinsicGas(to, data)
	if to != nil && *to == b.factory && len(data) > common.HashLength {
		words := (uint64(len(data)-common.HashLength) + 31) / 32
		gas += params.Create2Gas + params.Keccak256WordGas*words
	}
	return gas
}

func intrinsicGas(to *common.Address, data []byte) uint64 {
	gas := params.TxGas
	if to == nil {
		gas = params.TxGasContractCreation
	}
	for _, c := range data {
		if c == 0 {
			gas += params.TxDataZeroGas
		} else {
			gas += params.TxDataNonZeroGasEIP2028
		}
	}
	return gas
}

func checkIntrinsic(gas uint64, to *common.Address, data []byte) error {
	if want := intrinsicGas(to, data); gas < want {
		return serverError("intrinsic gas too low: have %d, want %d", gas, want)
	}
	return nil
}
