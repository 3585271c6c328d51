package sandbox

import (
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/deploycheck/internal/chains/evm"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBackend(t *testing.T, opts ...Option) (*Backend, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now), WithMiningDelay(time.Second)}, opts...)
	return New(opts...), clock
}

func factoryCall(from common.Address, salt [32]byte, initCode []byte) CallArgs {
	data := hexutil.Bytes(evm.Create2Scheme{}.CallData(salt, initCode))
	to := evm.DefaultFactory
	return CallArgs{From: &from, To: &to, Data: &data}
}

func TestDeriveKeys(t *testing.T) {
	a := DeriveKeys("seed", 3)
	b := DeriveKeys("seed", 3)
	require.Len(t, a, 3)

	seen := map[common.Address]bool{}
	for i := range a {
		addrA := crypto.PubkeyToAddress(a[i].PublicKey)
		assert.Equal(t, addrA, crypto.PubkeyToAddress(b[i].PublicKey))
		assert.False(t, seen[addrA], "keys must be distinct")
		seen[addrA] = true
	}

	other := DeriveKeys("other", 1)
	assert.NotEqual(t, crypto.PubkeyToAddress(a[0].PublicKey), crypto.PubkeyToAddress(other[0].PublicKey))
}

func TestBackend_Accounts(t *testing.T) {
	b, _ := newTestBackend(t, WithAccounts(4))
	accounts := b.Accounts()
	require.Len(t, accounts, 4)
	assert.Equal(t, accounts, b.Accounts(), "order must be stable")

	accounts[0] = common.Address{}
	assert.NotEqual(t, common.Address{}, b.Accounts()[0], "Accounts must return a copy")

	empty, _ := newTestBackend(t, WithAccounts(0))
	assert.Empty(t, empty.Accounts())
}

func TestBackend_Ready(t *testing.T) {
	b, clock := newTestBackend(t, WithStartupDelay(2*time.Second))
	assert.ErrorIs(t, b.Ready(), ErrNotReady)

	_, err := b.SendTransaction(factoryCall(b.Accounts()[0], [32]byte{1}, []byte{0x60}))
	require.Error(t, err)

	clock.Advance(2 * time.Second)
	assert.NoError(t, b.Ready())
}

func TestBackend_FactoryDeployment(t *testing.T) {
	b, clock := newTestBackend(t)
	deployer := b.Accounts()[0]
	salt := [32]byte{7}
	initCode := []byte{0x60, 0x80, 0x60, 0x40}

	hash, err := b.SendTransaction(factoryCall(deployer, salt, initCode))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), b.NonceAt(deployer))

	receipt, _, err := b.Receipt(hash)
	require.NoError(t, err)
	assert.Nil(t, receipt, "receipt must be hidden until mined")
	assert.Equal(t, []common.Hash{hash}, b.Pending())
	assert.Empty(t, b.Deployments())

	clock.Advance(time.Second)

	receipt, reason, err := b.Receipt(hash)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Empty(t, reason)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	assert.Empty(t, b.Pending())

	want := evm.Create2Scheme{}.Address(evm.DefaultFactory, deployer, salt, initCode)
	got, ok := evm.DeployedAddress(receipt, evm.DefaultFactory)
	require.True(t, ok)
	assert.Equal(t, want, got)

	deployments := b.Deployments()
	require.Len(t, deployments, 1)
	assert.Equal(t, want, deployments[0].Address)
	assert.Equal(t, deployer, deployments[0].Deployer)
	assert.Equal(t, hash, deployments[0].TxHash)

	d, err := b.Deployment(want)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(initCode), d.InitCodeHash)

	_, err = b.Deployment(common.HexToAddress("0x01"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBackend_FailedDeployments(t *testing.T) {
	tooShort := hexutil.Bytes{1, 2, 3}
	factory := evm.DefaultFactory

	tests := []struct {
		name   string
		args   func(from common.Address) CallArgs
		reason string
	}{
		{
			name: "calldata shorter than salt",
			args: func(from common.Address) CallArgs {
				return CallArgs{From: &from, To: &factory, Data: &tooShort}
			},
			reason: ReasonShortCalldata,
		},
		{
			name: "empty init code",
			args: func(from common.Address) CallArgs {
				return factoryCall(from, [32]byte{1}, nil)
			},
			reason: ReasonEmptyInitCode,
		},
		{
			name: "invalid opcode",
			args: func(from common.Address) CallArgs {
				return factoryCall(from, [32]byte{1}, []byte{0xfe, 0x00})
			},
			reason: ReasonInvalidOpcode,
		},
		{
			name: "out of gas",
			args: func(from common.Address) CallArgs {
				args := factoryCall(from, [32]byte{1}, []byte{0x60, 0x80})
				gas := hexutil.Uint64(intrinsicGas(args.To, args.data()))
				args.Gas = &gas
				return args
			},
			reason: ReasonOutOfGas,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, clock := newTestBackend(t)
			hash, err := b.SendTransaction(tt.args(b.Accounts()[0]))
			require.NoError(t, err)

			clock.Advance(time.Second)
			receipt, reason, err := b.Receipt(hash)
			require.NoError(t, err)
			require.NotNil(t, receipt)
			assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)
			assert.Equal(t, tt.reason, reason)
			assert.Empty(t, receipt.Logs)
			assert.Empty(t, b.Deployments())
		})
	}
}

func TestBackend_CreateCollision(t *testing.T) {
	b, clock := newTestBackend(t)
	deployer := b.Accounts()[0]
	args := factoryCall(deployer, [32]byte{9}, []byte{0x60})

	first, err := b.SendTransaction(args)
	require.NoError(t, err)
	second, err := b.SendTransaction(args)
	require.NoError(t, err)

	clock.Advance(time.Second)

	r1, _, err := b.Receipt(first)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, r1.Status)

	r2, reason, err := b.Receipt(second)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusFailed, r2.Status)
	assert.Equal(t, ReasonCreateCollision, reason)

	// the same salt from another deployer does not collide
	other, err := b.SendTransaction(factoryCall(b.Accounts()[1], [32]byte{9}, []byte{0x60}))
	require.NoError(t, err)
	clock.Advance(time.Second)
	r3, _, err := b.Receipt(other)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, r3.Status)
}

func TestBackend_SubmissionErrors(t *testing.T) {
	b, _ := newTestBackend(t)
	from := b.Accounts()[0]

	t.Run("intrinsic gas too low", func(t *testing.T) {
		args := factoryCall(from, [32]byte{1}, []byte{0x60})
		gas := hexutil.Uint64(21000)
		args.Gas = &gas
		_, err := b.SendTransaction(args)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "intrinsic gas too low")
		assert.Equal(t, codeServerError, err.(*rpcError).ErrorCode())
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := b.SendTransaction(factoryCall(common.HexToAddress("0xdead"), [32]byte{1}, []byte{0x60}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown account")
	})

	t.Run("missing from", func(t *testing.T) {
		_, err := b.SendTransaction(CallArgs{})
		require.Error(t, err)
		assert.Equal(t, codeInvalidParams, err.(*rpcError).ErrorCode())
	})
}

func TestBackend_SendRawTransaction(t *testing.T) {
	b, clock := newTestBackend(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	signer := types.LatestSignerForChainID(b.ChainID())

	data := evm.Create2Scheme{}.CallData([32]byte{3}, []byte{0x60, 0x80})
	to := evm.DefaultFactory
	sign := func(nonce uint64) []byte {
		tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &to,
			Gas:      b.requiredGas(&to, data),
			GasPrice: big.NewInt(1),
			Data:     data,
		}), signer, key)
		require.NoError(t, err)
		raw, err := tx.MarshalBinary()
		require.NoError(t, err)
		return raw
	}

	_, err = b.SendRawTransaction(sign(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonce too high")

	hash, err := b.SendRawTransaction(sign(0))
	require.NoError(t, err)

	_, err = b.SendRawTransaction(sign(0))
	require.Error(t, err)

	clock.Advance(time.Second)
	receipt, _, err := b.Receipt(hash)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	got, ok := evm.DeployedAddress(receipt, evm.DefaultFactory)
	require.True(t, ok)
	assert.Equal(t, evm.Create2Scheme{}.Address(evm.DefaultFactory, from, [32]byte{3}, []byte{0x60, 0x80}), got)
}

func TestBackend_UnknownReceipt(t *testing.T) {
	b, _ := newTestBackend(t)
	_, _, err := b.Receipt(common.HexToHash("0x01"))
	assert.ErrorIs(t, err, ErrNotFound)
}
