package derive

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/deploycheck/internal/chains"
	"github.com/pendergraft/deploycheck/internal/chains/evm"
)

const tokenABI = `[{"type":"constructor","stateMutability":"nonpayable","inputs":[
	{"name":"admin","type":"address"},
	{"name":"name","type":"string"},
	{"name":"symbol","type":"string"},
	{"name":"decimals","type":"uint8"}]}]`

var (
	deployer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	admin    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func token(t *testing.T, bytecode []byte) *chains.Descriptor {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(tokenABI))
	require.NoError(t, err)
	desc, err := chains.NewDescriptor("Token", parsed, bytecode)
	require.NoError(t, err)
	return desc
}

func baseRequest(t *testing.T) Request {
	return Request{
		Descriptor: token(t, []byte{0x60, 0x80, 0x60, 0x40, 0x52}),
		Args:       []any{admin, "TokenA", "AAA", 18},
		Salt:       Salt{0x01},
		Deployer:   deployer,
	}
}

func TestDerive_Deterministic(t *testing.T) {
	d := New(evm.Create2Scheme{}, evm.DefaultFactory)

	first, err := d.Derive(baseRequest(t))
	require.NoError(t, err)
	second, err := d.Derive(baseRequest(t))
	require.NoError(t, err)

	assert.Equal(t, first.Address, second.Address)
	assert.Equal(t, first.InitCodeHash, second.InitCodeHash)
	assert.Equal(t, first.CallData, second.CallData)
}

func TestDerive_Plan(t *testing.T) {
	d := New(evm.Create2Scheme{}, evm.DefaultFactory)
	req := baseRequest(t)

	plan, err := d.Derive(req)
	require.NoError(t, err)

	assert.Equal(t, "Token", plan.Contract)
	assert.Equal(t, evm.SchemeName, plan.Scheme)
	assert.Equal(t, evm.DefaultFactory, plan.Factory)
	assert.Equal(t, deployer, plan.Deployer)
	assert.Equal(t, req.Descriptor.ID, plan.DescriptorID)
	assert.Equal(t, crypto.Keccak256Hash(plan.InitCode), plan.InitCodeHash)
	assert.True(t, strings.HasPrefix(string(plan.InitCode), string(req.Descriptor.Bytecode)))

	// coerced to ABI types
	require.Len(t, plan.Args, 4)
	assert.Equal(t, uint8(18), plan.Args[3])

	salt, initCode, err := evm.SplitCallData(plan.CallData)
	require.NoError(t, err)
	assert.Equal(t, [32]byte(req.Salt), salt)
	assert.Equal(t, plan.InitCode, initCode)

	guarded := crypto.Keccak256Hash(common.LeftPadBytes(deployer.Bytes(), 32), req.Salt[:])
	assert.Equal(t, guarded, plan.GuardedSalt)
	assert.Equal(t, crypto.CreateAddress2(evm.DefaultFactory, guarded, plan.InitCodeHash.Bytes()), plan.Address)
}

func TestDerive_SingleFieldSensitivity(t *testing.T) {
	d := New(evm.Create2Scheme{}, evm.DefaultFactory)
	base, err := d.Derive(baseRequest(t))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(r *Request)
	}{
		{"salt", func(r *Request) { r.Salt[31] ^= 1 }},
		{"deployer", func(r *Request) { r.Deployer = admin }},
		{"admin arg", func(r *Request) { r.Args[0] = deployer }},
		{"name arg", func(r *Request) { r.Args[1] = "TokenB" }},
		{"symbol arg", func(r *Request) { r.Args[2] = "BBB" }},
		{"decimals arg", func(r *Request) { r.Args[3] = 6 }},
		{"bytecode", func(r *Request) { r.Descriptor = token(t, []byte{0x60, 0x80, 0x60, 0x40, 0x53}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest(t)
			tt.mutate(&req)

			plan, err := d.Derive(req)
			require.NoError(t, err)
			assert.NotEqual(t, base.Address, plan.Address)
		})
	}

	t.Run("factory", func(t *testing.T) {
		other := New(evm.Create2Scheme{}, common.HexToAddress("0x00000000000000000000000000000000dec0de02"))
		plan, err := other.Derive(baseRequest(t))
		require.NoError(t, err)
		assert.NotEqual(t, base.Address, plan.Address)
	})
}

func TestDerive_ArgumentMismatch(t *testing.T) {
	d := New(evm.Create2Scheme{}, evm.DefaultFactory)

	tests := []struct {
		name      string
		args      []any
		wantIndex int
		wantParam string
	}{
		{"too few", []any{admin, "TokenA", "AAA"}, -1, ""},
		{"too many", []any{admin, "TokenA", "AAA", 18, true}, -1, ""},
		{"none", nil, -1, ""},
		{"bad address", []any{"not-an-address", "TokenA", "AAA", 18}, 0, "admin"},
		{"decimals overflow", []any{admin, "TokenA", "AAA", 256}, 3, "decimals"},
		{"decimals negative", []any{admin, "TokenA", "AAA", big.NewInt(-1)}, 3, "decimals"},
		{"name not a string", []any{admin, 42, "AAA", 18}, 1, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest(t)
			req.Args = tt.args

			_, err := d.Derive(req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrArgumentMismatch))

			var mismatch *ArgumentMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, "Token", mismatch.Contract)
			assert.Equal(t, tt.wantIndex, mismatch.Index)
			assert.Equal(t, tt.wantParam, mismatch.Param)
		})
	}
}

func TestDerive_InvalidDescriptor(t *testing.T) {
	d := New(evm.Create2Scheme{}, evm.DefaultFactory)

	_, err := d.Derive(Request{Args: []any{}})
	assert.True(t, errors.Is(err, ErrNoDescriptor))

	req := baseRequest(t)
	req.Descriptor = &chains.Descriptor{Name: "Empty"}
	_, err = d.Derive(req)
	assert.True(t, errors.Is(err, chains.ErrNoBytecode))
}

func TestSalt(t *testing.T) {
	a, err := NewSalt()
	require.NoError(t, err)
	b, err := NewSalt()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	parsed, err := ParseSalt(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	_, err = ParseSalt("0x1234")
	assert.Error(t, err)
}
