// Package evm provides the EVM chain module: CREATE2 address commitment,
// constructor encoding and artifact loading.
package evm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pendergraft/deploycheck/internal/chains"
)

// DefaultFactory is the deployment factory the sandbox installs.
var DefaultFactory = common.HexToAddress("0x00000000000000000000000000000000dec0de01")

// SchemeName identifies Create2Scheme.
const SchemeName = "create2-guarded"

// Create2Scheme derives addresses as
//
//	CREATE2(factory, keccak256(pad32(deployer) ++ salt), keccak256(initCode))
//
// where initCode is the creation bytecode followed by the ABI-encoded constructor arguments.
type Create2Scheme struct{}

var _ chains.Scheme = Create2Scheme{}

// Name returns the scheme identifier
func (Create2Scheme) Name() string {
	return SchemeName
}

// EncodeConstructor coerces and ABI-encodes constructor arguments.
func (Create2Scheme) EncodeConstructor(desc *chains.Descriptor, args []any) ([]byte, []any, error) {
	coerced, err := CoerceArgs(desc.ConstructorInputs(), args)
	if err != nil {
		return nil, nil, err
	}
	if len(coerced) == 0 {
		return nil, coerced, nil
	}
	packed, err := desc.ConstructorInputs().Pack(coerced...)
	if err != nil {
		return nil, nil, fmt.Errorf("packing constructor arguments: %w", err)
	}
	return packed, coerced, nil
}

// GuardSalt returns keccak256(abi.encode(deployer, salt)).
func (Create2Scheme) GuardSalt(deployer common.Address, salt [32]byte) [32]byte {
	return crypto.Keccak256Hash(common.LeftPadBytes(deployer.Bytes(), 32), salt[:])
}

// Address computes the CREATE2 address the factory will deploy to.
func (s Create2Scheme) Address(factory, deployer common.Address, salt [32]byte, initCode []byte) common.Address {
	return crypto.CreateAddress2(factory, s.GuardSalt(deployer, salt), crypto.Keccak256(initCode))
}

// CallData returns salt ++ initCode.
func (Create2Scheme) CallData(salt [32]byte, initCode []byte) []byte {
	data := make([]byte, 0, len(salt)+len(initCode))
	data = append(data, salt[:]...)
	return append(data, initCode...)
}

// SplitCallData is the inverse of CallData.
func SplitCallData(data []byte) (salt [32]byte, initCode []byte, err error) {
	if len(data) < len(salt) {
		return salt, nil, fmt.Errorf("calldata too short: %d bytes", len(data))
	}
	copy(salt[:], data[:32])
	return salt, data[32:], nil
}
