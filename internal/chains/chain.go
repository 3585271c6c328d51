// Package chains provides the chain module interfaces used to derive deployment
// addresses and the contract descriptor they operate on.
package chains

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoBytecode is returned for artifacts without creation code (interfaces, abstract contracts).
var ErrNoBytecode = errors.New("contract has no bytecode")

// Scheme is the commitment used to compute a contract address before broadcasting.
// Implementations must be pure: identical inputs yield identical outputs.
type Scheme interface {
	// Name identifies the scheme ("create2-guarded")
	Name() string

	// EncodeConstructor coerces args to the constructor's types and ABI-encodes them.
	// It returns the coerced values alongside the encoding.
	EncodeConstructor(desc *Descriptor, args []any) ([]byte, []any, error)

	// GuardSalt binds a salt to a deployer so that two deployers never collide.
	GuardSalt(deployer common.Address, salt [32]byte) [32]byte

	// Address computes the deployment address for the given init code.
	Address(factory, deployer common.Address, salt [32]byte, initCode []byte) common.Address

	// CallData builds the factory calldata for a deployment.
	CallData(salt [32]byte, initCode []byte) []byte
}

// Descriptor is an immutable contract artifact: interface plus creation code.
// It is loaded once and shared by every deployment that references it.
type Descriptor struct {
	Name       string
	Version    string // optional, semver
	SourcePath string
	ABI        abi.ABI
	Bytecode   []byte

	// ID is keccak256(Bytecode); it identifies the descriptor in derivations.
	ID common.Hash
}

// NewDescriptor builds a descriptor from a parsed ABI and creation bytecode.
func NewDescriptor(name string, contractABI abi.ABI, bytecode []byte) (*Descriptor, error) {
	if len(bytecode) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNoBytecode)
	}
	code := make([]byte, len(bytecode))
	copy(code, bytecode)
	return &Descriptor{
		Name:     name,
		ABI:      contractABI,
		Bytecode: code,
		ID:       crypto.Keccak256Hash(code),
	}, nil
}

// ConstructorInputs returns the constructor signature; empty when the ABI has no constructor.
func (d *Descriptor) ConstructorInputs() abi.Arguments {
	return d.ABI.Constructor.Inputs
}

// ConstructorSignature renders the constructor as "constructor(address,string,...)".
func (d *Descriptor) ConstructorSignature() string {
	inputs := d.ConstructorInputs()
	sig := "constructor("
	for i, in := range inputs {
		if i > 0 {
			sig += ","
		}
		sig += in.Type.String()
	}
	return sig + ")"
}

// String returns "Name@Version" or just the name.
func (d *Descriptor) String() string {
	if d.Version != "" {
		return d.Name + "@" + d.Version
	}
	return d.Name
}
