// Package derive computes where a contract will be deployed before any
// transaction is sent.
package derive

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pendergraft/deploycheck/internal/chains"
	"github.com/pendergraft/deploycheck/internal/validation"
)

var (
	// ErrArgumentMismatch is returned when constructor arguments do not fit the signature.
	ErrArgumentMismatch = errors.New("constructor argument mismatch")
	// ErrNoDescriptor is returned when a request carries no contract descriptor.
	ErrNoDescriptor = errors.New("no contract descriptor")
)

// ArgumentMismatchError describes a constructor argument list that does not
// fit the contract. Index is -1 when the arity is wrong.
type ArgumentMismatchError struct {
	Contract string
	Index    int
	Param    string
	Want     string
	Got      string
	Err      error
}

func (e *ArgumentMismatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s: want %s argument(s), got %s", ErrArgumentMismatch, e.Contract, e.Want, e.Got)
	}
	param := e.Param
	if param == "" {
		param = fmt.Sprintf("#%d", e.Index)
	}
	msg := fmt.Sprintf("%s: %s argument %d (%s): want %s, got %s", ErrArgumentMismatch, e.Contract, e.Index, param, e.Want, e.Got)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ArgumentMismatchError) Unwrap() error {
	return ErrArgumentMismatch
}

// Salt is a 32-byte deployment salt.
type Salt [32]byte

// NewSalt returns a random salt.
func NewSalt() (Salt, error) {
	var s Salt
	if _, err := rand.Read(s[:]); err != nil {
		return Salt{}, fmt.Errorf("generating salt: %w", err)
	}
	return s, nil
}

// ParseSalt parses a 0x-prefixed 32-byte hex salt.
func ParseSalt(s string) (Salt, error) {
	if err := validation.ValidateSalt(s); err != nil {
		return Salt{}, err
	}
	var out Salt
	copy(out[:], common.FromHex(s))
	return out, nil
}

func (s Salt) String() string {
	return hexutil.Encode(s[:])
}

// Request is everything an address depends on.
type Request struct {
	Descriptor *chains.Descriptor
	Args       []any
	Salt       Salt
	Deployer   common.Address
}

// Plan is a derived deployment, ready to be turned into a transaction.
type Plan struct {
	Contract     string
	DescriptorID common.Hash
	Scheme       string
	Factory      common.Address
	Deployer     common.Address
	Salt         Salt
	GuardedSalt  common.Hash
	Args         []any // coerced to ABI types
	InitCode     []byte
	InitCodeHash common.Hash
	CallData     []byte
	Address      common.Address
}

// Deriver computes plans. It holds no mutable state.
type Deriver struct {
	scheme  chains.Scheme
	factory common.Address
}

// New creates a deriver for the given commitment scheme and factory.
func New(scheme chains.Scheme, factory common.Address) *Deriver {
	return &Deriver{scheme: scheme, factory: factory}
}

// Factory returns the factory address plans are derived for.
func (d *Deriver) Factory() common.Address {
	return d.factory
}

// Derive validates req and computes its deployment address. It performs no I/O.
func (d *Deriver) Derive(req Request) (*Plan, error) {
	desc := req.Descriptor
	if desc == nil {
		return nil, ErrNoDescriptor
	}
	if len(desc.Bytecode) == 0 {
		return nil, fmt.Errorf("%s: %w", desc.Name, chains.ErrNoBytecode)
	}

	encoded, coerced, err := d.scheme.EncodeConstructor(desc, req.Args)
	if err != nil {
		return nil, mismatch(desc.Name, err)
	}

	initCode := make([]byte, 0, len(desc.Bytecode)+len(encoded))
	initCode = append(initCode, desc.Bytecode...)
	initCode = append(initCode, encoded...)

	return &Plan{
		Contract:     desc.String(),
		DescriptorID: desc.ID,
		Scheme:       d.scheme.Name(),
		Factory:      d.factory,
		Deployer:     req.Deployer,
		Salt:         req.Salt,
		GuardedSalt:  d.scheme.GuardSalt(req.Deployer, req.Salt),
		Args:         coerced,
		InitCode:     initCode,
		InitCodeHash: crypto.Keccak256Hash(initCode),
		CallData:     d.scheme.CallData(req.Salt, initCode),
		Address:      d.scheme.Address(d.factory, req.Deployer, req.Salt, initCode),
	}, nil
}

func mismatch(contract string, err error) error {
	var arity *chains.ArityError
	if errors.As(err, &arity) {
		return &ArgumentMismatchError{
			Contract: contract,
			Index:    -1,
			Want:     fmt.Sprint(arity.Want),
			Got:      fmt.Sprint(arity.Got),
		}
	}
	var typ *chains.ArgTypeError
	if errors.As(err, &typ) {
		return &ArgumentMismatchError{
			Contract: contract,
			Index:    typ.Index,
			Param:    typ.Param,
			Want:     typ.Want,
			Got:      typ.Got,
			Err:      typ.Err,
		}
	}
	return fmt.Errorf("%s: encoding constructor: %w", contract, err)
}
