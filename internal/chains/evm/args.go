package evm

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/deploycheck/internal/chains"
)

var bigIntType = reflect.TypeOf(&big.Int{})

var (
	errOutOfRange  = errors.New("value out of range")
	errNotInteger  = errors.New("not an integer")
	errBadAddress  = errors.New("not a hex address")
	errBadLength   = errors.New("wrong byte length")
	errUnsupported = errors.New("unsupported conversion")
)

// CoerceArgs converts loosely typed values (Go literals or JSON-decoded values)
// into the Go types go-ethereum's ABI encoder expects for inputs.
func CoerceArgs(inputs abi.Arguments, values []any) ([]any, error) {
	if len(values) != len(inputs) {
		return nil, &chains.ArityError{Want: len(inputs), Got: len(values)}
	}

	out := make([]any, len(values))
	for i, in := range inputs {
		v, err := coerce(in.Type, values[i])
		if err != nil {
			return nil, &chains.ArgTypeError{
				Index: i,
				Param: in.Name,
				Want:  in.Type.String(),
				Got:   typeName(values[i]),
				Err:   err,
			}
		}
		out[i] = v
	}
	return out, nil
}

func coerce(t abi.Type, v any) (any, error) {
	goType := t.GetType()
	if v != nil && reflect.TypeOf(v) == goType {
		return v, nil
	}

	switch t.T {
	case abi.AddressTy:
		switch x := v.(type) {
		case string:
			if !common.IsHexAddress(x) {
				return nil, errBadAddress
			}
			return common.HexToAddress(x), nil
		case *common.Address:
			if x == nil {
				return nil, errBadAddress
			}
			return *x, nil
		}

	case abi.BoolTy:
		if s, ok := v.(string); ok {
			switch strings.ToLower(s) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}

	case abi.IntTy, abi.UintTy:
		n, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		if !fitsInt(n, t.Size, t.T == abi.IntTy) {
			return nil, errOutOfRange
		}
		if goType == bigIntType {
			return n, nil
		}
		rv := reflect.New(goType).Elem()
		if t.T == abi.UintTy {
			rv.SetUint(n.Uint64())
		} else {
			rv.SetInt(n.Int64())
		}
		return rv.Interface(), nil

	case abi.FixedBytesTy:
		b, err := toBytes(v)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, errBadLength
		}
		rv := reflect.New(goType).Elem()
		reflect.Copy(rv, reflect.ValueOf(b))
		return rv.Interface(), nil

	case abi.BytesTy:
		return toBytes(v)
	}

	return nil, errUnsupported
}

func toBigInt(v any) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, errNotInteger
		}
		return new(big.Int).Set(x), nil
	case int:
		return big.NewInt(int64(x)), nil
	case int8:
		return big.NewInt(int64(x)), nil
	case int16:
		return big.NewInt(int64(x)), nil
	case int32:
		return big.NewInt(int64(x)), nil
	case int64:
		return big.NewInt(x), nil
	case uint:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint64:
		return new(big.Int).SetUint64(x), nil
	case float64:
		// JSON numbers decode to float64; only exact integers are accepted.
		if x != math.Trunc(x) || math.Abs(x) > 1<<53 {
			return nil, errNotInteger
		}
		return big.NewInt(int64(x)), nil
	case json.Number:
		return parseBigInt(x.String())
	case string:
		return parseBigInt(x)
	}
	return nil, errNotInteger
}

func parseBigInt(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 0)
	if !ok {
		return nil, errNotInteger
	}
	return n, nil
}

func fitsInt(n *big.Int, bits int, signed bool) bool {
	if !signed {
		return n.Sign() >= 0 && n.BitLen() <= bits
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
	if n.Sign() >= 0 {
		return n.Cmp(limit) < 0
	}
	return new(big.Int).Neg(n).Cmp(limit) <= 0
}

func toBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		b, err := hex.DecodeString(strings.TrimPrefix(x, "0x"))
		if err != nil {
			return nil, fmt.Errorf("decoding hex: %w", err)
		}
		return b, nil
	}
	return nil, errUnsupported
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
