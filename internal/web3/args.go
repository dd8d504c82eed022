package web3

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "LSRWA-Express/internal/errors"
)

// ParseAddress validates a hex address read from the environment or a module
// file. Mixed-case input must carry a valid EIP-55 checksum.
func ParseAddress(name, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s is not set", name))
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s is not a valid address: %q", name, value))
	}
	addr := common.HexToAddress(value)
	body := strings.TrimPrefix(strings.TrimPrefix(value, "0x"), "0X")
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && addr.Hex()[2:] != body {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s has a bad address checksum: %q", name, value))
	}
	return addr, nil
}

// CoerceArgs converts textual arguments into the Go values expected by the
// ABI packer for the given inputs.
func CoerceArgs(inputs abi.Arguments, raw []string) ([]any, error) {
	if len(inputs) != len(raw) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("expected %d arguments, got %d", len(inputs), len(raw)))
	}
	values := make([]any, len(raw))
	for i, input := range inputs {
		name := input.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		value, err := coerce(name, input.Type, raw[i])
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

func coerce(name string, typ abi.Type, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch typ.T {
	case abi.AddressTy:
		return ParseAddress(name, raw)
	case abi.UintTy, abi.IntTy:
		return coerceInteger(name, typ, raw)
	case abi.BoolTy:
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s is not a bool: %q", name, raw))
		}
		return value, nil
	case abi.StringTy:
		return raw, nil
	case abi.BytesTy:
		value, err := hexutil.Decode(raw)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("%s is not hex bytes", name))
		}
		return value, nil
	case abi.FixedBytesTy:
		value, err := hexutil.Decode(raw)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("%s is not hex bytes", name))
		}
		if len(value) > typ.Size {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s exceeds bytes%d", name, typ.Size))
		}
		array := reflect.New(typ.GetType()).Elem()
		reflect.Copy(array, reflect.ValueOf(value))
		return array.Interface(), nil
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s has unsupported type %s", name, typ.String()))
	}
}

func coerceInteger(name string, typ abi.Type, raw string) (any, error) {
	n, ok := new(big.Int).SetString(strings.ReplaceAll(raw, "_", ""), 0)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s is not an integer: %q", name, raw))
	}
	if typ.T == abi.UintTy {
		if n.Sign() < 0 || n.BitLen() > typ.Size {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s out of range for uint%d", name, typ.Size))
		}
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(typ.Size-1))
		if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s out of range for int%d", name, typ.Size))
		}
	}

	goType := typ.GetType()
	if goType == reflect.TypeOf(&big.Int{}) {
		return n, nil
	}
	value := reflect.New(goType).Elem()
	switch goType.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		value.SetUint(n.Uint64())
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		value.SetInt(n.Int64())
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s has unsupported integer type %s", name, goType))
	}
	return value.Interface(), nil
}
