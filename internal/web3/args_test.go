package web3

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	xerrors "LSRWA-Express/internal/errors"
)

const argsTestABI = `[
  {"type":"constructor","inputs":[{"name":"usdc","type":"address"},{"name":"token","type":"address"}],"stateMutability":"nonpayable"},
  {"type":"function","name":"requestDeposit","inputs":[{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"mixed","inputs":[
    {"name":"small","type":"uint8"},
    {"name":"delta","type":"int64"},
    {"name":"flag","type":"bool"},
    {"name":"tag","type":"bytes32"},
    {"name":"memo","type":"string"}
  ],"outputs":[],"stateMutability":"nonpayable"}
]`

func TestParseAddress(t *testing.T) {
	if _, err := ParseAddress("USDC_ADDRESS", ""); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("empty address: unexpected error %v", err)
	}
	if _, err := ParseAddress("USDC_ADDRESS", "0x1234"); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("short address: unexpected error %v", err)
	}

	checksummed := "0x5c4518abFE8f7560C1b12e01FD550c3a05377910"
	addr, err := ParseAddress("USDC_ADDRESS", checksummed)
	if err != nil {
		t.Fatalf("checksummed address rejected: %v", err)
	}
	if addr.Hex() != checksummed {
		t.Fatalf("unexpected address %s", addr.Hex())
	}
	if _, err := ParseAddress("USDC_ADDRESS", strings.ToLower(checksummed)); err != nil {
		t.Fatalf("lowercase address rejected: %v", err)
	}

	broken := "0x5C4518abFE8f7560C1b12e01FD550c3a05377910"
	if _, err := ParseAddress("USDC_ADDRESS", broken); err == nil {
		t.Fatal("expected checksum failure")
	}
}

func TestCoerceArgs(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(argsTestABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}

	ctorArgs, err := CoerceArgs(parsed.Constructor.Inputs, []string{
		"0x5c4518abFE8f7560C1b12e01FD550c3a05377910",
		"0xDDA9bF84d2bBb543B49Dd9dB4f32de3c7b19aCa2",
	})
	if err != nil {
		t.Fatalf("coerce constructor args: %v", err)
	}
	if ctorArgs[1].(common.Address) != common.HexToAddress("0xDDA9bF84d2bBb543B49Dd9dB4f32de3c7b19aCa2") {
		t.Fatalf("unexpected token arg %v", ctorArgs[1])
	}
	if _, err := parsed.Pack("", ctorArgs...); err != nil {
		t.Fatalf("constructor args must pack: %v", err)
	}

	deposit, err := CoerceArgs(parsed.Methods["requestDeposit"].Inputs, []string{"100000000000000000"})
	if err != nil {
		t.Fatalf("coerce deposit: %v", err)
	}
	if deposit[0].(*big.Int).Cmp(big.NewInt(100_000_000_000_000_000)) != 0 {
		t.Fatalf("unexpected amount %v", deposit[0])
	}

	mixed, err := CoerceArgs(parsed.Methods["mixed"].Inputs, []string{"255", "-5", "true", "0x01ff", "hello"})
	if err != nil {
		t.Fatalf("coerce mixed: %v", err)
	}
	if mixed[0].(uint8) != 255 || mixed[1].(int64) != -5 || mixed[2].(bool) != true || mixed[4].(string) != "hello" {
		t.Fatalf("unexpected mixed values %#v", mixed)
	}
	tag := mixed[3].([32]byte)
	if tag[0] != 0x01 || tag[1] != 0xff || tag[2] != 0 {
		t.Fatalf("unexpected bytes32 %x", tag)
	}
	if _, err := parsed.Pack("mixed", mixed...); err != nil {
		t.Fatalf("mixed args must pack: %v", err)
	}
}

func TestCoerceArgsRejectsBadInput(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(argsTestABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	mixed := parsed.Methods["mixed"].Inputs

	cases := map[string][]string{
		"uint8 overflow": {"256", "0", "true", "0x00", ""},
		"negative uint":  {"-1", "0", "true", "0x00", ""},
		"bad bool":       {"1", "0", "maybe", "0x00", ""},
		"bad bytes":      {"1", "0", "true", "zz", ""},
		"wrong count":    {"1"},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := CoerceArgs(mixed, raw); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}
