package ignition

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	xerrors "LSRWA-Express/internal/errors"
	"LSRWA-Express/internal/web3/ethtest"
)

func TestResolveArgs(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(ethtest.ContractABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	lookup := func(name string) string {
		if name == "USDC_ADDRESS" {
			return "0x5c4518abFE8f7560C1b12e01FD550c3a05377910"
		}
		return ""
	}
	deployed := common.HexToAddress("0xDDA9bF84d2bBb543B49Dd9dB4f32de3c7b19aCa2")

	values, raw, err := resolveArgs(parsed.Constructor.Inputs, []Arg{"${USDC_ADDRESS}", "@Token"}, lookup,
		map[string]common.Address{"Token": deployed})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if values[0].(common.Address) != common.HexToAddress("0x5c4518abFE8f7560C1b12e01FD550c3a05377910") {
		t.Fatalf("unexpected usdc %v", values[0])
	}
	if values[1].(common.Address) != deployed || raw[1] != deployed.Hex() {
		t.Fatalf("unexpected token %v (%s)", values[1], raw[1])
	}

	if _, _, err := resolveArgs(parsed.Constructor.Inputs, []Arg{"${MISSING}", "@Token"}, lookup, nil); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected missing variable error, got %v", err)
	} else if !strings.Contains(err.Error(), "MISSING") {
		t.Fatalf("error should name the variable: %v", err)
	}
	if _, _, err := resolveArgs(parsed.Constructor.Inputs, []Arg{"${USDC_ADDRESS}", "@Token"}, lookup, nil); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected unresolved reference error, got %v", err)
	}
}

func TestParseValue(t *testing.T) {
	if v, err := parseValue(""); err != nil || v != nil {
		t.Fatalf("empty value: %v %v", v, err)
	}
	if v, err := parseValue("1_000"); err != nil || v.Int64() != 1000 {
		t.Fatalf("underscored value: %v %v", v, err)
	}
	if v, err := parseValue("0x10"); err != nil || v.Int64() != 16 {
		t.Fatalf("hex value: %v %v", v, err)
	}
	for _, bad := range []string{"-1", "ten"} {
		if _, err := parseValue(bad); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
			t.Fatalf("%s: expected invalid argument, got %v", bad, err)
		}
	}
}
