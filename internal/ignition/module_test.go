package ignition

import (
	"os"
	"path/filepath"
	"testing"

	xerrors "LSRWA-Express/internal/errors"
)

const sampleModule = `
module: LSRWAExpress
futures:
  - contract: LSRWAExpress
    args: ["${USDC_ADDRESS}", "0xDDA9bF84d2bBb543B49Dd9dB4f32de3c7b19aCa2"]
  - id: Mirror
    contract: LSRWAExpress
    args: ["@LSRWAExpress", "0xDDA9bF84d2bBb543B49Dd9dB4f32de3c7b19aCa2"]
  - call: requestDeposit
    target: LSRWAExpress
    args: [100000000000000000]
    value: "0"
returns:
  express: LSRWAExpress
`

func TestParseDefaultsIDs(t *testing.T) {
	module, err := Parse([]byte(sampleModule))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if module.Name != "LSRWAExpress" || len(module.Futures) != 3 {
		t.Fatalf("unexpected module %+v", module)
	}
	ids := []string{"LSRWAExpress", "Mirror", "LSRWAExpress.requestDeposit"}
	for i, want := range ids {
		if module.Futures[i].ID != want {
			t.Fatalf("future %d: expected id %s, got %s", i, want, module.Futures[i].ID)
		}
	}
	if got := module.FutureID(module.Futures[2]); got != "LSRWAExpress#LSRWAExpress.requestDeposit" {
		t.Fatalf("unexpected journal id %s", got)
	}
	// Large integers keep their literal text.
	if arg := module.Futures[2].Args[0]; arg != "100000000000000000" {
		t.Fatalf("unexpected argument %q", arg)
	}
	if module.Futures[2].Kind() != FutureCall || module.Futures[0].Kind() != FutureContract {
		t.Fatal("unexpected future kinds")
	}
	if _, ok := module.Future("Mirror"); !ok {
		t.Fatal("expected Mirror future")
	}
}

func TestParseRejectsInvalidModules(t *testing.T) {
	cases := map[string]string{
		"missing name":     "futures:\n  - contract: A\n",
		"no futures":       "module: M\n",
		"both kinds":       "module: M\nfutures:\n  - contract: A\n    call: f\n",
		"unknown target":   "module: M\nfutures:\n  - call: f\n    target: A\n",
		"forward ref":      "module: M\nfutures:\n  - contract: A\n    args: ['@B']\n  - contract: B\n",
		"duplicate id":     "module: M\nfutures:\n  - contract: A\n  - contract: A\n",
		"unknown field":    "module: M\nfutures:\n  - contract: A\n    gas: 1\n",
		"bad return":       "module: M\nfutures:\n  - contract: A\nreturns:\n  x: B\n",
		"contract value":   "module: M\nfutures:\n  - contract: A\n    value: '1'\n",
		"non scalar arg":   "module: M\nfutures:\n  - contract: A\n    args: [[1, 2]]\n",
		"hash in the name": "module: 'M#1'\nfutures:\n  - contract: A\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestLoadByName(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "LSRWAExpress.yaml"), []byte(sampleModule), 0o644); err != nil {
		t.Fatalf("write module: %v", err)
	}
	module, err := Load(dir, "LSRWAExpress")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if module.Path() != filepath.Join(dir, "LSRWAExpress.yaml") {
		t.Fatalf("unexpected path %s", module.Path())
	}
	if _, err := Load(dir, "Missing"); xerrors.CodeOf(err) != xerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
