// Package ethtest provides an in-process chain and a minimal ownable
// contract for exercising deployment flows without a live network.
package ethtest

import (
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
)

// ChainID is the chain id reported by the simulated backend.
const ChainID = 1337

// ContractABI mirrors the LSRWAExpress surface used by the deploy commands.
const ContractABI = `[
  {"type":"constructor","inputs":[{"name":"usdc","type":"address"},{"name":"token","type":"address"}],"stateMutability":"nonpayable"},
  {"type":"function","name":"owner","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
  {"type":"function","name":"transferOwnership","inputs":[{"name":"newOwner","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"requestDeposit","inputs":[{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"}
]`

// ContractBin stores msg.sender as owner at construction. The runtime
// answers owner(), lets the owner call transferOwnership(address) and
// accepts any other selector without effect. Constructor arguments appended
// to the creation code are ignored.
const ContractBin = "0x33600055603c80600f6000396000f360003560e01c80638da5cb5b14601b578063f2fde38b14602757005b60005460005260206000f35b6000543314603457600080fd5b60043560005500"

// DeployedBin is the runtime part of ContractBin.
const DeployedBin = "0x60003560e01c80638da5cb5b14601b578063f2fde38b14602757005b60005460005260206000f35b6000543314603457600080fd5b60043560005500"

// Account is a funded key on the simulated chain.
type Account struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// HexKey returns the private key hex encoded without prefix.
func (a Account) HexKey() string {
	return common.Bytes2Hex(crypto.FromECDSA(a.Key))
}

// NewAccount generates a fresh key.
func NewAccount(t testing.TB) Account {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return Account{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}
}

// NewBackend starts a simulated chain funding every account with 100 ether.
// The backend is closed when the test ends.
func NewBackend(t testing.TB, accounts ...Account) *simulated.Backend {
	t.Helper()
	balance := new(big.Int).Mul(big.NewInt(100), big.NewInt(params.Ether))
	alloc := types.GenesisAlloc{}
	for _, account := range accounts {
		alloc[account.Address] = types.Account{Balance: balance}
	}
	backend := simulated.NewBackend(alloc)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

// BuildInfoID names the build-info file written by WriteArtifacts.
const BuildInfoID = "a1b2c3d4e5f60718293a4b5c6d7e8f90"

// WriteArtifacts lays out a Hardhat artifacts tree for LSRWAExpress under
// dir and returns dir.
func WriteArtifacts(t testing.TB, dir string) string {
	t.Helper()
	contractDir := filepath.Join(dir, "contracts", "LSRWAExpress.sol")
	buildDir := filepath.Join(dir, "build-info")
	for _, d := range []string{contractDir, buildDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}

	artifact := map[string]any{
		"_format":          "hh-sol-artifact-1",
		"contractName":     "LSRWAExpress",
		"sourceName":       "contracts/LSRWAExpress.sol",
		"abi":              json.RawMessage(ContractABI),
		"bytecode":         ContractBin,
		"deployedBytecode": DeployedBin,
	}
	buildInfo := map[string]any{
		"_format":         "hh-sol-build-info-1",
		"id":              BuildInfoID,
		"solcVersion":     "0.8.30",
		"solcLongVersion": "0.8.30+commit.73712a01",
		"input": map[string]any{
			"language": "Solidity",
			"sources": map[string]any{
				"contracts/LSRWAExpress.sol": map[string]string{"content": "// SPDX-License-Identifier: MIT\npragma solidity ^0.8.30;\n"},
			},
			"settings": map[string]any{
				"optimizer": map[string]any{"enabled": true, "runs": 200},
			},
		},
	}
	writeJSON(t, filepath.Join(contractDir, "LSRWAExpress.json"), artifact)
	writeJSON(t, filepath.Join(contractDir, "LSRWAExpress.dbg.json"), map[string]string{
		"_format":   "hh-sol-dbg-1",
		"buildInfo": "../../build-info/" + BuildInfoID + ".json",
	})
	writeJSON(t, filepath.Join(buildDir, BuildInfoID+".json"), buildInfo)
	return dir
}

func writeJSON(t testing.TB, path string, value any) {
	t.Helper()
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
