package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainSnapshot represents summarized network metadata for reporting.
type ChainSnapshot struct {
	Name        string
	ChainID     string
	BlockNumber string
	Notes       string
}

// DeploymentResult captures the outcome of a contract deployment request.
type DeploymentResult struct {
	ContractAddress common.Address
	Transaction     *types.Transaction
}

// Client defines the chain operations the deployment commands rely on so
// they can run against a live RPC endpoint or an in-process simulated chain.
type Client interface {
	Name() string
	ChainID(ctx context.Context) (*big.Int, error)
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	DeployContract(ctx context.Context, auth *bind.TransactOpts, contractABI abi.ABI, bytecode []byte, params ...any) (DeploymentResult, error)
	Transact(ctx context.Context, auth *bind.TransactOpts, address common.Address, contractABI abi.ABI, method string, params ...any) (*types.Transaction, error)
	Call(ctx context.Context, address common.Address, contractABI abi.ABI, method string, params ...any) ([]any, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	WaitDeployed(ctx context.Context, tx *types.Transaction) (common.Address, error)
	Close()
}
