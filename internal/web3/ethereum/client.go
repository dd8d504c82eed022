package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "LSRWA-Express/internal/errors"
	"LSRWA-Express/internal/web3"
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name    string
	RPCURL  string
	ChainID int64
	Notes   string
}

// Backend is the subset of go-ethereum client methods used to deploy,
// transact, and wait for receipts. Both ethclient and the simulated backend
// satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Client implements the web3.Client interface for EVM compatible chains.
type Client struct {
	name      string
	notes     string
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
	backend   Backend
	// commit mines pending transactions on simulated chains.
	commit  func()
	chainID *big.Int
	mu      sync.Mutex
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use
// client. When cfg.ChainID is set the remote chain id must match it.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, fmt.Sprintf("network %s has no RPC url", cfg.Name))
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, fmt.Sprintf("dial network %s", cfg.Name))
	}
	eth := ethclient.NewClient(rpcClient)

	client := &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		rpcClient: rpcClient,
		eth:       eth,
		backend:   eth,
	}

	if cfg.ChainID > 0 {
		remote, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, err
		}
		if remote.Cmp(big.NewInt(cfg.ChainID)) != 0 {
			client.Close()
			return nil, xerrors.New(xerrors.CodeConfigInvalid,
				fmt.Sprintf("network %s expects chain id %d but RPC reports %s", cfg.Name, cfg.ChainID, remote))
		}
	}
	return client, nil
}

// NewSimulatedClient wraps a go-ethereum simulated backend. Every sent
// transaction is mined immediately.
func NewSimulatedClient(name string, sim *simulated.Backend) *Client {
	return &Client{
		name:    name,
		backend: sim.Client(),
		commit:  func() { sim.Commit() },
		notes:   "simulated backend",
	}
}

// Name returns the configured network name.
func (c *Client) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	c.rpcClient = nil
}

// ChainID returns the chain id reported by the node, caching the result.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if c == nil || c.backend == nil {
		return nil, errors.New("uninitialised ethereum client")
	}
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "fetch chain id")
	}
	c.mu.Lock()
	c.chainID = new(big.Int).Set(id)
	c.mu.Unlock()
	return id, nil
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	blockNumber, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "fetch latest block number")
	}
	return web3.ChainSnapshot{
		Name:        c.name,
		ChainID:     chainID.String(),
		BlockNumber: fmt.Sprintf("%d", blockNumber),
		Notes:       c.notes,
	}, nil
}

// DeployContract sends the contract creation transaction using the provided
// transact opts and bytecode.
func (c *Client) DeployContract(ctx context.Context, auth *bind.TransactOpts, contractABI abi.ABI, bytecode []byte, params ...any) (web3.DeploymentResult, error) {
	if auth == nil {
		return web3.DeploymentResult{}, xerrors.New(xerrors.CodeInvalidArgument, "no signer available for deployment")
	}
	if len(bytecode) == 0 {
		return web3.DeploymentResult{}, xerrors.New(xerrors.CodeInvalidArgument, "contract bytecode is empty")
	}

	originalCtx := auth.Context
	auth.Context = ctx
	defer func() { auth.Context = originalCtx }()

	address, tx, _, err := bind.DeployContract(auth, contractABI, bytecode, c.backend, params...)
	if err != nil {
		return web3.DeploymentResult{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "send deployment transaction")
	}
	c.mine()

	return web3.DeploymentResult{ContractAddress: address, Transaction: tx}, nil
}

// Transact invokes a state-changing contract method.
func (c *Client) Transact(ctx context.Context, auth *bind.TransactOpts, address common.Address, contractABI abi.ABI, method string, params ...any) (*coretypes.Transaction, error) {
	if auth == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "no signer available for transaction")
	}
	if _, ok := contractABI.Methods[method]; !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("method %s not found in contract ABI", method))
	}

	originalCtx := auth.Context
	auth.Context = ctx
	defer func() { auth.Context = originalCtx }()

	contract := bind.NewBoundContract(address, contractABI, c.backend, c.backend, c.backend)
	tx, err := contract.Transact(auth, method, params...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, fmt.Sprintf("send %s transaction", method))
	}
	c.mine()
	return tx, nil
}

// Call executes a read-only contract method against the latest block.
func (c *Client) Call(ctx context.Context, address common.Address, contractABI abi.ABI, method string, params ...any) ([]any, error) {
	if _, ok := contractABI.Methods[method]; !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("method %s not found in contract ABI", method))
	}
	contract := bind.NewBoundContract(address, contractABI, c.backend, c.backend, c.backend)
	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, fmt.Sprintf("call %s", method))
	}
	return out, nil
}

// WaitMined blocks until tx is included and fails when it reverted.
func (c *Client) WaitMined(ctx context.Context, tx *coretypes.Transaction) (*coretypes.Receipt, error) {
	if tx == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "transaction is nil")
	}
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, waitError(err, tx)
	}
	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		return receipt, xerrors.New(xerrors.CodeTransactionReverted,
			fmt.Sprintf("transaction %s reverted in block %s", tx.Hash().Hex(), receipt.BlockNumber),
			xerrors.WithMetadata("tx_hash", tx.Hash().Hex()))
	}
	return receipt, nil
}

// WaitDeployed blocks until the contract creation tx is mined and code is
// present at the resulting address.
func (c *Client) WaitDeployed(ctx context.Context, tx *coretypes.Transaction) (common.Address, error) {
	if tx == nil {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, "transaction is nil")
	}
	address, err := bind.WaitDeployed(ctx, c.backend, tx)
	if err != nil {
		if errors.Is(err, bind.ErrNoCodeAfterDeploy) {
			return common.Address{}, xerrors.Wrap(xerrors.CodeTransactionReverted, err, "deployment left no code",
				xerrors.WithMetadata("tx_hash", tx.Hash().Hex()))
		}
		return common.Address{}, waitError(err, tx)
	}
	return address, nil
}

func (c *Client) mine() {
	if c.commit != nil {
		c.commit()
	}
}

func waitError(err error, tx *coretypes.Transaction) error {
	code := xerrors.CodeChainFailure
	if errors.Is(err, context.DeadlineExceeded) {
		code = xerrors.CodeTimeout
	}
	return xerrors.Wrap(code, err, fmt.Sprintf("wait for transaction %s", tx.Hash().Hex()),
		xerrors.WithMetadata("tx_hash", tx.Hash().Hex()))
}

var _ web3.Client = (*Client)(nil)
