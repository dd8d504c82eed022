package web3

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Mined summarises a transaction after inclusion.
type Mined struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	// Address is set for contract creations.
	Address common.Address
}

// DeployAndWait sends a contract creation and blocks until code is present
// at the new address. On failure the returned Mined still carries the hash
// of a sent transaction.
func DeployAndWait(ctx context.Context, client Client, auth *bind.TransactOpts, contractABI abi.ABI, bytecode []byte, params ...any) (Mined, error) {
	result, err := client.DeployContract(ctx, auth, contractABI, bytecode, params...)
	if err != nil {
		return Mined{}, err
	}
	mined := Mined{TxHash: result.Transaction.Hash(), Address: result.ContractAddress}

	receipt, err := client.WaitMined(ctx, result.Transaction)
	fillReceipt(&mined, receipt)
	if err != nil {
		return mined, err
	}
	address, err := client.WaitDeployed(ctx, result.Transaction)
	if err != nil {
		return mined, err
	}
	mined.Address = address
	return mined, nil
}

// TransactAndWait sends a method call and blocks until it is mined. A
// reverted transaction is returned as an error.
func TransactAndWait(ctx context.Context, client Client, auth *bind.TransactOpts, address common.Address, contractABI abi.ABI, method string, params ...any) (Mined, error) {
	tx, err := client.Transact(ctx, auth, address, contractABI, method, params...)
	if err != nil {
		return Mined{}, err
	}
	mined := Mined{TxHash: tx.Hash()}
	receipt, err := client.WaitMined(ctx, tx)
	fillReceipt(&mined, receipt)
	return mined, err
}

func fillReceipt(mined *Mined, receipt *types.Receipt) {
	if receipt == nil {
		return
	}
	if receipt.BlockNumber != nil {
		mined.BlockNumber = receipt.BlockNumber.Uint64()
	}
	mined.GasUsed = receipt.GasUsed
}
