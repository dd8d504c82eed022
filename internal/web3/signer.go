package web3

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "LSRWA-Express/internal/errors"
)

// Signer pairs a private key with transact options bound to one chain.
type Signer struct {
	key  *ecdsa.PrivateKey
	opts *bind.TransactOpts
}

// NewSigner parses a hex private key, with or without 0x prefix.
func NewSigner(hexKey string, chainID *big.Int) (*Signer, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "no account configured for the selected network")
	}
	if chainID == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "chain id is required to build a signer")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X"))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid private key")
	}
	return NewSignerFromKey(key, chainID)
}

// NewSignerFromKey wraps an already parsed key.
func NewSignerFromKey(key *ecdsa.PrivateKey, chainID *big.Int) (*Signer, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "build transactor")
	}
	return &Signer{key: key, opts: opts}, nil
}

// Address returns the account that signs transactions.
func (s *Signer) Address() common.Address {
	return s.opts.From
}

// TransactOpts returns a fresh copy of the transact options bound to ctx so
// callers can adjust gas settings without affecting later transactions.
func (s *Signer) TransactOpts(ctx context.Context) *bind.TransactOpts {
	opts := *s.opts
	opts.Context = ctx
	return &opts
}
