package lsrwa

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"LSRWA-Express/internal/artifacts"
	"LSRWA-Express/internal/config"
	xerrors "LSRWA-Express/internal/errors"
	"LSRWA-Express/internal/etherscan"
	"LSRWA-Express/internal/events"
	storage "LSRWA-Express/internal/storage/mysql"
	"LSRWA-Express/internal/web3"
	"LSRWA-Express/internal/web3/ethereum"
	"LSRWA-Express/internal/web3/ethtest"
)

const (
	usdcAddress  = "0x5c4518abFE8f7560C1b12e01FD550c3a05377910"
	tokenAddress = "0xDDA9bF84d2bBb543B49Dd9dB4f32de3c7b19aCa2"
)

type fakeVerifier struct {
	requests []etherscan.Request
	result   etherscan.Result
	err      error
}

func (f *fakeVerifier) Verify(ctx context.Context, req etherscan.Request) (etherscan.Result, error) {
	f.requests = append(f.requests, req)
	return f.result, f.err
}

type fixture struct {
	service   *Service
	deployer  *web3.Signer
	stranger  *web3.Signer
	records   *storage.FileRecordRepository
	publisher *events.MemoryPublisher
	verifier  *fakeVerifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	deployerAccount := ethtest.NewAccount(t)
	strangerAccount := ethtest.NewAccount(t)
	client := ethereum.NewSimulatedClient("localhost", ethtest.NewBackend(t, deployerAccount, strangerAccount))

	chainID, err := client.ChainID(context.Background())
	if err != nil {
		t.Fatalf("chain id: %v", err)
	}
	deployer, err := web3.NewSigner(deployerAccount.HexKey(), chainID)
	if err != nil {
		t.Fatalf("deployer signer: %v", err)
	}
	stranger, err := web3.NewSignerFromKey(strangerAccount.Key, chainID)
	if err != nil {
		t.Fatalf("stranger signer: %v", err)
	}

	records, err := storage.NewFileRecordRepository(t.TempDir())
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	publisher := events.NewMemoryPublisher(16)
	verifier := &fakeVerifier{result: etherscan.Result{GUID: "guid-1", Status: "Pass - Verified"}}

	service, err := NewService(client, "localhost", artifacts.NewStore(ethtest.WriteArtifacts(t, t.TempDir())),
		WithRecords(records),
		WithPublisher(publisher),
		WithVerifier(verifier),
		WithSolidity(config.Default().Solidity),
		WithWaitTimeout(20*time.Second),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return fixture{
		service:   service,
		deployer:  deployer,
		stranger:  stranger,
		records:   records,
		publisher: publisher,
		verifier:  verifier,
	}
}

func TestDeployAndTransferOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deployed, err := f.service.Deploy(ctx, f.deployer, usdcAddress, tokenAddress)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if deployed.Address == (common.Address{}) || deployed.BlockNumber == 0 {
		t.Fatalf("unexpected deploy result %+v", deployed)
	}

	address, err := f.service.ContractAddress(ctx, "")
	if err != nil {
		t.Fatalf("journaled address: %v", err)
	}
	if address != deployed.Address {
		t.Fatalf("journal resolved %s, deployed %s", address.Hex(), deployed.Address.Hex())
	}

	newOwner := f.stranger.Address()
	transferred, err := f.service.TransferOwnership(ctx, f.deployer, address, newOwner.Hex())
	if err != nil {
		t.Fatalf("transfer ownership: %v", err)
	}
	if transferred.CurrentOwner != newOwner || transferred.NewOwner != newOwner {
		t.Fatalf("unexpected ownership result %+v", transferred)
	}

	// The old owner can no longer transfer; the failure is journaled.
	if _, err := f.service.TransferOwnership(ctx, f.deployer, address, f.deployer.Address().Hex()); err == nil {
		t.Fatal("expected transfer from previous owner to fail")
	}

	records, err := f.records.ListLatest(ctx, "localhost", 0)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 journal records, got %d", len(records))
	}
	if records[0].Status != storage.StatusFailed || records[1].Kind != storage.KindOwnership || records[2].Kind != storage.KindDeploy {
		t.Fatalf("unexpected journal %+v", records)
	}
	if records[2].Args[0] != usdcAddress || records[2].Signer != f.deployer.Address().Hex() {
		t.Fatalf("unexpected deploy record %+v", records[2])
	}

	published := f.publisher.Drain()
	if len(published) != 2 || published[0].Type != events.ContractDeployed || published[1].Type != events.OwnershipTransferred {
		t.Fatalf("unexpected events %+v", published)
	}
}

func TestDeployRejectsBadAddressesBeforeRPC(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name        string
		usdc, token string
	}{
		{"empty usdc", "", tokenAddress},
		{"empty token", usdcAddress, ""},
		{"malformed", "0x1234", tokenAddress},
	}
	for _, tc := range cases {
		if _, err := f.service.Deploy(ctx, f.deployer, tc.usdc, tc.token); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
			t.Fatalf("%s: expected invalid argument, got %v", tc.name, err)
		}
	}
	if _, err := f.service.Deploy(ctx, nil, usdcAddress, tokenAddress); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("missing signer: expected invalid argument, got %v", err)
	}

	records, _ := f.records.ListLatest(ctx, "", 0)
	if len(records) != 0 {
		t.Fatalf("rejected deploys must not be journaled: %+v", records)
	}
}

func TestContractAddressWithoutJournal(t *testing.T) {
	f := newFixture(t)
	if _, err := f.service.ContractAddress(context.Background(), ""); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	addr, err := f.service.ContractAddress(context.Background(), usdcAddress)
	if err != nil || addr.Hex() != usdcAddress {
		t.Fatalf("explicit address: %s %v", addr.Hex(), err)
	}
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contract := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	result, err := f.service.Verify(ctx, contract, usdcAddress, tokenAddress)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.GUID != "guid-1" {
		t.Fatalf("unexpected result %+v", result)
	}

	req := f.verifier.requests[0]
	if req.ContractName != "contracts/LSRWAExpress.sol:LSRWAExpress" || req.CompilerVersion != "v0.8.30+commit.73712a01" {
		t.Fatalf("unexpected request %+v", req)
	}
	if len(req.ConstructorArgs) != 64 {
		t.Fatalf("expected two abi words, got %d bytes", len(req.ConstructorArgs))
	}
	if common.BytesToAddress(req.ConstructorArgs[12:32]).Hex() != usdcAddress {
		t.Fatalf("unexpected first constructor arg %x", req.ConstructorArgs[:32])
	}

	f.verifier.err = xerrors.New(xerrors.CodeVerificationFailed, "Fail - Unable to verify")
	if _, err := f.service.Verify(ctx, contract, usdcAddress, tokenAddress); xerrors.CodeOf(err) != xerrors.CodeVerificationFailed {
		t.Fatalf("expected verification failure, got %v", err)
	}

	records, _ := f.records.ListLatest(ctx, "localhost", 0)
	if len(records) != 2 || records[0].Status != storage.StatusFailed || records[1].Kind != storage.KindVerify {
		t.Fatalf("unexpected journal %+v", records)
	}
}

func TestVerifyRequiresVerifier(t *testing.T) {
	account := ethtest.NewAccount(t)
	client := ethereum.NewSimulatedClient("localhost", ethtest.NewBackend(t, account))
	service, err := NewService(client, "localhost", artifacts.NewStore(t.TempDir()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = service.Verify(context.Background(), common.HexToAddress(usdcAddress), usdcAddress, tokenAddress)
	if xerrors.CodeOf(err) != xerrors.CodeConfigInvalid {
		t.Fatalf("expected config error, got %v", err)
	}
	if !errors.Is(err, xerrors.New(xerrors.CodeConfigInvalid, "")) {
		t.Fatal("errors.Is should match by code")
	}
}
