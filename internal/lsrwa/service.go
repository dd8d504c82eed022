// Package lsrwa 实现 LSRWAExpress 的运维操作：部署合约、移交所有权以及在区块浏览器上验证源码。
package lsrwa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"LSRWA-Express/internal/artifacts"
	"LSRWA-Express/internal/config"
	xerrors "LSRWA-Express/internal/errors"
	"LSRWA-Express/internal/etherscan"
	"LSRWA-Express/internal/events"
	"LSRWA-Express/internal/lock"
	storage "LSRWA-Express/internal/storage/mysql"
	"LSRWA-Express/internal/web3"
	"LSRWA-Express/pkg/logger"
)

// DefaultContract 是运维命令默认部署的合约产物。
const DefaultContract = "LSRWAExpress"

// Verifier 将合约源码提交到区块浏览器。
type Verifier interface {
	Verify(ctx context.Context, req etherscan.Request) (etherscan.Result, error)
}

// Service 在单个网络上执行运维操作。
type Service struct {
	client       web3.Client
	network      string
	store        *artifacts.Store
	contractName string
	solidity     config.SolidityConfig

	records   storage.RecordRepository
	publisher events.Publisher
	locker    lock.Locker
	verifier  Verifier

	log         *slog.Logger
	audit       *slog.Logger
	waitTimeout time.Duration
	runID       string
}

// Option 用于定制 Service。
type Option func(*Service)

// WithRecords 将每次操作写入部署记录。
func WithRecords(repo storage.RecordRepository) Option {
	return func(s *Service) { s.records = repo }
}

// WithPublisher 设置生命周期事件的发布器。
func WithPublisher(pub events.Publisher) Option {
	return func(s *Service) { s.publisher = pub }
}

// WithLocker 在交易发送期间锁定签名账户。
func WithLocker(locker lock.Locker) Option {
	return func(s *Service) { s.locker = locker }
}

// WithVerifier 启用 Verify。
func WithVerifier(v Verifier) Option {
	return func(s *Service) { s.verifier = v }
}

// WithLogger 覆盖组件日志。
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithWaitTimeout 限制交易等待上链的时间。
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Service) { s.waitTimeout = d }
}

// WithContractName 选择其他合约产物。
func WithContractName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.contractName = name
		}
	}
}

// WithSolidity 设置用于比对编译产物的编译器配置。
func WithSolidity(cfg config.SolidityConfig) Option {
	return func(s *Service) { s.solidity = cfg }
}

// WithRunID 使用外部指定的运行 ID 标记部署记录。
func WithRunID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.runID = id
		}
	}
}

// NewService 基于链客户端构造 Service。
func NewService(client web3.Client, network string, store *artifacts.Store, opts ...Option) (*Service, error) {
	if client == nil {
		return nil, errors.New("lsrwa: 未提供链客户端")
	}
	if store == nil {
		return nil, errors.New("lsrwa: 未提供合约产物目录")
	}
	s := &Service{
		client:       client,
		network:      network,
		store:        store,
		contractName: DefaultContract,
		publisher:    events.NopPublisher{},
		locker:       lock.NopLocker{},
		log:          logger.Named("lsrwa"),
		audit:        logger.Audit(),
		runID:        uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DeployResult 描述一次完成的部署。
type DeployResult struct {
	Contract    string
	Address     common.Address
	TxHash      common.Hash
	BlockNumber uint64
}

// Deploy 以 USDC 与代币地址作为构造参数部署合约，并等待合约代码上链。
func (s *Service) Deploy(ctx context.Context, signer *web3.Signer, usdc, token string) (DeployResult, error) {
	usdcAddr, err := web3.ParseAddress("USDC_ADDRESS", usdc)
	if err != nil {
		return DeployResult{}, err
	}
	tokenAddr, err := web3.ParseAddress("TOKEN_ADDRESS", token)
	if err != nil {
		return DeployResult{}, err
	}
	if signer == nil {
		return DeployResult{}, errNoSigner()
	}

	artifact, err := s.loadArtifact()
	if err != nil {
		return DeployResult{}, err
	}
	code, err := artifact.CreationCode()
	if err != nil {
		return DeployResult{}, err
	}
	chainID, err := s.client.ChainID(ctx)
	if err != nil {
		return DeployResult{}, err
	}

	release, err := s.acquire(ctx, signer)
	if err != nil {
		return DeployResult{}, err
	}
	defer s.release(release)

	waitCtx, cancel := s.waitContext(ctx)
	defer cancel()

	s.log.Info("开始部署合约", "network", s.network, "contract", artifact.ContractName,
		"usdc", usdcAddr.Hex(), "token", tokenAddr.Hex(), "signer", signer.Address().Hex())
	mined, err := web3.DeployAndWait(waitCtx, s.client, signer.TransactOpts(waitCtx), artifact.ABI(), code, usdcAddr, tokenAddr)

	record := s.newRecord(chainID, storage.KindDeploy, signer)
	record.Contract = artifact.ContractName
	record.Args = []string{usdcAddr.Hex(), tokenAddr.Hex()}
	fillRecord(&record, mined, err)
	if mined.Address != (common.Address{}) {
		record.Address = mined.Address.Hex()
	}
	s.audit.Info("交易已发送", "kind", record.Kind, "network", s.network, "contract", record.Contract,
		"tx_hash", record.TxHash, "status", record.Status)
	s.journal(ctx, record)
	if err != nil {
		return DeployResult{}, err
	}

	s.publish(ctx, events.Event{
		Type:     events.ContractDeployed,
		Network:  s.network,
		ChainID:  chainID.Int64(),
		Contract: artifact.ContractName,
		Address:  mined.Address.Hex(),
		TxHash:   mined.TxHash.Hex(),
	})
	return DeployResult{
		Contract:    artifact.ContractName,
		Address:     mined.Address,
		TxHash:      mined.TxHash,
		BlockNumber: mined.BlockNumber,
	}, nil
}

// OwnershipResult 描述一次完成的所有权移交。
type OwnershipResult struct {
	Contract    common.Address
	NewOwner    common.Address
	TxHash      common.Hash
	BlockNumber uint64
	// CurrentOwner 是移交后读取的 owner()。读取失败时为零地址，两步移交时与 NewOwner 不同。
	CurrentOwner common.Address
}

// TransferOwnership 调用已部署合约的 transferOwnership(newOwner) 并等待回执。
func (s *Service) TransferOwnership(ctx context.Context, signer *web3.Signer, contract common.Address, newOwner string) (OwnershipResult, error) {
	owner, err := web3.ParseAddress("OWNER_ADDRESS", newOwner)
	if err != nil {
		return OwnershipResult{}, err
	}
	if contract == (common.Address{}) {
		return OwnershipResult{}, xerrors.New(xerrors.CodeInvalidArgument, "CONTRACT_ADDRESS 未设置")
	}
	if signer == nil {
		return OwnershipResult{}, errNoSigner()
	}

	artifact, err := s.loadArtifact()
	if err != nil {
		return OwnershipResult{}, err
	}
	chainID, err := s.client.ChainID(ctx)
	if err != nil {
		return OwnershipResult{}, err
	}

	release, err := s.acquire(ctx, signer)
	if err != nil {
		return OwnershipResult{}, err
	}
	defer s.release(release)

	waitCtx, cancel := s.waitContext(ctx)
	defer cancel()

	s.log.Info("开始移交所有权", "network", s.network, "contract", contract.Hex(), "new_owner", owner.Hex())
	mined, err := web3.TransactAndWait(waitCtx, s.client, signer.TransactOpts(waitCtx), contract, artifact.ABI(), "transferOwnership", owner)

	record := s.newRecord(chainID, storage.KindOwnership, signer)
	record.Contract = artifact.ContractName
	record.Address = contract.Hex()
	record.Method = "transferOwnership"
	record.Args = []string{owner.Hex()}
	fillRecord(&record, mined, err)
	s.audit.Info("交易已发送", "kind", record.Kind, "network", s.network, "contract", record.Address,
		"tx_hash", record.TxHash, "status", record.Status)
	s.journal(ctx, record)
	if err != nil {
		return OwnershipResult{}, err
	}

	result := OwnershipResult{
		Contract:    contract,
		NewOwner:    owner,
		TxHash:      mined.TxHash,
		BlockNumber: mined.BlockNumber,
	}
	if out, err := s.client.Call(ctx, contract, artifact.ABI(), "owner"); err != nil {
		s.log.Warn("移交后读取 owner 失败", "contract", contract.Hex(), "error", err)
	} else if len(out) == 1 {
		if current, ok := out[0].(common.Address); ok {
			result.CurrentOwner = current
			if current != owner {
				s.log.Warn("当前 owner 与目标不一致，可能需要新 owner 确认接收",
					"current", current.Hex(), "requested", owner.Hex())
			}
		}
	}

	s.publish(ctx, events.Event{
		Type:     events.OwnershipTransferred,
		Network:  s.network,
		ChainID:  chainID.Int64(),
		Contract: artifact.ContractName,
		Address:  contract.Hex(),
		TxHash:   mined.TxHash.Hex(),
		Data:     map[string]string{"new_owner": owner.Hex()},
	})
	return result, nil
}

// VerifyResult 描述一次完成的源码验证。
type VerifyResult struct {
	Contract        common.Address
	GUID            string
	AlreadyVerified bool
}

// Verify 使用部署时的构造参数在区块浏览器上验证合约源码。
func (s *Service) Verify(ctx context.Context, contract common.Address, usdc, token string) (VerifyResult, error) {
	if s.verifier == nil {
		return VerifyResult{}, xerrors.New(xerrors.CodeConfigInvalid, "未配置区块浏览器验证")
	}
	if contract == (common.Address{}) {
		return VerifyResult{}, xerrors.New(xerrors.CodeInvalidArgument, "CONTRACT_ADDRESS 未设置")
	}
	usdcAddr, err := web3.ParseAddress("USDC_ADDRESS", usdc)
	if err != nil {
		return VerifyResult{}, err
	}
	tokenAddr, err := web3.ParseAddress("TOKEN_ADDRESS", token)
	if err != nil {
		return VerifyResult{}, err
	}

	artifact, err := s.loadArtifact()
	if err != nil {
		return VerifyResult{}, err
	}
	info, err := s.store.BuildInfo(artifact)
	if err != nil {
		return VerifyResult{}, err
	}
	packed, err := artifact.ABI().Pack("", usdcAddr, tokenAddr)
	if err != nil {
		return VerifyResult{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码构造参数失败")
	}
	chainID, err := s.client.ChainID(ctx)
	if err != nil {
		return VerifyResult{}, err
	}

	s.log.Info("开始验证合约", "network", s.network, "contract", contract.Hex(),
		"name", artifact.FullyQualifiedName(), "compiler", info.CompilerVersion())
	result, err := s.verifier.Verify(ctx, etherscan.Request{
		Address:           contract,
		ContractName:      artifact.FullyQualifiedName(),
		CompilerVersion:   info.CompilerVersion(),
		StandardJSONInput: info.Input,
		ConstructorArgs:   packed,
	})

	record := s.newRecord(chainID, storage.KindVerify, nil)
	record.Contract = artifact.ContractName
	record.Address = contract.Hex()
	record.Args = []string{usdcAddr.Hex(), tokenAddr.Hex()}
	record.Detail = result.Status
	if err != nil {
		record.Status = storage.StatusFailed
		record.Detail = err.Error()
	}
	s.audit.Info("源码验证已提交", "network", s.network, "contract", record.Address, "guid", result.GUID, "status", record.Status)
	s.journal(ctx, record)
	if err != nil {
		return VerifyResult{}, err
	}

	s.publish(ctx, events.Event{
		Type:     events.ContractVerified,
		Network:  s.network,
		ChainID:  chainID.Int64(),
		Contract: artifact.ContractName,
		Address:  contract.Hex(),
		Data:     map[string]string{"guid": result.GUID, "status": result.Status},
	})
	return VerifyResult{Contract: contract, GUID: result.GUID, AlreadyVerified: result.AlreadyVerified}, nil
}

// ContractAddress 解析 value；value 为空时使用本网络最近一次记录的部署地址。
func (s *Service) ContractAddress(ctx context.Context, value string) (common.Address, error) {
	if value != "" || s.records == nil {
		return web3.ParseAddress("CONTRACT_ADDRESS", value)
	}
	record, err := s.records.LatestByContract(ctx, s.network, s.contractName)
	if err != nil {
		if xerrors.CodeOf(err) == xerrors.CodeNotFound {
			return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("CONTRACT_ADDRESS 未设置，且网络 %s 上没有 %s 的部署记录", s.network, s.contractName))
		}
		return common.Address{}, err
	}
	s.log.Info("使用部署记录中的合约地址", "address", record.Address, "tx_hash", record.TxHash)
	return web3.ParseAddress("CONTRACT_ADDRESS", record.Address)
}

func (s *Service) loadArtifact() (*artifacts.Artifact, error) {
	artifact, err := s.store.Load(s.contractName)
	if err != nil {
		return nil, err
	}
	if s.solidity.Version == "" {
		return artifact, nil
	}
	info, err := s.store.BuildInfo(artifact)
	if err != nil {
		s.log.Debug("build-info unavailable, skipping compiler check", "contract", artifact.ContractName, "error", err)
		return artifact, nil
	}
	for _, drift := range artifacts.CompilerDrift(info, s.solidity) {
		s.log.Warn("编译产物的编译器设置与配置不一致", "contract", artifact.ContractName, "detail", drift)
	}
	return artifact, nil
}

func (s *Service) acquire(ctx context.Context, signer *web3.Signer) (lock.Release, error) {
	return s.locker.Acquire(ctx, lock.Key(s.network, signer.Address()))
}

func (s *Service) release(release lock.Release) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := release(ctx); err != nil {
		s.log.Warn("释放签名锁失败", "error", err)
	}
}

func (s *Service) waitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.waitTimeout > 0 {
		return context.WithTimeout(ctx, s.waitTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Service) newRecord(chainID *big.Int, kind storage.RecordKind, signer *web3.Signer) storage.DeploymentRecord {
	record := storage.DeploymentRecord{
		ID:        uuid.NewString(),
		RunID:     s.runID,
		Network:   s.network,
		ChainID:   chainID.Int64(),
		Kind:      kind,
		Status:    storage.StatusSuccess,
		CreatedAt: time.Now().Unix(),
	}
	if signer != nil {
		record.Signer = signer.Address().Hex()
	}
	return record
}

func fillRecord(record *storage.DeploymentRecord, mined web3.Mined, err error) {
	if mined.TxHash != (common.Hash{}) {
		record.TxHash = mined.TxHash.Hex()
	}
	record.BlockNumber = mined.BlockNumber
	if err != nil {
		record.Status = storage.StatusFailed
		record.Detail = err.Error()
	}
}

// journal 写入部署记录，失败时只记录日志。
func (s *Service) journal(ctx context.Context, record storage.DeploymentRecord) {
	if s.records == nil {
		return
	}
	if err := s.records.Save(ctx, record); err != nil {
		s.log.Error("写入部署记录失败", "kind", record.Kind, "tx_hash", record.TxHash, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn("发布事件失败", "type", event.Type, "error", err)
	}
}

func errNoSigner() error {
	return xerrors.New(xerrors.CodeInvalidArgument, "所选网络未配置签名账户")
}
