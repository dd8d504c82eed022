package mysql

import (
	"context"
	"fmt"
	"strings"
	"time"

	xerrors "LSRWA-Express/internal/errors"
)

// RecordKind 区分部署记录的类型。
type RecordKind string

const (
	KindDeploy    RecordKind = "deploy"
	KindCall      RecordKind = "call"
	KindOwnership RecordKind = "ownership"
	KindVerify    RecordKind = "verify"
)

// 记录状态。
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// DeploymentRecord 是部署日志中的一条记录。
type DeploymentRecord struct {
	ID       string     `json:"id"`
	RunID    string     `json:"run_id,omitempty"`
	Network  string     `json:"network"`
	ChainID  int64      `json:"chain_id"`
	Kind     RecordKind `json:"kind"`
	Module   string     `json:"module,omitempty"`
	FutureID string     `json:"future_id,omitempty"`
	Contract string     `json:"contract,omitempty"`
	Address  string     `json:"address,omitempty"`
	Signer   string     `json:"signer,omitempty"`
	Method   string     `json:"method,omitempty"`
	Args     []string   `json:"args,omitempty"`
	TxHash   string     `json:"tx_hash,omitempty"`
	// BlockNumber 为交易所在区块，验证记录为 0。
	BlockNumber uint64 `json:"block_number,omitempty"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// Succeeded 表示记录对应的操作已成功完成。
func (r DeploymentRecord) Succeeded() bool {
	return r.Status == StatusSuccess
}

// RecordRepository 抽象部署记录的持久化接口。
type RecordRepository interface {
	Save(ctx context.Context, record DeploymentRecord) error
	// FindFuture 返回模块中某个 future 在指定链上的最近一次成功记录。
	FindFuture(ctx context.Context, chainID int64, module, futureID string) (*DeploymentRecord, error)
	// LatestByContract 返回指定网络上某合约最近一次成功部署的记录。
	LatestByContract(ctx context.Context, network, contract string) (*DeploymentRecord, error)
	// ListLatest 按时间倒序返回记录，network 为空时返回所有网络。
	ListLatest(ctx context.Context, network string, limit int) ([]DeploymentRecord, error)
	Close() error
}

// NewRepository 根据驱动名创建部署记录仓库。
func NewRepository(ctx context.Context, cfg Config) (RecordRepository, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		repo, err := NewFileRecordRepository(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "mysql":
		repo, err := NewSQLRecordRepository(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, xerrors.New(xerrors.CodeConfigInvalid, fmt.Sprintf("不支持的存储驱动: %s", cfg.Driver))
	}
}

func validateRecord(record DeploymentRecord) error {
	if strings.TrimSpace(record.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "部署记录缺少 ID")
	}
	if strings.TrimSpace(record.Network) == "" || record.Kind == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "部署记录缺少网络或类型")
	}
	if record.Status != StatusSuccess && record.Status != StatusFailed {
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的记录状态: %s", record.Status))
	}
	return nil
}

func normalizeRecord(record DeploymentRecord) DeploymentRecord {
	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().Unix()
	}
	return record
}

func notFound(format string, args ...any) error {
	return xerrors.New(xerrors.CodeNotFound, fmt.Sprintf(format, args...))
}
