package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"

	"github.com/go-sql-driver/mysql"

	xerrors "LSRWA-Express/internal/errors"
)

const recordColumns = `id, run_id, network, chain_id, kind, module, future_id, contract, address, signer, method, args, tx_hash, block_number, status, detail, created_at`

const insertRecordSQL = `INSERT INTO deployment_records
    (id, run_id, network, chain_id, kind, module, future_id, contract, address, signer, method, args, tx_hash, block_number, status, detail, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// mysqlDuplicateEntry 为 MySQL 唯一键冲突的错误号。
const mysqlDuplicateEntry = 1062

// SQLRecordRepository 使用 MySQL 保存部署记录。
type SQLRecordRepository struct {
	db *sql.DB
}

// NewSQLRecordRepository 创建连接池并执行嵌入式迁移。
func NewSQLRecordRepository(ctx context.Context, cfg Config) (*SQLRecordRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLRecordRepository{db: db}, nil
}

// Save 将记录写入 deployment_records。
func (s *SQLRecordRepository) Save(ctx context.Context, record DeploymentRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	record = normalizeRecord(record)

	args, err := json.Marshal(record.Args)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化调用参数失败")
	}

	if _, err := s.db.ExecContext(ctx, insertRecordSQL,
		record.ID,
		record.RunID,
		record.Network,
		record.ChainID,
		string(record.Kind),
		record.Module,
		record.FutureID,
		record.Contract,
		record.Address,
		record.Signer,
		record.Method,
		string(args),
		record.TxHash,
		int64(record.BlockNumber),
		record.Status,
		record.Detail,
		record.CreatedAt,
	); err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "部署记录 ID 重复",
				xerrors.WithMetadata("record_id", record.ID))
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入部署记录失败")
	}
	return nil
}

// FindFuture 实现 RecordRepository。
func (s *SQLRecordRepository) FindFuture(ctx context.Context, chainID int64, module, futureID string) (*DeploymentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+`
    FROM deployment_records WHERE chain_id = ? AND module = ? AND future_id = ? AND status = ?
    ORDER BY seq DESC LIMIT 1`, chainID, module, futureID, StatusSuccess)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询 future 记录失败")
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, notFound("链 %d 上没有 %s 的执行记录", chainID, futureID)
	}
	return &records[0], nil
}

// LatestByContract 实现 RecordRepository。
func (s *SQLRecordRepository) LatestByContract(ctx context.Context, network, contract string) (*DeploymentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+`
    FROM deployment_records WHERE network = ? AND contract = ? AND kind = ? AND status = ?
    ORDER BY seq DESC LIMIT 1`, network, contract, string(KindDeploy), StatusSuccess)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询部署记录失败")
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, notFound("网络 %s 上没有合约 %s 的部署记录", network, contract)
	}
	return &records[0], nil
}

// ListLatest 实现 RecordRepository。
func (s *SQLRecordRepository) ListLatest(ctx context.Context, network string, limit int) ([]DeploymentRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	var (
		rows *sql.Rows
		err  error
	)
	if network == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT `+recordColumns+`
    FROM deployment_records ORDER BY seq DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+recordColumns+`
    FROM deployment_records WHERE network = ? ORDER BY seq DESC LIMIT ?`, network, limit)
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询部署记录失败")
	}
	return scanRecords(rows)
}

// Close 关闭底层数据库连接。
func (s *SQLRecordRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]DeploymentRecord, error) {
	defer rows.Close()

	var records []DeploymentRecord
	for rows.Next() {
		var (
			record      DeploymentRecord
			kind        string
			args        sql.NullString
			detail      sql.NullString
			blockNumber int64
		)
		if err := rows.Scan(&record.ID, &record.RunID, &record.Network, &record.ChainID, &kind,
			&record.Module, &record.FutureID, &record.Contract, &record.Address, &record.Signer,
			&record.Method, &args, &record.TxHash, &blockNumber, &record.Status, &detail, &record.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析部署记录失败")
		}
		record.Kind = RecordKind(kind)
		record.BlockNumber = uint64(blockNumber)
		record.Detail = detail.String
		if args.Valid && args.String != "" && args.String != "null" {
			if err := json.Unmarshal([]byte(args.String), &record.Args); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析调用参数失败")
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历部署记录失败")
	}
	return records, nil
}

var _ RecordRepository = (*SQLRecordRepository)(nil)
