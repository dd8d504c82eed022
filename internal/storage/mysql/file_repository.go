package mysql

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	xerrors "LSRWA-Express/internal/errors"
	"LSRWA-Express/pkg/logger"
)

const journalFile = "journal.jsonl"

// FileRecordRepository 以追加写 JSON lines 的方式保存部署记录，适合单机使用。
type FileRecordRepository struct {
	mu       sync.RWMutex
	dataFile string
	// records 按写入时间倒序排列。
	records []DeploymentRecord
}

// NewFileRecordRepository 在 dataDir 下打开或创建部署日志。
func NewFileRecordRepository(dataDir string) (*FileRecordRepository, error) {
	if dataDir == "" {
		dataDir = "deployments"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建部署日志目录失败")
	}
	repo := &FileRecordRepository{dataFile: filepath.Join(dataDir, journalFile)}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Path 返回部署日志文件路径。
func (m *FileRecordRepository) Path() string {
	return m.dataFile
}

// Save 追加一条记录。
func (m *FileRecordRepository) Save(_ context.Context, record DeploymentRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	record = normalizeRecord(record)

	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开部署日志失败")
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化部署记录失败")
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入部署日志失败")
	}
	if err := file.Sync(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "同步部署日志失败")
	}

	m.records = append([]DeploymentRecord{record}, m.records...)
	return nil
}

// FindFuture 实现 RecordRepository。
func (m *FileRecordRepository) FindFuture(_ context.Context, chainID int64, module, futureID string) (*DeploymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, record := range m.records {
		if record.ChainID == chainID && record.Module == module && record.FutureID == futureID && record.Succeeded() {
			found := record
			return &found, nil
		}
	}
	return nil, notFound("链 %d 上没有 %s 的执行记录", chainID, futureID)
}

// LatestByContract 实现 RecordRepository。
func (m *FileRecordRepository) LatestByContract(_ context.Context, network, contract string) (*DeploymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, record := range m.records {
		if record.Network == network && record.Contract == contract && record.Kind == KindDeploy && record.Succeeded() {
			found := record
			return &found, nil
		}
	}
	return nil, notFound("网络 %s 上没有合约 %s 的部署记录", network, contract)
}

// ListLatest 实现 RecordRepository。
func (m *FileRecordRepository) ListLatest(_ context.Context, network string, limit int) ([]DeploymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]DeploymentRecord, 0, len(m.records))
	for _, record := range m.records {
		if network != "" && record.Network != network {
			continue
		}
		results = append(results, record)
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results, nil
}

// Close 实现 RecordRepository，文件仓库无需释放资源。
func (m *FileRecordRepository) Close() error {
	return nil
}

func (m *FileRecordRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取部署日志失败")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var restored []DeploymentRecord
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var record DeploymentRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			logger.Named("journal").Warn("跳过无法解析的部署记录",
				"file", m.dataFile, "line", line, "error", err)
			continue
		}
		restored = append(restored, record)
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("解析部署日志 %s 失败", m.dataFile))
	}

	m.records = make([]DeploymentRecord, len(restored))
	for i, record := range restored {
		m.records[len(restored)-1-i] = record
	}
	return nil
}

var _ RecordRepository = (*FileRecordRepository)(nil)
