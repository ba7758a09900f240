package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// maxCachedTurns 是内存仓库保留的最大记录数。
const maxCachedTurns = 512

// ToolCallRecord 记录一次对话中模型发起的工具调用。
type ToolCallRecord struct {
	Tool   string `json:"tool"`
	Input  string `json:"input"`
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
}

// TurnRecord 表示一轮对话的落库结构。
type TurnRecord struct {
	ID        int64            `json:"id"`
	SessionID string           `json:"session_id,omitempty"`
	Prompt    string           `json:"prompt"`
	Reply     string           `json:"reply"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
	Steps     int              `json:"steps"`
	CreatedAt int64            `json:"created_at"`
}

// HistoryRepository 抽象对话历史的持久化接口。
type HistoryRepository interface {
	Save(ctx context.Context, record *TurnRecord) error
	ListLatest(ctx context.Context, limit int) ([]TurnRecord, error)
	Close() error
}

// MemoryHistoryRepository 使用本地 JSON lines 文件保存历史，方便单机运行。
type MemoryHistoryRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []TurnRecord
	nextID   int64
}

// NewMemoryHistoryRepository 创建文件备份的内存仓库，数据写入 dataDir/turns.log。
func NewMemoryHistoryRepository(dataDir string) (*MemoryHistoryRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo := &MemoryHistoryRepository{dataFile: filepath.Join(dataDir, "turns.log")}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录一轮对话，并分配自增 ID。
func (m *MemoryHistoryRepository) Save(_ context.Context, record *TurnRecord) error {
	if record == nil {
		return fmt.Errorf("record 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	record.ID = m.nextID

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化对话记录失败: %w", err)
	}

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开对话日志失败: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入对话日志失败: %w", err)
	}

	m.records = append([]TurnRecord{cloneTurn(*record)}, m.records...)
	if len(m.records) > maxCachedTurns {
		m.records = m.records[:maxCachedTurns]
	}
	return nil
}

// ListLatest 返回最近的对话，按时间倒序排列。
func (m *MemoryHistoryRepository) ListLatest(_ context.Context, limit int) ([]TurnRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	results := make([]TurnRecord, 0, limit)
	for _, record := range m.records[:limit] {
		results = append(results, cloneTurn(record))
	}
	return results, nil
}

// Close 对文件仓库无需操作。
func (m *MemoryHistoryRepository) Close() error { return nil }

func (m *MemoryHistoryRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取对话日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var restored []TurnRecord
	for scanner.Scan() {
		var record TurnRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		if record.ID > m.nextID {
			m.nextID = record.ID
		}
		restored = append([]TurnRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析对话日志失败: %w", err)
	}
	if len(restored) > maxCachedTurns {
		restored = restored[:maxCachedTurns]
	}
	m.records = restored
	return nil
}

func cloneTurn(record TurnRecord) TurnRecord {
	record.ToolCalls = append([]ToolCallRecord(nil), record.ToolCalls...)
	return record
}

// SQLHistoryRepository 使用 MySQL 存储对话历史。
type SQLHistoryRepository struct {
	db *sql.DB
}

// NewSQLHistoryRepository 创建连接池并执行迁移。
func NewSQLHistoryRepository(ctx context.Context, cfg Config) (*SQLHistoryRepository, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLHistoryRepository{db: db}, nil
}

const insertTurnSQL = `INSERT INTO agent_turns
    (session_id, prompt, reply, tool_calls, steps, created_at)
    VALUES (?, ?, ?, ?, ?, ?)`

const listTurnsSQL = `SELECT id, session_id, prompt, reply, tool_calls, steps, created_at
    FROM agent_turns ORDER BY created_at DESC, id DESC LIMIT ?`

// Save 将一轮对话写入 MySQL。
func (s *SQLHistoryRepository) Save(ctx context.Context, record *TurnRecord) error {
	if record == nil {
		return fmt.Errorf("record 不能为空")
	}
	calls, err := encodeToolCalls(record.ToolCalls)
	if err != nil {
		return fmt.Errorf("序列化工具调用失败: %w", err)
	}
	res, err := s.db.ExecContext(ctx, insertTurnSQL,
		record.SessionID,
		record.Prompt,
		record.Reply,
		calls,
		record.Steps,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("写入对话记录失败: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		record.ID = id
	}
	return nil
}

// ListLatest 返回最近的对话记录。
func (s *SQLHistoryRepository) ListLatest(ctx context.Context, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, listTurnsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("查询对话记录失败: %w", err)
	}
	defer rows.Close()

	records := make([]TurnRecord, 0, limit)
	for rows.Next() {
		var (
			record TurnRecord
			calls  sql.NullString
		)
		if err := rows.Scan(&record.ID, &record.SessionID, &record.Prompt, &record.Reply, &calls, &record.Steps, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析对话记录失败: %w", err)
		}
		if calls.Valid && strings.TrimSpace(calls.String) != "" {
			if err := json.Unmarshal([]byte(calls.String), &record.ToolCalls); err != nil {
				return nil, fmt.Errorf("解析工具调用失败: %w", err)
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历对话记录失败: %w", err)
	}
	return records, nil
}

// Close 关闭连接池。
func (s *SQLHistoryRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func encodeToolCalls(calls []ToolCallRecord) (sql.NullString, error) {
	if len(calls) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(calls)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

var (
	_ HistoryRepository = (*MemoryHistoryRepository)(nil)
	_ HistoryRepository = (*SQLHistoryRepository)(nil)
)
