package task

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	xerrors "WaxAgentKit/internal/errors"
)

// PoolOptions 控制 database/sql 连接池。
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// dialect 描述不同数据库之间的差异。
type dialect struct {
	name        string
	schema      []string
	isDuplicate func(error) bool
}

// sqlStore 是 MySQL 与 SQLite 共用的 Store 实现，两者都使用 ? 占位符。
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

const jobColumns = `id, tool, input, metadata, status, attempts, max_retries, last_error, error_code,
        result_status, result_message, result_envelope, created_at, updated_at`

func newSQLStore(ctx context.Context, db *sql.DB, d dialect) (*sqlStore, error) {
	store := &sqlStore{db: db, dialect: d, now: time.Now}
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("初始化 %s tool_jobs 表失败", d.name))
		}
	}
	return store, nil
}

// Create 插入新的任务记录。
func (s *sqlStore) Create(ctx context.Context, job *Job) error {
	if err := validateNewJob(job); err != nil {
		return err
	}
	now := s.now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = StatusPending
	}

	metadata, err := marshalMetadata(job.Metadata)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidInput, err, "编码任务 metadata 失败")
	}

	const stmt = `INSERT INTO tool_jobs
        (id, tool, input, metadata, status, attempts, max_retries, last_error, error_code,
         result_status, result_message, result_envelope, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, '', '', '', '', NULL, ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		job.ID,
		job.Tool,
		job.Input,
		metadata,
		string(job.Status),
		job.Attempts,
		job.MaxRetries,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		if s.dialect.isDuplicate != nil && s.dialect.isDuplicate(err) {
			return ErrJobConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入任务失败")
	}
	return nil
}

// Get 查询指定任务。
func (s *sqlStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM tool_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务失败")
	}
	return job, nil
}

// Claim 将 pending 任务标记为运行中并返回最新状态。
func (s *sqlStore) Claim(ctx context.Context, id string) (*Job, error) {
	const stmt = `UPDATE tool_jobs SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status = ? AND attempts < max_retries`

	res, err := s.db.ExecContext(ctx, stmt,
		string(StatusRunning),
		s.now().Unix(),
		id,
		string(StatusPending),
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if claimErr := claimable(job); claimErr != nil {
			return job, claimErr
		}
		// 并发领取时状态可能刚被其他 worker 改写
		return job, ErrJobConflict
	}
	return job, nil
}

// MarkSucceeded 将任务标记为成功。
func (s *sqlStore) MarkSucceeded(ctx context.Context, id string, result ExecutionResult) error {
	const stmt = `UPDATE tool_jobs SET status = ?, result_status = ?, result_message = ?, result_envelope = ?,
        updated_at = ?, last_error = '', error_code = '' WHERE id = ?`

	res, err := s.db.ExecContext(ctx, stmt,
		string(StatusSucceeded),
		result.Status,
		result.Message,
		envelopeValue(result.Envelope),
		s.now().Unix(),
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记任务成功失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkFailed 记录失败；terminal 为 false 时任务回到 pending。
func (s *sqlStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, result *ExecutionResult, terminal bool) error {
	status := StatusPending
	if terminal {
		status = StatusFailed
	}
	now := s.now().Unix()

	var (
		res sql.Result
		err error
	)
	if result != nil {
		const stmt = `UPDATE tool_jobs SET status = ?, last_error = ?, error_code = ?, result_status = ?, result_message = ?,
            result_envelope = ?, updated_at = ? WHERE id = ?`
		res, err = s.db.ExecContext(ctx, stmt,
			string(status), lastError, string(code),
			result.Status, result.Message, envelopeValue(result.Envelope),
			now, id,
		)
	} else {
		const stmt = `UPDATE tool_jobs SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`
		res, err = s.db.ExecContext(ctx, stmt, string(status), lastError, string(code), now, id)
	}
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记任务失败状态出错")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// List 返回符合条件的任务。
func (s *sqlStore) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	opts.applyDefaults()

	query := `SELECT ` + jobColumns + ` FROM tool_jobs`
	clause, args := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}
	if opts.Order == SortByUpdatedAsc {
		query += " ORDER BY updated_at ASC, created_at ASC, id ASC"
	} else {
		query += " ORDER BY updated_at DESC, created_at DESC, id ASC"
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务列表失败")
	}
	defer rows.Close()

	jobs := make([]*Job, 0, opts.Limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务记录失败")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务失败")
	}
	return jobs, nil
}

// Stats 返回符合过滤条件的任务聚合信息。
func (s *sqlStore) Stats(ctx context.Context, opts ListOptions) (JobStats, error) {
	opts.applyDefaults()

	query := `SELECT status, tool, COUNT(*), MIN(updated_at), MAX(updated_at) FROM tool_jobs`
	clause, args := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}
	query += " GROUP BY status, tool"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return JobStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务统计失败")
	}
	defer rows.Close()

	var stats JobStats
	for rows.Next() {
		var (
			status, tool   string
			count          int
			oldest, newest int64
		)
		if err := rows.Scan(&status, &tool, &count, &oldest, &newest); err != nil {
			return JobStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取任务统计失败")
		}
		stats.merge(Status(status), tool, count, oldest, newest)
	}
	if err := rows.Err(); err != nil {
		return JobStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取任务统计失败")
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job           Job
		status        string
		metadata      sql.NullString
		resultStatus  string
		resultMessage string
		envelope      sql.NullString
	)
	if err := row.Scan(
		&job.ID,
		&job.Tool,
		&job.Input,
		&metadata,
		&status,
		&job.Attempts,
		&job.MaxRetries,
		&job.LastError,
		&job.ErrorCode,
		&resultStatus,
		&resultMessage,
		&envelope,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Status = Status(status)

	decoded, err := unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	job.Metadata = decoded

	if resultStatus != "" {
		job.Result = &ExecutionResult{Status: resultStatus, Message: resultMessage}
		if envelope.Valid && envelope.String != "" {
			job.Result.Envelope = json.RawMessage(envelope.String)
		}
	}
	return &job, nil
}

func envelopeValue(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func marshalMetadata(metadata map[string]any) (sql.NullString, error) {
	if len(metadata) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalMetadata(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw.String), &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 6)
	args := make([]any, 0, 8)

	if len(opts.Statuses) > 0 {
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", placeholders(len(opts.Statuses))))
		for _, status := range opts.Statuses {
			args = append(args, string(status))
		}
	}
	if len(opts.Tools) > 0 {
		conditions = append(conditions, fmt.Sprintf("tool IN (%s)", placeholders(len(opts.Tools))))
		for _, name := range opts.Tools {
			args = append(args, name)
		}
	}
	if opts.UpdatedGTE > 0 {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		conditions = append(conditions, "updated_at <= ?")
		args = append(args, opts.UpdatedLTE)
	}
	if opts.HasResult != nil {
		if *opts.HasResult {
			conditions = append(conditions, "result_status <> ''")
		} else {
			conditions = append(conditions, "result_status = ''")
		}
	}
	if opts.Query != "" {
		pattern := "%" + strings.ToLower(opts.Query) + "%"
		conditions = append(conditions, "(LOWER(id) LIKE ? OR LOWER(tool) LIKE ? OR LOWER(input) LIKE ? OR LOWER(last_error) LIKE ? OR LOWER(result_message) LIKE ?)")
		args = append(args, pattern, pattern, pattern, pattern, pattern)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*sqlStore)(nil)
