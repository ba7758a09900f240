package task

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	xerrors "WaxAgentKit/internal/errors"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS tool_jobs (
        id TEXT PRIMARY KEY,
        tool TEXT NOT NULL,
        input TEXT NOT NULL,
        metadata TEXT,
        status TEXT NOT NULL,
        attempts INTEGER NOT NULL DEFAULT 0,
        max_retries INTEGER NOT NULL DEFAULT 3,
        last_error TEXT NOT NULL DEFAULT '',
        error_code TEXT NOT NULL DEFAULT '',
        result_status TEXT NOT NULL DEFAULT '',
        result_message TEXT NOT NULL DEFAULT '',
        result_envelope TEXT,
        created_at INTEGER NOT NULL,
        updated_at INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_tool_jobs_status ON tool_jobs(status)`,
	`CREATE INDEX IF NOT EXISTS idx_tool_jobs_updated ON tool_jobs(updated_at)`,
}

// SQLiteStore 使用本地 SQLite 文件记录任务状态，适合单机部署。
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore 打开 path 指向的数据库文件。
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "SQLite 路径不能为空")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开 SQLite 失败")
	}
	// SQLite 只允许单写者，多个 worker 共用一个连接避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "设置 SQLite WAL 失败")
	}
	inner, err := newSQLStore(ctx, db, dialect{
		name:        "sqlite",
		schema:      sqliteSchema,
		isDuplicate: isSQLiteDuplicate,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{sqlStore: inner}, nil
}

func isSQLiteDuplicate(err error) bool {
	var sqliteErr *sqlite.Error
	if stdErrors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ Store = (*SQLiteStore)(nil)
