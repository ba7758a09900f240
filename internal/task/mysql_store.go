package task

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	xerrors "WaxAgentKit/internal/errors"
	sqlconn "WaxAgentKit/internal/storage/mysql"
)

const mysqlSchema = `CREATE TABLE IF NOT EXISTS tool_jobs (
        id VARCHAR(64) PRIMARY KEY,
        tool VARCHAR(128) NOT NULL,
        input TEXT NOT NULL,
        metadata TEXT,
        status VARCHAR(32) NOT NULL,
        attempts INT NOT NULL DEFAULT 0,
        max_retries INT NOT NULL DEFAULT 3,
        last_error TEXT,
        error_code VARCHAR(64) NOT NULL DEFAULT '',
        result_status VARCHAR(16) NOT NULL DEFAULT '',
        result_message TEXT,
        result_envelope MEDIUMTEXT,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_tool_jobs_status (status),
        INDEX idx_tool_jobs_tool (tool),
        INDEX idx_tool_jobs_updated (updated_at)
)`

// MySQLStore 使用 MySQL 记录任务状态。
type MySQLStore struct {
	*sqlStore
}

// NewMySQLStore 创建一个新的 MySQLStore 并确保表结构存在。
func NewMySQLStore(ctx context.Context, dsn string, pool PoolOptions) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "MySQL DSN 不能为空")
	}
	db, err := sqlconn.Open(ctx, sqlconn.Config{
		DSN:             dsn,
		MaxOpenConns:    pool.MaxOpenConns,
		MaxIdleConns:    pool.MaxIdleConns,
		ConnMaxLifetime: pool.ConnMaxLifetime,
		ConnMaxIdleTime: pool.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}
	store, err := newMySQLStoreWithDB(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func newMySQLStoreWithDB(ctx context.Context, db *sql.DB) (*MySQLStore, error) {
	inner, err := newSQLStore(ctx, db, dialect{
		name:        "mysql",
		schema:      []string{mysqlSchema},
		isDuplicate: isMySQLDuplicate,
	})
	if err != nil {
		return nil, err
	}
	return &MySQLStore{sqlStore: inner}, nil
}

func isMySQLDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	return stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

var _ Store = (*MySQLStore)(nil)
