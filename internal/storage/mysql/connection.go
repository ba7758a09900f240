package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	gomysql "github.com/go-sql-driver/mysql"
)

// Config 描述 MySQL 连接池参数。零值字段使用默认值。
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// PingRetries 是启动时 ping 失败后的重试次数，容器编排下数据库常常晚于服务就绪。
	PingRetries uint64
}

const (
	defaultMaxOpenConns    = 20
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
	defaultPingRetries     = 3
)

// Open 解析 DSN 并建立连接池。时间列统一按 UTC 处理，多语句执行保持关闭。
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("MySQL DSN 不能为空")
	}
	dsn, err := gomysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("解析 MySQL DSN 失败: %w", err)
	}
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	dsn.MultiStatements = false

	connector, err := gomysql.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("创建 MySQL 连接器失败: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, defaultMaxOpenConns))
	db.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, defaultMaxIdleConns))
	db.SetConnMaxLifetime(orDefault(cfg.ConnMaxLifetime, defaultConnMaxLifetime))
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	retries := cfg.PingRetries
	if retries == 0 {
		retries = defaultPingRetries
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries), ctx)
	if err := backoff.Retry(func() error { return db.PingContext(ctx) }, policy); err != nil {
		db.Close()
		return nil, fmt.Errorf("无法连接到 MySQL %s: %w", dsn.Addr, err)
	}
	return db, nil
}

func orDefault[T int | time.Duration](value, fallback T) T {
	if value > 0 {
		return value
	}
	return fallback
}
