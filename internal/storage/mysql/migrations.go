package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"WaxAgentKit/deploy/migrations"
)

const (
	createMigrationsTable = `CREATE TABLE IF NOT EXISTS waxkit_schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        name VARCHAR(255) NOT NULL,
        applied_at BIGINT NOT NULL
)`
	selectAppliedVersions = `SELECT version FROM waxkit_schema_migrations`
	insertAppliedVersion  = `INSERT INTO waxkit_schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`
)

// migration 是一个待执行的脚本，statements 已去掉注释并按分号拆开。
type migration struct {
	version    string
	name       string
	statements []string
}

// runMigrations 执行内嵌脚本中尚未记录在 waxkit_schema_migrations 的版本。
func runMigrations(ctx context.Context, db *sql.DB) error {
	names, err := migrations.Names()
	if err != nil {
		return fmt.Errorf("读取迁移目录失败: %w", err)
	}
	pending, err := loadMigrations(migrations.FS(), names)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("创建迁移记录表失败: %w", err)
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if applied[m.version] {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, selectAppliedVersions)
	if err != nil {
		return nil, fmt.Errorf("查询已执行的迁移失败: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("解析迁移版本失败: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func apply(ctx context.Context, db *sql.DB, m migration) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启迁移事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range m.statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("执行迁移 %s 失败: %w", m.name, err)
		}
	}
	if _, err = tx.ExecContext(ctx, insertAppliedVersion, m.version, m.name, time.Now().Unix()); err != nil {
		return fmt.Errorf("记录迁移 %s 失败: %w", m.name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移 %s 失败: %w", m.name, err)
	}
	return nil
}

// loadMigrations 读取并解析脚本。版本号重复或缺失会直接报错。
func loadMigrations(fsys fs.FS, names []string) ([]migration, error) {
	seen := make(map[string]string, len(names))
	out := make([]migration, 0, len(names))
	for _, name := range names {
		version, err := migrationVersion(name)
		if err != nil {
			return nil, err
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("迁移 %s 与 %s 版本号重复", name, other)
		}
		seen[version] = name

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		statements := splitStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		out = append(out, migration{version: version, name: name, statements: statements})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// splitStatements 去掉以 -- 开头的注释行后按分号拆分。
func splitStatements(content string) []string {
	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var statements []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}

// migrationVersion 取文件名开头的数字部分。
func migrationVersion(name string) (string, error) {
	end := 0
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}
	if end == 0 {
		return "", fmt.Errorf("迁移文件 %s 缺少版本号前缀", name)
	}
	return name[:end], nil
}
