// Package migrations 内嵌对话历史表的 MySQL 结构脚本。文件名以版本号开头，例如 0001_create_agent_turns.sql。
package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var scripts embed.FS

// FS 返回内嵌脚本的只读文件系统。
func FS() fs.FS { return scripts }

// Names 按文件名顺序返回全部 .sql 脚本。
func Names() ([]string, error) {
	entries, err := fs.ReadDir(scripts, ".")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
