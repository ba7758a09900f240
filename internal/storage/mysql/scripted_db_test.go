package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

// step 描述脚本中期望出现的一次数据库调用。
type step struct {
	verb    string // exec, query, begin, commit, rollback
	sql     string
	lastID  int64
	columns []string
	data    [][]driver.Value
	err     error
}

func expectExec(query string, lastID int64) step {
	return step{verb: "exec", sql: query, lastID: lastID}
}

func expectQuery(query string, columns []string, data ...[]driver.Value) step {
	return step{verb: "query", sql: query, columns: columns, data: data}
}

func expectBegin() step  { return step{verb: "begin"} }
func expectCommit() step { return step{verb: "commit"} }

// scriptedDB 按顺序校验调用，偏离脚本时返回错误。
type scriptedDB struct {
	mu    sync.Mutex
	steps []step
	next  int
}

// openScripted 通过 Connector 打开连接池，不需要注册全局驱动。
func openScripted(t *testing.T, steps ...step) (*sql.DB, *scriptedDB) {
	t.Helper()
	script := &scriptedDB{steps: steps}
	db := sql.OpenDB(script)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		db.Close()
		script.mu.Lock()
		defer script.mu.Unlock()
		if script.next != len(script.steps) {
			t.Errorf("script stopped at step %d of %d", script.next, len(script.steps))
		}
	})
	return db, script
}

func (s *scriptedDB) Connect(context.Context) (driver.Conn, error) { return scriptedConn{s}, nil }
func (s *scriptedDB) Driver() driver.Driver                        { return s }
func (s *scriptedDB) Open(string) (driver.Conn, error)             { return scriptedConn{s}, nil }

func (s *scriptedDB) advance(verb, query string) (step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.steps) {
		return step{}, fmt.Errorf("unexpected %s after script end", verb)
	}
	want := s.steps[s.next]
	if want.verb != verb {
		return step{}, fmt.Errorf("step %d: want %s, got %s", s.next, want.verb, verb)
	}
	if want.sql != "" && squash(want.sql) != squash(query) {
		return step{}, fmt.Errorf("step %d: want %q, got %q", s.next, squash(want.sql), squash(query))
	}
	s.next++
	return want, want.err
}

func squash(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

type scriptedConn struct{ db *scriptedDB }

func (c scriptedConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements are not scripted")
}

func (c scriptedConn) Close() error { return nil }

func (c scriptedConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c scriptedConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if _, err := c.db.advance("begin", ""); err != nil {
		return nil, err
	}
	return scriptedTx(c), nil
}

func (c scriptedConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	st, err := c.db.advance("exec", query)
	if err != nil {
		return nil, err
	}
	return scriptedResult(st.lastID), nil
}

func (c scriptedConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	st, err := c.db.advance("query", query)
	if err != nil {
		return nil, err
	}
	return &scriptedRows{columns: st.columns, data: st.data}, nil
}

// scriptedResult 以自身作为自增 ID，每次影响一行。
type scriptedResult int64

func (r scriptedResult) LastInsertId() (int64, error) { return int64(r), nil }
func (r scriptedResult) RowsAffected() (int64, error) { return 1, nil }

type scriptedTx scriptedConn

func (t scriptedTx) Commit() error {
	_, err := t.db.advance("commit", "")
	return err
}

func (t scriptedTx) Rollback() error {
	_, err := t.db.advance("rollback", "")
	return err
}

type scriptedRows struct {
	columns []string
	data    [][]driver.Value
}

func (r *scriptedRows) Columns() []string { return r.columns }
func (r *scriptedRows) Close() error      { return nil }

func (r *scriptedRows) Next(dest []driver.Value) error {
	if len(r.data) == 0 {
		return io.EOF
	}
	copy(dest, r.data[0])
	r.data = r.data[1:]
	return nil
}
