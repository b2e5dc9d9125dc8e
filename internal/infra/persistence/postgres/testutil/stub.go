// Package testutil provides a database/sql driver that stands in for Postgres
// in ledger tests. It understands only the statements the ledger issues
// against its state table: the DDL, the bucket upsert and the bucket select.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
)

// StubConn keeps the state table as payloads per bucket.
type StubConn struct {
	Execs      []string
	Buckets    map[string][]byte
	FailPing   bool
	FailExec   bool
	FailQuery  bool
	FailBegin  bool
	FailCommit bool
}

var stubSeq atomic.Int64

// NewStubDB registers a fresh driver instance and opens a sql.DB on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Buckets: make(map[string][]byte)}
	name := fmt.Sprintf("normative-stubpg-%d", stubSeq.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct{ conn *StubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare is unused: the ledger only issues direct statements.
func (c *StubConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("stubpg: prepare not supported: %s", query)
}

func (c *StubConn) Close() error { return nil }

func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return fmt.Errorf("stubpg: ping failed")
	}
	return nil
}

func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("stubpg: begin failed")
	}
	return stubTx{conn: c}, nil
}

// ExecContext accepts the state DDL and the bucket upsert.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("stubpg: exec failed")
	}
	q := normalize(query)
	switch {
	case strings.HasPrefix(q, "create table if not exists state"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(q, "insert into state(bucket,payload)"):
		if len(args) != 2 {
			return nil, fmt.Errorf("stubpg: upsert wants 2 args, got %d", len(args))
		}
		bucket, ok := args[0].Value.(string)
		if !ok {
			return nil, fmt.Errorf("stubpg: bucket is %T", args[0].Value)
		}
		payload, ok := args[1].Value.([]byte)
		if !ok {
			return nil, fmt.Errorf("stubpg: payload is %T", args[1].Value)
		}
		c.Buckets[bucket] = append([]byte(nil), payload...)
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("stubpg: unexpected statement: %s", query)
}

// QueryContext serves the bucket select in bucket order.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if c.FailQuery {
		return nil, fmt.Errorf("stubpg: query failed")
	}
	if normalize(query) != "select bucket, payload from state" {
		return nil, fmt.Errorf("stubpg: unexpected query: %s", query)
	}
	names := make([]string, 0, len(c.Buckets))
	for name := range c.Buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := &stubRows{}
	for _, name := range names {
		rows.rows = append(rows.rows, [2]driver.Value{name, c.Buckets[name]})
	}
	return rows, nil
}

func normalize(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

type stubTx struct{ conn *StubConn }

func (t stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("stubpg: commit failed")
	}
	return nil
}

func (t stubTx) Rollback() error { return nil }

type stubRows struct {
	rows [][2]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return []string{"bucket", "payload"} }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	dest[0], dest[1] = r.rows[r.idx][0], r.rows[r.idx][1]
	r.idx++
	return nil
}
