// Package cqltest provides a scripted cql.Session for store tests.
package cqltest

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gocql/gocql"

	"bazar_back_end/internal/database/cql"
)

// Session logs every statement it runs, batched ones included. Unset hooks
// apply every CAS, succeed every write and find no rows.
type Session struct {
	mu sync.Mutex

	OnCAS   func(s cql.Statement, previous map[string]interface{}) (bool, error)
	OnScan  func(s cql.Statement) ([]interface{}, error)
	OnExec  func(s cql.Statement) error
	OnBatch func(stmts []cql.Statement) error
	OnIter  func(s cql.Statement) ([][]interface{}, error)

	Log     []cql.Statement
	Batches [][]cql.Statement
}

func New() *Session { return &Session{} }

func (f *Session) record(stmts ...cql.Statement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Log = append(f.Log, stmts...)
}

// Ran returns the logged statements whose CQL contains fragment.
func (f *Session) Ran(fragment string) []cql.Statement {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []cql.Statement
	for _, s := range f.Log {
		if strings.Contains(s.CQL, fragment) {
			out = append(out, s)
		}
	}
	return out
}

func (f *Session) Exec(_ context.Context, s cql.Statement) error {
	f.record(s)
	if f.OnExec != nil {
		return f.OnExec(s)
	}
	return nil
}

func (f *Session) Scan(_ context.Context, s cql.Statement, dest ...interface{}) error {
	f.record(s)
	if f.OnScan == nil {
		return gocql.ErrNotFound
	}
	row, err := f.OnScan(s)
	if err != nil {
		return err
	}
	if row == nil {
		return gocql.ErrNotFound
	}
	return Assign(dest, row)
}

func (f *Session) CAS(_ context.Context, s cql.Statement, previous map[string]interface{}) (bool, error) {
	f.record(s)
	if f.OnCAS == nil {
		return true, nil
	}
	if previous == nil {
		previous = map[string]interface{}{}
	}
	return f.OnCAS(s, previous)
}

func (f *Session) Batch(_ context.Context, stmts []cql.Statement) error {
	if len(stmts) == 0 {
		return nil
	}
	f.record(stmts...)
	f.mu.Lock()
	f.Batches = append(f.Batches, stmts)
	f.mu.Unlock()
	if f.OnBatch != nil {
		return f.OnBatch(stmts)
	}
	return nil
}

func (f *Session) Iter(_ context.Context, s cql.Statement) gocql.Scanner {
	f.record(s)
	if f.OnIter == nil {
		return &rows{}
	}
	data, err := f.OnIter(s)
	return &rows{data: data, err: err, pos: -1}
}

type rows struct {
	data [][]interface{}
	err  error
	pos  int
}

func (r *rows) Next() bool {
	if r.err != nil || r.pos+1 >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *rows) Scan(dest ...interface{}) error {
	if r.pos < 0 || r.pos >= len(r.data) {
		return fmt.Errorf("cqltest: Scan called without a row")
	}
	return Assign(dest, r.data[r.pos])
}

func (r *rows) Err() error { return r.err }

// Assign copies row into the pointers in dest. Types must match exactly.
func Assign(dest []interface{}, row []interface{}) error {
	if len(dest) != len(row) {
		return fmt.Errorf("cqltest: %d destinations for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d)
		if target.Kind() != reflect.Pointer || target.IsNil() {
			return fmt.Errorf("cqltest: column %d destination is not a pointer", i)
		}
		v := reflect.ValueOf(row[i])
		if !v.IsValid() {
			target.Elem().Set(reflect.Zero(target.Elem().Type()))
			continue
		}
		if !v.Type().AssignableTo(target.Elem().Type()) {
			return fmt.Errorf("cqltest: column %d is %s, destination wants %s", i, v.Type(), target.Elem().Type())
		}
		target.Elem().Set(v)
	}
	return nil
}

var _ cql.Session = (*Session)(nil)
