// Package cql narrows a gocql session to the calls the Scylla stores make,
// so their lightweight-transaction and batch branches run against a fake.
package cql

import (
	"context"

	"github.com/gocql/gocql"
)

// Statement is one CQL statement and its bind values.
type Statement struct {
	CQL    string
	Values []interface{}
}

func Stmt(cql string, values ...interface{}) Statement {
	return Statement{CQL: cql, Values: values}
}

type Session interface {
	Exec(ctx context.Context, s Statement) error
	// Scan reads a single row. A missing row is gocql.ErrNotFound.
	Scan(ctx context.Context, s Statement, dest ...interface{}) error
	// CAS runs a conditional statement. When it is not applied, previous
	// holds the current row, and is empty when there is no row.
	CAS(ctx context.Context, s Statement, previous map[string]interface{}) (bool, error)
	// Batch runs stmts as one logged batch. An empty batch is a no-op.
	Batch(ctx context.Context, stmts []Statement) error
	Iter(ctx context.Context, s Statement) gocql.Scanner
}

// GocqlSession is the production Session.
type GocqlSession struct {
	session *gocql.Session
}

func NewSession(s *gocql.Session) *GocqlSession {
	return &GocqlSession{session: s}
}

func (g *GocqlSession) query(ctx context.Context, s Statement) *gocql.Query {
	return g.session.Query(s.CQL, s.Values...).WithContext(ctx)
}

func (g *GocqlSession) Exec(ctx context.Context, s Statement) error {
	return g.query(ctx, s).Exec()
}

func (g *GocqlSession) Scan(ctx context.Context, s Statement, dest ...interface{}) error {
	return g.query(ctx, s).Scan(dest...)
}

func (g *GocqlSession) CAS(ctx context.Context, s Statement, previous map[string]interface{}) (bool, error) {
	if previous == nil {
		previous = map[string]interface{}{}
	}
	return g.query(ctx, s).MapScanCAS(previous)
}

func (g *GocqlSession) Batch(ctx context.Context, stmts []Statement) error {
	if len(stmts) == 0 {
		return nil
	}
	batch := g.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, s := range stmts {
		batch.Query(s.CQL, s.Values...)
	}
	return g.session.ExecuteBatch(batch)
}

func (g *GocqlSession) Iter(ctx context.Context, s Statement) gocql.Scanner {
	return g.query(ctx, s).Iter().Scanner()
}

var _ Session = (*GocqlSession)(nil)
