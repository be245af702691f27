package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"bazar_back_end/internal/database/cql"
	"bazar_back_end/internal/models"
)

const scyllaColumns = `payment_ref, amount_minor, currency, payload, error, created_at, resolved_order_id, resolved_at`

// ScyllaStore writes to payment_reconciliations in the orders keyspace.
type ScyllaStore struct {
	session cql.Session
}

func NewScyllaStore(session cql.Session) *ScyllaStore {
	return &ScyllaStore{session: session}
}

func (s *ScyllaStore) Save(ctx context.Context, r models.Reconciliation) error {
	err := s.session.Exec(ctx, cql.Stmt(`INSERT INTO payment_reconciliations (payment_ref, amount_minor, currency, payload, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.PaymentRef, r.AmountMinor, r.Currency, r.Payload, r.Error, r.CreatedAt))
	if err != nil {
		return fmt.Errorf("save reconciliation: %w", err)
	}
	return nil
}

func (s *ScyllaStore) Get(ctx context.Context, ref string) (*models.Reconciliation, error) {
	stmt := cql.Stmt(`SELECT `+scyllaColumns+` FROM payment_reconciliations WHERE payment_ref = ?`, ref)
	r, err := scanRecord(func(dest ...interface{}) error { return s.session.Scan(ctx, stmt, dest...) })
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reconciliation: %w", err)
	}
	return r, nil
}

func (s *ScyllaStore) List(ctx context.Context, includeResolved bool) ([]models.Reconciliation, error) {
	scanner := s.session.Iter(ctx, cql.Stmt(`SELECT `+scyllaColumns+` FROM payment_reconciliations`))
	var out []models.Reconciliation
	for scanner.Next() {
		r, err := scanRecord(scanner.Scan)
		if err != nil {
			_ = scanner.Err()
			return nil, fmt.Errorf("scan reconciliation: %w", err)
		}
		if r.ResolvedOrderID != "" && !includeResolved {
			continue
		}
		out = append(out, *r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("list reconciliations: %w", err)
	}
	return out, nil
}

func (s *ScyllaStore) Resolve(ctx context.Context, ref, orderID string, at time.Time) error {
	applied, err := s.session.CAS(ctx, cql.Stmt(`UPDATE payment_reconciliations SET resolved_order_id = ?, resolved_at = ? WHERE payment_ref = ? IF EXISTS`,
		orderID, at, ref), nil)
	if err != nil {
		return fmt.Errorf("resolve reconciliation: %w", err)
	}
	if !applied {
		return ErrNotFound
	}
	return nil
}

func scanRecord(scan func(dest ...interface{}) error) (*models.Reconciliation, error) {
	var (
		r          models.Reconciliation
		resolvedAt time.Time
	)
	if err := scan(&r.PaymentRef, &r.AmountMinor, &r.Currency, &r.Payload, &r.Error, &r.CreatedAt,
		&r.ResolvedOrderID, &resolvedAt); err != nil {
		return nil, err
	}
	if !resolvedAt.IsZero() {
		r.ResolvedAt = &resolvedAt
	}
	return &r, nil
}

var _ Store = (*ScyllaStore)(nil)
