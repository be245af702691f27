package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bazar_back_end/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS payment_reconciliations (
		payment_ref TEXT PRIMARY KEY,
		amount_minor BIGINT NOT NULL,
		currency TEXT NOT NULL,
		payload JSONB NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		resolved_order_id TEXT NOT NULL DEFAULT '',
		resolved_at TIMESTAMPTZ
	)`)
	if err != nil {
		return fmt.Errorf("reconciliation schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, r models.Reconciliation) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO payment_reconciliations (payment_ref, amount_minor, currency, payload, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (payment_ref) DO UPDATE SET error = EXCLUDED.error, payload = EXCLUDED.payload`,
		r.PaymentRef, r.AmountMinor, r.Currency, r.Payload, r.Error, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("save reconciliation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, ref string) (*models.Reconciliation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payment_ref, amount_minor, currency, payload, error, created_at, resolved_order_id, resolved_at
		FROM payment_reconciliations WHERE payment_ref = $1`, ref)
	r, err := scanPgRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reconciliation: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) List(ctx context.Context, includeResolved bool) ([]models.Reconciliation, error) {
	query := `SELECT payment_ref, amount_minor, currency, payload, error, created_at, resolved_order_id, resolved_at
		FROM payment_reconciliations`
	if !includeResolved {
		query += ` WHERE resolved_order_id = ''`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list reconciliations: %w", err)
	}
	defer rows.Close()

	var out []models.Reconciliation
	for rows.Next() {
		r, err := scanPgRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan reconciliation: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Resolve(ctx context.Context, ref, orderID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE payment_reconciliations SET resolved_order_id = $1, resolved_at = $2 WHERE payment_ref = $3`,
		orderID, at, ref)
	if err != nil {
		return fmt.Errorf("resolve reconciliation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPgRecord(scan func(dest ...any) error) (*models.Reconciliation, error) {
	var (
		r          models.Reconciliation
		payload    []byte
		resolvedAt sql.NullTime
	)
	if err := scan(&r.PaymentRef, &r.AmountMinor, &r.Currency, &payload, &r.Error, &r.CreatedAt,
		&r.ResolvedOrderID, &resolvedAt); err != nil {
		return nil, err
	}
	r.Payload = string(payload)
	if resolvedAt.Valid {
		r.ResolvedAt = &resolvedAt.Time
	}
	return &r, nil
}

var _ Store = (*PostgresStore)(nil)
