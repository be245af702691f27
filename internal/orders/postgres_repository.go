package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"bazar_back_end/internal/models"
)

const pgOrderColumns = `id, order_number, user_id, items, subtotal, shipping_cost, discount, total,
	customer_name, customer_phone, customer_email, shipping_address, notes,
	payment_method, payment_status, payment_ref, status, created_at, updated_at`

const pgUniqueViolation = "23505"

// PostgresRepository stores orders through database/sql on the pgx driver.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			order_number TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			items JSONB NOT NULL,
			subtotal BIGINT NOT NULL,
			shipping_cost BIGINT NOT NULL,
			discount BIGINT NOT NULL DEFAULT 0,
			total BIGINT NOT NULL,
			customer_name TEXT NOT NULL,
			customer_phone TEXT NOT NULL,
			customer_email TEXT NOT NULL DEFAULT '',
			shipping_address JSONB NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			payment_method TEXT NOT NULL CHECK (payment_method IN ('cod','card')),
			payment_status TEXT NOT NULL CHECK (payment_status IN ('pending','paid','failed','refunded')),
			payment_ref TEXT,
			status TEXT NOT NULL CHECK (status IN ('pending','confirmed','processing','shipped','delivered','cancelled','refunded')),
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			CONSTRAINT orders_order_number_key UNIQUE (order_number),
			CONSTRAINT orders_payment_ref_key UNIQUE (payment_ref),
			CONSTRAINT orders_total_check CHECK (total = subtotal + shipping_cost - discount)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders (user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders (status, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS order_status_log (
			order_id UUID NOT NULL REFERENCES orders (id),
			at TIMESTAMPTZ NOT NULL,
			from_status TEXT NOT NULL DEFAULT '',
			to_status TEXT NOT NULL,
			actor TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_status_log_order ON order_status_log (order_id, at)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("orders schema: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) Insert(ctx context.Context, o *models.Order, first models.StatusTransition) error {
	items, address, err := encodeBlobs(o)
	if err != nil {
		return err
	}
	m := moneyOf(o)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin order insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO orders (`+pgOrderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		o.ID, o.OrderNumber, o.UserID, items, m.Subtotal, m.Shipping, m.Discount, m.Total,
		o.CustomerName, o.CustomerPhone, o.CustomerEmail, address, o.Notes,
		string(o.PaymentMethod), string(o.PaymentStatus), nullable(o.PaymentRef), string(o.Status), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return classifyPgError(err)
	}
	if err := appendLog(ctx, tx, first); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order insert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	return r.getOne(ctx, `SELECT `+pgOrderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	return r.getOne(ctx, `SELECT `+pgOrderColumns+` FROM orders WHERE order_number = $1`, number)
}

func (r *PostgresRepository) GetByPaymentRef(ctx context.Context, ref string) (*models.Order, error) {
	return r.getOne(ctx, `SELECT `+pgOrderColumns+` FROM orders WHERE payment_ref = $1`, ref)
}

func (r *PostgresRepository) getOne(ctx context.Context, query, arg string) (*models.Order, error) {
	o, err := scanPgOrder(r.db.QueryRowContext(ctx, query, arg).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	return r.list(ctx, `SELECT `+pgOrderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *PostgresRepository) List(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if filter.Status != "" {
		return r.list(ctx, `SELECT `+pgOrderColumns+` FROM orders WHERE status = $1 ORDER BY created_at DESC LIMIT $2`,
			string(filter.Status), limit)
	}
	return r.list(ctx, `SELECT `+pgOrderColumns+` FROM orders ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []models.Order
	for rows.Next() {
		o, err := scanPgOrder(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, t models.StatusTransition, payment models.PaymentStatus, paymentRef string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE orders
		SET status = $1, payment_status = $2, payment_ref = COALESCE($3, payment_ref), updated_at = $4
		WHERE id = $5 AND status = $6`,
		string(t.To), string(payment), nullable(paymentRef), t.At, id, string(t.From))
	if err != nil {
		return classifyPgError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("status update result: %w", err)
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id = $1`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("status update lookup: %w", err)
		}
		return ErrStaleStatus
	}
	if err := appendLog(ctx, tx, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status update: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Transitions(ctx context.Context, id string) ([]models.StatusTransition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT at, from_status, to_status, actor, note FROM order_status_log WHERE order_id = $1 ORDER BY at`, id)
	if err != nil {
		return nil, fmt.Errorf("read status log: %w", err)
	}
	defer rows.Close()

	var out []models.StatusTransition
	for rows.Next() {
		t := models.StatusTransition{OrderID: id}
		var from, to string
		if err := rows.Scan(&t.At, &from, &to, &t.Actor, &t.Note); err != nil {
			return nil, fmt.Errorf("scan status log: %w", err)
		}
		t.From, t.To = models.OrderStatus(from), models.OrderStatus(to)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func appendLog(ctx context.Context, tx *sql.Tx, t models.StatusTransition) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_status_log (order_id, at, from_status, to_status, actor, note) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.OrderID, t.At, string(t.From), string(t.To), t.Actor, t.Note)
	if err != nil {
		return fmt.Errorf("append status log: %w", err)
	}
	return nil
}

func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case "orders_order_number_key":
			return ErrDuplicateNumber
		case "orders_payment_ref_key":
			return ErrDuplicatePaymentRef
		}
	}
	return fmt.Errorf("orders write: %w", err)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanPgOrder(scan func(dest ...any) error) (*models.Order, error) {
	var (
		o                       models.Order
		items, address          []byte
		method, payment, status string
		ref                     sql.NullString
		m                       storedMoney
	)
	err := scan(&o.ID, &o.OrderNumber, &o.UserID, &items, &m.Subtotal, &m.Shipping, &m.Discount, &m.Total,
		&o.CustomerName, &o.CustomerPhone, &o.CustomerEmail, &address, &o.Notes,
		&method, &payment, &ref, &status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.PaymentMethod = models.PaymentMethod(method)
	o.PaymentStatus = models.PaymentStatus(payment)
	o.PaymentRef = ref.String
	o.Status = models.OrderStatus(status)
	m.apply(&o)
	if err := decodeBlobs(&o, string(items), string(address)); err != nil {
		return nil, err
	}
	return &o, nil
}

var _ Repository = (*PostgresRepository)(nil)
