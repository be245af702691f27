package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gocql/gocql"

	"bazar_back_end/internal/database/cql"
	"bazar_back_end/internal/models"
)

const scyllaOrderColumns = `order_id, order_number, user_id, items, subtotal, shipping_cost, discount, total,
	customer_name, customer_phone, customer_email, shipping_address, notes,
	payment_method, payment_status, payment_ref, status, created_at, updated_at`

const insertStatusLog = `INSERT INTO order_status_log (order_id, at, from_status, to_status, actor, note) VALUES (?, ?, ?, ?, ?, ?)`

// ScyllaRepository stores orders in the orders keyspace. The order number and
// the payment reference are claimed with lightweight transactions before the
// order row, its user index and its first log row go out in one logged batch.
type ScyllaRepository struct {
	session cql.Session
	logger  *slog.Logger
}

func NewScyllaRepository(session cql.Session, logger *slog.Logger) *ScyllaRepository {
	return &ScyllaRepository{session: session, logger: logger.With("component", "orders.scylla")}
}

func (r *ScyllaRepository) Insert(ctx context.Context, o *models.Order, first models.StatusTransition) error {
	id, err := gocql.ParseUUID(o.ID)
	if err != nil {
		return fmt.Errorf("order id: %w", err)
	}
	items, address, err := encodeBlobs(o)
	if err != nil {
		return err
	}

	applied, err := r.session.CAS(ctx, cql.Stmt(
		`INSERT INTO orders_by_number (order_number, order_id) VALUES (?, ?) IF NOT EXISTS`,
		o.OrderNumber, id), nil)
	if err != nil {
		return fmt.Errorf("claim order number: %w", err)
	}
	if !applied {
		return ErrDuplicateNumber
	}

	if o.PaymentRef != "" {
		applied, err = r.claimPaymentRef(ctx, o.PaymentRef, id)
		if err != nil || !applied {
			r.releaseNumber(ctx, o.OrderNumber, id)
			if err != nil {
				return err
			}
			return ErrDuplicatePaymentRef
		}
	}

	m := moneyOf(o)
	batch := []cql.Statement{cql.Stmt(
		`INSERT INTO orders (`+scyllaOrderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, o.OrderNumber, o.UserID, items, m.Subtotal, m.Shipping, m.Discount, m.Total,
		o.CustomerName, o.CustomerPhone, o.CustomerEmail, address, o.Notes,
		string(o.PaymentMethod), string(o.PaymentStatus), o.PaymentRef, string(o.Status), o.CreatedAt, o.UpdatedAt)}
	if o.UserID != "" {
		batch = append(batch, cql.Stmt(`INSERT INTO orders_by_user (user_id, created_at, order_id) VALUES (?, ?, ?)`,
			o.UserID, o.CreatedAt, id))
	}
	batch = append(batch, cql.Stmt(insertStatusLog,
		id, first.At, string(first.From), string(first.To), first.Actor, first.Note))

	if err := r.session.Batch(ctx, batch); err != nil {
		r.releaseNumber(ctx, o.OrderNumber, id)
		if o.PaymentRef != "" {
			r.releasePaymentRef(ctx, o.PaymentRef, id)
		}
		return fmt.Errorf("write order batch: %w", err)
	}
	return nil
}

func (r *ScyllaRepository) claimPaymentRef(ctx context.Context, ref string, id gocql.UUID) (bool, error) {
	applied, err := r.session.CAS(ctx, cql.Stmt(
		`INSERT INTO orders_by_payment (payment_ref, order_id) VALUES (?, ?) IF NOT EXISTS`,
		ref, id), nil)
	if err != nil {
		return false, fmt.Errorf("claim payment ref: %w", err)
	}
	return applied, nil
}

// Releases run even when the caller has gone away, or the claim would
// outlive the failed insert.
func (r *ScyllaRepository) releaseNumber(ctx context.Context, number string, id gocql.UUID) {
	if _, err := r.session.CAS(context.WithoutCancel(ctx), cql.Stmt(
		`DELETE FROM orders_by_number WHERE order_number = ? IF order_id = ?`, number, id), nil); err != nil {
		r.logger.Warn("release order number failed", "order_number", number, "error", err)
	}
}

func (r *ScyllaRepository) releasePaymentRef(ctx context.Context, ref string, id gocql.UUID) {
	if _, err := r.session.CAS(context.WithoutCancel(ctx), cql.Stmt(
		`DELETE FROM orders_by_payment WHERE payment_ref = ? IF order_id = ?`, ref, id), nil); err != nil {
		r.logger.Warn("release payment ref failed", "payment_ref", ref, "error", err)
	}
}

func (r *ScyllaRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	uid, err := gocql.ParseUUID(id)
	if err != nil {
		return nil, ErrNotFound
	}
	stmt := cql.Stmt(`SELECT `+scyllaOrderColumns+` FROM orders WHERE order_id = ?`, uid)
	o, err := scanScyllaOrder(func(dest ...interface{}) error {
		return r.session.Scan(ctx, stmt, dest...)
	})
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, ErrNotFound
	}
	return o, err
}

func (r *ScyllaRepository) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	return r.lookup(ctx, cql.Stmt(`SELECT order_id FROM orders_by_number WHERE order_number = ?`, number))
}

func (r *ScyllaRepository) GetByPaymentRef(ctx context.Context, ref string) (*models.Order, error) {
	return r.lookup(ctx, cql.Stmt(`SELECT order_id FROM orders_by_payment WHERE payment_ref = ?`, ref))
}

func (r *ScyllaRepository) lookup(ctx context.Context, stmt cql.Statement) (*models.Order, error) {
	var id gocql.UUID
	if err := r.session.Scan(ctx, stmt, &id); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("order lookup: %w", err)
	}
	return r.GetByID(ctx, id.String())
}

func (r *ScyllaRepository) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	scanner := r.session.Iter(ctx, cql.Stmt(`SELECT order_id FROM orders_by_user WHERE user_id = ?`, userID))
	var ids []gocql.UUID
	for scanner.Next() {
		var id gocql.UUID
		if err := scanner.Scan(&id); err != nil {
			_ = scanner.Err()
			return nil, fmt.Errorf("list user orders: %w", err)
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("list user orders: %w", err)
	}

	out := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		o, err := r.GetByID(ctx, id.String())
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}

// List scans the orders table. Support staff volumes only.
func (r *ScyllaRepository) List(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	scanner := r.session.Iter(ctx, cql.Stmt(`SELECT `+scyllaOrderColumns+` FROM orders`))
	var out []models.Order
	for scanner.Next() {
		o, err := scanScyllaOrder(scanner.Scan)
		if err != nil {
			_ = scanner.Err()
			return nil, err
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, *o)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	sortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateStatus guards the order row with IF status = t.From. Scylla cannot
// batch a conditional update with rows of other partitions, so the log row is
// appended right after the guarded update succeeds.
func (r *ScyllaRepository) UpdateStatus(ctx context.Context, id string, t models.StatusTransition, payment models.PaymentStatus, paymentRef string) error {
	uid, err := gocql.ParseUUID(id)
	if err != nil {
		return ErrNotFound
	}

	if paymentRef != "" {
		applied, err := r.claimPaymentRef(ctx, paymentRef, uid)
		if err != nil {
			return err
		}
		if !applied {
			var owner gocql.UUID
			err := r.session.Scan(ctx, cql.Stmt(`SELECT order_id FROM orders_by_payment WHERE payment_ref = ?`, paymentRef), &owner)
			if err != nil || owner != uid {
				return ErrDuplicatePaymentRef
			}
		}
	}

	var stmt cql.Statement
	if paymentRef != "" {
		stmt = cql.Stmt(`UPDATE orders SET status = ?, payment_status = ?, payment_ref = ?, updated_at = ? WHERE order_id = ? IF status = ?`,
			string(t.To), string(payment), paymentRef, t.At, uid, string(t.From))
	} else {
		stmt = cql.Stmt(`UPDATE orders SET status = ?, payment_status = ?, updated_at = ? WHERE order_id = ? IF status = ?`,
			string(t.To), string(payment), t.At, uid, string(t.From))
	}
	previous := map[string]interface{}{}
	applied, err := r.session.CAS(ctx, stmt, previous)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if !applied {
		if _, exists := previous["status"]; !exists {
			return ErrNotFound
		}
		return ErrStaleStatus
	}

	if err := r.session.Exec(ctx, cql.Stmt(insertStatusLog,
		uid, t.At, string(t.From), string(t.To), t.Actor, t.Note)); err != nil {
		r.logger.Error("status log append failed", "order_id", id, "to", t.To, "error", err)
		return fmt.Errorf("append status log: %w", err)
	}
	return nil
}

func (r *ScyllaRepository) Transitions(ctx context.Context, id string) ([]models.StatusTransition, error) {
	uid, err := gocql.ParseUUID(id)
	if err != nil {
		return nil, ErrNotFound
	}
	scanner := r.session.Iter(ctx, cql.Stmt(
		`SELECT at, from_status, to_status, actor, note FROM order_status_log WHERE order_id = ?`, uid))
	var out []models.StatusTransition
	for scanner.Next() {
		var (
			t        models.StatusTransition
			from, to string
		)
		if err := scanner.Scan(&t.At, &from, &to, &t.Actor, &t.Note); err != nil {
			_ = scanner.Err()
			return nil, fmt.Errorf("read status log: %w", err)
		}
		t.OrderID = id
		t.From = models.OrderStatus(from)
		t.To = models.OrderStatus(to)
		out = append(out, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read status log: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func scanScyllaOrder(scan func(dest ...interface{}) error) (*models.Order, error) {
	var (
		o                       models.Order
		id                      gocql.UUID
		items, address          string
		method, payment, status string
		m                       storedMoney
	)
	err := scan(&id, &o.OrderNumber, &o.UserID, &items, &m.Subtotal, &m.Shipping, &m.Discount, &m.Total,
		&o.CustomerName, &o.CustomerPhone, &o.CustomerEmail, &address, &o.Notes,
		&method, &payment, &o.PaymentRef, &status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.ID = id.String()
	o.PaymentMethod = models.PaymentMethod(method)
	o.PaymentStatus = models.PaymentStatus(payment)
	o.Status = models.OrderStatus(status)
	m.apply(&o)
	if err := decodeBlobs(&o, items, address); err != nil {
		return nil, err
	}
	return &o, nil
}

var _ Repository = (*ScyllaRepository)(nil)
