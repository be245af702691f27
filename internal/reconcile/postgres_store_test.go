package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazar_back_end/internal/models"
)

var columns = []string{"payment_ref", "amount_minor", "currency", "payload", "error", "created_at", "resolved_order_id", "resolved_at"}

func TestPostgresStoreSaveAndGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	s := NewPostgresStore(db)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO payment_reconciliations").
		WithArgs("pi_1", int64(96000), "bdt", `{"UserID":""}`, "db down", at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, s.Save(context.Background(), models.Reconciliation{
		PaymentRef: "pi_1", AmountMinor: 96000, Currency: "bdt", Payload: `{"UserID":""}`, Error: "db down", CreatedAt: at,
	}))

	mock.ExpectQuery("SELECT payment_ref, amount_minor").WithArgs("pi_1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("pi_1", int64(96000), "bdt", []byte(`{}`), "db down", at, "", nil))
	r, err := s.Get(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "{}", r.Payload)
	assert.Nil(t, r.ResolvedAt)

	mock.ExpectQuery("SELECT payment_ref, amount_minor").WithArgs("pi_missing").
		WillReturnRows(sqlmock.NewRows(columns))
	_, err = s.Get(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListAndResolve(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	s := NewPostgresStore(db)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("WHERE resolved_order_id = '' ORDER BY created_at DESC").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("pi_1", int64(96000), "bdt", []byte(`{}`), "", at, "", nil))
	list, err := s.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, list, 1)

	mock.ExpectExec("UPDATE payment_reconciliations SET resolved_order_id").
		WithArgs("order-1", at, "pi_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Resolve(context.Background(), "pi_1", "order-1", at))

	mock.ExpectExec("UPDATE payment_reconciliations SET resolved_order_id").
		WithArgs("order-1", at, "pi_none").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.Resolve(context.Background(), "pi_none", "order-1", at), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
