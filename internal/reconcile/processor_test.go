package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazar_back_end/internal/models"
	"bazar_back_end/internal/orders"
	"bazar_back_end/internal/payment"
	"bazar_back_end/internal/pricing"
)

type harness struct {
	store  *MemoryStore
	repo   *orders.MemoryRepository
	ledger *orders.Ledger
	proc   *Processor
}

func newHarness() *harness {
	h := &harness{store: NewMemoryStore(), repo: orders.NewMemoryRepository()}
	h.ledger = orders.NewLedger(h.repo)
	h.proc = NewProcessor(h.store, h.ledger, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.proc.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	return h
}

func cardOrder(t *testing.T, status models.PaymentStatus, ref string) orders.NewOrder {
	t.Helper()
	q, err := pricing.Config{
		FreeShippingThreshold: decimal.NewFromInt(1500),
		DefaultShippingCost:   decimal.NewFromInt(60),
	}.Snapshot([]models.CartItem{{ProductID: "p-1", Name: "Shital pati", Price: decimal.NewFromInt(1200), Quantity: 2}})
	require.NoError(t, err)
	return orders.NewOrder{
		Quote:    q,
		Customer: orders.Customer{Name: "Nasrin", Phone: "01912345678"},
		ShippingAddress: models.ShippingAddress{
			RecipientName: "Nasrin", Phone: "01912345678", AddressLine: "Lane 3", City: "Khulna", Region: "Khulna",
		},
		PaymentMethod: models.PaymentCard,
		PaymentStatus: status,
		PaymentRef:    ref,
	}
}

func succeeded(ref string, amount int64) payment.Event {
	return payment.Event{
		ID:     "evt_" + ref,
		Type:   payment.EventPaymentSucceeded,
		Intent: payment.Intent{ID: ref, AmountMinor: amount, Currency: "bdt", Status: payment.IntentSucceeded},
	}
}

func TestRecordAndReplay(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	require.NoError(t, h.proc.Record(ctx, cardOrder(t, models.PaymentPaid, "pi_1"), 240000, "bdt", errors.New("db down")))

	pending, err := h.proc.Pending(ctx, false)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "db down", pending[0].Error)
	assert.Equal(t, int64(240000), pending[0].AmountMinor)

	require.NoError(t, h.proc.HandleEvent(ctx, succeeded("pi_1", 240000)))

	o, err := h.repo.GetByPaymentRef(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "2400", o.Total.String())

	pending, err = h.proc.Pending(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, pending)

	all, err := h.proc.Pending(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, o.ID, all[0].ResolvedOrderID)
	require.NotNil(t, all[0].ResolvedAt)

	// A redelivered event converges on the same order.
	require.NoError(t, h.proc.HandleEvent(ctx, succeeded("pi_1", 240000)))
	list, err := h.repo.List(ctx, models.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReplayRejectsAmountMismatch(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	require.NoError(t, h.proc.Record(ctx, cardOrder(t, models.PaymentPaid, "pi_2"), 240000, "bdt", errors.New("timeout")))

	err := h.proc.HandleEvent(ctx, succeeded("pi_2", 100))
	assert.ErrorIs(t, err, payment.ErrAmountMismatch)

	_, err = h.repo.GetByPaymentRef(ctx, "pi_2")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestSucceededMarksExistingOrderPaid(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	o, err := h.ledger.Create(ctx, cardOrder(t, models.PaymentPending, "pi_3"))
	require.NoError(t, err)

	require.NoError(t, h.proc.HandleEvent(ctx, succeeded("pi_3", 240000)))

	got, err := h.repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestEventsWithoutRecordAreAcknowledged(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	assert.NoError(t, h.proc.HandleEvent(ctx, succeeded("pi_unknown", 500)))
	assert.NoError(t, h.proc.HandleEvent(ctx, payment.Event{ID: "evt_f", Type: payment.EventPaymentFailed, Intent: payment.Intent{ID: "pi_x"}}))
	assert.NoError(t, h.proc.HandleEvent(ctx, payment.Event{ID: "evt_o", Type: "charge.refunded"}))

	list, err := h.repo.List(ctx, models.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}
