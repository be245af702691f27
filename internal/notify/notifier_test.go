package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazar_back_end/internal/models"
	"bazar_back_end/internal/orders"
	"bazar_back_end/internal/tasks"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (c *captureMailer) Send(_ context.Context, m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, m)
	return nil
}

// inline runs tasks on the caller's goroutine.
type inline struct{ errs []error }

func (i *inline) Dispatch(t tasks.Task) bool {
	i.errs = append(i.errs, t.Run(context.Background()))
	return true
}

func sampleOrder() models.Order {
	return models.Order{
		ID:            "o-1",
		OrderNumber:   "BZ-260301-ABC234",
		CustomerName:  "Nusrat <b>Jahan</b>",
		CustomerEmail: "nusrat@example.com",
		Items: []models.OrderLineItem{
			{ProductID: "p-1", Name: "Nakshi kantha", UnitPrice: decimal.NewFromInt(750), Quantity: 2},
		},
		Subtotal:        decimal.NewFromInt(1500),
		ShippingCost:    decimal.Zero,
		Total:           decimal.NewFromInt(1500),
		ShippingAddress: models.ShippingAddress{RecipientName: "Nusrat", City: "Sylhet"},
		PaymentMethod:   models.PaymentCOD,
		PaymentStatus:   models.PaymentPending,
		Status:          models.StatusPending,
		CreatedAt:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func newNotifier(m Mailer, d tasks.Dispatcher) *Notifier {
	return NewNotifier(m, d, "https://bazar.example", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestConfirmationEmail(t *testing.T) {
	n := newNotifier(&captureMailer{}, &inline{})
	msg, err := n.Confirmation(sampleOrder())
	require.NoError(t, err)

	assert.Equal(t, "nusrat@example.com", msg.To)
	assert.Contains(t, msg.Subject, "BZ-260301-ABC234")
	assert.Contains(t, msg.HTML, "৳750.00")
	assert.Contains(t, msg.HTML, "৳1500.00")
	assert.Contains(t, msg.HTML, "Free")
	assert.Contains(t, msg.HTML, "cash on delivery")
	assert.Contains(t, msg.HTML, "https://bazar.example/track?orderNumber=BZ-260301-ABC234")
	assert.NotContains(t, msg.HTML, "<b>Jahan</b>", "names are escaped")

	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "track-BZ-260301-ABC234.png", msg.Attachments[0].Name)
	assert.Equal(t, []byte("\x89PNG"), msg.Attachments[0].Data[:4])
}

func TestStatusChangeEmail(t *testing.T) {
	n := newNotifier(&captureMailer{}, &inline{})
	o := sampleOrder()
	o.Status = models.StatusShipped
	msg, err := n.StatusChange(o, models.StatusTransition{From: models.StatusPending, To: models.StatusShipped, Note: "Courier: Pathao"})
	require.NoError(t, err)

	assert.Equal(t, "Order BZ-260301-ABC234 is on its way - Bazar", msg.Subject)
	assert.Contains(t, msg.HTML, "Courier: Pathao")
	assert.Contains(t, msg.HTML, "#2563eb")
	assert.Empty(t, msg.Attachments)
}

func TestOnLedgerEventDispatchesEmail(t *testing.T) {
	mailer := &captureMailer{}
	d := &inline{}
	n := newNotifier(mailer, d)

	n.OnLedgerEvent(context.Background(), orders.Event{Kind: orders.EventCreated, Order: sampleOrder()})
	n.OnLedgerEvent(context.Background(), orders.Event{
		Kind:       orders.EventStatusChanged,
		Order:      sampleOrder(),
		Transition: models.StatusTransition{From: models.StatusPending, To: models.StatusCancelled},
	})

	require.Len(t, mailer.sent, 2)
	assert.Contains(t, mailer.sent[0].Subject, "confirmed")
	assert.Contains(t, mailer.sent[1].Subject, "cancelled")
	assert.Equal(t, []error{nil, nil}, d.errs)
}

func TestOnLedgerEventSkipsOrdersWithoutEmail(t *testing.T) {
	d := &inline{}
	n := newNotifier(&captureMailer{}, d)
	o := sampleOrder()
	o.CustomerEmail = ""
	n.OnLedgerEvent(context.Background(), orders.Event{Kind: orders.EventCreated, Order: o})
	assert.Empty(t, d.errs)
}

func TestSendFailureIsReportedToQueue(t *testing.T) {
	d := &inline{}
	n := newNotifier(&captureMailer{err: errors.New("relay down")}, d)
	n.OnLedgerEvent(context.Background(), orders.Event{Kind: orders.EventCreated, Order: sampleOrder()})
	require.Len(t, d.errs, 1)
	assert.ErrorContains(t, d.errs[0], "relay down")
}
