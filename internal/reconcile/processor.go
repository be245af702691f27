package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bazar_back_end/internal/models"
	"bazar_back_end/internal/orders"
	"bazar_back_end/internal/payment"
)

// Processor applies gateway webhook events to the ledger.
type Processor struct {
	store  Store
	ledger *orders.Ledger
	repo   orders.Repository
	now    func() time.Time
	logger *slog.Logger
}

func NewProcessor(store Store, ledger *orders.Ledger, logger *slog.Logger) *Processor {
	return &Processor{
		store:  store,
		ledger: ledger,
		repo:   ledger.Repository(),
		now:    time.Now,
		logger: logger.With("component", "reconcile"),
	}
}

// Record stores an order that could not be written after its payment was
// captured.
func (p *Processor) Record(ctx context.Context, in orders.NewOrder, amountMinor int64, currency string, cause error) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode reconciliation payload: %w", err)
	}
	rec := models.Reconciliation{
		PaymentRef:  in.PaymentRef,
		AmountMinor: amountMinor,
		Currency:    currency,
		Payload:     string(payload),
		Error:       cause.Error(),
		CreatedAt:   p.now().UTC(),
	}
	p.logger.ErrorContext(ctx, "payment captured but order not recorded",
		"payment_ref", in.PaymentRef, "amount_minor", amountMinor, "payload", rec.Payload, "error", cause)
	return p.store.Save(ctx, rec)
}

func (p *Processor) Pending(ctx context.Context, includeResolved bool) ([]models.Reconciliation, error) {
	return p.store.List(ctx, includeResolved)
}

// HandleEvent is idempotent: replays of the same event converge on one order.
func (p *Processor) HandleEvent(ctx context.Context, ev payment.Event) error {
	switch ev.Type {
	case payment.EventPaymentSucceeded:
		return p.succeeded(ctx, ev.Intent)
	case payment.EventPaymentFailed:
		p.logger.WarnContext(ctx, "payment failed at gateway", "payment_ref", ev.Intent.ID, "event_id", ev.ID)
		return nil
	default:
		p.logger.DebugContext(ctx, "webhook event ignored", "type", ev.Type, "event_id", ev.ID)
		return nil
	}
}

func (p *Processor) succeeded(ctx context.Context, intent payment.Intent) error {
	existing, err := p.repo.GetByPaymentRef(ctx, intent.ID)
	switch {
	case err == nil:
		if _, err := p.ledger.MarkPaid(ctx, existing.ID, intent.ID); err != nil {
			return err
		}
		p.resolve(ctx, intent.ID, existing.ID)
		return nil
	case !errors.Is(err, orders.ErrNotFound):
		return err
	}

	rec, err := p.store.Get(ctx, intent.ID)
	if errors.Is(err, ErrNotFound) {
		// The storefront records the order itself once it has confirmed.
		p.logger.InfoContext(ctx, "payment succeeded, no order yet", "payment_ref", intent.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if rec.ResolvedOrderID != "" {
		return nil
	}

	var in orders.NewOrder
	if err := json.Unmarshal([]byte(rec.Payload), &in); err != nil {
		return fmt.Errorf("decode reconciliation payload %s: %w", intent.ID, err)
	}
	if intent.AmountMinor != 0 && intent.AmountMinor != rec.AmountMinor {
		return fmt.Errorf("%w: intent %s", payment.ErrAmountMismatch, intent.ID)
	}
	in.PaymentMethod = models.PaymentCard
	in.PaymentStatus = models.PaymentPaid
	in.PaymentRef = intent.ID

	o, err := p.ledger.Create(ctx, in)
	if errors.Is(err, orders.ErrDuplicatePaymentRef) {
		o, err = p.repo.GetByPaymentRef(ctx, intent.ID)
	}
	if err != nil {
		return fmt.Errorf("replay order for %s: %w", intent.ID, err)
	}
	p.logger.InfoContext(ctx, "order recovered from reconciliation", "payment_ref", intent.ID, "order_number", o.OrderNumber)
	p.resolve(ctx, intent.ID, o.ID)
	return nil
}

func (p *Processor) resolve(ctx context.Context, ref, orderID string) {
	err := p.store.Resolve(ctx, ref, orderID, p.now().UTC())
	if err != nil && !errors.Is(err, ErrNotFound) {
		p.logger.WarnContext(ctx, "mark reconciliation resolved failed", "payment_ref", ref, "error", err)
	}
}
