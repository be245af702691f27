package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"bazar_back_end/internal/models"
	"bazar_back_end/internal/pricing"
	"bazar_back_end/internal/telemetry"
	"bazar_back_end/internal/validation"
)

const maxNumberAttempts = 5

var ErrRefundFailed = errors.New("gateway refund failed")

type Customer struct {
	Name  string
	Phone string
	Email string
}

// NewOrder is everything the ledger needs to write an order. Totals come from
// Quote and are never recomputed after the write.
type NewOrder struct {
	UserID          string
	Quote           pricing.Quote
	Customer        Customer
	ShippingAddress models.ShippingAddress
	PaymentMethod   models.PaymentMethod
	PaymentStatus   models.PaymentStatus
	PaymentRef      string
	Notes           string
}

// Refunder returns money for a captured card payment.
type Refunder interface {
	Refund(ctx context.Context, intentID string, amountMinor int64) (string, error)
}

type EventKind string

const (
	EventCreated       EventKind = "created"
	EventStatusChanged EventKind = "status_changed"
)

type Event struct {
	Kind       EventKind
	Order      models.Order
	Transition models.StatusTransition
}

// Hook runs after a committed write. Hooks must not block.
type Hook func(ctx context.Context, ev Event)

// Ledger is the only writer of order rows.
type Ledger struct {
	repo     Repository
	refunder Refunder
	numbers  NumberFunc
	now      func() time.Time
	logger   *slog.Logger
	hooks    []Hook
}

type Option func(*Ledger)

func WithRefunder(r Refunder) Option        { return func(l *Ledger) { l.refunder = r } }
func WithNumbers(f NumberFunc) Option       { return func(l *Ledger) { l.numbers = f } }
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }
func WithLogger(logger *slog.Logger) Option { return func(l *Ledger) { l.logger = logger } }

func NewLedger(repo Repository, opts ...Option) *Ledger {
	l := &Ledger{
		repo:    repo,
		numbers: RandomNumber,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "orders.ledger")
	return l
}

func (l *Ledger) OnCommit(h Hook) {
	l.hooks = append(l.hooks, h)
}

func (l *Ledger) Repository() Repository {
	return l.repo
}

// Create validates and writes a new order in status pending.
func (l *Ledger) Create(ctx context.Context, in NewOrder) (*models.Order, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "orders.Create")
	defer span.End()

	if err := ValidateNewOrder(in); err != nil {
		span.SetStatus(codes.Error, "validation")
		return nil, err
	}

	now := l.now().UTC()
	o := &models.Order{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		Items:           append([]models.OrderLineItem(nil), in.Quote.Lines...),
		Subtotal:        in.Quote.Subtotal,
		ShippingCost:    in.Quote.ShippingCost,
		Discount:        in.Quote.Discount,
		Total:           in.Quote.Total,
		CustomerName:    strings.TrimSpace(in.Customer.Name),
		CustomerPhone:   in.Customer.Phone,
		CustomerEmail:   strings.TrimSpace(in.Customer.Email),
		ShippingAddress: in.ShippingAddress,
		Notes:           strings.TrimSpace(in.Notes),
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   in.PaymentStatus,
		PaymentRef:      in.PaymentRef,
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	first := models.StatusTransition{OrderID: o.ID, To: models.StatusPending, Actor: "checkout", At: now}

	var err error
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		if o.OrderNumber, err = l.numbers(now); err != nil {
			return nil, err
		}
		err = l.repo.Insert(ctx, o, first)
		if !errors.Is(err, ErrDuplicateNumber) {
			break
		}
		l.logger.WarnContext(ctx, "order number collision, retrying", "order_number", o.OrderNumber, "attempt", attempt)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.number", o.OrderNumber),
		attribute.String("order.payment_method", string(o.PaymentMethod)),
	)
	l.logger.InfoContext(ctx, "order created",
		"order_id", o.ID, "order_number", o.OrderNumber,
		"payment_method", o.PaymentMethod, "total", o.Total.String())
	l.emit(ctx, Event{Kind: EventCreated, Order: *o, Transition: first})
	return o, nil
}

// TransitionStatus moves an order along the status graph. Cancelling or
// refunding a paid card order refunds it at the gateway first; the status is
// left untouched when that fails.
func (l *Ledger) TransitionStatus(ctx context.Context, id string, to models.OrderStatus, actor, note string) (*models.Order, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "orders.TransitionStatus")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id), attribute.String("order.to", string(to)))

	o, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(o.Status, to); err != nil {
		return nil, err
	}

	payment := o.PaymentStatus
	switch {
	case (to == models.StatusCancelled || to == models.StatusRefunded) &&
		o.PaymentMethod == models.PaymentCard && o.PaymentStatus == models.PaymentPaid:
		if l.refunder == nil || o.PaymentRef == "" {
			return nil, fmt.Errorf("%w: no refund path for order %s", ErrRefundFailed, o.OrderNumber)
		}
		refundID, err := l.refunder.Refund(ctx, o.PaymentRef, pricing.ToMinorUnits(o.Total))
		if err != nil {
			span.RecordError(err)
			l.logger.ErrorContext(ctx, "refund failed", "order_id", id, "payment_ref", o.PaymentRef, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrRefundFailed, err)
		}
		l.logger.InfoContext(ctx, "payment refunded", "order_id", id, "refund_id", refundID)
		payment = models.PaymentRefunded
	case to == models.StatusDelivered && o.PaymentMethod == models.PaymentCOD && o.PaymentStatus == models.PaymentPending:
		payment = models.PaymentPaid
	}

	t := models.StatusTransition{
		OrderID: id,
		From:    o.Status,
		To:      to,
		Actor:   actor,
		Note:    strings.TrimSpace(note),
		At:      l.now().UTC(),
	}
	if err := l.repo.UpdateStatus(ctx, id, t, payment, ""); err != nil {
		return nil, err
	}
	o.Status, o.PaymentStatus, o.UpdatedAt = to, payment, t.At

	l.logger.InfoContext(ctx, "order status changed",
		"order_id", id, "order_number", o.OrderNumber, "from", t.From, "to", t.To, "actor", actor)
	l.emit(ctx, Event{Kind: EventStatusChanged, Order: *o, Transition: t})
	return o, nil
}

// MarkPaid records a gateway payment against a card order that was written
// before the payment was confirmed. Already paid orders are returned as is.
func (l *Ledger) MarkPaid(ctx context.Context, id, paymentRef string) (*models.Order, error) {
	o, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == models.PaymentPaid {
		return o, nil
	}
	if o.PaymentMethod != models.PaymentCard || IsTerminal(o.Status) {
		return nil, fmt.Errorf("%w: cannot mark %s order %s paid", ErrInvalidTransition, o.Status, o.OrderNumber)
	}

	t := models.StatusTransition{
		OrderID: id,
		From:    o.Status,
		To:      o.Status,
		Actor:   "payment-webhook",
		Note:    "payment confirmed " + paymentRef,
		At:      l.now().UTC(),
	}
	if err := l.repo.UpdateStatus(ctx, id, t, models.PaymentPaid, paymentRef); err != nil {
		return nil, err
	}
	o.PaymentStatus, o.PaymentRef, o.UpdatedAt = models.PaymentPaid, paymentRef, t.At
	l.logger.InfoContext(ctx, "order marked paid", "order_id", id, "payment_ref", paymentRef)
	return o, nil
}

func (l *Ledger) emit(ctx context.Context, ev Event) {
	for _, h := range l.hooks {
		h(ctx, ev)
	}
}

// ValidateNewOrder rejects an order before anything is written.
func ValidateNewOrder(in NewOrder) error {
	var errs validation.Errors

	if len(in.Quote.Lines) == 0 {
		errs.Add("items", "cart is empty")
	}
	for i, line := range in.Quote.Lines {
		if line.Quantity <= 0 || line.UnitPrice.IsNegative() || strings.TrimSpace(line.ProductID) == "" {
			errs.Add(fmt.Sprintf("items[%d]", i), "invalid line item")
		}
	}

	errs.Required("customerName", in.Customer.Name)
	errs.Phone("customerPhone", in.Customer.Phone)
	if in.Customer.Email != "" && !validation.ValidEmail(strings.TrimSpace(in.Customer.Email)) {
		errs.Add("customerEmail", "must be a valid email address")
	}

	addr := in.ShippingAddress
	errs.Required("shippingAddress.name", addr.RecipientName)
	errs.Phone("shippingAddress.phone", addr.Phone)
	errs.Required("shippingAddress.address", addr.AddressLine)
	errs.Required("shippingAddress.city", addr.City)
	errs.Required("shippingAddress.state", addr.Region)

	switch in.PaymentMethod {
	case models.PaymentCOD:
		if in.PaymentStatus != models.PaymentPending {
			errs.Add("paymentStatus", "cash on delivery orders start unpaid")
		}
	case models.PaymentCard:
		if in.PaymentStatus != models.PaymentPending && in.PaymentStatus != models.PaymentPaid {
			errs.Add("paymentStatus", "must be pending or paid")
		}
		if in.PaymentStatus == models.PaymentPaid && in.PaymentRef == "" {
			errs.Add("paymentIntentId", "is required for a paid card order")
		}
	default:
		errs.Add("paymentMethod", "must be cod or stripe")
	}

	q := in.Quote
	if q.Discount.IsNegative() {
		errs.Add("discount", "must not be negative")
	}
	if !q.Total.Equal(q.Subtotal.Add(q.ShippingCost).Sub(q.Discount)) {
		errs.Add("total", "does not equal subtotal + shipping - discount")
	}
	if q.Total.IsNegative() {
		errs.Add("total", "must not be negative")
	}
	return errs.Err()
}
