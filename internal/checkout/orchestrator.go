// Package checkout drives a cart to a recorded order: pricing, the single
// payment confirmation, and the ledger write, with a per-session state
// machine that keeps one attempt in flight at a time.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"bazar_back_end/internal/models"
	"bazar_back_end/internal/orders"
	"bazar_back_end/internal/payment"
	"bazar_back_end/internal/pricing"
	"bazar_back_end/internal/tasks"
	"bazar_back_end/internal/telemetry"
	"bazar_back_end/internal/validation"
)

// Recorder keeps a captured payment whose order write failed.
type Recorder interface {
	Record(ctx context.Context, in orders.NewOrder, amountMinor int64, currency string, cause error) error
}

// ProfileSyncer builds the post-commit profile update for a signed-in buyer.
type ProfileSyncer interface {
	Task(userID, phone string, addr models.ShippingAddress) tasks.Task
}

type Deps struct {
	Pricing  pricing.Config
	Currency string
	Gateway  payment.Gateway
	Ledger   *orders.Ledger
	Sessions SessionStore
	Recorder Recorder
	Tasks    tasks.Dispatcher
	Profiles ProfileSyncer
	Logger   *slog.Logger
	// WriteTimeout bounds the work that must finish after a payment was
	// confirmed, whether or not the caller is still connected.
	WriteTimeout time.Duration
}

type Orchestrator struct {
	Deps
	now func() time.Time
}

func NewOrchestrator(d Deps) *Orchestrator {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Logger = d.Logger.With("component", "checkout")
	d.Currency = strings.ToLower(d.Currency)
	if d.WriteTimeout <= 0 {
		d.WriteTimeout = 15 * time.Second
	}
	return &Orchestrator{Deps: d, now: time.Now}
}

// Totals are the amounts the storefront displayed. They are checked, never used.
type Totals struct {
	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Total        decimal.Decimal
}

type Request struct {
	SessionKey      string
	UserID          string
	Items           []models.CartItem
	Claimed         *Totals
	Customer        orders.Customer
	ShippingAddress models.ShippingAddress
	Notes           string
	PaymentMethod   models.PaymentMethod
	PaymentIntentID string
	// Confirmer performs the card confirmation. Nil means the storefront has
	// already confirmed the intent and it is only verified here.
	Confirmer payment.Confirmer
}

func (r Request) sessionKey() string {
	switch {
	case r.SessionKey != "":
		return r.SessionKey
	case r.UserID != "":
		return "user:" + r.UserID
	default:
		return "guest:" + r.Customer.Phone
	}
}

// CreateIntent opens a payment intent for amount. Retrying within the same
// purchase returns the same intent; the next purchase gets a new one.
func (o *Orchestrator) CreateIntent(ctx context.Context, sessionKey string, amount decimal.Decimal, currency string) (payment.Intent, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "checkout.CreateIntent")
	defer span.End()

	if c := strings.ToLower(strings.TrimSpace(currency)); c != "" && c != o.Currency {
		return payment.Intent{}, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}
	if !amount.IsPositive() {
		return payment.Intent{}, validation.Errors{{Field: "amount", Message: "must be greater than zero"}}
	}
	minor := pricing.ToMinorUnits(amount)

	cur, err := o.begin(ctx, sessionKey, StateIntentRequested)
	if err != nil {
		return payment.Intent{}, err
	}
	intent, err := o.Gateway.CreateIntent(ctx, o.intentRequest(sessionKey, cur, minor))
	if err != nil {
		span.RecordError(err)
		o.move(ctx, sessionKey, StateIntentRequested, cur.with(StateIdle))
		o.Logger.WarnContext(ctx, "create intent failed", "session", sessionKey, "error", err)
		return payment.Intent{}, err
	}
	if err := o.unused(ctx, intent); err != nil {
		o.move(ctx, sessionKey, StateIntentRequested, Session{State: StateIdle})
		return payment.Intent{}, err
	}
	cur.IntentID = intent.ID
	o.move(ctx, sessionKey, StateIntentRequested, cur.with(StateIntentReady))
	o.Logger.InfoContext(ctx, "payment intent created", "session", sessionKey, "intent_id", intent.ID, "amount_minor", minor)
	return intent, nil
}

// Checkout prices the cart, settles payment and writes the order. For card
// payments the ledger is only called after the confirmer reports success.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (*models.Order, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "checkout.Checkout")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.payment_method", string(req.PaymentMethod)))

	in, err := o.prepare(req)
	if err != nil {
		span.SetStatus(codes.Error, "validation")
		return nil, err
	}

	var order *models.Order
	if req.PaymentMethod == models.PaymentCOD {
		order, err = o.cashOnDelivery(ctx, req, in)
	} else {
		order, err = o.card(ctx, req, in)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout")
		return nil, err
	}
	span.SetAttributes(attribute.String("order.number", order.OrderNumber))
	return order, nil
}

func (o *Orchestrator) prepare(req Request) (orders.NewOrder, error) {
	var errs validation.Errors
	if len(req.Items) == 0 {
		errs.Add("items", "cart is empty")
		return orders.NewOrder{}, errs
	}
	quote, err := o.Pricing.Snapshot(req.Items)
	if err != nil {
		errs.Add("items", err.Error())
		return orders.NewOrder{}, errs
	}
	if c := req.Claimed; c != nil {
		if err := quote.Matches(c.Subtotal, c.ShippingCost, c.Total); err != nil {
			errs.Add("total", err.Error())
		}
	}

	in := orders.NewOrder{
		UserID:          req.UserID,
		Quote:           quote,
		Customer:        req.Customer,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   models.PaymentPending,
		Notes:           req.Notes,
	}
	if err := orders.ValidateNewOrder(in); err != nil {
		var fieldErrs validation.Errors
		if !errors.As(err, &fieldErrs) {
			return orders.NewOrder{}, err
		}
		errs = append(errs, fieldErrs...)
	}
	return in, errs.Err()
}

func (o *Orchestrator) cashOnDelivery(ctx context.Context, req Request, in orders.NewOrder) (*models.Order, error) {
	key := req.sessionKey()
	cur, err := o.begin(ctx, key, StateOrderSubmitting)
	if err != nil {
		return nil, err
	}
	wctx, cancel := o.detached(ctx)
	defer cancel()

	order, err := o.Ledger.Create(wctx, in)
	if err != nil {
		o.move(ctx, key, StateOrderSubmitting, cur.with(StateOrderFailed))
		return nil, err
	}
	cur.OrderID = order.ID
	o.move(ctx, key, StateOrderSubmitting, cur.with(StateOrderCreated))
	o.afterCommit(ctx, req, order)
	return order, nil
}

func (o *Orchestrator) card(ctx context.Context, req Request, in orders.NewOrder) (*models.Order, error) {
	key := req.sessionKey()
	repo := o.Ledger.Repository()

	if req.PaymentIntentID != "" {
		existing, err := repo.GetByPaymentRef(ctx, req.PaymentIntentID)
		if err == nil {
			if !o.ownedBy(ctx, existing, req, key) {
				o.Logger.WarnContext(ctx, "payment recorded for another buyer",
					"intent_id", req.PaymentIntentID, "session", key)
				return nil, ErrIntentConsumed
			}
			o.Logger.InfoContext(ctx, "payment already recorded, returning order",
				"intent_id", req.PaymentIntentID, "order_number", existing.OrderNumber)
			return existing, nil
		}
		if !errors.Is(err, orders.ErrNotFound) {
			return nil, err
		}
	}

	cur, err := o.begin(ctx, key, StateConfirming)
	if err != nil {
		return nil, err
	}
	expected := pricing.ToMinorUnits(in.Quote.Total)

	intent, err := o.intentFor(ctx, key, cur, req.PaymentIntentID, expected)
	if errors.Is(err, ErrIntentConsumed) {
		o.move(ctx, key, StateConfirming, Session{State: StateFailed})
		return nil, err
	}
	if err != nil {
		o.move(ctx, key, StateConfirming, cur.with(StateFailed))
		return nil, err
	}
	cur.IntentID = intent.ID

	// The charge may go through once confirmation starts, so nothing from
	// here on is bound to the caller's connection.
	wctx, cancel := o.detached(ctx)
	defer cancel()

	conf := payment.Confirmation{IntentID: intent.ID, Succeeded: true}
	if intent.Status != payment.IntentSucceeded {
		confirmer := req.Confirmer
		if confirmer == nil {
			confirmer = payment.ClientConfirmedVerifier{Gateway: o.Gateway}
		}
		conf, err = confirmer.Confirm(wctx, payment.Intent{ID: intent.ID, AmountMinor: expected, Currency: intent.Currency})
		if err != nil {
			o.move(ctx, key, StateConfirming, cur.with(StateFailed))
			o.Logger.WarnContext(ctx, "payment not confirmed", "intent_id", intent.ID, "error", err)
			return nil, err
		}
	}
	if conf.RequiresAction {
		o.move(ctx, key, StateConfirming, cur.with(StateIntentReady))
		return nil, &ActionRequiredError{IntentID: intent.ID, ClientSecret: intent.ClientSecret}
	}
	if !conf.Succeeded {
		o.move(ctx, key, StateConfirming, cur.with(StateFailed))
		return nil, payment.ErrNotConfirmed
	}

	o.move(ctx, key, StateConfirming, cur.with(StateConfirmed))
	if err := o.Sessions.Transition(wctx, key, []State{StateConfirmed}, cur.with(StateOrderSubmitting)); err != nil {
		// Someone else took the session between confirmation and the write;
		// the payment ref keeps the order unique either way.
		o.Logger.WarnContext(ctx, "session moved during checkout", "session", key, "error", err)
	}

	in.PaymentStatus = models.PaymentPaid
	in.PaymentRef = intent.ID
	order, err := o.Ledger.Create(wctx, in)
	if errors.Is(err, orders.ErrDuplicatePaymentRef) {
		order, err = repo.GetByPaymentRef(wctx, intent.ID)
	}
	if err != nil {
		if recErr := o.Recorder.Record(wctx, in, expected, o.Currency, err); recErr != nil {
			o.Logger.ErrorContext(ctx, "reconciliation record not saved",
				"intent_id", intent.ID, "error", recErr)
		}
		o.move(ctx, key, StateOrderSubmitting, cur.with(StateOrderFailed))
		return nil, &PaidButNotRecordedError{PaymentRef: intent.ID, Err: err}
	}

	cur.OrderID = order.ID
	o.move(ctx, key, StateOrderSubmitting, cur.with(StateOrderCreated))
	o.afterCommit(ctx, req, order)
	return order, nil
}

func (o *Orchestrator) intentRequest(key string, cur Session, amountMinor int64) payment.IntentRequest {
	return payment.IntentRequest{
		AmountMinor:    amountMinor,
		Currency:       o.Currency,
		Metadata:       map[string]string{"checkout_session": key},
		IdempotencyKey: fmt.Sprintf("intent:%s:%s:%d", key, cur.Attempt, amountMinor),
	}
}

func (o *Orchestrator) intentFor(ctx context.Context, key string, cur Session, intentID string, expected int64) (payment.Intent, error) {
	if intentID == "" {
		intent, err := o.Gateway.CreateIntent(ctx, o.intentRequest(key, cur, expected))
		if err != nil {
			return payment.Intent{}, err
		}
		return intent, o.unused(ctx, intent)
	}
	intent, err := o.Gateway.GetIntent(ctx, intentID)
	if err != nil {
		return payment.Intent{}, err
	}
	if intent.AmountMinor != expected {
		return payment.Intent{}, fmt.Errorf("%w: intent %d, order %d", payment.ErrAmountMismatch, intent.AmountMinor, expected)
	}
	return intent, nil
}

// unused rejects a succeeded intent that already paid for an order.
func (o *Orchestrator) unused(ctx context.Context, intent payment.Intent) error {
	if intent.Status != payment.IntentSucceeded {
		return nil
	}
	_, err := o.Ledger.Repository().GetByPaymentRef(ctx, intent.ID)
	switch {
	case err == nil:
		o.Logger.WarnContext(ctx, "gateway returned a consumed intent", "intent_id", intent.ID)
		return ErrIntentConsumed
	case errors.Is(err, orders.ErrNotFound):
		return nil
	default:
		return err
	}
}

// ownedBy reports whether a recorded order belongs to the caller: the same
// signed-in user, or for guest orders the session that opened the intent.
func (o *Orchestrator) ownedBy(ctx context.Context, existing *models.Order, req Request, key string) bool {
	if existing.UserID != "" {
		return existing.UserID == req.UserID
	}
	intent, err := o.Gateway.GetIntent(ctx, existing.PaymentRef)
	if err != nil {
		return false
	}
	return intent.Metadata["checkout_session"] == key
}

// begin claims the session for a busy state. The attempt carries over from a
// retry of the same purchase and is renewed after an order was created.
func (o *Orchestrator) begin(ctx context.Context, key string, busy State) (Session, error) {
	for range 3 {
		prev, err := o.Sessions.Get(ctx, key)
		if err != nil {
			return Session{}, err
		}
		if !slices.Contains(restartable, prev.State) {
			o.Logger.InfoContext(ctx, "checkout rejected, session busy", "session", key, "state", prev.State)
			return Session{}, ErrInFlight
		}

		next := Session{State: busy, Attempt: prev.Attempt, IntentID: prev.IntentID}
		if prev.Attempt == "" || prev.State == StateOrderCreated {
			next = Session{State: busy, Attempt: uuid.NewString()}
		}
		next.UpdatedAt = o.now().UTC()

		err = o.Sessions.Transition(ctx, key, []State{prev.State}, next)
		var conflict *ErrStateConflict
		if !errors.As(err, &conflict) {
			return next, err
		}
		if conflict.Current.Busy() {
			o.Logger.InfoContext(ctx, "checkout rejected, session busy", "session", key, "state", conflict.Current)
			return Session{}, ErrInFlight
		}
	}
	return Session{}, ErrInFlight
}

// move ends a busy state. It runs even when the caller has gone away; a
// failure only leaves the session to expire.
func (o *Orchestrator) move(ctx context.Context, key string, from State, next Session) {
	ctx, cancel := o.detached(ctx)
	defer cancel()
	next.UpdatedAt = o.now().UTC()
	if err := o.Sessions.Transition(ctx, key, []State{from}, next); err != nil {
		o.Logger.WarnContext(ctx, "checkout session transition failed",
			"session", key, "from", from, "to", next.State, "error", err)
	}
}

func (o *Orchestrator) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.WriteTimeout)
}

func (o *Orchestrator) afterCommit(ctx context.Context, req Request, order *models.Order) {
	if req.UserID == "" || o.Profiles == nil || o.Tasks == nil {
		return
	}
	o.Tasks.Dispatch(o.Profiles.Task(req.UserID, order.CustomerPhone, order.ShippingAddress))
}
