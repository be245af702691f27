package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/refund"
	"github.com/stripe/stripe-go/v83/webhook"
)

// StripeGateway is the Gateway backed by Stripe payment intents.
type StripeGateway struct {
	webhookSecret string
	returnURL     string
}

// NewStripeGateway sets the process-wide Stripe key.
func NewStripeGateway(secretKey, webhookSecret, returnURL string) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key is missing")
	}
	stripe.Key = secretKey
	return &StripeGateway{webhookSecret: webhookSecret, returnURL: returnURL}, nil
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: req.Metadata,
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return Intent{}, translate(err)
	}
	return fromStripe(pi), nil
}

func (g *StripeGateway) ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (Confirmation, error) {
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
	}
	if g.returnURL != "" {
		params.ReturnURL = stripe.String(g.returnURL)
	}
	params.Context = ctx

	pi, err := paymentintent.Confirm(intentID, params)
	if err != nil {
		return Confirmation{}, translate(err)
	}
	return confirmationOf(pi), nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, intentID string) (Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(intentID, params)
	if err != nil {
		return Intent{}, translate(err)
	}
	return fromStripe(pi), nil
}

func (g *StripeGateway) Refund(ctx context.Context, intentID string, amountMinor int64) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(amountMinor),
		Reason:        stripe.String("requested_by_customer"),
	}
	params.Context = ctx
	r, err := refund.New(params)
	if err != nil {
		return "", translate(err)
	}
	return r.ID, nil
}

// ParseWebhook verifies the signature when a secret is configured. Without
// one (local development) the payload is trusted as-is.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (Event, error) {
	var event stripe.Event
	if g.webhookSecret == "" {
		if err := json.Unmarshal(payload, &event); err != nil {
			return Event{}, fmt.Errorf("decode webhook: %w", err)
		}
	} else {
		var err error
		event, err = webhook.ConstructEvent(payload, signature, g.webhookSecret)
		if err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	}

	out := Event{ID: event.ID, Type: EventType(event.Type)}
	if (out.Type == EventPaymentSucceeded || out.Type == EventPaymentFailed) && event.Data != nil {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return Event{}, fmt.Errorf("decode payment intent: %w", err)
		}
		out.Intent = fromStripe(&pi)
	}
	return out, nil
}

func fromStripe(pi *stripe.PaymentIntent) Intent {
	return Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
		Status:       IntentStatus(pi.Status),
		Metadata:     pi.Metadata,
	}
}

func confirmationOf(pi *stripe.PaymentIntent) Confirmation {
	c := Confirmation{IntentID: pi.ID}
	switch IntentStatus(pi.Status) {
	case IntentSucceeded:
		c.Succeeded = true
	case IntentRequiresAction:
		c.RequiresAction = true
		c.Message = "additional authentication required"
	default:
		if pi.LastPaymentError != nil {
			c.Message = pi.LastPaymentError.Msg
		} else {
			c.Message = "payment was not completed"
		}
	}
	return c
}

func translate(err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) && serr.Type == stripe.ErrorTypeCard {
		code := string(serr.Code)
		if serr.DeclineCode != "" {
			code = string(serr.DeclineCode)
		}
		return &DeclineError{Code: code, Message: serr.Msg}
	}
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
}
