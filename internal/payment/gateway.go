// Package payment talks to the card gateway using the hosted payment intent
// flow: create an intent, confirm it once, read it back.
package payment

import (
	"context"
	"errors"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrNotConfirmed       = errors.New("payment has not been confirmed")
	ErrAmountMismatch     = errors.New("payment amount does not match the order total")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
)

type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentProcessing            IntentStatus = "processing"
	IntentSucceeded             IntentStatus = "succeeded"
	IntentCanceled              IntentStatus = "canceled"
)

type IntentRequest struct {
	AmountMinor    int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

type Intent struct {
	ID           string
	ClientSecret string
	AmountMinor  int64
	Currency     string
	Status       IntentStatus
	Metadata     map[string]string
}

type Confirmation struct {
	IntentID       string
	Succeeded      bool
	RequiresAction bool
	Message        string
}

// DeclineError is a card failure the customer can act on. Message is the
// gateway text shown to the customer.
type DeclineError struct {
	Code    string
	Message string
}

func (e *DeclineError) Error() string {
	if e.Message == "" {
		return "card declined"
	}
	return e.Message
}

type EventType string

const (
	EventPaymentSucceeded EventType = "payment_intent.succeeded"
	EventPaymentFailed    EventType = "payment_intent.payment_failed"
)

type Event struct {
	ID     string
	Type   EventType
	Intent Intent
}

type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (Confirmation, error)
	GetIntent(ctx context.Context, intentID string) (Intent, error)
	Refund(ctx context.Context, intentID string, amountMinor int64) (string, error)
	ParseWebhook(payload []byte, signature string) (Event, error)
}

// Confirmer is the handle that performs the single confirmation of an intent.
type Confirmer interface {
	Confirm(ctx context.Context, intent Intent) (Confirmation, error)
}

// ServerConfirmer confirms the intent server-side with a payment method
// collected by the storefront.
type ServerConfirmer struct {
	Gateway         Gateway
	PaymentMethodID string
}

func (s ServerConfirmer) Confirm(ctx context.Context, intent Intent) (Confirmation, error) {
	if s.PaymentMethodID == "" {
		return Confirmation{}, &DeclineError{Code: "missing_payment_method", Message: "no payment method provided"}
	}
	return s.Gateway.ConfirmIntent(ctx, intent.ID, s.PaymentMethodID)
}

// ClientConfirmedVerifier accepts an intent the storefront already confirmed
// with the client secret, after reading it back from the gateway.
type ClientConfirmedVerifier struct {
	Gateway Gateway
}

func (v ClientConfirmedVerifier) Confirm(ctx context.Context, intent Intent) (Confirmation, error) {
	got, err := v.Gateway.GetIntent(ctx, intent.ID)
	if err != nil {
		return Confirmation{}, err
	}
	if intent.AmountMinor != 0 && got.AmountMinor != intent.AmountMinor {
		return Confirmation{}, ErrAmountMismatch
	}
	switch got.Status {
	case IntentSucceeded:
		return Confirmation{IntentID: got.ID, Succeeded: true}, nil
	case IntentRequiresAction:
		return Confirmation{IntentID: got.ID, RequiresAction: true, Message: "additional authentication required"}, nil
	case IntentRequiresPaymentMethod:
		return Confirmation{}, &DeclineError{Code: "requires_payment_method", Message: "payment was not completed, please try another card"}
	}
	return Confirmation{}, ErrNotConfirmed
}
