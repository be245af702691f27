package checkout

import (
	"errors"
	"fmt"
)

var (
	// ErrInFlight rejects a second submission while one is confirming or writing.
	ErrInFlight = errors.New("a checkout for this session is already in progress")
	// ErrPaidButNotRecorded means the card was charged and the order write
	// failed. A reconciliation record exists for the payment.
	ErrPaidButNotRecorded  = errors.New("payment succeeded but order failed, contact support")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	// ErrIntentConsumed rejects a payment intent that already paid for an order.
	ErrIntentConsumed = errors.New("payment already used for another order")
)

// ActionRequiredError asks the storefront to finish authentication with the
// client secret and submit again.
type ActionRequiredError struct {
	IntentID     string
	ClientSecret string
}

func (e *ActionRequiredError) Error() string {
	return fmt.Sprintf("payment %s requires additional authentication", e.IntentID)
}

// PaidButNotRecordedError names the payment that needs reconciling.
type PaidButNotRecordedError struct {
	PaymentRef string
	Err        error
}

func (e *PaidButNotRecordedError) Error() string {
	return fmt.Sprintf("%s (payment %s)", ErrPaidButNotRecorded, e.PaymentRef)
}

func (e *PaidButNotRecordedError) Unwrap() []error {
	return []error{ErrPaidButNotRecorded, e.Err}
}
