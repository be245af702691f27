package payment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"
)

func TestTranslateCardError(t *testing.T) {
	err := translate(&stripe.Error{
		Type:        stripe.ErrorTypeCard,
		Msg:         "Your card has insufficient funds.",
		DeclineCode: stripe.DeclineCode("insufficient_funds"),
	})

	var decline *DeclineError
	require.True(t, errors.As(err, &decline))
	assert.Equal(t, "insufficient_funds", decline.Code)
	assert.Equal(t, "Your card has insufficient funds.", decline.Message)
}

func TestTranslateOtherErrors(t *testing.T) {
	err := translate(&stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "boom"})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	err = translate(errors.New("dial tcp: timeout"))
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestConfirmationOf(t *testing.T) {
	c := confirmationOf(&stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded})
	assert.True(t, c.Succeeded)

	c = confirmationOf(&stripe.PaymentIntent{ID: "pi_2", Status: stripe.PaymentIntentStatusRequiresAction})
	assert.False(t, c.Succeeded)
	assert.True(t, c.RequiresAction)

	c = confirmationOf(&stripe.PaymentIntent{
		ID:               "pi_3",
		Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
		LastPaymentError: &stripe.Error{Msg: "declined"},
	})
	assert.False(t, c.Succeeded)
	assert.Equal(t, "declined", c.Message)
}

func TestParseWebhookWithoutSecret(t *testing.T) {
	g := &StripeGateway{}
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_9","object":"payment_intent","amount":96000,"currency":"bdt","status":"succeeded"}}}`)

	ev, err := g.ParseWebhook(payload, "")
	require.NoError(t, err)
	assert.Equal(t, EventPaymentSucceeded, ev.Type)
	assert.Equal(t, "pi_9", ev.Intent.ID)
	assert.Equal(t, int64(96000), ev.Intent.AmountMinor)
	assert.Equal(t, IntentSucceeded, ev.Intent.Status)
}
