package payment_test

import (
	"context"
	"errors"
	"testing"

	"bazar_back_end/internal/payment"
	"bazar_back_end/internal/payment/paymenttest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfirmer(t *testing.T) {
	ctx := context.Background()
	gw := paymenttest.New()
	in, err := gw.CreateIntent(ctx, payment.IntentRequest{AmountMinor: 96000, Currency: "bdt"})
	require.NoError(t, err)

	conf, err := payment.ServerConfirmer{Gateway: gw, PaymentMethodID: "pm_card_visa"}.Confirm(ctx, in)
	require.NoError(t, err)
	assert.True(t, conf.Succeeded)
	assert.Equal(t, 1, gw.ConfirmCalls)
}

func TestServerConfirmerWithoutPaymentMethod(t *testing.T) {
	gw := paymenttest.New()
	_, err := payment.ServerConfirmer{Gateway: gw}.Confirm(context.Background(), payment.Intent{ID: "pi_x"})

	var decline *payment.DeclineError
	require.True(t, errors.As(err, &decline))
	assert.Zero(t, gw.ConfirmCalls)
}

func TestServerConfirmerDecline(t *testing.T) {
	ctx := context.Background()
	gw := paymenttest.New()
	gw.DeclineWith = &payment.DeclineError{Code: "card_declined", Message: "Your card was declined."}
	in, err := gw.CreateIntent(ctx, payment.IntentRequest{AmountMinor: 100, Currency: "bdt"})
	require.NoError(t, err)

	_, err = payment.ServerConfirmer{Gateway: gw, PaymentMethodID: "pm"}.Confirm(ctx, in)
	var decline *payment.DeclineError
	require.True(t, errors.As(err, &decline))
	assert.Equal(t, "Your card was declined.", decline.Error())
}

func TestClientConfirmedVerifier(t *testing.T) {
	ctx := context.Background()
	gw := paymenttest.New()
	in, err := gw.CreateIntent(ctx, payment.IntentRequest{AmountMinor: 96000, Currency: "bdt"})
	require.NoError(t, err)
	verifier := payment.ClientConfirmedVerifier{Gateway: gw}

	_, err = verifier.Confirm(ctx, in)
	var decline *payment.DeclineError
	assert.True(t, errors.As(err, &decline), "unconfirmed intent must not pass")

	gw.Succeed(in.ID)
	conf, err := verifier.Confirm(ctx, in)
	require.NoError(t, err)
	assert.True(t, conf.Succeeded)

	in.AmountMinor = 1
	_, err = verifier.Confirm(ctx, in)
	assert.ErrorIs(t, err, payment.ErrAmountMismatch)
}
