package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bazar_back_end/internal/checkout"
	"bazar_back_end/internal/middleware"
	"bazar_back_end/internal/orders"
	"bazar_back_end/internal/payment"
	"bazar_back_end/internal/pricing"
	"bazar_back_end/internal/profile"
	"bazar_back_end/internal/reconcile"
	"bazar_back_end/internal/search"
	"bazar_back_end/internal/validation"
)

// respondError maps service errors onto the HTTP answer. Unknown errors are
// logged and hidden behind a generic 500.
func respondError(c *gin.Context, err error) {
	var (
		fields   validation.Errors
		decline  *payment.DeclineError
		action   *checkout.ActionRequiredError
		unpaired *checkout.PaidButNotRecordedError
	)
	switch {
	case errors.As(err, &fields):
		msg := "invalid request"
		if len(fields) > 0 {
			msg = fields[0].Field + " " + fields[0].Message
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg, "fields": fields})

	case errors.As(err, &unpaired):
		middleware.LoggerFrom(c).Error("paid checkout not recorded", "payment_ref", unpaired.PaymentRef, "error", unpaired.Err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":           checkout.ErrPaidButNotRecorded.Error(),
			"code":            "payment_recorded_order_failed",
			"paymentIntentId": unpaired.PaymentRef,
		})

	case errors.As(err, &action):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":           err.Error(),
			"code":            "requires_action",
			"paymentIntentId": action.IntentID,
			"clientSecret":    action.ClientSecret,
		})

	case errors.As(err, &decline):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": decline.Error(), "code": decline.Code})

	case errors.Is(err, checkout.ErrInFlight),
		errors.Is(err, checkout.ErrIntentConsumed),
		errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, orders.ErrStaleStatus):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	case errors.Is(err, payment.ErrAmountMismatch),
		errors.Is(err, checkout.ErrUnsupportedCurrency),
		errors.Is(err, orders.ErrUnknownStatus),
		errors.Is(err, pricing.ErrEmptyCart),
		errors.Is(err, pricing.ErrInvalidLine),
		errors.Is(err, pricing.ErrTotalsMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, profile.ErrNotFound),
		errors.Is(err, profile.ErrAddressNotFound),
		errors.Is(err, reconcile.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})

	case errors.Is(err, payment.ErrGatewayUnavailable),
		errors.Is(err, orders.ErrRefundFailed):
		middleware.LoggerFrom(c).Warn("payment gateway error", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "retryable": true})

	case errors.Is(err, search.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})

	default:
		_ = c.Error(err)
		middleware.LoggerFrom(c).Error("request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
