package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"bazar_back_end/internal/checkout"
	"bazar_back_end/internal/middleware"
	"bazar_back_end/internal/payment"
	"bazar_back_end/internal/reconcile"
)

const maxWebhookBytes = int64(65536)

type PaymentHandler struct {
	checkout   *checkout.Orchestrator
	gateway    payment.Gateway
	reconciler *reconcile.Processor
}

func NewPaymentHandler(o *checkout.Orchestrator, g payment.Gateway, r *reconcile.Processor) *PaymentHandler {
	return &PaymentHandler{checkout: o, gateway: g, reconciler: r}
}

// CreateIntent handles POST /payments/create-intent.
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	var req struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	intent, err := h.checkout.CreateIntent(c.Request.Context(), sessionKey(c), req.Amount, req.Currency)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{
		"clientSecret":    intent.ClientSecret,
		"paymentIntentId": intent.ID,
	}
	if issued := c.Writer.Header().Get(SessionHeader); issued != "" {
		resp["checkoutSession"] = issued
	}
	c.JSON(http.StatusOK, resp)
}

// Webhook handles POST /payments/webhook. A non-2xx answer makes the
// gateway redeliver the event.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes)
	payload, err := c.GetRawData()
	if err != nil {
		badRequest(c, "unreadable body")
		return
	}

	event, err := h.gateway.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			badRequest(c, "invalid signature")
			return
		}
		badRequest(c, "invalid event")
		return
	}

	if err := h.reconciler.HandleEvent(c.Request.Context(), event); err != nil {
		middleware.LoggerFrom(c).Error("webhook processing failed", "event_id", event.ID, "type", event.Type, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event not processed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
