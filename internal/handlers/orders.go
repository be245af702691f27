package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bazar_back_end/internal/checkout"
	"bazar_back_end/internal/middleware"
	"bazar_back_end/internal/models"
	"bazar_back_end/internal/orders"
	"bazar_back_end/internal/payment"
	"bazar_back_end/internal/validation"
)

// SessionHeader lets the storefront pin a checkout session. Without it the
// session is the signed-in user; a guest is issued a fresh session id in the
// response header to send back on the next step.
const SessionHeader = "X-Checkout-Session"

type OrderRequest struct {
	Items           []models.CartItem      `json:"items" binding:"dive"`
	Subtotal        *decimal.Decimal       `json:"subtotal"`
	ShippingCost    *decimal.Decimal       `json:"shippingCost"`
	Total           *decimal.Decimal       `json:"total"`
	CustomerName    string                 `json:"customerName"`
	CustomerPhone   string                 `json:"customerPhone"`
	CustomerEmail   string                 `json:"customerEmail"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
	Notes           string                 `json:"notes"`
	PaymentMethod   string                 `json:"paymentMethod"`
	PaymentStatus   string                 `json:"paymentStatus"`
	PaymentIntentID string                 `json:"paymentIntentId"`
	PaymentMethodID string                 `json:"paymentMethodId"`
}

type OrderHandler struct {
	checkout *checkout.Orchestrator
	gateway  payment.Gateway
}

func NewOrderHandler(o *checkout.Orchestrator, g payment.Gateway) *OrderHandler {
	return &OrderHandler{checkout: o, gateway: g}
}

func sessionKey(c *gin.Context) string {
	if k := strings.TrimSpace(c.GetHeader(SessionHeader)); k != "" {
		return "client:" + k
	}
	if p := middleware.PrincipalFrom(c); p.Authenticated() {
		return "user:" + p.UserID
	}
	id := uuid.NewString()
	c.Header(SessionHeader, id)
	return "client:" + id
}

func (r OrderRequest) toCheckout(c *gin.Context) (checkout.Request, error) {
	var errs validation.Errors
	method, ok := models.ParsePaymentMethod(r.PaymentMethod)
	if !ok {
		errs.Add("paymentMethod", "must be cod or stripe")
	}
	switch models.PaymentStatus(r.PaymentStatus) {
	case "", models.PaymentPending:
	case models.PaymentPaid:
		if method == models.PaymentCOD {
			errs.Add("paymentStatus", "cash on delivery orders start pending")
		}
	default:
		errs.Add("paymentStatus", "must be pending or paid")
	}

	req := checkout.Request{
		SessionKey: sessionKey(c),
		UserID:     middleware.PrincipalFrom(c).UserID,
		Items:      r.Items,
		Customer: orders.Customer{
			Name:  strings.TrimSpace(r.CustomerName),
			Phone: strings.TrimSpace(r.CustomerPhone),
			Email: strings.TrimSpace(r.CustomerEmail),
		},
		ShippingAddress: r.ShippingAddress,
		Notes:           strings.TrimSpace(r.Notes),
		PaymentMethod:   method,
		PaymentIntentID: strings.TrimSpace(r.PaymentIntentID),
	}
	if r.Subtotal != nil && r.ShippingCost != nil && r.Total != nil {
		req.Claimed = &checkout.Totals{Subtotal: *r.Subtotal, ShippingCost: *r.ShippingCost, Total: *r.Total}
	}
	return req, errs.Err()
}

// Create handles POST /orders. Card orders reference an intent the
// storefront confirmed with the client secret.
func (h *OrderHandler) Create(c *gin.Context) {
	var body OrderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	req, err := body.toCheckout(c)
	if err == nil && req.PaymentMethod == models.PaymentCard && req.PaymentIntentID == "" {
		err = validation.Errors{{Field: "paymentIntentId", Message: "is required for card payments"}}
	}
	if err != nil {
		respondError(c, err)
		return
	}
	h.run(c, req)
}

// Checkout handles POST /checkout, where the server confirms the intent with
// the payment method collected by the storefront.
func (h *OrderHandler) Checkout(c *gin.Context) {
	var body OrderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	req, err := body.toCheckout(c)
	if err == nil && req.PaymentMethod == models.PaymentCard {
		if body.PaymentMethodID == "" {
			err = validation.Errors{{Field: "paymentMethodId", Message: "is required for card payments"}}
		}
		req.Confirmer = payment.ServerConfirmer{Gateway: h.gateway, PaymentMethodID: body.PaymentMethodID}
	}
	if err != nil {
		respondError(c, err)
		return
	}
	h.run(c, req)
}

func (h *OrderHandler) run(c *gin.Context, req checkout.Request) {
	order, err := h.checkout.Checkout(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": gin.H{
		"id":            order.ID,
		"orderNumber":   order.OrderNumber,
		"status":        order.Status,
		"paymentStatus": order.PaymentStatus,
		"total":         order.Total,
	}})
}
