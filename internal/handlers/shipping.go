package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"bazar_back_end/internal/pricing"
)

type ShippingHandler struct {
	pricing pricing.Config
}

func NewShippingHandler(p pricing.Config) *ShippingHandler {
	return &ShippingHandler{pricing: p}
}

// Options handles GET /shipping/options?cart_total=.
func (h *ShippingHandler) Options(c *gin.Context) {
	total := decimal.Zero
	if raw := c.Query("cart_total"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil || d.IsNegative() {
			badRequest(c, "cart_total must be a non-negative amount")
			return
		}
		total = d
	}
	c.JSON(http.StatusOK, h.pricing.Calculation(total))
}
