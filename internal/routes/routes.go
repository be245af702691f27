package routes

import (
	"time"

	"github.com/gin-gonic/gin"

	"bazar_back_end/internal/cache"
	"bazar_back_end/internal/handlers"
	"bazar_back_end/internal/middleware"
)

type Handlers struct {
	Orders   *handlers.OrderHandler
	Payments *handlers.PaymentHandler
	Tracking *handlers.TrackingHandler
	Account  *handlers.AccountHandler
	Shipping *handlers.ShippingHandler
	Admin    *handlers.AdminHandler
}

type Limits struct {
	Counter      cache.Counter
	TrackPerMin  int
	PerIP        *middleware.IPLimiter
	IntentPerMin int
}

func RegisterRoutes(r *gin.Engine, h Handlers, auth *middleware.Auth, lim Limits) {
	if lim.PerIP != nil {
		r.Use(lim.PerIP.Middleware())
	}

	r.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	r.GET("/shipping/options", h.Shipping.Options)

	// Guest checkout: identity is read when a token is sent.
	guest := r.Group("/", auth.Optional())
	guest.POST("/orders", h.Orders.Create)
	guest.POST("/checkout", h.Orders.Checkout)
	guest.POST("/payments/create-intent",
		middleware.WindowLimit(lim.Counter, "intent", lim.IntentPerMin, time.Minute),
		h.Payments.CreateIntent)

	r.POST("/payments/webhook", h.Payments.Webhook)

	track := r.Group("/orders/track", middleware.WindowLimit(lim.Counter, "track", lim.TrackPerMin, time.Minute))
	track.GET("", h.Tracking.Track)
	track.GET("/ws", h.Tracking.Live)

	user := r.Group("/user", auth.Required())
	user.GET("/orders", h.Account.Orders)
	user.GET("/orders/:id", h.Account.Order)
	user.GET("/profile", h.Account.Profile)
	user.PATCH("/profile", h.Account.UpdateProfile)
	user.GET("/addresses", h.Account.Addresses)
	user.POST("/addresses", h.Account.CreateAddress)
	user.POST("/addresses/:id/default", h.Account.SetDefaultAddress)
	user.DELETE("/addresses/:id", h.Account.DeleteAddress)

	admin := r.Group("/admin", auth.Required(), middleware.RequireAdmin)
	admin.GET("/orders", h.Admin.Orders)
	admin.GET("/orders/stats", h.Admin.Stats)
	admin.GET("/orders/search", h.Admin.Search)
	admin.GET("/orders/:id", h.Admin.Order)
	admin.PATCH("/orders/:id/status", h.Admin.UpdateStatus)
	admin.GET("/reconciliations", h.Admin.Reconciliations)
}
