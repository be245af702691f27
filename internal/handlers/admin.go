package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bazar_back_end/internal/middleware"
	"bazar_back_end/internal/models"
	"bazar_back_end/internal/orders"
	"bazar_back_end/internal/reconcile"
	"bazar_back_end/internal/search"
	"bazar_back_end/internal/tracking"
)

// AdminHandler is mounted behind RequireAdmin.
type AdminHandler struct {
	ledger     *orders.Ledger
	tracking   *tracking.Service
	search     *search.OrderIndex
	reconciler *reconcile.Processor
}

func NewAdminHandler(l *orders.Ledger, t *tracking.Service, s *search.OrderIndex, r *reconcile.Processor) *AdminHandler {
	return &AdminHandler{ledger: l, tracking: t, search: s, reconciler: r}
}

func limitParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// GET /admin/orders?status=&limit=
func (h *AdminHandler) Orders(c *gin.Context) {
	list, err := h.tracking.List(c.Request.Context(), models.OrderFilter{
		Status: models.OrderStatus(c.Query("status")),
		Limit:  limitParam(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (h *AdminHandler) Order(c *gin.Context) {
	view, err := h.tracking.Detail(c.Request.Context(), c.Param("id"), middleware.PrincipalFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": view})
}

// PATCH /admin/orders/:id/status
func (h *AdminHandler) UpdateStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
		Note   string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}
	actor := "admin:" + middleware.PrincipalFrom(c).UserID
	order, err := h.ledger.TransitionStatus(c.Request.Context(), c.Param("id"), models.OrderStatus(req.Status), actor, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "badge": orders.BadgeFor(order.Status)})
}

func (h *AdminHandler) Stats(c *gin.Context) {
	st, err := h.tracking.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// GET /admin/orders/search?q=
func (h *AdminHandler) Search(c *gin.Context) {
	docs, err := h.search.Search(c.Request.Context(), c.Query("q"), limitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": docs})
}

// GET /admin/reconciliations?all=true
func (h *AdminHandler) Reconciliations(c *gin.Context) {
	all, _ := strconv.ParseBool(c.Query("all"))
	list, err := h.reconciler.Pending(c.Request.Context(), all)
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []models.Reconciliation{}
	}
	c.JSON(http.StatusOK, gin.H{"reconciliations": list})
}
