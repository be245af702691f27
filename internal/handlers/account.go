package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bazar_back_end/internal/middleware"
	"bazar_back_end/internal/models"
	"bazar_back_end/internal/profile"
	"bazar_back_end/internal/tracking"
)

// AccountHandler serves the signed-in buyer: their orders, profile and
// saved addresses.
type AccountHandler struct {
	tracking *tracking.Service
	profiles *profile.Service
}

func NewAccountHandler(t *tracking.Service, p *profile.Service) *AccountHandler {
	return &AccountHandler{tracking: t, profiles: p}
}

func (h *AccountHandler) Orders(c *gin.Context) {
	list, err := h.tracking.ListForUser(c.Request.Context(), middleware.PrincipalFrom(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (h *AccountHandler) Order(c *gin.Context) {
	view, err := h.tracking.Detail(c.Request.Context(), c.Param("id"), middleware.PrincipalFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": view})
}

func (h *AccountHandler) Profile(c *gin.Context) {
	userID := middleware.PrincipalFrom(c).UserID
	p, err := h.profiles.Get(c.Request.Context(), userID)
	if errors.Is(err, profile.ErrNotFound) {
		p, err = models.Profile{UserID: userID}, nil
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}

// UpdateProfile handles PATCH /user/profile.
func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	var req struct {
		Phone          string                `json:"phone"`
		DefaultAddress models.ProfileAddress `json:"defaultAddress"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	ctx := c.Request.Context()
	userID := middleware.PrincipalFrom(c).UserID
	updated, err := h.profiles.UpdateCheckoutDefaults(ctx, userID, req.Phone, req.DefaultAddress)
	if err != nil {
		respondError(c, err)
		return
	}
	p, err := h.profiles.Get(ctx, userID)
	if err != nil && !errors.Is(err, profile.ErrNotFound) {
		respondError(c, err)
		return
	}
	p.UserID = userID
	c.JSON(http.StatusOK, gin.H{"profile": p, "updated": updated})
}
