package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bazar_back_end/internal/middleware"
	"bazar_back_end/internal/models"
)

// GET /user/addresses
func (h *AccountHandler) Addresses(c *gin.Context) {
	list, err := h.profiles.Addresses(c.Request.Context(), middleware.PrincipalFrom(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []models.SavedAddress{}
	}
	c.JSON(http.StatusOK, gin.H{"addresses": list})
}

// POST /user/addresses
func (h *AccountHandler) CreateAddress(c *gin.Context) {
	var input models.SavedAddress
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid address: "+err.Error())
		return
	}
	addr, err := h.profiles.CreateAddress(c.Request.Context(), middleware.PrincipalFrom(c).UserID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"address": addr})
}

// POST /user/addresses/:id/default
func (h *AccountHandler) SetDefaultAddress(c *gin.Context) {
	if err := h.profiles.SetDefaultAddress(c.Request.Context(), middleware.PrincipalFrom(c).UserID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "default address updated"})
}

// DELETE /user/addresses/:id
func (h *AccountHandler) DeleteAddress(c *gin.Context) {
	if err := h.profiles.DeleteAddress(c.Request.Context(), middleware.PrincipalFrom(c).UserID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
