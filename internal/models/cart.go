package models

import "github.com/shopspring/decimal"

// CartItem is a line of the client-held cart as submitted at checkout.
type CartItem struct {
	ProductID string          `json:"productId" binding:"required"`
	Name      string          `json:"name" binding:"required"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	Image     string          `json:"image,omitempty"`
}
