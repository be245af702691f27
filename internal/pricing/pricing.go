// Package pricing turns a client-held cart into an immutable priced quote.
package pricing

import (
	"errors"
	"fmt"

	"bazar_back_end/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrInvalidLine    = errors.New("invalid cart line")
	ErrTotalsMismatch = errors.New("submitted totals do not match the cart")
)

var hundred = decimal.NewFromInt(100)

type Config struct {
	FreeShippingThreshold decimal.Decimal
	DefaultShippingCost   decimal.Decimal
}

// Quote is the authoritative price of a cart at checkout time.
type Quote struct {
	Lines        []models.OrderLineItem
	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
}

// Snapshot prices items. It has no side effects.
func (c Config) Snapshot(items []models.CartItem) (Quote, error) {
	if len(items) == 0 {
		return Quote{}, ErrEmptyCart
	}

	q := Quote{
		Lines:    make([]models.OrderLineItem, 0, len(items)),
		Subtotal: decimal.Zero,
		Discount: decimal.Zero,
	}
	for i, item := range items {
		if item.Quantity <= 0 {
			return Quote{}, fmt.Errorf("%w: line %d quantity %d", ErrInvalidLine, i, item.Quantity)
		}
		if item.Price.IsNegative() {
			return Quote{}, fmt.Errorf("%w: line %d negative price", ErrInvalidLine, i)
		}
		line := models.OrderLineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.Price,
			Quantity:  item.Quantity,
			ImageRef:  item.Image,
		}
		q.Lines = append(q.Lines, line)
		q.Subtotal = q.Subtotal.Add(line.LineTotal())
	}

	q.ShippingCost = c.ShippingFor(q.Subtotal)
	q.Total = q.Subtotal.Add(q.ShippingCost).Sub(q.Discount)
	return q, nil
}

// ShippingFor returns zero at or above the free-shipping threshold.
func (c Config) ShippingFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(c.FreeShippingThreshold) {
		return decimal.Zero
	}
	return c.DefaultShippingCost
}

// Calculation describes shipping for a cart total, for the storefront banner.
func (c Config) Calculation(cartTotal decimal.Decimal) models.ShippingCalculation {
	cost := c.ShippingFor(cartTotal)
	remaining := c.FreeShippingThreshold.Sub(cartTotal)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return models.ShippingCalculation{
		FreeThreshold: c.FreeShippingThreshold,
		FlatCost:      c.DefaultShippingCost,
		CartTotal:     cartTotal,
		ShippingCost:  cost,
		IsFree:        cost.IsZero(),
		Remaining:     remaining,
	}
}

// Matches compares totals computed by the client with the quote.
func (q Quote) Matches(subtotal, shipping, total decimal.Decimal) error {
	if !q.Subtotal.Equal(subtotal) || !q.ShippingCost.Equal(shipping) || !q.Total.Equal(total) {
		return fmt.Errorf("%w: expected subtotal=%s shipping=%s total=%s",
			ErrTotalsMismatch, q.Subtotal, q.ShippingCost, q.Total)
	}
	return nil
}

// ToMinorUnits converts an amount to poisha, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
