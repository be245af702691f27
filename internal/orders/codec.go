package orders

import (
	"encoding/json"
	"fmt"

	"bazar_back_end/internal/models"
	"bazar_back_end/internal/pricing"
)

// storedMoney holds an order's amounts in minor units, the storage form.
type storedMoney struct {
	Subtotal, Shipping, Discount, Total int64
}

func moneyOf(o *models.Order) storedMoney {
	return storedMoney{
		Subtotal: pricing.ToMinorUnits(o.Subtotal),
		Shipping: pricing.ToMinorUnits(o.ShippingCost),
		Discount: pricing.ToMinorUnits(o.Discount),
		Total:    pricing.ToMinorUnits(o.Total),
	}
}

func (m storedMoney) apply(o *models.Order) {
	o.Subtotal = pricing.FromMinorUnits(m.Subtotal)
	o.ShippingCost = pricing.FromMinorUnits(m.Shipping)
	o.Discount = pricing.FromMinorUnits(m.Discount)
	o.Total = pricing.FromMinorUnits(m.Total)
}

func encodeBlobs(o *models.Order) (items, address string, err error) {
	rawItems, err := json.Marshal(o.Items)
	if err != nil {
		return "", "", fmt.Errorf("encode items: %w", err)
	}
	rawAddr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return "", "", fmt.Errorf("encode shipping address: %w", err)
	}
	return string(rawItems), string(rawAddr), nil
}

func decodeBlobs(o *models.Order, items, address string) error {
	if items != "" {
		if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
			return fmt.Errorf("decode items of %s: %w", o.ID, err)
		}
	}
	if address != "" {
		if err := json.Unmarshal([]byte(address), &o.ShippingAddress); err != nil {
			return fmt.Errorf("decode shipping address of %s: %w", o.ID, err)
		}
	}
	return nil
}
