package models

import "github.com/shopspring/decimal"

type ShippingCalculation struct {
	FreeThreshold decimal.Decimal `json:"freeThreshold"`
	FlatCost      decimal.Decimal `json:"flatCost"`
	CartTotal     decimal.Decimal `json:"cartTotal"`
	ShippingCost  decimal.Decimal `json:"shippingCost"`
	IsFree        bool            `json:"isFree"`
	Remaining     decimal.Decimal `json:"remainingForFree"`
}
