package models

import "time"

// Reconciliation records a confirmed payment whose order could not be written.
// Payload holds the JSON of the attempted order so it can be replayed.
type Reconciliation struct {
	PaymentRef      string     `json:"paymentRef"`
	AmountMinor     int64      `json:"amountMinor"`
	Currency        string     `json:"currency"`
	Payload         string     `json:"payload"`
	Error           string     `json:"error"`
	CreatedAt       time.Time  `json:"createdAt"`
	ResolvedOrderID string     `json:"resolvedOrderId,omitempty"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
}
