package models

import "gorm.io/gorm"

// OrderEvent is one recorded lifecycle event: a state transition or an
// accepted change to the order's working values.
type OrderEvent struct {
	gorm.Model
	Instrument string  `json:"instrument"`
	State      string  `json:"state"`
	Note       string  `json:"note"`
	OrderID    string  `json:"order_id"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Size       float64 `json:"size"`
	Risk       float64 `json:"risk"`
	OccurredAt int64   `json:"occurred_at"`
}
