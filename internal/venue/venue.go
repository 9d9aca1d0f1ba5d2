// Package venue defines the contract between the order lifecycle core and
// a remote trading endpoint. Concrete venues (internal/bybit) implement it.
package venue

import "context"

// Direction is the side of the contemplated position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Opposite returns the closing side for the direction.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// OrderStatus is the venue-side state of a contingent order.
type OrderStatus string

const (
	StatusNone     OrderStatus = "none" // unknown to the venue
	StatusPending  OrderStatus = "pending"
	StatusOpen     OrderStatus = "open"
	StatusFilled   OrderStatus = "filled"
	StatusCanceled OrderStatus = "canceled"
	StatusRejected OrderStatus = "rejected"
)

// Live reports whether the order is still being worked by the venue.
func (s OrderStatus) Live() bool {
	return s == StatusOpen || s == StatusPending
}

// Balance holds the free and total amount of a single currency.
type Balance struct {
	Free  float64
	Total float64
}

// OrderRequest carries everything needed to place a contingent market order.
type OrderRequest struct {
	Instrument   string
	Direction    Direction
	Size         float64
	TriggerPrice float64
	StopLoss     float64
	TakeProfit   float64
}

// OrderUpdate carries the mutable parameters of an already placed order.
type OrderUpdate struct {
	Instrument string
	OrderID    string
	Size       float64
	StopLoss   float64
	TakeProfit float64
}

// Venue exposes the order-management operations the lifecycle manager needs.
type Venue interface {
	// FetchBalance returns the per-currency account balances.
	FetchBalance(ctx context.Context) (map[string]Balance, error)

	// CreateOrder places a contingent order and returns its venue id.
	CreateOrder(ctx context.Context, req OrderRequest) (string, error)

	// EditOrder amends size, stop-loss and take-profit of a live order.
	EditOrder(ctx context.Context, upd OrderUpdate) error

	// FetchOrderStatus reports the venue-side status of an order. An order
	// the venue no longer knows is StatusNone, not an error.
	FetchOrderStatus(ctx context.Context, instrument, orderID string) (OrderStatus, error)

	// CancelAllOrders cancels every open order on the instrument.
	CancelAllOrders(ctx context.Context, instrument string) error
}

// PriceSource yields successive top-of-book prices for one instrument.
// Next blocks until a price is available or ctx is done.
type PriceSource interface {
	Next(ctx context.Context) (float64, error)
}
