package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is one of the known order statuses. Externally
// supplied status strings must pass this check before reaching storage.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether an order may move from s to next.
// The lifecycle is monotonic: delivered and cancelled are terminal, and
// self-transitions are not allowed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusConfirmed || next == OrderStatusCancelled
	case OrderStatusConfirmed:
		return next == OrderStatusShipped
	case OrderStatusShipped:
		return next == OrderStatusDelivered
	default:
		return false
	}
}

// Order is a committed purchase of a single artwork. Price is captured once
// at creation from the artwork's price at that moment and is never
// recalculated, so later price edits cannot corrupt historical orders.
type Order struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	ArtworkID string      `json:"artwork_id"`
	Quantity  int         `json:"quantity"`
	Price     int64       `json:"price"`
	Address   string      `json:"address"`
	Status    OrderStatus `json:"status"`
	OrderedAt time.Time   `json:"ordered_at"`
}
