package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSuccess   PaymentStatus = "success"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed,
		PaymentStatusRefunded, PaymentStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether a payment may move from s to next.
// Failed, refunded and cancelled are terminal; a successful payment can only
// be refunded, never marked failed.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusSuccess || next == PaymentStatusFailed || next == PaymentStatusCancelled
	case PaymentStatusSuccess:
		return next == PaymentStatusRefunded
	default:
		return false
	}
}

// Payment records one gateway attempt to collect funds for an order.
// TransactionID is the gateway's identifier and doubles as the idempotency
// key for webhook reconciliation: at most one payment exists per transaction.
type Payment struct {
	ID            string        `json:"id"`
	OrderID       string        `json:"order_id"`
	UserID        string        `json:"user_id"`
	Amount        int64         `json:"amount"`
	Currency      string        `json:"currency"`
	Method        string        `json:"method"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transaction_id"`
	CreatedAt     time.Time     `json:"created_at"`
}
