package domain

import "time"

// OrderConfirmedEvent is published after a payment_succeeded webhook has been
// reconciled and the order transitioned to confirmed. It exists only to drive
// outbound notifications; reconciliation never depends on its delivery.
type OrderConfirmedEvent struct {
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	Email         string    `json:"email"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Timestamp     time.Time `json:"timestamp"`
}
