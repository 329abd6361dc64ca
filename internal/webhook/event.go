package webhook

// Event types the reconciliation processor acts on. Anything else is
// acknowledged so the gateway stops retrying, then ignored.
const (
	EventPaymentSucceeded = "payment_succeeded"
	EventPaymentFailed    = "payment_failed"
)

// Event is the gateway's notification payload. Metadata carries back the
// order_id and user_id set at payment-intent creation; without both keys the
// event cannot be correlated to local state.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	TransactionID string            `json:"transaction_id"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Method        string            `json:"method"`
	Metadata      map[string]string `json:"metadata"`
}

// CorrelationKeys extracts the local order and user ids. ok is false when
// either key is missing or empty.
func (e Event) CorrelationKeys() (orderID, userID string, ok bool) {
	if e.Data.Metadata == nil {
		return "", "", false
	}
	orderID = e.Data.Metadata["order_id"]
	userID = e.Data.Metadata["user_id"]
	return orderID, userID, orderID != "" && userID != ""
}
