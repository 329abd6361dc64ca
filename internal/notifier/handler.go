package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/artmarket/backend/internal/domain"
)

type mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Handler turns order confirmation events into outbound emails.
type Handler struct {
	mailer mailer
	logger *slog.Logger
}

func NewHandler(mailer mailer, logger *slog.Logger) *Handler {
	return &Handler{
		mailer: mailer,
		logger: logger,
	}
}

// Handle processes one order.confirmed payload. Returning an error keeps the
// offset uncommitted so the event is redelivered.
func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderConfirmedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		// A payload that cannot be decoded will never decode on retry.
		h.logger.Error("dropping undecodable event", "error", err)
		return nil
	}

	if event.Email == "" {
		h.logger.Error("dropping event without recipient", "order_id", event.OrderID)
		return nil
	}

	h.logger.Info("processing order confirmation", "order_id", event.OrderID, "user_id", event.UserID)

	subject := "Order Confirmation: " + event.OrderID
	body := fmt.Sprintf(
		"Your payment of %s %d was received and order %s is confirmed. Transaction reference: %s.",
		event.Currency, event.Amount, event.OrderID, event.TransactionID,
	)

	if err := h.mailer.Send(ctx, event.Email, subject, body); err != nil {
		h.logger.Error("failed to send confirmation email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send confirmation email: %w", err)
	}

	h.logger.Info("order confirmation sent", "order_id", event.OrderID)
	return nil
}
