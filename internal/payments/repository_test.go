package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/artmarket/backend/internal/domain"
)

func TestCreateRejectsUnknownStatus(t *testing.T) {
	// Status validation runs before any query, so no database is needed.
	repo := NewPaymentRepository(nil)

	err := repo.Create(context.Background(), &domain.Payment{
		OrderID:       "order-1",
		UserID:        "user-1",
		Amount:        1000,
		TransactionID: "txn_1",
		Status:        domain.PaymentStatus("settled"),
	})

	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if errors.Is(err, domain.ErrIllegalTransition) {
		t.Error("a creation-time validation failure must not read as a lifecycle violation")
	}
}
