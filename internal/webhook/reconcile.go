package webhook

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/artmarket/backend/internal/domain"
)

// Outcome classifies how a success event was resolved. Everything but
// OutcomeApplied is expected steady-state traffic under at-least-once
// delivery, handled silently.
type Outcome int

const (
	// OutcomeApplied means the payment was recorded and the order moved
	// pending -> confirmed.
	OutcomeApplied Outcome = iota
	// OutcomeDuplicate means a payment with this transaction id already
	// exists: the same event was delivered before.
	OutcomeDuplicate
	// OutcomeStale means the order has already left pending; a late or
	// repeated success event must not re-confirm it.
	OutcomeStale
)

// Reconciler applies gateway payment events to local order and payment state.
// All multi-row effects happen in one transaction with the order row locked,
// so concurrent deliveries for the same order serialize while different
// orders never contend.
type Reconciler struct {
	db *sql.DB
}

func NewReconciler(db *sql.DB) *Reconciler {
	return &Reconciler{db: db}
}

// ApplySuccess handles a payment_succeeded event. On OutcomeApplied the
// returned event describes the confirmation for downstream notification.
//
// A missing order is returned as an error rather than swallowed: the
// correlation metadata came from our own intent creation, so a dangling
// order id is a bug, not a retry scenario.
func (r *Reconciler) ApplySuccess(ctx context.Context, ev Event) (Outcome, *domain.OrderConfirmedEvent, error) {
	orderID, userID, ok := ev.CorrelationKeys()
	if !ok {
		return 0, nil, fmt.Errorf("event %s has no correlation metadata", ev.ID)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the order row: two concurrent events for this order cannot both
	// observe pending.
	var (
		status domain.OrderStatus
		email  string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT o.status, u.email
		FROM orders o
		JOIN users u ON u.id = o.user_id
		WHERE o.id = $1
		FOR UPDATE OF o
	`, orderID).Scan(&status, &email)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil, fmt.Errorf("order %s referenced by event %s not found: %w", orderID, ev.ID, domain.ErrNotFound)
		}
		return 0, nil, err
	}

	if status != domain.OrderStatusPending {
		return OutcomeStale, nil, nil
	}

	// Idempotency: the transaction id has been applied already.
	var existing string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM payments WHERE transaction_id = $1
	`, ev.Data.TransactionID).Scan(&existing)
	if err == nil {
		return OutcomeDuplicate, nil, nil
	}
	if err != sql.ErrNoRows {
		return 0, nil, err
	}

	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, user_id, amount, currency, method, status, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.New().String(), orderID, userID, ev.Data.Amount, ev.Data.Currency,
		ev.Data.Method, domain.PaymentStatusSuccess, ev.Data.TransactionID, now)
	if err != nil {
		return 0, nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = $2 WHERE id = $1
	`, orderID, domain.OrderStatusConfirmed)
	if err != nil {
		return 0, nil, err
	}

	// Payment insert and order transition commit or roll back together.
	if err := tx.Commit(); err != nil {
		return 0, nil, err
	}

	return OutcomeApplied, &domain.OrderConfirmedEvent{
		OrderID:       orderID,
		UserID:        userID,
		Email:         email,
		TransactionID: ev.Data.TransactionID,
		Amount:        ev.Data.Amount,
		Currency:      ev.Data.Currency,
		Timestamp:     now,
	}, nil
}

// ApplyFailure handles a payment_failed event. Only an existing payment
// still allowed to fail is touched; a success is never regressed, the order
// is never altered, and a failure without a matching payment is a no-op
// (nothing to mark failed). Returns whether a payment was marked failed.
func (r *Reconciler) ApplyFailure(ctx context.Context, transactionID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2
		WHERE transaction_id = $1 AND status = $3
	`, transactionID, domain.PaymentStatusFailed, domain.PaymentStatusPending)
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}
