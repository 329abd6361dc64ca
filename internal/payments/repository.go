package payments

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/artmarket/backend/internal/domain"
)

// ErrInvalidStatus rejects a payment created with a status outside the known
// set. Distinct from ErrIllegalTransition, which guards lifecycle moves on
// payments that already exist.
var ErrInvalidStatus = errors.New("invalid payment status")

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create records one gateway attempt. Status defaults to pending and
// created_at to now when unset. The unique transaction_id constraint is the
// idempotency boundary for direct creation: a duplicate fails with
// ErrConflict instead of producing a second row.
func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	if payment.Status == "" {
		payment.Status = domain.PaymentStatusPending
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	if !payment.Status.Valid() {
		return ErrInvalidStatus
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, user_id, amount, currency, method, status, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, payment.ID, payment.OrderID, payment.UserID, payment.Amount, payment.Currency,
		payment.Method, payment.Status, payment.TransactionID, payment.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case "23505": // duplicate transaction_id
				return domain.ErrConflict
			case "23503": // order or user missing
				return domain.ErrNotFound
			}
		}
		return err
	}

	return nil
}

// GetByTransactionID looks a payment up by the gateway's identifier. The
// reconciliation processor only ever knows this id, not the local one.
func (r *PaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	return r.get(ctx, `transaction_id`, transactionID)
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	return r.get(ctx, `id`, id)
}

func (r *PaymentRepository) get(ctx context.Context, column, value string) (*domain.Payment, error) {
	payment := &domain.Payment{}

	query := `
		SELECT id, order_id, user_id, amount, currency, method, status, transaction_id, created_at
		FROM payments
		WHERE ` + column + ` = $1`
	err := r.db.QueryRowContext(ctx, query, value).
		Scan(&payment.ID, &payment.OrderID, &payment.UserID, &payment.Amount, &payment.Currency,
			&payment.Method, &payment.Status, &payment.TransactionID, &payment.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	return payment, nil
}

// UpdateStatus transitions the payment identified by the external transaction
// id. The payment's own transition table applies, independent of order
// status: a successful payment can only move to refunded.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, transactionID string, next domain.PaymentStatus) (*domain.Payment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.PaymentStatus
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM payments WHERE transaction_id = $1 FOR UPDATE
	`, transactionID).Scan(&current)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	if !current.CanTransitionTo(next) {
		return nil, domain.ErrIllegalTransition
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE payments SET status = $2 WHERE transaction_id = $1
	`, transactionID, next)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.GetByTransactionID(ctx, transactionID)
}

func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	return r.list(ctx, `order_id`, orderID)
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID string) ([]domain.Payment, error) {
	return r.list(ctx, `user_id`, userID)
}

func (r *PaymentRepository) ListByStatus(ctx context.Context, status domain.PaymentStatus) ([]domain.Payment, error) {
	return r.list(ctx, `status`, string(status))
}

func (r *PaymentRepository) list(ctx context.Context, column, value string) ([]domain.Payment, error) {
	query := `
		SELECT id, order_id, user_id, amount, currency, method, status, transaction_id, created_at
		FROM payments
		WHERE ` + column + ` = $1
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, value)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	payments := []domain.Payment{}
	for rows.Next() {
		var payment domain.Payment
		if err := rows.Scan(&payment.ID, &payment.OrderID, &payment.UserID, &payment.Amount,
			&payment.Currency, &payment.Method, &payment.Status, &payment.TransactionID,
			&payment.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}
