package orders

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/artmarket/backend/internal/cart"
	"github.com/artmarket/backend/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create places an order for a single artwork. The artwork's current price is
// snapshotted into the order inside the INSERT itself, so the stored price can
// never drift from what the buyer saw, and later artwork price edits leave
// the order untouched.
func (r *OrderRepository) Create(ctx context.Context, userID, artworkID string, quantity int, address string) (*domain.Order, error) {
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	id := uuid.New().String()
	orderedAt := time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, artwork_id, quantity, price, address, status, ordered_at)
		SELECT $1, u.id, a.id, $4, a.price * $4, $5, $6, $7
		FROM users u, artworks a
		WHERE u.id = $2 AND a.id = $3
	`, id, userID, artworkID, quantity, address, domain.OrderStatusPending, orderedAt)
	if err != nil {
		return nil, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Either the user or the artwork does not exist.
		return nil, domain.ErrNotFound
	}

	return r.GetByID(ctx, id)
}

// Checkout converts the user's cart into orders, one per cart line, each with
// the line price frozen at checkout time, then empties the cart. The whole
// conversion is a single transaction: a failure on any line leaves both the
// cart and the orders untouched.
func (r *OrderRepository) Checkout(ctx context.Context, userID, address string) ([]domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var cartID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM carts WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&cartID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT ci.artwork_id, ci.quantity, a.price
		FROM cart_items ci
		JOIN artworks a ON a.id = ci.artwork_id
		WHERE ci.cart_id = $1
		ORDER BY ci.artwork_id
	`, cartID)
	if err != nil {
		return nil, err
	}

	type line struct {
		artworkID string
		quantity  int
		price     int64
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.artworkID, &l.quantity, &l.price); err != nil {
			_ = rows.Close()
			return nil, err
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(lines) == 0 {
		return nil, domain.ErrInvalidQuantity
	}

	orderedAt := time.Now().UTC()
	placed := make([]domain.Order, 0, len(lines))

	for _, l := range lines {
		order := domain.Order{
			ID:        uuid.New().String(),
			UserID:    userID,
			ArtworkID: l.artworkID,
			Quantity:  l.quantity,
			Price:     l.price * int64(l.quantity),
			Address:   address,
			Status:    domain.OrderStatusPending,
			OrderedAt: orderedAt,
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders (id, user_id, artwork_id, quantity, price, address, status, ordered_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, order.ID, order.UserID, order.ArtworkID, order.Quantity, order.Price,
			order.Address, order.Status, order.OrderedAt)
		if err != nil {
			return nil, err
		}

		placed = append(placed, order)
	}

	if err := cart.Clear(ctx, tx, cartID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return placed, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, artwork_id, quantity, price, address, status, ordered_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.UserID, &order.ArtworkID, &order.Quantity,
		&order.Price, &order.Address, &order.Status, &order.OrderedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	return order, nil
}

// UpdateStatus moves the order to next if the transition table allows it.
// The order row is locked so two concurrent transitions on the same order
// serialize; only one of them can observe the old status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, next domain.OrderStatus) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := lockStatus(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if !current.CanTransitionTo(next) {
		return nil, domain.ErrIllegalTransition
	}

	if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, next); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

// Update is the administrative correction path for non-financial mistakes.
// A status change through here is still validated against the transition
// table; passing the current status leaves it unchanged.
func (r *OrderRepository) Update(ctx context.Context, id string, price int64, address string, status domain.OrderStatus) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := lockStatus(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if status != current && !current.CanTransitionTo(status) {
		return nil, domain.ErrIllegalTransition
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET price = $2, address = $3, status = $4 WHERE id = $1
	`, id, price, address, status)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

func (r *OrderRepository) List(ctx context.Context) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT id, user_id, artwork_id, quantity, price, address, status, ordered_at
		FROM orders
		ORDER BY ordered_at DESC
	`)
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT id, user_id, artwork_id, quantity, price, address, status, ordered_at
		FROM orders
		WHERE user_id = $1
		ORDER BY ordered_at DESC
	`, userID)
}

func (r *OrderRepository) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT id, user_id, artwork_id, quantity, price, address, status, ordered_at
		FROM orders
		WHERE status = $1
		ORDER BY ordered_at DESC
	`, status)
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orders := []domain.Order{}
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.ArtworkID, &order.Quantity,
			&order.Price, &order.Address, &order.Status, &order.OrderedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

func lockStatus(ctx context.Context, tx *sql.Tx, id string) (domain.OrderStatus, error) {
	var current domain.OrderStatus
	err := tx.QueryRowContext(ctx, `
		SELECT status FROM orders WHERE id = $1 FOR UPDATE
	`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return "", domain.ErrNotFound
	}
	return current, err
}
