package cart

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/artmarket/backend/internal/domain"
)

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

// Create inserts an empty cart for the user. Each user has exactly one cart;
// a second create fails with ErrConflict.
func (r *CartRepository) Create(ctx context.Context, userID string) (*domain.Cart, error) {
	cart := &domain.Cart{
		ID:     uuid.New().String(),
		UserID: userID,
		Items:  []domain.CartItem{},
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO carts (id, user_id, total_items, total_price)
		VALUES ($1, $2, 0, 0)
	`, cart.ID, cart.UserID)
	if err != nil {
		return nil, mapPqError(err)
	}

	return cart, nil
}

func (r *CartRepository) GetByID(ctx context.Context, id string) (*domain.Cart, error) {
	return r.get(ctx, "id", id)
}

func (r *CartRepository) GetByUserID(ctx context.Context, userID string) (*domain.Cart, error) {
	return r.get(ctx, "user_id", userID)
}

// get loads the cart row and its lines in one statement, so the totals and
// the items always come from the same snapshot even under concurrent
// mutation.
func (r *CartRepository) get(ctx context.Context, column, value string) (*domain.Cart, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.user_id, c.total_items, c.total_price,
		       ci.id, ci.artwork_id, ci.quantity
		FROM carts c
		LEFT JOIN cart_items ci ON ci.cart_id = c.id
		WHERE c.`+column+` = $1
		ORDER BY ci.artwork_id
	`, value)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cart := &domain.Cart{Items: []domain.CartItem{}}
	found := false

	for rows.Next() {
		var (
			itemID    sql.NullString
			artworkID sql.NullString
			quantity  sql.NullInt64
		)
		if err := rows.Scan(&cart.ID, &cart.UserID, &cart.TotalItems, &cart.TotalPrice,
			&itemID, &artworkID, &quantity); err != nil {
			return nil, err
		}
		found = true

		if itemID.Valid {
			cart.Items = append(cart.Items, domain.CartItem{
				ID:        itemID.String,
				CartID:    cart.ID,
				ArtworkID: artworkID.String,
				Quantity:  int(quantity.Int64),
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrNotFound
	}

	return cart, nil
}

// AddItem adds quantity of an artwork to the cart. If a line for the same
// artwork already exists the quantities are merged additively; two concurrent
// adds of the same artwork never produce two rows because the cart row is
// locked for the duration of the transaction and the (cart_id, artwork_id)
// pair is unique.
func (r *CartRepository) AddItem(ctx context.Context, cartID, artworkID string, quantity int) error {
	if quantity < 1 {
		return domain.ErrInvalidQuantity
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockCart(ctx, tx, cartID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cart_items (id, cart_id, artwork_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, artwork_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	`, uuid.New().String(), cartID, artworkID, quantity)
	if err != nil {
		return mapPqError(err)
	}

	if err := recomputeTotals(ctx, tx, cartID); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateItemQuantity overwrites an item's quantity. Zero removes the line,
// negative values are rejected.
func (r *CartRepository) UpdateItemQuantity(ctx context.Context, itemID string, quantity int) error {
	if quantity < 0 {
		return domain.ErrInvalidQuantity
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	cartID, err := itemCartID(ctx, tx, itemID)
	if err != nil {
		return err
	}

	if err := lockCart(ctx, tx, cartID); err != nil {
		return err
	}

	if quantity == 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE cart_items SET quantity = $2 WHERE id = $1`, itemID, quantity)
	}
	if err != nil {
		return err
	}

	if err := recomputeTotals(ctx, tx, cartID); err != nil {
		return err
	}

	return tx.Commit()
}

// RemoveItem deletes a single cart line and recomputes the cart totals.
func (r *CartRepository) RemoveItem(ctx context.Context, itemID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	cartID, err := itemCartID(ctx, tx, itemID)
	if err != nil {
		return err
	}

	if err := lockCart(ctx, tx, cartID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID); err != nil {
		return err
	}

	if err := recomputeTotals(ctx, tx, cartID); err != nil {
		return err
	}

	return tx.Commit()
}

// Delete removes the cart and, via the FK cascade, all of its items.
func (r *CartRepository) Delete(ctx context.Context, cartID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// RecomputeTotals re-derives the cart's totals from its lines. For callers
// outside this package whose mutations remove cart lines indirectly, such as
// an artwork deletion cascading through cart_items.
func RecomputeTotals(ctx context.Context, tx *sql.Tx, cartID string) error {
	return recomputeTotals(ctx, tx, cartID)
}

// Clear removes every item from the cart and zeroes the totals. Used after a
// successful checkout.
func Clear(ctx context.Context, tx *sql.Tx, cartID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return err
	}
	return recomputeTotals(ctx, tx, cartID)
}

func lockCart(ctx context.Context, tx *sql.Tx, cartID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM carts WHERE id = $1 FOR UPDATE`, cartID).Scan(&id)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	return err
}

func itemCartID(ctx context.Context, tx *sql.Tx, itemID string) (string, error) {
	var cartID string
	err := tx.QueryRowContext(ctx, `SELECT cart_id FROM cart_items WHERE id = $1`, itemID).Scan(&cartID)
	if err == sql.ErrNoRows {
		return "", domain.ErrNotFound
	}
	return cartID, err
}

// recomputeTotals derives total_items and total_price from the item rows.
// Called inside every mutating transaction; the totals are never taken from
// the caller.
func recomputeTotals(ctx context.Context, tx *sql.Tx, cartID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE carts c SET
			total_items = COALESCE((
				SELECT SUM(ci.quantity) FROM cart_items ci WHERE ci.cart_id = c.id
			), 0),
			total_price = COALESCE((
				SELECT SUM(ci.quantity * a.price)
				FROM cart_items ci
				JOIN artworks a ON a.id = ci.artwork_id
				WHERE ci.cart_id = c.id
			), 0)
		WHERE c.id = $1
	`, cartID)
	return err
}

func mapPqError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return domain.ErrConflict
		case "23503": // foreign_key_violation
			return domain.ErrNotFound
		}
	}
	return err
}
