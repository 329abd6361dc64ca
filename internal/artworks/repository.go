package artworks

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/artmarket/backend/internal/cart"
	"github.com/artmarket/backend/internal/domain"
)

type ArtworkRepository struct {
	db *sql.DB
}

func NewArtworkRepository(db *sql.DB) *ArtworkRepository {
	return &ArtworkRepository{db: db}
}

func (r *ArtworkRepository) Create(ctx context.Context, artwork *domain.Artwork) error {
	artwork.ID = uuid.New().String()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO artworks (id, title, description, category, label, price, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, artwork.ID, artwork.Title, artwork.Description, artwork.Category,
		artwork.Label, artwork.Price, artwork.ImageURL)
	return err
}

func (r *ArtworkRepository) GetByID(ctx context.Context, id string) (*domain.Artwork, error) {
	artwork := &domain.Artwork{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, description, category, label, price, image_url
		FROM artworks
		WHERE id = $1
	`, id).Scan(&artwork.ID, &artwork.Title, &artwork.Description, &artwork.Category,
		&artwork.Label, &artwork.Price, &artwork.ImageURL)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	return artwork, nil
}

func (r *ArtworkRepository) List(ctx context.Context) ([]domain.Artwork, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, description, category, label, price, image_url
		FROM artworks
		ORDER BY title
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	artworks := []domain.Artwork{}
	for rows.Next() {
		var artwork domain.Artwork
		if err := rows.Scan(&artwork.ID, &artwork.Title, &artwork.Description, &artwork.Category,
			&artwork.Label, &artwork.Price, &artwork.ImageURL); err != nil {
			return nil, err
		}
		artworks = append(artworks, artwork)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return artworks, nil
}

// Update edits a listing. Price changes affect future orders only; orders
// already placed keep the price frozen at their creation.
func (r *ArtworkRepository) Update(ctx context.Context, artwork *domain.Artwork) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE artworks
		SET title = $2, description = $3, category = $4, label = $5, price = $6, image_url = $7
		WHERE id = $1
	`, artwork.ID, artwork.Title, artwork.Description, artwork.Category,
		artwork.Label, artwork.Price, artwork.ImageURL)
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

// Delete removes a listing. The FK cascade drops any cart lines holding the
// artwork, so the affected carts' totals are re-derived in the same
// transaction; the cart rows are locked first to serialize with concurrent
// cart mutations.
func (r *ArtworkRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT c.id
		FROM carts c
		JOIN cart_items ci ON ci.cart_id = c.id
		WHERE ci.artwork_id = $1
		FOR UPDATE OF c
	`, id)
	if err != nil {
		return err
	}

	var cartIDs []string
	for rows.Next() {
		var cartID string
		if err := rows.Scan(&cartID); err != nil {
			_ = rows.Close()
			return err
		}
		cartIDs = append(cartIDs, cartID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	result, err := tx.ExecContext(ctx, `DELETE FROM artworks WHERE id = $1`, id)
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

	for _, cartID := range cartIDs {
		if err := cart.RecomputeTotals(ctx, tx, cartID); err != nil {
			return err
		}
	}

	return tx.Commit()
}
