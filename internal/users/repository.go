package users

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/artmarket/backend/internal/domain"
)

var (
	ErrAlreadyVerified = errors.New("user is already verified")
	ErrCodeMismatch    = errors.New("verification code does not match")
	ErrCodeExpired     = errors.New("verification code has expired")
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, name, email string) (*domain.User, error) {
	user := &domain.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, verified, created_at)
		VALUES ($1, $2, $3, FALSE, $4)
	`, user.ID, user.Name, user.Email, user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, domain.ErrConflict
		}
		return nil, err
	}

	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.get(ctx, `id`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.get(ctx, `email`, email)
}

func (r *UserRepository) get(ctx context.Context, column, value string) (*domain.User, error) {
	user := &domain.User{}

	query := `SELECT id, name, email, verified, created_at FROM users WHERE ` + column + ` = $1`
	err := r.db.QueryRowContext(ctx, query, value).
		Scan(&user.ID, &user.Name, &user.Email, &user.Verified, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	return user, nil
}

// IssueCode creates or rotates the user's verification code and returns the
// raw code for delivery. Only the hash is stored.
func (r *UserRepository) IssueCode(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO verification_codes (id, user_id, code_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id)
		DO UPDATE SET code_hash = EXCLUDED.code_hash, expires_at = EXCLUDED.expires_at
	`, uuid.New().String(), userID, hashCode(code), time.Now().UTC().Add(ttl))
	if err != nil {
		return "", err
	}

	return code, nil
}

// Verify checks the submitted code and marks the user verified, removing the
// code in the same transaction.
func (r *UserRepository) Verify(ctx context.Context, email, code string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		userID    string
		verified  bool
		codeHash  sql.NullString
		expiresAt sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `
		SELECT u.id, u.verified, vc.code_hash, vc.expires_at
		FROM users u
		LEFT JOIN verification_codes vc ON vc.user_id = u.id
		WHERE u.email = $1
		FOR UPDATE OF u
	`, email).Scan(&userID, &verified, &codeHash, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.ErrNotFound
		}
		return err
	}

	if verified {
		return ErrAlreadyVerified
	}
	if !codeHash.Valid {
		return domain.ErrNotFound
	}
	if time.Now().UTC().After(expiresAt.Time) {
		return ErrCodeExpired
	}
	if codeHash.String != hashCode(code) {
		return ErrCodeMismatch
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET verified = TRUE WHERE id = $1`, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM verification_codes WHERE user_id = $1`, userID); err != nil {
		return err
	}

	return tx.Commit()
}

// ExpiredUnverified returns ids of accounts whose verification code expired
// before now, that were created before cutoff, and that are still
// unverified. Candidates for the sweeper.
func (r *UserRepository) ExpiredUnverified(ctx context.Context, now, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id
		FROM users u
		JOIN verification_codes vc ON vc.user_id = u.id
		WHERE vc.expires_at < $1
		  AND u.created_at < $2
		  AND u.verified = FALSE
		ORDER BY u.created_at
	`, now, cutoff)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

// PurgeUnverified deletes one unverified account; the verification code goes
// with it through the FK cascade. The verified = FALSE guard re-checks the
// sweep condition at delete time, so a verification that lands between the
// sweep's query and this delete wins and the account survives. Returns
// whether the account was deleted.
func (r *UserRepository) PurgeUnverified(ctx context.Context, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM users WHERE id = $1 AND verified = FALSE
	`, userID)
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func generateCode() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	n := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return fmt.Sprintf("%06d", n%1000000), nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
