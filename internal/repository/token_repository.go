package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/auth-service/internal/database"
	"github.com/iliyamo/auth-service/internal/model"
)

// TokenRepo persists refresh token rows.  A row's existence is what makes the
// matching refresh token valid; revocation is deletion.
type TokenRepo struct{ DB database.DBTX }

func NewTokenRepo(db database.DBTX) *TokenRepo { return &TokenRepo{DB: db} }

// Create inserts a refresh token row for userID and returns it with the
// generated id.
func (r *TokenRepo) Create(ctx context.Context, userID uint64, expiresAt time.Time) (model.RefreshToken, error) {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, expires_at, created_at, updated_at) VALUES (?,?,?,?)",
		userID, expiresAt.UTC(), now, now)
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("insert refresh token: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("refresh token id: %w", err)
	}
	return model.RefreshToken{
		ID:        uint64(id),
		UserID:    userID,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// FindByIDWithUser loads a refresh token row together with its owner.
// ErrNotFound is returned when the row does not exist.
func (r *TokenRepo) FindByIDWithUser(ctx context.Context, id uint64) (model.RefreshToken, error) {
	var (
		t      model.RefreshToken
		u      model.User
		tenant sql.NullInt64
		role   string
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT t.id, t.user_id, t.expires_at, t.created_at, t.updated_at,
		       u.id, u.first_name, u.last_name, u.email, u.password_hash, u.role, u.tenant_id, u.created_at, u.updated_at
		FROM refresh_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.id = ? LIMIT 1`, id).Scan(
		&t.ID, &t.UserID, &t.ExpiresAt, &t.CreatedAt, &t.UpdatedAt,
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &role, &tenant, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RefreshToken{}, ErrNotFound
		}
		return model.RefreshToken{}, fmt.Errorf("find refresh token: %w", err)
	}
	u.Role = model.Role(role)
	u.TenantID = nullToPtr(tenant)
	t.User = &u
	return t, nil
}

// Delete removes the row with the given id.  Deleting a missing row is not an
// error; the boolean reports whether a row was actually removed.
func (r *TokenRepo) Delete(ctx context.Context, id uint64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE id=?", id)
	if err != nil {
		return false, fmt.Errorf("delete refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete refresh token: rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteAllForUser removes every refresh token row owned by userID.
func (r *TokenRepo) DeleteAllForUser(ctx context.Context, userID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id=?", userID)
	if err != nil {
		return 0, fmt.Errorf("delete user refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpired purges rows whose expiry is before now.  Expired rows are
// already rejected at read time; this only reclaims space.
func (r *TokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at < ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

// CountForUser returns the number of rows owned by userID.
func (r *TokenRepo) CountForUser(ctx context.Context, userID uint64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM refresh_tokens WHERE user_id=?", userID).Scan(&n)
	return n, err
}

// Count returns the total number of refresh token rows.
func (r *TokenRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM refresh_tokens").Scan(&n)
	return n, err
}

// WithinTx runs fn with a TokenRepo bound to a single transaction.  When the
// repo is already bound to a transaction fn runs on it directly.
func (r *TokenRepo) WithinTx(ctx context.Context, fn func(*TokenRepo) error) error {
	db, ok := r.DB.(*sql.DB)
	if !ok {
		return fn(r)
	}
	return database.WithTx(ctx, db, func(tx *sql.Tx) error {
		return fn(NewTokenRepo(tx))
	})
}

func nullToPtr(v sql.NullInt64) *uint64 {
	if !v.Valid {
		return nil
	}
	id := uint64(v.Int64)
	return &id
}

func ptrToNull(v *uint64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
