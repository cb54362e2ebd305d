package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/iliyamo/auth-service/internal/database"
	"github.com/iliyamo/auth-service/internal/model"
)

// TenantRepo persists tenants.
type TenantRepo struct{ DB database.DBTX }

func NewTenantRepo(db database.DBTX) *TenantRepo { return &TenantRepo{DB: db} }

// Create inserts a tenant and returns its ID.
func (r *TenantRepo) Create(ctx context.Context, name, address string) (uint64, error) {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO tenants (name, address, created_at, updated_at) VALUES (?,?,?,?)",
		name, address, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert tenant: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("tenant id: %w", err)
	}
	return uint64(id), nil
}

// GetByID fetches a tenant by id or returns ErrNotFound.
func (r *TenantRepo) GetByID(ctx context.Context, id uint64) (model.Tenant, error) {
	var t model.Tenant
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, name, address, created_at, updated_at FROM tenants WHERE id=? LIMIT 1", id).
		Scan(&t.ID, &t.Name, &t.Address, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Tenant{}, ErrNotFound
	}
	if err != nil {
		return model.Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// List returns tenants ordered by id.  A non-positive limit returns all rows
// from offset onwards.
func (r *TenantRepo) List(ctx context.Context, limit, offset int) ([]model.Tenant, error) {
	q := "SELECT id, name, address, created_at, updated_at FROM tenants ORDER BY id ASC"
	var args []any
	if limit > 0 || offset > 0 {
		if limit <= 0 {
			// both MySQL and SQLite require a LIMIT before OFFSET
			limit = math.MaxInt32
		}
		q += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tenants := []model.Tenant{}
	for rows.Next() {
		var t model.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Address, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return tenants, nil
}

// Update overwrites name and address.
func (r *TenantRepo) Update(ctx context.Context, t model.Tenant) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tenants SET name=?, address=?, updated_at=? WHERE id=?",
		t.Name, t.Address, time.Now().UTC(), t.ID)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a tenant.
func (r *TenantRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM tenants WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
