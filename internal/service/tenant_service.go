package service

import (
	"context"
	"errors"
	"strings"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/repository"
)

// TenantService manages tenants and applies tenant scoping to listings.
type TenantService struct {
	tenants *repository.TenantRepo
	users   *repository.UserRepo
}

func NewTenantService(tenants *repository.TenantRepo, users *repository.UserRepo) *TenantService {
	return &TenantService{tenants: tenants, users: users}
}

func (s *TenantService) Create(ctx context.Context, name, address string) (model.Tenant, error) {
	id, err := s.tenants.Create(ctx, strings.TrimSpace(name), strings.TrimSpace(address))
	if err != nil {
		return model.Tenant{}, err
	}
	return s.Get(ctx, id)
}

// List returns tenants visible to the caller.  A MANAGER sees only the
// tenant they belong to; every other role sees all tenants.
func (s *TenantService) List(ctx context.Context, caller model.AuthPayload, limit, offset int) ([]model.Tenant, error) {
	if caller.Role != model.RoleManager {
		return s.tenants.List(ctx, limit, offset)
	}
	u, err := s.users.GetByID(ctx, caller.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAuthRequired
		}
		return nil, err
	}
	if u.TenantID == nil || offset > 0 {
		return []model.Tenant{}, nil
	}
	t, err := s.tenants.GetByID(ctx, *u.TenantID)
	if errors.Is(err, repository.ErrNotFound) {
		return []model.Tenant{}, nil
	}
	if err != nil {
		return nil, err
	}
	return []model.Tenant{t}, nil
}

func (s *TenantService) Get(ctx context.Context, id uint64) (model.Tenant, error) {
	t, err := s.tenants.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Tenant{}, ErrNotFound
	}
	return t, err
}

// Update overwrites the fields that are non-nil.
func (s *TenantService) Update(ctx context.Context, id uint64, name, address *string) (model.Tenant, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return model.Tenant{}, err
	}
	if name != nil {
		t.Name = strings.TrimSpace(*name)
	}
	if address != nil {
		t.Address = strings.TrimSpace(*address)
	}
	if err := s.tenants.Update(ctx, t); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Tenant{}, ErrNotFound
		}
		return model.Tenant{}, err
	}
	return s.Get(ctx, id)
}

// Delete removes a tenant that no user references.
func (s *TenantService) Delete(ctx context.Context, id uint64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	n, err := s.users.CountByTenant(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrTenantInUse
	}
	err = s.tenants.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
