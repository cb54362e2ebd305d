package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/utils"
)

// CreateUserInput is the data needed to create a user.  An empty Role means
// CUSTOMER.
type CreateUserInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      string
	TenantID  *uint64
}

// UpdateUserInput is a partial update; nil fields keep their stored value.
// TenantID is only consulted when SetTenant is true so a patch can clear it.
type UpdateUserInput struct {
	FirstName *string
	LastName  *string
	Email     *string
	Role      *string
	TenantID  *uint64
	SetTenant bool
}

// UserService is the credential store seen from the HTTP layer.
type UserService struct {
	users      *repository.UserRepo
	tenants    *repository.TenantRepo
	tokens     *TokenService
	bcryptCost int
	logger     *slog.Logger
}

func NewUserService(users *repository.UserRepo, tenants *repository.TenantRepo, tokens *TokenService, bcryptCost int, logger *slog.Logger) *UserService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{users: users, tenants: tenants, tokens: tokens, bcryptCost: bcryptCost, logger: logger}
}

// Create validates the role/tenant pair, hashes the password and stores the user.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (model.User, error) {
	role := model.RoleCustomer
	if strings.TrimSpace(in.Role) != "" {
		r, err := model.ParseRole(in.Role)
		if err != nil {
			return model.User{}, ErrInvalidRole
		}
		role = r
	}
	tenantID, err := s.checkRoleTenant(ctx, role, in.TenantID)
	if err != nil {
		return model.User{}, err
	}

	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		return model.User{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := model.User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        model.NormalizeEmail(in.Email),
		PasswordHash: hash,
		Role:         role,
		TenantID:     tenantID,
	}
	id, err := s.users.Create(ctx, u)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, err
	}
	return s.FindByID(ctx, id)
}

// Authenticate checks an email/password pair.  Unknown email and wrong
// password are indistinguishable to the caller.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		utils.BurnPasswordCheck(password)
		return model.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return model.User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *UserService) FindByID(ctx context.Context, id uint64) (model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// Update merges in over the stored user and re-applies the role/tenant rule
// to the result.  A change of role or tenant revokes every refresh token of
// the user so the new scope takes effect on the next login.
func (s *UserService) Update(ctx context.Context, id uint64, in UpdateUserInput) (model.User, error) {
	cur, err := s.FindByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	next := cur
	if in.FirstName != nil {
		next.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		next.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Email != nil {
		next.Email = model.NormalizeEmail(*in.Email)
	}
	if in.Role != nil {
		r, err := model.ParseRole(*in.Role)
		if err != nil {
			return model.User{}, ErrInvalidRole
		}
		next.Role = r
	}
	if in.SetTenant {
		next.TenantID = in.TenantID
	}
	next.TenantID, err = s.checkRoleTenant(ctx, next.Role, next.TenantID)
	if err != nil {
		return model.User{}, err
	}

	if err := s.users.Update(ctx, next); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return model.User{}, ErrEmailExists
		case errors.Is(err, repository.ErrNotFound):
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}

	if cur.Role != next.Role || !sameTenant(cur.TenantID, next.TenantID) {
		if err := s.tokens.DeleteAllRefreshRecordsForUser(ctx, id); err != nil {
			return model.User{}, fmt.Errorf("revoke tokens after scope change: %w", err)
		}
	}
	return s.FindByID(ctx, id)
}

// Delete removes a user; the schema cascades the delete to refresh tokens.
func (s *UserService) Delete(ctx context.Context, id uint64) error {
	err := s.users.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// List returns one page of users and the total number of matches.
func (s *UserService) List(ctx context.Context, f model.UserFilter) ([]model.User, int, error) {
	if f.Limit <= 0 {
		f.Limit = 10
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.users.List(ctx, f)
}

// EnsureAdmin creates an ADMIN with the given credentials unless a user with
// that email already exists.  It reports whether a user was created.
func (s *UserService) EnsureAdmin(ctx context.Context, firstName, lastName, email, password string) (bool, error) {
	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	u, err := s.Create(ctx, CreateUserInput{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Password:  password,
		Role:      string(model.RoleAdmin),
	})
	if err != nil {
		return false, err
	}
	s.logger.Info("seeded admin user", slog.Uint64("user_id", u.ID), slog.String("email", u.Email))
	return true, nil
}

func (s *UserService) checkRoleTenant(ctx context.Context, role model.Role, tenantID *uint64) (*uint64, error) {
	tid, err := model.ValidateRoleTenant(role, tenantID)
	if err != nil {
		return nil, err
	}
	if tid == nil {
		return nil, nil
	}
	if _, err := s.tenants.GetByID(ctx, *tid); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return tid, nil
}

func sameTenant(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
