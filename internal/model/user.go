package model

import (
	"errors"
	"strings"
	"time"
)

// Role is the closed set of roles a user can hold.  The string values are
// what gets persisted in users.role and embedded in the token "role" claim.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleManager  Role = "MANAGER"
	RoleCustomer Role = "CUSTOMER"
)

var (
	// ErrInvalidRole is returned when a role string is not one of the known roles.
	ErrInvalidRole = errors.New("role must be one of: ADMIN, MANAGER, CUSTOMER")
	// ErrTenantRequired is returned when a MANAGER is created or updated without a tenant.
	ErrTenantRequired = errors.New("tenant id is required for manager role")
)

// Roles lists every known role in a stable order.
func Roles() []Role { return []Role{RoleAdmin, RoleManager, RoleCustomer} }

// ParseRole converts a user supplied string into a Role.  Matching is case
// insensitive and surrounding whitespace is ignored.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleManager, RoleCustomer:
		return r, nil
	}
	return "", ErrInvalidRole
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// ValidateRoleTenant applies the role/tenant rule shared by create and update:
// a MANAGER must belong to a tenant, ADMIN and CUSTOMER never do.  The returned
// pointer is the tenant reference that should be persisted; for ADMIN and
// CUSTOMER any supplied tenant is dropped.
func ValidateRoleTenant(role Role, tenantID *uint64) (*uint64, error) {
	switch role {
	case RoleManager:
		if tenantID == nil || *tenantID == 0 {
			return nil, ErrTenantRequired
		}
		id := *tenantID
		return &id, nil
	case RoleAdmin, RoleCustomer:
		return nil, nil
	default:
		return nil, ErrInvalidRole
	}
}

// User mirrors the `users` table.  PasswordHash is never serialized.
type User struct {
	ID           uint64    `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	TenantID     *uint64   `json:"tenantId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NormalizeEmail lower-cases and trims an email address before it is stored
// or looked up.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserFilter narrows a user listing.
type UserFilter struct {
	Search string
	Role   Role
	Limit  int
	Offset int
}
