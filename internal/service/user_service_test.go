package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/auth-service/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestUserServiceCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := f.customer(t, " Grace@Example.com ")
	assert.Equal(t, "grace@example.com", u.Email)
	assert.Equal(t, model.RoleCustomer, u.Role)
	assert.NotEqual(t, "Sup3r$ecret", u.PasswordHash)

	_, err := f.users.Create(ctx, CreateUserInput{Email: "grace@example.com", Password: "x"})
	assert.ErrorIs(t, err, ErrEmailExists)

	_, err = f.users.Create(ctx, CreateUserInput{Email: "m@example.com", Password: "x", Role: "MANAGER"})
	assert.ErrorIs(t, err, ErrTenantRequired)

	_, err = f.users.Create(ctx, CreateUserInput{Email: "m@example.com", Password: "x", Role: "MANAGER", TenantID: ptr(uint64(99))})
	assert.ErrorIs(t, err, ErrTenantNotFound)

	_, err = f.users.Create(ctx, CreateUserInput{Email: "m@example.com", Password: "x", Role: "OWNER"})
	assert.ErrorIs(t, err, ErrInvalidRole)

	tenant, err := f.tenants.Create(ctx, "Acme", "1 Main St")
	require.NoError(t, err)
	m, err := f.users.Create(ctx, CreateUserInput{Email: "m@example.com", Password: "x", Role: "manager", TenantID: &tenant.ID})
	require.NoError(t, err)
	require.NotNil(t, m.TenantID)
	assert.Equal(t, tenant.ID, *m.TenantID)

	c, err := f.users.Create(ctx, CreateUserInput{Email: "c@example.com", Password: "x", TenantID: &tenant.ID})
	require.NoError(t, err)
	assert.Nil(t, c.TenantID, "customers never carry a tenant")
}

func TestUserServiceAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.customer(t, "grace@example.com")

	got, err := f.users.Authenticate(ctx, "GRACE@example.com", "Sup3r$ecret")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = f.users.Authenticate(ctx, "grace@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.users.Authenticate(ctx, "nobody@example.com", "Sup3r$ecret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserServiceUpdateRoleTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.customer(t, "grace@example.com")

	_, err := f.users.Update(ctx, u.ID, UpdateUserInput{Role: ptr("MANAGER")})
	assert.ErrorIs(t, err, ErrTenantRequired)

	tenant, err := f.tenants.Create(ctx, "Acme", "")
	require.NoError(t, err)
	_, err = f.tokens.IssueRefreshToken(ctx, u)
	require.NoError(t, err)

	m, err := f.users.Update(ctx, u.ID, UpdateUserInput{Role: ptr("MANAGER"), TenantID: &tenant.ID, SetTenant: true})
	require.NoError(t, err)
	assert.Equal(t, model.RoleManager, m.Role)
	require.NotNil(t, m.TenantID)

	n, err := f.repo.CountForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "scope change revokes refresh tokens")

	_, err = f.users.Update(ctx, u.ID, UpdateUserInput{SetTenant: true})
	assert.ErrorIs(t, err, ErrTenantRequired, "manager cannot drop its tenant")

	back, err := f.users.Update(ctx, u.ID, UpdateUserInput{Role: ptr("CUSTOMER")})
	require.NoError(t, err)
	assert.Nil(t, back.TenantID)

	_, err = f.tokens.IssueRefreshToken(ctx, back)
	require.NoError(t, err)
	renamed, err := f.users.Update(ctx, u.ID, UpdateUserInput{FirstName: ptr("Amazing")})
	require.NoError(t, err)
	assert.Equal(t, "Amazing", renamed.FirstName)
	n, err = f.repo.CountForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "profile edits keep sessions")

	_, err = f.users.Update(ctx, u.ID+100, UpdateUserInput{FirstName: ptr("x")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserServiceUpdateDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.customer(t, "a@example.com")
	b := f.customer(t, "b@example.com")

	_, err := f.users.Update(ctx, b.ID, UpdateUserInput{Email: ptr("A@example.com")})
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestUserServiceDeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.customer(t, "grace@example.com")

	raw, err := f.tokens.IssueRefreshToken(ctx, u)
	require.NoError(t, err)
	p, err := f.tokens.VerifyRefreshTokenClaims(raw)
	require.NoError(t, err)

	require.NoError(t, f.users.Delete(ctx, u.ID))
	assert.True(t, f.tokens.IsRevoked(ctx, p))
	assert.ErrorIs(t, f.users.Delete(ctx, u.ID), ErrNotFound)
}

func TestUserServiceListClampsPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, e := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		f.customer(t, e)
	}
	users, total, err := f.users.List(ctx, model.UserFilter{Limit: 1000, Offset: -5})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, users, 3)

	users, total, err = f.users.List(ctx, model.UserFilter{Search: "b@"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "b@example.com", users[0].Email)
}

func TestEnsureAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.users.EnsureAdmin(ctx, "Root", "User", "root@example.com", "R00t!pass")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.users.EnsureAdmin(ctx, "Root", "User", "root@example.com", "R00t!pass")
	require.NoError(t, err)
	assert.False(t, created)

	admin, err := f.users.Authenticate(ctx, "root@example.com", "R00t!pass")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, admin.Role)
	assert.Nil(t, admin.TenantID)
}

func TestTenantService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acme, err := f.tenants.Create(ctx, " Acme ", "1 Main St")
	require.NoError(t, err)
	assert.Equal(t, "Acme", acme.Name)
	globex, err := f.tenants.Create(ctx, "Globex", "")
	require.NoError(t, err)

	all, err := f.tenants.List(ctx, model.AuthPayload{Subject: 1, Role: model.RoleCustomer}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	m, err := f.users.Create(ctx, CreateUserInput{Email: "m@example.com", Password: "x", Role: "MANAGER", TenantID: &globex.ID})
	require.NoError(t, err)
	scoped, err := f.tenants.List(ctx, model.AuthPayload{Subject: m.ID, Role: model.RoleManager}, 0, 0)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, globex.ID, scoped[0].ID)

	updated, err := f.tenants.Update(ctx, acme.ID, nil, ptr("2 Side St"))
	require.NoError(t, err)
	assert.Equal(t, "Acme", updated.Name)
	assert.Equal(t, "2 Side St", updated.Address)

	assert.ErrorIs(t, f.tenants.Delete(ctx, globex.ID), ErrTenantInUse)
	require.NoError(t, f.tenants.Delete(ctx, acme.ID))
	_, err = f.tenants.Get(ctx, acme.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.tenants.Delete(ctx, acme.ID), ErrNotFound)
}
