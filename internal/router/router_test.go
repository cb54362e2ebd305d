package router

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/database/dbtest"
	"github.com/iliyamo/auth-service/internal/handler"
	"github.com/iliyamo/auth-service/internal/httperr"
	"github.com/iliyamo/auth-service/internal/logging"
	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/queue"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/service"
	"github.com/iliyamo/auth-service/internal/utils"
)

var (
	keysOnce sync.Once
	privPEM  []byte
	pubPEM   []byte
)

func testKeys(t *testing.T) ([]byte, []byte) {
	t.Helper()
	keysOnce.Do(func() {
		var err error
		privPEM, pubPEM, err = utils.GenerateKeyPair(2048)
		require.NoError(t, err)
	})
	return privPEM, pubPEM
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.AuthEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.AuthEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) has(typ queue.EventType) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ev := range p.events {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

type testApp struct {
	e      *echo.Echo
	db     *sql.DB
	users  *service.UserService
	tokens *service.TokenService
	abuse  *middleware.AbuseDetector
	events *recordingPublisher
}

func newTestApp(t *testing.T, opts ...func(*config.Config)) testApp {
	t.Helper()
	privRaw, pubRaw := testKeys(t)
	priv, err := utils.ParsePrivateKey(string(privRaw))
	require.NoError(t, err)
	pub, err := utils.ParsePublicKey(string(pubRaw))
	require.NoError(t, err)

	logger := logging.Discard()
	db := dbtest.New(t)
	userRepo := repository.NewUserRepo(db)
	tenantRepo := repository.NewTenantRepo(db)
	tokenRepo := repository.NewTokenRepo(db)

	tokens := service.NewTokenService(service.TokenConfig{PrivateKey: priv, PublicKey: pub}, tokenRepo, logger)
	users := service.NewUserService(userRepo, tenantRepo, tokens, 4, logger)
	tenants := service.NewTenantService(tenantRepo, userRepo)

	events := &recordingPublisher{}
	abuse := middleware.NewAbuseDetector(middleware.DefaultAbuseConfig(), events, logger)

	cfg := config.Config{
		Env:         "test",
		FrontendURL: "http://localhost:3000",
		RateLimit: config.RateLimitConfig{
			LoginLimit:  1000,
			LoginWindow: time.Minute,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cookies := handler.CookieSettings{AccessTTL: tokens.AccessTTL(), RefreshTTL: tokens.RefreshTTL()}

	e := New(Deps{
		Config:  cfg,
		Logger:  logger,
		Tokens:  tokens,
		Abuse:   abuse,
		Auth:    handler.NewAuthHandler(users, tokens, cookies, events, logger),
		JWKS:    handler.NewJWKSHandler(service.NewJWKSProvider(string(pubRaw)), logger),
		Users:   handler.NewUserHandler(users, logger),
		Tenants: handler.NewTenantHandler(tenants, nil, logger),
		Health:  &handler.HealthHandler{DB: db},
	})
	return testApp{e: e, db: db, users: users, tokens: tokens, abuse: abuse, events: events}
}

func (a testApp) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, ck := range cookies {
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	return a.serve(req)
}

func (a testApp) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

// forwardedFrom builds a request that claims, through every common
// forwarding header, to come from client.
func forwardedFrom(method, path, client string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(echo.HeaderXForwardedFor, client)
	req.Header.Set(echo.HeaderXRealIP, client)
	req.Header.Set("True-Client-IP", client)
	return req
}

func cookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) httperr.Body {
	t.Helper()
	var body httperr.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Errors)
	return body
}

func (a testApp) login(t *testing.T, email, password string) (*http.Cookie, *http.Cookie) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return cookie(t, rec, middleware.AccessCookie), cookie(t, rec, middleware.RefreshCookie)
}

func (a testApp) admin(t *testing.T) (*http.Cookie, *http.Cookie) {
	t.Helper()
	_, err := a.users.EnsureAdmin(context.Background(), "Ada", "Lovelace", "admin@example.com", "Adm1n$ecret")
	require.NoError(t, err)
	return a.login(t, "admin@example.com", "Adm1n$ecret")
}

const password = "Sup3r$ecret"

func TestRegisterRefreshLogoutScenario(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "a@b.co", "password": password})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID uint64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)

	access := cookie(t, rec, middleware.AccessCookie)
	refresh := cookie(t, rec, middleware.RefreshCookie)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
	assert.Equal(t, 3600, access.MaxAge)
	assert.Equal(t, 31536000, refresh.MaxAge)

	rec = app.do(t, http.MethodPost, "/auth/refresh", nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	access2 := cookie(t, rec, middleware.AccessCookie)
	refresh2 := cookie(t, rec, middleware.RefreshCookie)
	assert.NotEqual(t, refresh.Value, refresh2.Value)

	rec = app.do(t, http.MethodPost, "/auth/refresh", nil, refresh)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a rotated refresh token is single use")

	rec = app.do(t, http.MethodPost, "/auth/logout", nil, access2, refresh2)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"message":"Logged out successfully"}`, rec.Body.String())
	assert.Less(t, cookie(t, rec, middleware.AccessCookie).MaxAge, 0)
	assert.Less(t, cookie(t, rec, middleware.RefreshCookie).MaxAge, 0)

	rec = app.do(t, http.MethodPost, "/auth/refresh", nil, refresh2)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Eventually(t, func() bool {
		return app.events.has(queue.EventUserRegistered) &&
			app.events.has(queue.EventTokenRotated) &&
			app.events.has(queue.EventUserLoggedOut)
	}, time.Second, 10*time.Millisecond)
}

func TestLogoutIsIdempotent(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "idem@example.com", "password": password})
	require.Equal(t, http.StatusCreated, rec.Code)
	access := cookie(t, rec, middleware.AccessCookie)
	refresh := cookie(t, rec, middleware.RefreshCookie)

	for i := 0; i < 2; i++ {
		rec = app.do(t, http.MethodPost, "/auth/logout", nil, access, refresh)
		assert.Equal(t, http.StatusOK, rec.Code, "attempt %d", i+1)
	}
}

func TestUnauthorizedResponseShape(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodGet, "/auth/self", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("Retry-After"))
	assert.Equal(t, "true", rec.Header().Get("X-Auth-Error"))
	body := errorBody(t, rec)
	assert.Equal(t, "UnauthorizedError", body.Errors[0].Type)

	rec = app.do(t, http.MethodGet, "/auth/self", nil, &http.Cookie{Name: middleware.AccessCookie, Value: "not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSelfReturnsProfile(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodPost, "/auth/register", map[string]string{
		"firstName": "Grace", "lastName": "Hopper", "email": "Grace@Example.com", "password": password,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = app.do(t, http.MethodGet, "/auth/self", nil, cookie(t, rec, middleware.AccessCookie))
	require.Equal(t, http.StatusOK, rec.Code)
	var u model.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, "grace@example.com", u.Email)
	assert.Equal(t, model.RoleCustomer, u.Role)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestRegisterValidation(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "weak@example.com", "password": "password"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := errorBody(t, rec)
	assert.Equal(t, "field", body.Errors[0].Type)
	assert.Equal(t, "password", body.Errors[0].Path)
	assert.Equal(t, "body", body.Errors[0].Location)

	rec = app.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "not-an-email", "password": password})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "boss@example.com", "password": password, "role": "admin"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "mgr@example.com", "password": password, "role": "MANAGER"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "a manager needs a tenant")

	rec = app.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "dup@example.com", "password": password})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = app.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "DUP@example.com", "password": password})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "login@example.com", "password": password})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = app.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "login@example.com", "password": "Wr0ng$pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = app.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "nobody@example.com", "password": password})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	app.login(t, "login@example.com", password)
	assert.Eventually(t, func() bool { return app.events.has(queue.EventUserLoggedIn) }, time.Second, 10*time.Millisecond)
}

func TestAbuseDetectorBlocksAfterRepeatedUnauthorized(t *testing.T) {
	app := newTestApp(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	var mu sync.Mutex
	app.abuse.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})

	for i := 0; i < 20; i++ {
		rec := app.do(t, http.MethodGet, "/auth/self", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "request %d", i+1)
	}

	rec := app.do(t, http.MethodGet, "/auth/self", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Positive(t, retry)
	body := errorBody(t, rec)
	assert.Equal(t, "InfiniteLoopDetected", body.Errors[0].Type)
	assert.Equal(t, "loop-detection", body.Errors[0].Location)

	rec = app.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "the block covers every route")

	mu.Lock()
	now = base.Add(5*time.Minute + time.Second)
	mu.Unlock()
	rec = app.do(t, http.MethodGet, "/auth/self", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Eventually(t, func() bool { return app.events.has(queue.EventAbuseBlocked) }, time.Second, 10*time.Millisecond)
}

func TestJWKSIsStable(t *testing.T) {
	app := newTestApp(t)

	first := app.do(t, http.MethodGet, "/.well-known/jwks.json", nil)
	require.Equal(t, http.StatusOK, first.Code)
	second := app.do(t, http.MethodGet, "/.well-known/jwks.json", nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())

	assert.Equal(t, "public, max-age=3600, immutable", second.Header().Get(echo.HeaderCacheControl))
	assert.Equal(t, "*", second.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, `W/"jwks-true"`, second.Header().Get("ETag"))

	var set service.JWKS
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &set))
	require.Len(t, set.Keys, 1)
	assert.Equal(t, "RSA", set.Keys[0].Kty)
	assert.Equal(t, "RS256", set.Keys[0].Alg)
	assert.Equal(t, "sig", set.Keys[0].Use)
	assert.Equal(t, service.KeyID, set.Keys[0].Kid)
	assert.Equal(t, "AQAB", set.Keys[0].E)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"connected"`)

	require.NoError(t, app.db.Close())
	rec = app.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUserManagementRequiresAdmin(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "cust@example.com", "password": password})
	require.Equal(t, http.StatusCreated, rec.Code)
	access := cookie(t, rec, middleware.AccessCookie)

	rec = app.do(t, http.MethodGet, "/users", nil, access)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = app.do(t, http.MethodGet, "/users", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminManagesUsersAndTenants(t *testing.T) {
	app := newTestApp(t)
	adminAccess, _ := app.admin(t)

	rec := app.do(t, http.MethodPost, "/tenants", map[string]string{"name": "Acme", "address": "1 Main St"}, adminAccess)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tenant struct {
		ID uint64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tenant))

	rec = app.do(t, http.MethodPost, "/users", map[string]any{
		"firstName": "Max", "lastName": "Mgr", "email": "max@example.com", "password": password, "role": "MANAGER",
	}, adminAccess)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "manager without tenant")

	rec = app.do(t, http.MethodPost, "/users", map[string]any{
		"firstName": "Max", "lastName": "Mgr", "email": "max@example.com", "password": password,
		"role": "MANAGER", "tenantId": tenant.ID,
	}, adminAccess)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var manager struct {
		ID uint64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &manager))

	rec = app.do(t, http.MethodGet, "/users?limit=1&page=2", nil, adminAccess)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page struct {
		Data       []model.User `json:"data"`
		Pagination struct {
			Total       int `json:"total"`
			CurrentPage int `json:"currentPage"`
			PerPage     int `json:"perPage"`
			TotalPages  int `json:"totalPages"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 2, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.CurrentPage)
	assert.Equal(t, 1, page.Pagination.PerPage)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	path := "/users/" + strconv.FormatUint(manager.ID, 10)
	rec = app.do(t, http.MethodPatch, path, map[string]any{"tenantId": nil}, adminAccess)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "clearing a manager's tenant")

	rec = app.do(t, http.MethodDelete, "/tenants/"+strconv.FormatUint(tenant.ID, 10), nil, adminAccess)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "tenant still has users")

	// the manager only sees their own tenant
	mgrAccess, mgrRefresh := app.login(t, "max@example.com", password)
	rec = app.do(t, http.MethodPost, "/tenants", map[string]string{"name": "Other", "address": "2 Side St"}, adminAccess)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = app.do(t, http.MethodGet, "/tenants", nil, mgrAccess)
	require.Equal(t, http.StatusOK, rec.Code)
	var visible []model.Tenant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &visible))
	require.Len(t, visible, 1)
	assert.Equal(t, tenant.ID, visible[0].ID)

	rec = app.do(t, http.MethodPost, "/tenants", map[string]string{"name": "X", "address": "Y"}, mgrAccess)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// demoting the manager revokes their sessions
	rec = app.do(t, http.MethodPatch, path, map[string]any{"role": "CUSTOMER"}, adminAccess)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated model.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, model.RoleCustomer, updated.Role)
	assert.Nil(t, updated.TenantID)
	rec = app.do(t, http.MethodPost, "/auth/refresh", nil, mgrRefresh)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, http.MethodGet, "/tenants/"+strconv.FormatUint(tenant.ID, 10), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = app.do(t, http.MethodPatch, "/tenants/"+strconv.FormatUint(tenant.ID, 10), map[string]string{"name": "Acme Corp"}, adminAccess)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Acme Corp")
	rec = app.do(t, http.MethodDelete, "/tenants/"+strconv.FormatUint(tenant.ID, 10), nil, adminAccess)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = app.do(t, http.MethodGet, "/tenants/"+strconv.FormatUint(tenant.ID, 10), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeletingUserRevokesRefreshTokens(t *testing.T) {
	app := newTestApp(t)
	adminAccess, _ := app.admin(t)

	rec := app.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "gone@example.com", "password": password})
	require.Equal(t, http.StatusCreated, rec.Code)
	refresh := cookie(t, rec, middleware.RefreshCookie)
	var created struct {
		ID uint64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = app.do(t, http.MethodDelete, "/users/"+strconv.FormatUint(created.ID, 10), nil, adminAccess)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = app.do(t, http.MethodPost, "/auth/refresh", nil, refresh)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, http.MethodGet, "/users/"+strconv.FormatUint(created.ID, 10), nil, adminAccess)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = app.do(t, http.MethodGet, "/users/abc", nil, adminAccess)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConcurrentRefreshRotatesOnce(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "race@example.com", "password": password})
	require.Equal(t, http.StatusCreated, rec.Code)
	refresh := cookie(t, rec, middleware.RefreshCookie)

	const callers = 8
	codes := make(chan int, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
			req.AddCookie(&http.Cookie{Name: refresh.Name, Value: refresh.Value})
			<-start
			codes <- app.serve(req).Code
		}()
	}
	close(start)
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for code := range codes {
		counts[code]++
	}
	assert.Equal(t, map[int]int{http.StatusOK: 1, http.StatusUnauthorized: callers - 1}, counts)
}

func TestAbuseDetectorIgnoresForwardedHeaders(t *testing.T) {
	app := newTestApp(t)

	for i := 0; i < 20; i++ {
		rec := app.serve(forwardedFrom(http.MethodGet, "/auth/self", "203.0.113."+strconv.Itoa(i+1)))
		require.Equal(t, http.StatusUnauthorized, rec.Code, "request %d", i+1)
	}
	rec := app.serve(forwardedFrom(http.MethodGet, "/auth/self", "203.0.113.99"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, app.abuse.Len(), "one peer is one entry whatever it claims to be")
}

func TestLoginLimiterIgnoresForwardedHeaders(t *testing.T) {
	app := newTestApp(t, func(cfg *config.Config) { cfg.RateLimit.LoginLimit = 3 })

	for i := 0; i < 3; i++ {
		req := forwardedFrom(http.MethodPost, "/auth/login", "203.0.113."+strconv.Itoa(i+1))
		req.Body = io.NopCloser(strings.NewReader(`{"email":"x@example.com","password":"Wr0ng$pass"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		require.Equal(t, http.StatusUnauthorized, app.serve(req).Code)
	}
	req := forwardedFrom(http.MethodPost, "/auth/login", "203.0.113.50")
	rec := app.serve(req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestTrustedProxyIdentifiesForwardedClient(t *testing.T) {
	_, proxies, err := net.ParseCIDR("192.0.2.0/24")
	require.NoError(t, err)
	app := newTestApp(t, func(cfg *config.Config) { cfg.TrustedProxyNets = []*net.IPNet{proxies} })

	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusUnauthorized, app.serve(forwardedFrom(http.MethodGet, "/auth/self", "203.0.113.7")).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, app.serve(forwardedFrom(http.MethodGet, "/auth/self", "203.0.113.7")).Code)
	assert.Equal(t, http.StatusUnauthorized, app.serve(forwardedFrom(http.MethodGet, "/auth/self", "203.0.113.8")).Code,
		"another client behind the same proxy is unaffected")
}
