// Package router assembles the echo instance: global middleware, error
// handling and every route of the API.
package router

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/handler"
	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/service"
)

// Deps carries everything the routes need.  Redis and Cache may be nil.
type Deps struct {
	Config config.Config
	Logger *slog.Logger
	Redis  *redis.Client

	Tokens *service.TokenService
	Abuse  *middleware.AbuseDetector
	Cache  *middleware.ResponseCache

	Auth    *handler.AuthHandler
	JWKS    *handler.JWKSHandler
	Users   *handler.UserHandler
	Tenants *handler.TenantHandler
	Health  *handler.HealthHandler
}

// New returns a configured echo instance with all routes registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = middleware.ClientIPExtractor(d.Config.TrustedProxyNets)
	e.HTTPErrorHandler = handler.ErrorHandler(d.Logger)
	e.Validator = handler.NewValidator()

	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(d.Logger))
	e.Use(echomw.Recover())
	e.Use(middleware.SecureHeaders(d.Config.IsProduction(), d.Logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{d.Config.FrontendURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, echo.HeaderXRequestID},
		AllowCredentials: true,
	}))
	e.Use(middleware.RateLimit(d.Config.RateLimit, d.Redis, e.IPExtractor, d.Logger))
	if d.Abuse != nil {
		e.Use(d.Abuse.Middleware())
	}

	RegisterRoutes(e, d)
	RegisterAuth(e, d)
	RegisterUsers(e, d)
	RegisterTenants(e, d)
	return e
}

// RegisterRoutes registers the unauthenticated infrastructure endpoints.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", d.Health.Health)
	e.GET("/.well-known/jwks.json", d.JWKS.Serve)
}
