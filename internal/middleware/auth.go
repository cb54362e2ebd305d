// Package middleware contains the echo middleware guarding the API: the
// cookie based authentication gates, role checks, the abuse detector, rate
// limiting, response caching and security headers.
package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/service"
)

// Cookie names carrying the tokens.
const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

const payloadKey = "auth"

// AccessVerifier verifies access tokens.
type AccessVerifier interface {
	VerifyAccessToken(raw string) (model.AuthPayload, error)
}

// RefreshVerifier verifies refresh tokens and consults their revocation state.
type RefreshVerifier interface {
	VerifyRefreshTokenClaims(raw string) (model.AuthPayload, error)
	IsRevoked(ctx context.Context, p model.AuthPayload) bool
}

// AccessGate requires a valid access token in the accessToken cookie and
// attaches its payload to the context.
func AccessGate(v AccessVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := cookieValue(c.Request(), AccessCookie)
			if raw == "" {
				return service.ErrAuthRequired
			}
			p, err := v.VerifyAccessToken(raw)
			if err != nil {
				return err
			}
			c.Set(payloadKey, p)
			return next(c)
		}
	}
}

// RefreshGate requires a refresh token whose signature verifies and whose
// row still exists, is unexpired and belongs to the token subject.  Both
// checks are part of one validation; there is no way to run only the first.
func RefreshGate(v RefreshVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := cookieValue(c.Request(), RefreshCookie)
			if raw == "" {
				return service.ErrAuthRequired
			}
			p, err := v.VerifyRefreshTokenClaims(raw)
			if err != nil {
				return err
			}
			if v.IsRevoked(c.Request().Context(), p) {
				return service.ErrRevokedToken
			}
			c.Set(payloadKey, p)
			return next(c)
		}
	}
}

// Payload returns the verified token payload attached by one of the gates.
func Payload(c echo.Context) (model.AuthPayload, bool) {
	p, ok := c.Get(payloadKey).(model.AuthPayload)
	return p, ok
}

// cookieValue reads a cookie, treating the literal "undefined" that some
// browser clients send as absent.
func cookieValue(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil || ck.Value == "undefined" {
		return ""
	}
	return ck.Value
}
