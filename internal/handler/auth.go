// Package handler implements the HTTP endpoints of the auth service.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/queue"
	"github.com/iliyamo/auth-service/internal/service"
)

const requestTimeout = 5 * time.Second

// AuthHandler bundles dependencies for the /auth endpoints.
type AuthHandler struct {
	Users   *service.UserService
	Tokens  *service.TokenService
	Cookies CookieSettings
	Events  queue.Publisher
	Logger  *slog.Logger
}

func NewAuthHandler(users *service.UserService, tokens *service.TokenService, cookies CookieSettings, events queue.Publisher, logger *slog.Logger) *AuthHandler {
	if events == nil {
		events = queue.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{Users: users, Tokens: tokens, Cookies: cookies, Events: events, Logger: logger}
}

// ----- DTOs -----

type registerReq struct {
	FirstName string  `json:"firstName" validate:"max=100"`
	LastName  string  `json:"lastName" validate:"max=100"`
	Email     string  `json:"email" validate:"required,email,max=255"`
	Password  string  `json:"password" validate:"required,min=8,max=72,strongpassword"`
	Role      string  `json:"role" validate:"omitempty,max=20"`
	TenantID  *uint64 `json:"tenantId"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type idResp struct {
	ID uint64 `json:"id"`
}

type messageResp struct {
	Message string `json:"message"`
}

// Register creates a user and signs them in.  Public registration cannot
// create administrators.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Role) != "" {
		role, err := model.ParseRole(req.Role)
		if err != nil {
			return service.ErrInvalidRole
		}
		if role == model.RoleAdmin {
			return service.ErrForbidden
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.Create(ctx, service.CreateUserInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
		TenantID:  req.TenantID,
	})
	if err != nil {
		return err
	}
	pair, err := h.Tokens.IssuePair(ctx, u)
	if err != nil {
		return err
	}
	h.Cookies.setTokens(c, pair)

	h.Logger.Info("user registered", slog.Uint64("user_id", u.ID), slog.String("role", string(u.Role)))
	h.publish(c, queue.EventUserRegistered, u.ID, u.Role)
	return c.JSON(http.StatusCreated, idResp{ID: u.ID})
}

// Login verifies credentials and issues a fresh token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}
	pair, err := h.Tokens.IssuePair(ctx, u)
	if err != nil {
		return err
	}
	h.Cookies.setTokens(c, pair)

	h.Logger.Info("user logged in", slog.Uint64("user_id", u.ID))
	h.publish(c, queue.EventUserLoggedIn, u.ID, u.Role)
	return c.JSON(http.StatusOK, idResp{ID: u.ID})
}

// Refresh rotates the refresh token validated by the refresh gate.  The
// rotation is not tied to the client connection: once started it completes
// even if the client goes away.
func (h *AuthHandler) Refresh(c echo.Context) error {
	p, ok := middleware.Payload(c)
	if !ok || p.TokenID == 0 {
		return service.ErrAuthRequired
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), requestTimeout)
	defer cancel()

	u, pair, err := h.Tokens.Rotate(ctx, p.TokenID)
	if err != nil {
		return err
	}
	h.Cookies.setTokens(c, pair)

	h.publish(c, queue.EventTokenRotated, u.ID, u.Role)
	return c.JSON(http.StatusOK, idResp{ID: u.ID})
}

// Logout deletes the refresh row named by the refresh cookie when it
// verifies and belongs to the caller, then clears both cookies.  It succeeds
// even when there is nothing left to delete.
func (h *AuthHandler) Logout(c echo.Context) error {
	p, ok := middleware.Payload(c)
	if !ok {
		return service.ErrAuthRequired
	}

	if ck, err := c.Cookie(middleware.RefreshCookie); err == nil && ck.Value != "" && ck.Value != "undefined" {
		rp, err := h.Tokens.VerifyRefreshTokenClaims(ck.Value)
		if err == nil && rp.Subject == p.Subject && rp.TokenID != 0 {
			ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
			defer cancel()
			if err := h.Tokens.DeleteRefreshRecord(ctx, rp.TokenID); err != nil {
				return err
			}
			h.Logger.Info("refresh token deleted", slog.Uint64("token_id", rp.TokenID), slog.Uint64("user_id", p.Subject))
		}
	}
	h.Cookies.clearTokens(c)

	h.publish(c, queue.EventUserLoggedOut, p.Subject, p.Role)
	return c.JSON(http.StatusOK, messageResp{Message: "Logged out successfully"})
}

// Self returns the caller's profile.
func (h *AuthHandler) Self(c echo.Context) error {
	p, ok := middleware.Payload(c)
	if !ok {
		return service.ErrAuthRequired
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.FindByID(ctx, p.Subject)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return service.ErrAuthRequired
		}
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *AuthHandler) publish(c echo.Context, typ queue.EventType, userID uint64, role model.Role) {
	publish(h.Events, h.Logger, queue.AuthEvent{
		Type:       typ,
		UserID:     userID,
		Role:       string(role),
		IP:         c.RealIP(),
		RequestID:  c.Response().Header().Get(echo.HeaderXRequestID),
		OccurredAt: time.Now().UTC(),
	})
}

// publish sends ev in the background; a broker outage never fails a request.
func publish(p queue.Publisher, logger *slog.Logger, ev queue.AuthEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := p.Publish(ctx, ev); err != nil {
			logger.Warn("publish audit event", slog.String("event", string(ev.Type)), slog.Any("error", err))
		}
	}()
}
