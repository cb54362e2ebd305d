package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/service"
)

// CacheInvalidator drops cached responses for a URL path.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, path string)
}

// TenantHandler exposes tenant management.  Reads of a single tenant are
// public and may be served from the response cache; every mutation
// invalidates it.
type TenantHandler struct {
	Tenants *service.TenantService
	Cache   CacheInvalidator
	Logger  *slog.Logger
}

func NewTenantHandler(tenants *service.TenantService, cache CacheInvalidator, logger *slog.Logger) *TenantHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantHandler{Tenants: tenants, Cache: cache, Logger: logger}
}

type createTenantReq struct {
	Name    string `json:"name" validate:"required,max=100"`
	Address string `json:"address" validate:"required,max=200"`
}

type updateTenantReq struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=100"`
	Address *string `json:"address" validate:"omitempty,min=1,max=200"`
}

type listTenantsReq struct {
	Limit  int `query:"limit" validate:"gte=0,lte=100"`
	Offset int `query:"offset" validate:"gte=0"`
}

func (h *TenantHandler) Create(c echo.Context) error {
	var req createTenantReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	t, err := h.Tenants.Create(ctx, req.Name, req.Address)
	if err != nil {
		return err
	}
	h.Logger.Info("tenant created", slog.Uint64("tenant_id", t.ID))
	return c.JSON(http.StatusCreated, idResp{ID: t.ID})
}

func (h *TenantHandler) List(c echo.Context) error {
	p, ok := middleware.Payload(c)
	if !ok {
		return service.ErrAuthRequired
	}
	var req listTenantsReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	tenants, err := h.Tenants.List(ctx, p, req.Limit, req.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tenants)
}

func (h *TenantHandler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	t, err := h.Tenants.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// Update serves both PUT and PATCH; absent fields keep their value.
func (h *TenantHandler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req updateTenantReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	t, err := h.Tenants.Update(ctx, id, req.Name, req.Address)
	if err != nil {
		return err
	}
	h.invalidate(ctx, c)
	return c.JSON(http.StatusOK, t)
}

func (h *TenantHandler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Tenants.Delete(ctx, id); err != nil {
		return err
	}
	h.invalidate(ctx, c)
	h.Logger.Info("tenant deleted", slog.Uint64("tenant_id", id))
	return c.NoContent(http.StatusNoContent)
}

func (h *TenantHandler) invalidate(ctx context.Context, c echo.Context) {
	if h.Cache != nil {
		h.Cache.Invalidate(ctx, c.Request().URL.Path)
	}
}
