package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/service"
)

// JWKSHandler serves the public key set at /.well-known/jwks.json.
type JWKSHandler struct {
	Provider *service.JWKSProvider
	Logger   *slog.Logger
}

func NewJWKSHandler(p *service.JWKSProvider, logger *slog.Logger) *JWKSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JWKSHandler{Provider: p, Logger: logger}
}

func (h *JWKSHandler) Serve(c echo.Context) error {
	jwks, err := h.Provider.JWKS()
	if err != nil {
		return err
	}
	hdr := c.Response().Header()
	hdr.Set(echo.HeaderCacheControl, "public, max-age=3600, immutable")
	hdr.Set("ETag", `W/"jwks-`+strconv.FormatBool(h.Provider.IsCached())+`"`)
	hdr.Set(echo.HeaderAccessControlAllowOrigin, "*")
	hdr.Set(echo.HeaderAccessControlAllowMethods, "GET, HEAD, OPTIONS")
	hdr.Set(echo.HeaderXContentTypeOptions, "nosniff")

	h.Logger.Debug("jwks served", slog.Int("keys", len(jwks.Keys)))
	return c.JSON(http.StatusOK, jwks)
}
