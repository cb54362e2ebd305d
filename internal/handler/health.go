package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/database"
)

// HealthHandler reports liveness and database connectivity.
type HealthHandler struct {
	DB *sql.DB
}

type healthResp struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Timestamp string `json:"timestamp"`
}

func (h *HealthHandler) Health(c echo.Context) error {
	resp := healthResp{Status: "ok", Database: "connected", Timestamp: time.Now().UTC().Format(time.RFC3339)}
	status := http.StatusOK
	if h.DB == nil || database.Ping(context.WithoutCancel(c.Request().Context()), h.DB) != nil {
		resp.Status = "degraded"
		resp.Database = "disconnected"
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, resp)
}
