package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/model"
)

// RegisterUsers registers user management.  Every route requires an ADMIN.
func RegisterUsers(e *echo.Echo, d Deps) {
	g := e.Group(
		"/users",
		middleware.AccessGate(d.Tokens),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("", d.Users.Create)
	g.GET("", d.Users.List)
	g.GET("/:id", d.Users.Get)
	g.PATCH("/:id", d.Users.Update)
	g.DELETE("/:id", d.Users.Delete)
}

// RegisterTenants registers tenant routes.  Reading a single tenant is
// public and cached; listing needs any signed-in user; mutations need an
// ADMIN.
func RegisterTenants(e *echo.Echo, d Deps) {
	e.GET("/tenants/:id", d.Tenants.Get, d.Cache.Middleware())

	g := e.Group("/tenants", middleware.AccessGate(d.Tokens))
	g.GET("", d.Tenants.List, middleware.RequireRole(model.Roles()...))

	admin := middleware.RequireRole(model.RoleAdmin)
	g.POST("", d.Tenants.Create, admin)
	g.PUT("/:id", d.Tenants.Update, admin)
	g.PATCH("/:id", d.Tenants.Update, admin)
	g.DELETE("/:id", d.Tenants.Delete, admin)
}
