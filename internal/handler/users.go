package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/service"
)

// UserHandler exposes user management to administrators.
type UserHandler struct {
	Users  *service.UserService
	Logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{Users: users, Logger: logger}
}

type createUserReq struct {
	FirstName string  `json:"firstName" validate:"required,max=100"`
	LastName  string  `json:"lastName" validate:"required,max=100"`
	Email     string  `json:"email" validate:"required,email,max=255"`
	Password  string  `json:"password" validate:"required,min=8,max=72,strongpassword"`
	Role      string  `json:"role" validate:"omitempty,max=20"`
	TenantID  *uint64 `json:"tenantId"`
}

type listUsersReq struct {
	Page   int    `query:"page" validate:"gte=0"`
	Limit  int    `query:"limit" validate:"gte=0,lte=100"`
	Offset int    `query:"offset" validate:"gte=0"`
	Search string `query:"search" validate:"max=255"`
	Role   string `query:"role" validate:"omitempty,max=20"`
}

type pagination struct {
	Total       int `json:"total"`
	CurrentPage int `json:"currentPage"`
	PerPage     int `json:"perPage"`
	TotalPages  int `json:"totalPages"`
}

type listUsersResp struct {
	Data       []model.User `json:"data"`
	Pagination pagination   `json:"pagination"`
}

// optionalID records whether tenantId was present in a patch body so that
// an explicit null can clear it.
type optionalID struct {
	Set   bool
	Value *uint64
}

func (o *optionalID) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v uint64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

type updateUserReq struct {
	FirstName *string    `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName  *string    `json:"lastName" validate:"omitempty,min=1,max=100"`
	Email     *string    `json:"email" validate:"omitempty,email,max=255"`
	Role      *string    `json:"role" validate:"omitempty,max=20"`
	TenantID  optionalID `json:"tenantId"`
}

func (h *UserHandler) Create(c echo.Context) error {
	var req createUserReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
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
	h.Logger.Info("user created", slog.Uint64("user_id", u.ID), slog.String("role", string(u.Role)))
	return c.JSON(http.StatusCreated, idResp{ID: u.ID})
}

// List pages through users.  page takes precedence over offset when both
// are given.
func (h *UserHandler) List(c echo.Context) error {
	var req listUsersReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if req.Limit == 0 {
		req.Limit = 10
	}
	offset := req.Offset
	page := 1
	if req.Page > 0 {
		page = req.Page
		offset = (page - 1) * req.Limit
	} else if offset > 0 {
		page = offset/req.Limit + 1
	}

	f := model.UserFilter{Search: strings.TrimSpace(req.Search), Limit: req.Limit, Offset: offset}
	if strings.TrimSpace(req.Role) != "" {
		r, err := model.ParseRole(req.Role)
		if err != nil {
			return service.ErrInvalidRole
		}
		f.Role = r
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	users, total, err := h.Users.List(ctx, f)
	if err != nil {
		return err
	}
	if users == nil {
		users = []model.User{}
	}
	return c.JSON(http.StatusOK, listUsersResp{
		Data: users,
		Pagination: pagination{
			Total:       total,
			CurrentPage: page,
			PerPage:     req.Limit,
			TotalPages:  (total + req.Limit - 1) / req.Limit,
		},
	})
}

func (h *UserHandler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

// Update applies a partial update.  Changing role or tenant signs the user
// out everywhere.
func (h *UserHandler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req updateUserReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.Update(ctx, id, service.UpdateUserInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Role:      req.Role,
		TenantID:  req.TenantID.Value,
		SetTenant: req.TenantID.Set,
	})
	if err != nil {
		return err
	}
	h.Logger.Info("user updated", slog.Uint64("user_id", u.ID))
	return c.JSON(http.StatusOK, u)
}

func (h *UserHandler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Users.Delete(ctx, id); err != nil {
		return err
	}
	h.Logger.Info("user deleted", slog.Uint64("user_id", id))
	return c.NoContent(http.StatusNoContent)
}
