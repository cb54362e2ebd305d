package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/httperr"
	"github.com/iliyamo/auth-service/internal/service"
)

type errorMapping struct {
	target error
	status int
	typ    string
}

// errorTable maps service sentinels to responses.  Order matters only where
// sentinels wrap each other, which none currently do.
var errorTable = []errorMapping{
	{service.ErrAuthRequired, http.StatusUnauthorized, "UnauthorizedError"},
	{service.ErrInvalidToken, http.StatusUnauthorized, "UnauthorizedError"},
	{service.ErrRevokedToken, http.StatusUnauthorized, "UnauthorizedError"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "UnauthorizedError"},
	{service.ErrForbidden, http.StatusForbidden, "ForbiddenError"},
	{service.ErrEmailExists, http.StatusBadRequest, "BadRequestError"},
	{service.ErrTenantRequired, http.StatusBadRequest, "BadRequestError"},
	{service.ErrTenantNotFound, http.StatusBadRequest, "BadRequestError"},
	{service.ErrTenantInUse, http.StatusBadRequest, "BadRequestError"},
	{service.ErrInvalidRole, http.StatusBadRequest, "BadRequestError"},
	{service.ErrValidation, http.StatusBadRequest, "BadRequestError"},
	{service.ErrNotFound, http.StatusNotFound, "NotFoundError"},
	{service.ErrKeySigning, http.StatusInternalServerError, "InternalServerError"},
	{service.ErrKeyFormat, http.StatusInternalServerError, "InternalServerError"},
}

const genericServerError = "Internal server error"

// ErrorHandler renders every error as {errors:[...]}.  5xx detail is logged
// and never returned.  401 responses tell clients not to retry blindly.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		e := toHTTPError(err, c.Request().URL.Path)

		if e.Status >= http.StatusInternalServerError {
			logger.Error("request failed",
				slog.String("method", c.Request().Method),
				slog.String("path", c.Request().URL.Path),
				slog.String("ip", c.RealIP()),
				slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				slog.Any("error", err))
			for i := range e.Items {
				e.Items[i].Message = genericServerError
			}
		}

		h := c.Response().Header()
		if e.Status == http.StatusUnauthorized {
			h.Set("Retry-After", "0")
			h.Set("X-Auth-Error", "true")
		} else if e.RetryAfter > 0 {
			h.Set("Retry-After", strconv.Itoa(e.RetryAfter))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(e.Status)
		} else {
			err = c.JSON(e.Status, httperr.Body{Errors: e.Items})
		}
		if err != nil {
			logger.Error("write error response", slog.Any("error", err))
		}
	}
}

func toHTTPError(err error, path string) *httperr.Error {
	var he *httperr.Error
	if errors.As(err, &he) {
		return he
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := &httperr.Error{Status: http.StatusBadRequest}
		for _, fe := range verrs {
			out.Items = append(out.Items, httperr.Item{
				Type:     "field",
				Message:  fieldMessage(fe),
				Path:     fe.Field(),
				Location: "body",
			})
		}
		return out
	}

	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return httperr.New(m.status, m.typ, m.target.Error(), path, "")
		}
	}

	var ee *echo.HTTPError
	if errors.As(err, &ee) {
		msg := http.StatusText(ee.Code)
		if s, ok := ee.Message.(string); ok && s != "" {
			msg = s
		}
		return httperr.New(ee.Code, typeForStatus(ee.Code), msg, path, "")
	}

	return httperr.New(http.StatusInternalServerError, "InternalServerError", genericServerError, path, "")
}

func typeForStatus(status int) string {
	name := strings.ReplaceAll(http.StatusText(status), " ", "")
	if name == "" {
		name = "Http"
	}
	if strings.HasSuffix(name, "Error") {
		return name
	}
	return name + "Error"
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return fe.Field() + " should be at least " + fe.Param() + " chars"
	case "max":
		return fe.Field() + " must not exceed " + fe.Param() + " characters"
	case "strongpassword":
		return "Password must contain at least 1 uppercase, 1 lowercase, 1 number and 1 special character"
	case "oneof":
		return fe.Field() + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gte", "lte":
		return fe.Field() + " is out of range"
	}
	return fe.Field() + " is invalid"
}

// Validator adapts go-playground/validator to echo.
type Validator struct {
	v *validator.Validate
}

// NewValidator registers the custom rules and reports fields by their JSON
// (or query) name.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return StrongPassword(fl.Field().String())
	})
	return &Validator{v: v}
}

func (cv *Validator) Validate(i any) error {
	return cv.v.Struct(i)
}

// StrongPassword requires at least 8 characters with an upper case letter, a
// lower case letter, a digit and a symbol.
func StrongPassword(s string) bool {
	if len(s) < 8 {
		return false
	}
	var upper, lower, digit, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}

// bindAndValidate decodes the request into dst and validates it.
func bindAndValidate(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return httperr.New(http.StatusBadRequest, "BadRequestError", "invalid request body", c.Request().URL.Path, "body")
	}
	return c.Validate(dst)
}

func parseID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, httperr.New(http.StatusBadRequest, "BadRequestError", "invalid id", c.Request().URL.Path, "params")
	}
	return id, nil
}
