// Package httperr defines the uniform error body returned by every endpoint:
//
//	{"errors":[{"type":"...","message":"...","path":"...","location":"..."}]}
package httperr

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Item is one entry of the errors array.
type Item struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Path     string `json:"path"`
	Location string `json:"location"`
}

// Body is the top-level error document.
type Body struct {
	Errors []Item `json:"errors"`
}

// Error is an error that already knows how it should be rendered.
// Middleware returns it and the global error handler writes it.
type Error struct {
	Status     int
	Items      []Item
	RetryAfter int // seconds; set as Retry-After when positive
}

func (e *Error) Error() string {
	if len(e.Items) == 0 {
		return http.StatusText(e.Status)
	}
	return e.Items[0].Message
}

// New builds a single-item error.
func New(status int, typ, message, path, location string) *Error {
	return &Error{Status: status, Items: []Item{{Type: typ, Message: message, Path: path, Location: location}}}
}

// TooManyRequests builds a 429 carrying a Retry-After value.
func TooManyRequests(typ, message, path, location string, retryAfter int) *Error {
	e := New(http.StatusTooManyRequests, typ, message, path, location)
	e.RetryAfter = retryAfter
	return e
}

// Write renders e on a plain http.ResponseWriter.  It is used by net/http
// middleware (rate limiters) that run outside echo's error handler.
func Write(w http.ResponseWriter, e *Error) {
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(Body{Errors: e.Items})
}
