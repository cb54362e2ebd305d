// Package repository defines the persistence layer over database/sql and the
// error values shared by its repositories.  Handlers and services use these
// sentinels to distinguish between failure scenarios without inspecting
// driver-specific errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup by key matches no row.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when inserting or updating a user would violate
// the unique email constraint.
var ErrEmailExists = errors.New("email already exists")

// isDuplicate reports whether err is a unique-key violation.  MySQL reports
// error 1062; SQLite (used by tests) reports a "UNIQUE constraint failed" text.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
