// Package repository defines the MySQL data access layer and the error
// values shared across its repositories.  These sentinel values allow
// higher layers such as services and handlers to distinguish between
// different failure scenarios without inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup by key matches no row.  Handlers
// translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// booking they do not own.  Handlers translate it into an HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrSoldOut is returned by the commit procedure when the conditional
// decrement finds fewer tickets than requested.  Handlers translate it
// into an HTTP 409 response.
var ErrSoldOut = errors.New("not enough tickets available")

// ErrEmailExists is returned when an insert collides with the unique
// email index.
var ErrEmailExists = errors.New("email already exists")

// isDuplicateKey reports whether err is MySQL error 1062 (duplicate entry).
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
