// Package repository contains the MySQL-backed implementations of the
// engine's storage and directory interfaces.  Absent rows are reported
// with the engine's ErrNotFound kind so that higher layers can rely on
// errors.Is across the package boundary.
package repository

import (
    "database/sql"
    "errors"
    "fmt"

    "github.com/voltgrid/ev-reservation/internal/reservation"
)

// notFound translates sql.ErrNoRows into the engine's not-found kind,
// annotated with what was being looked up.  Any other error passes
// through unchanged.
func notFound(err error, what string, args ...any) error {
    if errors.Is(err, sql.ErrNoRows) {
        return fmt.Errorf("%w: %s", reservation.ErrNotFound, fmt.Sprintf(what, args...))
    }
    return err
}
