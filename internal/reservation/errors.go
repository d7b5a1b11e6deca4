// Package reservation implements the reservation scheduling and
// conflict-resolution engine: time-window validation, interval-overlap
// conflict detection, the lifecycle state machine and the service
// façade that sequences authorization, validation, conflict checking
// and persistence.
package reservation

import (
    "errors"
    "fmt"
    "strings"
)

// ErrInvalidTimeWindow is returned when a reservation payload is
// missing its type, carries no resolvable time window at all, or has
// inconsistent date fields (departure before arrival, toDate before
// fromDate, expiry in the past).  Always a client error; handlers
// should translate it into an HTTP 400 response.
var ErrInvalidTimeWindow = errors.New("invalid time window")

// ErrAlreadyExists is returned when a client-supplied reservation id
// collides with a different existing reservation.  Identity collision
// is checked before time-window collision, so a request can never
// receive a collision error for an id it does not actually own.
var ErrAlreadyExists = errors.New("reservation already exists")

// ErrForbidden is returned on every authorization denial.  It is kept
// distinct from ErrNotFound so callers can tell "you may not do this"
// apart from "this does not exist".
var ErrForbidden = errors.New("forbidden")

// ErrNotFound is returned when a referenced reservation, station,
// connector or user does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a lifecycle event fires in a
// state that does not accept it, e.g. cancelling a reservation that is
// already cancelled.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// ErrRepository wraps persistence-layer failures (timeouts, lost
// connections).  It is the only retryable kind, and only by the
// caller: the engine never retries internally because a retry after a
// conflict could reorder collision checks.
var ErrRepository = errors.New("repository failure")

// CollisionError reports that a candidate time window overlaps one or
// more active reservations on the same connector.  BlockingIDs carries
// the ids of the reservations that block the candidate, for
// diagnostics.
type CollisionError struct {
    BlockingIDs []uint64
}

func (e *CollisionError) Error() string {
    ids := make([]string, len(e.BlockingIDs))
    for i, id := range e.BlockingIDs {
        ids[i] = fmt.Sprintf("%d", id)
    }
    return "reservation collision with [" + strings.Join(ids, ",") + "]"
}

// IsCollision reports whether err is a CollisionError and returns it
// when so.  Handlers use this to include the blocking ids in the
// response body.
func IsCollision(err error) (*CollisionError, bool) {
    var ce *CollisionError
    if errors.As(err, &ce) {
        return ce, true
    }
    return nil, false
}

// repoErr wraps a raw persistence error with the ErrRepository kind so
// that errors.Is(err, ErrRepository) holds while the cause remains in
// the message.
func repoErr(err error) error {
    return fmt.Errorf("%w: %v", ErrRepository, err)
}
