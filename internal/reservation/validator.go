package reservation

import (
    "fmt"
    "time"

    "github.com/voltgrid/ev-reservation/internal/model"
)

// Interval is a half-open-by-convention time window used by collision
// detection.  Two intervals conflict when they share more than a single
// instant; touching endpoints do not conflict.
type Interval struct {
    Start time.Time
    End   time.Time
}

// Overlaps reports whether the two intervals intersect in more than a
// single instant: startA < endB AND startB < endA.  The comparison is
// strict on both sides so back-to-back reservations whose end and start
// coincide are allowed.
func (iv Interval) Overlaps(other Interval) bool {
    return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// ValidateWindow structurally and semantically validates a
// reservation's type and date fields and resolves the effective
// interval used downstream by collision detection.  It prefers
// [ArrivalTime, DepartureTime] when both bounds are present and falls
// back to [FromDate, ToDate] with ExpiryDate standing in for a missing
// ToDate and "now" standing in for a missing FromDate.
//
// It is a pure function: no side effects, no I/O.  All failures carry
// the ErrInvalidTimeWindow kind.
func ValidateWindow(r *model.Reservation, now time.Time) (Interval, error) {
    if r.Type == "" {
        return Interval{}, fmt.Errorf("%w: type is required", ErrInvalidTimeWindow)
    }
    if r.FromDate == nil && r.ToDate == nil && r.ExpiryDate == nil &&
        r.ArrivalTime == nil && r.DepartureTime == nil {
        return Interval{}, fmt.Errorf("%w: no date field set", ErrInvalidTimeWindow)
    }
    if r.ArrivalTime != nil && r.DepartureTime != nil && !r.DepartureTime.After(*r.ArrivalTime) {
        return Interval{}, fmt.Errorf("%w: departureTime must be after arrivalTime", ErrInvalidTimeWindow)
    }
    if r.FromDate != nil && r.ToDate != nil && !r.ToDate.After(*r.FromDate) {
        return Interval{}, fmt.Errorf("%w: toDate must be after fromDate", ErrInvalidTimeWindow)
    }
    if r.ExpiryDate != nil && !r.ExpiryDate.After(now) {
        return Interval{}, fmt.Errorf("%w: expiryDate is in the past", ErrInvalidTimeWindow)
    }
    iv, ok := EffectiveInterval(r, now)
    if !ok {
        return Interval{}, fmt.Errorf("%w: no resolvable interval", ErrInvalidTimeWindow)
    }
    if !iv.End.After(iv.Start) {
        return Interval{}, fmt.Errorf("%w: window end must be after start", ErrInvalidTimeWindow)
    }
    if !iv.End.After(now) {
        return Interval{}, fmt.Errorf("%w: window is entirely in the past", ErrInvalidTimeWindow)
    }
    return iv, nil
}

// EffectiveInterval resolves the time window collision detection works
// with.  The planned-usage window wins when both of its bounds are
// present; otherwise the overall validity window is used, with
// ExpiryDate substituting for a missing ToDate and now for a missing
// FromDate.  The second return value is false when no end bound can be
// resolved at all.
func EffectiveInterval(r *model.Reservation, now time.Time) (Interval, bool) {
    if r.ArrivalTime != nil && r.DepartureTime != nil {
        return Interval{Start: *r.ArrivalTime, End: *r.DepartureTime}, true
    }
    start := now
    if r.FromDate != nil {
        start = *r.FromDate
    }
    switch {
    case r.ToDate != nil:
        return Interval{Start: start, End: *r.ToDate}, true
    case r.ExpiryDate != nil:
        return Interval{Start: start, End: *r.ExpiryDate}, true
    }
    return Interval{}, false
}

// Elapsed reports whether the reservation's window has fully passed
// without being consumed, which makes a SCHEDULED reservation eligible
// for the EXPIRED transition.  ExpiryDate is the hard deadline when
// present; otherwise the effective interval's end is used.
func Elapsed(r *model.Reservation, now time.Time) bool {
    if r.ExpiryDate != nil {
        return !r.ExpiryDate.After(now)
    }
    if iv, ok := EffectiveInterval(r, now); ok {
        return !iv.End.After(now)
    }
    return false
}
