package reservation

import (
    "time"

    "github.com/voltgrid/ev-reservation/internal/model"
)

// FindConflicts returns the ids of every active reservation in existing
// whose effective interval overlaps the candidate interval on the same
// connector.  The caller passes the candidate's own id through selfID
// so an update never collides with the row it is replacing; for a
// creation selfID is the (possibly zero) id of the new reservation.
//
// Reservations in a terminal state are skipped: a cancelled, expired or
// completed reservation never blocks new time on its connector.  Rows
// bound to a different (station, connector) pair are skipped as well,
// which lets callers hand over a coarser result set without
// pre-filtering.
func FindConflicts(candidate Interval, stationID string, connectorID uint32, selfID uint64, existing []model.Reservation, now time.Time) []uint64 {
    var blocking []uint64
    for i := range existing {
        other := &existing[i]
        if other.ID == selfID {
            continue
        }
        if other.Terminal() {
            continue
        }
        if other.ChargingStationID != stationID || other.ConnectorID != connectorID {
            continue
        }
        iv, ok := EffectiveInterval(other, now)
        if !ok {
            continue
        }
        if candidate.Overlaps(iv) {
            blocking = append(blocking, other.ID)
        }
    }
    return blocking
}

// HasConflict is the boolean form of FindConflicts.
func HasConflict(candidate Interval, stationID string, connectorID uint32, selfID uint64, existing []model.Reservation, now time.Time) bool {
    return len(FindConflicts(candidate, stationID, connectorID, selfID, existing, now)) > 0
}
