package model

import "time"

// Reservation statuses.  A reservation starts out SCHEDULED and moves
// through the lifecycle exactly once; CANCELLED, EXPIRED and COMPLETED
// are terminal.  IN_PROGRESS marks a reservation whose charging session
// has started but not yet ended.
const (
    StatusScheduled  = "SCHEDULED"
    StatusInProgress = "IN_PROGRESS"
    StatusCompleted  = "COMPLETED"
    StatusCancelled  = "CANCELLED"
    StatusExpired    = "EXPIRED"
)

// TypePlanned is the only reservation type the engine defines itself.
// The column is stored as a plain string so that additional kinds coming
// from upstream systems pass through unchanged.
const TypePlanned = "PLANNED_RESERVATION"

// Reservation records a user's claim on a specific connector of a
// charging station for a window of time.  The window is expressed with
// two representations: an overall validity window (FromDate/ToDate with
// a hard ExpiryDate) and an optional finer-grained planned-usage window
// (ArrivalTime/DepartureTime).  Collision detection prefers the latter
// when both bounds are present.
//
// Fields:
//  ID                – primary key; client-suppliable, server-assigned when zero.
//  TenantID          – tenant owning the station and the reservation.
//  ChargingStationID – station identifier (OCPP charge point id).
//  ConnectorID       – connector number on the station, 1-based.
//  UserID            – owner of the reservation.
//  CarID             – vehicle expected for the session (nullable).
//  IDTag             – badge presented to start the session.
//  VisualTagID       – printed identifier of the badge (nullable).
//  ParentIDTag       – group badge covering this one (nullable).
//  Type              – reservation kind (e.g. PLANNED_RESERVATION).
//  Status            – lifecycle state, see status constants.
//  FromDate          – start of the overall validity window (nullable).
//  ToDate            – end of the overall validity window (nullable).
//  ExpiryDate        – hard deadline after which an unconsumed reservation lapses (nullable).
//  ArrivalTime       – planned arrival at the connector (nullable).
//  DepartureTime     – planned departure from the connector (nullable).
//  TransactionID     – charging transaction that consumed the reservation (nullable).
//  CreatedAt         – creation timestamp.
//  UpdatedAt         – last update timestamp.
type Reservation struct {
    ID                uint64     `json:"id"`
    TenantID          uint64     `json:"tenantID"`
    ChargingStationID string     `json:"chargingStationID"`
    ConnectorID       uint32     `json:"connectorID"`
    UserID            uint64     `json:"userID"`
    CarID             *uint64    `json:"carID,omitempty"`
    IDTag             string     `json:"idTag"`
    VisualTagID       *string    `json:"visualTagID,omitempty"`
    ParentIDTag       *string    `json:"parentIdTag,omitempty"`
    Type              string     `json:"type"`
    Status            string     `json:"status"`
    FromDate          *time.Time `json:"fromDate,omitempty"`
    ToDate            *time.Time `json:"toDate,omitempty"`
    ExpiryDate        *time.Time `json:"expiryDate,omitempty"`
    ArrivalTime       *time.Time `json:"arrivalTime,omitempty"`
    DepartureTime     *time.Time `json:"departureTime,omitempty"`
    TransactionID     *string    `json:"transactionID,omitempty"`
    CreatedAt         time.Time  `json:"createdAt"`
    UpdatedAt         time.Time  `json:"updatedAt"`
}

// Terminal reports whether the reservation sits in a state from which
// no further transition occurs.  Terminal reservations never block new
// reservations on the same connector.
func (r *Reservation) Terminal() bool {
    switch r.Status {
    case StatusCancelled, StatusExpired, StatusCompleted:
        return true
    }
    return false
}
