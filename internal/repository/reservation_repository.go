package repository

import (
    "context"
    "database/sql"
    "strings"
    "time"

    "github.com/voltgrid/ev-reservation/internal/model"
    "github.com/voltgrid/ev-reservation/internal/reservation"
)

// terminalStatuses is the SQL fragment excluding reservations that can
// never block a connector again.
const terminalStatuses = "('CANCELLED','EXPIRED','COMPLETED')"

// reservationColumns is the column list shared by every SELECT so scan
// order stays in one place.
const reservationColumns = `r.id, r.tenant_id, r.charging_station_id, r.connector_id, r.user_id,
       r.car_id, r.id_tag, r.visual_tag_id, r.parent_id_tag, r.type, r.status,
       r.from_date, r.to_date, r.expiry_date, r.arrival_time, r.departure_time,
       r.transaction_id, r.created_at, r.updated_at`

// ReservationRepo provides CRUD operations over the reservations
// table.  It implements reservation.Store.  All timestamp columns are
// stored in UTC; the DSN's parseTime/loc settings keep scans
// consistent.
type ReservationRepo struct {
    db *sql.DB
}

// NewReservationRepo returns a ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// scanReservation reads one row in reservationColumns order.
func scanReservation(row interface{ Scan(...any) error }) (*model.Reservation, error) {
    var r model.Reservation
    var carID sql.NullInt64
    var visualTag, parentTag, txnID sql.NullString
    var fromDate, toDate, expiry, arrival, departure sql.NullTime
    err := row.Scan(
        &r.ID, &r.TenantID, &r.ChargingStationID, &r.ConnectorID, &r.UserID,
        &carID, &r.IDTag, &visualTag, &parentTag, &r.Type, &r.Status,
        &fromDate, &toDate, &expiry, &arrival, &departure,
        &txnID, &r.CreatedAt, &r.UpdatedAt,
    )
    if err != nil {
        return nil, err
    }
    if carID.Valid {
        v := uint64(carID.Int64)
        r.CarID = &v
    }
    if visualTag.Valid {
        r.VisualTagID = &visualTag.String
    }
    if parentTag.Valid {
        r.ParentIDTag = &parentTag.String
    }
    if txnID.Valid {
        r.TransactionID = &txnID.String
    }
    r.FromDate = timePtr(fromDate)
    r.ToDate = timePtr(toDate)
    r.ExpiryDate = timePtr(expiry)
    r.ArrivalTime = timePtr(arrival)
    r.DepartureTime = timePtr(departure)
    return &r, nil
}

// timePtr converts a nullable column into an optional timestamp.
func timePtr(v sql.NullTime) *time.Time {
    if !v.Valid {
        return nil
    }
    t := v.Time
    return &t
}

// GetByID loads a single reservation by primary key.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
    const q = `SELECT ` + reservationColumns + ` FROM reservations r WHERE r.id = ?`
    res, err := scanReservation(r.db.QueryRowContext(ctx, q, id))
    if err != nil {
        return nil, notFound(err, "reservation %d", id)
    }
    return res, nil
}

// ListActiveByConnector returns every non-terminal reservation bound
// to the given connector, oldest first.
func (r *ReservationRepo) ListActiveByConnector(ctx context.Context, stationID string, connectorID uint32) ([]model.Reservation, error) {
    const q = `SELECT ` + reservationColumns + `
               FROM reservations r
               WHERE r.charging_station_id = ? AND r.connector_id = ?
                 AND r.status NOT IN ` + terminalStatuses + `
               ORDER BY r.id`
    return r.collect(ctx, q, stationID, connectorID)
}

// List returns reservations matching the filter, newest first.  The
// site filters join through charging_stations; OwnUserID widens a
// site-scoped listing with the actor's own reservations.
func (r *ReservationRepo) List(ctx context.Context, f reservation.Filter) ([]model.Reservation, error) {
    where := []string{"r.tenant_id = ?"}
    args := []any{f.TenantID}
    joinStations := false

    if f.StationID != nil {
        where = append(where, "r.charging_station_id = ?")
        args = append(args, *f.StationID)
    }
    if f.ConnectorID != nil {
        where = append(where, "r.connector_id = ?")
        args = append(args, *f.ConnectorID)
    }
    if f.UserID != nil {
        where = append(where, "r.user_id = ?")
        args = append(args, *f.UserID)
    }
    if f.SiteID != nil {
        joinStations = true
        where = append(where, "cs.site_id = ?")
        args = append(args, *f.SiteID)
    }
    if len(f.SiteIDs) > 0 {
        joinStations = true
        ph := make([]string, len(f.SiteIDs))
        cond := make([]any, 0, len(f.SiteIDs)+1)
        for i, id := range f.SiteIDs {
            ph[i] = "?"
            cond = append(cond, id)
        }
        clause := "cs.site_id IN (" + strings.Join(ph, ",") + ")"
        if f.OwnUserID != nil {
            clause = "(" + clause + " OR r.user_id = ?)"
            cond = append(cond, *f.OwnUserID)
        }
        where = append(where, clause)
        args = append(args, cond...)
    } else if f.OwnUserID != nil && f.UserID == nil {
        where = append(where, "r.user_id = ?")
        args = append(args, *f.OwnUserID)
    }
    if f.From != nil {
        where = append(where, "(r.to_date IS NULL OR r.to_date >= ?)")
        args = append(args, f.From.UTC())
    }
    if f.To != nil {
        where = append(where, "(r.from_date IS NULL OR r.from_date <= ?)")
        args = append(args, f.To.UTC())
    }
    if f.Status != nil {
        where = append(where, "r.status = ?")
        args = append(args, *f.Status)
    }

    q := `SELECT ` + reservationColumns + ` FROM reservations r`
    if joinStations {
        q += ` JOIN charging_stations cs ON cs.id = r.charging_station_id`
    }
    q += ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY r.created_at DESC, r.id DESC`
    return r.collect(ctx, q, args...)
}

// Create inserts the reservation.  A zero ID lets the database assign
// one; a client-supplied ID is inserted verbatim.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
    cols := `tenant_id, charging_station_id, connector_id, user_id, car_id, id_tag,
             visual_tag_id, parent_id_tag, type, status, from_date, to_date,
             expiry_date, arrival_time, departure_time, created_at, updated_at`
    vals := []any{
        res.TenantID, res.ChargingStationID, res.ConnectorID, res.UserID, res.CarID, res.IDTag,
        res.VisualTagID, res.ParentIDTag, res.Type, res.Status, nullTime(res.FromDate), nullTime(res.ToDate),
        nullTime(res.ExpiryDate), nullTime(res.ArrivalTime), nullTime(res.DepartureTime),
        res.CreatedAt.UTC(), res.UpdatedAt.UTC(),
    }
    placeholders := "?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?"
    if res.ID != 0 {
        cols = "id, " + cols
        vals = append([]any{res.ID}, vals...)
        placeholders = "?, " + placeholders
    }
    result, err := r.db.ExecContext(ctx,
        `INSERT INTO reservations (`+cols+`) VALUES (`+placeholders+`)`, vals...)
    if err != nil {
        return err
    }
    if res.ID == 0 {
        id, err := result.LastInsertId()
        if err != nil {
            return err
        }
        res.ID = uint64(id)
    }
    return nil
}

// Update replaces the stored row with res (full replacement).
func (r *ReservationRepo) Update(ctx context.Context, res *model.Reservation) error {
    const q = `UPDATE reservations SET
                 charging_station_id = ?, connector_id = ?, user_id = ?, car_id = ?,
                 id_tag = ?, visual_tag_id = ?, parent_id_tag = ?, type = ?, status = ?,
                 from_date = ?, to_date = ?, expiry_date = ?, arrival_time = ?,
                 departure_time = ?, updated_at = ?
               WHERE id = ?`
    result, err := r.db.ExecContext(ctx, q,
        res.ChargingStationID, res.ConnectorID, res.UserID, res.CarID,
        res.IDTag, res.VisualTagID, res.ParentIDTag, res.Type, res.Status,
        nullTime(res.FromDate), nullTime(res.ToDate), nullTime(res.ExpiryDate), nullTime(res.ArrivalTime),
        nullTime(res.DepartureTime), res.UpdatedAt.UTC(), res.ID)
    if err != nil {
        return err
    }
    return requireRow(result, "reservation %d", res.ID)
}

// UpdateStatus moves a reservation from one status to another as a
// compare-and-set.  When the row is gone or no longer in the expected
// status, no row is affected and the engine's not-found kind is
// returned so callers can tell a lost race from a repository failure.
func (r *ReservationRepo) UpdateStatus(ctx context.Context, id uint64, from, to string, txnID *string) error {
    var result sql.Result
    var err error
    if txnID != nil {
        result, err = r.db.ExecContext(ctx,
            `UPDATE reservations SET status = ?, transaction_id = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = ?`,
            to, *txnID, id, from)
    } else {
        result, err = r.db.ExecContext(ctx,
            `UPDATE reservations SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = ?`,
            to, id, from)
    }
    if err != nil {
        return err
    }
    return requireRow(result, "reservation %d in status %s", id, from)
}

// Delete hard-removes the given reservations in one transaction.  The
// whole batch fails with the not-found kind when any id is absent, so
// a partial delete can never be mistaken for success.
func (r *ReservationRepo) Delete(ctx context.Context, ids []uint64) error {
    if len(ids) == 0 {
        return nil
    }
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    for _, id := range ids {
        result, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
        if err != nil {
            return err
        }
        if err := requireRow(result, "reservation %d", id); err != nil {
            return err
        }
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// ListDueForExpiry returns SCHEDULED reservations whose hard deadline
// has passed.  The deadline mirrors the effective-interval precedence:
// expiry_date when set, otherwise the planned departure when the
// planned-usage window is complete, otherwise to_date.
func (r *ReservationRepo) ListDueForExpiry(ctx context.Context, now time.Time) ([]model.Reservation, error) {
    const q = `SELECT ` + reservationColumns + `
               FROM reservations r
               WHERE r.status = 'SCHEDULED'
                 AND COALESCE(r.expiry_date,
                              CASE WHEN r.arrival_time IS NOT NULL AND r.departure_time IS NOT NULL
                                   THEN r.departure_time
                                   ELSE r.to_date END) <= ?
               ORDER BY r.id`
    return r.collect(ctx, q, now.UTC())
}

// collect runs a SELECT built on reservationColumns and scans all rows.
func (r *ReservationRepo) collect(ctx context.Context, query string, args ...any) ([]model.Reservation, error) {
    rows, err := r.db.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Reservation, 0)
    for rows.Next() {
        res, err := scanReservation(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *res)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// nullTime converts an optional timestamp into a driver-friendly value
// normalized to UTC.
func nullTime(t *time.Time) any {
    if t == nil {
        return nil
    }
    return t.UTC()
}

// requireRow fails with the not-found kind when the statement touched
// no rows.
func requireRow(result sql.Result, what string, args ...any) error {
    n, err := result.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return notFound(sql.ErrNoRows, what, args...)
    }
    return nil
}
