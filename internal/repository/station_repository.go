package repository

import (
    "context"
    "database/sql"

    "github.com/voltgrid/ev-reservation/internal/model"
)

// StationRepo provides read access to the charging station and
// connector registry.  The engine only consumes existence and current
// status; station management itself lives elsewhere.
type StationRepo struct {
    db *sql.DB
}

// NewStationRepo returns a StationRepo bound to the given database.
func NewStationRepo(db *sql.DB) *StationRepo { return &StationRepo{db: db} }

// GetByID loads a charging station by its charge point identifier.
func (r *StationRepo) GetByID(ctx context.Context, id string) (*model.ChargingStation, error) {
    const q = `SELECT id, tenant_id, site_id, name, created_at, updated_at
               FROM charging_stations WHERE id = ?`
    var st model.ChargingStation
    err := r.db.QueryRowContext(ctx, q, id).Scan(
        &st.ID, &st.TenantID, &st.SiteID, &st.Name, &st.CreatedAt, &st.UpdatedAt)
    if err != nil {
        return nil, notFound(err, "charging station %s", id)
    }
    return &st, nil
}

// GetConnector loads one connector of a station.
func (r *StationRepo) GetConnector(ctx context.Context, stationID string, connectorID uint32) (*model.Connector, error) {
    const q = `SELECT charging_station_id, connector_id, status, updated_at
               FROM connectors WHERE charging_station_id = ? AND connector_id = ?`
    var c model.Connector
    err := r.db.QueryRowContext(ctx, q, stationID, connectorID).Scan(
        &c.ChargingStationID, &c.ConnectorID, &c.Status, &c.UpdatedAt)
    if err != nil {
        return nil, notFound(err, "connector %d of %s", connectorID, stationID)
    }
    return &c, nil
}

// UpdateConnectorStatus stores the status reported by the station's
// event feed.  An unknown connector is inserted on first report, since
// stations announce connectors lazily after boot.
func (r *StationRepo) UpdateConnectorStatus(ctx context.Context, stationID string, connectorID uint32, status string) error {
    const q = `INSERT INTO connectors (charging_station_id, connector_id, status, updated_at)
               VALUES (?, ?, ?, UTC_TIMESTAMP())
               ON DUPLICATE KEY UPDATE status = VALUES(status), updated_at = UTC_TIMESTAMP()`
    _, err := r.db.ExecContext(ctx, q, stationID, connectorID, status)
    return err
}
