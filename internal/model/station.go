package model

import "time"

// Connector statuses as reported by the station over the event feed.
// The registry mirrors the last reported value; booking does not gate
// on it since a connector may recover before the window starts.
const (
    ConnectorAvailable   = "AVAILABLE"
    ConnectorOccupied    = "OCCUPIED"
    ConnectorReserved    = "RESERVED"
    ConnectorFaulted     = "FAULTED"
    ConnectorUnavailable = "UNAVAILABLE"
)

// ChargingStation models a row in the `charging_stations` table.  The
// primary key is the OCPP charge point identifier handed out when the
// station boots, so it is a string rather than a numeric id.
//
// Fields:
//  ID        – OCPP charge point identifier.
//  TenantID  – tenant operating the station.
//  SiteID    – site (physical location) the station is installed at.
//  Name      – display name.
//  CreatedAt – timestamp of creation.
//  UpdatedAt – timestamp of last update.
type ChargingStation struct {
    ID        string    // charging_stations.id
    TenantID  uint64    // charging_stations.tenant_id
    SiteID    uint64    // charging_stations.site_id
    Name      string    // charging_stations.name
    CreatedAt time.Time // charging_stations.created_at
    UpdatedAt time.Time // charging_stations.updated_at
}

// Connector models a row in the `connectors` table: one individually
// addressable socket of a charging station.  Connector numbers are
// 1-based per station.
//
// Fields:
//  ChargingStationID – station the connector belongs to.
//  ConnectorID       – connector number on the station.
//  Status            – last reported status, see connector constants.
//  UpdatedAt         – when the status was last reported.
type Connector struct {
    ChargingStationID string    // connectors.charging_station_id
    ConnectorID       uint32    // connectors.connector_id
    Status            string    // connectors.status
    UpdatedAt         time.Time // connectors.updated_at
}
