package repository

import (
    "context"

    "github.com/voltgrid/ev-reservation/internal/model"
)

// Directory composes the station, user and tenant repositories into
// the single collaborator interface the engine consumes
// (reservation.Directory).
type Directory struct {
    Stations *StationRepo
    Users    *UserRepo
    Tenants  *TenantRepo
}

// NewDirectory bundles the three registry repositories.
func NewDirectory(stations *StationRepo, users *UserRepo, tenants *TenantRepo) *Directory {
    if stations == nil || users == nil || tenants == nil {
        panic("nil repository passed to NewDirectory")
    }
    return &Directory{Stations: stations, Users: users, Tenants: tenants}
}

func (d *Directory) Station(ctx context.Context, id string) (*model.ChargingStation, error) {
    return d.Stations.GetByID(ctx, id)
}

func (d *Directory) Connector(ctx context.Context, stationID string, connectorID uint32) (*model.Connector, error) {
    return d.Stations.GetConnector(ctx, stationID, connectorID)
}

func (d *Directory) User(ctx context.Context, id uint64) (*model.User, error) {
    return d.Users.GetByID(ctx, id)
}

func (d *Directory) UserByBadge(ctx context.Context, idTag string) (*model.User, error) {
    return d.Users.GetByBadge(ctx, idTag)
}

func (d *Directory) SiteIDs(ctx context.Context, userID uint64) ([]uint64, error) {
    return d.Users.SiteIDs(ctx, userID)
}

func (d *Directory) ReservationsEnabled(ctx context.Context, tenantID uint64) (bool, error) {
    return d.Tenants.ReservationsEnabled(ctx, tenantID)
}
