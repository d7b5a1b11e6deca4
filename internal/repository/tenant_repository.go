package repository

import (
    "context"
    "database/sql"

    "github.com/voltgrid/ev-reservation/internal/model"
)

// TenantRepo provides read access to tenant feature flags.
type TenantRepo struct {
    db *sql.DB
}

// NewTenantRepo returns a TenantRepo bound to the given database.
func NewTenantRepo(db *sql.DB) *TenantRepo { return &TenantRepo{db: db} }

// GetByID fetches a tenant by id.
func (r *TenantRepo) GetByID(ctx context.Context, id uint64) (*model.Tenant, error) {
    var t model.Tenant
    err := r.db.QueryRowContext(ctx,
        `SELECT id, name, reservations_enabled FROM tenants WHERE id = ?`, id).
        Scan(&t.ID, &t.Name, &t.ReservationsEnabled)
    if err != nil {
        return nil, notFound(err, "tenant %d", id)
    }
    return &t, nil
}

// ReservationsEnabled reports the tenant's reservation feature flag.
func (r *TenantRepo) ReservationsEnabled(ctx context.Context, id uint64) (bool, error) {
    t, err := r.GetByID(ctx, id)
    if err != nil {
        return false, err
    }
    return t.ReservationsEnabled, nil
}
