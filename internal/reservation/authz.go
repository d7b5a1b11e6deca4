package reservation

import "github.com/voltgrid/ev-reservation/internal/model"

// Operation names a reservation mutation or read for authorization
// purposes.
type Operation string

const (
    OpCreate Operation = "CREATE"
    OpRead   Operation = "READ"
    OpUpdate Operation = "UPDATE"
    OpCancel Operation = "CANCEL"
    OpDelete Operation = "DELETE"
)

// Actor is the authenticated principal performing an operation, as
// established by the JWT middleware plus a site lookup for site
// admins.
//
// Fields:
//  UserID   – the actor's own user id.
//  TenantID – tenant the actor belongs to.
//  Role     – role name, see model role constants.
//  SiteIDs  – sites administered by the actor (SITE_ADMIN only).
type Actor struct {
    UserID   uint64
    TenantID uint64
    Role     string
    SiteIDs  []uint64
}

// IsAdmin reports whether the actor holds a tenant-wide admin role.
func (a Actor) IsAdmin() bool {
    return a.Role == model.RoleAdmin || a.Role == model.RoleSuperAdmin
}

// administersSite reports whether the actor is a site admin for the
// given site.
func (a Actor) administersSite(siteID uint64) bool {
    if a.Role != model.RoleSiteAdmin {
        return false
    }
    for _, id := range a.SiteIDs {
        if id == siteID {
            return true
        }
    }
    return false
}

// Allowed decides whether the actor may perform op.  For create, res
// is the requested reservation (its UserID is the would-be owner); for
// the other operations res is the existing reservation the actor is
// acting on.  stationSiteID is the site of the reservation's station
// and only matters for SITE_ADMIN actors.
//
// Tenant feature gating happens before this check, in the service; a
// cross-tenant reservation is denied here regardless of role.
func Allowed(actor Actor, op Operation, res *model.Reservation, stationSiteID uint64) bool {
    if res != nil && res.TenantID != 0 && res.TenantID != actor.TenantID {
        return false
    }
    if actor.IsAdmin() {
        return true
    }
    switch op {
    case OpDelete:
        // Hard delete is an admin-only capability, distinct from cancel.
        return false
    case OpCreate, OpUpdate:
        return res != nil && res.UserID == actor.UserID
    case OpRead:
        if res == nil {
            return false
        }
        if res.UserID == actor.UserID {
            return true
        }
        return actor.administersSite(stationSiteID)
    case OpCancel:
        if res == nil {
            return false
        }
        if res.UserID == actor.UserID {
            return true
        }
        return actor.administersSite(stationSiteID)
    }
    return false
}
