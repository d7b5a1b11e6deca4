package model

import "time"

// Role names stored in the users table and carried in the JWT "role"
// claim.  SUPER_ADMIN and ADMIN operate on every reservation of their
// tenant; SITE_ADMIN is scoped to the sites they administer; BASIC_USER
// may only act on their own reservations.
const (
    RoleSuperAdmin = "SUPER_ADMIN"
    RoleAdmin      = "ADMIN"
    RoleSiteAdmin  = "SITE_ADMIN"
    RoleBasicUser  = "BASIC_USER"
)

// User represents an application user record as stored in the `users`
// table.  The json tags are omitted because these structs are used by
// the repository layer; handlers define separate response types with
// appropriate JSON tags.
//
// Fields:
//  ID           – primary key identifier of the user.
//  TenantID     – tenant this user belongs to.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – role name, see role constants.
//  IsActive     – whether the account is active.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
    ID           uint64    // users.id
    TenantID     uint64    // users.tenant_id
    Email        string    // users.email
    PasswordHash string    // users.password_hash
    Role         string    // users.role
    IsActive     bool      // users.is_active
    CreatedAt    time.Time // users.created_at
    UpdatedAt    time.Time // users.updated_at
}

// Badge models a row in the `badges` table: a physical or virtual
// credential presented at a connector to start a charging session.
// A badge maps an OCPP idTag to the user that carries it; the optional
// parent tag groups badges of the same account.
//
// Fields:
//  ID          – primary key identifier.
//  UserID      – user carrying the badge.
//  IDTag       – tag transmitted by the station on StartTransaction.
//  VisualTagID – identifier printed on the badge (nullable).
//  ParentIDTag – group tag covering this badge (nullable).
//  IsActive    – whether the badge may start sessions.
//  CreatedAt   – timestamp of creation.
type Badge struct {
    ID          uint64    // badges.id
    UserID      uint64    // badges.user_id
    IDTag       string    // badges.id_tag
    VisualTagID *string   // badges.visual_tag_id (nullable)
    ParentIDTag *string   // badges.parent_id_tag (nullable)
    IsActive    bool      // badges.is_active
    CreatedAt   time.Time // badges.created_at
}

// Tenant models a row in the `tenants` table.  The engine only cares
// about the reservation feature flag: when it is off, every reservation
// operation of that tenant is denied.
//
// Fields:
//  ID                  – primary key identifier.
//  Name                – display name of the tenant.
//  ReservationsEnabled – feature flag gating the reservation engine.
type Tenant struct {
    ID                  uint64 // tenants.id
    Name                string // tenants.name
    ReservationsEnabled bool   // tenants.reservations_enabled
}
