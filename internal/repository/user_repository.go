package repository

import (
    "context"
    "database/sql"
    "strings"

    "github.com/voltgrid/ev-reservation/internal/model"
)

// UserRepo provides read access to the user and badge directory.
type UserRepo struct {
    db *sql.DB
}

// NewUserRepo returns a UserRepo bound to the given database.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, tenant_id, email, password_hash, role, is_active, created_at, updated_at`

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
    var u model.User
    err := r.db.QueryRowContext(ctx,
        `SELECT `+userColumns+` FROM users WHERE id = ? LIMIT 1`, id).
        Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
    if err != nil {
        return nil, notFound(err, "user %d", id)
    }
    return &u, nil
}

// GetByEmail fetches a user by normalized email for login.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
    email = strings.ToLower(strings.TrimSpace(email))
    var u model.User
    err := r.db.QueryRowContext(ctx,
        `SELECT `+userColumns+` FROM users WHERE email = ? LIMIT 1`, email).
        Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
    if err != nil {
        return nil, notFound(err, "user %s", email)
    }
    return &u, nil
}

// BadgeByTag resolves a presented tag (idTag or visual tag) to the
// active badge carrying it.
func (r *UserRepo) BadgeByTag(ctx context.Context, tag string) (*model.Badge, error) {
    const q = `SELECT id, user_id, id_tag, visual_tag_id, parent_id_tag, is_active, created_at
               FROM badges
               WHERE (id_tag = ? OR visual_tag_id = ?) AND is_active = 1
               LIMIT 1`
    var b model.Badge
    var visualTag, parentTag sql.NullString
    err := r.db.QueryRowContext(ctx, q, tag, tag).
        Scan(&b.ID, &b.UserID, &b.IDTag, &visualTag, &parentTag, &b.IsActive, &b.CreatedAt)
    if err != nil {
        return nil, notFound(err, "badge %s", tag)
    }
    if visualTag.Valid {
        b.VisualTagID = &visualTag.String
    }
    if parentTag.Valid {
        b.ParentIDTag = &parentTag.String
    }
    return &b, nil
}

// GetByBadge maps a presented tag to the user carrying it.  Only
// active badges of active users participate.
func (r *UserRepo) GetByBadge(ctx context.Context, tag string) (*model.User, error) {
    b, err := r.BadgeByTag(ctx, tag)
    if err != nil {
        return nil, err
    }
    u, err := r.GetByID(ctx, b.UserID)
    if err != nil {
        return nil, err
    }
    if !u.IsActive {
        return nil, notFound(sql.ErrNoRows, "badge %s", tag)
    }
    return u, nil
}

// SiteIDs returns the sites administered by the given user.  Users
// without the SITE_ADMIN role simply have no rows.
func (r *UserRepo) SiteIDs(ctx context.Context, userID uint64) ([]uint64, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT site_id FROM site_admins WHERE user_id = ?`, userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var ids []uint64
    for rows.Next() {
        var id uint64
        if err := rows.Scan(&id); err != nil {
            return nil, err
        }
        ids = append(ids, id)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return ids, nil
}
