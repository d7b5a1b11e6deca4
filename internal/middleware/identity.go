package middleware

// identity.go provides helpers for reading the authenticated identity
// that JWTAuth stored in the Echo context.  JWT numeric claims decode
// as float64, so the helpers accept both float64 and string forms.

import (
    "errors"
    "strconv"

    "github.com/labstack/echo/v4"
)

// ErrNoIdentity is returned when a required claim is missing from the
// context, which means the route was registered without JWTAuth.
var ErrNoIdentity = errors.New("no authenticated identity in context")

// CurrentUserID returns the authenticated user's id from the "sub"
// claim.
func CurrentUserID(c echo.Context) (uint64, error) {
    return claimUint64(c, "user_id")
}

// CurrentTenantID returns the tenant id from the "tenant" claim.
func CurrentTenantID(c echo.Context) (uint64, error) {
    return claimUint64(c, "tenant_id")
}

// CurrentRole returns the role claim, or the empty string when absent.
func CurrentRole(c echo.Context) string {
    if s, ok := c.Get("role").(string); ok {
        return s
    }
    return ""
}

func claimUint64(c echo.Context, key string) (uint64, error) {
    switch v := c.Get(key).(type) {
    case float64:
        if v < 0 {
            return 0, ErrNoIdentity
        }
        return uint64(v), nil
    case string:
        n, err := strconv.ParseUint(v, 10, 64)
        if err != nil {
            return 0, ErrNoIdentity
        }
        return n, nil
    }
    return 0, ErrNoIdentity
}

// rateKeyUserID is the string identity used by the rate limiter's key
// builder; unauthenticated requests share the "anon" bucket.
func rateKeyUserID(c echo.Context) string {
    if id, err := CurrentUserID(c); err == nil {
        return strconv.FormatUint(id, 10)
    }
    return "anon"
}
