package handler

import (
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/voltgrid/ev-reservation/internal/middleware"
    "github.com/voltgrid/ev-reservation/internal/repository"
    "github.com/voltgrid/ev-reservation/internal/reservation"
    "github.com/voltgrid/ev-reservation/internal/utils"
)

// AuthHandler issues access tokens for the reservation API.  The
// engine itself only consumes the resulting claims; account
// management lives in the wider fleet backend.
type AuthHandler struct {
    Users     *repository.UserRepo
    JWTSecret string
    AccessTTL int // minutes
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users *repository.UserRepo, jwtSecret string, accessTTLMin int) *AuthHandler {
    if users == nil {
        panic("nil user repository passed to NewAuthHandler")
    }
    return &AuthHandler{Users: users, JWTSecret: jwtSecret, AccessTTL: accessTTLMin}
}

// Login handles POST /v1/auth/login.  It verifies the credentials and
// returns a signed access token carrying the user's id, role and
// tenant.
func (h *AuthHandler) Login(c echo.Context) error {
    var body struct {
        Email    string `json:"email"`
        Password string `json:"password"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    body.Email = strings.TrimSpace(body.Email)
    if body.Email == "" || body.Password == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
    }
    u, err := h.Users.GetByEmail(c.Request().Context(), body.Email)
    if err != nil {
        if errors.Is(err, reservation.ErrNotFound) {
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, body.Password) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
    }
    tok, err := utils.NewAccessToken(h.JWTSecret, u.ID, u.TenantID, u.Role, h.AccessTTL)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to issue token"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "access_token": tok.Token,
        "expires_at":   tok.Exp.Format(time.RFC3339),
    })
}

// Me handles GET /v1/me and returns the authenticated user's record.
func (h *AuthHandler) Me(c echo.Context) error {
    userID, err := middleware.CurrentUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    u, err := h.Users.GetByID(c.Request().Context(), userID)
    if err != nil {
        if errors.Is(err, reservation.ErrNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "id":        u.ID,
        "email":     u.Email,
        "role":      u.Role,
        "tenant_id": u.TenantID,
    })
}
