package router // defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/voltgrid/ev-reservation/internal/config"
    "github.com/voltgrid/ev-reservation/internal/handler"
    "github.com/voltgrid/ev-reservation/internal/middleware"
    "github.com/voltgrid/ev-reservation/internal/model"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check for load balancers and
// monitoring.
func RegisterRoutes(e *echo.Echo) {
    e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the login endpoint and the authenticated
// /v1/me route.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
    e.POST("/v1/auth/login", a.Login)

    auth := e.Group("/v1")
    auth.Use(middleware.JWTAuth(jwtSecret))
    auth.GET("/me", a.Me)
}

// RegisterReservations registers the reservation API.  Every route
// requires a valid access token; the role middleware rejects unknown
// roles outright and the fine-grained ownership and site checks happen
// in the engine's authorization policy.  The rate limiter, when Redis
// is available, wraps the whole group.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, rlCfg config.RateLimitConfig, rdb *redis.Client) {
    g := e.Group("/v1/reservations")
    g.Use(middleware.JWTAuth(jwtSecret))
    g.Use(middleware.RequireRole(
        model.RoleSuperAdmin, model.RoleAdmin, model.RoleSiteAdmin, model.RoleBasicUser,
    ))
    g.Use(middleware.NewTokenBucket(rlCfg, rdb))

    g.GET("", h.List)
    g.POST("", h.Create)
    g.DELETE("", h.Delete)
    g.GET("/:id", h.Get)
    g.PUT("/:id", h.Update)
    g.PUT("/:id/cancel", h.Cancel)
}
