package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// Health answers liveness probes.  It deliberately touches no
// downstream dependency: a saturated database or broker must not make
// the orchestrator restart the service.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}
