package handler

import (
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/voltgrid/ev-reservation/internal/middleware"
    "github.com/voltgrid/ev-reservation/internal/model"
    "github.com/voltgrid/ev-reservation/internal/repository"
    "github.com/voltgrid/ev-reservation/internal/reservation"
)

// ReservationHandler exposes the reservation engine over REST.  All
// methods assume JWT authentication and role validation have already
// been performed by middleware; the actor is rebuilt per request from
// the token claims plus a site lookup for site admins.
type ReservationHandler struct {
    Svc   *reservation.Service
    Users *repository.UserRepo
}

// NewReservationHandler constructs the handler.  Both dependencies
// must be non-nil.
func NewReservationHandler(svc *reservation.Service, users *repository.UserRepo) *ReservationHandler {
    if svc == nil || users == nil {
        panic("nil dependency passed to NewReservationHandler")
    }
    return &ReservationHandler{Svc: svc, Users: users}
}

// reservationRequest is the wire form of a reservation payload.  Date
// fields arrive as RFC3339 strings and bind straight into *time.Time.
type reservationRequest struct {
    ID                uint64     `json:"id"`
    ChargingStationID string     `json:"chargingStationID"`
    ConnectorID       uint32     `json:"connectorID"`
    UserID            uint64     `json:"userID"`
    CarID             *uint64    `json:"carID"`
    IDTag             string     `json:"idTag"`
    VisualTagID       *string    `json:"visualTagID"`
    ParentIDTag       *string    `json:"parentIdTag"`
    Type              string     `json:"type"`
    FromDate          *time.Time `json:"fromDate"`
    ToDate            *time.Time `json:"toDate"`
    ExpiryDate        *time.Time `json:"expiryDate"`
    ArrivalTime       *time.Time `json:"arrivalTime"`
    DepartureTime     *time.Time `json:"departureTime"`
}

func (req *reservationRequest) toModel() *model.Reservation {
    return &model.Reservation{
        ID:                req.ID,
        ChargingStationID: req.ChargingStationID,
        ConnectorID:       req.ConnectorID,
        UserID:            req.UserID,
        CarID:             req.CarID,
        IDTag:             req.IDTag,
        VisualTagID:       req.VisualTagID,
        ParentIDTag:       req.ParentIDTag,
        Type:              req.Type,
        FromDate:          req.FromDate,
        ToDate:            req.ToDate,
        ExpiryDate:        req.ExpiryDate,
        ArrivalTime:       req.ArrivalTime,
        DepartureTime:     req.DepartureTime,
    }
}

// actor rebuilds the authenticated principal from the JWT claims.
// Site ids are only looked up for SITE_ADMIN, all other roles never
// depend on them.
func (h *ReservationHandler) actor(c echo.Context) (reservation.Actor, error) {
    userID, err := middleware.CurrentUserID(c)
    if err != nil {
        return reservation.Actor{}, err
    }
    tenantID, err := middleware.CurrentTenantID(c)
    if err != nil {
        return reservation.Actor{}, err
    }
    a := reservation.Actor{UserID: userID, TenantID: tenantID, Role: middleware.CurrentRole(c)}
    if a.Role == model.RoleSiteAdmin {
        sites, err := h.Users.SiteIDs(c.Request().Context(), userID)
        if err != nil {
            return reservation.Actor{}, err
        }
        a.SiteIDs = sites
    }
    return a, nil
}

// writeEngineError maps the engine's error kinds onto HTTP responses.
// Collision responses include the blocking reservation ids so clients
// can show what is in the way.
func writeEngineError(c echo.Context, err error) error {
    if ce, ok := reservation.IsCollision(err); ok {
        return c.JSON(http.StatusConflict, echo.Map{
            "error":       "reservation collision",
            "blockingIDs": ce.BlockingIDs,
        })
    }
    switch {
    case errors.Is(err, reservation.ErrInvalidTimeWindow):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    case errors.Is(err, reservation.ErrAlreadyExists):
        return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
    case errors.Is(err, reservation.ErrInvalidTransition):
        return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
    case errors.Is(err, reservation.ErrForbidden):
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    case errors.Is(err, reservation.ErrNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
    case errors.Is(err, reservation.ErrRepository):
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "storage unavailable, retry later"})
    }
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// List handles GET /v1/reservations with optional station, connector,
// user, site, date-range and status filters.  Visibility scoping per
// role happens in the service.
func (h *ReservationHandler) List(c echo.Context) error {
    a, err := h.actor(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var f reservation.Filter
    if v := c.QueryParam("chargingStationID"); v != "" {
        f.StationID = &v
    }
    if v := c.QueryParam("connectorID"); v != "" {
        n, err := strconv.ParseUint(v, 10, 32)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid connectorID"})
        }
        id := uint32(n)
        f.ConnectorID = &id
    }
    if v := c.QueryParam("userID"); v != "" {
        n, err := strconv.ParseUint(v, 10, 64)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid userID"})
        }
        f.UserID = &n
    }
    if v := c.QueryParam("siteID"); v != "" {
        n, err := strconv.ParseUint(v, 10, 64)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid siteID"})
        }
        f.SiteID = &n
    }
    if v := c.QueryParam("from"); v != "" {
        t, err := time.Parse(time.RFC3339, v)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid from date"})
        }
        f.From = &t
    }
    if v := c.QueryParam("to"); v != "" {
        t, err := time.Parse(time.RFC3339, v)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid to date"})
        }
        f.To = &t
    }
    if v := c.QueryParam("status"); v != "" {
        f.Status = &v
    }
    out, err := h.Svc.List(c.Request().Context(), a, f)
    if err != nil {
        return writeEngineError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"reservations": out, "count": len(out)})
}

// Get handles GET /v1/reservations/:id.  An unparsable id is a 400,
// distinct from 404 (absent) and 403 (not yours).
func (h *ReservationHandler) Get(c echo.Context) error {
    a, err := h.actor(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
    }
    r, err := h.Svc.Get(c.Request().Context(), a, id)
    if err != nil {
        return writeEngineError(c, err)
    }
    return c.JSON(http.StatusOK, r)
}

// Create handles POST /v1/reservations.  The id is optional; the
// persisted reservation, with its server-assigned id when none was
// supplied, is returned on success.
func (h *ReservationHandler) Create(c echo.Context) error {
    a, err := h.actor(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req reservationRequest
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if req.UserID == 0 {
        req.UserID = a.UserID
    }
    r, err := h.Svc.Create(c.Request().Context(), a, req.toModel())
    if err != nil {
        return writeEngineError(c, err)
    }
    return c.JSON(http.StatusCreated, r)
}

// Update handles PUT /v1/reservations/:id with full replacement
// semantics.
func (h *ReservationHandler) Update(c echo.Context) error {
    a, err := h.actor(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
    }
    var req reservationRequest
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    req.ID = id
    r, err := h.Svc.Update(c.Request().Context(), a, req.toModel())
    if err != nil {
        return writeEngineError(c, err)
    }
    return c.JSON(http.StatusOK, r)
}

// Cancel handles PUT /v1/reservations/:id/cancel.  The body repeats
// the resource key so the caller provably cancels the resource they
// believe they are cancelling.
func (h *ReservationHandler) Cancel(c echo.Context) error {
    a, err := h.actor(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
    }
    var body struct {
        ChargingStationID string `json:"chargingStationID"`
        ConnectorID       uint32 `json:"connectorID"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if body.ChargingStationID == "" || body.ConnectorID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "chargingStationID and connectorID are required"})
    }
    r, err := h.Svc.Cancel(c.Request().Context(), a, id, body.ChargingStationID, body.ConnectorID)
    if err != nil {
        return writeEngineError(c, err)
    }
    return c.JSON(http.StatusOK, r)
}

// Delete handles DELETE /v1/reservations: hard removal of one or more
// reservations by id list.  Admin-only; a missing id fails the whole
// batch.
func (h *ReservationHandler) Delete(c echo.Context) error {
    a, err := h.actor(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        IDs []uint64 `json:"ids"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if len(body.IDs) == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "ids is required"})
    }
    if err := h.Svc.Delete(c.Request().Context(), a, body.IDs); err != nil {
        return writeEngineError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"deleted": len(body.IDs)})
}
