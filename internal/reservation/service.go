package reservation

import (
    "context"
    "errors"
    "fmt"
    "log"
    "time"

    "github.com/voltgrid/ev-reservation/internal/model"
)

// Store is the durable reservation repository the engine writes
// through.  Implementations must return ErrNotFound (possibly wrapped)
// for absent rows; any other failure is treated as a repository
// failure.  The MySQL implementation lives in internal/repository.
type Store interface {
    // GetByID loads one reservation by primary key.
    GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
    // ListActiveByConnector returns every non-terminal reservation
    // bound to the given connector.
    ListActiveByConnector(ctx context.Context, stationID string, connectorID uint32) ([]model.Reservation, error)
    // List returns reservations matching the filter, newest first.
    List(ctx context.Context, f Filter) ([]model.Reservation, error)
    // Create inserts the reservation, assigning ID when it is zero.
    Create(ctx context.Context, r *model.Reservation) error
    // Update replaces the stored row with r (full replacement).
    Update(ctx context.Context, r *model.Reservation) error
    // UpdateStatus moves a reservation from one status to another as a
    // compare-and-set; it returns ErrNotFound when the row is absent
    // or no longer in the expected status.  txnID, when non-nil, is
    // stored as the consuming transaction.
    UpdateStatus(ctx context.Context, id uint64, from, to string, txnID *string) error
    // Delete hard-removes the given reservations.  A missing id makes
    // the whole call fail with ErrNotFound.
    Delete(ctx context.Context, ids []uint64) error
    // ListDueForExpiry returns SCHEDULED reservations whose deadline
    // has passed at the given instant.
    ListDueForExpiry(ctx context.Context, now time.Time) ([]model.Reservation, error)
}

// Directory resolves the engine's external collaborators: the station
// and connector registry, the user and badge directory and the tenant
// feature flags.
type Directory interface {
    // Station loads a charging station by its charge point id.
    Station(ctx context.Context, id string) (*model.ChargingStation, error)
    // Connector loads one connector of a station.
    Connector(ctx context.Context, stationID string, connectorID uint32) (*model.Connector, error)
    // User loads a user by id.
    User(ctx context.Context, id uint64) (*model.User, error)
    // UserByBadge resolves the owner of a presented badge tag.
    UserByBadge(ctx context.Context, idTag string) (*model.User, error)
    // SiteIDs returns the sites the user administers.
    SiteIDs(ctx context.Context, userID uint64) ([]uint64, error)
    // ReservationsEnabled reports the tenant's reservation feature flag.
    ReservationsEnabled(ctx context.Context, tenantID uint64) (bool, error)
}

// Publisher emits reservation lifecycle events for downstream
// consumers.  A nil publisher disables publishing.
type Publisher interface {
    PublishReservationEvent(ctx context.Context, ev LifecycleEvent) error
}

// LifecycleEvent is the payload handed to the Publisher whenever a
// reservation changes state.
type LifecycleEvent struct {
    Action      string            `json:"action"` // CREATED, UPDATED, CANCELLED, EXPIRED, CONSUMED, COMPLETED
    Reservation model.Reservation `json:"reservation"`
    OccurredAt  time.Time         `json:"occurredAt"`
}

// Filter narrows reservation listings.  Nil pointer fields are not
// applied.  TenantID is always set by the service from the actor's
// tenant; SiteIDs and restrict-to-user scoping are applied by the
// service according to the actor's role.
type Filter struct {
    TenantID    uint64
    StationID   *string
    ConnectorID *uint32
    UserID      *uint64
    SiteID      *uint64
    SiteIDs     []uint64 // site-admin visibility scope; OR-ed with OwnUserID
    OwnUserID   *uint64  // include the actor's own reservations regardless of site scope
    From        *time.Time
    To          *time.Time
    Status      *string
}

// Service is the reservation engine façade invoked by the REST layer
// and the event consumer.  Every mutating call runs, in this fixed
// order: tenant feature check, authorization, time-window validation,
// identity-collision check, time-window-collision check, persistence.
// The collision check and the write happen under a per-connector lock
// so the exclusivity invariant holds under concurrent requests.
type Service struct {
    store Store
    dir   Directory
    pub   Publisher
    locks *keyedMutex
    now   func() time.Time
}

// NewService wires the engine together.  pub may be nil to disable
// event publishing; now may be nil to use the wall clock.
func NewService(store Store, dir Directory, pub Publisher, now func() time.Time) *Service {
    if store == nil || dir == nil {
        panic("nil collaborator passed to NewService")
    }
    if now == nil {
        now = func() time.Time { return time.Now().UTC() }
    }
    return &Service{store: store, dir: dir, pub: pub, locks: newKeyedMutex(), now: now}
}

// gate checks the tenant's reservation feature flag.  Every operation
// of a tenant with the feature disabled is denied regardless of role.
func (s *Service) gate(ctx context.Context, tenantID uint64) error {
    enabled, err := s.dir.ReservationsEnabled(ctx, tenantID)
    if err != nil {
        if errors.Is(err, ErrNotFound) {
            return err
        }
        return repoErr(err)
    }
    if !enabled {
        return fmt.Errorf("%w: reservations disabled for tenant", ErrForbidden)
    }
    return nil
}

// siteOf resolves the site of a station for site-admin authorization.
// Lookups are only issued for SITE_ADMIN actors; other roles never
// depend on the site.
func (s *Service) siteOf(ctx context.Context, actor Actor, stationID string) (uint64, error) {
    if actor.Role != model.RoleSiteAdmin {
        return 0, nil
    }
    st, err := s.dir.Station(ctx, stationID)
    if err != nil {
        if errors.Is(err, ErrNotFound) {
            return 0, err
        }
        return 0, repoErr(err)
    }
    return st.SiteID, nil
}

// Create validates, conflict-checks and persists a new reservation.
// The id may be client-supplied; when zero the store assigns one.  A
// supplied id that already names a different reservation fails with
// ErrAlreadyExists before any window comparison.  A supplied id naming
// the caller's own reservation (same owner and badge) is treated as a
// replacement and follows the update path.
func (s *Service) Create(ctx context.Context, actor Actor, r *model.Reservation) (*model.Reservation, error) {
    if err := s.gate(ctx, actor.TenantID); err != nil {
        return nil, err
    }
    if !Allowed(actor, OpCreate, r, 0) {
        return nil, fmt.Errorf("%w: cannot create reservation for user %d", ErrForbidden, r.UserID)
    }
    now := s.now()
    iv, err := ValidateWindow(r, now)
    if err != nil {
        return nil, err
    }
    if err := s.checkReferences(ctx, r); err != nil {
        return nil, err
    }
    r.TenantID = actor.TenantID
    r.Status = model.StatusScheduled

    unlock := s.locks.Lock(lockKey(r.ChargingStationID, r.ConnectorID))
    defer unlock()

    if r.ID != 0 {
        existing, err := s.store.GetByID(ctx, r.ID)
        switch {
        case err == nil:
            if existing.UserID != r.UserID || existing.IDTag != r.IDTag {
                return nil, fmt.Errorf("%w: id %d", ErrAlreadyExists, r.ID)
            }
            // Same owner re-issuing the same badge replaces the
            // stored reservation.
            return s.replaceLocked(ctx, r, existing, iv, now)
        case errors.Is(err, ErrNotFound):
            // Free id, proceed with the insert.
        default:
            return nil, repoErr(err)
        }
    }
    if err := s.checkWindowLocked(ctx, r, iv, now); err != nil {
        return nil, err
    }
    r.CreatedAt = now
    r.UpdatedAt = now
    if err := s.store.Create(ctx, r); err != nil {
        return nil, repoErr(err)
    }
    s.publish(ctx, "CREATED", r)
    return r, nil
}

// Update applies full-replacement semantics to an existing
// reservation: the new payload is re-validated and re-checked for
// collisions, with the reservation excluded from its own comparison
// set.  When the update moves the reservation to another connector
// both connector locks are held.
func (s *Service) Update(ctx context.Context, actor Actor, r *model.Reservation) (*model.Reservation, error) {
    if err := s.gate(ctx, actor.TenantID); err != nil {
        return nil, err
    }
    existing, err := s.store.GetByID(ctx, r.ID)
    if err != nil {
        if errors.Is(err, ErrNotFound) {
            return nil, err
        }
        return nil, repoErr(err)
    }
    if !Allowed(actor, OpUpdate, existing, 0) {
        return nil, fmt.Errorf("%w: reservation %d", ErrForbidden, r.ID)
    }
    // Reassigning ownership is held to the same standard as creating
    // for that user in the first place.
    if r.UserID != existing.UserID && !Allowed(actor, OpCreate, r, 0) {
        return nil, fmt.Errorf("%w: cannot reassign reservation %d to user %d", ErrForbidden, r.ID, r.UserID)
    }
    now := s.now()
    iv, err := ValidateWindow(r, now)
    if err != nil {
        return nil, err
    }
    if err := s.checkReferences(ctx, r); err != nil {
        return nil, err
    }
    unlock := s.locks.LockPair(
        lockKey(existing.ChargingStationID, existing.ConnectorID),
        lockKey(r.ChargingStationID, r.ConnectorID),
    )
    defer unlock()
    return s.replaceLocked(ctx, r, existing, iv, now)
}

// replaceLocked persists r over existing.  The caller must hold the
// connector lock(s) covering both the old and the new resource key.
func (s *Service) replaceLocked(ctx context.Context, r, existing *model.Reservation, iv Interval, now time.Time) (*model.Reservation, error) {
    if err := s.checkWindowLocked(ctx, r, iv, now); err != nil {
        return nil, err
    }
    r.ID = existing.ID
    r.TenantID = existing.TenantID
    r.Status = existing.Status
    r.CreatedAt = existing.CreatedAt
    r.UpdatedAt = now
    if err := s.store.Update(ctx, r); err != nil {
        if errors.Is(err, ErrNotFound) {
            return nil, err
        }
        return nil, repoErr(err)
    }
    s.publish(ctx, "UPDATED", r)
    return r, nil
}

// checkWindowLocked runs the time-window collision check against the
// active reservations of r's connector.  The caller must hold the
// connector lock.
func (s *Service) checkWindowLocked(ctx context.Context, r *model.Reservation, iv Interval, now time.Time) error {
    active, err := s.store.ListActiveByConnector(ctx, r.ChargingStationID, r.ConnectorID)
    if err != nil {
        return repoErr(err)
    }
    if blocking := FindConflicts(iv, r.ChargingStationID, r.ConnectorID, r.ID, active, now); len(blocking) > 0 {
        return &CollisionError{BlockingIDs: blocking}
    }
    return nil
}

// checkReferences verifies that the station, connector and owner the
// payload points at actually exist.
func (s *Service) checkReferences(ctx context.Context, r *model.Reservation) error {
    if _, err := s.dir.Station(ctx, r.ChargingStationID); err != nil {
        if errors.Is(err, ErrNotFound) {
            return fmt.Errorf("%w: charging station %s", ErrNotFound, r.ChargingStationID)
        }
        return repoErr(err)
    }
    if _, err := s.dir.Connector(ctx, r.ChargingStationID, r.ConnectorID); err != nil {
        if errors.Is(err, ErrNotFound) {
            return fmt.Errorf("%w: connector %d of %s", ErrNotFound, r.ConnectorID, r.ChargingStationID)
        }
        return repoErr(err)
    }
    if _, err := s.dir.User(ctx, r.UserID); err != nil {
        if errors.Is(err, ErrNotFound) {
            return fmt.Errorf("%w: user %d", ErrNotFound, r.UserID)
        }
        return repoErr(err)
    }
    return nil
}

// Get loads a single reservation after authorizing the read.
func (s *Service) Get(ctx context.Context, actor Actor, id uint64) (*model.Reservation, error) {
    if err := s.gate(ctx, actor.TenantID); err != nil {
        return nil, err
    }
    r, err := s.store.GetByID(ctx, id)
    if err != nil {
        if errors.Is(err, ErrNotFound) {
            return nil, err
        }
        return nil, repoErr(err)
    }
    site, err := s.siteOf(ctx, actor, r.ChargingStationID)
    if err != nil {
        return nil, err
    }
    if !Allowed(actor, OpRead, r, site) {
        return nil, fmt.Errorf("%w: reservation %d", ErrForbidden, id)
    }
    return r, nil
}

// List returns reservations visible to the actor.  Admin roles see the
// whole tenant, site admins see their sites plus their own
// reservations and basic users only their own, whatever filters the
// request carried.
func (s *Service) List(ctx context.Context, actor Actor, f Filter) ([]model.Reservation, error) {
    if err := s.gate(ctx, actor.TenantID); err != nil {
        return nil, err
    }
    f.TenantID = actor.TenantID
    switch actor.Role {
    case model.RoleAdmin, model.RoleSuperAdmin:
        // Tenant-wide, filters applied as-is.
    case model.RoleSiteAdmin:
        own := actor.UserID
        f.SiteIDs = actor.SiteIDs
        f.OwnUserID = &own
    default:
        own := actor.UserID
        f.UserID = &own
    }
    out, err := s.store.List(ctx, f)
    if err != nil {
        return nil, repoErr(err)
    }
    return out, nil
}

// Cancel transitions a SCHEDULED reservation to CANCELLED.  The caller
// supplies the resource key alongside the id; a mismatch means the
// caller is not cancelling the resource they believe they are and is
// reported as not found.
func (s *Service) Cancel(ctx context.Context, actor Actor, id uint64, stationID string, connectorID uint32) (*model.Reservation, error) {
    if err := s.gate(ctx, actor.TenantID); err != nil {
        return nil, err
    }
    r, err := s.store.GetByID(ctx, id)
    if err != nil {
        if errors.Is(err, ErrNotFound) {
            return nil, err
        }
        return nil, repoErr(err)
    }
    if r.ChargingStationID != stationID || r.ConnectorID != connectorID {
        return nil, fmt.Errorf("%w: reservation %d is not bound to connector %d of %s", ErrNotFound, id, connectorID, stationID)
    }
    site, err := s.siteOf(ctx, actor, r.ChargingStationID)
    if err != nil {
        return nil, err
    }
    if !Allowed(actor, OpCancel, r, site) {
        return nil, fmt.Errorf("%w: reservation %d", ErrForbidden, id)
    }
    next, err := Transition(r.Status, EventCancel)
    if err != nil {
        return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
    }
    unlock := s.locks.Lock(lockKey(r.ChargingStationID, r.ConnectorID))
    defer unlock()
    if err := s.store.UpdateStatus(ctx, r.ID, r.Status, next, nil); err != nil {
        if errors.Is(err, ErrNotFound) {
            return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
        }
        return nil, repoErr(err)
    }
    r.Status = next
    s.publish(ctx, "CANCELLED", r)
    return r, nil
}

// Delete hard-removes reservations by id.  It is an admin-only
// capability, distinct from cancel; a missing id fails the whole batch
// with ErrNotFound rather than being skipped silently.
func (s *Service) Delete(ctx context.Context, actor Actor, ids []uint64) error {
    if err := s.gate(ctx, actor.TenantID); err != nil {
        return err
    }
    if !Allowed(actor, OpDelete, nil, 0) {
        return fmt.Errorf("%w: delete is admin-only", ErrForbidden)
    }
    for _, id := range ids {
        r, err := s.store.GetByID(ctx, id)
        if err != nil {
            if errors.Is(err, ErrNotFound) {
                return fmt.Errorf("%w: reservation %d", ErrNotFound, id)
            }
            return repoErr(err)
        }
        if r.TenantID != actor.TenantID {
            return fmt.Errorf("%w: reservation %d", ErrForbidden, id)
        }
    }
    if err := s.store.Delete(ctx, ids); err != nil {
        if errors.Is(err, ErrNotFound) {
            return err
        }
        return repoErr(err)
    }
    return nil
}

// Consume reacts to a transaction start reported by the station event
// feed.  When a SCHEDULED reservation on the connector matches the
// presented badge and its window contains now, it transitions to
// IN_PROGRESS and the matched reservation is returned.  The match
// accepts the reservation's own tags directly and, failing that, any
// badge registered to the reservation's owner, so a driver holding
// several cards of one account can start with any of them.  A nil
// reservation with a nil error means no reservation matched and
// ordinary authorization rules apply to the transaction.
func (s *Service) Consume(ctx context.Context, stationID string, connectorID uint32, idTag, transactionID string) (*model.Reservation, error) {
    now := s.now()
    unlock := s.locks.Lock(lockKey(stationID, connectorID))
    defer unlock()
    active, err := s.store.ListActiveByConnector(ctx, stationID, connectorID)
    if err != nil {
        return nil, repoErr(err)
    }
    var badgeOwner *model.User
    ownerResolved := false
    for i := range active {
        r := &active[i]
        if r.Status != model.StatusScheduled {
            continue
        }
        if !badgeMatches(r, idTag) {
            if !ownerResolved {
                ownerResolved = true
                u, err := s.dir.UserByBadge(ctx, idTag)
                switch {
                case err == nil:
                    badgeOwner = u
                case errors.Is(err, ErrNotFound):
                    // Unknown badge, no owner fallback.
                default:
                    return nil, repoErr(err)
                }
            }
            if badgeOwner == nil || badgeOwner.ID != r.UserID {
                continue
            }
        }
        iv, ok := EffectiveInterval(r, now)
        if !ok || now.Before(iv.Start) || !now.Before(iv.End) {
            continue
        }
        txn := transactionID
        if err := s.store.UpdateStatus(ctx, r.ID, model.StatusScheduled, model.StatusInProgress, &txn); err != nil {
            if errors.Is(err, ErrNotFound) {
                continue // lost a race with another transition, keep looking
            }
            return nil, repoErr(err)
        }
        r.Status = model.StatusInProgress
        r.TransactionID = &txn
        s.publish(ctx, "CONSUMED", r)
        return r, nil
    }
    return nil, nil
}

// Complete reacts to a transaction stop: the IN_PROGRESS reservation
// consumed by that transaction, if any, becomes COMPLETED.
func (s *Service) Complete(ctx context.Context, stationID string, connectorID uint32, transactionID string) error {
    unlock := s.locks.Lock(lockKey(stationID, connectorID))
    defer unlock()
    active, err := s.store.ListActiveByConnector(ctx, stationID, connectorID)
    if err != nil {
        return repoErr(err)
    }
    for i := range active {
        r := &active[i]
        if r.Status != model.StatusInProgress || r.TransactionID == nil || *r.TransactionID != transactionID {
            continue
        }
        if err := s.store.UpdateStatus(ctx, r.ID, model.StatusInProgress, model.StatusCompleted, nil); err != nil {
            if errors.Is(err, ErrNotFound) {
                return nil
            }
            return repoErr(err)
        }
        r.Status = model.StatusCompleted
        s.publish(ctx, "COMPLETED", r)
        return nil
    }
    return nil
}

// ExpireDue sweeps SCHEDULED reservations whose window has fully
// elapsed without consumption and transitions them to EXPIRED.  Each
// transition takes its connector lock only for the duration of one
// compare-and-set, so the sweep never stalls foreground traffic.  It
// returns how many reservations were expired.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
    now := s.now()
    due, err := s.store.ListDueForExpiry(ctx, now)
    if err != nil {
        return 0, repoErr(err)
    }
    expired := 0
    for i := range due {
        r := &due[i]
        if !Elapsed(r, now) {
            continue
        }
        unlock := s.locks.Lock(lockKey(r.ChargingStationID, r.ConnectorID))
        err := s.store.UpdateStatus(ctx, r.ID, model.StatusScheduled, model.StatusExpired, nil)
        unlock()
        if err != nil {
            if errors.Is(err, ErrNotFound) {
                continue // already transitioned elsewhere
            }
            return expired, repoErr(err)
        }
        r.Status = model.StatusExpired
        s.publish(ctx, "EXPIRED", r)
        expired++
    }
    return expired, nil
}

// badgeMatches reports whether the presented tag matches the
// reservation's badge, its visual identifier or its parent tag.
func badgeMatches(r *model.Reservation, idTag string) bool {
    if idTag == "" {
        return false
    }
    if r.IDTag == idTag {
        return true
    }
    if r.VisualTagID != nil && *r.VisualTagID == idTag {
        return true
    }
    if r.ParentIDTag != nil && *r.ParentIDTag == idTag {
        return true
    }
    return false
}

// publish emits a lifecycle event.  Publishing failures are logged and
// ignored so the main request flow never fails on broker trouble.
func (s *Service) publish(ctx context.Context, action string, r *model.Reservation) {
    if s.pub == nil {
        return
    }
    ev := LifecycleEvent{Action: action, Reservation: *r, OccurredAt: s.now()}
    if err := s.pub.PublishReservationEvent(ctx, ev); err != nil {
        log.Printf("reservation: publish %s event for %d failed: %v", action, r.ID, err)
    }
}
