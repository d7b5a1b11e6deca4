package reservation

import (
    "context"
    "fmt"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/voltgrid/ev-reservation/internal/model"
)

// stationSites mirrors the fakeDirectory's station registry for the
// store's site-scoped listing.
var stationSites = map[string]uint64{"CS-1": 3, "CS-2": 5}

// fakeStore is an in-memory Store used to exercise the façade without
// a database.  It reproduces the contract the MySQL implementation
// honors: ErrNotFound for absent rows, compare-and-set semantics for
// UpdateStatus and the site-scope-or-own-user widening in List.
type fakeStore struct {
    mu     sync.Mutex
    rows   map[uint64]model.Reservation
    nextID uint64
}

func newFakeStore() *fakeStore {
    return &fakeStore{rows: make(map[uint64]model.Reservation), nextID: 1000}
}

func (s *fakeStore) GetByID(_ context.Context, id uint64) (*model.Reservation, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    r, ok := s.rows[id]
    if !ok {
        return nil, fmt.Errorf("%w: reservation %d", ErrNotFound, id)
    }
    return &r, nil
}

func (s *fakeStore) ListActiveByConnector(_ context.Context, stationID string, connectorID uint32) ([]model.Reservation, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    var out []model.Reservation
    for _, r := range s.rows {
        if r.ChargingStationID == stationID && r.ConnectorID == connectorID && !r.Terminal() {
            out = append(out, r)
        }
    }
    return out, nil
}

func (s *fakeStore) List(_ context.Context, f Filter) ([]model.Reservation, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    var out []model.Reservation
    for _, r := range s.rows {
        if r.TenantID != f.TenantID {
            continue
        }
        if f.UserID != nil && r.UserID != *f.UserID {
            continue
        }
        if f.StationID != nil && r.ChargingStationID != *f.StationID {
            continue
        }
        if f.ConnectorID != nil && r.ConnectorID != *f.ConnectorID {
            continue
        }
        if f.Status != nil && r.Status != *f.Status {
            continue
        }
        if len(f.SiteIDs) > 0 {
            inScope := false
            for _, id := range f.SiteIDs {
                if stationSites[r.ChargingStationID] == id {
                    inScope = true
                }
            }
            own := f.OwnUserID != nil && r.UserID == *f.OwnUserID
            if !inScope && !own {
                continue
            }
        } else if f.OwnUserID != nil && f.UserID == nil && r.UserID != *f.OwnUserID {
            continue
        }
        out = append(out, r)
    }
    return out, nil
}

func (s *fakeStore) Create(_ context.Context, r *model.Reservation) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if r.ID == 0 {
        s.nextID++
        r.ID = s.nextID
    }
    s.rows[r.ID] = *r
    return nil
}

func (s *fakeStore) Update(_ context.Context, r *model.Reservation) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if _, ok := s.rows[r.ID]; !ok {
        return fmt.Errorf("%w: reservation %d", ErrNotFound, r.ID)
    }
    s.rows[r.ID] = *r
    return nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id uint64, from, to string, txnID *string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    r, ok := s.rows[id]
    if !ok || r.Status != from {
        return fmt.Errorf("%w: reservation %d in status %s", ErrNotFound, id, from)
    }
    r.Status = to
    if txnID != nil {
        r.TransactionID = txnID
    }
    s.rows[id] = r
    return nil
}

func (s *fakeStore) Delete(_ context.Context, ids []uint64) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, id := range ids {
        if _, ok := s.rows[id]; !ok {
            return fmt.Errorf("%w: reservation %d", ErrNotFound, id)
        }
    }
    for _, id := range ids {
        delete(s.rows, id)
    }
    return nil
}

func (s *fakeStore) ListDueForExpiry(_ context.Context, now time.Time) ([]model.Reservation, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    var out []model.Reservation
    for _, r := range s.rows {
        if r.Status == model.StatusScheduled && Elapsed(&r, now) {
            out = append(out, r)
        }
    }
    return out, nil
}

// fakeDirectory backs the station/user/tenant lookups.
type fakeDirectory struct {
    stations   map[string]*model.ChargingStation
    connectors map[string]bool
    users      map[uint64]*model.User
    badges     map[string]uint64 // presented tag -> owning user
    badgeErr   error             // forced failure for badge lookups
    tenants    map[uint64]bool
    siteAdmins map[uint64][]uint64
}

func newFakeDirectory() *fakeDirectory {
    return &fakeDirectory{
        stations: map[string]*model.ChargingStation{
            "CS-1": {ID: "CS-1", TenantID: 10, SiteID: 3},
            "CS-2": {ID: "CS-2", TenantID: 10, SiteID: 5},
        },
        connectors: map[string]bool{
            "CS-1#1": true, "CS-1#2": true, "CS-2#1": true,
        },
        users: map[uint64]*model.User{
            7:  {ID: 7, TenantID: 10, Role: model.RoleSiteAdmin},
            42: {ID: 42, TenantID: 10, Role: model.RoleBasicUser},
            99: {ID: 99, TenantID: 10, Role: model.RoleBasicUser},
        },
        badges:     map[string]uint64{"TAG-42": 42, "CARD-42-SPARE": 42, "TAG-99": 99},
        tenants:    map[uint64]bool{10: true, 20: false},
        siteAdmins: map[uint64][]uint64{7: {3}},
    }
}

func (d *fakeDirectory) Station(_ context.Context, id string) (*model.ChargingStation, error) {
    st, ok := d.stations[id]
    if !ok {
        return nil, fmt.Errorf("%w: charging station %s", ErrNotFound, id)
    }
    return st, nil
}

func (d *fakeDirectory) Connector(_ context.Context, stationID string, connectorID uint32) (*model.Connector, error) {
    key := fmt.Sprintf("%s#%d", stationID, connectorID)
    if !d.connectors[key] {
        return nil, fmt.Errorf("%w: connector %d of %s", ErrNotFound, connectorID, stationID)
    }
    return &model.Connector{ChargingStationID: stationID, ConnectorID: connectorID, Status: model.ConnectorAvailable}, nil
}

func (d *fakeDirectory) User(_ context.Context, id uint64) (*model.User, error) {
    u, ok := d.users[id]
    if !ok {
        return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
    }
    return u, nil
}

func (d *fakeDirectory) UserByBadge(_ context.Context, idTag string) (*model.User, error) {
    if d.badgeErr != nil {
        return nil, d.badgeErr
    }
    owner, ok := d.badges[idTag]
    if !ok {
        return nil, fmt.Errorf("%w: badge %s", ErrNotFound, idTag)
    }
    return d.users[owner], nil
}

func (d *fakeDirectory) SiteIDs(_ context.Context, userID uint64) ([]uint64, error) {
    return d.siteAdmins[userID], nil
}

func (d *fakeDirectory) ReservationsEnabled(_ context.Context, tenantID uint64) (bool, error) {
    enabled, ok := d.tenants[tenantID]
    if !ok {
        return false, fmt.Errorf("%w: tenant %d", ErrNotFound, tenantID)
    }
    return enabled, nil
}

// fakePublisher records published lifecycle events.
type fakePublisher struct {
    mu     sync.Mutex
    events []LifecycleEvent
}

func (p *fakePublisher) PublishReservationEvent(_ context.Context, ev LifecycleEvent) error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.events = append(p.events, ev)
    return nil
}

func (p *fakePublisher) actions() []string {
    p.mu.Lock()
    defer p.mu.Unlock()
    out := make([]string, len(p.events))
    for i, ev := range p.events {
        out[i] = ev.Action
    }
    return out
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakePublisher) {
    t.Helper()
    store := newFakeStore()
    pub := &fakePublisher{}
    svc := NewService(store, newFakeDirectory(), pub, func() time.Time { return baseTime })
    return svc, store, pub
}

var (
    adminActor = Actor{UserID: 1, TenantID: 10, Role: model.RoleAdmin}
    basicActor = Actor{UserID: 42, TenantID: 10, Role: model.RoleBasicUser}
    siteActor  = Actor{UserID: 7, TenantID: 10, Role: model.RoleSiteAdmin, SiteIDs: []uint64{3}}
)

// payload builds a creation payload for user 42 on the given connector
// with a planned-usage window expressed in minutes from baseTime.
func payload(station string, connector uint32, startMin, endMin int) *model.Reservation {
    start, end := window(startMin, endMin)
    return &model.Reservation{
        ChargingStationID: station,
        ConnectorID:       connector,
        UserID:            42,
        IDTag:             "TAG-42",
        Type:              model.TypePlanned,
        ArrivalTime:       &start,
        DepartureTime:     &end,
    }
}

func TestCreate_OverlapSameConnectorCollides(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    r1, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)
    require.NotZero(t, r1.ID)
    assert.Equal(t, model.StatusScheduled, r1.Status)

    _, err = svc.Create(ctx, basicActor, payload("CS-1", 1, 90, 105))
    ce, ok := IsCollision(err)
    require.True(t, ok, "expected a collision error, got %v", err)
    assert.Equal(t, []uint64{r1.ID}, ce.BlockingIDs)
}

func TestCreate_DifferentConnectorSucceeds(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    _, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)
    _, err = svc.Create(ctx, basicActor, payload("CS-1", 2, 90, 105))
    assert.NoError(t, err)
}

func TestCreate_TouchingWindowsDoNotCollide(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    _, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)
    _, err = svc.Create(ctx, basicActor, payload("CS-1", 1, 120, 180))
    assert.NoError(t, err, "back-to-back windows sharing one instant are allowed")
}

func TestCreate_DuplicateIDDifferentIdentity(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    first := payload("CS-1", 1, 60, 120)
    first.ID = 42
    _, err := svc.Create(ctx, basicActor, first)
    require.NoError(t, err)

    // Disjoint window, same id, different badge: identity collision
    // must win over the window comparison.
    second := payload("CS-1", 1, 600, 660)
    second.ID = 42
    second.UserID = 99
    second.IDTag = "TAG-99"
    _, err = svc.Create(ctx, Actor{UserID: 99, TenantID: 10, Role: model.RoleBasicUser}, second)
    assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCreate_SameIdentityReplaces(t *testing.T) {
    svc, store, _ := newTestService(t)
    ctx := context.Background()

    first := payload("CS-1", 1, 60, 120)
    first.ID = 42
    _, err := svc.Create(ctx, basicActor, first)
    require.NoError(t, err)

    replacement := payload("CS-1", 1, 200, 260)
    replacement.ID = 42
    got, err := svc.Create(ctx, basicActor, replacement)
    require.NoError(t, err)
    assert.Equal(t, uint64(42), got.ID)

    stored, err := store.GetByID(ctx, 42)
    require.NoError(t, err)
    assert.Equal(t, baseTime.Add(200*time.Minute), *stored.ArrivalTime)
}

func TestCreate_OnBehalfOfAnotherUser(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    p := payload("CS-1", 1, 60, 120)
    p.UserID = 99
    p.IDTag = "TAG-99"
    _, err := svc.Create(ctx, basicActor, p)
    assert.ErrorIs(t, err, ErrForbidden, "basic user cannot reserve for someone else")

    _, err = svc.Create(ctx, adminActor, payload("CS-1", 1, 60, 120))
    assert.NoError(t, err, "the same payload passes for an admin")
}

func TestCreate_TenantFeatureDisabled(t *testing.T) {
    svc, _, _ := newTestService(t)
    disabled := Actor{UserID: 42, TenantID: 20, Role: model.RoleAdmin}
    _, err := svc.Create(context.Background(), disabled, payload("CS-1", 1, 60, 120))
    assert.ErrorIs(t, err, ErrForbidden, "feature gate applies to admins too")
}

func TestCreate_UnknownReferences(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    p := payload("CS-9", 1, 60, 120)
    _, err := svc.Create(ctx, basicActor, p)
    assert.ErrorIs(t, err, ErrNotFound)

    p = payload("CS-1", 9, 60, 120)
    _, err = svc.Create(ctx, basicActor, p)
    assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreate_MissingType(t *testing.T) {
    svc, _, _ := newTestService(t)
    p := payload("CS-1", 1, 60, 120)
    p.Type = ""
    _, err := svc.Create(context.Background(), basicActor, p)
    assert.ErrorIs(t, err, ErrInvalidTimeWindow)
}

func TestCreate_ConcurrentSameWindow(t *testing.T) {
    svc, store, _ := newTestService(t)
    ctx := context.Background()

    const attempts = 20
    var wg sync.WaitGroup
    errs := make([]error, attempts)
    for i := 0; i < attempts; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            _, errs[i] = svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
        }(i)
    }
    wg.Wait()

    succeeded := 0
    for _, err := range errs {
        if err == nil {
            succeeded++
        } else {
            _, ok := IsCollision(err)
            assert.True(t, ok, "losers must fail with a collision, got %v", err)
        }
    }
    assert.Equal(t, 1, succeeded, "exactly one concurrent create may win")

    active, err := store.ListActiveByConnector(ctx, "CS-1", 1)
    require.NoError(t, err)
    assert.Len(t, active, 1)
}

func TestUpdate_SelfExclusion(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    r, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)

    // Shift the window so it still overlaps the old one; only the old
    // self row occupies that range, so the update must succeed.
    upd := payload("CS-1", 1, 90, 150)
    upd.ID = r.ID
    got, err := svc.Update(ctx, basicActor, upd)
    require.NoError(t, err)
    assert.Equal(t, baseTime.Add(90*time.Minute), *got.ArrivalTime)
}

func TestUpdate_CollidesWithOther(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    r1, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)
    r2, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 180, 240))
    require.NoError(t, err)

    upd := payload("CS-1", 1, 100, 200)
    upd.ID = r2.ID
    _, err = svc.Update(ctx, basicActor, upd)
    ce, ok := IsCollision(err)
    require.True(t, ok)
    assert.Equal(t, []uint64{r1.ID}, ce.BlockingIDs)
}

func TestUpdate_ForeignReservationForbidden(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    r, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)

    upd := payload("CS-1", 1, 300, 360)
    upd.ID = r.ID
    other := Actor{UserID: 99, TenantID: 10, Role: model.RoleBasicUser}
    _, err = svc.Update(ctx, other, upd)
    assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpdate_OwnershipReassignmentDenied(t *testing.T) {
    svc, store, _ := newTestService(t)
    ctx := context.Background()

    r, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)

    // Updating one's own reservation must not hand it to someone else.
    upd := payload("CS-1", 1, 60, 120)
    upd.ID = r.ID
    upd.UserID = 99
    upd.IDTag = "TAG-99"
    _, err = svc.Update(ctx, basicActor, upd)
    assert.ErrorIs(t, err, ErrForbidden)

    stored, err := store.GetByID(ctx, r.ID)
    require.NoError(t, err)
    assert.Equal(t, uint64(42), stored.UserID, "owner must be unchanged after the denied update")
}

func TestUpdate_OwnershipReassignmentByAdmin(t *testing.T) {
    svc, store, _ := newTestService(t)
    ctx := context.Background()

    r, err := svc.Create(ctx, adminActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)

    upd := payload("CS-1", 1, 60, 120)
    upd.ID = r.ID
    upd.UserID = 99
    upd.IDTag = "TAG-99"
    _, err = svc.Update(ctx, adminActor, upd)
    require.NoError(t, err)

    stored, err := store.GetByID(ctx, r.ID)
    require.NoError(t, err)
    assert.Equal(t, uint64(99), stored.UserID)
}

func TestCancel_FreesTheWindow(t *testing.T) {
    svc, _, pub := newTestService(t)
    ctx := context.Background()

    r, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)

    cancelled, err := svc.Cancel(ctx, basicActor, r.ID, "CS-1", 1)
    require.NoError(t, err)
    assert.Equal(t, model.StatusCancelled, cancelled.Status)

    // The original window is free again once cancelled.
    _, err = svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    assert.NoError(t, err)
    assert.Contains(t, pub.actions(), "CANCELLED")
}

func TestCancel_ResourceKeyMismatch(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    r, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)

    _, err = svc.Cancel(ctx, basicActor, r.ID, "CS-1", 2)
    assert.ErrorIs(t, err, ErrNotFound, "mismatched resource key must not cancel")
}

func TestCancel_ByOtherBasicUserForbidden(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    r, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)

    other := Actor{UserID: 99, TenantID: 10, Role: model.RoleBasicUser}
    _, err = svc.Cancel(ctx, other, r.ID, "CS-1", 1)
    assert.ErrorIs(t, err, ErrForbidden)
}

func TestCancel_BySiteAdminOfStationSite(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    r, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)

    _, err = svc.Cancel(ctx, siteActor, r.ID, "CS-1", 1)
    assert.NoError(t, err, "CS-1 belongs to site 3, which the actor administers")

    // CS-2 belongs to site 5: out of scope.
    r2, err := svc.Create(ctx, basicActor, payload("CS-2", 1, 60, 120))
    require.NoError(t, err)
    _, err = svc.Cancel(ctx, siteActor, r2.ID, "CS-2", 1)
    assert.ErrorIs(t, err, ErrForbidden)
}

func TestCancel_AlreadyCancelled(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    r, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)
    _, err = svc.Cancel(ctx, basicActor, r.ID, "CS-1", 1)
    require.NoError(t, err)

    _, err = svc.Cancel(ctx, basicActor, r.ID, "CS-1", 1)
    assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDelete_AdminOnlyAndStrict(t *testing.T) {
    svc, store, _ := newTestService(t)
    ctx := context.Background()

    r, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)

    err = svc.Delete(ctx, basicActor, []uint64{r.ID})
    assert.ErrorIs(t, err, ErrForbidden)

    // A missing id is a lookup failure, not a no-op.
    err = svc.Delete(ctx, adminActor, []uint64{r.ID, 424242})
    assert.ErrorIs(t, err, ErrNotFound)
    _, err = store.GetByID(ctx, r.ID)
    assert.NoError(t, err, "failed batch must not remove anything")

    err = svc.Delete(ctx, adminActor, []uint64{r.ID})
    require.NoError(t, err)
    _, err = store.GetByID(ctx, r.ID)
    assert.ErrorIs(t, err, ErrNotFound)
}

func TestConsume_MatchingBadgeInsideWindow(t *testing.T) {
    svc, _, pub := newTestService(t)
    ctx := context.Background()

    // Window containing baseTime, which is the service clock.
    r, err := svc.Create(ctx, basicActor, payload("CS-1", 1, -30, 30))
    require.NoError(t, err)

    got, err := svc.Consume(ctx, "CS-1", 1, "TAG-42", "txn-1")
    require.NoError(t, err)
    require.NotNil(t, got)
    assert.Equal(t, r.ID, got.ID)
    assert.Equal(t, model.StatusInProgress, got.Status)
    require.NotNil(t, got.TransactionID)
    assert.Equal(t, "txn-1", *got.TransactionID)
    assert.Contains(t, pub.actions(), "CONSUMED")
}

func TestConsume_NoMatch(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    _, err := svc.Create(ctx, basicActor, payload("CS-1", 1, -30, 30))
    require.NoError(t, err)

    got, err := svc.Consume(ctx, "CS-1", 1, "TAG-UNKNOWN", "txn-1")
    require.NoError(t, err)
    assert.Nil(t, got, "unknown badge falls through to ordinary authorization")

    got, err = svc.Consume(ctx, "CS-1", 2, "TAG-42", "txn-2")
    require.NoError(t, err)
    assert.Nil(t, got, "other connector has no reservation")
}

func TestConsume_OutsideWindow(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    _, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)

    got, err := svc.Consume(ctx, "CS-1", 1, "TAG-42", "txn-1")
    require.NoError(t, err)
    assert.Nil(t, got, "an early arrival does not consume a future window")
}

func TestConsume_ParentTagMatches(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    p := payload("CS-1", 1, -30, 30)
    parent := "FLEET-7"
    p.ParentIDTag = &parent
    _, err := svc.Create(ctx, basicActor, p)
    require.NoError(t, err)

    got, err := svc.Consume(ctx, "CS-1", 1, "FLEET-7", "txn-1")
    require.NoError(t, err)
    assert.NotNil(t, got)
}

func TestConsume_SecondaryBadgeOfOwner(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    r, err := svc.Create(ctx, basicActor, payload("CS-1", 1, -30, 30))
    require.NoError(t, err)

    // Not the tag stored on the reservation, but registered to the
    // same account.
    got, err := svc.Consume(ctx, "CS-1", 1, "CARD-42-SPARE", "txn-1")
    require.NoError(t, err)
    require.NotNil(t, got)
    assert.Equal(t, r.ID, got.ID)

    // Another user's badge must not consume it.
    svc2, _, _ := newTestService(t)
    _, err = svc2.Create(ctx, basicActor, payload("CS-1", 1, -30, 30))
    require.NoError(t, err)
    got, err = svc2.Consume(ctx, "CS-1", 1, "TAG-99", "txn-2")
    require.NoError(t, err)
    assert.Nil(t, got)
}

func TestComplete_FinishesConsumedReservation(t *testing.T) {
    svc, store, _ := newTestService(t)
    ctx := context.Background()

    r, err := svc.Create(ctx, basicActor, payload("CS-1", 1, -30, 30))
    require.NoError(t, err)
    _, err = svc.Consume(ctx, "CS-1", 1, "TAG-42", "txn-1")
    require.NoError(t, err)

    require.NoError(t, svc.Complete(ctx, "CS-1", 1, "txn-1"))
    stored, err := store.GetByID(ctx, r.ID)
    require.NoError(t, err)
    assert.Equal(t, model.StatusCompleted, stored.Status)
}

func TestExpireDue(t *testing.T) {
    svc, store, pub := newTestService(t)
    ctx := context.Background()

    past := payload("CS-1", 1, -120, -60)
    // Bypass Create: its validator rejects already-elapsed windows, but
    // rows like this exist after time passes.
    past.ID = 1
    past.TenantID = 10
    past.Status = model.StatusScheduled
    require.NoError(t, store.Create(ctx, past))

    // Past planned departure with a still-open validity window: the
    // planned-usage window takes precedence, so this one is due too.
    mixed := payload("CS-1", 2, -180, -120)
    mixed.ID = 2
    mixed.TenantID = 10
    mixed.Status = model.StatusScheduled
    toDate := baseTime.Add(8 * time.Hour)
    mixed.ToDate = &toDate
    require.NoError(t, store.Create(ctx, mixed))

    future, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)

    n, err := svc.ExpireDue(ctx)
    require.NoError(t, err)
    assert.Equal(t, 2, n)

    for _, id := range []uint64{1, 2} {
        expired, err := store.GetByID(ctx, id)
        require.NoError(t, err)
        assert.Equal(t, model.StatusExpired, expired.Status)
    }

    kept, err := store.GetByID(ctx, future.ID)
    require.NoError(t, err)
    assert.Equal(t, model.StatusScheduled, kept.Status)
    assert.Contains(t, pub.actions(), "EXPIRED")
}

func TestList_ScopedByRole(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    _, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)
    foreign := payload("CS-1", 2, 60, 120)
    foreign.UserID = 99
    foreign.IDTag = "TAG-99"
    _, err = svc.Create(ctx, adminActor, foreign)
    require.NoError(t, err)

    mine, err := svc.List(ctx, basicActor, Filter{})
    require.NoError(t, err)
    require.Len(t, mine, 1)
    assert.Equal(t, uint64(42), mine[0].UserID)

    all, err := svc.List(ctx, adminActor, Filter{})
    require.NoError(t, err)
    assert.Len(t, all, 2)

    // A basic user cannot widen the scope with a userID filter.
    other := uint64(99)
    sneaky, err := svc.List(ctx, basicActor, Filter{UserID: &other})
    require.NoError(t, err)
    require.Len(t, sneaky, 1)
    assert.Equal(t, uint64(42), sneaky[0].UserID)
}

func TestList_SiteAdminScope(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    // Someone else's reservation on a site the actor administers.
    _, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)

    // Someone else's reservation outside the actor's sites.
    outside := payload("CS-2", 1, 60, 120)
    _, err = svc.Create(ctx, basicActor, outside)
    require.NoError(t, err)

    // The actor's own reservation, also outside their sites.
    own := payload("CS-2", 1, 180, 240)
    own.UserID = 7
    own.IDTag = "TAG-7"
    _, err = svc.Create(ctx, siteActor, own)
    require.NoError(t, err)

    got, err := svc.List(ctx, siteActor, Filter{})
    require.NoError(t, err)
    require.Len(t, got, 2, "site scope plus the actor's own reservations")
    for _, r := range got {
        onSite := stationSites[r.ChargingStationID] == 3
        assert.True(t, onSite || r.UserID == 7,
            "reservation %d must be on an administered site or owned by the actor", r.ID)
    }
}

func TestConsume_BadgeLookupFailure(t *testing.T) {
    store := newFakeStore()
    dir := newFakeDirectory()
    svc := NewService(store, dir, nil, func() time.Time { return baseTime })
    ctx := context.Background()

    _, err := svc.Create(ctx, basicActor, payload("CS-1", 1, -30, 30))
    require.NoError(t, err)

    // A failing directory must surface as a repository failure, not be
    // mistaken for an unknown badge.
    dir.badgeErr = fmt.Errorf("connection reset")
    _, err = svc.Consume(ctx, "CS-1", 1, "CARD-42-SPARE", "txn-1")
    assert.ErrorIs(t, err, ErrRepository)
}

func TestGet_DistinctErrors(t *testing.T) {
    svc, _, _ := newTestService(t)
    ctx := context.Background()

    r, err := svc.Create(ctx, basicActor, payload("CS-1", 1, 60, 120))
    require.NoError(t, err)

    _, err = svc.Get(ctx, basicActor, 424242)
    assert.ErrorIs(t, err, ErrNotFound)

    other := Actor{UserID: 99, TenantID: 10, Role: model.RoleBasicUser}
    _, err = svc.Get(ctx, other, r.ID)
    assert.ErrorIs(t, err, ErrForbidden)

    got, err := svc.Get(ctx, basicActor, r.ID)
    require.NoError(t, err)
    assert.Equal(t, r.ID, got.ID)
}
