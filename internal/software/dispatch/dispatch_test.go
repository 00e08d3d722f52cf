package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/software/session"
)

// ----- fakes -----

type fakeUOW struct{}

func (fakeUOW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeRepo struct {
	mu    sync.Mutex
	rides map[string]*ride.Ride
}

func newFakeRepo(rides ...*ride.Ride) *fakeRepo {
	repo := &fakeRepo{rides: make(map[string]*ride.Ride)}
	for _, r := range rides {
		repo.rides[r.ID] = r
	}
	return repo
}

func (f *fakeRepo) get(id string) *ride.Ride {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rides[id]; ok {
		cp := *r
		return &cp
	}
	return nil
}

func (f *fakeRepo) setStatus(id string, st ride.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rides[id].Status = st
}

func (f *fakeRepo) LockPrincipal(context.Context, string) error { return nil }

func (f *fakeRepo) Create(_ context.Context, r *ride.Ride) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rides[r.ID] = r
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*ride.Ride, error) {
	if r := f.get(id); r != nil {
		return r, nil
	}
	return nil, ride.ErrNotFound
}

func (f *fakeRepo) FindActiveForPassenger(_ context.Context, passengerID string) (*ride.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rides {
		if r.PassengerID == passengerID && r.Status.Active() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) FindActiveForCaptain(_ context.Context, captainID string) (*ride.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rides {
		if r.BoundTo(captainID) && r.Status.Active() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) CompareAndSet(_ context.Context, id string, expected ride.Status, patch ports.RidePatch) (*ride.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.rides[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	if r.Status != expected {
		return nil, ride.ErrConflict
	}

	r.Status = patch.Status
	if patch.CaptainID != nil {
		r.CaptainID = patch.CaptainID
	} else if patch.ClearCaptain {
		r.CaptainID = nil
	}
	if patch.IsDispatching != nil {
		r.IsDispatching = *patch.IsDispatching
	}
	if patch.CancellationReason != nil {
		r.CancellationReason = patch.CancellationReason
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) ListRequestedExcluding(_ context.Context, excludeIDs []string) ([]*ride.Ride, error) {
	skip := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		skip[id] = true
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*ride.Ride
	for _, r := range f.rides {
		if r.Status == ride.StatusRequested && r.IsDispatching && !skip[r.ID] {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListRequested(_ context.Context, limit int) ([]*ride.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*ride.Ride
	for _, r := range f.rides {
		if r.Status == ride.StatusRequested && len(out) < limit {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindRecentCompletedForPassenger(_ context.Context, _ string, _ time.Duration) (*ride.Ride, error) {
	return nil, nil
}

type fakeGeo struct {
	mu        sync.Mutex
	positions map[string]geo.Point
	reaped    int
}

func newFakeGeo() *fakeGeo { return &fakeGeo{positions: make(map[string]geo.Point)} }

func (f *fakeGeo) Upsert(_ context.Context, captainID string, p geo.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[captainID] = p
	return nil
}

func (f *fakeGeo) Remove(_ context.Context, captainID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.positions, captainID)
	return nil
}

func (f *fakeGeo) Nearby(_ context.Context, p geo.Point, radiusKM float64) ([]ports.CaptainDistance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ports.CaptainDistance
	for id, pos := range f.positions {
		if d := geo.HaversineKM(p, pos); d <= radiusKM {
			out = append(out, ports.CaptainDistance{CaptainID: id, DistanceKM: d})
		}
	}
	return out, nil
}

func (f *fakeGeo) LastKnown(_ context.Context, captainID string) (*geo.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.positions[captainID]; ok {
		return &p, nil
	}
	return nil, nil
}

func (f *fakeGeo) ReapStale(_ context.Context, _ time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.reaped
	f.reaped = 0
	return n, nil
}

type sentEvent struct {
	principal string
	event     string
	payload   any
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []sentEvent
	online map[string]bool
	seen   chan sentEvent
}

func newFakeNotifier(onlineCaptains ...string) *fakeNotifier {
	n := &fakeNotifier{online: make(map[string]bool), seen: make(chan sentEvent, 64)}
	for _, id := range onlineCaptains {
		n.online[id] = true
	}
	return n
}

func (n *fakeNotifier) record(principal, event string, payload any) {
	n.mu.Lock()
	n.events = append(n.events, sentEvent{principal, event, payload})
	n.mu.Unlock()
	select {
	case n.seen <- sentEvent{principal, event, payload}:
	default:
	}
}

func (n *fakeNotifier) NotifyPassenger(id, event string, payload any) error {
	n.record("passenger:"+id, event, payload)
	return nil
}

func (n *fakeNotifier) NotifyCaptain(id, event string, payload any) error {
	n.record("captain:"+id, event, payload)
	return nil
}

func (n *fakeNotifier) CaptainConnected(id string) bool { return n.online[id] }

func (n *fakeNotifier) countFor(principal, event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, e := range n.events {
		if e.principal == principal && e.event == event {
			count++
		}
	}
	return count
}

func (n *fakeNotifier) waitFor(t *testing.T, principal, event string, timeout time.Duration) sentEvent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-n.seen:
			if e.principal == principal && e.event == event {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s -> %s", event, principal)
		}
	}
}

type fakeCfg struct{ params ports.DispatchParams }

func (f fakeCfg) Dispatch() ports.DispatchParams { return f.params }
func (f fakeCfg) Fare() ride.FarePolicy          { return ride.FarePolicy{} }

func fastParams() ports.DispatchParams {
	return ports.DispatchParams{
		InitialRadiusKM:     2,
		MaxRadiusKM:         4,
		RadiusIncrementKM:   1,
		OfferTimeout:        20 * time.Millisecond,
		InterRadiusPause:    5 * time.Millisecond,
		MaxDispatchTime:     400 * time.Millisecond,
		GraceAfterMaxRadius: 30 * time.Millisecond,
		SweepInterval:       50 * time.Millisecond,
		CaptainLocationTTL:  time.Minute,
		CaptainCooldown:     time.Minute,
		RestoreWindow:       30 * time.Minute,
		RestoreRadiusKM:     10,
		RestoreMaxOffers:    5,
	}
}

func requestedRide(id, passengerID string) *ride.Ride {
	return &ride.Ride{
		ID:            id,
		Code:          "ABC123",
		PassengerID:   passengerID,
		Pickup:        ride.Place{Point: geo.Point{Lon: 44.366, Lat: 33.315}},
		Dropoff:       ride.Place{Point: geo.Point{Lon: 44.400, Lat: 33.310}},
		FareAmount:    6000,
		Currency:      "IQD",
		DistanceKM:    5,
		DurationMin:   15,
		Status:        ride.StatusRequested,
		IsDispatching: true,
	}
}

func newTestManager(repo *fakeRepo, g *fakeGeo, n *fakeNotifier, params ports.DispatchParams) *Manager {
	return NewManager(logger.New("dispatch-test"), fakeUOW{}, repo, g, n, fakeCfg{params})
}

// ----- tests -----

func TestDispatchOffersNearbyCaptain(t *testing.T) {
	repo := newFakeRepo(requestedRide("ride-1", "p1"))
	g := newFakeGeo()
	_ = g.Upsert(context.Background(), "c1", geo.Point{Lon: 44.360, Lat: 33.315})
	n := newFakeNotifier("c1")

	m := newTestManager(repo, g, n, fastParams())
	defer m.Shutdown()

	m.Start(context.Background(), "ride-1")

	ev := n.waitFor(t, "captain:c1", contracts.EventNewRide, time.Second)
	offer, ok := ev.payload.(contracts.NewRideEvent)
	if !ok {
		t.Fatalf("payload type = %T, want NewRideEvent", ev.payload)
	}
	if offer.RideID != "ride-1" {
		t.Errorf("offer.RideID = %q, want ride-1", offer.RideID)
	}
	if offer.DistanceToPickupKM <= 0 || offer.DistanceToPickupKM > 2 {
		t.Errorf("DistanceToPickupKM = %v, want within initial radius", offer.DistanceToPickupKM)
	}
}

func TestDispatchStopsOnAccept(t *testing.T) {
	repo := newFakeRepo(requestedRide("ride-1", "p1"))
	g := newFakeGeo()
	_ = g.Upsert(context.Background(), "c1", geo.Point{Lon: 44.360, Lat: 33.315})
	n := newFakeNotifier("c1")

	m := newTestManager(repo, g, n, fastParams())
	defer m.Shutdown()

	m.Start(context.Background(), "ride-1")
	n.waitFor(t, "captain:c1", contracts.EventNewRide, time.Second)

	// the accept path: service flips the status and pokes the process
	repo.setStatus("ride-1", ride.StatusAccepted)
	m.NoteAccepted("ride-1")

	waitUntil(t, time.Second, func() bool { return !m.Running("ride-1") })

	if got := repo.get("ride-1").Status; got != ride.StatusAccepted {
		t.Errorf("status = %q, want accepted", got)
	}
}

func TestDispatchExpandsRadius(t *testing.T) {
	repo := newFakeRepo(requestedRide("ride-1", "p1"))
	g := newFakeGeo()
	// roughly 3 km east of the pickup: outside 2 km, inside 4 km
	_ = g.Upsert(context.Background(), "far", geo.Point{Lon: 44.3982, Lat: 33.315})
	n := newFakeNotifier("far")

	m := newTestManager(repo, g, n, fastParams())
	defer m.Shutdown()

	m.Start(context.Background(), "ride-1")

	ev := n.waitFor(t, "captain:far", contracts.EventNewRide, 2*time.Second)
	offer := ev.payload.(contracts.NewRideEvent)
	if offer.DistanceToPickupKM <= 2 {
		t.Errorf("DistanceToPickupKM = %v, want > initial radius", offer.DistanceToPickupKM)
	}
}

func TestDispatchNotApproveWhenNoCaptains(t *testing.T) {
	repo := newFakeRepo(requestedRide("ride-1", "p1"))
	n := newFakeNotifier()

	m := newTestManager(repo, newFakeGeo(), n, fastParams())
	defer m.Shutdown()

	m.Start(context.Background(), "ride-1")

	n.waitFor(t, "passenger:p1", contracts.EventRideNotApproved, 3*time.Second)

	r := repo.get("ride-1")
	if r.Status != ride.StatusNotApprove {
		t.Errorf("status = %q, want notApprove", r.Status)
	}
	if r.IsDispatching {
		t.Error("IsDispatching still true after notApprove")
	}
	if r.CaptainID != nil {
		t.Error("a captain was bound on an unclaimed ride")
	}
	waitUntil(t, time.Second, func() bool { return !m.Running("ride-1") })
}

func TestDispatchSkipsCooldownCaptain(t *testing.T) {
	repo := newFakeRepo(requestedRide("ride-1", "p1"))
	g := newFakeGeo()
	_ = g.Upsert(context.Background(), "c1", geo.Point{Lon: 44.360, Lat: 33.315})
	n := newFakeNotifier("c1")

	m := newTestManager(repo, g, n, fastParams())
	defer m.Shutdown()

	m.ExcludeFor("ride-1", "c1", time.Minute)
	m.Start(context.Background(), "ride-1")

	// long enough for several offer rounds
	time.Sleep(150 * time.Millisecond)

	if got := n.countFor("captain:c1", contracts.EventNewRide); got != 0 {
		t.Errorf("excluded captain received %d offers, want 0", got)
	}
}

func TestDispatchSkipsBusyCaptain(t *testing.T) {
	// the captain is mid-ride but a position report put them back into
	// the geo index; candidacy is decided by the store, not the index
	captain := "c1"
	busy := requestedRide("ride-busy", "p0")
	busy.Status = ride.StatusOnRide
	busy.CaptainID = &captain

	repo := newFakeRepo(busy, requestedRide("ride-1", "p1"))
	g := newFakeGeo()
	_ = g.Upsert(context.Background(), "c1", geo.Point{Lon: 44.360, Lat: 33.315})
	n := newFakeNotifier("c1")

	m := newTestManager(repo, g, n, fastParams())
	defer m.Shutdown()

	m.Start(context.Background(), "ride-1")

	// long enough for several offer rounds
	time.Sleep(150 * time.Millisecond)

	if got := n.countFor("captain:c1", contracts.EventNewRide); got != 0 {
		t.Errorf("busy captain received %d offers, want 0", got)
	}
}

func TestDispatchSkipsOfflineCaptain(t *testing.T) {
	repo := newFakeRepo(requestedRide("ride-1", "p1"))
	g := newFakeGeo()
	_ = g.Upsert(context.Background(), "ghost", geo.Point{Lon: 44.360, Lat: 33.315})
	n := newFakeNotifier() // nobody online

	m := newTestManager(repo, g, n, fastParams())
	defer m.Shutdown()

	m.Start(context.Background(), "ride-1")
	time.Sleep(100 * time.Millisecond)

	if got := n.countFor("captain:ghost", contracts.EventNewRide); got != 0 {
		t.Errorf("offline captain received %d offers, want 0", got)
	}
}

func TestDispatchCancel(t *testing.T) {
	repo := newFakeRepo(requestedRide("ride-1", "p1"))
	n := newFakeNotifier()

	m := newTestManager(repo, newFakeGeo(), n, fastParams())
	defer m.Shutdown()

	m.Start(context.Background(), "ride-1")
	waitUntil(t, time.Second, func() bool { return m.Running("ride-1") })

	m.Cancel("ride-1")
	waitUntil(t, time.Second, func() bool { return !m.Running("ride-1") })

	// a cancelled search never declares notApprove
	if got := n.countFor("passenger:p1", contracts.EventRideNotApproved); got != 0 {
		t.Errorf("passenger received %d rideNotApproved after cancel, want 0", got)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	repo := newFakeRepo(requestedRide("ride-1", "p1"))
	m := newTestManager(repo, newFakeGeo(), newFakeNotifier(), fastParams())
	defer m.Shutdown()

	m.Start(context.Background(), "ride-1")
	m.Start(context.Background(), "ride-1")
	m.Start(context.Background(), "ride-1")

	if got := len(m.RunningIDs()); got != 1 {
		t.Errorf("RunningIDs len = %d, want 1", got)
	}
}

func TestCooldownExpires(t *testing.T) {
	table := newCooldownTable()
	table.exclude("ride-1", "c1", 10*time.Millisecond)

	if !table.excluded("ride-1", "c1") {
		t.Fatal("captain not excluded immediately after exclude")
	}
	time.Sleep(20 * time.Millisecond)
	if table.excluded("ride-1", "c1") {
		t.Error("captain still excluded after the cooldown expired")
	}
}

// ----- sweeper -----

func TestSweeperRestartsOrphans(t *testing.T) {
	repo := newFakeRepo(requestedRide("ride-1", "p1"))
	m := newTestManager(repo, newFakeGeo(), newFakeNotifier(), fastParams())
	defer m.Shutdown()

	links := session.NewLinks()
	s := NewSweeper(logger.New("sweep-test"), fakeUOW{}, repo, newFakeGeo(), m, fakeCfg{fastParams()}, links)

	if m.Running("ride-1") {
		t.Fatal("process running before sweep")
	}
	s.Sweep(context.Background())
	if !m.Running("ride-1") {
		t.Fatal("sweep did not start a dispatcher for the orphaned ride")
	}

	// a second pass must not duplicate the process
	s.Sweep(context.Background())
	if got := len(m.RunningIDs()); got != 1 {
		t.Errorf("RunningIDs len = %d, want 1", got)
	}
}

func TestSweeperReapsTerminalLinks(t *testing.T) {
	done := requestedRide("ride-done", "p1")
	done.Status = ride.StatusCompleted
	live := requestedRide("ride-live", "p2")
	live.Status = ride.StatusOnRide

	repo := newFakeRepo(done, live)
	m := newTestManager(repo, newFakeGeo(), newFakeNotifier(), fastParams())
	defer m.Shutdown()

	links := session.NewLinks()
	links.Bind("ride-done", "p1", "c1")
	links.Bind("ride-live", "p2", "c2")

	s := NewSweeper(logger.New("sweep-test"), fakeUOW{}, repo, newFakeGeo(), m, fakeCfg{fastParams()}, links)
	s.Sweep(context.Background())

	if _, ok := links.ByCaptain("c1"); ok {
		t.Error("terminal ride's link survived the sweep")
	}
	if _, ok := links.ByCaptain("c2"); !ok {
		t.Error("live ride's link was removed")
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
