package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/software/session"
)

// ----- fakes -----

type fakeHandle struct {
	id string

	mu     sync.Mutex
	frames []sentFrame
}

type sentFrame struct {
	event   string
	payload any
}

func (h *fakeHandle) Send(eventType string, payload any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, sentFrame{eventType, payload})
	return nil
}

func (h *fakeHandle) Close() error { return nil }
func (h *fakeHandle) ID() string   { return h.id }

func (h *fakeHandle) last() (sentFrame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.frames) == 0 {
		return sentFrame{}, false
	}
	return h.frames[len(h.frames)-1], true
}

type fakeGeo struct {
	mu        sync.Mutex
	positions map[string]geo.Point
	upsertErr error
}

func newFakeGeo() *fakeGeo { return &fakeGeo{positions: make(map[string]geo.Point)} }

func (f *fakeGeo) Upsert(_ context.Context, captainID string, p geo.Point) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
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

func (f *fakeGeo) Nearby(_ context.Context, _ geo.Point, _ float64) ([]ports.CaptainDistance, error) {
	return nil, nil
}

func (f *fakeGeo) LastKnown(_ context.Context, captainID string) (*geo.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.positions[captainID]; ok {
		return &p, nil
	}
	return nil, nil
}

func (f *fakeGeo) ReapStale(_ context.Context, _ time.Duration) (int, error) { return 0, nil }

type fakeCfg struct{}

func (fakeCfg) Dispatch() ports.DispatchParams {
	return ports.DispatchParams{RestoreWindow: 30 * time.Minute, RestoreRadiusKM: 10, RestoreMaxOffers: 5}
}
func (fakeCfg) Fare() ride.FarePolicy { return ride.FarePolicy{} }

func newTestRouter(g *fakeGeo) *Router {
	return NewRouter(
		logger.New("ws-test"),
		jwt.NewManager("test-secret-key", time.Hour),
		nil, nil, nil,
		g,
		fakeCfg{},
		session.NewLinks(),
	)
}

func locationBody(t *testing.T, captainID string, lon, lat float64) []byte {
	t.Helper()
	body, err := json.Marshal(contracts.LocationUpdateMessage{
		CaptainID: captainID,
		Location:  contracts.GeoPoint{Lon: lon, Lat: lat},
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

// ----- location consumer -----

func TestProcessLocationUpdateForwardsToLinkedPassenger(t *testing.T) {
	g := newFakeGeo()
	rt := newTestRouter(g)
	rt.links.Bind("ride-1", "p1", "c1")

	h := &fakeHandle{id: "conn-1"}
	rt.passengers.Attach("p1", h)

	if err := rt.processLocationUpdate(context.Background(), locationBody(t, "c1", 44.37, 33.32)); err != nil {
		t.Fatalf("processLocationUpdate: %v", err)
	}

	// a mid-ride captain must not re-enter the candidate index
	if pos, _ := g.LastKnown(context.Background(), "c1"); pos != nil {
		t.Errorf("linked captain was indexed as a candidate: %+v", pos)
	}

	frame, ok := h.last()
	if !ok || frame.event != contracts.EventDriverLocationUpdate {
		t.Fatalf("passenger frame = %+v ok=%v, want driverLocationUpdate", frame, ok)
	}
	ev := frame.payload.(contracts.DriverLocationUpdateEvent)
	if ev.RideID != "ride-1" || ev.CaptainID != "c1" {
		t.Errorf("event = %+v, want ride-1/c1", ev)
	}
}

func TestProcessLocationUpdateWithoutLinkOnlyIndexes(t *testing.T) {
	g := newFakeGeo()
	rt := newTestRouter(g)

	if err := rt.processLocationUpdate(context.Background(), locationBody(t, "c1", 44.37, 33.32)); err != nil {
		t.Fatalf("processLocationUpdate: %v", err)
	}
	if pos, _ := g.LastKnown(context.Background(), "c1"); pos == nil {
		t.Error("position not stored for unlinked captain")
	}
}

func TestProcessLocationUpdateOfflinePassengerIsNotAnError(t *testing.T) {
	rt := newTestRouter(newFakeGeo())
	rt.links.Bind("ride-1", "p1", "c1")
	// no passenger attached

	if err := rt.processLocationUpdate(context.Background(), locationBody(t, "c1", 44.37, 33.32)); err != nil {
		t.Fatalf("offline passenger must not poison the queue: %v", err)
	}
}

func TestProcessLocationUpdateRejectsBadInput(t *testing.T) {
	rt := newTestRouter(newFakeGeo())

	cases := []struct {
		name string
		body []byte
	}{
		{"malformed json", []byte(`{not json`)},
		{"missing captain", locationBody(t, "", 44.37, 33.32)},
		{"longitude out of range", locationBody(t, "c1", 200, 33.32)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := rt.processLocationUpdate(context.Background(), tc.body); err == nil {
				t.Error("expected an error, got nil")
			}
		})
	}
}

func TestProcessLocationUpdateRedeliversOnStorageTrouble(t *testing.T) {
	g := newFakeGeo()
	g.upsertErr = errors.New("redis down")
	rt := newTestRouter(g)

	if err := rt.processLocationUpdate(context.Background(), locationBody(t, "c1", 44.37, 33.32)); err == nil {
		t.Error("storage failure must surface so the broker redelivers")
	}

	// a linked captain skips the index entirely, so the same storage
	// failure must not block the movement forward
	rt.links.Bind("ride-1", "p1", "c1")
	if err := rt.processLocationUpdate(context.Background(), locationBody(t, "c1", 44.37, 33.32)); err != nil {
		t.Errorf("linked captain's report failed on the unused index: %v", err)
	}
}

// ----- notifier -----

func TestNotifyDisconnectedPrincipal(t *testing.T) {
	rt := newTestRouter(newFakeGeo())

	if err := rt.NotifyPassenger("ghost", contracts.EventRidePending, nil); !errors.Is(err, ports.ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
	if rt.CaptainConnected("ghost") {
		t.Error("CaptainConnected true for a captain with no socket")
	}
}

func TestNotifyReachesAttachedHandle(t *testing.T) {
	rt := newTestRouter(newFakeGeo())
	h := &fakeHandle{id: "conn-1"}
	rt.captains.Attach("c1", h)

	if err := rt.NotifyCaptain("c1", contracts.EventNewRide, contracts.NewRideEvent{RideID: "ride-1"}); err != nil {
		t.Fatalf("NotifyCaptain: %v", err)
	}
	frame, ok := h.last()
	if !ok || frame.event != contracts.EventNewRide {
		t.Fatalf("frame = %+v ok=%v, want newRide", frame, ok)
	}
	if !rt.CaptainConnected("c1") {
		t.Error("CaptainConnected false for an attached captain")
	}
}

// ----- rehydration events -----

func TestStatusEventMapping(t *testing.T) {
	captain := "c1"
	reason := ride.CancelReasonPassenger
	base := &ride.Ride{
		ID:          "ride-1",
		Code:        "ABC123",
		PassengerID: "p1",
		CaptainID:   &captain,
		FareAmount:  6000,
		Currency:    "IQD",
	}

	cases := []struct {
		status     ride.Status
		forCaptain bool
		wantEvent  string
	}{
		{ride.StatusRequested, false, contracts.EventRidePending},
		{ride.StatusAccepted, false, contracts.EventRideAccepted},
		{ride.StatusAccepted, true, contracts.EventRideAcceptedConfirmation},
		{ride.StatusArrived, false, contracts.EventDriverArrived},
		{ride.StatusOnRide, false, contracts.EventRideStarted},
		{ride.StatusCompleted, false, contracts.EventRideCompleted},
		{ride.StatusNotApprove, false, contracts.EventRideNotApproved},
		{ride.StatusCancelled, false, contracts.EventRideCanceled},
	}
	for _, tc := range cases {
		r := *base
		r.Status = tc.status
		if tc.status == ride.StatusCancelled {
			r.CancellationReason = &reason
		}

		event, _ := statusEvent(&r, tc.forCaptain)
		if event != tc.wantEvent {
			t.Errorf("statusEvent(%s, forCaptain=%v) = %q, want %q", tc.status, tc.forCaptain, event, tc.wantEvent)
		}
	}
}

func TestCompletedStatusEventCarriesFare(t *testing.T) {
	r := &ride.Ride{ID: "ride-1", Status: ride.StatusCompleted, FareAmount: 7500, Currency: "IQD"}

	_, payload := statusEvent(r, false)
	ev := payload.(contracts.RideStatusEvent)
	if ev.FareAmount != 7500 || ev.Currency != "IQD" {
		t.Errorf("completed event = %+v, want fare 7500 IQD", ev)
	}
}

func TestSnapshotCarriesLifecycleTimestamps(t *testing.T) {
	captain := "c1"
	now := time.Now().UTC()
	r := &ride.Ride{
		ID: "ride-1", Code: "ABC123", Status: ride.StatusOnRide,
		PassengerID: "p1", CaptainID: &captain,
		AcceptedAt: &now, ArrivedAt: &now, StartedAt: &now,
	}

	snap := snapshotOf(r)
	if snap.CaptainID != "c1" || snap.Status != string(ride.StatusOnRide) {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.AcceptedAt == nil || snap.ArrivedAt == nil || snap.StartedAt == nil {
		t.Error("snapshot dropped lifecycle timestamps")
	}
	if snap.EndedAt != nil {
		t.Error("snapshot has EndedAt for a ride still underway")
	}
}
