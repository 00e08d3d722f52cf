package dispatch

import (
	"context"
	"errors"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/ports"
)

// gracePollInterval is how often the grace phase re-checks the ride.
const gracePollInterval = 5 * time.Second

// run is one ride's dispatch loop: offer to captains in an expanding
// radius, wait out each offer window, and finally give up with
// notApprove. Offers never bind; the accept is resolved atomically by
// the ride service when a captain answers.
func (m *Manager) run(ctx context.Context, p *process) {
	params := m.cfg.Dispatch()
	ctx = m.logger.WithRideID(ctx, p.rideID)

	r, ok := m.loadRide(ctx, p.rideID)
	if !ok || r.Status != ride.StatusRequested {
		return
	}

	m.logger.Info(ctx, "dispatch_started", "Dispatch process started", map[string]any{
		"ride_id":       p.rideID,
		"initial_km":    params.InitialRadiusKM,
		"max_km":        params.MaxRadiusKM,
		"offer_timeout": params.OfferTimeout.String(),
	})

	deadline := time.Now().Add(params.MaxDispatchTime)
	radius := params.InitialRadiusKM
	offered := make(map[string]bool)

	for {
		// 1) Stop conditions: cancel signal or the ride moved on
		select {
		case <-ctx.Done():
			m.logger.Info(ctx, "dispatch_cancelled", "Dispatch process cancelled", map[string]any{"ride_id": p.rideID})
			return
		case <-p.accepted:
			m.logger.Info(ctx, "dispatch_done", "Ride accepted, dispatch finished", map[string]any{"ride_id": p.rideID})
			return
		default:
		}

		r, ok = m.loadRide(ctx, p.rideID)
		if !ok {
			return
		}
		if r.Status != ride.StatusRequested {
			m.logger.Info(ctx, "dispatch_done", "Ride left requested state, dispatch finished", map[string]any{
				"ride_id": p.rideID, "status": string(r.Status),
			})
			return
		}

		// 2) The total search budget is spent: enter the grace phase
		if time.Now().After(deadline) {
			m.gracePhase(ctx, p, params)
			return
		}

		// 3) Offer to every fresh candidate in the current radius before
		// waiting — concurrent-offer semantics
		count := m.offerRound(ctx, r, radius, offered, params)
		if count > 0 {
			m.logger.Info(ctx, "offers_sent", "Offered ride to candidates", map[string]any{
				"ride_id": p.rideID, "radius_km": radius, "count": count,
			})
		}

		// 4) Wait out the offer window
		if !m.sleep(ctx, p, params.OfferTimeout) {
			continue // accepted or cancelled; loop re-checks and exits
		}

		// 5) Expand the radius, pausing between rings
		if radius < params.MaxRadiusKM {
			if !m.sleep(ctx, p, params.InterRadiusPause) {
				continue
			}
			radius += params.RadiusIncrementKM
			if radius > params.MaxRadiusKM {
				radius = params.MaxRadiusKM
			}
		}
	}
}

// offerRound sends newRide to each eligible captain in the radius,
// nearest first, and returns how many offers went out.
func (m *Manager) offerRound(ctx context.Context, r *ride.Ride, radiusKM float64, offered map[string]bool, params ports.DispatchParams) int {
	candidates, err := m.geo.Nearby(ctx, r.Pickup.Point, radiusKM)
	if err != nil {
		m.logger.Error(ctx, "nearby_failed", "Geo index query failed", err, map[string]any{"ride_id": r.ID})
		return 0
	}

	expiresAt := time.Now().Add(params.OfferTimeout).UTC().Format(time.RFC3339)
	count := 0
	for _, c := range candidates {
		if offered[c.CaptainID] {
			continue
		}
		if m.Excluded(r.ID, c.CaptainID) {
			continue
		}
		if !m.notifier.CaptainConnected(c.CaptainID) {
			continue
		}
		if m.captainBusy(ctx, c.CaptainID) {
			continue
		}

		err := m.notifier.NotifyCaptain(c.CaptainID, contracts.EventNewRide, contracts.NewRideEvent{
			RideID:  r.ID,
			Code:    r.Code,
			Pickup:  contracts.GeoPoint{Lon: r.Pickup.Point.Lon, Lat: r.Pickup.Point.Lat, Name: r.Pickup.Name},
			Dropoff: contracts.GeoPoint{Lon: r.Dropoff.Point.Lon, Lat: r.Dropoff.Point.Lat, Name: r.Dropoff.Name},
			FareAmount: r.FareAmount, Currency: r.Currency,
			DistanceKM: r.DistanceKM, DurationMin: r.DurationMin,
			DistanceToPickupKM: c.DistanceKM,
			ExpiresAt:          expiresAt,
		})
		if err != nil {
			continue
		}
		offered[c.CaptainID] = true
		count++
	}
	return count
}

// gracePhase is the final hold: poll the ride until graceAfterMaxRadius
// runs out, then declare notApprove if still unclaimed.
func (m *Manager) gracePhase(ctx context.Context, p *process, params ports.DispatchParams) {
	m.logger.Info(ctx, "grace_phase", "Entering grace phase", map[string]any{
		"ride_id": p.rideID, "grace": params.GraceAfterMaxRadius.String(),
	})

	poll := gracePollInterval
	if params.GraceAfterMaxRadius < poll {
		poll = params.GraceAfterMaxRadius
	}

	graceEnd := time.Now().Add(params.GraceAfterMaxRadius)
	for time.Now().Before(graceEnd) {
		if !m.sleep(ctx, p, poll) {
			return
		}
		r, ok := m.loadRide(ctx, p.rideID)
		if !ok || r.Status != ride.StatusRequested {
			return
		}
	}

	m.declareNotApproved(ctx, p.rideID)
}

// declareNotApproved closes the search: requested -> notApprove via a
// single conditional update, then tells the passenger. A lost race here
// means a captain accepted at the last moment, which is a success.
func (m *Manager) declareNotApproved(ctx context.Context, rideID string) {
	var r *ride.Ride
	err := m.uow.WithinTx(ctx, func(ctx context.Context) error {
		dispatching := false
		var err error
		r, err = m.rides.CompareAndSet(ctx, rideID, ride.StatusRequested, ports.RidePatch{
			Status:        ride.StatusNotApprove,
			IsDispatching: &dispatching,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ride.ErrConflict) {
			m.logger.Info(ctx, "dispatch_done", "Ride was taken during the grace phase", map[string]any{"ride_id": rideID})
			return
		}
		m.logger.Error(ctx, "not_approve_failed", "Failed to close unclaimed ride", err, map[string]any{"ride_id": rideID})
		return
	}

	m.logger.Info(ctx, "ride_not_approved", "No captain found for ride", map[string]any{"ride_id": rideID})

	_ = m.notifier.NotifyPassenger(r.PassengerID, contracts.EventRideNotApproved, contracts.RideStatusEvent{
		RideID:    r.ID,
		Status:    string(r.Status),
		Timestamp: time.Now().UTC(),
	})
}

// sleep waits for d and reports true when the full wait elapsed; false
// means the process was cancelled or the ride was accepted.
func (m *Manager) sleep(ctx context.Context, p *process, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-p.accepted:
		return false
	case <-timer.C:
		return true
	}
}

// captainBusy reports whether the captain is tied to a non-terminal
// ride. A mid-ride captain can re-enter the geo index with their next
// position report, so candidacy is re-checked against the store.
// Storage trouble counts as busy; the next round re-checks.
func (m *Manager) captainBusy(ctx context.Context, captainID string) bool {
	var active *ride.Ride
	err := m.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		active, err = m.rides.FindActiveForCaptain(ctx, captainID)
		return err
	})
	if err != nil {
		m.logger.Error(ctx, "candidate_check_failed", "Failed to check candidate for an active ride", err,
			map[string]any{"captain_id": captainID})
		return true
	}
	return active != nil
}

// loadRide fetches the ride inside a unit of work; false means the ride
// is gone or storage failed.
func (m *Manager) loadRide(ctx context.Context, rideID string) (*ride.Ride, bool) {
	var r *ride.Ride
	err := m.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		r, err = m.rides.GetByID(ctx, rideID)
		return err
	})
	if err != nil {
		m.logger.Error(ctx, "ride_load_failed", "Failed to load ride", err, map[string]any{"ride_id": rideID})
		return nil, false
	}
	return r, true
}
