package websocket

import (
	"context"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
)

// Rehydration: on every successful attach the router replays the
// principal's current ride truth as events, so a reconnecting client
// never has to guess what happened while it was away.

func snapshotOf(r *ride.Ride) contracts.RideSnapshotEvent {
	return contracts.RideSnapshotEvent{
		RideID:          r.ID,
		Code:            r.Code,
		Status:          string(r.Status),
		PassengerID:     r.PassengerID,
		CaptainID:       r.Captain(),
		Pickup:          contracts.GeoPoint{Lon: r.Pickup.Point.Lon, Lat: r.Pickup.Point.Lat, Name: r.Pickup.Name},
		Dropoff:         contracts.GeoPoint{Lon: r.Dropoff.Point.Lon, Lat: r.Dropoff.Point.Lat, Name: r.Dropoff.Name},
		FareAmount:      r.FareAmount,
		Currency:        r.Currency,
		DistanceKM:      r.DistanceKM,
		DurationMin:     r.DurationMin,
		PaymentMethod:   string(r.PaymentMethod),
		CancellationFee: r.CancellationFee,
		AcceptedAt:      r.AcceptedAt,
		ArrivedAt:       r.ArrivedAt,
		StartedAt:       r.StartedAt,
		EndedAt:         r.EndedAt,
	}
}

// statusEvent returns the status-specific event that follows the
// restoration snapshot. forCaptain switches the accepted-state event.
func statusEvent(r *ride.Ride, forCaptain bool) (string, any) {
	now := time.Now().UTC()

	switch r.Status {
	case ride.StatusRequested:
		return contracts.EventRidePending, contracts.RidePendingEvent{
			RideID: r.ID, Code: r.Code, Status: string(r.Status),
			FareAmount: r.FareAmount, Currency: r.Currency,
			DistanceKM: r.DistanceKM, DurationMin: r.DurationMin,
		}
	case ride.StatusAccepted:
		if forCaptain {
			return contracts.EventRideAcceptedConfirmation, contracts.RideAcceptedConfirmationEvent{
				RideID: r.ID, Code: r.Code, Status: string(r.Status), PassengerID: r.PassengerID,
				Pickup:  contracts.GeoPoint{Lon: r.Pickup.Point.Lon, Lat: r.Pickup.Point.Lat, Name: r.Pickup.Name},
				Dropoff: contracts.GeoPoint{Lon: r.Dropoff.Point.Lon, Lat: r.Dropoff.Point.Lat, Name: r.Dropoff.Name},
				FareAmount: r.FareAmount, Currency: r.Currency,
			}
		}
		return contracts.EventRideAccepted, contracts.RideAcceptedEvent{
			RideID: r.ID, Status: string(r.Status),
			Captain: contracts.CaptainBrief{CaptainID: r.Captain()},
		}
	case ride.StatusArrived:
		return contracts.EventDriverArrived, contracts.RideStatusEvent{RideID: r.ID, Status: string(r.Status), Timestamp: now}
	case ride.StatusOnRide:
		return contracts.EventRideStarted, contracts.RideStatusEvent{RideID: r.ID, Status: string(r.Status), Timestamp: now}
	case ride.StatusCompleted:
		return contracts.EventRideCompleted, contracts.RideStatusEvent{
			RideID: r.ID, Status: string(r.Status),
			FareAmount: r.FareAmount, Currency: r.Currency, Timestamp: now,
		}
	case ride.StatusNotApprove:
		return contracts.EventRideNotApproved, contracts.RideStatusEvent{RideID: r.ID, Status: string(r.Status), Timestamp: now}
	default:
		return contracts.EventRideCanceled, contracts.RideCanceledEvent{
			RideID: r.ID, Status: string(r.Status),
			Reason: deref(r.CancellationReason), CancellationFee: r.CancellationFee,
		}
	}
}

// rehydratePassenger replays the passenger's active ride, or a very
// recent completed-but-unrated one, as rideRestored plus the
// status-specific event.
func (rt *Router) rehydratePassenger(ctx context.Context, passengerID string, h *connHandle) {
	var r *ride.Ride
	err := rt.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if r, err = rt.rides.FindActiveForPassenger(ctx, passengerID); err != nil || r != nil {
			return err
		}
		r, err = rt.rides.FindRecentCompletedForPassenger(ctx, passengerID, rt.cfg.Dispatch().RestoreWindow)
		return err
	})
	if err != nil {
		rt.logger.Error(ctx, "rehydrate_failed", "Passenger rehydration query failed", err,
			map[string]any{"passenger_id": passengerID})
		return
	}
	if r == nil {
		return
	}

	_ = h.Send(contracts.EventRideRestored, snapshotOf(r))
	ev, payload := statusEvent(r, false)
	_ = h.Send(ev, payload)

	rt.logger.Info(ctx, "passenger_rehydrated", "Replayed ride state on reconnect",
		map[string]any{"passenger_id": passengerID, "ride_id": r.ID, "status": string(r.Status)})
}

// rehydrateCaptain replays the captain's active ride, or offers nearby
// waiting rides to an idle captain.
func (rt *Router) rehydrateCaptain(ctx context.Context, captainID string, h *connHandle) {
	var r *ride.Ride
	err := rt.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		r, err = rt.rides.FindActiveForCaptain(ctx, captainID)
		return err
	})
	if err != nil {
		rt.logger.Error(ctx, "rehydrate_failed", "Captain rehydration query failed", err,
			map[string]any{"captain_id": captainID})
		return
	}

	if r != nil {
		// restore the sharing link so location forwarding survives restarts
		rt.links.Bind(r.ID, r.PassengerID, captainID)

		_ = h.Send(contracts.EventRestoreRide, snapshotOf(r))
		ev, payload := statusEvent(r, true)
		_ = h.Send(ev, payload)

		rt.logger.Info(ctx, "captain_rehydrated", "Replayed ride state on reconnect",
			map[string]any{"captain_id": captainID, "ride_id": r.ID, "status": string(r.Status)})
		return
	}

	rt.offerNearbyRides(ctx, captainID, h)
}

// offerNearbyRides sends newRide for each waiting ride close to the
// idle captain's last known position, capped by count.
func (rt *Router) offerNearbyRides(ctx context.Context, captainID string, h *connHandle) {
	params := rt.cfg.Dispatch()

	pos, err := rt.geo.LastKnown(ctx, captainID)
	if err != nil || pos == nil {
		return
	}

	var waiting []*ride.Ride
	err = rt.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		waiting, err = rt.rides.ListRequested(ctx, 50)
		return err
	})
	if err != nil {
		rt.logger.Error(ctx, "rehydrate_failed", "Nearby rides query failed", err,
			map[string]any{"captain_id": captainID})
		return
	}

	sent := 0
	for _, r := range waiting {
		if sent >= params.RestoreMaxOffers {
			break
		}
		dist := geo.HaversineKM(*pos, r.Pickup.Point)
		if dist > params.RestoreRadiusKM {
			continue
		}
		_ = h.Send(contracts.EventNewRide, contracts.NewRideEvent{
			RideID:  r.ID,
			Code:    r.Code,
			Pickup:  contracts.GeoPoint{Lon: r.Pickup.Point.Lon, Lat: r.Pickup.Point.Lat, Name: r.Pickup.Name},
			Dropoff: contracts.GeoPoint{Lon: r.Dropoff.Point.Lon, Lat: r.Dropoff.Point.Lat, Name: r.Dropoff.Name},
			FareAmount: r.FareAmount, Currency: r.Currency,
			DistanceKM: r.DistanceKM, DurationMin: r.DurationMin,
			DistanceToPickupKM: dist,
		})
		sent++
	}

	if sent > 0 {
		rt.logger.Info(ctx, "idle_captain_offers", "Offered waiting rides to reconnected captain",
			map[string]any{"captain_id": captainID, "count": sent})
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
