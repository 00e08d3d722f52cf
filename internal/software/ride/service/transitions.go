package service

import (
	"context"
	"fmt"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/ports"
)

// Accept binds the captain to a requested ride. Concurrent accepts race
// on a single conditional update; exactly one captain wins, the rest
// get ride.ErrConflict ("ride taken").
func (svc *Service) Accept(ctx context.Context, captainID, rideID string) (*ride.Ride, error) {
	ctx = svc.logger.WithRideID(ctx, rideID)

	var r *ride.Ride
	err := svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		// 1) A captain with an active ride cannot take another. The
		// principal lock serializes concurrent accepts by the same
		// captain across different rides.
		if err := svc.rides.LockPrincipal(ctx, captainID); err != nil {
			return err
		}
		active, err := svc.rides.FindActiveForCaptain(ctx, captainID)
		if err != nil {
			return err
		}
		if active != nil && active.ID != rideID {
			return fmt.Errorf("%w: captain already has an active ride %s", ride.ErrConflict, active.ID)
		}

		// 2) The atomic claim: requested -> accepted
		now := time.Now().UTC()
		dispatching := false
		r, err = svc.rides.CompareAndSet(ctx, rideID, ride.StatusRequested, ports.RidePatch{
			Status:        ride.StatusAccepted,
			CaptainID:     &captainID,
			IsDispatching: &dispatching,
			AcceptedAt:    &now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	svc.logger.Info(ctx, "ride_accepted", "Captain accepted ride", map[string]any{
		"ride_id": r.ID, "captain_id": captainID, "passenger_id": r.PassengerID,
	})

	// 3) Tear down the search and install the routing link
	svc.dispatch.NoteAccepted(r.ID)
	svc.links.Bind(r.ID, r.PassengerID, captainID)

	// A captain on a ride is not a dispatch candidate; their position
	// returns to the index with their next location report.
	brief := contracts.CaptainBrief{CaptainID: captainID}
	if pos, err := svc.geo.LastKnown(ctx, captainID); err == nil && pos != nil {
		brief.Location = &contracts.GeoPoint{Lon: pos.Lon, Lat: pos.Lat}
	}
	if err := svc.geo.Remove(ctx, captainID); err != nil {
		svc.logger.Error(ctx, "geo_remove_failed", "Failed to remove accepted captain from geo index", err,
			map[string]any{"captain_id": captainID})
	}

	// 4) Tell both sides
	svc.notifyPassenger(ctx, r.PassengerID, contracts.EventRideAccepted, contracts.RideAcceptedEvent{
		RideID:  r.ID,
		Status:  string(r.Status),
		Captain: brief,
	})
	svc.notifyCaptain(ctx, captainID, contracts.EventRideAcceptedConfirmation, contracts.RideAcceptedConfirmationEvent{
		RideID:      r.ID,
		Code:        r.Code,
		Status:      string(r.Status),
		PassengerID: r.PassengerID,
		Pickup:      geoPointOf(r.Pickup),
		Dropoff:     geoPointOf(r.Dropoff),
		FareAmount:  r.FareAmount,
		Currency:    r.Currency,
	})
	svc.publishStatus(ctx, r, "")

	return r, nil
}

// Arrive marks the captain at the pickup point: accepted -> arrived.
func (svc *Service) Arrive(ctx context.Context, captainID, rideID string) (*ride.Ride, error) {
	now := time.Now().UTC()
	return svc.captainTransition(ctx, captainID, rideID,
		ride.StatusAccepted,
		ports.RidePatch{Status: ride.StatusArrived, ArrivedAt: &now},
		contracts.EventDriverArrived, "captain_arrived")
}

// Start begins the trip: arrived -> onRide.
func (svc *Service) Start(ctx context.Context, captainID, rideID string) (*ride.Ride, error) {
	now := time.Now().UTC()
	return svc.captainTransition(ctx, captainID, rideID,
		ride.StatusArrived,
		ports.RidePatch{Status: ride.StatusOnRide, StartedAt: &now},
		contracts.EventRideStarted, "ride_started")
}

// Complete ends the trip: onRide -> completed. The sharing link is torn
// down and the final fare goes out with the event.
func (svc *Service) Complete(ctx context.Context, captainID, rideID string) (*ride.Ride, error) {
	now := time.Now().UTC()
	r, err := svc.captainTransition(ctx, captainID, rideID,
		ride.StatusOnRide,
		ports.RidePatch{Status: ride.StatusCompleted, EndedAt: &now},
		contracts.EventRideCompleted, "ride_completed")
	if err != nil {
		return nil, err
	}
	svc.links.Unbind(captainID)
	return r, nil
}

// captainTransition is the shared shape of arrived/started/completed:
// verify the caller is the bound captain, run the conditional update,
// notify both sides and publish.
func (svc *Service) captainTransition(
	ctx context.Context,
	captainID, rideID string,
	expected ride.Status,
	patch ports.RidePatch,
	eventType, action string,
) (*ride.Ride, error) {
	ctx = svc.logger.WithRideID(ctx, rideID)

	var r *ride.Ride
	err := svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		current, err := svc.rides.GetByID(ctx, rideID)
		if err != nil {
			return err
		}
		if !current.BoundTo(captainID) {
			return fmt.Errorf("%w: ride %s is not bound to captain %s", ride.ErrNotEligible, rideID, captainID)
		}
		if current.Status != expected {
			// the caller owns the ride, so this is a sequencing error,
			// not a lost race against another captain
			return fmt.Errorf("%w: ride %s is %s, not %s", ride.ErrWrongStatus, rideID, current.Status, expected)
		}

		r, err = svc.rides.CompareAndSet(ctx, rideID, expected, patch)
		return err
	})
	if err != nil {
		return nil, err
	}

	svc.logger.Info(ctx, action, "Ride transitioned", map[string]any{
		"ride_id": r.ID, "captain_id": captainID, "status": string(r.Status),
	})

	event := contracts.RideStatusEvent{
		RideID:    r.ID,
		Status:    string(r.Status),
		Timestamp: time.Now().UTC(),
	}
	if r.Status == ride.StatusCompleted {
		event.FareAmount = r.FareAmount
		event.Currency = r.Currency
	}

	svc.notifyPassenger(ctx, r.PassengerID, eventType, event)
	svc.notifyCaptain(ctx, captainID, eventType, event)
	svc.publishStatus(ctx, r, "")

	return r, nil
}

// CancelByCaptain releases an accepted or arrived ride back to the
// search. The ride returns to requested, the captain goes on a cooldown
// so the fresh dispatch round skips them, and the passenger keeps
// waiting rather than being cancelled outright.
func (svc *Service) CancelByCaptain(ctx context.Context, captainID, rideID string) (*ride.Ride, error) {
	ctx = svc.logger.WithRideID(ctx, rideID)

	var r *ride.Ride
	err := svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		current, err := svc.rides.GetByID(ctx, rideID)
		if err != nil {
			return err
		}
		if !current.BoundTo(captainID) {
			return fmt.Errorf("%w: ride %s is not bound to captain %s", ride.ErrNotEligible, rideID, captainID)
		}
		if current.Status != ride.StatusAccepted && current.Status != ride.StatusArrived {
			return fmt.Errorf("%w: cannot release ride in status %s", ride.ErrWrongStatus, current.Status)
		}

		dispatching := true
		reason := ride.CancelReasonCaptain
		r, err = svc.rides.CompareAndSet(ctx, rideID, current.Status, ports.RidePatch{
			Status:             ride.StatusRequested,
			ClearCaptain:       true,
			IsDispatching:      &dispatching,
			CancellationReason: &reason,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	svc.logger.Info(ctx, "captain_cancelled", "Captain released ride, re-dispatching", map[string]any{
		"ride_id": r.ID, "captain_id": captainID,
	})

	svc.links.Unbind(captainID)

	// The cooldown must be in place before the new process starts, or
	// the first offer round could go right back to the same captain.
	svc.dispatch.ExcludeFor(r.ID, captainID, svc.cfg.Dispatch().CaptainCooldown)
	svc.dispatch.Start(ctx, r.ID)

	svc.notifyPassenger(ctx, r.PassengerID, contracts.EventRideCanceled, contracts.RideCanceledEvent{
		RideID: r.ID,
		Status: string(r.Status),
		Reason: ride.CancelReasonCaptain,
	})
	svc.publishStatus(ctx, r, ride.CancelReasonCaptain)

	return r, nil
}
