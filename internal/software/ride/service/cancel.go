package service

import (
	"context"
	"fmt"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/ports"
)

// CancelByPassenger cancels the passenger's own ride. Allowed from
// requested, accepted and arrived; a ride already underway must be
// completed by the captain. The fee follows the fare policy: free
// inside the grace window or while no captain was engaged.
func (svc *Service) CancelByPassenger(ctx context.Context, passengerID, rideID string) (ports.CancelRideResult, error) {
	ctx = svc.logger.WithRideID(ctx, rideID)

	var out ports.CancelRideResult
	var r *ride.Ride
	var boundCaptain string

	err := svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		current, err := svc.rides.GetByID(ctx, rideID)
		if err != nil {
			return err
		}
		if current.PassengerID != passengerID {
			return fmt.Errorf("%w: ride %s does not belong to passenger %s", ride.ErrNotEligible, rideID, passengerID)
		}

		switch current.Status {
		case ride.StatusRequested, ride.StatusAccepted, ride.StatusArrived:
			// cancellable
		case ride.StatusOnRide:
			return fmt.Errorf("%w: ride is already underway", ride.ErrWrongStatus)
		default:
			return fmt.Errorf("%w: ride is already %s", ride.ErrWrongStatus, current.Status)
		}

		boundCaptain = current.Captain()

		now := time.Now().UTC()
		dispatching := false
		reason := ride.CancelReasonPassenger
		fee := ride.CancellationFee(svc.cfg.Fare(), current.CreatedAt, now, boundCaptain != "")

		r, err = svc.rides.CompareAndSet(ctx, rideID, current.Status, ports.RidePatch{
			Status:             ride.StatusCancelled,
			IsDispatching:      &dispatching,
			EndedAt:            &now,
			CancellationReason: &reason,
			CancellationFee:    &fee,
		})
		return err
	})
	if err != nil {
		return out, err
	}

	svc.logger.Info(ctx, "passenger_cancelled", "Passenger cancelled ride", map[string]any{
		"ride_id": r.ID, "passenger_id": passengerID, "cancellation_fee": r.CancellationFee,
	})

	svc.dispatch.Cancel(r.ID)

	event := contracts.RideCanceledEvent{
		RideID:          r.ID,
		Status:          string(r.Status),
		Reason:          ride.CancelReasonPassenger,
		CancellationFee: r.CancellationFee,
	}
	if boundCaptain != "" {
		svc.links.Unbind(boundCaptain)
		svc.notifyCaptain(ctx, boundCaptain, contracts.EventRideCanceled, event)
	}
	svc.notifyPassenger(ctx, passengerID, contracts.EventRideCanceled, event)
	svc.publishStatus(ctx, r, ride.CancelReasonPassenger)

	out = ports.CancelRideResult{
		RideID:          r.ID,
		Status:          string(r.Status),
		CancellationFee: r.CancellationFee,
	}
	return out, nil
}
