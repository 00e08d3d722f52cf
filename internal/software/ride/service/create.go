package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/ports"
)

// RequestRide creates a ride for the passenger and starts the dispatch
// search. A passenger with an active ride is rejected with a conflict;
// completing or cancelling it first is their call to make.
func (svc *Service) RequestRide(ctx context.Context, in ports.RequestRideInput) (ports.RequestRideResult, error) {
	var out ports.RequestRideResult

	// 1) Validate geometry up front
	pickup := ride.Place{Point: geo.Point{Lon: in.PickupLon, Lat: in.PickupLat}, Name: in.PickupName}
	dropoff := ride.Place{Point: geo.Point{Lon: in.DropoffLon, Lat: in.DropoffLat}, Name: in.DropoffName}

	if err := pickup.Point.Validate(); err != nil {
		return out, fmt.Errorf("%w: pickup: %s", ride.ErrInvalidRequest, err)
	}
	if err := dropoff.Point.Validate(); err != nil {
		return out, fmt.Errorf("%w: dropoff: %s", ride.ErrInvalidRequest, err)
	}

	pm, err := ride.ParsePaymentMethod(in.PaymentMethod)
	if err != nil {
		return out, fmt.Errorf("%w: %s", ride.ErrInvalidRequest, err)
	}

	// 2) Fill in what the client did not provide
	distance := in.DistanceKM
	if distance <= 0 {
		distance = geo.HaversineKM(pickup.Point, dropoff.Point)
	}
	duration := in.DurationMin
	if duration <= 0 {
		duration = geo.EstimateDurationMinutes(distance)
	}

	policy := svc.cfg.Fare()
	fare := in.FareAmount
	if fare <= 0 {
		fare = ride.ComputeFare(policy, distance, duration, time.Now())
	}

	r, err := ride.NewRide(in.PassengerID, pickup, dropoff, distance, duration, fare, policy.Currency, pm)
	if err != nil {
		return out, fmt.Errorf("%w: %s", ride.ErrInvalidRequest, err)
	}

	// 3) Create, guarding against a second active ride. The principal
	// lock serializes concurrent requests from the same passenger, so
	// the loser's check sees the winner's committed ride.
	err = svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		if err := svc.rides.LockPrincipal(ctx, in.PassengerID); err != nil {
			return err
		}
		active, err := svc.rides.FindActiveForPassenger(ctx, in.PassengerID)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("%w: passenger has an active ride %s", ride.ErrConflict, active.ID)
		}
		return svc.rides.Create(ctx, r)
	})
	if err != nil {
		if errors.Is(err, ride.ErrConflict) {
			svc.logger.Info(ctx, "ride_request_rejected", "Passenger already has an active ride",
				map[string]any{"passenger_id": in.PassengerID})
		}
		return out, err
	}

	ctx = svc.logger.WithRideID(ctx, r.ID)
	svc.logger.Info(ctx, "ride_requested", "Ride created, starting dispatch", map[string]any{
		"ride_id":      r.ID,
		"code":         r.Code,
		"passenger_id": r.PassengerID,
		"fare_amount":  r.FareAmount,
		"distance_km":  r.DistanceKM,
	})

	// 4) Kick off the search and confirm to the passenger
	svc.dispatch.Start(ctx, r.ID)

	svc.notifyPassenger(ctx, r.PassengerID, contracts.EventRidePending, contracts.RidePendingEvent{
		RideID:      r.ID,
		Code:        r.Code,
		Status:      string(r.Status),
		FareAmount:  r.FareAmount,
		Currency:    r.Currency,
		DistanceKM:  r.DistanceKM,
		DurationMin: r.DurationMin,
	})
	svc.publishStatus(ctx, r, "")

	out = ports.RequestRideResult{
		RideID:      r.ID,
		Code:        r.Code,
		Status:      string(r.Status),
		FareAmount:  r.FareAmount,
		Currency:    r.Currency,
		DistanceKM:  r.DistanceKM,
		DurationMin: r.DurationMin,
	}
	return out, nil
}
