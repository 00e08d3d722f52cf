package ports

import (
	"context"
	"errors"
	"time"

	"ride-dispatch/internal/domain/ride"
)

// ----- DTOs for the Ride Service -----

// RequestRideInput is the validated input required to create a ride.
// Coordinates are (lon, lat) at every boundary.
type RequestRideInput struct {
	PassengerID   string
	PickupLon     float64
	PickupLat     float64
	PickupName    string
	DropoffLon    float64
	DropoffLat    float64
	DropoffName   string
	DistanceKM    float64
	DurationMin   int
	FareAmount    float64 // 0 means "quote from fare policy"
	PaymentMethod string
}

// RequestRideResult is returned by RideService.RequestRide.
type RequestRideResult struct {
	RideID      string  `json:"ride_id"`
	Code        string  `json:"code"`
	Status      string  `json:"status"`
	FareAmount  float64 `json:"fare_amount"`
	Currency    string  `json:"currency"`
	DistanceKM  float64 `json:"distance_km"`
	DurationMin int     `json:"duration_min"`
}

// CancelRideResult is returned by the passenger cancel operations.
type CancelRideResult struct {
	RideID          string  `json:"ride_id"`
	Status          string  `json:"status"`
	CancellationFee float64 `json:"cancellation_fee"`
}

// ----- Ride Service -----

// RideService drives the ride state machine. Every transition is a
// single CompareAndSet; a failed precondition surfaces ride.ErrConflict.
type RideService interface {
	RequestRide(ctx context.Context, in RequestRideInput) (RequestRideResult, error)
	CancelByPassenger(ctx context.Context, passengerID, rideID string) (CancelRideResult, error)

	// Captain-triggered transitions. Each verifies the captain is the
	// one bound to the ride (except Accept, which binds).
	Accept(ctx context.Context, captainID, rideID string) (*ride.Ride, error)
	Arrive(ctx context.Context, captainID, rideID string) (*ride.Ride, error)
	Start(ctx context.Context, captainID, rideID string) (*ride.Ride, error)
	Complete(ctx context.Context, captainID, rideID string) (*ride.Ride, error)
	CancelByCaptain(ctx context.Context, captainID, rideID string) (*ride.Ride, error)
}

// ----- Notifier -----

// ErrNotConnected is returned when the principal has no live connection.
var ErrNotConnected = errors.New("principal not connected")

// Notifier pushes events to connected principals. Implemented by the
// WebSocket event router; a send to a disconnected principal returns
// ErrNotConnected and is never fatal to the caller.
type Notifier interface {
	NotifyPassenger(passengerID, eventType string, payload any) error
	NotifyCaptain(captainID, eventType string, payload any) error

	// CaptainConnected lets the dispatcher skip offers to captains
	// whose socket is gone.
	CaptainConnected(captainID string) bool
}

// ----- Dispatch -----

// DispatchParams are the Dispatcher knobs, read from the config
// provider on each dispatch cycle.
type DispatchParams struct {
	InitialRadiusKM    float64
	MaxRadiusKM        float64
	RadiusIncrementKM  float64
	OfferTimeout       time.Duration
	InterRadiusPause   time.Duration
	MaxDispatchTime    time.Duration
	GraceAfterMaxRadius time.Duration
	SweepInterval      time.Duration
	CaptainLocationTTL time.Duration
	CaptainCooldown    time.Duration
	RestoreWindow      time.Duration
	RestoreRadiusKM    float64
	RestoreMaxOffers   int
}

// DispatchManager owns the per-ride dispatch processes.
type DispatchManager interface {
	// Start launches a dispatch process for the ride unless one is
	// already running. Idempotent.
	Start(ctx context.Context, rideID string)

	// Cancel signals the ride's process to stop. Idempotent.
	Cancel(rideID string)

	// NoteAccepted tells a running process its ride was taken, so it
	// can exit without waiting out the offer window.
	NoteAccepted(rideID string)

	// Running reports whether a process exists for the ride.
	Running(rideID string) bool

	// RunningIDs snapshots the ids with live processes.
	RunningIDs() []string

	// Excluded reports whether the captain is cooling down for this ride.
	Excluded(rideID, captainID string) bool

	// ExcludeFor places the captain on a cooldown for the ride.
	ExcludeFor(rideID, captainID string, d time.Duration)
}

// ----- Config Provider -----

// ConfigProvider serves mutable dispatch and fare parameters. Values
// are re-read on every call (behind a short memoization window) so
// operators can retune without restart.
type ConfigProvider interface {
	Dispatch() DispatchParams
	Fare() ride.FarePolicy
}
