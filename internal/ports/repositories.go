package ports

import (
	"context"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RidePatch is the set of fields a single CompareAndSet may install
// alongside the status change. Nil pointers are left untouched.
type RidePatch struct {
	Status ride.Status // target status (required)

	CaptainID    *string // set on accept
	ClearCaptain bool    // unbind on cancel / re-dispatch

	IsDispatching *bool

	AcceptedAt *time.Time
	ArrivedAt  *time.Time
	StartedAt  *time.Time
	EndedAt    *time.Time

	CancellationReason *string
	CancellationFee    *float64
}

// RideRepository defines the methods for managing ride data.
//
// CompareAndSet is the sole mutation path for status transitions: a
// single conditional update keyed on (id, expectedStatus). A
// precondition miss returns ride.ErrConflict, never a silent no-op.
type RideRepository interface {
	// LockPrincipal serializes active-ride checks for one principal
	// (passenger or captain) within the current transaction; the lock
	// is released when the transaction ends. Check-then-create and
	// check-then-accept both touch different rows for the same
	// principal, so the single-active-ride invariant cannot be
	// enforced by CompareAndSet alone.
	LockPrincipal(ctx context.Context, principalID string) error

	Create(ctx context.Context, r *ride.Ride) error
	GetByID(ctx context.Context, id string) (*ride.Ride, error)
	FindActiveForPassenger(ctx context.Context, passengerID string) (*ride.Ride, error)
	FindActiveForCaptain(ctx context.Context, captainID string) (*ride.Ride, error)
	CompareAndSet(ctx context.Context, id string, expected ride.Status, patch RidePatch) (*ride.Ride, error)
	ListRequestedExcluding(ctx context.Context, excludeIDs []string) ([]*ride.Ride, error)
	ListRequested(ctx context.Context, limit int) ([]*ride.Ride, error)
	FindRecentCompletedForPassenger(ctx context.Context, passengerID string, window time.Duration) (*ride.Ride, error)
}

// CaptainDistance is one Nearby result row, ascending by distance.
type CaptainDistance struct {
	CaptainID  string
	DistanceKM float64
}

// GeoIndex stores last known captain positions and answers radius queries.
type GeoIndex interface {
	Upsert(ctx context.Context, captainID string, p geo.Point) error
	Remove(ctx context.Context, captainID string) error
	Nearby(ctx context.Context, p geo.Point, radiusKM float64) ([]CaptainDistance, error)
	LastKnown(ctx context.Context, captainID string) (*geo.Point, error)
	ReapStale(ctx context.Context, ttl time.Duration) (int, error)
}
