package ride

import (
	"errors"
	"strings"
	"time"

	"ride-dispatch/internal/domain/geo"
)

// Place is a coordinate plus an optional human-readable name.
type Place struct {
	Point geo.Point `json:"point"`
	Name  string    `json:"name,omitempty"`
}

// Ride is the domain entity corresponding to the `rides` table.
type Ride struct {
	// Identity & audit
	ID        string
	Code      string // 6-char base36 human code, unique
	CreatedAt time.Time
	UpdatedAt time.Time

	// Parties
	PassengerID string
	CaptainID   *string // nil until accepted

	// Geometry
	Pickup  Place
	Dropoff Place

	// Economics
	FareAmount      float64
	Currency        string
	DistanceKM      float64
	DurationMin     int
	PaymentMethod   PaymentMethod
	CancellationFee float64

	// Lifecycle
	Status        Status
	IsDispatching bool
	AcceptedAt    *time.Time
	ArrivedAt     *time.Time
	StartedAt     *time.Time
	EndedAt       *time.Time

	CancellationReason *string

	// Rating set by the passenger after completion; nil = not rated.
	PassengerRating *int
}

var (
	ErrPassengerRequired = errors.New("passenger id is required")
	ErrCaptainRequired   = errors.New("captain id is required")
	ErrBadGeometry       = errors.New("pickup or dropoff coordinate out of range")
	ErrBadDistance       = errors.New("distance must be positive")
	ErrBadFare           = errors.New("fare amount must not be negative")
)

// NewRide builds a ride in requested state. The id and code are
// assigned by the store on insert.
func NewRide(passengerID string, pickup, dropoff Place, distanceKM float64, durationMin int, fare float64, currency string, pm PaymentMethod) (*Ride, error) {
	if passengerID = strings.TrimSpace(passengerID); passengerID == "" {
		return nil, ErrPassengerRequired
	}
	if err := pickup.Point.Validate(); err != nil {
		return nil, ErrBadGeometry
	}
	if err := dropoff.Point.Validate(); err != nil {
		return nil, ErrBadGeometry
	}
	if distanceKM <= 0 {
		return nil, ErrBadDistance
	}
	if fare < 0 {
		return nil, ErrBadFare
	}
	if !pm.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	now := time.Now().UTC()
	return &Ride{
		CreatedAt:     now,
		UpdatedAt:     now,
		PassengerID:   passengerID,
		Pickup:        pickup,
		Dropoff:       dropoff,
		FareAmount:    fare,
		Currency:      currency,
		DistanceKM:    distanceKM,
		DurationMin:   durationMin,
		PaymentMethod: pm,
		Status:        StatusRequested,
		IsDispatching: true,
	}, nil
}

// Captain returns the bound captain id or "".
func (ride *Ride) Captain() string {
	if ride.CaptainID == nil {
		return ""
	}
	return *ride.CaptainID
}

// BoundTo reports whether the given captain is the one assigned to this ride.
func (ride *Ride) BoundTo(captainID string) bool {
	return ride.CaptainID != nil && *ride.CaptainID == captainID
}
