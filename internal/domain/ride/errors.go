package ride

import (
	"errors"
	"fmt"
)

// Cross-component error kinds. Components wrap these with %w so
// callers dispatch with errors.Is and the router maps them to stable
// wire reason codes.
var (
	// ErrConflict means a state machine precondition failed (ride
	// taken, wrong status, active ride exists). Never retried.
	ErrConflict = errors.New("ride status conflict")

	// ErrWrongStatus is the conflict where the ride exists and the
	// caller is entitled to it, but it sits in a status the transition
	// does not start from. Wraps ErrConflict, so errors.Is(err,
	// ErrConflict) holds; the router reports it as wrong_status rather
	// than ride_taken.
	ErrWrongStatus = fmt.Errorf("%w: wrong ride status", ErrConflict)

	// ErrNotFound means the ride (or principal) does not exist.
	ErrNotFound = errors.New("ride not found")

	// ErrNotEligible means the principal may not perform the action
	// (e.g. a captain acting on a ride bound to another captain).
	ErrNotEligible = errors.New("principal not eligible for this action")

	// ErrInvalidRequest means a malformed payload; no state changed.
	ErrInvalidRequest = errors.New("invalid request")
)

// Cancellation reasons recorded on the ride.
const (
	CancelReasonPassenger      = "passenger_canceled"
	CancelReasonCaptain        = "captain_canceled"
	CancelReasonNoMatch        = "no_captain_found"
	CancelReasonPassengerAdmin = "admin_canceled"
)
