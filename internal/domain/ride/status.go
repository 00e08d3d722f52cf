package ride

import (
	"errors"
	"strings"
)

// Status is a ride lifecycle state as stored in the `rides` table.
// The historical data set carried both "cancelled" and "canceled";
// storage is normalized to "cancelled" (the wire event name stays
// rideCanceled for client compatibility).
type Status string

const (
	StatusRequested  Status = "requested"
	StatusAccepted   Status = "accepted"
	StatusArrived    Status = "arrived"
	StatusOnRide     Status = "onRide"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNotApprove Status = "notApprove"
)

var ErrInvalidStatus = errors.New("invalid ride status")

// ParseStatus trims and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.TrimSpace(in))
	if status.Valid() {
		return status, nil
	}
	// accept the legacy single-l spelling on input
	if strings.EqualFold(string(status), "canceled") {
		return StatusCancelled, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed ride status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusRequested, StatusAccepted, StatusArrived, StatusOnRide,
		StatusCompleted, StatusCancelled, StatusNotApprove:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// CanTransitionTo specifies if the status can transition to the next status.
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusRequested:
		return next == StatusAccepted || next == StatusCancelled || next == StatusNotApprove

	case StatusAccepted:
		// back to requested happens on captain cancel (re-dispatch)
		return next == StatusArrived || next == StatusCancelled || next == StatusRequested

	case StatusArrived:
		return next == StatusOnRide || next == StatusCancelled || next == StatusRequested

	case StatusOnRide:
		return next == StatusCompleted

	case StatusCompleted, StatusCancelled, StatusNotApprove:
		return false

	default:
		return false
	}
}

// Terminal indicates if the status is in a terminal state. Terminal
// rides are immutable.
func (status Status) Terminal() bool {
	return status == StatusCompleted || status == StatusCancelled || status == StatusNotApprove
}

// Active reports whether a ride in this status still binds its parties.
func (status Status) Active() bool {
	return !status.Terminal()
}
