package contracts

import "time"

// RideStatusMessage is published on every ride lifecycle transition.
// Routing key: "ride.status.{status}" on ExchangeRideTopic.
type RideStatusMessage struct {
	RideID     string    `json:"ride_id"`
	Code       string    `json:"code,omitempty"`
	Status     string    `json:"status"` // requested|accepted|arrived|onRide|completed|cancelled|notApprove
	CaptainID  string    `json:"captain_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	FareAmount *float64  `json:"fare_amount,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Envelope
}
