package contracts

import "time"

// LocationUpdateMessage is broadcast on ExchangeLocationFanout (fanout,
// no routing key) for every captain position report, so any interested
// service can follow captain movement.
type LocationUpdateMessage struct {
	CaptainID string    `json:"captain_id"`
	RideID    string    `json:"ride_id,omitempty"`
	Location  GeoPoint  `json:"location"`
	Timestamp time.Time `json:"timestamp"`
	Envelope
}
