package contracts

import (
	"encoding/json"
	"time"
)

// Envelope adds cross-cutting headers all broker messages may carry.
type Envelope struct {
	CorrelationID string    `json:"correlation_id,omitempty"` // Correlation for tracing across services
	Producer      string    `json:"producer,omitempty"`       // Producer service name, e.g. "dispatch-service"
	SentAt        time.Time `json:"sent_at,omitempty"`        // ISO-8601 send time (UTC)
}

// WSMessage is the outer frame of every WebSocket message in both
// directions: a type tag plus a raw payload decoded per type.
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// GeoPoint is a (lon, lat) coordinate with an optional place name.
// Longitude always comes first in our APIs.
type GeoPoint struct {
	Lon  float64 `json:"lon"`
	Lat  float64 `json:"lat"`
	Name string  `json:"name,omitempty"`
}

// CaptainBrief is the captain info shared with a passenger on accept.
type CaptainBrief struct {
	CaptainID string    `json:"captainId"`
	Location  *GeoPoint `json:"location,omitempty"`
}
