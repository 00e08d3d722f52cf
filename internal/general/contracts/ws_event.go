package contracts

import "time"

// WebSocket payloads. Field names use the camelCase wire convention the
// mobile clients already speak.

// ----- Inbound (passenger) -----

// RequestRideMessage is the passenger's "requestRide" payload.
type RequestRideMessage struct {
	Origin        GeoPoint `json:"origin"`
	Destination   GeoPoint `json:"destination"`
	Distance      float64  `json:"distance"` // km
	Duration      int      `json:"duration"` // minutes
	FareAmount    float64  `json:"fareAmount,omitempty"`
	PaymentMethod string   `json:"paymentMethod,omitempty"`
}

// ----- Inbound (both roles) -----

// RideActionMessage covers every inbound message that just references a
// ride: acceptRide, cancelRide, arrived, startRide, endRide.
type RideActionMessage struct {
	RideID string `json:"rideId"`
}

// UpdateLocationMessage is the captain's periodic position report.
type UpdateLocationMessage struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// ----- Outbound (passenger) -----

// RidePendingEvent confirms a ride was created and dispatch started.
type RidePendingEvent struct {
	RideID      string  `json:"rideId"`
	Code        string  `json:"code"`
	Status      string  `json:"status"`
	FareAmount  float64 `json:"fareAmount"`
	Currency    string  `json:"currency"`
	DistanceKM  float64 `json:"distanceKm"`
	DurationMin int     `json:"durationMin"`
}

// RideAcceptedEvent tells the passenger who took the ride.
type RideAcceptedEvent struct {
	RideID  string       `json:"rideId"`
	Status  string       `json:"status"`
	Captain CaptainBrief `json:"captain"`
}

// RideStatusEvent carries the plain status transitions:
// driverArrived, rideStarted, rideCompleted, rideNotApproved.
type RideStatusEvent struct {
	RideID     string    `json:"rideId"`
	Status     string    `json:"status"`
	FareAmount float64   `json:"fareAmount,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// RideCanceledEvent reports a cancellation to either side.
type RideCanceledEvent struct {
	RideID          string  `json:"rideId"`
	Status          string  `json:"status"`
	Reason          string  `json:"reason"`
	CancellationFee float64 `json:"cancellationFee,omitempty"`
}

// DriverLocationUpdateEvent forwards captain movement to the linked passenger.
type DriverLocationUpdateEvent struct {
	CaptainID string    `json:"captainId"`
	RideID    string    `json:"rideId,omitempty"`
	Location  GeoPoint  `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

// ----- Outbound (captain) -----

// NewRideEvent is a dispatch offer to a candidate captain. It does not
// bind; acceptance is resolved by the first successful acceptRide.
type NewRideEvent struct {
	RideID             string   `json:"rideId"`
	Code               string   `json:"code"`
	Pickup             GeoPoint `json:"pickup"`
	Dropoff            GeoPoint `json:"dropoff"`
	FareAmount         float64  `json:"fareAmount"`
	Currency           string   `json:"currency"`
	DistanceKM         float64  `json:"distanceKm"`
	DurationMin        int      `json:"durationMin"`
	DistanceToPickupKM float64  `json:"distanceToPickupKm,omitempty"`
	ExpiresAt          string   `json:"expiresAt,omitempty"` // ISO-8601
}

// RideAcceptedConfirmationEvent confirms the accept to the winning captain.
type RideAcceptedConfirmationEvent struct {
	RideID      string   `json:"rideId"`
	Code        string   `json:"code"`
	Status      string   `json:"status"`
	PassengerID string   `json:"passengerId"`
	Pickup      GeoPoint `json:"pickup"`
	Dropoff     GeoPoint `json:"dropoff"`
	FareAmount  float64  `json:"fareAmount"`
	Currency    string   `json:"currency"`
}

// ----- Outbound (both roles) -----

// RideErrorEvent surfaces a rejected action: conflicts, not-found,
// validation failures.
type RideErrorEvent struct {
	Reason  string `json:"reason"`
	RideID  string `json:"rideId,omitempty"`
	Message string `json:"message,omitempty"`
}

// RideSnapshotEvent is the comprehensive rehydration payload sent on
// reconnect: restoreRide for captains, rideRestored for passengers.
type RideSnapshotEvent struct {
	RideID          string     `json:"rideId"`
	Code            string     `json:"code"`
	Status          string     `json:"status"`
	PassengerID     string     `json:"passengerId"`
	CaptainID       string     `json:"captainId,omitempty"`
	Pickup          GeoPoint   `json:"pickup"`
	Dropoff         GeoPoint   `json:"dropoff"`
	FareAmount      float64    `json:"fareAmount"`
	Currency        string     `json:"currency"`
	DistanceKM      float64    `json:"distanceKm"`
	DurationMin     int        `json:"durationMin"`
	PaymentMethod   string     `json:"paymentMethod,omitempty"`
	CancellationFee float64    `json:"cancellationFee,omitempty"`
	AcceptedAt      *time.Time `json:"acceptedAt,omitempty"`
	ArrivedAt       *time.Time `json:"arrivedAt,omitempty"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
}
