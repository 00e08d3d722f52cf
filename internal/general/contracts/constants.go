package contracts

// Exchanges
const (
	ExchangeRideTopic      = "ride_topic"
	ExchangeLocationFanout = "location_fanout"
)

// Queues
const (
	QueueRideStatus       = "ride_status"
	QueueLocationDispatch = "location_updates_dispatch"
)

// Routing patterns
const (
	RouteRideStatusPrefix = "ride.status." // {status}
)

// WebSocket event types, outbound. Names are part of the wire contract
// with the mobile clients and must not change.
const (
	EventRidePending              = "ridePending"
	EventRideAccepted             = "rideAccepted"
	EventRideAcceptedConfirmation = "rideAcceptedConfirmation"
	EventDriverArrived            = "driverArrived"
	EventRideStarted              = "rideStarted"
	EventRideCompleted            = "rideCompleted"
	EventRideCanceled             = "rideCanceled"
	EventRideNotApproved          = "rideNotApproved"
	EventDriverLocationUpdate     = "driverLocationUpdate"
	EventNewRide                  = "newRide"
	EventRideError                = "rideError"
	EventRestoreRide              = "restoreRide"  // captain-side rehydration
	EventRideRestored             = "rideRestored" // passenger-side rehydration
)

// WebSocket message types, inbound.
const (
	MsgAuth           = "auth"
	MsgRequestRide    = "requestRide"
	MsgCancelRide     = "cancelRide"
	MsgUpdateLocation = "updateLocation"
	MsgAcceptRide     = "acceptRide"
	MsgArrived        = "arrived"
	MsgStartRide      = "startRide"
	MsgEndRide        = "endRide"
)

// rideError reasons
const (
	ReasonRideTaken     = "ride_taken"
	ReasonRideNotFound  = "ride_not_found"
	ReasonNotYourRide   = "not_your_ride"
	ReasonActiveRide    = "active_ride_exists"
	ReasonBadRequest    = "bad_request"
	ReasonServiceError  = "service_error"
	ReasonWrongStatus   = "wrong_status"
	ReasonNotAuthorized = "not_authorized"
)
