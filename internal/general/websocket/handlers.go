package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/ports"
)

// captainAction is any ride transition triggered by a captain message.
type captainAction func(ctx context.Context, captainID, rideID string) (*ride.Ride, error)

// handleCaptainAction decodes the ride reference, runs the transition,
// and surfaces failures as rideError. Success events are emitted by the
// ride service itself.
func (rt *Router) handleCaptainAction(ctx context.Context, h *connHandle, captainID string, data json.RawMessage, action captainAction) {
	var msg contracts.RideActionMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.RideID == "" {
		_ = h.Send(contracts.EventRideError, contracts.RideErrorEvent{Reason: contracts.ReasonBadRequest, Message: "rideId is required"})
		return
	}

	ctx = rt.logger.WithRideID(ctx, msg.RideID)
	if _, err := action(ctx, captainID, msg.RideID); err != nil {
		rt.sendRideError(ctx, h, msg.RideID, err)
	}
}

// handleUpdateLocation validates the report and broadcasts it on the
// location fanout. The dispatch consumer upserts the Geo-Index and
// forwards movement to the linked passenger.
func (rt *Router) handleUpdateLocation(ctx context.Context, h *connHandle, captainID string, data json.RawMessage) {
	var msg contracts.UpdateLocationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		_ = h.Send(contracts.EventRideError, contracts.RideErrorEvent{Reason: contracts.ReasonBadRequest, Message: "bad location payload"})
		return
	}

	p := geo.Point{Lon: msg.Lon, Lat: msg.Lat}
	if err := p.Validate(); err != nil {
		_ = h.Send(contracts.EventRideError, contracts.RideErrorEvent{Reason: contracts.ReasonBadRequest, Message: "coordinate out of range"})
		return
	}

	out := contracts.LocationUpdateMessage{
		CaptainID: captainID,
		Location:  contracts.GeoPoint{Lon: p.Lon, Lat: p.Lat},
		Timestamp: time.Now().UTC(),
		Envelope:  contracts.Envelope{Producer: "dispatch-service", SentAt: time.Now().UTC()},
	}
	link, linked := rt.links.ByCaptain(captainID)
	if linked {
		out.RideID = link.RideID
	}

	body, err := json.Marshal(out)
	if err != nil {
		rt.logger.Error(ctx, "location_marshal_failed", "Failed to marshal location update", err, nil)
		return
	}

	if err := rt.pub.Publish(contracts.ExchangeLocationFanout, "", body); err != nil {
		rt.logger.Error(ctx, "location_publish_failed", "Location publish failed, applying directly", err,
			map[string]any{"captain_id": captainID})
		// broker hiccup must not blind the dispatcher; a linked captain
		// stays out of the candidate index either way
		if !linked {
			if err := rt.geo.Upsert(ctx, captainID, p); err != nil {
				rt.logger.Error(ctx, "geo_upsert_failed", "Failed to upsert captain location", err,
					map[string]any{"captain_id": captainID})
			}
		}
	}
}

// handleRequestRide decodes and validates the request, then delegates to
// the ride service, which creates the ride, starts dispatch, and emits
// ridePending.
func (rt *Router) handleRequestRide(ctx context.Context, h *connHandle, passengerID string, data json.RawMessage) {
	var msg contracts.RequestRideMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		_ = h.Send(contracts.EventRideError, contracts.RideErrorEvent{Reason: contracts.ReasonBadRequest, Message: "bad requestRide payload"})
		return
	}

	in := ports.RequestRideInput{
		PassengerID:   passengerID,
		PickupLon:     msg.Origin.Lon,
		PickupLat:     msg.Origin.Lat,
		PickupName:    msg.Origin.Name,
		DropoffLon:    msg.Destination.Lon,
		DropoffLat:    msg.Destination.Lat,
		DropoffName:   msg.Destination.Name,
		DistanceKM:    msg.Distance,
		DurationMin:   msg.Duration,
		FareAmount:    msg.FareAmount,
		PaymentMethod: msg.PaymentMethod,
	}

	if _, err := rt.rideSvc.RequestRide(ctx, in); err != nil {
		// a conflict here means the passenger already has an active ride
		if errors.Is(err, ride.ErrConflict) {
			_ = h.Send(contracts.EventRideError, contracts.RideErrorEvent{Reason: contracts.ReasonActiveRide})
			return
		}
		rt.sendRideError(ctx, h, "", err)
	}
}

// handlePassengerCancel runs the passenger-side cancel.
func (rt *Router) handlePassengerCancel(ctx context.Context, h *connHandle, passengerID string, data json.RawMessage) {
	var msg contracts.RideActionMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.RideID == "" {
		_ = h.Send(contracts.EventRideError, contracts.RideErrorEvent{Reason: contracts.ReasonBadRequest, Message: "rideId is required"})
		return
	}

	ctx = rt.logger.WithRideID(ctx, msg.RideID)
	if _, err := rt.rideSvc.CancelByPassenger(ctx, passengerID, msg.RideID); err != nil {
		rt.sendRideError(ctx, h, msg.RideID, err)
	}
}

// sendRideError maps a service error onto the wire reason vocabulary.
func (rt *Router) sendRideError(ctx context.Context, h *connHandle, rideID string, err error) {
	ev := contracts.RideErrorEvent{RideID: rideID}

	switch {
	case errors.Is(err, ride.ErrWrongStatus):
		// the caller owns the ride but skipped a lifecycle step
		ev.Reason = contracts.ReasonWrongStatus
	case errors.Is(err, ride.ErrConflict):
		ev.Reason = contracts.ReasonRideTaken
	case errors.Is(err, ride.ErrNotFound):
		ev.Reason = contracts.ReasonRideNotFound
	case errors.Is(err, ride.ErrNotEligible):
		ev.Reason = contracts.ReasonNotYourRide
	case errors.Is(err, ride.ErrInvalidRequest):
		ev.Reason = contracts.ReasonBadRequest
		ev.Message = err.Error()
	default:
		ev.Reason = contracts.ReasonServiceError
		rt.logger.Error(ctx, "ws_action_failed", "Ride action failed", err, map[string]any{"ride_id": rideID})
	}

	_ = h.Send(contracts.EventRideError, ev)
}
