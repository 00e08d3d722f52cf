package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/ports"
)

// --- Handler: POST /rides ---

func (handler *RideHTTPHandler) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	// generate a context with request ID
	ctx := handler.withReqID(r.Context(), r)

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing claims", nil)
		return
	}

	// the request body is the same shape the socket speaks
	var body contracts.RequestRideMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	// bound service call
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := handler.svc.RequestRide(ctxWithTimeout, ports.RequestRideInput{
		PassengerID:   claims.Subject,
		PickupLon:     body.Origin.Lon,
		PickupLat:     body.Origin.Lat,
		PickupName:    body.Origin.Name,
		DropoffLon:    body.Destination.Lon,
		DropoffLat:    body.Destination.Lat,
		DropoffName:   body.Destination.Name,
		DistanceKM:    body.Distance,
		DurationMin:   body.Duration,
		FareAmount:    body.FareAmount,
		PaymentMethod: body.PaymentMethod,
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusCreated, out)
}
