package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/contracts"

	gorilla "github.com/gorilla/websocket"
)

// ConnectPassenger handles WebSocket connections from passengers with JWT auth.
func (rt *Router) ConnectPassenger(w http.ResponseWriter, r *http.Request) {
	h, passengerID, ok := rt.authenticate(w, r, user.RolePassenger, authDeadlinePassenger)
	if !ok {
		return
	}
	defer h.conn.Close()

	ctx := rt.logger.WithRequestID(r.Context(), h.ID())

	rt.logger.Info(ctx, "ws_connected", "Passenger WebSocket connected",
		map[string]any{"passenger_id": passengerID})

	// 1) Register; a second connection for the same passenger displaces this one
	if displaced := rt.passengers.Attach(passengerID, h); displaced != nil {
		_ = displaced.Close()
		rt.logger.Info(ctx, "ws_displaced", "Older passenger connection displaced",
			map[string]any{"passenger_id": passengerID})
	}
	defer rt.passengers.Detach(passengerID, h)

	// 2) Keepalive
	stop := make(chan struct{})
	defer close(stop)
	go rt.pingLoop(h, stop)

	// 3) Rehydrate: replay the passenger's current ride truth
	rt.rehydratePassenger(ctx, passengerID, h)

	// 4) Read loop: route messages
	for {
		_ = h.conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, payload, err := h.conn.ReadMessage()
		if err != nil {
			if gorilla.IsUnexpectedCloseError(err, gorilla.CloseGoingAway, gorilla.CloseAbnormalClosure) {
				rt.logger.Error(ctx, "ws_unexpected_close", "Passenger connection closed unexpectedly", err, map[string]any{
					"passenger_id": passengerID,
				})
				h.writeClose(gorilla.CloseInternalServerErr, "internal error")
			} else {
				rt.logger.Info(ctx, "ws_connection_closed", "Passenger connection closed normally", map[string]any{
					"passenger_id": passengerID,
				})
				h.writeClose(gorilla.CloseNormalClosure, "bye")
			}
			break
		}

		var msg contracts.WSMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = h.Send(contracts.EventRideError, contracts.RideErrorEvent{Reason: contracts.ReasonBadRequest, Message: "bad json"})
			continue
		}

		switch msg.Type {
		case contracts.MsgRequestRide:
			rt.handleRequestRide(ctx, h, passengerID, msg.Data)

		case contracts.MsgCancelRide:
			rt.handlePassengerCancel(ctx, h, passengerID, msg.Data)

		default:
			_ = h.Send(contracts.EventRideError, contracts.RideErrorEvent{Reason: contracts.ReasonBadRequest, Message: "unknown message type"})
		}
	}
}
