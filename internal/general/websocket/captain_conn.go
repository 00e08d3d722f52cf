package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/contracts"

	gorilla "github.com/gorilla/websocket"
)

// ConnectCaptain handles WebSocket connections from captains with JWT auth.
func (rt *Router) ConnectCaptain(w http.ResponseWriter, r *http.Request) {
	h, captainID, ok := rt.authenticate(w, r, user.RoleCaptain, authDeadlineCaptain)
	if !ok {
		return
	}
	defer h.conn.Close()

	ctx := rt.logger.WithRequestID(r.Context(), h.ID())

	rt.logger.Info(ctx, "ws_connected", "Captain WebSocket connected",
		map[string]any{"captain_id": captainID})

	// 1) Register; a second connection for the same captain displaces this one
	if displaced := rt.captains.Attach(captainID, h); displaced != nil {
		_ = displaced.Close()
		rt.logger.Info(ctx, "ws_displaced", "Older captain connection displaced",
			map[string]any{"captain_id": captainID})
	}
	defer func() {
		if rt.captains.Detach(captainID, h) {
			// gone from the index so the dispatcher stops offering immediately
			_ = rt.geo.Remove(ctx, captainID)
		}
	}()

	// 2) Keepalive
	stop := make(chan struct{})
	defer close(stop)
	go rt.pingLoop(h, stop)

	// 3) Rehydrate: replay the captain's current ride truth
	rt.rehydrateCaptain(ctx, captainID, h)

	// 4) Read loop: route messages
	for {
		_ = h.conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, payload, err := h.conn.ReadMessage()
		if err != nil {
			if gorilla.IsUnexpectedCloseError(err, gorilla.CloseGoingAway, gorilla.CloseAbnormalClosure) {
				rt.logger.Error(ctx, "ws_unexpected_close", "Captain connection closed unexpectedly", err, map[string]any{
					"captain_id": captainID,
				})
				h.writeClose(gorilla.CloseInternalServerErr, "internal error")
			} else {
				rt.logger.Info(ctx, "ws_connection_closed", "Captain connection closed normally", map[string]any{
					"captain_id": captainID,
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
		case contracts.MsgUpdateLocation:
			rt.handleUpdateLocation(ctx, h, captainID, msg.Data)

		case contracts.MsgAcceptRide:
			rt.handleCaptainAction(ctx, h, captainID, msg.Data, rt.rideSvc.Accept)

		case contracts.MsgArrived:
			rt.handleCaptainAction(ctx, h, captainID, msg.Data, rt.rideSvc.Arrive)

		case contracts.MsgStartRide:
			rt.handleCaptainAction(ctx, h, captainID, msg.Data, rt.rideSvc.Start)

		case contracts.MsgEndRide:
			rt.handleCaptainAction(ctx, h, captainID, msg.Data, rt.rideSvc.Complete)

		case contracts.MsgCancelRide:
			rt.handleCaptainAction(ctx, h, captainID, msg.Data, rt.rideSvc.CancelByCaptain)

		default:
			_ = h.Send(contracts.EventRideError, contracts.RideErrorEvent{Reason: contracts.ReasonBadRequest, Message: "unknown message type"})
		}
	}
}
