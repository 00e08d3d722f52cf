package websocket

import (
	"net/http"
	"time"

	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/jwt"

	gorilla "github.com/gorilla/websocket"
)

// authenticate upgrades the request and runs the first-frame JWT
// handshake for the given role. On success it returns the connection
// handle and the authenticated principal id; on failure the connection
// is already closed.
func (rt *Router) authenticate(w http.ResponseWriter, r *http.Request, role user.Role, deadline time.Duration) (*connHandle, string, bool) {
	// 1) Upgrade HTTP -> WS
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		rt.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return nil, "", false
	}
	h := newConnHandle(conn)

	// 2) Auth must arrive as the first frame, within the deadline
	conn.SetReadLimit(1 << 20) // 1 MiB
	if err := conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
		rt.logger.Error(r.Context(), "ws_set_deadline_failed", "Failed to set initial read deadline", err, nil)
		rt.sendAuthError(h, "internal server error")
		_ = conn.Close()
		return nil, "", false
	}

	msgType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		if gorilla.IsUnexpectedCloseError(err, gorilla.CloseGoingAway, gorilla.CloseAbnormalClosure) {
			rt.logger.Error(r.Context(), "ws_auth_timeout", "Client disconnected before authentication", err, nil)
		} else {
			rt.logger.Error(r.Context(), "ws_auth_read_failed", "Failed to read auth message", err, nil)
		}
		rt.sendAuthError(h, "authentication timeout: send the auth message first")
		_ = conn.Close()
		return nil, "", false
	}

	if msgType != gorilla.TextMessage {
		rt.logger.Error(r.Context(), "ws_auth_invalid_format", "Auth message must be text format", nil, nil)
		rt.sendAuthError(h, "auth message must be in text format")
		_ = conn.Close()
		return nil, "", false
	}

	res, err := jwt.ValidateWSAuth(firstFrame, rt.jwtMgr, role)
	if err != nil {
		rt.logger.Error(r.Context(), "ws_auth_failed", "Invalid auth message or token", err, nil)
		rt.sendAuthError(h, "authentication failed: invalid token")
		_ = conn.Close()
		return nil, "", false
	}

	// 3) Path param, when present, must match the token subject
	pathParam := r.PathValue("passenger_id")
	if role.IsCaptain() {
		pathParam = r.PathValue("captain_id")
	}
	if pathParam != "" && pathParam != res.Claims.Subject {
		rt.logger.Error(r.Context(), "ws_auth_failed", "Principal ID mismatch", nil, map[string]any{
			"path_id":       pathParam,
			"token_subject": res.Claims.Subject,
		})
		rt.sendAuthError(h, "principal ID mismatch")
		_ = conn.Close()
		return nil, "", false
	}

	// 4) Confirm auth success to the client
	if err := rt.sendAuthSuccess(h, role, res.Claims.Subject); err != nil {
		rt.logger.Error(r.Context(), "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		_ = conn.Close()
		return nil, "", false
	}

	// 5) Reset read deadline after auth; pongs extend it
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	return h, res.Claims.Subject, true
}

// pingLoop keeps the connection alive until stop closes or a write fails.
func (rt *Router) pingLoop(h *connHandle, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := h.writeControl(gorilla.PingMessage, time.Now().Add(ctrlTimeout)); err != nil {
				// close the socket to unblock the reader; the loop exits with it
				_ = h.conn.Close()
				return
			}
		}
	}
}

// sendAuthError reports an authentication failure to the client.
func (rt *Router) sendAuthError(h *connHandle, message string) {
	_ = h.Send("auth_error", map[string]any{
		"error":   message,
		"reason":  contracts.ReasonNotAuthorized,
		"success": false,
	})
}

// sendAuthSuccess confirms authentication to the client.
func (rt *Router) sendAuthSuccess(h *connHandle, role user.Role, principalID string) error {
	payload := map[string]any{
		"message":   "Authentication successful",
		"success":   true,
		"role":      role.String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if role.IsCaptain() {
		payload["captain_id"] = principalID
	} else {
		payload["passenger_id"] = principalID
	}
	return h.Send("auth_success", payload)
}
