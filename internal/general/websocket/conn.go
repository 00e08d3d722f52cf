package websocket

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"ride-dispatch/internal/general/contracts"

	"github.com/gorilla/websocket"
)

// connHandle wraps one gorilla connection behind the session.Handle
// interface. All writes serialize on the per-connection mutex; gorilla
// permits only one concurrent writer.
type connHandle struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func newConnHandle(conn *websocket.Conn) *connHandle {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return &connHandle{id: hex.EncodeToString(b[:]), conn: conn}
}

func (h *connHandle) ID() string { return h.id }

// Send marshals payload into the standard {type, data} frame and writes it.
func (h *connHandle) Send(eventType string, payload any) error {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = b
	}

	frame, err := json.Marshal(contracts.WSMessage{Type: eventType, Data: data})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_ = h.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return h.conn.WriteMessage(websocket.TextMessage, frame)
}

func (h *connHandle) Close() error {
	h.mu.Lock()
	_ = h.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = h.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "superseded by a newer connection"),
		time.Now().Add(wsCloseAckWindow),
	)
	h.mu.Unlock()
	return h.conn.Close()
}

// writeClose sends a close control frame with the given code and reason.
func (h *connHandle) writeClose(code int, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_ = h.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = h.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
}

// writeControl sends a ping or other control frame under the write lock.
func (h *connHandle) writeControl(messageType int, deadline time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_ = h.conn.SetWriteDeadline(deadline)
	return h.conn.WriteControl(messageType, nil, deadline)
}
