package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Conn is one websocket connection attached to a Hub.
type Conn struct {
	ID     string
	Role   string
	UserID string

	ws   *websocket.Conn
	send chan []byte
	hub  *Hub
	// Driver id reported by this connection's location updates, if any.
	driverID *atomic.String
}

// readPump decodes inbound events and handles them in receive order.
func (c *Conn) readPump(ctx context.Context) {
	h := c.hub
	defer func() {
		h.submit(unregisterCmd{conn: c})
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(h.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read error", zap.String("conn_id", c.ID), zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
			h.log.Warn("malformed websocket message", zap.String("conn_id", c.ID), zap.Int("bytes", len(raw)))
			h.submit(deliverCmd{out: []Outbound{{
				ConnID: c.ID,
				Type:   TypeError,
				Data:   ErrorMessage{Code: "bad_request", Message: "message must be a JSON object with a type"},
			}}})
			continue
		}

		res := h.dispatcher.Handle(ctx, c.ID, env)
		if res.DriverID != "" {
			c.driverID.Store(res.DriverID)
		}
		h.apply(c, res)
	}
}

// writePump drains the send channel and keeps the connection alive with pings.
func (c *Conn) writePump() {
	h := c.hub
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if !ok {
				// The hub closed the channel.
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
