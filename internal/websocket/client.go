package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/nfrund/relay/internal/relay"
)

// client couples one websocket connection to its relay membership.
type client struct {
	conn   *websocket.Conn
	member *relay.Conn
	relay  *relay.Relay
	logger *slog.Logger

	writeTimeout time.Duration
}

// readPump hands every inbound frame to the relay until the peer goes away or
// ctx is cancelled.
func (c *client) readPump(ctx context.Context) {
	for {
		_, message, err := c.conn.Read(ctx)
		if err != nil {
			c.logReadError(err)
			return
		}
		c.relay.Receive(c.member, message)
	}
}

// writePump drains the member's outbound queue onto the socket. It returns once
// the relay closes the queue or a write fails.
func (c *client) writePump(ctx context.Context) {
	for message := range c.member.Outbound() {
		wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
		err := c.conn.Write(wctx, websocket.MessageText, message)
		cancel()
		if err != nil {
			c.logger.Debug("WebSocket write failed", "error", err)
			// Unblocks readPump; anything still queued is discarded with the member.
			c.conn.CloseNow()
			return
		}
	}
}

func (c *client) logReadError(err error) {
	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		c.logger.Debug("WebSocket closed by client", "status", status)
	case errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
		c.logger.Debug("WebSocket read stopped", "error", err)
	default:
		c.logger.Warn("WebSocket read error", "error", err)
	}
}
