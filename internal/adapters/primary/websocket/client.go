package websocket

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lorrc/clinical-event-relay/internal/core/domain"
	"github.com/lorrc/clinical-event-relay/internal/infrastructure/logging"
	"golang.org/x/time/rate"
)

// Client is a middleman between one websocket connection and its namespace.
type Client struct {
	// ID is generated at accept time. A reconnect is a new client.
	ID string

	ns   *Namespace
	conn *websocket.Conn

	// Send is the buffered channel of outbound frames. Only the namespace
	// sends on it or closes it, always under the namespace lock.
	Send chan []byte

	// room and closed are guarded by ns.mu.
	room   domain.RoomKey
	closed bool

	limiter *rate.Limiter
	logger  *slog.Logger
	// logCtx carries the namespace and connection id for *Context logging.
	logCtx context.Context
}

func newClient(ns *Namespace, conn *websocket.Conn) *Client {
	id := uuid.NewString()

	var limiter *rate.Limiter
	if ns.opts.InboundRate > 0 {
		limiter = rate.NewLimiter(ns.opts.InboundRate, ns.opts.InboundBurst)
	}

	return &Client{
		ID:      id,
		ns:      ns,
		conn:    conn,
		Send:    make(chan []byte, ns.opts.SendBuffer),
		limiter: limiter,
		logger:  ns.logger,
		logCtx:  logging.WithConnectionID(ns.logCtx, id),
	}
}

// Room returns the room the client is bound to, or "" while unjoined.
func (c *Client) Room() domain.RoomKey {
	c.ns.mu.RLock()
	defer c.ns.mu.RUnlock()
	return c.room
}

// ReadPump reads join descriptors from the connection until it fails.
// This method runs in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.ns.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.ns.opts.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.ns.opts.PongWait)); err != nil {
		c.logger.ErrorContext(c.logCtx, "failed to set read deadline", "error", err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.ns.opts.PongWait)); err != nil {
			c.logger.ErrorContext(c.logCtx, "failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.WarnContext(c.logCtx, "websocket read error", "error", err)
			}
			break
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.logger.WarnContext(c.logCtx, "inbound message rate exceeded, message ignored")
			continue
		}

		c.handleJoin(message)
	}
}

// handleJoin binds the client to the room named by a join descriptor.
// A malformed descriptor keeps the current binding.
func (c *Client) handleJoin(message []byte) {
	key, err := domain.ParseJoin(c.ns.name, message)
	if err != nil {
		c.logger.WarnContext(c.logCtx, "ignoring malformed join message", "error", err)
		return
	}
	c.ns.join(c, key)
}

// WritePump writes queued frames and keepalive pings to the connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.ns.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.ns.opts.WriteWait)); err != nil {
				c.logger.ErrorContext(c.logCtx, "failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The namespace closed the channel.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.DebugContext(c.logCtx, "failed to send close message", "error", err)
				}
				return
			}

			// Entries are forwarded exactly as they were pushed.
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.WarnContext(c.logCtx, "failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.ns.opts.WriteWait)); err != nil {
				c.logger.ErrorContext(c.logCtx, "failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.DebugContext(c.logCtx, "failed to send ping", "error", err)
				return
			}
		}
	}
}
