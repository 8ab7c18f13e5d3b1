package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lorrc/clinical-event-relay/internal/core/domain"
	apperrors "github.com/lorrc/clinical-event-relay/internal/core/errors"
	"github.com/lorrc/clinical-event-relay/internal/core/ports"
	"github.com/lorrc/clinical-event-relay/internal/infrastructure/logging"
	"golang.org/x/time/rate"
)

// Options tune connection handling for a namespace.
type Options struct {
	// SendBuffer is the per-connection outbound queue length. Frames that
	// do not fit are dropped for that connection only.
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration // Must be less than PongWait
	MaxMessageSize int64
	InboundRate    rate.Limit // Zero disables inbound limiting
	InboundBurst   int
}

// DefaultOptions returns the connection defaults.
func DefaultOptions() Options {
	pongWait := 60 * time.Second
	return Options{
		SendBuffer:     256,
		WriteWait:      10 * time.Second,
		PongWait:       pongWait,
		PingPeriod:     (pongWait * 9) / 10,
		MaxMessageSize: 1024,
		InboundRate:    rate.Limit(5),
		InboundBurst:   10,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.InboundRate > 0 && o.InboundBurst <= 0 {
		o.InboundBurst = 1
	}
	return o
}

// NamespaceStats is a point-in-time view of a namespace.
type NamespaceStats struct {
	Namespace   domain.Namespace `json:"namespace"`
	Path        string           `json:"path"`
	Connections int              `json:"connections"`
	Rooms       int              `json:"rooms"`
}

// Namespace owns the connections of one websocket endpoint and the rooms
// they have joined. Rooms in different namespaces never interact.
type Namespace struct {
	name     domain.Namespace
	opts     Options
	registry *RoomRegistry
	metrics  ports.RelayMetrics
	logger   *slog.Logger
	logCtx   context.Context

	// mu guards clients, members and every client's room and closed fields.
	mu      sync.RWMutex
	clients map[*Client]struct{}
	members map[domain.RoomKey]map[*Client]struct{}
	closed  bool
}

// Ensure Namespace implements the ports.RoomFanout interface.
var _ ports.RoomFanout = (*Namespace)(nil)

// NewNamespace creates an empty namespace.
func NewNamespace(name domain.Namespace, opts Options, metrics ports.RelayMetrics, logger *slog.Logger) *Namespace {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Namespace{
		name:     name,
		opts:     opts.withDefaults(),
		registry: NewRoomRegistry(),
		metrics:  metrics,
		logger:   logger.With("component", "websocket_namespace"),
		logCtx:   logging.WithNamespace(context.Background(), string(name)),
		clients:  make(map[*Client]struct{}),
		members:  make(map[domain.RoomKey]map[*Client]struct{}),
	}
}

// Name returns the namespace this connection manager serves.
func (n *Namespace) Name() domain.Namespace {
	return n.name
}

// Accept registers an upgraded connection and starts its pumps. The client
// stays unjoined until its first valid join descriptor arrives.
func (n *Namespace) Accept(conn *websocket.Conn) (*Client, error) {
	client := newClient(n, conn)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", apperrors.ErrNamespaceUnavailable, n.name)
	}
	n.clients[client] = struct{}{}
	total := len(n.clients)
	n.mu.Unlock()

	n.metrics.ConnectionOpened(n.name)
	client.logger.InfoContext(client.logCtx, "client connected", "total_connections", total)

	go client.WritePump()
	go client.ReadPump()

	return client, nil
}

// join binds client to key, releasing any room it was bound to before.
func (n *Namespace) join(client *Client, key domain.RoomKey) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if client.closed || client.room == key {
		return
	}

	previous := client.room
	if previous != "" {
		n.leaveLocked(client)
	}

	room, ok := n.members[key]
	if !ok {
		room = make(map[*Client]struct{})
		n.members[key] = room
	}
	room[client] = struct{}{}
	client.room = key
	count := n.registry.Acquire(key)

	client.logger.InfoContext(logging.WithRoom(client.logCtx, string(key)), "client joined room",
		"previous_room", previous,
		"room_members", count,
	)
}

// leaveLocked removes client from its current room. n.mu must be held.
func (n *Namespace) leaveLocked(client *Client) {
	key := client.room
	if key == "" {
		return
	}

	if room, ok := n.members[key]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(n.members, key)
		}
	}
	client.room = ""

	if remaining := n.registry.Release(key); remaining == 0 {
		client.logger.DebugContext(logging.WithRoom(client.logCtx, string(key)), "room emptied")
	}
}

// unregister removes client and closes its send channel. Safe to call more
// than once.
func (n *Namespace) unregister(client *Client) {
	n.mu.Lock()
	if client.closed {
		n.mu.Unlock()
		return
	}
	n.removeLocked(client)
	n.mu.Unlock()

	n.metrics.ConnectionClosed(n.name)
	client.logger.InfoContext(client.logCtx, "client disconnected")
}

// removeLocked detaches client from the namespace. n.mu must be held.
func (n *Namespace) removeLocked(client *Client) {
	n.leaveLocked(client)
	delete(n.clients, client)
	client.closed = true
	close(client.Send)
}

// ActiveRooms returns the rooms that currently have members.
func (n *Namespace) ActiveRooms() []domain.RoomKey {
	return n.registry.Snapshot()
}

// Deliver queues payload on every open connection joined to key and
// returns how many accepted it. A connection whose buffer is full misses
// this payload; the others are unaffected.
func (n *Namespace) Deliver(key domain.RoomKey, payload []byte) int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	delivered := 0
	for client := range n.members[key] {
		if client.closed {
			continue
		}
		select {
		case client.Send <- payload:
			delivered++
		default:
			n.metrics.Dropped(n.name)
			client.logger.WarnContext(logging.WithRoom(client.logCtx, string(key)), "client send buffer full, payload dropped")
		}
	}
	return delivered
}

// Shutdown closes every connection and refuses new ones.
func (n *Namespace) Shutdown() {
	n.mu.Lock()
	n.closed = true
	closing := make([]*Client, 0, len(n.clients))
	for client := range n.clients {
		closing = append(closing, client)
		n.removeLocked(client)
	}
	n.mu.Unlock()

	for range closing {
		n.metrics.ConnectionClosed(n.name)
	}
	n.logger.InfoContext(n.logCtx, "namespace shut down", "closed_connections", len(closing))
}

// ClientCount returns the number of open connections.
func (n *Namespace) ClientCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.clients)
}

// RoomCount returns the number of rooms with members.
func (n *Namespace) RoomCount() int {
	return n.registry.Len()
}

// ClientsInRoom returns the number of connections joined to key.
func (n *Namespace) ClientsInRoom(key domain.RoomKey) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.members[key])
}

// Stats returns the current connection and room counts.
func (n *Namespace) Stats() NamespaceStats {
	return NamespaceStats{
		Namespace:   n.name,
		Path:        n.name.Path(),
		Connections: n.ClientCount(),
		Rooms:       n.RoomCount(),
	}
}
