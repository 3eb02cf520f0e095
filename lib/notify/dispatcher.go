// Package notify fans generated notifications out to live subscriber
// connections. The dispatcher is an injected instance, never a process-wide
// singleton; construct one per process and pass it to whatever delivers.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ticketguy/Keepshot/lib/models"
	"go.uber.org/zap"
)

// Conn is a live subscriber connection. *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Dispatcher keeps a concurrent-safe registry of subscriber connections keyed
// by user ID. One user may hold several connections at once (multiple tabs).
type Dispatcher struct {
	log *zap.Logger

	mu    sync.RWMutex
	conns map[uint]map[string]Conn
}

func NewDispatcher(log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		log:   log,
		conns: make(map[uint]map[string]Conn),
	}
}

// Register adds a connection for a user and returns its registry ID.
func (d *Dispatcher) Register(userID uint, conn Conn) string {
	connID := uuid.NewString()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conns[userID] == nil {
		d.conns[userID] = make(map[string]Conn)
	}
	d.conns[userID][connID] = conn

	d.log.Sugar().Infow("subscriber connected", "user_id", userID, "conn_id", connID)
	return connID
}

// Unregister removes a connection. Removing an unknown connection is a no-op,
// so double-unregister is safe.
func (d *Dispatcher) Unregister(userID uint, connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conns, ok := d.conns[userID]
	if !ok {
		return
	}
	if _, ok := conns[connID]; !ok {
		return
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(d.conns, userID)
	}
	d.log.Sugar().Infow("subscriber disconnected", "user_id", userID, "conn_id", connID)
}

// Deliver sends the notification payload to every registered connection for
// the user. A connection that errors is dropped from the registry and closed;
// remaining connections still receive the payload. Zero connections is a
// silent no-op since the persisted Notification is the durable artifact.
func (d *Dispatcher) Deliver(userID uint, n *models.Notification) {
	type entry struct {
		id   string
		conn Conn
	}

	d.mu.RLock()
	targets := make([]entry, 0, len(d.conns[userID]))
	for id, conn := range d.conns[userID] {
		targets = append(targets, entry{id, conn})
	}
	d.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	payload := payloadFor(n)
	for _, t := range targets {
		if err := t.conn.WriteJSON(payload); err != nil {
			d.log.Sugar().Warnw("notification delivery failed", "user_id", userID, "conn_id", t.id, "err", err)
			d.Unregister(userID, t.id)
			t.conn.Close()
		}
	}
}

// ConnectionCounts reports registered users and total connections.
func (d *Dispatcher) ConnectionCounts() (users, connections int) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	users = len(d.conns)
	for _, conns := range d.conns {
		connections += len(conns)
	}
	return users, connections
}

func payloadFor(n *models.Notification) map[string]any {
	return map[string]any{
		"type": "notification",
		"data": map[string]any{
			"id":                n.ID,
			"bookmark_id":       n.BookmarkID,
			"notification_type": n.Kind,
			"title":             n.Title,
			"message":           n.Body,
			"created_at":        n.CreatedAt.UTC().Format(time.RFC3339),
			"read":              n.Read,
		},
	}
}
