package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ticketguy/Keepshot/lib/models"
	"go.uber.org/zap"
)

type fakeConn struct {
	received []any
	writeErr error
	closed   bool
}

func (c *fakeConn) WriteJSON(v any) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	c.received = append(c.received, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func notification() *models.Notification {
	return &models.Notification{
		UserID:     1,
		BookmarkID: 2,
		Kind:       models.NotificationChange,
		Title:      "Price dropped",
		Body:       "Your bookmark has changed.",
	}
}

func TestDeliverWithNoConnectionsIsNoop(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	d.Deliver(42, notification())

	users, conns := d.ConnectionCounts()
	assert.Zero(t, users)
	assert.Zero(t, conns)
}

func TestDeliverFansOutToAllConnections(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	first, second := &fakeConn{}, &fakeConn{}
	d.Register(1, first)
	d.Register(1, second)
	other := &fakeConn{}
	d.Register(2, other)

	d.Deliver(1, notification())

	assert.Len(t, first.received, 1)
	assert.Len(t, second.received, 1)
	assert.Empty(t, other.received)

	payload, ok := first.received[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "notification", payload["type"])
}

func TestDeliverDropsFailingConnection(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	healthy := &fakeConn{}
	broken := &fakeConn{writeErr: errors.New("connection reset")}
	d.Register(1, broken)
	d.Register(1, healthy)

	d.Deliver(1, notification())

	assert.Len(t, healthy.received, 1)
	assert.True(t, broken.closed)

	_, conns := d.ConnectionCounts()
	assert.Equal(t, 1, conns)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	connID := d.Register(1, &fakeConn{})

	d.Unregister(1, connID)
	d.Unregister(1, connID)
	d.Unregister(99, "never-registered")

	users, conns := d.ConnectionCounts()
	assert.Zero(t, users)
	assert.Zero(t, conns)
}
