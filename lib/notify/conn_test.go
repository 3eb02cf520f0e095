package notify

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRawConn struct {
	active    atomic.Int32
	maxActive atomic.Int32
	writes    atomic.Int32
	deadline  atomic.Value // time.Time
	closed    bool
}

func (c *fakeRawConn) WriteJSON(v any) error {
	active := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		seen := c.maxActive.Load()
		if active <= seen || c.maxActive.CompareAndSwap(seen, active) {
			break
		}
	}

	time.Sleep(time.Millisecond)
	c.writes.Add(1)
	return nil
}

func (c *fakeRawConn) SetWriteDeadline(t time.Time) error {
	c.deadline.Store(t)
	return nil
}

func (c *fakeRawConn) Close() error {
	c.closed = true
	return nil
}

func TestConnSetsWriteDeadline(t *testing.T) {
	raw := &fakeRawConn{}
	conn := NewConn(raw, 10*time.Second)

	before := time.Now()
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "pong"}))

	deadline, ok := raw.deadline.Load().(time.Time)
	require.True(t, ok, "write must carry a deadline")
	assert.WithinDuration(t, before.Add(10*time.Second), deadline, time.Second)
}

func TestConnSerializesConcurrentWriters(t *testing.T) {
	raw := &fakeRawConn{}
	conn := NewConn(raw, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.WriteJSON(map[string]string{"type": "notification"})
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 8, raw.writes.Load())
	assert.EqualValues(t, 1, raw.maxActive.Load(), "only one writer may touch the connection at a time")
}

func TestConnCloseClosesRaw(t *testing.T) {
	raw := &fakeRawConn{}
	conn := NewConn(raw, time.Second)

	require.NoError(t, conn.Close())
	assert.True(t, raw.closed)
}
