package fanout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnection() *Connection {
	return &Connection{PlayerID: "p1", wake: make(chan struct{}, 1)}
}

func TestEnqueueDropsOldestNonCriticalWhenSaturated(t *testing.T) {
	c := newTestConnection()
	for i := 0; i < maxQueuedPerConn; i++ {
		c.enqueue(false, []byte("noncritical"))
	}
	c.enqueue(true, []byte("critical"))

	msgs := c.drain()
	require.Len(t, msgs, maxQueuedPerConn)
	assert.True(t, msgs[len(msgs)-1].critical)
}

func TestEnqueueDropsNewNonCriticalWhenOnlyCriticalRemain(t *testing.T) {
	c := newTestConnection()
	for i := 0; i < maxQueuedPerConn; i++ {
		c.enqueue(true, []byte("critical"))
	}
	c.enqueue(false, []byte("dropped"))

	msgs := c.drain()
	require.Len(t, msgs, maxQueuedPerConn)
	for _, m := range msgs {
		assert.True(t, m.critical)
	}
}

func TestEnqueueMakesRoomWhenAllCriticalAndSaturated(t *testing.T) {
	c := newTestConnection()
	for i := 0; i < maxQueuedPerConn; i++ {
		c.enqueue(true, []byte("critical"))
	}
	c.enqueue(true, []byte("newest"))

	msgs := c.drain()
	require.Len(t, msgs, maxQueuedPerConn)
	assert.Equal(t, []byte("newest"), msgs[len(msgs)-1].data)
}

func TestEnqueueAfterCloseIsNoop(t *testing.T) {
	c := newTestConnection()
	c.markClosed()
	c.enqueue(true, []byte("x"))
	assert.Nil(t, c.drain())
}

func TestDrainClearsQueue(t *testing.T) {
	c := newTestConnection()
	c.enqueue(false, []byte("a"))
	first := c.drain()
	require.Len(t, first, 1)
	assert.Nil(t, c.drain())
}
