// Package fanout is the Fan-out Layer (spec.md §4.2): it terminates
// client WebSocket connections, decodes inbound wire envelopes into
// Race Engine calls, and implements engine.Broadcaster to route the
// Engine's outbound events back out to a session's room.
package fanout

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"typerace/internal/logx"
	"typerace/internal/metrics"
)

const (
	readDeadline     = 60 * time.Second
	writeDeadline    = 10 * time.Second
	pingInterval     = 30 * time.Second
	maxQueuedPerConn = 128
)

type queuedMessage struct {
	critical bool
	data     []byte
}

// Connection is one client's WebSocket session; connection id == player
// id, per spec.md §6. Outbound delivery never blocks the caller: the
// bounded queue drops the oldest non-critical message to make room
// before ever dropping a critical one (spec.md §5).
type Connection struct {
	PlayerID string

	conn *websocket.Conn

	mu     sync.Mutex
	queue  []queuedMessage
	wake   chan struct{}
	closed bool
}

func newConnection(playerID string, conn *websocket.Conn) *Connection {
	return &Connection{
		PlayerID: playerID,
		conn:     conn,
		wake:     make(chan struct{}, 1),
	}
}

// enqueue appends a message to the write queue without blocking,
// applying the drop policy when the queue is saturated.
func (c *Connection) enqueue(critical bool, data []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if len(c.queue) >= maxQueuedPerConn {
		dropped := false
		for i, m := range c.queue {
			if !m.critical {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				dropped = true
				metrics.BroadcastsDroppedCounter.WithLabelValues("unknown", "backpressure").Inc()
				break
			}
		}
		if !dropped {
			if !critical {
				c.mu.Unlock()
				metrics.BroadcastsDroppedCounter.WithLabelValues("unknown", "backpressure").Inc()
				return
			}
			// Queue is saturated with nothing but critical messages; make
			// room rather than block the emitter indefinitely.
			c.queue = c.queue[1:]
		}
	}
	c.queue = append(c.queue, queuedMessage{critical: critical, data: data})
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Connection) drain() []queuedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil
	}
	out := c.queue
	c.queue = nil
	return out
}

func (c *Connection) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// writePump serializes all writes to the underlying connection: gorilla
// websocket connections are not safe for concurrent writers.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.wake:
			for _, m := range c.drain() {
				c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := c.conn.WriteMessage(websocket.TextMessage, m.data); err != nil {
					return
				}
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump blocks on inbound frames until the connection closes, handing
// each decoded message to handle. onClose runs exactly once, however the
// loop exits.
func (c *Connection) readPump(handle func(data []byte), onClose func()) {
	defer onClose()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logx.Warnf("connection %s closed unexpectedly: %v", c.PlayerID, err)
			}
			return
		}
		handle(data)
	}
}
