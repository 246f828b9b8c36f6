package fanout

import (
	"encoding/json"
	"math/rand"
	"sync"

	"typerace/internal/control"
	"typerace/internal/metrics"
	"typerace/internal/wire"
)

// criticalEventTypes are dropped under backpressure only when a
// connection's queue is full of nothing but critical messages, and then
// the oldest one goes first (spec.md §5).
var criticalEventTypes = map[string]bool{
	wire.EventGameFinished:   true,
	wire.EventGameCountdown:  true,
	wire.EventGameStarted:    true,
	wire.EventGameTerminated: true,
	wire.EventPlayerJoined:   true,
	wire.EventPlayerLeft:     true,
	wire.EventError:          true,
}

// RoomSource is the subset of *engine.Engine the Hub needs to resolve
// room membership — a session's player list is its room (see
// engine.Engine.ParticipantIDs).
type RoomSource interface {
	ParticipantIDs(sessionID string) []string
}

// Hub tracks live connections and implements engine.Broadcaster. Safe
// for concurrent use.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Connection

	rooms RoomSource
	flags *control.Snapshot
}

// NewHub wires a Hub against the Engine (for room membership) and the
// shared control flags (for progress_update throttling). rooms may be
// nil at construction time and supplied later via SetRooms: the Engine
// and the Hub depend on each other (Engine emits through the Hub, the
// Hub resolves rooms through the Engine), so callers typically
// construct the Hub first, then the Engine with the Hub as its
// Broadcaster, then call SetRooms once the Engine exists.
func NewHub(rooms RoomSource, flags *control.Snapshot) *Hub {
	return &Hub{
		conns: make(map[string]*Connection),
		rooms: rooms,
		flags: flags,
	}
}

// SetRooms completes the wiring described in NewHub.
func (h *Hub) SetRooms(rooms RoomSource) {
	h.rooms = rooms
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	h.conns[c.PlayerID] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(playerID string) {
	h.mu.Lock()
	delete(h.conns, playerID)
	h.mu.Unlock()
}

func (h *Hub) connectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) get(playerID string) (*Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[playerID]
	return c, ok
}

// SendToPlayer implements engine.Broadcaster.
func (h *Hub) SendToPlayer(playerID string, env wire.Envelope) {
	c, ok := h.get(playerID)
	if !ok {
		return
	}
	h.deliver(c, env)
}

// BroadcastToSession implements engine.Broadcaster: it delivers env to
// every connection currently participating in sessionID, applying the
// adaptive progress_update throttle (spec.md §4.3) to each delivery
// independently so a connection reconnecting mid-throttle-window isn't
// penalized by another connection's drop roll.
func (h *Hub) BroadcastToSession(sessionID string, env wire.Envelope) {
	ids := h.rooms.ParticipantIDs(sessionID)
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		c, ok := h.get(id)
		if !ok {
			continue
		}
		if h.shouldDropProgressUpdate(env) {
			metrics.BroadcastsDroppedCounter.WithLabelValues(env.Type, "throttled").Inc()
			continue
		}
		h.deliver(c, env)
	}
}

func (h *Hub) shouldDropProgressUpdate(env wire.Envelope) bool {
	if env.Type != wire.EventGameStateUpdate {
		return false
	}
	payload, ok := env.Payload.(wire.GameStateUpdatePayload)
	if !ok || payload.Type != wire.StateUpdateProgress {
		return false
	}
	flags := h.flags.Load()
	if !flags.ThrottlingEnabled || flags.UpdateFrequency != control.UpdateFrequencyLow {
		return false
	}
	// ~80% drop rate.
	return rand.Float64() < 0.8
}

func (h *Hub) deliver(c *Connection, env wire.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	critical := criticalEventTypes[env.Type]
	c.enqueue(critical, data)
	metrics.BroadcastsSentCounter.WithLabelValues(env.Type).Inc()
}
