package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"typerace/internal/wire"
)

// fakeIDs hands out short, predictable, monotonically increasing ids so
// test assertions can refer to sessions/players by a known value.
type fakeIDs struct {
	sessions atomic.Int64
	players  atomic.Int64
}

func (f *fakeIDs) NewSessionID() string {
	return fmt.Sprintf("session-%d", f.sessions.Add(1))
}

func (f *fakeIDs) NewPlayerID() string {
	return fmt.Sprintf("player-%d", f.players.Add(1))
}

type recordedEvent struct {
	room      string // non-empty for BroadcastToSession
	player    string // non-empty for SendToPlayer
	eventType string
	payload   interface{}
}

// stubBroadcaster records every emitted event for assertions without
// needing a real Fan-out Layer.
type stubBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func newStubBroadcaster() *stubBroadcaster {
	return &stubBroadcaster{}
}

func (b *stubBroadcaster) BroadcastToSession(sessionID string, env wire.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{room: sessionID, eventType: env.Type, payload: env.Payload})
}

func (b *stubBroadcaster) SendToPlayer(playerID string, env wire.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{player: playerID, eventType: env.Type, payload: env.Payload})
}

func (b *stubBroadcaster) countEvents(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

func (b *stubBroadcaster) last(eventType string) (recordedEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].eventType == eventType {
			return b.events[i], true
		}
	}
	return recordedEvent{}, false
}

func (b *stubBroadcaster) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}
