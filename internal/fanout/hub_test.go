package fanout

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typerace/internal/control"
	"typerace/internal/wire"
)

type fakeRooms struct {
	members map[string][]string
}

func (r *fakeRooms) ParticipantIDs(sessionID string) []string { return r.members[sessionID] }

func connWithQueue() *Connection {
	return &Connection{wake: make(chan struct{}, 1)}
}

func TestBroadcastToSessionDeliversToEveryParticipant(t *testing.T) {
	rooms := &fakeRooms{members: map[string][]string{"s1": {"p1", "p2"}}}
	flags := control.NewSnapshot()
	h := NewHub(rooms, flags)

	c1, c2 := connWithQueue(), connWithQueue()
	c1.PlayerID, c2.PlayerID = "p1", "p2"
	h.register(c1)
	h.register(c2)

	h.BroadcastToSession("s1", wire.Envelope{Type: wire.EventPlayerJoined})

	require.Len(t, c1.drain(), 1)
	require.Len(t, c2.drain(), 1)
}

func TestBroadcastToSessionSkipsUnregisteredConnections(t *testing.T) {
	rooms := &fakeRooms{members: map[string][]string{"s1": {"p1", "ghost"}}}
	flags := control.NewSnapshot()
	h := NewHub(rooms, flags)

	c1 := connWithQueue()
	c1.PlayerID = "p1"
	h.register(c1)

	assert.NotPanics(t, func() {
		h.BroadcastToSession("s1", wire.Envelope{Type: wire.EventPlayerLeft})
	})
	require.Len(t, c1.drain(), 1)
}

func TestShouldDropProgressUpdateOnlyAppliesWhenThrottled(t *testing.T) {
	flags := control.NewSnapshot()
	h := NewHub(&fakeRooms{}, flags)

	progress := wire.Envelope{
		Type:    wire.EventGameStateUpdate,
		Payload: wire.GameStateUpdatePayload{Type: wire.StateUpdateProgress},
	}
	full := wire.Envelope{
		Type:    wire.EventGameStateUpdate,
		Payload: wire.GameStateUpdatePayload{Type: wire.StateUpdateFull},
	}

	assert.False(t, h.shouldDropProgressUpdate(progress))
	assert.False(t, h.shouldDropProgressUpdate(full))

	flags.Update(func(f *control.Flags) {
		f.ThrottlingEnabled = true
		f.UpdateFrequency = control.UpdateFrequencyLow
	})

	// full updates are never subject to the throttle roll.
	assert.False(t, h.shouldDropProgressUpdate(full))
}

func TestDeliverMarshalsEnvelopeOntoQueue(t *testing.T) {
	rooms := &fakeRooms{}
	flags := control.NewSnapshot()
	h := NewHub(rooms, flags)
	c := connWithQueue()
	c.PlayerID = "p1"

	h.deliver(c, wire.Envelope{Type: wire.EventError, Payload: wire.ErrorPayload{Message: "boom", Code: "INTERNAL"}})

	msgs := c.drain()
	require.Len(t, msgs, 1)
	var env wire.Envelope
	require.NoError(t, json.Unmarshal(msgs[0].data, &env))
	assert.Equal(t, wire.EventError, env.Type)
	assert.True(t, msgs[0].critical)
}
