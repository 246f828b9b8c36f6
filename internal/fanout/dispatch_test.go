package fanout

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typerace/internal/control"
	"typerace/internal/controller"
	"typerace/internal/engine"
	"typerace/internal/replay"
	"typerace/internal/wire"
)

type fakeEngine struct {
	createGameErr error
	joinGameErr   error
	lastCreatedBy string
	lastMaxPlayers int

	replays map[string]replay.Replay
}

func (f *fakeEngine) CreateGame(playerID, playerName string, maxPlayers int, long bool) (string, engine.PlayerView, error) {
	f.lastCreatedBy = playerID
	f.lastMaxPlayers = maxPlayers
	if f.createGameErr != nil {
		return "", engine.PlayerView{}, f.createGameErr
	}
	return "s1", engine.PlayerView{ID: playerID}, nil
}

func (f *fakeEngine) JoinGame(playerID, playerName, sessionID string) (string, engine.PlayerView, bool, error) {
	if f.joinGameErr != nil {
		return "", engine.PlayerView{}, false, f.joinGameErr
	}
	return sessionID, engine.PlayerView{ID: playerID}, false, nil
}

func (f *fakeEngine) PlayerReady(sessionID, playerID string) (engine.View, error) {
	return engine.View{ID: sessionID}, nil
}

func (f *fakeEngine) UpdateProgress(sessionID, playerID string, currentIndex int, wpm, accuracy float64) error {
	return nil
}

func (f *fakeEngine) PlayerFinished(sessionID, playerID string, wpm, accuracy float64, finishTime int64) (bool, error) {
	return true, nil
}

func (f *fakeEngine) PlayerLeft(sessionID, playerID string) error { return nil }

func (f *fakeEngine) GetReplay(sessionID string) (replay.Replay, error) {
	r, ok := f.replays[sessionID]
	if !ok {
		return replay.Replay{}, replay.ErrNotFound
	}
	return r, nil
}

func (f *fakeEngine) GetGameState(sessionID string) (engine.View, error) {
	return engine.View{ID: sessionID}, nil
}

func (f *fakeEngine) AllGames() []engine.GameSummary { return nil }
func (f *fakeEngine) ActiveSessionCount() int        { return 0 }
func (f *fakeEngine) PlayerSessions(playerID string) []string { return nil }

type fakeController struct {
	snap controller.DashboardSnapshot
}

func (f *fakeController) Snapshot() controller.DashboardSnapshot { return f.snap }

func newTestDispatcher() (*Dispatcher, *fakeEngine, *Hub) {
	flags := control.NewSnapshot()
	hub := NewHub(&fakeRooms{}, flags)
	eng := &fakeEngine{replays: map[string]replay.Replay{}}
	return NewDispatcher(eng, hub, flags, &fakeController{}), eng, hub
}

// withType merges an event type tag into a marshaled payload, mirroring
// how a real client sends {"type": ..., ...payload fields} in one frame.
func withType(t *testing.T, eventType string, payload interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	fields["type"] = eventType
	out, err := json.Marshal(fields)
	require.NoError(t, err)
	return out
}

func drainOne(t *testing.T, hub *Hub, playerID string) wire.Envelope {
	t.Helper()
	c, ok := hub.get(playerID)
	require.True(t, ok)
	msgs := c.drain()
	require.Len(t, msgs, 1)
	var env wire.Envelope
	require.NoError(t, json.Unmarshal(msgs[0].data, &env))
	return env
}

func TestHandleCreateGameCallsEngine(t *testing.T) {
	d, eng, hub := newTestDispatcher()
	c := connWithQueue()
	c.PlayerID = "p1"
	hub.register(c)

	d.handle("p1", withType(t, wire.EventCreateGame, wire.CreateGamePayload{PlayerName: "alice", MaxPlayers: 4}))

	assert.Equal(t, "p1", eng.lastCreatedBy)
	assert.Equal(t, 4, eng.lastMaxPlayers)
	assert.Nil(t, c.drain())
}

func TestHandleCreateGameRepliesErrorOnEngineFailure(t *testing.T) {
	d, eng, hub := newTestDispatcher()
	eng.createGameErr = engine.ErrServiceUnavailable
	c := connWithQueue()
	c.PlayerID = "p1"
	hub.register(c)

	d.handle("p1", withType(t, wire.EventCreateGame, wire.CreateGamePayload{PlayerName: "alice"}))

	env := drainOne(t, hub, "p1")
	assert.Equal(t, wire.EventError, env.Type)
}

func TestHandleUnknownEventTypeRepliesError(t *testing.T) {
	d, _, hub := newTestDispatcher()
	c := connWithQueue()
	c.PlayerID = "p1"
	hub.register(c)

	d.handle("p1", []byte(`{"type":"not_a_real_event"}`))

	env := drainOne(t, hub, "p1")
	assert.Equal(t, wire.EventError, env.Type)
}

func TestHandleGetReplayNotFoundRepliesError(t *testing.T) {
	d, _, hub := newTestDispatcher()
	c := connWithQueue()
	c.PlayerID = "p1"
	hub.register(c)

	d.handle("p1", withType(t, wire.EventGetReplay, wire.GameIDPayload{GameID: "missing"}))

	env := drainOne(t, hub, "p1")
	assert.Equal(t, wire.EventError, env.Type)
}

func TestHandleGetSystemStatusReportsControllerAlerts(t *testing.T) {
	flags := control.NewSnapshot()
	hub := NewHub(&fakeRooms{}, flags)
	eng := &fakeEngine{replays: map[string]replay.Replay{}}
	ctrl := &fakeController{snap: controller.DashboardSnapshot{
		MemoryTripped:    true,
		CPUTripped:       false,
		GameCountTripped: true,
	}}
	d := NewDispatcher(eng, hub, flags, ctrl)

	c := connWithQueue()
	c.PlayerID = "p1"
	hub.register(c)

	d.handle("p1", []byte(`{"type":"get_system_status"}`))

	env := drainOne(t, hub, "p1")
	require.Equal(t, wire.EventGameStateUpdate, env.Type)
	raw, err := json.Marshal(env.Payload)
	require.NoError(t, err)
	var payload wire.GameStateUpdatePayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.NotNil(t, payload.Stats)
	assert.True(t, payload.Stats.MemoryAlert)
	assert.False(t, payload.Stats.LoadAlert)
	assert.True(t, payload.Stats.GameCountAlert)
}

func TestHandleSetSystemConfigAppliesFields(t *testing.T) {
	d, _, hub := newTestDispatcher()
	c := connWithQueue()
	c.PlayerID = "p1"
	hub.register(c)

	enabled := true
	d.handle("p1", withType(t, wire.EventSetSystemConfig, wire.SetSystemConfigPayload{ThrottlingEnabled: &enabled}))

	assert.True(t, d.flags.Load().ThrottlingEnabled)
	drainOne(t, hub, "p1") // system_status reply
}
