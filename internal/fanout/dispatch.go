package fanout

import (
	"encoding/json"
	"errors"

	"typerace/internal/control"
	"typerace/internal/controller"
	"typerace/internal/engine"
	"typerace/internal/logx"
	"typerace/internal/replay"
	"typerace/internal/wire"
)

// Engine is the subset of *engine.Engine the dispatcher calls into.
type Engine interface {
	CreateGame(playerID, playerName string, maxPlayers int, long bool) (string, engine.PlayerView, error)
	JoinGame(playerID, playerName, sessionID string) (string, engine.PlayerView, bool, error)
	PlayerReady(sessionID, playerID string) (engine.View, error)
	UpdateProgress(sessionID, playerID string, currentIndex int, wpm, accuracy float64) error
	PlayerFinished(sessionID, playerID string, wpm, accuracy float64, finishTime int64) (bool, error)
	PlayerLeft(sessionID, playerID string) error
	GetReplay(sessionID string) (replay.Replay, error)
	GetGameState(sessionID string) (engine.View, error)
	AllGames() []engine.GameSummary
	ActiveSessionCount() int
	PlayerSessions(playerID string) []string
}

// Controller is the subset of *controller.Controller the dispatcher
// reads to report mitigation trip state on get_system_status — the
// same data the HTTP dashboard endpoint exposes.
type Controller interface {
	Snapshot() controller.DashboardSnapshot
}

// Dispatcher decodes inbound wire envelopes and calls the Engine,
// replying on the originating connection for request/reply style events
// (spec.md §6). Room-wide events triggered by state transitions are
// emitted by the Engine itself via the Hub's Broadcaster implementation.
type Dispatcher struct {
	engine Engine
	hub    *Hub
	flags  *control.Snapshot
	ctrl   Controller
}

// NewDispatcher wires a Dispatcher against the Engine, the Hub it
// replies through, the shared control flags (for set_system_config),
// and the Self-Healing Controller (for get_system_status alerts). ctrl
// may be nil when self-healing is disabled; alerts then read as false.
func NewDispatcher(eng Engine, hub *Hub, flags *control.Snapshot, ctrl Controller) *Dispatcher {
	return &Dispatcher{engine: eng, hub: hub, flags: flags, ctrl: ctrl}
}

func (d *Dispatcher) handle(playerID string, raw []byte) {
	var env wire.InboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.replyError(playerID, "malformed message", "INTERNAL")
		return
	}

	switch env.Type {
	case wire.EventCreateGame:
		d.handleCreateGame(playerID, raw)
	case wire.EventJoinGame:
		d.handleJoinGame(playerID, raw)
	case wire.EventPlayerReady:
		d.handlePlayerReady(playerID, raw)
	case wire.EventUpdateProgress:
		d.handleUpdateProgress(playerID, raw)
	case wire.EventPlayerFinished:
		d.handlePlayerFinished(playerID, raw)
	case wire.EventLeaveGame:
		d.handleLeaveGame(playerID, raw)
	case wire.EventGetReplay:
		d.handleGetReplay(playerID, raw)
	case wire.EventGetGameState:
		d.handleGetGameState(playerID, raw)
	case wire.EventGetAllGames:
		d.handleGetAllGames(playerID)
	case wire.EventGetSystemStatus:
		d.handleGetSystemStatus(playerID)
	case wire.EventSetSystemConfig:
		d.handleSetSystemConfig(playerID, raw)
	default:
		logx.Warnf("unknown inbound event type %q from %s", env.Type, playerID)
		d.replyError(playerID, "unknown event type", "INTERNAL")
	}
}

func (d *Dispatcher) handleCreateGame(playerID string, raw []byte) {
	var p wire.CreateGamePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		d.replyError(playerID, "invalid create_game payload", "INTERNAL")
		return
	}
	if _, _, err := d.engine.CreateGame(playerID, p.PlayerName, p.MaxPlayers, p.Long); err != nil {
		d.replyEngineError(playerID, err)
	}
}

func (d *Dispatcher) handleJoinGame(playerID string, raw []byte) {
	var p wire.JoinGamePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		d.replyError(playerID, "invalid join_game payload", "INTERNAL")
		return
	}
	if _, _, _, err := d.engine.JoinGame(playerID, p.PlayerName, p.GameID); err != nil {
		d.replyEngineError(playerID, err)
	}
}

func (d *Dispatcher) handlePlayerReady(playerID string, raw []byte) {
	var p wire.GameIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		d.replyError(playerID, "invalid player_ready payload", "INTERNAL")
		return
	}
	if _, err := d.engine.PlayerReady(p.GameID, playerID); err != nil {
		d.replyEngineError(playerID, err)
	}
}

func (d *Dispatcher) handleUpdateProgress(playerID string, raw []byte) {
	var p wire.UpdateProgressPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		d.replyError(playerID, "invalid update_progress payload", "INTERNAL")
		return
	}
	if err := d.engine.UpdateProgress(p.GameID, playerID, p.CurrentIndex, p.WPM, p.Accuracy); err != nil {
		d.replyEngineError(playerID, err)
	}
}

func (d *Dispatcher) handlePlayerFinished(playerID string, raw []byte) {
	var p wire.PlayerFinishedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		d.replyError(playerID, "invalid player_finished payload", "INTERNAL")
		return
	}
	if _, err := d.engine.PlayerFinished(p.GameID, playerID, p.WPM, p.Accuracy, p.FinishTime); err != nil {
		d.replyEngineError(playerID, err)
	}
}

func (d *Dispatcher) handleLeaveGame(playerID string, raw []byte) {
	var p wire.GameIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		d.replyError(playerID, "invalid leave_game payload", "INTERNAL")
		return
	}
	if err := d.engine.PlayerLeft(p.GameID, playerID); err != nil {
		d.replyEngineError(playerID, err)
	}
}

func (d *Dispatcher) handleGetReplay(playerID string, raw []byte) {
	var p wire.GameIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		d.replyError(playerID, "invalid get_replay payload", "INTERNAL")
		return
	}
	r, err := d.engine.GetReplay(p.GameID)
	if err != nil {
		d.replyError(playerID, "replay not found", "REPLAY_NOT_FOUND")
		return
	}
	d.hub.SendToPlayer(playerID, wire.Envelope{
		Type:    wire.EventReplayData,
		Payload: wire.ReplayDataPayload{Replay: r},
	})
}

func (d *Dispatcher) handleGetGameState(playerID string, raw []byte) {
	var p wire.GameIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		d.replyError(playerID, "invalid get_game_state payload", "INTERNAL")
		return
	}
	v, err := d.engine.GetGameState(p.GameID)
	if err != nil {
		d.replyEngineError(playerID, err)
		return
	}
	d.hub.SendToPlayer(playerID, wire.Envelope{
		Type: wire.EventGameStateUpdate,
		Payload: wire.GameStateUpdatePayload{
			Type:      wire.StateUpdateFull,
			GameState: viewToWire(v),
		},
	})
}

func (d *Dispatcher) handleGetAllGames(playerID string) {
	games := d.engine.AllGames()
	out := make([]wire.GameSummary, len(games))
	for i, g := range games {
		out[i] = wire.GameSummary{ID: g.ID, PlayerCount: g.PlayerCount, State: g.State.String()}
	}
	d.hub.SendToPlayer(playerID, wire.Envelope{
		Type:    wire.EventAllGames,
		Payload: wire.AllGamesPayload{Games: out},
	})
}

func (d *Dispatcher) handleGetSystemStatus(playerID string) {
	d.hub.SendToPlayer(playerID, wire.Envelope{
		Type:    wire.EventGameStateUpdate,
		Payload: d.systemStatusPayload(),
	})
}

func (d *Dispatcher) handleSetSystemConfig(playerID string, raw []byte) {
	var p wire.SetSystemConfigPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		d.replyError(playerID, "invalid set_system_config payload", "INTERNAL")
		return
	}
	d.flags.Update(func(f *control.Flags) {
		if p.AcceptingNewPlayers != nil {
			f.AcceptingNewPlayers = *p.AcceptingNewPlayers
		}
		if p.ThrottlingEnabled != nil {
			f.ThrottlingEnabled = *p.ThrottlingEnabled
		}
		if p.UpdateFrequency != nil {
			if *p.UpdateFrequency == "low" {
				f.UpdateFrequency = control.UpdateFrequencyLow
			} else {
				f.UpdateFrequency = control.UpdateFrequencyNormal
			}
		}
	})
	d.hub.SendToPlayer(playerID, wire.Envelope{
		Type:    wire.EventGameStateUpdate,
		Payload: d.systemStatusPayload(),
	})
}

func (d *Dispatcher) systemStatusPayload() wire.GameStateUpdatePayload {
	f := d.flags.Load()
	stats := &wire.SystemStats{
		ActiveSessions:    d.engine.ActiveSessionCount(),
		ConnectedPlayers:  d.hub.connectionCount(),
		ThrottlingEnabled: f.ThrottlingEnabled,
	}
	if d.ctrl != nil {
		snap := d.ctrl.Snapshot()
		stats.MemoryAlert = snap.MemoryTripped
		stats.LoadAlert = snap.CPUTripped
		stats.GameCountAlert = snap.GameCountTripped
	}
	return wire.GameStateUpdatePayload{
		Type:   wire.StateUpdateSystemStatus,
		Status: "ok",
		Stats:  stats,
	}
}

func (d *Dispatcher) replyEngineError(playerID string, err error) {
	var ee *engine.Error
	if errors.As(err, &ee) {
		d.replyError(playerID, ee.Message, string(ee.Code))
		return
	}
	d.replyError(playerID, err.Error(), "INTERNAL")
}

func (d *Dispatcher) replyError(playerID, message, code string) {
	d.hub.SendToPlayer(playerID, wire.Envelope{
		Type:    wire.EventError,
		Payload: wire.ErrorPayload{Message: message, Code: code},
	})
}

func viewToWire(v engine.View) *wire.GameStateView {
	players := make([]wire.PlayerView, len(v.Players))
	for i, p := range v.Players {
		players[i] = wire.PlayerView{
			ID: p.ID, Name: p.Name, Color: p.Color, Position: p.Position,
			CurrentIndex: p.CurrentIndex, WPM: p.WPM, Accuracy: p.Accuracy,
			IsReady: p.IsReady, FinishTime: p.FinishTime,
			IsConnected: p.IsConnected, IsSpectator: p.IsSpectator,
		}
	}
	out := &wire.GameStateView{
		ID: v.ID, State: v.State.String(), Players: players, Text: v.Text,
		MaxPlayers: v.MaxPlayers, CountdownRemaining: v.CountdownRemaining,
	}
	if v.StartTime != 0 {
		st := v.StartTime
		out.StartTime = &st
	}
	if v.EndTime != 0 {
		et := v.EndTime
		out.EndTime = &et
	}
	return out
}
