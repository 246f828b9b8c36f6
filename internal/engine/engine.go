// Package engine implements the Race Engine (spec.md §4.1): the single
// authoritative session/player state machine, reachable only through the
// synchronous, threadsafe operations defined on *Engine.
package engine

import (
	"sync"
	"time"

	"typerace/internal/clock"
	"typerace/internal/control"
	"typerace/internal/idgen"
	"typerace/internal/replay"
	"typerace/internal/wire"
)

// TextProvider supplies the immutable passage for a new session.
type TextProvider interface {
	Random(long bool) (string, error)
}

// Broadcaster is how the Engine emits events (spec.md: "the Engine...
// emits events that the Fan-out Layer broadcasts to the session's
// room"). Implementations MUST NOT block: they enqueue to a bounded
// per-connection queue and return, isolating slow peers per spec.md §5.
type Broadcaster interface {
	BroadcastToSession(sessionID string, env wire.Envelope)
	SendToPlayer(playerID string, env wire.Envelope)
}

// Config is the Engine's tunable configuration, loaded from
// internal/config at startup.
type Config struct {
	DefaultMaxPlayers int
	MinPlayersToStart int
	CountdownSeconds  int
	MaxRaceTime       time.Duration
	CleanupDelay      time.Duration
}

// GameSummary is a row of the get_all_games listing.
type GameSummary struct {
	ID          string
	PlayerCount int
	State       State
}

// Engine owns every session and player. All exported methods are safe
// for concurrent use; per-session mutation is serialized by the target
// Session's own mutex, while the sessions/playerSessions registries are
// guarded by Engine.mu.
type Engine struct {
	mu             sync.RWMutex
	sessions       map[string]*Session
	playerSessions map[string]map[string]struct{} // playerID -> set of sessionIDs

	text        TextProvider
	clock       clock.Clock
	ids         idgen.Generator
	replays     *replay.Store
	flags       *control.Snapshot
	broadcaster Broadcaster
	cfg         Config

	queue *creationQueue
}

// New wires an Engine from its collaborators (spec.md §9 Design Notes:
// "long-lived components with explicit dependencies wired at startup").
func New(text TextProvider, c clock.Clock, ids idgen.Generator, replays *replay.Store, flags *control.Snapshot, broadcaster Broadcaster, cfg Config) *Engine {
	e := &Engine{
		sessions:       make(map[string]*Session),
		playerSessions: make(map[string]map[string]struct{}),
		text:           text,
		clock:          c,
		ids:            ids,
		replays:        replays,
		flags:          flags,
		broadcaster:    broadcaster,
		cfg:            cfg,
	}
	e.queue = newCreationQueue(e)
	return e
}

// StartBackgroundTasks starts the game-creation queue drainer. Callers
// should invoke this once at startup and stop it via the returned
// cancellation function during shutdown.
func (e *Engine) StartBackgroundTasks() (stop func()) {
	return e.queue.start()
}

func (e *Engine) registerPlayerSession(playerID, sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.playerSessions[playerID]
	if !ok {
		set = make(map[string]struct{})
		e.playerSessions[playerID] = set
	}
	set[sessionID] = struct{}{}
}

func (e *Engine) unregisterPlayerSession(playerID, sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if set, ok := e.playerSessions[playerID]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(e.playerSessions, playerID)
		}
	}
}

// PlayerSessions returns the set of session ids a player currently
// belongs to, used by the Fan-out Layer to route disconnect cleanup.
func (e *Engine) PlayerSessions(playerID string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	set, ok := e.playerSessions[playerID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (e *Engine) getSession(sessionID string) (*Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[sessionID]
	return s, ok
}

// ParticipantIDs returns every player id (connected or not, spectator or
// not) currently in a session, in join order. The Fan-out Layer uses this
// as the authoritative room membership list — a session's player list
// *is* its room, so there is no separate membership registry to drift
// out of sync with engine state.
func (e *Engine) ParticipantIDs(sessionID string) []string {
	s, ok := e.getSession(sessionID)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Players))
	for i, p := range s.Players {
		out[i] = p.ID
	}
	return out
}

// ActiveSessionCount returns the number of live sessions, for the
// Self-Healing Controller's game-count sampling.
func (e *Engine) ActiveSessionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

// CompactReplays runs the replay store's cache-compaction mitigation
// (spec.md §4.3), invoked by the Self-Healing Controller's clearCaches.
func (e *Engine) CompactReplays() {
	e.replays.CompactAll()
}

// AllGames lists every live session for get_all_games.
func (e *Engine) AllGames() []GameSummary {
	e.mu.RLock()
	ids := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		ids = append(ids, s)
	}
	e.mu.RUnlock()

	out := make([]GameSummary, len(ids))
	for i, s := range ids {
		s.mu.Lock()
		out[i] = GameSummary{ID: s.ID, PlayerCount: len(s.Players), State: s.State}
		s.mu.Unlock()
	}
	return out
}

// GetGameState returns a read-only snapshot of a session.
func (e *Engine) GetGameState(sessionID string) (View, error) {
	s, ok := e.getSession(sessionID)
	if !ok {
		return View{}, ErrGameNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(), nil
}

// GetReplay returns a session's replay, or a not-found error once it has
// been evicted.
func (e *Engine) GetReplay(sessionID string) (replay.Replay, error) {
	r, err := e.replays.Get(sessionID)
	if err != nil {
		return replay.Replay{}, &Error{Code: CodeGameNotFound, Message: "replay not found", Cause: err}
	}
	return r, nil
}

func (e *Engine) emitFullState(playerID string, s *Session) {
	view := s.viewLocked()
	e.broadcaster.SendToPlayer(playerID, wire.Envelope{
		Type: wire.EventGameStateUpdate,
		Payload: wire.GameStateUpdatePayload{
			Type:      wire.StateUpdateFull,
			GameState: toWireState(view),
		},
	})
}

func (e *Engine) broadcastFullState(s *Session) {
	view := s.viewLocked()
	e.broadcaster.BroadcastToSession(s.ID, wire.Envelope{
		Type: wire.EventGameStateUpdate,
		Payload: wire.GameStateUpdatePayload{
			Type:      wire.StateUpdateFull,
			GameState: toWireState(view),
		},
	})
}

func toWireState(v View) *wire.GameStateView {
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

// --- CreateGame ---

// CreateGame implements spec.md §4.1 createGame.
func (e *Engine) CreateGame(playerID, playerName string, maxPlayers int, long bool) (string, PlayerView, error) {
	flags := e.flags.Load()
	if !flags.AcceptingNewPlayers {
		return "", PlayerView{}, ErrServiceUnavailable
	}
	if flags.GameCreationQueueEnabled {
		e.queue.enqueue(creationRequest{
			playerID:    playerID,
			playerName:  playerName,
			maxPlayers:  maxPlayers,
			long:        long,
			submittedAt: e.clock.NowMs(),
		})
		return "", PlayerView{}, ErrQueued
	}
	return e.createGameNow(playerID, playerName, maxPlayers, long)
}

func (e *Engine) createGameNow(playerID, playerName string, maxPlayers int, long bool) (string, PlayerView, error) {
	flags := e.flags.Load()
	effectiveMax := maxPlayers
	if effectiveMax <= 0 {
		effectiveMax = e.cfg.DefaultMaxPlayers
	}
	if flags.MaxPlayersDelta != 0 {
		effectiveMax -= flags.MaxPlayersDelta
		if effectiveMax < 2 {
			effectiveMax = 2
		}
	}

	text, err := e.text.Random(long)
	if err != nil {
		text = ""
	}

	now := e.clock.NowMs()
	s := &Session{
		ID:         e.ids.NewSessionID(),
		State:      StateWaiting,
		Text:       text,
		MaxPlayers: effectiveMax,
		CreatedAt:  now,
	}
	player := &Player{
		ID:          playerID,
		Name:        sanitizeName(playerName),
		Color:       nextColor(0),
		IsConnected: true,
	}
	s.Players = append(s.Players, player)

	e.mu.Lock()
	e.sessions[s.ID] = s
	e.mu.Unlock()
	e.registerPlayerSession(playerID, s.ID)

	s.mu.Lock()
	e.emitFullState(playerID, s)
	e.broadcaster.BroadcastToSession(s.ID, wire.Envelope{
		Type:    wire.EventPlayerJoined,
		Payload: wire.PlayerJoinedPayload{GameID: s.ID, Player: player.view().toWire()},
	})
	pv := player.view()
	s.mu.Unlock()

	return s.ID, pv, nil
}

// --- JoinGame ---

// JoinGame implements spec.md §4.1 joinGame.
func (e *Engine) JoinGame(playerID, playerName string, sessionID string) (string, PlayerView, bool, error) {
	if sessionID == "" {
		if id, ok := e.findJoinableSession(); ok {
			sessionID = id
		} else {
			sid, pv, err := e.CreateGame(playerID, playerName, 0, false)
			return sid, pv, false, err
		}
	}

	s, ok := e.getSession(sessionID)
	if !ok {
		return "", PlayerView{}, false, ErrGameNotFound
	}

	s.mu.Lock()

	if existing := s.findPlayerLocked(playerID); existing != nil {
		if !existing.IsConnected {
			existing.IsConnected = true
			pv := existing.view()
			e.emitFullState(playerID, s)
			s.mu.Unlock()
			return s.ID, pv, existing.IsSpectator, nil
		}
		s.mu.Unlock()
		return "", PlayerView{}, false, ErrPlayerAlreadyExists
	}

	var isSpectator bool
	var player *Player
	if s.State != StateWaiting {
		isSpectator = true
		player = &Player{
			ID:          playerID,
			Name:        sanitizeName(playerName) + " (Spectator)",
			Color:       spectatorColor,
			IsReady:     true,
			IsConnected: true,
			IsSpectator: true,
		}
	} else {
		if len(s.Players) >= s.MaxPlayers {
			s.mu.Unlock()
			return "", PlayerView{}, false, ErrGameFull
		}
		player = &Player{
			ID:          playerID,
			Name:        sanitizeName(playerName),
			Color:       nextColor(s.nonSpectatorCountLocked()),
			IsConnected: true,
		}
	}
	s.Players = append(s.Players, player)

	e.emitFullState(playerID, s)
	e.broadcaster.BroadcastToSession(s.ID, wire.Envelope{
		Type:    wire.EventPlayerJoined,
		Payload: wire.PlayerJoinedPayload{GameID: s.ID, Player: player.view().toWire()},
	})
	pv := player.view()
	s.mu.Unlock()

	e.registerPlayerSession(playerID, s.ID)
	return s.ID, pv, isSpectator, nil
}

func (e *Engine) findJoinableSession() (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.sessions {
		s.mu.Lock()
		ok := s.State == StateWaiting && len(s.Players) < s.MaxPlayers
		id := s.ID
		s.mu.Unlock()
		if ok {
			return id, true
		}
	}
	return "", false
}

// --- PlayerReady / CanStartGame ---

// PlayerReady implements spec.md §4.1 playerReady. Idempotent. If the
// ready count now satisfies CanStartGame, it also starts the countdown.
func (e *Engine) PlayerReady(sessionID, playerID string) (View, error) {
	s, ok := e.getSession(sessionID)
	if !ok {
		return View{}, ErrGameNotFound
	}
	s.mu.Lock()
	p := s.findPlayerLocked(playerID)
	if p == nil {
		s.mu.Unlock()
		return View{}, ErrPlayerNotFound
	}
	if s.State != StateWaiting {
		view := s.viewLocked()
		s.mu.Unlock()
		return view, nil
	}

	p.IsReady = true
	e.broadcastFullState(s)
	ready := e.canStartGameLocked(s)
	view := s.viewLocked()
	s.mu.Unlock()

	if ready {
		e.startCountdown(s)
	}
	return view, nil
}

// CanStartGame reports whether a Waiting session has enough ready,
// connected, non-spectator players to begin countdown (spec.md §4.1;
// exposed per spec for Fan-out Layer consultation, though PlayerReady
// already drives the transition authoritatively).
func (e *Engine) CanStartGame(sessionID string) (bool, error) {
	s, ok := e.getSession(sessionID)
	if !ok {
		return false, ErrGameNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.canStartGameLocked(s), nil
}

func (e *Engine) canStartGameLocked(s *Session) bool {
	if s.State != StateWaiting {
		return false
	}
	connected := s.connectedNonSpectatorsLocked()
	if len(connected) < e.cfg.MinPlayersToStart {
		return false
	}
	for _, p := range connected {
		if !p.IsReady {
			return false
		}
	}
	return true
}

func (pv PlayerView) toWire() wire.PlayerView {
	return wire.PlayerView{
		ID: pv.ID, Name: pv.Name, Color: pv.Color, Position: pv.Position,
		CurrentIndex: pv.CurrentIndex, WPM: pv.WPM, Accuracy: pv.Accuracy,
		IsReady: pv.IsReady, FinishTime: pv.FinishTime,
		IsConnected: pv.IsConnected, IsSpectator: pv.IsSpectator,
	}
}
