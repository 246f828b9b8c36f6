package engine

import "typerace/internal/wire"

func (s *Session) removePlayerLocked(playerID string) {
	for i, p := range s.Players {
		if p.ID == playerID {
			s.Players = append(s.Players[:i], s.Players[i+1:]...)
			return
		}
	}
}

// removeDisconnectedLocked drops every disconnected player from the
// roster, used when a Countdown session reverts to Waiting: a Waiting
// session should only ever contain live candidates.
func (s *Session) removeDisconnectedLocked() {
	kept := s.Players[:0]
	for _, p := range s.Players {
		if p.IsConnected {
			kept = append(kept, p)
		}
	}
	s.Players = kept
}

// PlayerLeft implements spec.md §4.1 leave_game, plus the disconnect path
// driven by the Fan-out Layer's connection-close handler. Behavior varies
// by state: Waiting removes the player outright and deletes the session
// if it becomes empty; Countdown reverts to Waiting and cancels the
// countdown if connected non-spectators drop below the start threshold;
// Racing/Finished only mark the player disconnected so their progress and
// rank survive the race.
func (e *Engine) PlayerLeft(sessionID, playerID string) error {
	s, ok := e.getSession(sessionID)
	if !ok {
		return ErrGameNotFound
	}
	s.mu.Lock()
	p := s.findPlayerLocked(playerID)
	if p == nil {
		s.mu.Unlock()
		return ErrPlayerNotFound
	}

	var removedIDs []string
	switch s.State {
	case StateWaiting:
		s.removePlayerLocked(playerID)
		removedIDs = []string{playerID}
	case StateCountdown:
		p.IsConnected = false
		if len(s.connectedNonSpectatorsLocked()) < e.cfg.MinPlayersToStart {
			if s.countdownCancel != nil {
				s.countdownCancel()
				s.countdownCancel = nil
			}
			s.State = StateWaiting
			s.CountdownRemaining = 0
			for _, dp := range s.Players {
				if !dp.IsConnected {
					removedIDs = append(removedIDs, dp.ID)
				}
			}
			s.removeDisconnectedLocked()
		}
	default: // Racing, Finished
		p.IsConnected = false
	}

	empty := len(s.Players) == 0
	allDone := s.State == StateRacing && s.allNonSpectatorsFinishedLocked()
	s.mu.Unlock()

	for _, id := range removedIDs {
		e.unregisterPlayerSession(id, sessionID)
	}

	e.broadcaster.BroadcastToSession(s.ID, wire.Envelope{
		Type:    wire.EventPlayerLeft,
		Payload: wire.PlayerLeftPayload{GameID: s.ID, PlayerID: playerID},
	})

	switch {
	case empty:
		e.removeSession(s.ID)
	case allDone:
		e.endRace(s, "completed")
	}
	return nil
}

// removeSession deletes a session from the registry, unregisters every
// remaining player, cancels any outstanding timers, and arms replay
// eviction (spec.md §4.3: "on session destruction, arm a timer for
// replayRetentionMs").
func (e *Engine) removeSession(sessionID string) {
	e.mu.Lock()
	s, ok := e.sessions[sessionID]
	if ok {
		delete(e.sessions, sessionID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	if s.countdownCancel != nil {
		s.countdownCancel()
	}
	if s.raceDeadlineStop != nil {
		s.raceDeadlineStop()
	}
	if s.cleanupStop != nil {
		s.cleanupStop()
	}
	playerIDs := make([]string, len(s.Players))
	for i, p := range s.Players {
		playerIDs[i] = p.ID
	}
	s.mu.Unlock()

	for _, id := range playerIDs {
		e.unregisterPlayerSession(id, sessionID)
	}

	e.replays.ArmRetention(sessionID, e.flags.Load().ReplayRetentionMs)
}

// cleanupSession is the normal post-Finished teardown, fired by the
// cleanupDelay timer armed in endRace.
func (e *Engine) cleanupSession(sessionID string) {
	e.removeSession(sessionID)
}

// TerminateIdleGames force-removes up to limit sessions that are either
// in Finished state (unconditionally) or Waiting with at most one
// connected non-spectator player and sat idle for at least maxAgeMs. It
// is invoked by the Self-Healing Controller's mitigation pass (spec.md
// §4.4) and returns the number terminated.
func (e *Engine) TerminateIdleGames(maxAgeMs int64, limit int) int {
	e.mu.RLock()
	candidates := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		candidates = append(candidates, s)
	}
	e.mu.RUnlock()

	now := e.clock.NowMs()
	terminated := 0
	for _, s := range candidates {
		if limit > 0 && terminated >= limit {
			break
		}
		s.mu.Lock()
		idle := s.State == StateFinished ||
			(s.State == StateWaiting &&
				len(s.connectedNonSpectatorsLocked()) <= 1 &&
				s.gameAgeLocked(now) >= maxAgeMs)
		id := s.ID
		s.mu.Unlock()
		if !idle {
			continue
		}
		e.broadcaster.BroadcastToSession(id, wire.Envelope{
			Type:    wire.EventGameTerminated,
			Payload: wire.GameTerminatedPayload{GameID: id, Reason: "idle"},
		})
		e.removeSession(id)
		terminated++
	}
	return terminated
}
