package engine

import (
	"time"

	"typerace/internal/replay"
	"typerace/internal/wire"
)

// startCountdown transitions a session from Waiting to Countdown and
// starts a 1Hz ticker that fires startRace at zero (spec.md §4.1).
func (e *Engine) startCountdown(s *Session) {
	s.mu.Lock()
	if s.State != StateWaiting {
		s.mu.Unlock()
		return
	}
	s.State = StateCountdown
	s.CountdownRemaining = e.cfg.CountdownSeconds
	playerIDs := make([]string, 0, len(s.Players))
	for _, p := range s.Players {
		if !p.IsSpectator {
			playerIDs = append(playerIDs, p.ID)
		}
	}
	text := s.Text
	s.mu.Unlock()

	e.replays.Create(s.ID, text, playerIDs)

	stop := make(chan struct{})
	s.mu.Lock()
	s.countdownCancel = func() { close(stop) }
	s.mu.Unlock()

	if e.cfg.CountdownSeconds > 0 {
		e.broadcaster.BroadcastToSession(s.ID, wire.Envelope{
			Type:    wire.EventGameCountdown,
			Payload: wire.GameCountdownPayload{GameID: s.ID, Countdown: e.cfg.CountdownSeconds},
		})
	}

	go e.runCountdown(s, stop)
}

func (e *Engine) runCountdown(s *Session, stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.State != StateCountdown {
				s.mu.Unlock()
				return
			}
			s.CountdownRemaining--
			remaining := s.CountdownRemaining
			s.mu.Unlock()

			if remaining <= 0 {
				e.startRace(s)
				return
			}
			e.broadcaster.BroadcastToSession(s.ID, wire.Envelope{
				Type:    wire.EventGameCountdown,
				Payload: wire.GameCountdownPayload{GameID: s.ID, Countdown: remaining},
			})
		}
	}
}

// startRace transitions Countdown -> Racing and arms the maxRaceTime
// deadline (spec.md §4.1). Invoked either by the countdown ticker or,
// defensively, if called again on a non-Countdown session, is a no-op.
func (e *Engine) startRace(s *Session) {
	s.mu.Lock()
	if s.State != StateCountdown {
		s.mu.Unlock()
		return
	}
	s.State = StateRacing
	now := e.clock.NowMs()
	s.StartTime = now
	s.countdownCancel = nil
	s.mu.Unlock()

	e.replays.SetStartTime(s.ID, now)

	timer := time.AfterFunc(e.cfg.MaxRaceTime, func() { e.forceEndRace(s) })
	s.mu.Lock()
	s.raceDeadlineStop = func() bool { return timer.Stop() }
	s.mu.Unlock()

	e.broadcaster.BroadcastToSession(s.ID, wire.Envelope{
		Type:    wire.EventGameStarted,
		Payload: wire.GameStartedPayload{GameID: s.ID, StartTime: now},
	})
}

// UpdateProgress implements spec.md §4.1 updateProgress.
func (e *Engine) UpdateProgress(sessionID, playerID string, currentIndex int, wpm, accuracy float64) error {
	s, ok := e.getSession(sessionID)
	if !ok {
		return ErrGameNotFound
	}
	s.mu.Lock()
	if s.State != StateRacing {
		s.mu.Unlock()
		return ErrInvalidState
	}
	p := s.findPlayerLocked(playerID)
	if p == nil {
		s.mu.Unlock()
		return ErrPlayerNotFound
	}

	p.CurrentIndex = currentIndex
	p.WPM = wpm
	p.Accuracy = accuracy
	if len(s.Text) > 0 {
		p.Position = 100 * float64(currentIndex) / float64(len(s.Text))
	}
	if p.Position >= 100 && p.FinishTime == nil {
		now := e.clock.NowMs()
		p.FinishTime = &now
	}

	now := e.clock.NowMs()
	e.replays.AdmitSnapshot(s.ID, playerID, snapshotFrom(p, now), e.flags.Load().ReplaySnapshotIntervalMs)

	allDone := s.allNonSpectatorsFinishedLocked()
	s.mu.Unlock()

	e.broadcaster.BroadcastToSession(s.ID, wire.Envelope{
		Type: wire.EventGameStateUpdate,
		Payload: wire.GameStateUpdatePayload{
			Type:      wire.StateUpdateProgress,
			GameState: toWireState(s.viewLockedSafe()),
		},
	})

	if allDone {
		e.endRace(s, "completed")
	}
	return nil
}

// PlayerFinished implements spec.md §4.1 playerFinished: an authoritative
// finish report from the client, idempotent per player. Returns whether
// every connected non-spectator player in the session has now finished.
func (e *Engine) PlayerFinished(sessionID, playerID string, wpm, accuracy float64, finishTime int64) (bool, error) {
	s, ok := e.getSession(sessionID)
	if !ok {
		return false, ErrGameNotFound
	}
	s.mu.Lock()
	if s.State != StateRacing {
		s.mu.Unlock()
		return false, ErrInvalidState
	}
	p := s.findPlayerLocked(playerID)
	if p == nil {
		s.mu.Unlock()
		return false, ErrPlayerNotFound
	}

	if p.FinishTime == nil {
		p.WPM = wpm
		p.Accuracy = accuracy
		p.Position = 100
		p.CurrentIndex = len(s.Text)
		ft := finishTime
		if ft == 0 {
			ft = e.clock.NowMs()
		}
		p.FinishTime = &ft
	}

	e.replays.Finalize(s.ID, playerID, finalStatsFrom(p))
	allDone := s.allNonSpectatorsFinishedLocked()
	s.mu.Unlock()

	e.broadcaster.BroadcastToSession(s.ID, wire.Envelope{
		Type: wire.EventGameStateUpdate,
		Payload: wire.GameStateUpdatePayload{
			Type:      wire.StateUpdateProgress,
			GameState: toWireState(s.viewLockedSafe()),
		},
	})

	if allDone {
		e.endRace(s, "completed")
	}
	return allDone, nil
}

func (s *Session) allNonSpectatorsFinishedLocked() bool {
	any := false
	for _, p := range s.Players {
		if p.IsSpectator {
			continue
		}
		any = true
		if p.FinishTime == nil && p.IsConnected {
			return false
		}
	}
	return any
}

func (s *Session) viewLockedSafe() View {
	// Caller has already released s.mu; re-acquire for a consistent read.
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// forceEndRace is invoked by the maxRaceTime deadline timer.
func (e *Engine) forceEndRace(s *Session) {
	s.mu.Lock()
	if s.State != StateRacing {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	e.endRace(s, "timeout")
}

// endRace implements spec.md §4.1 endRace: Racing -> Finished, emits
// game_finished, and arms the cleanup delay.
func (e *Engine) endRace(s *Session, reason string) {
	s.mu.Lock()
	if s.State != StateRacing {
		s.mu.Unlock()
		return
	}
	s.State = StateFinished
	now := e.clock.NowMs()
	s.EndTime = now
	if s.raceDeadlineStop != nil {
		s.raceDeadlineStop()
		s.raceDeadlineStop = nil
	}
	view := s.viewLocked()
	s.mu.Unlock()

	e.replays.SetEndTime(s.ID, now)

	summary := e.buildSummary(view, reason)

	e.broadcaster.BroadcastToSession(s.ID, wire.Envelope{
		Type: wire.EventGameFinished,
		Payload: wire.GameFinishedPayload{
			GameState: *toWireState(view),
			Summary:   summary,
		},
	})

	timer := time.AfterFunc(e.cfg.CleanupDelay, func() { e.cleanupSession(s.ID) })
	s.mu.Lock()
	s.cleanupStop = func() bool { return timer.Stop() }
	s.mu.Unlock()
}

func snapshotFrom(p *Player, nowMs int64) replay.ProgressSnapshot {
	return replay.ProgressSnapshot{
		TimestampMs:  nowMs,
		Position:     p.Position,
		CurrentIndex: p.CurrentIndex,
		WPM:          p.WPM,
		Accuracy:     p.Accuracy,
	}
}

func finalStatsFrom(p *Player) replay.FinalStats {
	ft := int64(0)
	if p.FinishTime != nil {
		ft = *p.FinishTime
	}
	return replay.FinalStats{WPM: p.WPM, Accuracy: p.Accuracy, FinishTime: ft}
}
