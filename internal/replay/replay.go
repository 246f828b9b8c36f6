// Package replay implements the per-session append-only progress buffer
// described in spec.md §3 and §4.3: snapshot admission, finalization,
// compaction (triggered by the Self-Healing Controller's clearCaches),
// and TTL-based retention after a session is destroyed.
package replay

import (
	"sync"
	"time"

	"typerace/internal/clock"
)

// ProgressSnapshot is one point in a player's replay (spec.md Glossary).
type ProgressSnapshot struct {
	TimestampMs  int64   `json:"timestamp"`
	Position     float64 `json:"position"`
	CurrentIndex int     `json:"currentIndex"`
	WPM          float64 `json:"wpm"`
	Accuracy     float64 `json:"accuracy"`
}

// FinalStats is recorded exactly once per player, on finish.
type FinalStats struct {
	WPM        float64 `json:"wpm"`
	Accuracy   float64 `json:"accuracy"`
	FinishTime int64   `json:"finishTime"`
	Rank       int     `json:"rank"`
}

// PlayerReplay is one non-spectator player's recorded race.
type PlayerReplay struct {
	Snapshots []ProgressSnapshot `json:"snapshots"`
	Final     *FinalStats        `json:"finalStats,omitempty"`
}

// Replay is the full per-session record (spec.md §3).
type Replay struct {
	mu        sync.RWMutex
	Text      string                   `json:"text"`
	StartTime int64                    `json:"startTime"`
	EndTime   int64                    `json:"endTime"`
	Players   map[string]*PlayerReplay `json:"players"`
}

// Snapshot returns a deep copy safe for serialization/inspection outside
// the store's lock.
func (r *Replay) Snapshot() Replay {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := Replay{Text: r.Text, StartTime: r.StartTime, EndTime: r.EndTime}
	cp.Players = make(map[string]*PlayerReplay, len(r.Players))
	for id, pr := range r.Players {
		snaps := append([]ProgressSnapshot(nil), pr.Snapshots...)
		var final *FinalStats
		if pr.Final != nil {
			f := *pr.Final
			final = &f
		}
		cp.Players[id] = &PlayerReplay{Snapshots: snaps, Final: final}
	}
	return cp
}

// ErrNotFound is returned when a replay has been evicted or never existed.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "replay: not found" }

// Store owns every session's replay plus the retention timers that evict
// them. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	replays map[string]*Replay
	timers  map[string]*time.Timer
	clock   clock.Clock
}

// New returns an empty Store.
func New(c clock.Clock) *Store {
	return &Store{
		replays: make(map[string]*Replay),
		timers:  make(map[string]*time.Timer),
		clock:   c,
	}
}

// Create initializes a session's replay on entry to Countdown. playerIDs
// are the non-spectator players present at countdown start.
func (s *Store) Create(sessionID, text string, playerIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &Replay{Text: text, Players: make(map[string]*PlayerReplay, len(playerIDs))}
	for _, id := range playerIDs {
		r.Players[id] = &PlayerReplay{}
	}
	s.replays[sessionID] = r
	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
		delete(s.timers, sessionID)
	}
}

// AddPlayer registers a late-joining non-spectator player (not applicable
// in the common path, since joins after Countdown become spectators, but
// kept for symmetry with reconnect flows that rejoin a racing player).
func (s *Store) AddPlayer(sessionID, playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.replays[sessionID]
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.Players[playerID]; !exists {
		r.Players[playerID] = &PlayerReplay{}
	}
}

// SetStartTime stamps the replay's race start time.
func (s *Store) SetStartTime(sessionID string, ms int64) {
	s.mu.Lock()
	r, ok := s.replays[sessionID]
	s.mu.Unlock()
	if !ok {
		return
	}
	r.mu.Lock()
	r.StartTime = ms
	r.mu.Unlock()
}

// SetEndTime stamps the replay's race end time.
func (s *Store) SetEndTime(sessionID string, ms int64) {
	s.mu.Lock()
	r, ok := s.replays[sessionID]
	s.mu.Unlock()
	if !ok {
		return
	}
	r.mu.Lock()
	r.EndTime = ms
	r.mu.Unlock()
}

// AdmitSnapshot applies the admission rule from spec.md §4.3: admit iff
// the previous snapshot for playerID is absent, OR the interval since it
// has elapsed, OR position moved by >= 5. Returns whether it was admitted.
// A no-op returning false if the session or player has no replay (e.g.
// spectator) or the player already has final stats recorded.
func (s *Store) AdmitSnapshot(sessionID, playerID string, snap ProgressSnapshot, intervalMs int64) bool {
	s.mu.Lock()
	r, ok := s.replays[sessionID]
	s.mu.Unlock()
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pr, ok := r.Players[playerID]
	if !ok || pr.Final != nil {
		return false
	}

	if len(pr.Snapshots) > 0 {
		prev := pr.Snapshots[len(pr.Snapshots)-1]
		elapsed := snap.TimestampMs - prev.TimestampMs
		moved := snap.Position - prev.Position
		if moved < 0 {
			moved = -moved
		}
		if elapsed < intervalMs && moved < 5 {
			return false
		}
	}

	pr.Snapshots = append(pr.Snapshots, snap)
	return true
}

// Finalize records a player's terminal stats exactly once; later calls are
// ignored (spec.md §4.3 Finalization).
func (s *Store) Finalize(sessionID, playerID string, stats FinalStats) {
	s.mu.Lock()
	r, ok := s.replays[sessionID]
	s.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	pr, ok := r.Players[playerID]
	if !ok || pr.Final != nil {
		return
	}
	st := stats
	pr.Final = &st
}

// Get returns a defensive copy of a session's replay, or ErrNotFound.
func (s *Store) Get(sessionID string) (Replay, error) {
	s.mu.Lock()
	r, ok := s.replays[sessionID]
	s.mu.Unlock()
	if !ok {
		return Replay{}, ErrNotFound
	}
	return r.Snapshot(), nil
}

// CompactAll is invoked by the Controller's clearCaches mitigation: for
// every replay, any player with more than 20 snapshots retains every 5th
// one (indices 0, 5, 10, ...), order preserved, discarding the rest.
func (s *Store) CompactAll() {
	s.mu.Lock()
	all := make([]*Replay, 0, len(s.replays))
	for _, r := range s.replays {
		all = append(all, r)
	}
	s.mu.Unlock()

	for _, r := range all {
		r.mu.Lock()
		for _, pr := range r.Players {
			if len(pr.Snapshots) > 20 {
				compacted := make([]ProgressSnapshot, 0, (len(pr.Snapshots)+4)/5)
				for i := 0; i < len(pr.Snapshots); i += 5 {
					compacted = append(compacted, pr.Snapshots[i])
				}
				pr.Snapshots = compacted
			}
		}
		r.mu.Unlock()
	}
}

// ArmRetention schedules deletion of a session's replay retentionMs from
// now, invoked when the owning session is destroyed.
func (s *Store) ArmRetention(sessionID string, retentionMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
	}
	s.timers[sessionID] = time.AfterFunc(time.Duration(retentionMs)*time.Millisecond, func() {
		s.mu.Lock()
		delete(s.replays, sessionID)
		delete(s.timers, sessionID)
		s.mu.Unlock()
	})
}

// Delete immediately removes a session's replay and cancels any pending
// retention timer, e.g. when a Waiting/Countdown session is abandoned
// before any replay data would be meaningful.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
		delete(s.timers, sessionID)
	}
	delete(s.replays, sessionID)
}

// Count returns the number of live replays, for monitoring.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replays)
}
