package engine

import (
	"sync"
)

// State is a race session's position in its state machine (spec.md §3).
// Values advance Waiting -> Countdown -> Racing -> Finished, with one
// exception: a Countdown session returns to Waiting when departures leave
// fewer connected non-spectators than the start minimum (see PlayerLeft).
type State int

const (
	StateWaiting State = iota
	StateCountdown
	StateRacing
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateCountdown:
		return "countdown"
	case StateRacing:
		return "racing"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// colorPalette is the fixed 8-entry palette players are assigned from
// round-robin (spec.md §4.1). Index 0 is reserved visually for the first
// joiner; spectatorColor is the neutral color spectators always get.
var colorPalette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A",
	"#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E9",
}

const spectatorColor = "#AAAAAA"

const maxNameLen = 15

// Player is a connection-bound participant in a session (spec.md §3).
type Player struct {
	ID           string
	Name         string
	Color        string
	Position     float64
	CurrentIndex int
	WPM          float64
	Accuracy     float64
	IsReady      bool
	FinishTime   *int64
	IsConnected  bool
	IsSpectator  bool
}

func (p *Player) view() PlayerView {
	return PlayerView{
		ID:           p.ID,
		Name:         p.Name,
		Color:        p.Color,
		Position:     p.Position,
		CurrentIndex: p.CurrentIndex,
		WPM:          p.WPM,
		Accuracy:     p.Accuracy,
		IsReady:      p.IsReady,
		FinishTime:   p.FinishTime,
		IsConnected:  p.IsConnected,
		IsSpectator:  p.IsSpectator,
	}
}

// PlayerView is a read-only copy of a Player, safe to hold outside the
// session lock.
type PlayerView struct {
	ID           string
	Name         string
	Color        string
	Position     float64
	CurrentIndex int
	WPM          float64
	Accuracy     float64
	IsReady      bool
	FinishTime   *int64
	IsConnected  bool
	IsSpectator  bool
}

// Session is one race instance and its finite state machine (spec.md §3).
// All mutation goes through the Engine's operations, which hold mu for
// the duration of the mutation; this satisfies the "single authoritative
// state, serialized per session" contract in spec.md §5.
type Session struct {
	mu sync.Mutex

	ID      string
	State   State
	Players []*Player // ordered by join time
	Text    string

	MaxPlayers int
	CreatedAt  int64
	StartTime  int64 // 0 means unset
	EndTime    int64 // 0 means unset

	CountdownRemaining int

	countdownCancel func()
	raceDeadlineStop func() bool
	cleanupStop      func() bool
}

// View is a read-only snapshot of a Session, safe to hold/serialize
// outside the session lock.
type View struct {
	ID                 string
	State              State
	Players            []PlayerView
	Text               string
	MaxPlayers         int
	CreatedAt          int64
	StartTime          int64
	EndTime            int64
	CountdownRemaining int
}

func (s *Session) viewLocked() View {
	players := make([]PlayerView, len(s.Players))
	for i, p := range s.Players {
		players[i] = p.view()
	}
	return View{
		ID:                 s.ID,
		State:              s.State,
		Players:            players,
		Text:               s.Text,
		MaxPlayers:         s.MaxPlayers,
		CreatedAt:          s.CreatedAt,
		StartTime:          s.StartTime,
		EndTime:            s.EndTime,
		CountdownRemaining: s.CountdownRemaining,
	}
}

func (s *Session) findPlayerLocked(id string) *Player {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *Session) nonSpectatorCountLocked() int {
	n := 0
	for _, p := range s.Players {
		if !p.IsSpectator {
			n++
		}
	}
	return n
}

func (s *Session) connectedNonSpectatorsLocked() []*Player {
	out := make([]*Player, 0, len(s.Players))
	for _, p := range s.Players {
		if !p.IsSpectator && p.IsConnected {
			out = append(out, p)
		}
	}
	return out
}

// gameAge resolves per spec.md §9: now - startTime if set, else
// now - createdAt.
func (s *Session) gameAgeLocked(nowMs int64) int64 {
	if s.StartTime != 0 {
		return nowMs - s.StartTime
	}
	return nowMs - s.CreatedAt
}
