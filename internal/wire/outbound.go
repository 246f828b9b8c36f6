package wire

import "typerace/internal/replay"

// Outbound event type names (server -> room/connection).
const (
	EventGameStateUpdate = "game_state_update"
	EventPlayerJoined    = "player_joined"
	EventPlayerLeft      = "player_left"
	EventGameCountdown   = "game_countdown"
	EventGameStarted     = "game_started"
	EventGameFinished    = "game_finished"
	EventGameTerminated  = "game_terminated"
	EventReplayData      = "replay_data"
	EventAllGames        = "all_games"
	EventError           = "error"
)

// Sub-types carried by a game_state_update envelope's Payload.Type.
const (
	StateUpdateFull           = "full"
	StateUpdateProgress       = "progress_update"
	StateUpdateSystemStatus   = "system_status"
)

// Envelope is the outbound wire message: {"type": ..., "payload": ...}.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// PlayerView is the wire projection of an engine player.
type PlayerView struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Color        string  `json:"color"`
	Position     float64 `json:"position"`
	CurrentIndex int     `json:"currentIndex"`
	WPM          float64 `json:"wpm"`
	Accuracy     float64 `json:"accuracy"`
	IsReady      bool    `json:"isReady"`
	FinishTime   *int64  `json:"finishTime"`
	IsConnected  bool    `json:"isConnected"`
	IsSpectator  bool    `json:"isSpectator"`
}

// GameStateView is the wire projection of an engine session.
type GameStateView struct {
	ID                 string       `json:"id"`
	State              string       `json:"state"`
	Players            []PlayerView `json:"players"`
	Text               string       `json:"text,omitempty"`
	StartTime          *int64       `json:"startTime,omitempty"`
	EndTime            *int64       `json:"endTime,omitempty"`
	CountdownRemaining int          `json:"countdownRemaining,omitempty"`
	MaxPlayers         int          `json:"maxPlayers"`
}

// SystemStats accompanies a system_status game_state_update.
type SystemStats struct {
	ActiveSessions    int  `json:"activeSessions"`
	ConnectedPlayers  int  `json:"connectedPlayers"`
	MemoryAlert       bool `json:"memoryAlert"`
	LoadAlert         bool `json:"loadAlert"`
	GameCountAlert    bool `json:"gameCountAlert"`
	ThrottlingEnabled bool `json:"throttlingEnabled"`
}

// GameStateUpdatePayload is the payload of a game_state_update envelope.
// Type disambiguates which of the optional fields is populated.
type GameStateUpdatePayload struct {
	Type      string         `json:"type"`
	GameState *GameStateView `json:"gameState,omitempty"`
	Status    string         `json:"status,omitempty"`
	Stats     *SystemStats   `json:"stats,omitempty"`
}

// PlayerJoinedPayload is the player_joined event body.
type PlayerJoinedPayload struct {
	GameID string     `json:"gameId"`
	Player PlayerView `json:"player"`
}

// PlayerLeftPayload is the player_left event body.
type PlayerLeftPayload struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
}

// GameCountdownPayload is the game_countdown event body.
type GameCountdownPayload struct {
	GameID    string `json:"gameId"`
	Countdown int    `json:"countdown"`
}

// GameStartedPayload is the game_started event body.
type GameStartedPayload struct {
	GameID    string `json:"gameId"`
	StartTime int64  `json:"startTime"`
}

// RankingEntry is one row of a game_finished summary.
type RankingEntry struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Rank     int     `json:"rank"`
	WPM      float64 `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
	Finished bool    `json:"finished"`
}

// SummaryStats are the finished-only averages of a game_finished summary.
type SummaryStats struct {
	AvgWPM      float64 `json:"avgWpm"`
	AvgAccuracy float64 `json:"avgAccuracy"`
	FinishRate  float64 `json:"finishRate"`
}

// Summary is the full race summary emitted on Finished.
type Summary struct {
	TotalTime       int64          `json:"totalTime"`
	Rankings        []RankingEntry `json:"rankings"`
	Stats           SummaryStats   `json:"stats"`
	ReplayAvailable bool           `json:"replayAvailable"`
}

// GameFinishedPayload is the game_finished event body.
type GameFinishedPayload struct {
	GameState GameStateView `json:"gameState"`
	Summary   Summary       `json:"summary"`
}

// GameTerminatedPayload is the game_terminated event body.
type GameTerminatedPayload struct {
	GameID string `json:"gameId"`
	Reason string `json:"reason"`
}

// ReplayDataPayload is the replay_data event body.
type ReplayDataPayload struct {
	Replay replay.Replay `json:"replay"`
}

// GameSummary is one row of an all_games listing.
type GameSummary struct {
	ID          string `json:"id"`
	PlayerCount int    `json:"playerCount"`
	State       string `json:"state"`
}

// AllGamesPayload is the all_games event body.
type AllGamesPayload struct {
	Games []GameSummary `json:"games"`
}

// ErrorPayload is the error event body.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}
