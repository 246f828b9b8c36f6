// Package wire defines the tagged-variant event envelopes exchanged over
// the bidirectional event transport (spec.md §6), replacing the
// stringly-typed dynamic dispatch the reference implementation used with
// a fixed set of typed payloads per event name.
package wire

// Inbound event type names (client -> server).
const (
	EventCreateGame       = "create_game"
	EventJoinGame         = "join_game"
	EventPlayerReady      = "player_ready"
	EventUpdateProgress   = "update_progress"
	EventPlayerFinished   = "player_finished"
	EventLeaveGame        = "leave_game"
	EventGetReplay        = "get_replay"
	EventGetGameState     = "get_game_state"
	EventGetAllGames      = "get_all_games"
	EventGetSystemStatus  = "get_system_status"
	EventSetSystemConfig  = "set_system_config"
)

// InboundEnvelope is decoded first to dispatch on Type; the remainder of
// the message is re-decoded into the event-specific payload struct below.
type InboundEnvelope struct {
	Type string `json:"type"`
}

// CreateGamePayload is the create_game event body.
type CreateGamePayload struct {
	PlayerName string `json:"playerName"`
	MaxPlayers int    `json:"maxPlayers,omitempty"`
	Long       bool   `json:"long,omitempty"`
}

// JoinGamePayload is the join_game event body.
type JoinGamePayload struct {
	PlayerName  string `json:"playerName"`
	GameID      string `json:"gameId,omitempty"`
	IsSpectator bool   `json:"isSpectator,omitempty"`
}

// GameIDPayload covers the several events whose only field is the target
// game id: player_ready, leave_game, get_replay, get_game_state.
type GameIDPayload struct {
	GameID string `json:"gameId"`
}

// UpdateProgressPayload is the update_progress event body.
type UpdateProgressPayload struct {
	GameID       string  `json:"gameId"`
	CurrentIndex int     `json:"currentIndex"`
	WPM          float64 `json:"wpm"`
	Accuracy     float64 `json:"accuracy"`
}

// PlayerFinishedPayload is the player_finished event body.
type PlayerFinishedPayload struct {
	GameID     string  `json:"gameId"`
	WPM        float64 `json:"wpm"`
	Accuracy   float64 `json:"accuracy"`
	FinishTime int64   `json:"finishTime"`
}

// SetSystemConfigPayload is the set_system_config event body; every field
// is optional and only present fields are applied.
type SetSystemConfigPayload struct {
	AcceptingNewPlayers *bool   `json:"acceptingNewPlayers,omitempty"`
	ThrottlingEnabled   *bool   `json:"throttlingEnabled,omitempty"`
	UpdateFrequency     *string `json:"updateFrequency,omitempty"`
}
