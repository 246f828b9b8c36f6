package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"typerace/internal/engine"
	"typerace/internal/replay"
)

type gameSummaryView struct {
	ID          string `json:"id"`
	PlayerCount int    `json:"playerCount"`
	State       string `json:"state"`
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games := s.engine.AllGames()
	out := make([]gameSummaryView, len(games))
	for i, g := range games {
		out[i] = gameSummaryView{ID: g.ID, PlayerCount: g.PlayerCount, State: g.State.String()}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"games": out})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	v, err := s.engine.GetGameState(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type createGameRequest struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	MaxPlayers int    `json:"maxPlayers"`
	Long       bool   `json:"long"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlayerID == "" || req.PlayerName == "" {
		writeError(w, http.StatusBadRequest, "playerId and playerName are required")
		return
	}

	sessionID, player, err := s.engine.CreateGame(req.PlayerID, req.PlayerName, req.MaxPlayers, req.Long)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"gameId": sessionID,
		"player": player,
	})
}

type joinGameRequest struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	GameID     string `json:"gameId"`
}

func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	var req joinGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlayerID == "" || req.PlayerName == "" {
		writeError(w, http.StatusBadRequest, "playerId and playerName are required")
		return
	}

	sessionID, player, isSpectator, err := s.engine.JoinGame(req.PlayerID, req.PlayerName, req.GameID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"gameId":      sessionID,
		"player":      player,
		"isSpectator": isSpectator,
	})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"activeSessions": s.engine.ActiveSessionCount(),
	})
}

func (s *Server) handleListReplays(w http.ResponseWriter, r *http.Request) {
	games := s.engine.AllGames()
	ids := make([]string, 0, len(games))
	for _, g := range games {
		ids = append(ids, g.ID)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"replayIds": ids})
}

func (s *Server) handleGetReplay(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rep, err := s.engine.GetReplay(id)
	if err != nil {
		if errors.Is(err, replay.ErrNotFound) {
			writeError(w, http.StatusNotFound, "replay not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load replay")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func writeEngineError(w http.ResponseWriter, err error) {
	var ee *engine.Error
	if errors.As(err, &ee) {
		writeJSON(w, statusForCode(ee.Code), map[string]string{"error": ee.Message, "code": string(ee.Code)})
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func statusForCode(code engine.Code) int {
	switch code {
	case engine.CodeGameNotFound, engine.CodePlayerNotFound:
		return http.StatusNotFound
	case engine.CodeGameFull, engine.CodePlayerAlreadyExists, engine.CodeInvalidState:
		return http.StatusConflict
	case engine.CodeServiceUnavailable, engine.CodeQueued:
		return http.StatusServiceUnavailable
	case engine.CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
