package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typerace/internal/config"
	"typerace/internal/controller"
	"typerace/internal/engine"
	"typerace/internal/replay"
)

type fakeEngine struct {
	games         []engine.GameSummary
	gameStateErr  error
	replay        replay.Replay
	replayErr     error
	createErr     error
	joinErr       error
	activeCount   int
}

func (f *fakeEngine) AllGames() []engine.GameSummary { return f.games }

func (f *fakeEngine) GetGameState(sessionID string) (engine.View, error) {
	if f.gameStateErr != nil {
		return engine.View{}, f.gameStateErr
	}
	return engine.View{ID: sessionID}, nil
}

func (f *fakeEngine) GetReplay(sessionID string) (replay.Replay, error) {
	if f.replayErr != nil {
		return replay.Replay{}, f.replayErr
	}
	return f.replay, nil
}

func (f *fakeEngine) ActiveSessionCount() int { return f.activeCount }

func (f *fakeEngine) CreateGame(playerID, playerName string, maxPlayers int, long bool) (string, engine.PlayerView, error) {
	if f.createErr != nil {
		return "", engine.PlayerView{}, f.createErr
	}
	return "s1", engine.PlayerView{ID: playerID, Name: playerName}, nil
}

func (f *fakeEngine) JoinGame(playerID, playerName, sessionID string) (string, engine.PlayerView, bool, error) {
	if f.joinErr != nil {
		return "", engine.PlayerView{}, false, f.joinErr
	}
	return sessionID, engine.PlayerView{ID: playerID, Name: playerName}, false, nil
}

type fakeController struct {
	snap controller.DashboardSnapshot
}

func (f *fakeController) Snapshot() controller.DashboardSnapshot { return f.snap }

func testConfig() config.Config {
	return config.Config{Port: 8080, Env: config.EnvTest}
}

func TestHandleHealthReturnsOK(t *testing.T) {
	s := NewServer(&fakeEngine{}, &fakeController{}, testConfig())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["env"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestHandleHealthReturnsWarningOnCPUOrGameCountTrip(t *testing.T) {
	ctrl := &fakeController{snap: controller.DashboardSnapshot{CPUTripped: true}}
	s := NewServer(&fakeEngine{}, ctrl, testConfig())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "warning", body["status"])
}

func TestHandleHealthReturns503OnMemoryTrip(t *testing.T) {
	ctrl := &fakeController{snap: controller.DashboardSnapshot{MemoryTripped: true}}
	s := NewServer(&fakeEngine{}, ctrl, testConfig())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "critical", body["status"])
}

func TestHandleListGamesReturnsGames(t *testing.T) {
	eng := &fakeEngine{games: []engine.GameSummary{{ID: "s1", PlayerCount: 2, State: engine.StateWaiting}}}
	s := NewServer(eng, &fakeController{}, testConfig())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/game/games", nil)
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string][]gameSummaryView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body["games"], 1)
	assert.Equal(t, "s1", body["games"][0].ID)
}

func TestHandleGetGameNotFound(t *testing.T) {
	eng := &fakeEngine{gameStateErr: engine.ErrGameNotFound}
	s := NewServer(eng, &fakeController{}, testConfig())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/game/games/missing", nil)
	s.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleCreateGameRejectsMissingFields(t *testing.T) {
	s := NewServer(&fakeEngine{}, &fakeController{}, testConfig())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/game/create", bytes.NewReader([]byte(`{}`)))
	s.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleCreateGameSucceeds(t *testing.T) {
	s := NewServer(&fakeEngine{}, &fakeController{}, testConfig())
	rr := httptest.NewRecorder()
	body, _ := json.Marshal(createGameRequest{PlayerID: "p1", PlayerName: "alice", MaxPlayers: 4})
	req := httptest.NewRequest(http.MethodPost, "/api/game/create", bytes.NewReader(body))
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "s1", resp["gameId"])
}

func TestHandleGetReplayNotFound(t *testing.T) {
	eng := &fakeEngine{replayErr: replay.ErrNotFound}
	s := NewServer(eng, &fakeController{}, testConfig())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/game/replays/missing", nil)
	s.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMonitorMetricsRequiresAdminKeyWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.AdminAPIKey = "secret"
	s := NewServer(&fakeEngine{}, &fakeController{}, cfg)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/monitor/metrics", nil)
	s.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/api/monitor/metrics", nil)
	req2.Header.Set("X-Admin-Key", "secret")
	s.ServeHTTP(rr2, req2)
	assert.Equal(t, http.StatusOK, rr2.Code)
}

func TestMonitorDashboardReturnsControllerSnapshot(t *testing.T) {
	ctrl := &fakeController{snap: controller.DashboardSnapshot{MemoryTripped: true}}
	s := NewServer(&fakeEngine{}, ctrl, testConfig())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/monitor/dashboard", nil)
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var snap controller.DashboardSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.True(t, snap.MemoryTripped)
}

func TestRateLimitRejectsAfterBurstExhausted(t *testing.T) {
	eng := &fakeEngine{games: []engine.GameSummary{}}
	s := NewServer(eng, &fakeController{}, testConfig())

	var lastStatus int
	for i := 0; i < rateLimitRequests+1; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/game/games", nil)
		req.RemoteAddr = "203.0.113.5:5555"
		s.ServeHTTP(rr, req)
		lastStatus = rr.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, lastStatus)
}
