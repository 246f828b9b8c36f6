package fanout

import (
	"net/http"

	"github.com/gorilla/websocket"

	"typerace/internal/idgen"
	"typerace/internal/logx"
	"typerace/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server owns the WebSocket listener: it upgrades incoming connections,
// assigns player identity, registers the Connection with the Hub, and on
// disconnect walks every session the player belonged to so the Engine
// can run its leave-game cleanup for each (spec.md §4.1, "reconnect").
type Server struct {
	hub        *Hub
	dispatcher *Dispatcher
	ids        idgen.Generator
}

// NewServer wires a Server against the Hub, the Dispatcher it hands
// inbound frames to, and an id generator for brand-new connections.
func NewServer(hub *Hub, dispatcher *Dispatcher, ids idgen.Generator) *Server {
	return &Server{hub: hub, dispatcher: dispatcher, ids: ids}
}

// ServeHTTP upgrades the request to a WebSocket connection. Identity is
// opaque and provided by the Fan-out Layer: connection id == player id
// (spec.md §6). A client reconnecting after a disconnect passes its
// previously issued playerId back as a query parameter; a brand-new
// connection gets a freshly generated one.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logx.Warnf("websocket upgrade failed: %v", err)
		return
	}

	playerID := r.URL.Query().Get("playerId")
	if playerID == "" {
		playerID = s.ids.NewPlayerID()
	}

	c := newConnection(playerID, conn)
	s.hub.register(c)
	metrics.ConnectedPlayersGauge.WithLabelValues().Set(float64(s.hub.connectionCount()))

	logx.Infof("player %s connected", playerID)

	go c.writePump()
	go s.readLoop(c)
}

func (s *Server) readLoop(c *Connection) {
	c.readPump(
		func(data []byte) { s.dispatcher.handle(c.PlayerID, data) },
		func() { s.handleDisconnect(c) },
	)
}

func (s *Server) handleDisconnect(c *Connection) {
	c.markClosed()
	s.hub.unregister(c.PlayerID)
	metrics.ConnectedPlayersGauge.WithLabelValues().Set(float64(s.hub.connectionCount()))

	sessions := s.dispatcher.engine.PlayerSessions(c.PlayerID)
	for _, sessionID := range sessions {
		if err := s.dispatcher.engine.PlayerLeft(sessionID, c.PlayerID); err != nil {
			logx.Warnf("cleanup leave for player %s in session %s: %v", c.PlayerID, sessionID, err)
		}
	}

	logx.Infof("player %s disconnected", c.PlayerID)
}
