// internal/handlers/game_server.go
package handlers

import (
	"github.com/jason-s-yu/bikelane/internal/guessgame"
	"github.com/jason-s-yu/bikelane/internal/hub"
	"github.com/sirupsen/logrus"
)

// GameServer bundles what the HTTP and websocket handlers need: the game registry they drive and the
// hub that carries pushes back to clients.
type GameServer struct {
	Registry *guessgame.Registry
	Hub      *hub.Hub
	Logger   logrus.FieldLogger

	// OriginPatterns are passed to websocket.Accept.
	OriginPatterns []string
	// QueueSize bounds each connection's outbound queue.
	QueueSize int
}

// NewGameServer wires a server around an existing registry and hub.
func NewGameServer(reg *guessgame.Registry, h *hub.Hub, logger logrus.FieldLogger, originPatterns []string) *GameServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if len(originPatterns) == 0 {
		originPatterns = []string{"*"}
	}
	return &GameServer{
		Registry:       reg,
		Hub:            h,
		Logger:         logger,
		OriginPatterns: originPatterns,
		QueueSize:      hub.DefaultQueueSize,
	}
}
