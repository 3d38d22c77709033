// internal/handlers/hub_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/bikelane/internal/hub"
	"github.com/jason-s-yu/bikelane/internal/middleware"
	"github.com/sirupsen/logrus"
)

var (
	errGameNotFound    = errors.New("game not found")
	errMissingGameCode = errors.New("gameCode is required")
)

// session is the server side of one hub connection.
type session struct {
	gs           *GameServer
	connectionID string
	// gameCode is the group the connection last joined through AddToGame.
	gameCode string
	log      logrus.FieldLogger
}

// HubWSHandler upgrades the request to the guess game hub websocket. Every connection gets a fresh
// connection id, announced in a "connected" frame, and is torn out of its game when the socket closes.
func HubWSHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: gs.OriginPatterns,
		})
		if err != nil {
			gs.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the guessgame subprotocol")
			return
		}

		s := &session{gs: gs, connectionID: uuid.NewString()}
		s.log = gs.Logger.WithField("connection", s.connectionID)

		client := hub.NewClient(s.connectionID, gs.QueueSize, gs.Logger)
		gs.Hub.Register(client)
		s.log.Debugf("%d hub connections", gs.Hub.Len())

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			client.WritePump(ctx, c)
			cancel()
		}()

		middleware.LogWebSocketConnect(gs.Logger, r.RemoteAddr, r.URL.Path, s.connectionID)
		gs.Hub.Send(s.connectionID, ConnectedFrame{Type: frameConnected, ConnectionID: s.connectionID})

		readErr := s.readFrames(ctx, c)

		middleware.LogWebSocketDisconnect(gs.Logger, r.RemoteAddr, r.URL.Path, s.connectionID, readErr)
		gs.Registry.RemoveUser(s.connectionID)
		gs.Hub.Unregister(s.connectionID)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// readFrames reads client frames until the socket closes or ctx ends. It returns the read error
// unless the connection closed normally.
func (s *session) readFrames(ctx context.Context, c *websocket.Conn) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				s.log.Debug("WebSocket closed normally.")
				return nil
			}
			if ctx.Err() != nil || strings.Contains(err.Error(), "context canceled") {
				s.log.Debug("WebSocket context canceled.")
				return nil
			}
			s.log.Warnf("Error reading from WebSocket: %v (Status: %d)", err, status)
			return err
		}
		if msgType != websocket.MessageText {
			s.log.Warnf("Received non-text message type %d. Ignoring.", msgType)
			continue
		}
		s.handleFrame(ctx, data)
	}
}

// handleFrame decodes one client frame and answers it through the hub queue.
func (s *session) handleFrame(ctx context.Context, data []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.log.Warnf("Invalid JSON received: %v", err)
		s.gs.Hub.Send(s.connectionID, ErrorFrame{Type: frameError, Message: "Invalid JSON format."})
		return
	}

	switch frame.Type {
	case frameInvocation:
		s.log.Debugf("Invocation %s (%s) for game %s", frame.Method, frame.InvocationID, frame.GameCode)
		result, err := s.dispatch(ctx, frame)
		completion := CompletionFrame{Type: frameCompletion, InvocationID: frame.InvocationID, Result: result}
		if err != nil {
			completion.Result = nil
			completion.Error = err.Error()
		}
		s.gs.Hub.Send(s.connectionID, completion)
	case framePing:
		s.gs.Hub.Send(s.connectionID, map[string]string{"type": framePong})
	default:
		s.log.Warnf("Unknown frame type '%s'", frame.Type)
		s.gs.Hub.Send(s.connectionID, ErrorFrame{Type: frameError, Message: fmt.Sprintf("Unknown frame type: %s", frame.Type)})
	}
}

// dispatch maps an invocation onto the registry. It holds no game state of its own.
func (s *session) dispatch(ctx context.Context, frame ClientFrame) (interface{}, error) {
	reg := s.gs.Registry
	code := frame.GameCode
	if code == "" {
		return nil, errMissingGameCode
	}

	switch frame.Method {
	case MethodAddToGame:
		return s.addToGame(code, frame.Username)

	case MethodGetPlayers:
		return reg.GetPlayers(code), nil

	case MethodGetRoundInfo:
		return reg.GetRoundInfo(code), nil

	case MethodStartGame:
		return nil, reg.StartGame(ctx, code, s.connectionID)

	case MethodStartCountdown:
		if frame.Seconds == nil {
			return nil, errors.New("seconds is required")
		}
		reg.StartCountdown(code, s.connectionID, frame.CountdownType, *frame.Seconds)
		return nil, nil

	case MethodStartRound:
		return nil, reg.StartRound(code, s.connectionID)

	case MethodGetRoundImage:
		return reg.GetRoundImage(code)

	case MethodGuess:
		if frame.Lat == nil || frame.Lon == nil {
			return nil, errors.New("lat and lon are required")
		}
		reg.Guess(code, s.connectionID, *frame.Lat, *frame.Lon)
		return nil, nil

	case MethodLockIn:
		reg.LockIn(code, s.connectionID)
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown method: %s", frame.Method)
	}
}

// addToGame joins the caller's group before joining the game so the caller sees its own JoinedGame.
func (s *session) addToGame(code, username string) (interface{}, error) {
	reg := s.gs.Registry
	if !reg.ContainsGame(code) {
		return nil, errGameNotFound
	}
	s.gs.Hub.AddToGroup(code, s.connectionID)
	if !reg.AddUser(code, s.connectionID, username) {
		if s.gameCode != code {
			s.gs.Hub.RemoveFromGroup(code, s.connectionID)
		}
		return nil, errGameNotFound
	}
	if s.gameCode != "" && s.gameCode != code {
		s.gs.Hub.RemoveFromGroup(s.gameCode, s.connectionID)
	}
	s.gameCode = code
	return reg.GetPlayers(code), nil
}
