// internal/handlers/protocol.go
package handlers

// Subprotocol is the websocket subprotocol clients must request on the hub endpoint.
const Subprotocol = "guessgame"

// Frame types exchanged on the hub connection.
const (
	frameInvocation = "invocation"
	frameCompletion = "completion"
	framePing       = "ping"
	framePong       = "pong"
	frameConnected  = "connected"
	frameError      = "error"
)

// Invocation methods accepted from clients.
const (
	MethodAddToGame      = "AddToGame"
	MethodGetPlayers     = "GetPlayers"
	MethodGetRoundInfo   = "GetRoundInfo"
	MethodStartGame      = "StartGame"
	MethodStartCountdown = "StartCountdown"
	MethodStartRound     = "StartRound"
	MethodGetRoundImage  = "GetRoundImage"
	MethodGuess          = "Guess"
	MethodLockIn         = "LockIn"
)

// ClientFrame is any frame a client sends. Only the fields used by Method are read.
type ClientFrame struct {
	Type         string `json:"type"`
	InvocationID string `json:"invocationId,omitempty"`
	Method       string `json:"method,omitempty"`

	GameCode      string   `json:"gameCode,omitempty"`
	Username      string   `json:"username,omitempty"`
	Lat           *float64 `json:"lat,omitempty"`
	Lon           *float64 `json:"lon,omitempty"`
	CountdownType string   `json:"countdownType,omitempty"`
	Seconds       *int     `json:"seconds,omitempty"`
}

// CompletionFrame answers one invocation, to the caller only.
type CompletionFrame struct {
	Type         string      `json:"type"`
	InvocationID string      `json:"invocationId"`
	Result       interface{} `json:"result"`
	Error        string      `json:"error,omitempty"`
}

// ConnectedFrame is the first frame on every connection and carries the server assigned identity.
type ConnectedFrame struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

// ErrorFrame reports a frame that could not be understood.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
