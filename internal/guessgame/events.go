// internal/guessgame/events.go
package guessgame

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bikelane/internal/models"
)

// Outbound event names pushed to every connection in a game's group.
const (
	EventJoinedGame       = "JoinedGame"
	EventStartedRound     = "StartedRound"
	EventReceiveImage     = "ReceiveImage"
	EventReceiveCountdown = "ReceiveCountdown"
	EventEndRound         = "EndRound"
	EventAdminLeftGame    = "AdminLeftGame"
)

// GuessType tells the client how the round expects to be guessed.
type GuessType string

const (
	// GuessTypeIntersection means the photo was taken at a named street crossing.
	GuessTypeIntersection GuessType = "intersection"
	// GuessTypeGPS means the photo only has a free coordinate.
	GuessTypeGPS GuessType = "gps"
)

// Player is a connected player and their cumulative score.
type Player struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// RoundInfo describes the current round. RoundLength carries the seconds remaining
// in the active round and Countdown those of the running countdown, both clamped at zero.
type RoundInfo struct {
	Round          int        `json:"round"`
	NumberOfRounds int        `json:"numberOfRounds"`
	RoundLength    int        `json:"roundLength"`
	RoundEndTime   *time.Time `json:"roundEndTime"`
	Countdown      int        `json:"countdown"`
}

// ImageInfo is what players see for the active round.
type ImageInfo struct {
	ImageURL string    `json:"imageUrl"`
	Type     GuessType `json:"type"`
}

// PlayerRoundResult is one guess scored at the end of a round.
type PlayerRoundResult struct {
	ConnectionID   string          `json:"connectionId"`
	Username       string          `json:"username"`
	Guess          models.Location `json:"guess"`
	DistanceMeters float64         `json:"distance"`
	Score          int             `json:"score"`
	TotalScore     int             `json:"totalScore"`
}

// RoundEndInfo is the payload of the EndRound event. Results are sorted by distance, closest first.
type RoundEndInfo struct {
	GameOver       bool                `json:"gameOver"`
	Round          int                 `json:"round"`
	NumberOfRounds int                 `json:"numberOfRounds"`
	Location       models.Location     `json:"location"`
	Results        []PlayerRoundResult `json:"results"`
}

// RoundRecord is a finished round handed to a RoundRecorder for history.
type RoundRecord struct {
	ID             uuid.UUID           `json:"id"`
	GameCode       string              `json:"game_code"`
	ItemID         uuid.UUID           `json:"item_id"`
	Round          int                 `json:"round"`
	NumberOfRounds int                 `json:"number_of_rounds"`
	Location       models.Location     `json:"location"`
	Results        []PlayerRoundResult `json:"results"`
	FinishedAt     time.Time           `json:"finished_at"`
}
