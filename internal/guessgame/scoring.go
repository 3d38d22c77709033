// internal/guessgame/scoring.go
package guessgame

import "math"

const (
	// MaxScorePerRound is awarded for a guess within exactScoreMeters of the true location.
	MaxScorePerRound = 100

	exactScoreMeters = 1.0

	// Every guess farther than this gets a fixed one-point bonus on top of the decay.
	// The decay itself rounds to 0 past about 5.3 km, so the bonus keeps far guesses at 1.
	// Just short of the threshold a guess scores 10 while one just past it scores 11.
	minimumScoreThresholdMeters = 2258.0
)

// ScoreForDistance converts a guess distance in meters into round points.
func ScoreForDistance(distanceMeters float64) int {
	if distanceMeters <= exactScoreMeters {
		return MaxScorePerRound
	}
	score := int(math.Round(MaxScorePerRound * math.Exp(-distanceMeters/1000)))
	if distanceMeters > minimumScoreThresholdMeters {
		score++
	}
	return score
}
