// internal/guessgame/registry.go
package guessgame

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// maxCodeAttempts bounds regeneration when a fresh code collides with a live game.
const maxCodeAttempts = 10

// RegistryConfig wires a Registry to its collaborators.
type RegistryConfig struct {
	Deps
	Items       ItemSource
	RoundLength time.Duration
}

// Registry maps game codes to live games. It is the single point of creation, lookup and teardown.
// Operations against unknown codes are silently dropped; reads return zero values.
type Registry struct {
	mu    sync.RWMutex
	games map[string]*Game

	deps        Deps
	items       ItemSource
	roundLength time.Duration
	log         logrus.FieldLogger

	newCode func() (string, error)
}

// NewRegistry returns an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Registry{
		games:       make(map[string]*Game),
		deps:        cfg.Deps,
		items:       cfg.Items,
		roundLength: cfg.RoundLength,
		log:         cfg.Logger,
		newCode:     GenerateCode,
	}
}

// CreateGame validates the round count, generates a code unique among live games, and registers the game.
func (r *Registry) CreateGame(numberOfRounds int) (*Game, error) {
	if numberOfRounds < MinRounds || numberOfRounds > MaxRounds {
		return nil, ErrInvalidRounds
	}
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := r.newCode()
		if err != nil {
			return nil, err
		}
		g, err := NewGame(code, numberOfRounds, r.roundLength, r.deps)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		if _, taken := r.games[code]; taken {
			r.mu.Unlock()
			continue
		}
		r.games[code] = g
		r.mu.Unlock()

		r.log.WithField("game", code).Infof("Created game with %d rounds", numberOfRounds)
		return g, nil
	}
	return nil, fmt.Errorf("no unique game code after %d attempts", maxCodeAttempts)
}

// AddGame stores a game under its own code, replacing any game with the same code.
func (r *Registry) AddGame(g *Game) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[g.Code] = g
}

// GetGame returns the game for code, if it exists.
func (r *Registry) GetGame(code string) (*Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[code]
	return g, ok
}

// ContainsGame reports whether a game with code is live.
func (r *Registry) ContainsGame(code string) bool {
	_, ok := r.GetGame(code)
	return ok
}

// Len returns the number of live games.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}

// findGameByConnection scans live games for the one holding connectionID.
func (r *Registry) findGameByConnection(connectionID string) *Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.games {
		if g.HasUser(connectionID) {
			return g
		}
	}
	return nil
}

// AddUser joins connectionID to the game under code. A connection belongs to at most one game, so it
// is first removed from any other game it is in. Returns false if the game does not exist or is
// being torn down.
func (r *Registry) AddUser(code, connectionID, username string) bool {
	g, ok := r.GetGame(code)
	if !ok {
		return false
	}
	if prev := r.findGameByConnection(connectionID); prev != nil && prev != g {
		r.RemoveUser(connectionID)
	}
	return g.AddUser(connectionID, username)
}

// RemoveUser removes connectionID from whichever game holds it. If that game became empty or lost its
// admin, the game is removed from the registry and its timers are released.
func (r *Registry) RemoveUser(connectionID string) {
	g := r.findGameByConnection(connectionID)
	if g == nil {
		return
	}
	res := g.RemoveUser(connectionID)
	if !res.TearDown() {
		return
	}
	r.removeGame(g)
}

// removeGame deletes g from the map and closes it. The map is the point of truth: if some other caller
// already removed g, nothing else happens.
func (r *Registry) removeGame(g *Game) {
	r.mu.Lock()
	cur, ok := r.games[g.Code]
	if !ok || cur != g {
		r.mu.Unlock()
		return
	}
	delete(r.games, g.Code)
	r.mu.Unlock()

	g.Close()
	r.log.WithField("game", g.Code).Info("Game removed from registry")
}

// StartGame selects the round images for the game under code. Data source failures are returned.
func (r *Registry) StartGame(ctx context.Context, code, connectionID string) error {
	g, ok := r.GetGame(code)
	if !ok {
		return nil
	}
	return g.StartGame(ctx, r.items, connectionID)
}

// StartRound opens the next round of the game under code.
func (r *Registry) StartRound(code, connectionID string) error {
	g, ok := r.GetGame(code)
	if !ok {
		return nil
	}
	return g.StartRound(connectionID)
}

// Guess records a guess in the game under code.
func (r *Registry) Guess(code, connectionID string, lat, lon float64) {
	if g, ok := r.GetGame(code); ok {
		g.Guess(connectionID, lat, lon)
	}
}

// LockIn locks in a guess in the game under code.
func (r *Registry) LockIn(code, connectionID string) {
	if g, ok := r.GetGame(code); ok {
		g.LockIn(connectionID)
	}
}

// StartCountdown starts a countdown in the game under code.
func (r *Registry) StartCountdown(code, connectionID, countdownType string, seconds int) {
	if g, ok := r.GetGame(code); ok {
		g.StartCountdown(connectionID, countdownType, seconds)
	}
}

// GetPlayers returns the players of the game under code, or nil.
func (r *Registry) GetPlayers(code string) []Player {
	g, ok := r.GetGame(code)
	if !ok {
		return nil
	}
	return g.GetPlayersWithScores()
}

// GetRoundInfo returns the round info of the game under code, or nil.
func (r *Registry) GetRoundInfo(code string) *RoundInfo {
	g, ok := r.GetGame(code)
	if !ok {
		return nil
	}
	info := g.GetRoundInfo()
	return &info
}

// GetRoundImage returns the current image of the game under code. Unknown codes yield nil.
func (r *Registry) GetRoundImage(code string) (*ImageInfo, error) {
	g, ok := r.GetGame(code)
	if !ok {
		return nil, nil
	}
	info, err := g.GetRoundImage()
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Close tears down every live game.
func (r *Registry) Close() {
	r.mu.Lock()
	games := make([]*Game, 0, len(r.games))
	for code, g := range r.games {
		games = append(games, g)
		delete(r.games, code)
	}
	r.mu.Unlock()

	for _, g := range games {
		g.Close()
	}
	r.log.Infof("Closed %d games", len(games))
}
