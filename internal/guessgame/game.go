// internal/guessgame/game.go
package guessgame

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bikelane/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// MinRounds and MaxRounds bound the number of rounds a game may be created with.
	MinRounds = 1
	MaxRounds = 50

	// DefaultRoundLength is the guess window of every round unless configured otherwise.
	DefaultRoundLength = 60 * time.Second
)

var (
	// ErrInvalidRounds is returned when a game is created with a round count outside MinRounds..MaxRounds.
	ErrInvalidRounds = fmt.Errorf("number of rounds must be between %d and %d", MinRounds, MaxRounds)

	// ErrGameNotStarted is returned for round operations before StartGame has selected the images.
	ErrGameNotStarted = errors.New("game has not been started")
)

// Phase is the lifecycle position of a game.
type Phase string

const (
	PhaseLobby       Phase = "lobby"
	PhaseRoundActive Phase = "round_active"
	PhaseRoundEnded  Phase = "round_ended"
	PhaseGameOver    Phase = "game_over"
)

// Broadcaster pushes an event to every connection joined to a group. Implementations must not block
// on delivery and must not call back into the game.
type Broadcaster interface {
	BroadcastToGroup(group string, event string, args ...interface{})
}

// RoundRecorder receives every finished round. It is called from its own goroutine.
type RoundRecorder interface {
	RecordRound(ctx context.Context, rec RoundRecord) error
}

// Deps are the collaborators shared by every game in a registry. Only Broadcaster is required.
type Deps struct {
	Broadcaster Broadcaster
	Geocoder    Geocoder
	Recorder    RoundRecorder
	Logger      logrus.FieldLogger
}

// RemovalResult tells the registry what RemoveUser did to the game.
type RemovalResult struct {
	Found    bool
	WasAdmin bool
	Empty    bool
}

// TearDown reports whether the game should be removed from its registry.
func (r RemovalResult) TearDown() bool {
	return r.Found && (r.WasAdmin || r.Empty)
}

// Game is the in-memory state of one multiplayer guessing session.
type Game struct {
	Code           string
	NumberOfRounds int
	RoundLength    time.Duration

	mu sync.Mutex

	round       int
	roundActive bool
	images      []RoundImage
	selecting   bool
	closed      bool

	adminConnectionID  string
	connectionIDToUser map[string]string
	joinOrder          []string
	scores             map[string]int
	guesses            map[string]models.Location
	lockIns            map[string]struct{}

	roundEndTime     *time.Time
	countdownEndTime *time.Time

	roundTimer timerScope
	countdown  timerScope

	// countdownTick is the interval between countdown broadcasts.
	countdownTick time.Duration

	broadcaster Broadcaster
	geocoder    Geocoder
	recorder    RoundRecorder
	log         logrus.FieldLogger
	now         func() time.Time
}

// NewGame builds an empty game in the lobby phase. roundLength <= 0 selects DefaultRoundLength.
func NewGame(code string, numberOfRounds int, roundLength time.Duration, deps Deps) (*Game, error) {
	if numberOfRounds < MinRounds || numberOfRounds > MaxRounds {
		return nil, ErrInvalidRounds
	}
	if roundLength <= 0 {
		roundLength = DefaultRoundLength
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Game{
		Code:               code,
		NumberOfRounds:     numberOfRounds,
		RoundLength:        roundLength,
		connectionIDToUser: make(map[string]string),
		scores:             make(map[string]int),
		guesses:            make(map[string]models.Location),
		lockIns:            make(map[string]struct{}),
		countdownTick:      time.Second,
		broadcaster:        deps.Broadcaster,
		geocoder:           deps.Geocoder,
		recorder:           deps.Recorder,
		log:                logger.WithField("game", code),
		now:                time.Now,
	}, nil
}

// AddUser registers a connection under a display name. The first connection to join becomes admin.
// Adding a connection that is already registered does nothing. It returns false once the game is
// closed, including when its admin or last user has just left.
func (g *Game) AddUser(connectionID, username string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}
	if _, exists := g.connectionIDToUser[connectionID]; exists {
		return true
	}
	if len(g.connectionIDToUser) == 0 {
		g.adminConnectionID = connectionID
	}
	g.connectionIDToUser[connectionID] = username
	g.joinOrder = append(g.joinOrder, connectionID)
	g.scores[connectionID] = 0

	g.log.WithField("connection", connectionID).Infof("%s joined (admin: %v)", username, g.adminConnectionID == connectionID)
	g.fireEvent(EventJoinedGame, Player{Username: username, Score: 0})
	return true
}

// RemoveUser deregisters a connection from every tracking map. When the admin leaves while others
// remain, AdminLeftGame is broadcast so clients can leave too. A removal that tears the game down
// closes it before the lock is released, so no one can join it on the way out.
func (g *Game) RemoveUser(connectionID string) RemovalResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	username, ok := g.connectionIDToUser[connectionID]
	if !ok {
		return RemovalResult{}
	}
	delete(g.connectionIDToUser, connectionID)
	delete(g.scores, connectionID)
	delete(g.guesses, connectionID)
	delete(g.lockIns, connectionID)
	for i, id := range g.joinOrder {
		if id == connectionID {
			g.joinOrder = append(g.joinOrder[:i], g.joinOrder[i+1:]...)
			break
		}
	}

	res := RemovalResult{
		Found:    true,
		WasAdmin: g.adminConnectionID == connectionID,
		Empty:    len(g.connectionIDToUser) == 0,
	}
	if res.WasAdmin {
		g.adminConnectionID = ""
	}
	if res.TearDown() {
		g.closeUnsafe()
	}
	g.log.WithField("connection", connectionID).Infof("%s left (admin: %v, remaining: %d)", username, res.WasAdmin, len(g.connectionIDToUser))

	switch {
	case res.WasAdmin && !res.Empty:
		g.fireEvent(EventAdminLeftGame)
	case !res.WasAdmin && !res.Empty:
		// the leaver may have been the only one not locked in
		g.endRoundIfAllLockedIn()
	}
	return res
}

// StartGame selects the round images. It does nothing unless connectionID is the admin and the game
// is still in the lobby with no selection done or in flight. The data source is queried without
// holding the game lock. On error the game stays in the lobby and may be started again.
func (g *Game) StartGame(ctx context.Context, source ItemSource, connectionID string) error {
	g.mu.Lock()
	if g.closed || connectionID != g.adminConnectionID || g.round != 0 || g.images != nil || g.selecting {
		g.mu.Unlock()
		return nil
	}
	g.selecting = true
	n := g.NumberOfRounds
	g.mu.Unlock()

	images, err := selectRoundImages(ctx, source, n, g.log)
	if err == nil {
		classifyRoundImages(ctx, images, g.geocoder, g.log)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.selecting = false
	if err != nil {
		g.log.Warnf("Failed to select round images: %v", err)
		return fmt.Errorf("selecting images for game %s: %w", g.Code, err)
	}
	if g.closed {
		return nil
	}
	g.images = images
	g.log.Infof("Selected %d round images", len(images))
	return nil
}

// StartRound opens the next round's guess window. It does nothing unless connectionID is the admin
// and rounds remain. A round timer still running from an earlier round is cancelled first.
func (g *Game) StartRound(connectionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed || connectionID != g.adminConnectionID || g.round >= g.NumberOfRounds {
		return nil
	}
	if g.images == nil {
		return ErrGameNotStarted
	}
	if g.roundActive {
		g.log.Infof("Round %d superseded before it ended", g.round)
	}

	g.guesses = make(map[string]models.Location)
	g.lockIns = make(map[string]struct{})
	g.round++
	g.roundActive = true
	end := g.now().Add(g.RoundLength)
	g.roundEndTime = &end

	ctx, gen := g.roundTimer.reset()
	go g.awaitRoundEnd(ctx, gen, g.RoundLength)

	g.log.Infof("Round %d of %d started", g.round, g.NumberOfRounds)
	g.fireEvent(EventStartedRound, g.roundInfoUnsafe())
	g.fireEvent(EventReceiveImage, g.images[g.round-1].Info)
	return nil
}

// awaitRoundEnd ends the round when its timer expires, unless the scope was cancelled or replaced.
func (g *Game) awaitRoundEnd(ctx context.Context, gen uint64, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return
	case <-t.C:
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.roundTimer.live(gen) {
		g.log.Debugf("Stale round timer fired (generation %d). Ignoring.", gen)
		return
	}
	g.roundTimer.stop()
	g.endRoundUnsafe()
}

// Guess records or overwrites the connection's guess for the active round. Guesses from unknown or
// locked-in connections, outside a round, or with out-of-range coordinates are ignored.
func (g *Game) Guess(connectionID string, lat, lon float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.roundActive {
		return
	}
	if _, ok := g.connectionIDToUser[connectionID]; !ok {
		return
	}
	if _, locked := g.lockIns[connectionID]; locked {
		return
	}
	if !validCoordinate(lat, lon) {
		g.log.WithField("connection", connectionID).Warnf("Ignoring guess with invalid coordinate (%v, %v)", lat, lon)
		return
	}
	g.guesses[connectionID] = models.Location{Latitude: lat, Longitude: lon}
}

// LockIn makes the connection's current guess final for the round. Once every connected user has
// locked in, the round timer and any countdown are cancelled and the round ends immediately.
func (g *Game) LockIn(connectionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.roundActive {
		return
	}
	if _, ok := g.connectionIDToUser[connectionID]; !ok {
		return
	}
	g.lockIns[connectionID] = struct{}{}
	g.endRoundIfAllLockedIn()
}

// endRoundIfAllLockedIn ends the active round early when the lock-in set covers every connected user.
// Membership and lock-ins are read under the same lock, so the comparison is against the connected
// set at this instant. Assumes lock is held.
func (g *Game) endRoundIfAllLockedIn() {
	if !g.roundActive || len(g.connectionIDToUser) == 0 || len(g.lockIns) < len(g.connectionIDToUser) {
		return
	}
	g.log.Debugf("All %d players locked in for round %d", len(g.lockIns), g.round)
	g.roundTimer.stop()
	g.countdown.stop()
	g.countdownEndTime = nil
	g.endRoundUnsafe()
}

// endRoundUnsafe scores the active round and broadcasts the result. It does nothing if no round is
// active, so a round is never scored twice. Assumes lock is held.
func (g *Game) endRoundUnsafe() {
	if !g.roundActive {
		return
	}
	g.roundActive = false
	g.lockIns = make(map[string]struct{})
	g.roundEndTime = nil

	image := g.images[g.round-1]
	truth := image.Location()

	results := make([]PlayerRoundResult, 0, len(g.guesses))
	for connID, guess := range g.guesses {
		username, ok := g.connectionIDToUser[connID]
		if !ok {
			continue
		}
		distance := guess.DistanceMeters(truth)
		score := ScoreForDistance(distance)
		g.scores[connID] += score
		results = append(results, PlayerRoundResult{
			ConnectionID:   connID,
			Username:       username,
			Guess:          guess,
			DistanceMeters: distance,
			Score:          score,
			TotalScore:     g.scores[connID],
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].DistanceMeters < results[j].DistanceMeters
	})

	info := RoundEndInfo{
		GameOver:       g.round == g.NumberOfRounds,
		Round:          g.round,
		NumberOfRounds: g.NumberOfRounds,
		Location:       truth,
		Results:        results,
	}
	g.log.Infof("Round %d ended with %d guesses (game over: %v)", g.round, len(results), info.GameOver)
	g.fireEvent(EventEndRound, info)

	if g.recorder != nil {
		rec := RoundRecord{
			ID:             uuid.New(),
			GameCode:       g.Code,
			ItemID:         image.Item.ID,
			Round:          info.Round,
			NumberOfRounds: info.NumberOfRounds,
			Location:       truth,
			Results:        results,
			FinishedAt:     g.now(),
		}
		go func(recorder RoundRecorder, rec RoundRecord, log logrus.FieldLogger) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := recorder.RecordRound(ctx, rec); err != nil {
				log.Warnf("Failed to record round %d: %v", rec.Round, err)
			}
		}(g.recorder, rec, g.log)
	}
}

// StartCountdown broadcasts the remaining seconds of a pre-round countdown once per tick down to zero.
// Admin only. A new countdown replaces the previous one.
func (g *Game) StartCountdown(connectionID, countdownType string, seconds int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed || connectionID != g.adminConnectionID || seconds < 0 {
		return
	}
	ctx, gen := g.countdown.reset()
	end := g.now().Add(time.Duration(seconds) * time.Second)
	g.countdownEndTime = &end

	g.fireEvent(EventReceiveCountdown, countdownType, seconds)
	if seconds == 0 {
		g.countdown.stop()
		g.countdownEndTime = nil
		return
	}
	go g.runCountdown(ctx, gen, countdownType, seconds)
}

// runCountdown ticks a countdown started by StartCountdown.
func (g *Game) runCountdown(ctx context.Context, gen uint64, countdownType string, seconds int) {
	ticker := time.NewTicker(g.countdownTick)
	defer ticker.Stop()

	for remaining := seconds - 1; remaining >= 0; remaining-- {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		g.mu.Lock()
		if !g.countdown.live(gen) {
			g.mu.Unlock()
			return
		}
		g.fireEvent(EventReceiveCountdown, countdownType, remaining)
		if remaining == 0 {
			g.countdown.stop()
			g.countdownEndTime = nil
		}
		g.mu.Unlock()
	}
}

// Close cancels both timer scopes. The game accepts no further lifecycle operations.
func (g *Game) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closeUnsafe()
}

// closeUnsafe assumes lock is held.
func (g *Game) closeUnsafe() {
	g.closed = true
	g.roundActive = false
	g.roundTimer.stop()
	g.countdown.stop()
	g.roundEndTime = nil
	g.countdownEndTime = nil
}

// GetPlayersWithScores returns every connected player in join order.
func (g *Game) GetPlayersWithScores() []Player {
	g.mu.Lock()
	defer g.mu.Unlock()

	players := make([]Player, 0, len(g.joinOrder))
	for _, connID := range g.joinOrder {
		players = append(players, Player{
			Username: g.connectionIDToUser[connID],
			Score:    g.scores[connID],
		})
	}
	return players
}

// GetRoundInfo returns the current round number, the remaining round time and the running countdown.
func (g *Game) GetRoundInfo() RoundInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.roundInfoUnsafe()
}

// roundInfoUnsafe assumes lock is held.
func (g *Game) roundInfoUnsafe() RoundInfo {
	info := RoundInfo{
		Round:          g.round,
		NumberOfRounds: g.NumberOfRounds,
	}
	if g.roundEndTime != nil {
		end := *g.roundEndTime
		info.RoundEndTime = &end
		info.RoundLength = secondsUntil(g.now(), end)
	}
	if g.countdownEndTime != nil {
		info.Countdown = secondsUntil(g.now(), *g.countdownEndTime)
	}
	return info
}

// GetRoundImage returns what players see for the current round. Asking before the first round has
// started is a protocol violation and returns ErrGameNotStarted.
func (g *Game) GetRoundImage() (ImageInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.round == 0 || g.images == nil {
		return ImageInfo{}, ErrGameNotStarted
	}
	return g.images[g.round-1].Info, nil
}

// Phase reports where the game is in its lifecycle.
func (g *Game) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.roundActive:
		return PhaseRoundActive
	case g.round == 0:
		return PhaseLobby
	case g.round >= g.NumberOfRounds:
		return PhaseGameOver
	default:
		return PhaseRoundEnded
	}
}

// Round returns the current round number, 0 before the first round.
func (g *Game) Round() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.round
}

// Started reports whether the round images have been selected.
func (g *Game) Started() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.images != nil
}

// HasUser reports whether connectionID is registered in this game.
func (g *Game) HasUser(connectionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.connectionIDToUser[connectionID]
	return ok
}

// UserCount returns the number of live connections.
func (g *Game) UserCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.connectionIDToUser)
}

// fireEvent broadcasts to the game's group. Assumes lock is held.
func (g *Game) fireEvent(event string, args ...interface{}) {
	if g.broadcaster == nil {
		g.log.Warnf("Broadcaster is nil, cannot broadcast event %s", event)
		return
	}
	g.broadcaster.BroadcastToGroup(g.Code, event, args...)
}

// secondsUntil returns whole seconds from now to end, rounded up and clamped at zero.
func secondsUntil(now, end time.Time) int {
	remaining := end.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Seconds()))
}

func validCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
