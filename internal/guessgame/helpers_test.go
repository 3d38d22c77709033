package guessgame

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bikelane/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// sentEvent is one BroadcastToGroup call captured by mockBroadcaster.
type sentEvent struct {
	Group string
	Event string
	Args  []interface{}
}

// mockBroadcaster collects events instead of sending them to connections.
type mockBroadcaster struct {
	mu     sync.Mutex
	events []sentEvent
}

func (mb *mockBroadcaster) BroadcastToGroup(group string, event string, args ...interface{}) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.events = append(mb.events, sentEvent{Group: group, Event: event, Args: args})
}

func (mb *mockBroadcaster) clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.events = nil
}

func (mb *mockBroadcaster) all() []sentEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return append([]sentEvent(nil), mb.events...)
}

func (mb *mockBroadcaster) named(event string) []sentEvent {
	var out []sentEvent
	for _, ev := range mb.all() {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}

func (mb *mockBroadcaster) count(event string) int {
	return len(mb.named(event))
}

// lastRoundEnd returns the payload of the most recent EndRound event.
func (mb *mockBroadcaster) lastRoundEnd(t *testing.T) RoundEndInfo {
	t.Helper()
	ends := mb.named(EventEndRound)
	require.NotEmpty(t, ends, "expected an EndRound event")
	info, ok := ends[len(ends)-1].Args[0].(RoundEndInfo)
	require.True(t, ok, "EndRound payload should be RoundEndInfo")
	return info
}

// sliceSource is an ItemSource over a fixed slice with a seeded random pick.
type sliceSource struct {
	mu    sync.Mutex
	items []models.ReportedItem
	rng   *rand.Rand
	draws int
	err   error
}

func newSliceSource(items ...models.ReportedItem) *sliceSource {
	return &sliceSource{items: items, rng: rand.New(rand.NewSource(42))}
}

func (s *sliceSource) RandomItem(ctx context.Context, exclude []uuid.UUID) (models.ReportedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draws++
	if s.err != nil {
		return models.ReportedItem{}, s.err
	}
	skip := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var candidates []models.ReportedItem
	for _, it := range s.items {
		if !skip[it.ID] {
			candidates = append(candidates, it)
		}
	}
	if len(candidates) == 0 {
		return models.ReportedItem{}, fmt.Errorf("slice source: %w", ErrNoItems)
	}
	return candidates[s.rng.Intn(len(candidates))], nil
}

// reportAt builds an eligible reported item at lat/lon.
func reportAt(lat, lon float64) models.ReportedItem {
	id := uuid.New()
	return models.ReportedItem{
		ID:        id,
		Location:  &models.Location{Latitude: lat, Longitude: lon},
		ImageURLs: []string{fmt.Sprintf("https://img.example/%s.jpg", id)},
	}
}

// spreadReports builds n eligible items one kilometer apart heading north from Seattle.
func spreadReports(n int) []models.ReportedItem {
	items := make([]models.ReportedItem, n)
	for i := range items {
		items[i] = reportAt(47.6062+float64(i)*0.009, -122.3321)
	}
	return items
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

// setupTestGame builds a game with a mock broadcaster and enough well separated items for every round.
func setupTestGame(t *testing.T, rounds int, roundLength time.Duration) (*Game, *mockBroadcaster, *sliceSource) {
	t.Helper()
	mb := &mockBroadcaster{}
	g, err := NewGame("123456789", rounds, roundLength, Deps{Broadcaster: mb, Logger: quietLogger()})
	require.NoError(t, err)
	g.countdownTick = 10 * time.Millisecond
	t.Cleanup(g.Close)
	return g, mb, newSliceSource(spreadReports(rounds)...)
}

// startedGame is setupTestGame plus admin "A" and player "B" joined and images selected.
func startedGame(t *testing.T, rounds int, roundLength time.Duration) (*Game, *mockBroadcaster) {
	t.Helper()
	g, mb, src := setupTestGame(t, rounds, roundLength)
	g.AddUser("A", "Alice")
	g.AddUser("B", "Bob")
	require.NoError(t, g.StartGame(context.Background(), src, "A"))
	require.True(t, g.Started())
	mb.clear()
	return g, mb
}

// AdminConnectionID returns the current admin, or "" once the admin has left.
func (g *Game) AdminConnectionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.adminConnectionID
}

// Score returns the cumulative score of a connection.
func (g *Game) Score(connectionID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scores[connectionID]
}

// currentGuess returns the recorded guess of a connection for the active round.
func (g *Game) currentGuess(connectionID string) (models.Location, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	loc, ok := g.guesses[connectionID]
	return loc, ok
}
