package database

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/bikelane/internal/guessgame"
	"github.com/jason-s-yu/bikelane/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPool connects to TEST_DATABASE_URL and empties the tables, or skips the test.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE guessgame_round_results, guessgame_rounds, reported_items`)
	require.NoError(t, err)
	return pool
}

// insertItem stores a report and returns its id.
func insertItem(t *testing.T, pool *pgxpool.Pool, loc *models.Location, urls ...string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	var lat, lon *float64
	if loc != nil {
		lat, lon = &loc.Latitude, &loc.Longitude
	}
	if urls == nil {
		urls = []string{}
	}
	_, err := pool.Exec(context.Background(),
		`INSERT INTO reported_items (id, latitude, longitude, image_urls) VALUES ($1, $2, $3, $4)`,
		id, lat, lon, urls)
	require.NoError(t, err)
	return id
}

type roundSummary struct {
	Round   int
	Guesses int
	Best    int
}

func roundsForGame(t *testing.T, pool *pgxpool.Pool, gameCode string) []roundSummary {
	t.Helper()
	rows, err := pool.Query(context.Background(), `
		SELECT r.round, COUNT(rr.connection_id), COALESCE(MAX(rr.score), 0)
		FROM guessgame_rounds r
		LEFT JOIN guessgame_round_results rr ON rr.round_id = r.id
		WHERE r.game_code = $1
		GROUP BY r.id, r.round
		ORDER BY r.round
	`, gameCode)
	require.NoError(t, err)
	defer rows.Close()

	var out []roundSummary
	for rows.Next() {
		var s roundSummary
		require.NoError(t, rows.Scan(&s.Round, &s.Guesses, &s.Best))
		out = append(out, s)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestConnectBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz")
	assert.Error(t, err)
}

func TestReportedItemRepository(t *testing.T) {
	pool := testPool(t)
	repo := NewReportedItemRepository(pool)
	ctx := context.Background()

	a := insertItem(t, pool, &models.Location{Latitude: 47.6, Longitude: -122.3}, "https://img.example/a.jpg")
	b := insertItem(t, pool, &models.Location{Latitude: 47.7, Longitude: -122.3}, "https://img.example/b.jpg")

	got, err := repo.RandomItem(ctx, []uuid.UUID{b})
	require.NoError(t, err)
	assert.Equal(t, a, got.ID)
	require.NotNil(t, got.Location)
	assert.InDelta(t, 47.6, got.Location.Latitude, 1e-9)
	assert.Equal(t, []string{"https://img.example/a.jpg"}, got.ImageURLs)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = repo.RandomItem(ctx, []uuid.UUID{a, b})
	assert.True(t, errors.Is(err, guessgame.ErrNoItems))

	_, err = repo.RandomItem(ctx, nil)
	assert.NoError(t, err)
}

func TestReportedItemRepositorySkipsIneligible(t *testing.T) {
	pool := testPool(t)
	repo := NewReportedItemRepository(pool)
	ctx := context.Background()

	good := insertItem(t, pool, &models.Location{Latitude: 47.6, Longitude: -122.3}, "https://img.example/good.jpg")
	for i := 0; i < 300; i++ {
		insertItem(t, pool, &models.Location{Latitude: 47.6, Longitude: -122.3}, "https://img.example/1.jpg", "https://img.example/2.jpg")
	}
	insertItem(t, pool, nil, "https://img.example/unlocated.jpg")
	insertItem(t, pool, &models.Location{Latitude: 47.6, Longitude: -122.3})

	for i := 0; i < 10; i++ {
		got, err := repo.RandomItem(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, good, got.ID)
	}

	g, err := guessgame.NewRegistry(guessgame.RegistryConfig{Items: repo}).CreateGame(1)
	require.NoError(t, err)
	g.AddUser("admin", "Admin")
	require.NoError(t, g.StartGame(ctx, repo, "admin"))
	assert.True(t, g.Started())
	g.Close()

	_, err = repo.RandomItem(ctx, []uuid.UUID{good})
	assert.True(t, errors.Is(err, guessgame.ErrNoItems))
}

func TestRoundResultRepository(t *testing.T) {
	pool := testPool(t)
	repo := NewRoundResultRepository(pool)
	ctx := context.Background()

	rec := guessgame.RoundRecord{
		ID:             uuid.New(),
		GameCode:       "123456789",
		ItemID:         uuid.New(),
		Round:          1,
		NumberOfRounds: 2,
		Location:       models.Location{Latitude: 47.6, Longitude: -122.3},
		FinishedAt:     time.Now().UTC(),
		Results: []guessgame.PlayerRoundResult{
			{ConnectionID: "a", Username: "alice", Guess: models.Location{Latitude: 47.6, Longitude: -122.3}, Score: 100, TotalScore: 100},
			{ConnectionID: "b", Username: "bob", Guess: models.Location{Latitude: 47.7, Longitude: -122.3}, DistanceMeters: 11119, Score: 1, TotalScore: 1},
		},
	}
	second := rec
	second.ID = uuid.New()
	second.Round = 2
	second.Results = nil

	require.NoError(t, repo.InsertRounds(ctx, []guessgame.RoundRecord{rec, second}))
	// redelivery is ignored
	require.NoError(t, repo.InsertRounds(ctx, []guessgame.RoundRecord{rec}))
	require.NoError(t, repo.InsertRounds(ctx, nil))

	rounds := roundsForGame(t, pool, "123456789")
	require.Len(t, rounds, 2)
	assert.Equal(t, 1, rounds[0].Round)
	assert.Equal(t, 2, rounds[0].Guesses)
	assert.Equal(t, 100, rounds[0].Best)
	assert.Equal(t, 0, rounds[1].Guesses)
}
