package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx pool for url and verifies it with a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables used by the guess game if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS reported_items (
	id          uuid PRIMARY KEY,
	latitude    double precision,
	longitude   double precision,
	image_urls  text[] NOT NULL DEFAULT '{}',
	created_at  timestamptz NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS guessgame_rounds (
	id                uuid PRIMARY KEY,
	game_code         text NOT NULL,
	item_id           uuid NOT NULL,
	round             integer NOT NULL,
	number_of_rounds  integer NOT NULL,
	latitude          double precision NOT NULL,
	longitude         double precision NOT NULL,
	finished_at       timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS guessgame_round_results (
	round_id         uuid NOT NULL REFERENCES guessgame_rounds (id) ON DELETE CASCADE,
	connection_id    text NOT NULL,
	username         text NOT NULL,
	guess_latitude   double precision NOT NULL,
	guess_longitude  double precision NOT NULL,
	distance_meters  double precision NOT NULL,
	score            integer NOT NULL,
	total_score      integer NOT NULL,
	PRIMARY KEY (round_id, connection_id)
);
`
