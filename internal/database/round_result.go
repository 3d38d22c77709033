// internal/database/round_result.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/bikelane/internal/guessgame"
)

// RoundResultRepository persists finished guess game rounds.
type RoundResultRepository struct {
	pool *pgxpool.Pool
}

// NewRoundResultRepository wraps pool.
func NewRoundResultRepository(pool *pgxpool.Pool) *RoundResultRepository {
	return &RoundResultRepository{pool: pool}
}

// InsertRounds writes every record and its player results in one transaction. Records already
// stored (same id) are skipped so a redelivered batch is harmless.
func (r *RoundResultRepository) InsertRounds(ctx context.Context, records []guessgame.RoundRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range records {
			batch.Queue(`
				INSERT INTO guessgame_rounds (id, game_code, item_id, round, number_of_rounds, latitude, longitude, finished_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO NOTHING
			`, rec.ID, rec.GameCode, rec.ItemID, rec.Round, rec.NumberOfRounds,
				rec.Location.Latitude, rec.Location.Longitude, rec.FinishedAt)

			for _, res := range rec.Results {
				batch.Queue(`
					INSERT INTO guessgame_round_results (
						round_id, connection_id, username, guess_latitude, guess_longitude,
						distance_meters, score, total_score
					) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
					ON CONFLICT (round_id, connection_id) DO NOTHING
				`, rec.ID, res.ConnectionID, res.Username, res.Guess.Latitude, res.Guess.Longitude,
					res.DistanceMeters, res.Score, res.TotalScore)
			}
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("tx insert %d rounds: %w", len(records), err)
	}
	return nil
}
