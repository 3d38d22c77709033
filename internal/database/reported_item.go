// internal/database/reported_item.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/bikelane/internal/guessgame"
	"github.com/jason-s-yu/bikelane/internal/models"
)

// ReportedItemRepository reads civic reports from the reported_items table. It is the guess game's
// item source in deployments with a database.
type ReportedItemRepository struct {
	pool *pgxpool.Pool
}

// NewReportedItemRepository wraps pool.
func NewReportedItemRepository(pool *pgxpool.Pool) *ReportedItemRepository {
	return &ReportedItemRepository{pool: pool}
}

// RandomItem returns one report picked uniformly at random among those not in exclude. Only reports
// that can be a round subject (located, exactly one photo) are considered.
func (r *ReportedItemRepository) RandomItem(ctx context.Context, exclude []uuid.UUID) (models.ReportedItem, error) {
	ids := make([]string, 0, len(exclude))
	for _, id := range exclude {
		ids = append(ids, id.String())
	}
	q := `
		SELECT id, latitude, longitude, image_urls, created_at
		FROM reported_items
		WHERE NOT (id = ANY($1::uuid[]))
		  AND latitude IS NOT NULL
		  AND longitude IS NOT NULL
		  AND cardinality(image_urls) = 1
		ORDER BY RANDOM()
		LIMIT 1
	`
	item, err := scanItem(r.pool.QueryRow(ctx, q, ids))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ReportedItem{}, fmt.Errorf("reported_items: %w", guessgame.ErrNoItems)
	}
	if err != nil {
		return models.ReportedItem{}, fmt.Errorf("selecting random reported item: %w", err)
	}
	return item, nil
}

func scanItem(row pgx.Row) (models.ReportedItem, error) {
	var (
		item     models.ReportedItem
		lat, lon *float64
	)
	if err := row.Scan(&item.ID, &lat, &lon, &item.ImageURLs, &item.CreatedAt); err != nil {
		return models.ReportedItem{}, err
	}
	if lat != nil && lon != nil {
		item.Location = &models.Location{Latitude: *lat, Longitude: *lon}
	}
	return item, nil
}
