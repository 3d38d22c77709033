// Package reports serves reported items from a JSON file for deployments without Postgres.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bikelane/internal/guessgame"
	"github.com/jason-s-yu/bikelane/internal/models"
)

// ErrEmpty is returned when a reports file holds no items.
var ErrEmpty = errors.New("reports file contains no items")

// FileSource is an in-memory set of reported items that satisfies guessgame.ItemSource.
type FileSource struct {
	items []models.ReportedItem

	mu  sync.Mutex
	rng *rand.Rand
}

// LoadFile reads a JSON array of reported items from path.
func LoadFile(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading reports file: %w", err)
	}
	var items []models.ReportedItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing reports file %s: %w", path, err)
	}
	return NewFileSource(items)
}

// NewFileSource wraps items. Items without an id are given one.
func NewFileSource(items []models.ReportedItem) (*FileSource, error) {
	if len(items) == 0 {
		return nil, ErrEmpty
	}
	owned := make([]models.ReportedItem, len(items))
	copy(owned, items)
	for i := range owned {
		if owned[i].ID == uuid.Nil {
			owned[i].ID = uuid.New()
		}
	}
	return &FileSource{
		items: owned,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Len is the number of items loaded.
func (s *FileSource) Len() int {
	return len(s.items)
}

// RandomItem picks uniformly among the located single-photo items whose ids are not in exclude.
func (s *FileSource) RandomItem(ctx context.Context, exclude []uuid.UUID) (models.ReportedItem, error) {
	if err := ctx.Err(); err != nil {
		return models.ReportedItem{}, err
	}
	skip := make(map[uuid.UUID]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	candidates := make([]int, 0, len(s.items))
	for i, it := range s.items {
		if it.Location == nil || !it.HasSingleImage() {
			continue
		}
		if _, ok := skip[it.ID]; !ok {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return models.ReportedItem{}, fmt.Errorf("no undrawn eligible reports among %d: %w", len(s.items), guessgame.ErrNoItems)
	}

	s.mu.Lock()
	pick := candidates[s.rng.Intn(len(candidates))]
	s.mu.Unlock()

	item := s.items[pick]
	item.ImageURLs = append([]string(nil), item.ImageURLs...)
	if item.Location != nil {
		loc := *item.Location
		item.Location = &loc
	}
	return item, nil
}
