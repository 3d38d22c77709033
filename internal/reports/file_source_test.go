package reports

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bikelane/internal/guessgame"
	"github.com/jason-s-yu/bikelane/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reports.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `[
		{"id":"6f1c2a52-6a43-4b5c-9a43-2f1c0d3c8f10","location":{"latitude":47.61,"longitude":-122.33},"imageUrls":["a.jpg"]},
		{"imageUrls":["b.jpg","c.jpg"]}
	]`)
	src, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, src.Len())
	for _, it := range src.items {
		assert.NotEqual(t, uuid.Nil, it.ID)
	}
	assert.Nil(t, src.items[1].Location)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, `{"not":"an array"}`))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, `[]`))
	assert.True(t, errors.Is(err, ErrEmpty))
}

func eligible() models.ReportedItem {
	return models.ReportedItem{
		ID:        uuid.New(),
		Location:  &models.Location{Latitude: 47.61, Longitude: -122.33},
		ImageURLs: []string{"https://img.example/" + uuid.NewString() + ".jpg"},
	}
}

func TestRandomItemHonorsExclude(t *testing.T) {
	items := []models.ReportedItem{eligible(), eligible(), eligible()}
	src, err := NewFileSource(items)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		got, err := src.RandomItem(ctx, []uuid.UUID{items[0].ID, items[2].ID})
		require.NoError(t, err)
		assert.Equal(t, items[1].ID, got.ID)
	}

	_, err = src.RandomItem(ctx, []uuid.UUID{items[0].ID, items[1].ID, items[2].ID})
	assert.True(t, errors.Is(err, guessgame.ErrNoItems))
}

func TestRandomItemSkipsIneligible(t *testing.T) {
	good := eligible()
	noLocation := eligible()
	noLocation.Location = nil
	twoImages := eligible()
	twoImages.ImageURLs = append(twoImages.ImageURLs, "https://img.example/second.jpg")
	noImages := eligible()
	noImages.ImageURLs = nil

	src, err := NewFileSource([]models.ReportedItem{noLocation, twoImages, good, noImages})
	require.NoError(t, err)
	assert.Equal(t, 4, src.Len())

	for i := 0; i < 50; i++ {
		got, err := src.RandomItem(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, good.ID, got.ID)
	}
	_, err = src.RandomItem(context.Background(), []uuid.UUID{good.ID})
	assert.True(t, errors.Is(err, guessgame.ErrNoItems))
}

func TestRandomItemCoversAllItems(t *testing.T) {
	items := []models.ReportedItem{eligible(), eligible(), eligible()}
	src, err := NewFileSource(items)
	require.NoError(t, err)

	seen := map[uuid.UUID]bool{}
	for i := 0; i < 300; i++ {
		got, err := src.RandomItem(context.Background(), nil)
		require.NoError(t, err)
		seen[got.ID] = true
	}
	assert.Len(t, seen, 3)
}

func TestRandomItemReturnsCopies(t *testing.T) {
	src, err := NewFileSource([]models.ReportedItem{{
		ID:        uuid.New(),
		Location:  &models.Location{Latitude: 1, Longitude: 2},
		ImageURLs: []string{"a"},
	}})
	require.NoError(t, err)

	got, err := src.RandomItem(context.Background(), nil)
	require.NoError(t, err)
	got.Location.Latitude = 99
	got.ImageURLs[0] = "mutated"

	again, err := src.RandomItem(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.Location.Latitude)
	assert.Equal(t, "a", again.ImageURLs[0])
}

func TestRandomItemCancelled(t *testing.T) {
	src, err := NewFileSource([]models.ReportedItem{eligible()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.RandomItem(ctx, nil)
	assert.True(t, errors.Is(err, context.Canceled))
}
