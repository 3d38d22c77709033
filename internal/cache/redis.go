// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/bikelane/internal/guessgame"
	"github.com/jason-s-yu/bikelane/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list finished rounds are pushed to.
const DefaultQueueName = "guessgame_rounds"

// Connect returns a Redis client for addr and db after a successful ping.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// RoundQueue is a Redis list of finished rounds. The game server pushes, the historian pops.
type RoundQueue struct {
	rdb  *redis.Client
	name string
}

// NewRoundQueue uses the list name, or DefaultQueueName when name is empty.
func NewRoundQueue(rdb *redis.Client, name string) *RoundQueue {
	if name == "" {
		name = DefaultQueueName
	}
	return &RoundQueue{rdb: rdb, name: name}
}

// RecordRound serializes rec to JSON and appends it to the queue.
func (q *RoundQueue) RecordRound(ctx context.Context, rec guessgame.RoundRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal RoundRecord: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.name, err)
	}
	return nil
}

// Pop waits up to timeout for the next record. It returns nil, nil when the wait times out.
func (q *RoundQueue) Pop(ctx context.Context, timeout time.Duration) (*guessgame.RoundRecord, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("BLPop %s: %w", q.name, err)
	}
	// res[0] is the list name, res[1] the payload
	if len(res) < 2 {
		return nil, nil
	}
	var rec guessgame.RoundRecord
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		return nil, fmt.Errorf("invalid round record: %w", err)
	}
	return &rec, nil
}

// IntersectionCache stores reverse geocoding results keyed by coordinate, including
// lookups that found no intersection.
type IntersectionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewIntersectionCache keeps entries for ttl; zero means no expiry.
func NewIntersectionCache(rdb *redis.Client, ttl time.Duration) *IntersectionCache {
	return &IntersectionCache{rdb: rdb, ttl: ttl}
}

type cachedIntersection struct {
	Found        bool                 `json:"found"`
	Intersection *models.Intersection `json:"intersection,omitempty"`
}

// Get returns the cached lookup for loc. hit is false when nothing is cached; on a hit a nil
// intersection means the lookup found none.
func (c *IntersectionCache) Get(ctx context.Context, loc models.Location) (*models.Intersection, bool, error) {
	data, err := c.rdb.Get(ctx, intersectionKey(loc)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading intersection cache: %w", err)
	}
	var entry cachedIntersection
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("decoding intersection cache entry: %w", err)
	}
	if !entry.Found {
		return nil, true, nil
	}
	return entry.Intersection, true, nil
}

// Set caches the lookup result for loc. A nil intersection records that none was found.
func (c *IntersectionCache) Set(ctx context.Context, loc models.Location, in *models.Intersection) error {
	data, err := json.Marshal(cachedIntersection{Found: in != nil, Intersection: in})
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, intersectionKey(loc), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing intersection cache: %w", err)
	}
	return nil
}

func intersectionKey(loc models.Location) string {
	return fmt.Sprintf("intersection:%.5f,%.5f", loc.Latitude, loc.Longitude)
}
