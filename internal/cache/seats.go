// Package cache keeps a short-lived copy of each show's occupied seats in
// Redis so seat maps can be served without hitting MySQL on every poll.
package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-ticket-checkout/internal/config"
)

// SeatCache is a read-through cache of occupied seat ids keyed by show.
// A nil *SeatCache, or one without a client, is a valid no-op cache.
type SeatCache struct {
	rdb *redis.Client
	cfg config.SeatCacheConfig
}

// NewSeatCache returns a cache backed by rdb.  A nil rdb or a disabled
// config yields a cache that never hits.
func NewSeatCache(rdb *redis.Client, cfg config.SeatCacheConfig) *SeatCache {
	return &SeatCache{rdb: rdb, cfg: cfg}
}

func (c *SeatCache) enabled() bool {
	return c != nil && c.rdb != nil && c.cfg.Enabled
}

func (c *SeatCache) key(showID string) string {
	return c.cfg.Prefix + ":show:" + showID + ":occupied"
}

// Get returns the cached seat ids.  ok is false on a miss or any Redis
// error; callers fall back to the database.
func (c *SeatCache) Get(ctx context.Context, showID string) ([]string, bool) {
	if !c.enabled() {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, c.key(showID)).Bytes()
	if err != nil {
		return nil, false
	}
	var seats []string
	if err := json.Unmarshal(raw, &seats); err != nil {
		return nil, false
	}
	return seats, true
}

// Set stores seat ids for the configured TTL.
func (c *SeatCache) Set(ctx context.Context, showID string, seats []string) error {
	if !c.enabled() {
		return nil
	}
	if seats == nil {
		seats = []string{}
	}
	raw, err := json.Marshal(seats)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(showID), raw, c.cfg.TTL).Err()
}

// Invalidate drops the entry of a show.  A missing key is not an error.
func (c *SeatCache) Invalidate(ctx context.Context, showID string) error {
	if !c.enabled() {
		return nil
	}
	err := c.rdb.Del(ctx, c.key(showID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
