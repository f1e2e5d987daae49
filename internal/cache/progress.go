// Package cache keeps the last evaluated progress of each application in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gritsync/internal/search"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "progress:"

type ProgressCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewProgressCache(rdb redis.UniversalClient, ttl time.Duration) *ProgressCache {
	return &ProgressCache{rdb: rdb, ttl: ttl}
}

func Key(applicationID string) string {
	return keyPrefix + applicationID
}

// Get returns the cached document; a miss is (nil, false, nil).
func (c *ProgressCache) Get(ctx context.Context, applicationID string) (*search.Document, bool, error) {
	raw, err := c.rdb.Get(ctx, Key(applicationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", applicationID, err)
	}

	var doc search.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		// unreadable entries count as a miss and are overwritten on the next Set
		return nil, false, nil
	}
	return &doc, true, nil
}

func (c *ProgressCache) Set(ctx context.Context, doc search.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, Key(doc.ApplicationID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", doc.ApplicationID, err)
	}
	return nil
}

func (c *ProgressCache) Invalidate(ctx context.Context, applicationID string) error {
	return c.rdb.Del(ctx, Key(applicationID)).Err()
}
