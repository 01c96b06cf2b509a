// Package cache is the local durable key-value layer. Every collection is kept
// under one key as a JSON array; it is the fallback source when the remote
// store is unreachable and the write-through mirror after successful pulls.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache: key not found")

// Keys of the persisted collections.
const (
	KeyCurrentVisitors  = "current_visitors"
	KeyVisitLogs        = "visit_logs"
	KeyLocations        = "locations"
	KeyFrequentVisitors = "frequent_visitors"
	KeySyncQueue        = "sync_queue"
	KeyGeoFix           = "geofix"
)

// Cache is a durable key-value store.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// LoadJSON decodes the value under key into v. It reports false on a miss.
func LoadJSON(ctx context.Context, c Cache, key string, v any) (bool, error) {
	data, err := c.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// SaveJSON encodes v and stores it under key.
func SaveJSON(ctx context.Context, c Cache, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := c.Set(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
