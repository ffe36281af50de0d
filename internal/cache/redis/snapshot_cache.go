package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/promptwars/warsd/internal/domain"
)

// snapshotTTL bounds how stale a cached snapshot can get if the mirror stops
// refreshing it.
const snapshotTTL = 30 * time.Second

// SnapshotCache implements domain.SnapshotCache using plain Redis strings with
// JSON-serialized snapshots.
//
// Key schema:
//
//	warsd:snapshot:{marketID} - JSON-encoded domain.Snapshot
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

func snapshotKey(marketID string) string { return keyPrefix + "snapshot:" + marketID }

// Set stores a market snapshot, refreshing its TTL.
func (sc *SnapshotCache) Set(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.Market.ID, err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey(snap.Market.ID), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.Market.ID, err)
	}
	return nil
}

// Get retrieves a market snapshot. It returns domain.ErrNotFound when no
// snapshot is cached for the market.
func (sc *SnapshotCache) Get(ctx context.Context, marketID string) (domain.Snapshot, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey(marketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Snapshot{}, domain.ErrNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("redis: get snapshot %s: %w", marketID, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", marketID, err)
	}
	return snap, nil
}

// Invalidate removes a market's cached snapshot, typically on teardown.
func (sc *SnapshotCache) Invalidate(ctx context.Context, marketID string) error {
	if err := sc.rdb.Del(ctx, snapshotKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate snapshot %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
