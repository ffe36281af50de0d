package domain

import (
	"context"
	"time"
)

// SnapshotCache caches the polled read surface of a market so mirrors and
// API reads do not hit the authoritative engine on every request.
type SnapshotCache interface {
	Set(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context, marketID string) (Snapshot, error)
	Invalidate(ctx context.Context, marketID string) error
}

// StreamMessage is a single durable message read from the signal bus stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus publishes lifecycle events: Pub/Sub for ephemeral fan-out to
// connected clients, streams for durable ordered delivery to indexers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// LockManager provides distributed locks so only one sweeper pass runs at a
// time across processes.
type LockManager interface {
	// Acquire returns ErrLockHeld when another holder owns the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// RateLimiter throttles write endpoints per caller.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under a sliding
	// window of limit requests per window, counting the request when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until a request for key is allowed or ctx is cancelled.
	Wait(ctx context.Context, key string) error
}
