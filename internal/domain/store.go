package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market aggregates at rest.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	Update(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	// ListOpen returns markets that have not been torn down by the sweeper,
	// regardless of resolution state.
	ListOpen(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// PlayerStore persists player entries keyed by (marketID, playerID).
type PlayerStore interface {
	Create(ctx context.Context, marketID string, p Player) error
	Update(ctx context.Context, marketID string, p Player) error
	GetByID(ctx context.Context, marketID, playerID string) (Player, error)
	ListByMarket(ctx context.Context, marketID string) ([]Player, error)
	CountByMarket(ctx context.Context, marketID string) (int64, error)
}

// EventStore persists the append-only lifecycle event log.
type EventStore interface {
	Append(ctx context.Context, e Event) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Event, error)
}
