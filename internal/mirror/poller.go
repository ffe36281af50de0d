// Package mirror maintains a client-side projection of a market's state by
// polling the gateway's snapshot read on a fixed interval. Consumers read the
// projected phase instead of re-deriving window flags themselves, so every
// part of a client agrees on what the market looks like at a given tick.
package mirror

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/promptwars/warsd/internal/domain"
)

// DefaultInterval is the poll cadence used when none is configured.
const DefaultInterval = 5 * time.Second

// State is the mirror's view of a market after a poll tick. Before the first
// successful fetch Phase is PhaseLoading and Snapshot is zero.
type State struct {
	Phase     domain.Phase
	Snapshot  domain.Snapshot
	FetchedAt time.Time
}

// ChangeFunc is invoked on every phase transition the mirror observes.
type ChangeFunc func(marketID string, from, to domain.Phase, snap domain.Snapshot)

// Poller mirrors one market. A fetch failure keeps the last good state; the
// phase only ever changes on a successful snapshot.
type Poller struct {
	marketID string
	gateway  domain.MarketGateway
	interval time.Duration
	onChange ChangeFunc
	cache    domain.SnapshotCache
	logger   *slog.Logger

	mu    sync.RWMutex
	state State
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides the poll cadence.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithChangeFunc registers a callback fired on phase transitions.
func WithChangeFunc(fn ChangeFunc) Option {
	return func(p *Poller) { p.onChange = fn }
}

// WithCache makes the poller write every successful snapshot into the cache,
// keeping API reads warm without extra gateway round trips.
func WithCache(cache domain.SnapshotCache) Option {
	return func(p *Poller) { p.cache = cache }
}

// NewPoller creates a mirror for marketID.
func NewPoller(marketID string, gateway domain.MarketGateway, logger *slog.Logger, opts ...Option) *Poller {
	p := &Poller{
		marketID: marketID,
		gateway:  gateway,
		interval: DefaultInterval,
		logger:   logger.With(slog.String("component", "mirror"), slog.String("market_id", marketID)),
		state:    State{Phase: domain.PhaseLoading},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current projection.
func (p *Poller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Phase returns the current projected phase.
func (p *Poller) Phase() domain.Phase {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Phase
}

// Run polls until ctx is cancelled or the mirrored market reaches a terminal
// phase. The first fetch fires immediately; ticks never overlap because
// fetches run inline on the loop goroutine.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("mirror started", slog.Duration("interval", p.interval))
	defer p.logger.Info("mirror stopped")

	for {
		if done := p.Poll(ctx); done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll performs a single fetch and projection. It reports true once the
// market has reached a terminal phase and polling can stop.
func (p *Poller) Poll(ctx context.Context) bool {
	snap, err := p.gateway.Snapshot(ctx, p.marketID)
	if err != nil {
		p.logger.Warn("snapshot fetch failed, keeping last state",
			slog.String("phase", string(p.Phase())),
			slog.String("error", err.Error()),
		)
		return false
	}

	// Contradictory flags still project a phase; PhaseFromFlags resolves
	// them by its fixed flag precedence.
	if domain.Inconsistent(snap.Flags) {
		p.logger.Warn("inconsistent snapshot flags, applying precedence default",
			slog.Int64("block_timestamp", snap.BlockTimestamp),
		)
	}

	phase := domain.PhaseFromFlags(snap.Flags)

	if p.cache != nil {
		if err := p.cache.Set(ctx, snap); err != nil {
			p.logger.Warn("snapshot cache set failed",
				slog.String("error", err.Error()),
			)
		}
	}

	p.mu.Lock()
	prev := p.state.Phase
	p.state = State{Phase: phase, Snapshot: snap, FetchedAt: time.Now()}
	p.mu.Unlock()

	if phase != prev {
		p.logger.Info("phase transition",
			slog.String("from", string(prev)),
			slog.String("to", string(phase)),
			slog.Int64("block_timestamp", snap.BlockTimestamp),
		)
		if p.onChange != nil {
			p.onChange(p.marketID, prev, phase, snap)
		}
	}

	return phase.Terminal()
}
