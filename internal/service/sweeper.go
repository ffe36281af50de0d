package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/promptwars/warsd/internal/domain"
	"github.com/promptwars/warsd/internal/engine"
)

const sweepLockKey = "sweep:markets"

// Sweeper tears down markets whose self-destruct window has expired. Each
// sweep archives the market's final state to blob storage, closes the
// aggregate, persists the closed projection, and drops the cached snapshot.
// A distributed lock keeps concurrent deployments from sweeping the same
// markets twice.
type Sweeper struct {
	service  *MarketService
	registry *engine.Registry
	markets  domain.MarketStore
	players  domain.PlayerStore
	events   domain.EventStore
	archiver domain.Archiver
	locks    domain.LockManager
	lockTTL  time.Duration
	interval time.Duration
	clock    engine.Clock
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper. archiver may be nil, in which case markets
// are closed without archival.
func NewSweeper(
	service *MarketService,
	registry *engine.Registry,
	markets domain.MarketStore,
	players domain.PlayerStore,
	events domain.EventStore,
	archiver domain.Archiver,
	locks domain.LockManager,
	lockTTL time.Duration,
	interval time.Duration,
	clock engine.Clock,
	logger *slog.Logger,
) *Sweeper {
	if clock == nil {
		clock = engine.SystemClock
	}
	return &Sweeper{
		service:  service,
		registry: registry,
		markets:  markets,
		players:  players,
		events:   events,
		archiver: archiver,
		locks:    locks,
		lockTTL:  lockTTL,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled. The first sweep
// fires immediately.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Sweep(ctx); err != nil && !errors.Is(err, domain.ErrLockHeld) {
			s.logger.ErrorContext(ctx, "sweeper: sweep failed",
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep performs a single pass over open markets, closing every one whose
// self-destruct window has expired. It returns domain.ErrLockHeld when
// another instance holds the sweep lock.
func (s *Sweeper) Sweep(ctx context.Context) error {
	release, err := s.locks.Acquire(ctx, sweepLockKey, s.lockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(ctx); err != nil {
			s.logger.WarnContext(ctx, "sweeper: lock release failed",
				slog.String("error", err.Error()),
			)
		}
	}()

	markets, err := s.markets.ListOpen(ctx, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("sweeper: list open markets: %w", err)
	}

	swept := 0
	for _, m := range markets {
		closed, err := s.sweepOne(ctx, m)
		if err != nil {
			s.logger.ErrorContext(ctx, "sweeper: market sweep failed",
				slog.String("market_id", m.Data.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if closed {
			swept++
		}
	}

	if swept > 0 {
		s.logger.InfoContext(ctx, "sweeper: pass complete",
			slog.Int("checked", len(markets)),
			slog.Int("closed", swept),
		)
	}
	return nil
}

func (s *Sweeper) sweepOne(ctx context.Context, m domain.Market) (bool, error) {
	agg, ok := s.registry.Get(m.Data.ID)
	if !ok {
		// Not hydrated yet, typically right after a restart. Hydration
		// happens on boot so the next pass will see it.
		return false, nil
	}

	flags := agg.Flags()
	if !flags.IsSelfDestructWindowExpired || flags.IsBeforeMarketEnds {
		return false, nil
	}

	if s.archiver != nil {
		players, err := s.players.ListByMarket(ctx, m.Data.ID)
		if err != nil {
			return false, fmt.Errorf("load players: %w", err)
		}
		events, err := s.events.ListByMarket(ctx, m.Data.ID, domain.ListOpts{})
		if err != nil {
			return false, fmt.Errorf("load events: %w", err)
		}
		path, err := s.archiver.ArchiveMarket(ctx, agg.ToMarket(), players, events)
		if err != nil {
			return false, fmt.Errorf("archive: %w", err)
		}
		s.logger.InfoContext(ctx, "sweeper: market archived",
			slog.String("market_id", m.Data.ID),
			slog.String("path", path),
		)
	}

	ev, err := agg.SelfDestruct()
	if err != nil {
		if errors.Is(err, domain.ErrMarketClosed) {
			return false, nil
		}
		return false, fmt.Errorf("self destruct: %w", err)
	}

	if err := s.markets.Update(ctx, agg.ToMarket()); err != nil {
		return false, fmt.Errorf("persist close: %w", err)
	}

	if err := s.service.snapshots.Invalidate(ctx, m.Data.ID); err != nil {
		s.logger.WarnContext(ctx, "sweeper: snapshot invalidate failed",
			slog.String("market_id", m.Data.ID),
			slog.String("error", err.Error()),
		)
	}
	s.service.record(ctx, ev)
	s.registry.Remove(m.Data.ID)

	s.logger.InfoContext(ctx, "sweeper: market closed",
		slog.String("market_id", m.Data.ID),
	)
	return true, nil
}
