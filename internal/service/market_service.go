// Package service orchestrates the market lifecycle: it drives the gateway,
// persists state transitions, and publishes lifecycle events on the signal
// bus.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/promptwars/warsd/internal/domain"
	"github.com/promptwars/warsd/internal/engine"
)

// MarketDefaults are the parameters applied to every newly created market.
type MarketDefaults struct {
	Price              domain.Amount
	FeeRatio           domain.Amount
	RevealWindow       time.Duration
	ResolutionWindow   time.Duration
	SelfDestructWindow time.Duration
	BuySellThreshold   domain.Amount
	CollateralTokenID  string
	CollateralDecimals int32
	DAOAccountID       string
	CreatorAccountID   string
}

// MarketService handles market creation, lifecycle writes, and reads. Writes
// go through the gateway; after a successful write the service re-reads the
// market state, persists it, refreshes the snapshot cache, and publishes the
// lifecycle event.
type MarketService struct {
	gateway   domain.MarketGateway
	registry  *engine.Registry // nil for the evm variant
	markets   domain.MarketStore
	players   domain.PlayerStore
	events    domain.EventStore
	snapshots domain.SnapshotCache
	bus       domain.SignalBus
	defaults  MarketDefaults
	clock     engine.Clock
	logger    *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
// registry may be nil when the gateway variant is not in-process.
func NewMarketService(
	gateway domain.MarketGateway,
	registry *engine.Registry,
	markets domain.MarketStore,
	players domain.PlayerStore,
	events domain.EventStore,
	snapshots domain.SnapshotCache,
	bus domain.SignalBus,
	defaults MarketDefaults,
	clock engine.Clock,
	logger *slog.Logger,
) *MarketService {
	if clock == nil {
		clock = engine.SystemClock
	}
	return &MarketService{
		gateway:   gateway,
		registry:  registry,
		markets:   markets,
		players:   players,
		events:    events,
		snapshots: snapshots,
		bus:       bus,
		defaults:  defaults,
		clock:     clock,
		logger:    logger,
	}
}

// Hydrate loads every open market from the store into the aggregate registry.
// Call it once on boot before serving traffic. It is a no-op for gateway
// variants without a registry.
func (s *MarketService) Hydrate(ctx context.Context) error {
	if s.registry == nil {
		return nil
	}

	markets, err := s.markets.ListOpen(ctx, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("market_service: hydrate list: %w", err)
	}

	for _, m := range markets {
		players, err := s.players.ListByMarket(ctx, m.Data.ID)
		if err != nil {
			return fmt.Errorf("market_service: hydrate players %s: %w", m.Data.ID, err)
		}
		s.registry.Put(m.Data.ID, engine.Restore(m, players, s.clock))
	}

	s.logger.InfoContext(ctx, "market_service: hydrated registry",
		slog.Int("count", len(markets)),
	)
	return nil
}

// CreateMarketRequest carries the per-market parameters of a creation call;
// everything else comes from MarketDefaults.
type CreateMarketRequest struct {
	ImageURI string           `json:"image_uri"`
	StartsAt domain.Timestamp `json:"starts_at"`
	EndsAt   domain.Timestamp `json:"ends_at"`
}

// CreateMarket builds a new market aggregate from the request and the
// configured defaults, registers it, and persists it. Only the in-process
// variant supports creation; on-chain markets come from the factory contract.
func (s *MarketService) CreateMarket(ctx context.Context, caller string, req CreateMarketRequest) (domain.Market, error) {
	if caller != s.defaults.DAOAccountID && caller != s.defaults.CreatorAccountID {
		return domain.Market{}, domain.ErrNotAuthorized
	}
	if s.registry == nil {
		return domain.Market{}, fmt.Errorf("market_service: create is not supported by this gateway variant")
	}

	now := s.clock().Unix()
	startsAt := req.StartsAt
	if startsAt == 0 {
		startsAt = now
	}
	if req.EndsAt <= startsAt {
		return domain.Market{}, fmt.Errorf("market_service: ends_at %d not after starts_at %d", req.EndsAt, startsAt)
	}

	id := uuid.New().String()
	agg, err := engine.New(
		domain.MarketData{
			ID:       id,
			ImageURI: req.ImageURI,
			StartsAt: startsAt,
			EndsAt:   req.EndsAt,
		},
		domain.Management{
			DAOAccountID:           s.defaults.DAOAccountID,
			MarketCreatorAccountID: s.defaults.CreatorAccountID,
			SelfDestructWindow:     int64(s.defaults.SelfDestructWindow.Seconds()),
			BuySellThreshold:       s.defaults.BuySellThreshold,
		},
		domain.Fees{
			Price:    s.defaults.Price,
			FeeRatio: s.defaults.FeeRatio,
		},
		domain.CollateralToken{
			ID:       s.defaults.CollateralTokenID,
			Decimals: s.defaults.CollateralDecimals,
		},
		domain.Resolution{
			RevealWindow: req.EndsAt + int64(s.defaults.RevealWindow.Seconds()),
			Window:       req.EndsAt + int64(s.defaults.ResolutionWindow.Seconds()),
		},
		s.clock,
	)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create: %w", err)
	}

	s.registry.Put(id, agg)

	m := agg.ToMarket()
	if err := s.markets.Create(ctx, m); err != nil {
		s.registry.Remove(id)
		return domain.Market{}, fmt.Errorf("market_service: persist create: %w", err)
	}

	s.record(ctx, domain.Event{
		MarketID: id,
		Type:     domain.EventMarketCreated,
		Payload: map[string]any{
			"image_uri": req.ImageURI,
			"starts_at": startsAt,
			"ends_at":   req.EndsAt,
		},
		CreatedAt: s.clock(),
	})

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", id),
		slog.Int64("starts_at", startsAt),
		slog.Int64("ends_at", req.EndsAt),
	)
	return m, nil
}

// Register enters a player into a market and persists the resulting state.
func (s *MarketService) Register(ctx context.Context, marketID, playerID, prompt string, amount domain.Amount) error {
	if err := s.gateway.Register(ctx, marketID, playerID, prompt, amount); err != nil {
		return err
	}

	p, err := s.gateway.GetPlayer(ctx, marketID, playerID)
	if err != nil {
		return fmt.Errorf("market_service: read back player %s: %w", playerID, err)
	}
	if err := s.players.Create(ctx, marketID, p); err != nil {
		return fmt.Errorf("market_service: persist player %s: %w", playerID, err)
	}

	snap, err := s.syncMarket(ctx, marketID)
	if err != nil {
		return err
	}

	fee := amount - p.Balance
	s.record(ctx, domain.Event{
		MarketID: marketID,
		Type:     domain.EventRegisterPlayer,
		Payload: domain.RegisterPayload(playerID, amount, p.Balance, fee,
			snap.Collateral.Balance, snap.Collateral.FeeBalance),
		CreatedAt: s.clock(),
	})
	return nil
}

// Reveal publishes a player's scored result and persists it.
func (s *MarketService) Reveal(ctx context.Context, marketID, playerID, result, outputImgURI string) error {
	if err := s.gateway.Reveal(ctx, marketID, playerID, result, outputImgURI); err != nil {
		return err
	}

	p, err := s.gateway.GetPlayer(ctx, marketID, playerID)
	if err != nil {
		return fmt.Errorf("market_service: read back player %s: %w", playerID, err)
	}
	if err := s.players.Update(ctx, marketID, p); err != nil {
		return fmt.Errorf("market_service: persist player %s: %w", playerID, err)
	}
	if _, err := s.syncMarket(ctx, marketID); err != nil {
		return err
	}

	s.record(ctx, domain.Event{
		MarketID:  marketID,
		Type:      domain.EventRevealPlayerResult,
		Payload:   domain.RevealPayload(playerID, result, outputImgURI),
		CreatedAt: s.clock(),
	})
	return nil
}

// Resolve designates the winning player and persists the resolution.
func (s *MarketService) Resolve(ctx context.Context, marketID, playerID string) error {
	if err := s.gateway.Resolve(ctx, marketID, playerID); err != nil {
		return err
	}

	p, err := s.gateway.GetPlayer(ctx, marketID, playerID)
	if err != nil {
		return fmt.Errorf("market_service: read back winner %s: %w", playerID, err)
	}
	if _, err := s.syncMarket(ctx, marketID); err != nil {
		return err
	}

	s.record(ctx, domain.Event{
		MarketID:  marketID,
		Type:      domain.EventResolutionSuccess,
		Payload:   domain.RevealPayload(playerID, p.Result, p.OutputImgURI),
		CreatedAt: s.clock(),
	})
	return nil
}

// ResolveAuto picks the winner by the closest-to-zero rule over revealed
// results and resolves the market with it. Only the in-process variant
// supports automatic selection.
func (s *MarketService) ResolveAuto(ctx context.Context, marketID string) (string, error) {
	if s.registry == nil {
		return "", fmt.Errorf("market_service: auto resolution is not supported by this gateway variant")
	}
	agg, ok := s.registry.Get(marketID)
	if !ok {
		return "", domain.ErrNotFound
	}

	winner, ok := engine.ClosestToZero(agg.Players())
	if !ok {
		return "", domain.ErrNoParticipants
	}
	return winner, s.Resolve(ctx, marketID, winner)
}

// Sell claims a player's refund or winnings, persists the state change, and
// returns the disbursed amount.
func (s *MarketService) Sell(ctx context.Context, marketID, playerID string) (domain.Amount, error) {
	amount, err := s.gateway.Sell(ctx, marketID, playerID)
	if err != nil {
		return 0, err
	}

	p, err := s.gateway.GetPlayer(ctx, marketID, playerID)
	if err != nil {
		return amount, fmt.Errorf("market_service: read back player %s: %w", playerID, err)
	}
	if err := s.players.Update(ctx, marketID, p); err != nil {
		return amount, fmt.Errorf("market_service: persist player %s: %w", playerID, err)
	}
	snap, err := s.syncMarket(ctx, marketID)
	if err != nil {
		return amount, err
	}

	eventType := domain.EventInternalSellUnresolved
	if snap.Resolution.ResolvedAt != 0 {
		eventType = domain.EventInternalSellResolved
	}
	s.record(ctx, domain.Event{
		MarketID:  marketID,
		Type:      eventType,
		Payload:   domain.SellPayload(playerID, amount),
		CreatedAt: s.clock(),
	})
	return amount, nil
}

// ClaimFees moves the accumulated fee balance to the operator once the market
// is terminal. Only the in-process variant exposes fee claiming.
func (s *MarketService) ClaimFees(ctx context.Context, caller, marketID string) (domain.Amount, error) {
	if s.registry == nil {
		return 0, fmt.Errorf("market_service: fee claiming is not supported by this gateway variant")
	}
	agg, ok := s.registry.Get(marketID)
	if !ok {
		return 0, domain.ErrNotFound
	}

	amount, ev, err := agg.ClaimFees(caller)
	if err != nil {
		return 0, err
	}
	if err := s.markets.Update(ctx, agg.ToMarket()); err != nil {
		return amount, fmt.Errorf("market_service: persist fees claim %s: %w", marketID, err)
	}
	s.refreshSnapshot(ctx, agg.Snapshot())
	s.record(ctx, ev)
	return amount, nil
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// GetMarket retrieves a market's persisted projection.
func (s *MarketService) GetMarket(ctx context.Context, marketID string) (domain.Market, error) {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// GetSnapshot retrieves a market's live read surface, preferring the snapshot
// cache the mirror keeps warm and falling back to the gateway.
func (s *MarketService) GetSnapshot(ctx context.Context, marketID string) (domain.Snapshot, error) {
	snap, err := s.snapshots.Get(ctx, marketID)
	if err == nil {
		return snap, nil
	}

	snap, err = s.gateway.Snapshot(ctx, marketID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	s.refreshSnapshot(ctx, snap)
	return snap, nil
}

// ListMarkets returns persisted markets.
func (s *MarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.markets.List(ctx, opts)
}

// ListOpenMarkets returns markets not yet torn down by the sweeper.
func (s *MarketService) ListOpenMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.markets.ListOpen(ctx, opts)
}

// CountMarkets returns the total number of persisted markets.
func (s *MarketService) CountMarkets(ctx context.Context) (int64, error) {
	return s.markets.Count(ctx)
}

// GetPlayer returns a player's persisted entry.
func (s *MarketService) GetPlayer(ctx context.Context, marketID, playerID string) (domain.Player, error) {
	return s.players.GetByID(ctx, marketID, playerID)
}

// ListPlayers returns a market's players in registration order.
func (s *MarketService) ListPlayers(ctx context.Context, marketID string) ([]domain.Player, error) {
	return s.players.ListByMarket(ctx, marketID)
}

// ListEvents returns a market's lifecycle events in append order.
func (s *MarketService) ListEvents(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Event, error) {
	return s.events.ListByMarket(ctx, marketID, opts)
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// syncMarket re-reads a market through the gateway, persists the projection,
// and refreshes the snapshot cache.
func (s *MarketService) syncMarket(ctx context.Context, marketID string) (domain.Snapshot, error) {
	snap, err := s.gateway.Snapshot(ctx, marketID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("market_service: snapshot %s: %w", marketID, err)
	}

	existing, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return snap, fmt.Errorf("market_service: load market %s: %w", marketID, err)
	}

	existing.Fees = snap.Fees
	existing.Collateral = snap.Collateral
	existing.Resolution = snap.Resolution
	if err := s.markets.Update(ctx, existing); err != nil {
		return snap, fmt.Errorf("market_service: persist market %s: %w", marketID, err)
	}

	s.refreshSnapshot(ctx, snap)
	return snap, nil
}

// refreshSnapshot updates the snapshot cache; cache failures are logged but
// never fail the caller.
func (s *MarketService) refreshSnapshot(ctx context.Context, snap domain.Snapshot) {
	if err := s.snapshots.Set(ctx, snap); err != nil {
		s.logger.WarnContext(ctx, "market_service: snapshot cache set failed",
			slog.String("market_id", snap.Market.ID),
			slog.String("error", err.Error()),
		)
	}
}

// record appends a lifecycle event to the event log and publishes it on the
// signal bus. Failures are logged but never fail the write that produced the
// event.
func (s *MarketService) record(ctx context.Context, ev domain.Event) {
	if err := s.events.Append(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "market_service: event append failed",
			slog.String("market_id", ev.MarketID),
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.WarnContext(ctx, "market_service: event marshal failed",
			slog.String("market_id", ev.MarketID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.bus.Publish(ctx, domain.EventsChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "market_service: event publish failed",
			slog.String("market_id", ev.MarketID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, domain.EventsStream, payload); err != nil {
		s.logger.WarnContext(ctx, "market_service: event stream append failed",
			slog.String("market_id", ev.MarketID),
			slog.String("error", err.Error()),
		)
	}
}
