package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptwars/warsd/internal/domain"
	"github.com/promptwars/warsd/internal/engine"
	"github.com/promptwars/warsd/internal/gateway/native"
)

const (
	testDAO     = "dao.promptwars.eth"
	testCreator = "creator.promptwars.eth"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memMarkets struct {
	mu    sync.Mutex
	items map[string]domain.Market
}

func newMemMarkets() *memMarkets {
	return &memMarkets{items: make(map[string]domain.Market)}
}

func (s *memMarkets) Create(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[m.Data.ID] = m
	return nil
}

func (s *memMarkets) Update(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[m.Data.ID]; !ok {
		return domain.ErrNotFound
	}
	s.items[m.Data.ID] = m
	return nil
}

func (s *memMarkets) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.items[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarkets) List(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Market, 0, len(s.items))
	for _, m := range s.items {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Data.ID < out[j].Data.ID })
	return out, nil
}

func (s *memMarkets) ListOpen(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.items {
		if !m.Closed {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Data.ID < out[j].Data.ID })
	return out, nil
}

func (s *memMarkets) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.items)), nil
}

type memPlayers struct {
	mu    sync.Mutex
	items map[string]map[string]domain.Player
	order map[string][]string
}

func newMemPlayers() *memPlayers {
	return &memPlayers{
		items: make(map[string]map[string]domain.Player),
		order: make(map[string][]string),
	}
}

func (s *memPlayers) Create(_ context.Context, marketID string, p domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items[marketID] == nil {
		s.items[marketID] = make(map[string]domain.Player)
	}
	if _, ok := s.items[marketID][p.ID]; ok {
		return domain.ErrPlayerExists
	}
	s.items[marketID][p.ID] = p
	s.order[marketID] = append(s.order[marketID], p.ID)
	return nil
}

func (s *memPlayers) Update(_ context.Context, marketID string, p domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[marketID][p.ID]; !ok {
		return domain.ErrNotFound
	}
	s.items[marketID][p.ID] = p
	return nil
}

func (s *memPlayers) GetByID(_ context.Context, marketID, playerID string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[marketID][playerID]
	if !ok {
		return domain.Player{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *memPlayers) ListByMarket(_ context.Context, marketID string) ([]domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Player, 0, len(s.order[marketID]))
	for _, id := range s.order[marketID] {
		out = append(out, s.items[marketID][id])
	}
	return out, nil
}

func (s *memPlayers) CountByMarket(_ context.Context, marketID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.items[marketID])), nil
}

type memEvents struct {
	mu    sync.Mutex
	items []domain.Event
}

func (s *memEvents) Append(_ context.Context, e domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = int64(len(s.items) + 1)
	s.items = append(s.items, e)
	return nil
}

func (s *memEvents) ListByMarket(_ context.Context, marketID string, _ domain.ListOpts) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, e := range s.items {
		if e.MarketID == marketID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memEvents) types(marketID string) []domain.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EventType
	for _, e := range s.items {
		if e.MarketID == marketID {
			out = append(out, e.Type)
		}
	}
	return out
}

type memSnapshots struct {
	mu          sync.Mutex
	items       map[string]domain.Snapshot
	invalidated []string
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{items: make(map[string]domain.Snapshot)}
}

func (s *memSnapshots) Set(_ context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[snap.Market.ID] = snap
	return nil
}

func (s *memSnapshots) Get(_ context.Context, marketID string) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.items[marketID]
	if !ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (s *memSnapshots) Invalidate(_ context.Context, marketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, marketID)
	s.invalidated = append(s.invalidated, marketID)
	return nil
}

type memBus struct {
	mu        sync.Mutex
	published [][]byte
	streamed  [][]byte
}

func (b *memBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, payload)
	return nil
}

func (b *memBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *memBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed = append(b.streamed, payload)
	return nil
}

func (b *memBus) StreamRead(_ context.Context, _ string, _ string, _ int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocks() *memLocks {
	return &memLocks{held: make(map[string]bool)}
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		return nil
	}, nil
}

type memArchiver struct {
	mu    sync.Mutex
	paths []string
}

func (a *memArchiver) ArchiveMarket(_ context.Context, m domain.Market, _ []domain.Player, _ []domain.Event) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	path := "archive/markets/" + m.Data.ID + ".json"
	a.paths = append(a.paths, path)
	return path, nil
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	svc       *MarketService
	registry  *engine.Registry
	markets   *memMarkets
	players   *memPlayers
	events    *memEvents
	snapshots *memSnapshots
	bus       *memBus
	clock     *fakeClock
}

func testDefaults() MarketDefaults {
	return MarketDefaults{
		Price:              10_000,
		FeeRatio:           20_000_000,
		RevealWindow:       10 * time.Minute,
		ResolutionWindow:   20 * time.Minute,
		SelfDestructWindow: time.Hour,
		CollateralTokenID:  "usdt.tether-token.near",
		CollateralDecimals: 6,
		DAOAccountID:       testDAO,
		CreatorAccountID:   testCreator,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	registry := engine.NewRegistry()
	markets := newMemMarkets()
	players := newMemPlayers()
	events := &memEvents{}
	snapshots := newMemSnapshots()
	bus := &memBus{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gateway := native.New(registry, testDAO)
	svc := NewMarketService(gateway, registry, markets, players, events,
		snapshots, bus, testDefaults(), clock.Now, logger)

	return &harness{
		svc:       svc,
		registry:  registry,
		markets:   markets,
		players:   players,
		events:    events,
		snapshots: snapshots,
		bus:       bus,
		clock:     clock,
	}
}

func (h *harness) createMarket(t *testing.T) domain.Market {
	t.Helper()
	m, err := h.svc.CreateMarket(context.Background(), testDAO, CreateMarketRequest{
		ImageURI: "ipfs://QmPrompt",
		EndsAt:   h.clock.Now().Unix() + 3600,
	})
	require.NoError(t, err)
	return m
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCreateMarket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("creates and persists", func(t *testing.T) {
		m := h.createMarket(t)

		stored, err := h.markets.GetByID(ctx, m.Data.ID)
		require.NoError(t, err)
		assert.Equal(t, m.Data.EndsAt, stored.Data.EndsAt)
		assert.Equal(t, domain.Amount(10_000), stored.Fees.Price)
		assert.Equal(t, stored.Data.EndsAt+600, stored.Resolution.RevealWindow)
		assert.Equal(t, stored.Data.EndsAt+1200, stored.Resolution.Window)

		_, ok := h.registry.Get(m.Data.ID)
		assert.True(t, ok)
		assert.Equal(t, []domain.EventType{domain.EventMarketCreated}, h.events.types(m.Data.ID))
	})

	t.Run("rejects unknown caller", func(t *testing.T) {
		_, err := h.svc.CreateMarket(ctx, "mallory.near", CreateMarketRequest{
			EndsAt: h.clock.Now().Unix() + 3600,
		})
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	})

	t.Run("rejects inverted window", func(t *testing.T) {
		_, err := h.svc.CreateMarket(ctx, testDAO, CreateMarketRequest{
			StartsAt: h.clock.Now().Unix() + 100,
			EndsAt:   h.clock.Now().Unix() + 50,
		})
		assert.Error(t, err)
	})
}

func TestLifecycleResolved(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t)

	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.svc.Register(ctx, m.Data.ID, "alice.near", "a cat on the moon", 10_000))
	require.NoError(t, h.svc.Register(ctx, m.Data.ID, "bob.near", "a dog in space", 10_000))

	alice, err := h.players.GetByID(ctx, m.Data.ID, "alice.near")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(9_800), alice.Balance)

	stored, err := h.markets.GetByID(ctx, m.Data.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(20_000), stored.Collateral.Balance)
	assert.Equal(t, domain.Amount(400), stored.Collateral.FeeBalance)

	// Past the entry window, inside the reveal window.
	h.clock.Advance(3700 * time.Second)
	require.NoError(t, h.svc.Reveal(ctx, m.Data.ID, "alice.near", "-3", "ipfs://alice-out"))
	require.NoError(t, h.svc.Reveal(ctx, m.Data.ID, "bob.near", "7", "ipfs://bob-out"))

	winner, err := h.svc.ResolveAuto(ctx, m.Data.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice.near", winner)

	stored, err = h.markets.GetByID(ctx, m.Data.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice.near", stored.Resolution.PlayerID)
	assert.NotZero(t, stored.Resolution.ResolvedAt)

	amount, err := h.svc.Sell(ctx, m.Data.ID, "alice.near")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(19_600), amount)

	_, err = h.svc.Sell(ctx, m.Data.ID, "bob.near")
	assert.ErrorIs(t, err, domain.ErrNotWinner)

	fees, err := h.svc.ClaimFees(ctx, testDAO, m.Data.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(400), fees)

	_, err = h.svc.ClaimFees(ctx, testDAO, m.Data.ID)
	assert.ErrorIs(t, err, domain.ErrFeesAlreadyClaimed)

	assert.Equal(t, []domain.EventType{
		domain.EventMarketCreated,
		domain.EventRegisterPlayer,
		domain.EventRegisterPlayer,
		domain.EventRevealPlayerResult,
		domain.EventRevealPlayerResult,
		domain.EventResolutionSuccess,
		domain.EventInternalSellResolved,
		domain.EventFeesClaimed,
	}, h.events.types(m.Data.ID))
	assert.Len(t, h.bus.published, len(h.bus.streamed))
}

func TestLifecycleUnresolvedRefunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t)

	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.svc.Register(ctx, m.Data.ID, "alice.near", "a cat", 10_000))
	require.NoError(t, h.svc.Register(ctx, m.Data.ID, "bob.near", "a dog", 10_000))

	// Nobody resolves before the resolution window expires.
	h.clock.Advance(3600*time.Second + 1201*time.Second)

	_, err := h.svc.ResolveAuto(ctx, m.Data.ID)
	assert.ErrorIs(t, err, domain.ErrResolutionExpired)

	for _, id := range []string{"alice.near", "bob.near"} {
		amount, err := h.svc.Sell(ctx, m.Data.ID, id)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount(9_800), amount)

		_, err = h.svc.Sell(ctx, m.Data.ID, id)
		assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	}

	stored, err := h.markets.GetByID(ctx, m.Data.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(400), stored.Collateral.Balance)

	fees, err := h.svc.ClaimFees(ctx, testDAO, m.Data.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(400), fees)
}

func TestRegisterErrorsPassThrough(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t)

	h.clock.Advance(3601 * time.Second)
	err := h.svc.Register(ctx, m.Data.ID, "late.near", "too late", 10_000)
	assert.ErrorIs(t, err, domain.ErrEventEnded)
	assert.Empty(t, h.events.types(m.Data.ID)[1:])

	err = h.svc.Register(ctx, "missing-market", "alice.near", "x", 10_000)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetSnapshotCacheFallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t)

	// Drop whatever the write path cached to force the gateway fallback.
	require.NoError(t, h.snapshots.Invalidate(ctx, m.Data.ID))

	snap, err := h.svc.GetSnapshot(ctx, m.Data.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Data.ID, snap.Market.ID)
	assert.True(t, snap.Flags.IsBeforeMarketEnds)

	cached, err := h.snapshots.Get(ctx, m.Data.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.BlockTimestamp, cached.BlockTimestamp)
}

func TestHydrate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t)

	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.svc.Register(ctx, m.Data.ID, "alice.near", "a cat", 10_000))

	// Simulate a restart: fresh registry, same stores.
	registry := engine.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gateway := native.New(registry, testDAO)
	revived := NewMarketService(gateway, registry, h.markets, h.players,
		h.events, h.snapshots, h.bus, testDefaults(), h.clock.Now, logger)

	require.NoError(t, revived.Hydrate(ctx))
	require.Equal(t, 1, registry.Len())

	agg, ok := registry.Get(m.Data.ID)
	require.True(t, ok)
	assert.Equal(t, 1, agg.PlayersCount())

	p, err := agg.Player("alice.near")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(9_800), p.Balance)
}

func TestSweeper(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t)

	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.svc.Register(ctx, m.Data.ID, "alice.near", "a cat", 10_000))

	locks := newMemLocks()
	archiver := &memArchiver{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sweeper := NewSweeper(h.svc, h.registry, h.markets, h.players, h.events,
		archiver, locks, 5*time.Minute, time.Minute, h.clock.Now, logger)

	t.Run("skips live markets", func(t *testing.T) {
		require.NoError(t, sweeper.Sweep(ctx))
		stored, err := h.markets.GetByID(ctx, m.Data.ID)
		require.NoError(t, err)
		assert.False(t, stored.Closed)
		assert.Empty(t, archiver.paths)
	})

	t.Run("closes expired markets", func(t *testing.T) {
		// Past the end plus the self-destruct window.
		h.clock.Advance(3600*time.Second + time.Hour + time.Second)
		require.NoError(t, sweeper.Sweep(ctx))

		stored, err := h.markets.GetByID(ctx, m.Data.ID)
		require.NoError(t, err)
		assert.True(t, stored.Closed)
		assert.Len(t, archiver.paths, 1)
		assert.Contains(t, h.snapshots.invalidated, m.Data.ID)

		_, ok := h.registry.Get(m.Data.ID)
		assert.False(t, ok)

		types := h.events.types(m.Data.ID)
		assert.Equal(t, domain.EventMarketClosed, types[len(types)-1])
	})

	t.Run("subsequent sweeps are no-ops", func(t *testing.T) {
		require.NoError(t, sweeper.Sweep(ctx))
		assert.Len(t, archiver.paths, 1)
	})

	t.Run("honors the distributed lock", func(t *testing.T) {
		release, err := locks.Acquire(ctx, sweepLockKey, time.Minute)
		require.NoError(t, err)
		defer release(ctx)

		assert.ErrorIs(t, sweeper.Sweep(ctx), domain.ErrLockHeld)
	})
}
