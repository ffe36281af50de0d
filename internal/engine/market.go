package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/promptwars/warsd/internal/domain"
)

// Market is one live market aggregate. A mutex serializes every entry point
// so each call is atomic with respect to the aggregate's state; independent
// markets share nothing and run concurrently.
type Market struct {
	mu    sync.Mutex
	clock Clock

	data       domain.MarketData
	management domain.Management
	fees       domain.Fees
	collateral domain.CollateralToken
	resolution domain.Resolution

	players map[string]*domain.Player
	order   []string // registration order, for deterministic listing
	closed  bool
	created time.Time
}

// New creates a market aggregate from its constituent parts. The resolution
// windows must already be computed by the caller (reveal closes no later
// than resolution).
func New(data domain.MarketData, mgmt domain.Management, fees domain.Fees, collateral domain.CollateralToken, res domain.Resolution, clock Clock) (*Market, error) {
	if clock == nil {
		clock = SystemClock
	}
	if data.StartsAt > data.EndsAt {
		return nil, fmt.Errorf("engine: starts_at %d after ends_at %d", data.StartsAt, data.EndsAt)
	}
	if res.RevealWindow > res.Window {
		return nil, fmt.Errorf("engine: reveal window %d after resolution window %d", res.RevealWindow, res.Window)
	}
	return &Market{
		clock:      clock,
		data:       data,
		management: mgmt,
		fees:       fees,
		collateral: collateral,
		resolution: res,
		players:    make(map[string]*domain.Player),
		created:    clock(),
	}, nil
}

// Restore rebuilds an aggregate from its persisted projection.
func Restore(m domain.Market, players []domain.Player, clock Clock) *Market {
	if clock == nil {
		clock = SystemClock
	}
	agg := &Market{
		clock:      clock,
		data:       m.Data,
		management: m.Management,
		fees:       m.Fees,
		collateral: m.Collateral,
		resolution: m.Resolution,
		players:    make(map[string]*domain.Player, len(players)),
		closed:     m.Closed,
		created:    m.CreatedAt,
	}
	for i := range players {
		p := players[i]
		agg.players[p.ID] = &p
		agg.order = append(agg.order, p.ID)
	}
	return agg
}

// isOperator reports whether caller is the DAO/operator account.
func (m *Market) isOperator(caller string) bool {
	return caller != "" && caller == m.management.DAOAccountID
}

// Register creates a player entry. Preconditions, first failure wins:
// caller must be the player or the operator, the market must be open, the
// player must not exist, and the payment must cover the entry price.
func (m *Market) Register(caller, playerID, prompt string, amount domain.Amount) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock().Unix()

	if caller != playerID && !m.isOperator(caller) {
		return domain.Event{}, domain.ErrNotAuthorized
	}
	if m.closed {
		return domain.Event{}, domain.ErrMarketClosed
	}
	if now < m.data.StartsAt {
		return domain.Event{}, domain.ErrEventNotStarted
	}
	if !isBeforeMarketEnds(now, m.data) {
		return domain.Event{}, domain.ErrEventEnded
	}
	if _, ok := m.players[playerID]; ok {
		return domain.Event{}, domain.ErrPlayerExists
	}
	if amount < m.fees.Price {
		return domain.Event{}, domain.ErrInsufficientPayment
	}

	mintable, fee := AmountMintable(amount, m.fees)

	m.players[playerID] = &domain.Player{
		ID:           playerID,
		Prompt:       prompt,
		Balance:      mintable,
		RegisteredAt: m.clock(),
	}
	m.order = append(m.order, playerID)
	m.collateral.Balance += amount
	m.collateral.FeeBalance += fee

	return m.event(domain.EventRegisterPlayer,
		domain.RegisterPayload(playerID, amount, mintable, fee, m.collateral.Balance, m.collateral.FeeBalance)), nil
}

// Reveal publishes a registered player's scored result. Reveal is
// single-shot per player: a second reveal is rejected, never overwritten.
func (m *Market) Reveal(caller, playerID, result, outputImgURI string) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock().Unix()

	if !m.isOperator(caller) {
		return domain.Event{}, domain.ErrNotAuthorized
	}
	if isRevealWindowExpired(now, m.resolution) {
		return domain.Event{}, domain.ErrRevealWindowExpired
	}
	p, ok := m.players[playerID]
	if !ok {
		return domain.Event{}, domain.ErrPlayerNotRegistered
	}
	if p.Revealed() {
		return domain.Event{}, domain.ErrAlreadyRevealed
	}

	p.Result = result
	p.OutputImgURI = outputImgURI

	return m.event(domain.EventRevealPlayerResult,
		domain.RevealPayload(playerID, result, outputImgURI)), nil
}

// Resolve designates the winning entry. The winner is operator-supplied;
// the engine validates eligibility only (use ResolveAuto for the
// closest-to-zero selection rule). Resolve is single-shot per market.
func (m *Market) Resolve(caller, playerID string) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveLocked(caller, playerID)
}

// ResolveAuto selects the winner by the closest-to-zero rule over revealed
// results and resolves the market with it.
func (m *Market) ResolveAuto(caller string) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	winner, ok := ClosestToZero(m.playersLocked())
	if !ok {
		return domain.Event{}, domain.ErrNoParticipants
	}
	return m.resolveLocked(caller, winner)
}

func (m *Market) resolveLocked(caller, playerID string) (domain.Event, error) {
	now := m.clock().Unix()

	if !m.isOperator(caller) {
		return domain.Event{}, domain.ErrNotAuthorized
	}
	if len(m.players) == 0 {
		return domain.Event{}, domain.ErrNoParticipants
	}
	if isResolutionWindowExpired(now, m.resolution) {
		return domain.Event{}, domain.ErrResolutionExpired
	}
	if m.resolution.ResolvedAt != 0 {
		return domain.Event{}, domain.ErrAlreadyResolved
	}
	p, ok := m.players[playerID]
	if !ok {
		return domain.Event{}, domain.ErrPlayerNotRegistered
	}

	m.resolution.ResolvedAt = now
	m.resolution.PlayerID = playerID

	return m.event(domain.EventResolutionSuccess,
		domain.RevealPayload(playerID, p.Result, p.OutputImgURI)), nil
}

// Sell is the claim path. On a resolved market the winner takes the pool
// net of the protocol fee; on an expired-unresolved market each player gets
// their minted balance back, exactly once. State is updated before any
// transfer happens at the boundary, so a repeated call cannot double-pay.
func (m *Market) Sell(caller string) (domain.Amount, domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock().Unix()

	p, ok := m.players[caller]
	if !ok {
		return 0, domain.Event{}, domain.ErrPlayerNotRegistered
	}
	if p.Claimed {
		return 0, domain.Event{}, domain.ErrAlreadyClaimed
	}

	switch {
	case m.resolution.ResolvedAt != 0:
		if caller != m.resolution.PlayerID {
			return 0, domain.Event{}, domain.ErrNotWinner
		}
		payout := m.collateral.Balance - m.collateral.FeeBalance
		p.Claimed = true
		m.collateral.Balance -= payout
		return payout, m.event(domain.EventInternalSellResolved, domain.SellPayload(caller, payout)), nil

	case isExpiredUnresolved(now, m.data, m.resolution):
		payout := p.Balance
		p.Claimed = true
		m.collateral.Balance -= payout
		return payout, m.event(domain.EventInternalSellUnresolved, domain.SellPayload(caller, payout)), nil

	default:
		return 0, domain.Event{}, domain.ErrMarketStillActive
	}
}

// ClaimFees moves the accumulated fee balance to the operator once the
// market is terminal. Single-shot.
func (m *Market) ClaimFees(caller string) (domain.Amount, domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock().Unix()

	if !m.isOperator(caller) {
		return 0, domain.Event{}, domain.ErrNotAuthorized
	}
	if m.fees.ClaimedAt != 0 {
		return 0, domain.Event{}, domain.ErrFeesAlreadyClaimed
	}
	if m.resolution.ResolvedAt == 0 && !isExpiredUnresolved(now, m.data, m.resolution) {
		return 0, domain.Event{}, domain.ErrMarketStillActive
	}

	payout := m.collateral.FeeBalance
	m.collateral.Balance -= payout
	m.collateral.FeeBalance = 0
	m.fees.ClaimedAt = now

	return payout, m.event(domain.EventFeesClaimed, domain.SellPayload(caller, payout)), nil
}

// SelfDestruct marks the market closed once its self-destruct window has
// expired. The sweeper archives state before calling this.
func (m *Market) SelfDestruct() (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock().Unix()

	if m.closed {
		return domain.Event{}, domain.ErrMarketClosed
	}
	if !isSelfDestructWindowExpired(now, m.data, m.management) {
		return domain.Event{}, domain.ErrMarketStillActive
	}

	m.closed = true
	return m.event(domain.EventMarketClosed, map[string]any{"market_id": m.data.ID}), nil
}

// ---------------------------------------------------------------------------
// Read surface
// ---------------------------------------------------------------------------

// Data returns the market data.
func (m *Market) Data() domain.MarketData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data
}

// ManagementData returns the administrative metadata.
func (m *Market) ManagementData() domain.Management {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.management
}

// FeesData returns the fee configuration and claim state.
func (m *Market) FeesData() domain.Fees {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fees
}

// CollateralTokenData returns the collateral token balances.
func (m *Market) CollateralTokenData() domain.CollateralToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collateral
}

// ResolutionData returns the resolution windows and outcome.
func (m *Market) ResolutionData() domain.Resolution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolution
}

// Player returns a registered player by ID.
func (m *Market) Player(playerID string) (domain.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotRegistered
	}
	return *p, nil
}

// Players returns all players in registration order.
func (m *Market) Players() []domain.Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playersLocked()
}

func (m *Market) playersLocked() []domain.Player {
	out := make([]domain.Player, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.players[id])
	}
	return out
}

// PlayersCount returns the number of registered players.
func (m *Market) PlayersCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.players)
}

// Flags evaluates every window predicate against a single current instant.
func (m *Market) Flags() domain.Flags {
	m.mu.Lock()
	defer m.mu.Unlock()
	return EvaluateFlags(m.clock().Unix(), m.data, m.management, m.resolution)
}

// Phase projects the aggregate's current lifecycle phase.
func (m *Market) Phase() domain.Phase {
	f := m.Flags()
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return domain.PhaseClosed
	}
	return domain.PhaseFromFlags(f)
}

// Snapshot assembles the full read surface in one atomic evaluation.
func (m *Market) Snapshot() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock().Unix()
	return domain.Snapshot{
		Market:         m.data,
		Management:     m.management,
		Fees:           m.fees,
		Collateral:     m.collateral,
		Resolution:     m.resolution,
		PlayersCount:   len(m.players),
		Flags:          EvaluateFlags(now, m.data, m.management, m.resolution),
		BlockTimestamp: now,
	}
}

// Closed reports whether the sweeper tore the market down.
func (m *Market) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// ToMarket returns the persisted projection of the aggregate.
func (m *Market) ToMarket() domain.Market {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.Market{
		Data:       m.data,
		Management: m.management,
		Fees:       m.fees,
		Collateral: m.collateral,
		Resolution: m.resolution,
		Closed:     m.closed,
		CreatedAt:  m.created,
		UpdatedAt:  m.clock(),
	}
}

// event stamps a lifecycle event with the aggregate's ID and clock.
func (m *Market) event(t domain.EventType, payload map[string]any) domain.Event {
	return domain.Event{
		MarketID:  m.data.ID,
		Type:      t,
		Payload:   payload,
		CreatedAt: m.clock(),
	}
}
