package mirror

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptwars/warsd/internal/domain"
)

// scriptedGateway returns one queued snapshot or error per Snapshot call.
type scriptedGateway struct {
	mu    sync.Mutex
	queue []func() (domain.Snapshot, error)
}

func (g *scriptedGateway) push(snap domain.Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queue = append(g.queue, func() (domain.Snapshot, error) { return snap, nil })
}

func (g *scriptedGateway) pushErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queue = append(g.queue, func() (domain.Snapshot, error) { return domain.Snapshot{}, err })
}

func (g *scriptedGateway) Snapshot(context.Context, string) (domain.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) == 0 {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	next := g.queue[0]
	g.queue = g.queue[1:]
	return next()
}

func (g *scriptedGateway) GetPlayer(context.Context, string, string) (domain.Player, error) {
	return domain.Player{}, domain.ErrPlayerNotRegistered
}

func (g *scriptedGateway) GetPlayersCount(context.Context, string) (int64, error) {
	return 0, nil
}

func (g *scriptedGateway) Register(context.Context, string, string, string, domain.Amount) error {
	return nil
}

func (g *scriptedGateway) Reveal(context.Context, string, string, string, string) error {
	return nil
}

func (g *scriptedGateway) Resolve(context.Context, string, string) error { return nil }

func (g *scriptedGateway) Sell(context.Context, string, string) (domain.Amount, error) {
	return 0, nil
}

var _ domain.MarketGateway = (*scriptedGateway)(nil)

func snapWithFlags(f domain.Flags) domain.Snapshot {
	return domain.Snapshot{
		Market:         domain.MarketData{ID: "m1"},
		Flags:          f,
		BlockTimestamp: 1_700_000_000,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPollerStartsLoading(t *testing.T) {
	p := NewPoller("m1", &scriptedGateway{}, testLogger())
	assert.Equal(t, domain.PhaseLoading, p.Phase())
	assert.True(t, p.State().FetchedAt.IsZero())
}

func TestPollerProjectsPhases(t *testing.T) {
	gw := &scriptedGateway{}
	gw.push(snapWithFlags(domain.Flags{IsBeforeMarketEnds: true}))
	gw.push(snapWithFlags(domain.Flags{}))
	gw.push(snapWithFlags(domain.Flags{IsRevealWindowExpired: true}))
	gw.push(snapWithFlags(domain.Flags{
		IsResolved:                true,
		IsRevealWindowExpired:     true,
		IsResolutionWindowExpired: true,
	}))

	var transitions []domain.Phase
	p := NewPoller("m1", gw, testLogger(),
		WithChangeFunc(func(_ string, _, to domain.Phase, _ domain.Snapshot) {
			transitions = append(transitions, to)
		}))

	ctx := context.Background()
	assert.False(t, p.Poll(ctx))
	assert.Equal(t, domain.PhaseOpen, p.Phase())

	assert.False(t, p.Poll(ctx))
	assert.Equal(t, domain.PhaseRevealing, p.Phase())

	assert.False(t, p.Poll(ctx))
	assert.Equal(t, domain.PhaseResolving, p.Phase())

	// Resolved is terminal, so Poll reports done.
	assert.True(t, p.Poll(ctx))
	assert.Equal(t, domain.PhaseResolved, p.Phase())

	assert.Equal(t, []domain.Phase{
		domain.PhaseOpen,
		domain.PhaseRevealing,
		domain.PhaseResolving,
		domain.PhaseResolved,
	}, transitions)
}

func TestPollerKeepsLastGoodStateOnFailure(t *testing.T) {
	gw := &scriptedGateway{}
	gw.push(snapWithFlags(domain.Flags{IsBeforeMarketEnds: true}))
	gw.pushErr(errors.New("rpc timeout"))

	p := NewPoller("m1", gw, testLogger())
	ctx := context.Background()

	require.False(t, p.Poll(ctx))
	first := p.State()
	assert.Equal(t, domain.PhaseOpen, first.Phase)

	require.False(t, p.Poll(ctx))
	assert.Equal(t, first, p.State())
}

func TestPollerDefaultsInconsistentFlags(t *testing.T) {
	gw := &scriptedGateway{}
	gw.push(snapWithFlags(domain.Flags{IsBeforeMarketEnds: true}))
	// Resolved while marked expired-unresolved cannot both hold; the resolved
	// flag wins under the phase precedence.
	gw.push(snapWithFlags(domain.Flags{
		IsResolved:                true,
		IsRevealWindowExpired:     true,
		IsResolutionWindowExpired: true,
		IsExpiredUnresolved:       true,
	}))

	p := NewPoller("m1", gw, testLogger())
	ctx := context.Background()

	require.False(t, p.Poll(ctx))
	assert.Equal(t, domain.PhaseOpen, p.Phase())

	assert.True(t, p.Poll(ctx))
	assert.Equal(t, domain.PhaseResolved, p.Phase())
}

func TestPollerRunStopsAtTerminalPhase(t *testing.T) {
	gw := &scriptedGateway{}
	gw.push(snapWithFlags(domain.Flags{
		IsRevealWindowExpired:       true,
		IsResolutionWindowExpired:   true,
		IsExpiredUnresolved:         true,
		IsSelfDestructWindowExpired: true,
	}))

	p := NewPoller("m1", gw, testLogger(), WithInterval(DefaultInterval))
	err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseClosed, p.Phase())
}
