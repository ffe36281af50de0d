// Package native implements domain.MarketGateway on the in-process lifecycle
// engine. It is the authoritative variant: state lives in engine aggregates
// held in a registry, with persistence handled by the service layer.
package native

import (
	"context"

	"github.com/promptwars/warsd/internal/domain"
	"github.com/promptwars/warsd/internal/engine"
)

// Gateway drives engine aggregates directly. Player-facing calls run with the
// player's own identity; reveal and resolve run as the operator account.
type Gateway struct {
	registry *engine.Registry
	operator string
}

// New creates a native gateway over the given aggregate registry.
func New(registry *engine.Registry, operator string) *Gateway {
	return &Gateway{registry: registry, operator: operator}
}

// Registry exposes the underlying aggregate registry for the service layer.
func (g *Gateway) Registry() *engine.Registry {
	return g.registry
}

func (g *Gateway) market(marketID string) (*engine.Market, error) {
	m, ok := g.registry.Get(marketID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m, nil
}

// Snapshot fetches the full read surface in one atomic evaluation.
func (g *Gateway) Snapshot(ctx context.Context, marketID string) (domain.Snapshot, error) {
	m, err := g.market(marketID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return m.Snapshot(), nil
}

// GetPlayer returns a registered player's entry.
func (g *Gateway) GetPlayer(ctx context.Context, marketID, playerID string) (domain.Player, error) {
	m, err := g.market(marketID)
	if err != nil {
		return domain.Player{}, err
	}
	return m.Player(playerID)
}

// GetPlayersCount returns the number of registered players.
func (g *Gateway) GetPlayersCount(ctx context.Context, marketID string) (int64, error) {
	m, err := g.market(marketID)
	if err != nil {
		return 0, err
	}
	return int64(m.PlayersCount()), nil
}

// Register enters a player into the market as themselves.
func (g *Gateway) Register(ctx context.Context, marketID, playerID, prompt string, amount domain.Amount) error {
	m, err := g.market(marketID)
	if err != nil {
		return err
	}
	_, err = m.Register(playerID, playerID, prompt, amount)
	return err
}

// Reveal publishes a player's scored result as the operator.
func (g *Gateway) Reveal(ctx context.Context, marketID, playerID, result, outputImgURI string) error {
	m, err := g.market(marketID)
	if err != nil {
		return err
	}
	_, err = m.Reveal(g.operator, playerID, result, outputImgURI)
	return err
}

// Resolve designates the winning player as the operator.
func (g *Gateway) Resolve(ctx context.Context, marketID, playerID string) error {
	m, err := g.market(marketID)
	if err != nil {
		return err
	}
	_, err = m.Resolve(g.operator, playerID)
	return err
}

// Sell claims the player's refund or winnings and returns the disbursed
// amount.
func (g *Gateway) Sell(ctx context.Context, marketID, playerID string) (domain.Amount, error) {
	m, err := g.market(marketID)
	if err != nil {
		return 0, err
	}
	amount, _, err := m.Sell(playerID)
	return amount, err
}

// Compile-time interface check.
var _ domain.MarketGateway = (*Gateway)(nil)
