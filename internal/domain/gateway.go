package domain

import "context"

// MarketGateway is the read/write surface of one market lifecycle engine.
// Two variants exist: the native in-process engine and the EVM contract
// binding. Call sites depend on this interface only; the variant is selected
// at configuration time.
type MarketGateway interface {
	// Snapshot fetches the full read surface in one round trip, with all
	// window flags evaluated against a single canonical instant.
	Snapshot(ctx context.Context, marketID string) (Snapshot, error)
	GetPlayer(ctx context.Context, marketID, playerID string) (Player, error)
	GetPlayersCount(ctx context.Context, marketID string) (int64, error)

	Register(ctx context.Context, marketID, playerID, prompt string, amount Amount) error
	Reveal(ctx context.Context, marketID, playerID, result, outputImgURI string) error
	Resolve(ctx context.Context, marketID, playerID string) error
	// Sell claims the caller's refund (unresolved) or winnings (resolved)
	// and returns the disbursed amount.
	Sell(ctx context.Context, marketID, playerID string) (Amount, error)
}
