// Package domain defines the core types and interfaces for the prompt wars
// market lifecycle engine: markets, players, resolution state, settlement
// amounts, and the store/cache/gateway contracts implemented elsewhere.
package domain

import "time"

// Timestamp is a Unix timestamp in seconds, matching the on-chain
// representation of every market window.
type Timestamp = int64

// Amount is a collateral token amount in the token's minimal units.
type Amount = int64

// FeeBase is the fixed-point denominator for Fees.FeeRatio, in parts per
// billion. A FeeRatio of 20_000_000 is a 2% fee.
const FeeBase Amount = 1_000_000_000

// MarketData bounds one prediction round: the source image being played on
// and the entry-registration window.
type MarketData struct {
	ID       string    `json:"id"`
	ImageURI string    `json:"image_uri"`
	StartsAt Timestamp `json:"starts_at"`
	EndsAt   Timestamp `json:"ends_at"`
}

// Management carries the administrative metadata of a market.
type Management struct {
	DAOAccountID           string    `json:"dao_account_id"`
	MarketCreatorAccountID string    `json:"market_creator_account_id"`
	SelfDestructWindow     Timestamp `json:"self_destruct_window"`
	BuySellThreshold       Amount    `json:"buy_sell_threshold"`
}

// Fees holds the fixed entry price and the protocol fee ratio.
// FeeRatio is expressed in FeeBase parts per billion.
type Fees struct {
	Price     Amount    `json:"price"`
	FeeRatio  Amount    `json:"fee_ratio"`
	ClaimedAt Timestamp `json:"claimed_at"` // zero until fees are withdrawn
}

// CollateralToken references the payment asset and the running balances.
// Balance is the gross principal collected; FeeBalance is the fee portion
// carried inside Balance until claimed.
type CollateralToken struct {
	ID         string `json:"id"`
	Balance    Amount `json:"balance"`
	Decimals   int32  `json:"decimals"`
	FeeBalance Amount `json:"fee_balance"`
}

// Resolution tracks the reveal and resolution deadlines and the winning
// player once resolved. ResolvedAt == 0 iff the market is not yet resolved.
type Resolution struct {
	Window       Timestamp `json:"window"`
	RevealWindow Timestamp `json:"reveal_window"`
	ResolvedAt   Timestamp `json:"resolved_at"`
	PlayerID     string    `json:"player_id"`
}

// Player is a single participant's entry in a market. OutputImgURI and
// Result stay empty until the operator reveals the scored outcome.
type Player struct {
	ID           string    `json:"id"`
	Prompt       string    `json:"prompt"`
	OutputImgURI string    `json:"output_img_uri"`
	Result       string    `json:"result"`
	Balance      Amount    `json:"balance"` // net claim minted on registration
	Claimed      bool      `json:"claimed"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Revealed reports whether the player's result has been published.
func (p Player) Revealed() bool {
	return p.Result != "" || p.OutputImgURI != ""
}

// Market is the persisted projection of a full market aggregate, as stored
// and served to API clients. The live state machine lives in the engine
// package; this struct is its snapshot-at-rest.
type Market struct {
	Data       MarketData      `json:"market"`
	Management Management      `json:"management"`
	Fees       Fees            `json:"fees"`
	Collateral CollateralToken `json:"collateral_token"`
	Resolution Resolution      `json:"resolution"`
	Closed     bool            `json:"closed"` // torn down by the sweeper
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Snapshot is the read surface a client mirror fetches on every poll tick:
// the raw market state plus the window flags evaluated at BlockTimestamp.
type Snapshot struct {
	Market         MarketData      `json:"market"`
	Management     Management      `json:"management"`
	Fees           Fees            `json:"fees"`
	Collateral     CollateralToken `json:"collateral_token"`
	Resolution     Resolution      `json:"resolution"`
	PlayersCount   int             `json:"players_count"`
	Flags          Flags           `json:"flags"`
	BlockTimestamp Timestamp       `json:"block_timestamp"`
}
