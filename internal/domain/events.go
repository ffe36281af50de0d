package domain

import "time"

// EventType identifies a lifecycle event emitted by the engine.
type EventType string

const (
	EventRegisterPlayer         EventType = "register_player"
	EventRevealPlayerResult     EventType = "reveal_player_result"
	EventResolutionSuccess      EventType = "resolution_success"
	EventInternalSellResolved   EventType = "internal_sell_resolved"
	EventInternalSellUnresolved EventType = "internal_sell_unresolved"
	EventFeesClaimed            EventType = "fees_claimed"
	EventMarketCreated          EventType = "market_created"
	EventMarketClosed           EventType = "market_closed"
)

// Signal bus destinations for lifecycle events.
const (
	// EventsChannel is the Pub/Sub channel lifecycle events fan out on.
	EventsChannel = "market:events"
	// EventsStream is the durable stream indexers read lifecycle events from.
	EventsStream = "stream:market:events"
)

// Event is one lifecycle event: appended to the event log, published on the
// signal bus, and broadcast to WebSocket clients.
type Event struct {
	ID        int64          `json:"id,omitempty"`
	MarketID  string         `json:"market_id"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// RegisterPayload builds the payload of a RegisterPlayer event, carrying the
// gross amount, minted claim, fee split, and post-registration balances for
// observers and indexers.
func RegisterPayload(playerID string, amount, mintable, fee, balance, feeBalance Amount) map[string]any {
	return map[string]any{
		"player_id":       playerID,
		"amount":          amount,
		"amount_mintable": mintable,
		"fee":             fee,
		"balance":         balance,
		"fee_balance":     feeBalance,
	}
}

// RevealPayload builds the payload of a RevealPlayerResult event.
func RevealPayload(playerID, result, outputImgURI string) map[string]any {
	return map[string]any{
		"player_id":      playerID,
		"result":         result,
		"output_img_uri": outputImgURI,
	}
}

// SellPayload builds the payload of either internal-sell event.
func SellPayload(payee string, amount Amount) map[string]any {
	return map[string]any{
		"payee":  payee,
		"amount": amount,
	}
}
