package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/promptwars/warsd/internal/domain"
)

// EventListener subscribes to the lifecycle event channel and forwards
// operator-relevant events to the notifier. Which event types pass is
// controlled by the notifier's allowed-event filter.
type EventListener struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewEventListener creates an EventListener over the given bus and notifier.
func NewEventListener(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *EventListener {
	return &EventListener{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_listener")),
	}
}

// Run consumes lifecycle events until ctx is cancelled.
func (l *EventListener) Run(ctx context.Context) error {
	ch, err := l.bus.Subscribe(ctx, domain.EventsChannel)
	if err != nil {
		return fmt.Errorf("notify: subscribe: %w", err)
	}

	l.logger.Info("notify listener started")
	defer l.logger.Info("notify listener stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			l.handle(ctx, data)
		}
	}
}

func (l *EventListener) handle(ctx context.Context, data []byte) {
	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		l.logger.Warn("undecodable lifecycle event",
			slog.String("error", err.Error()),
		)
		return
	}

	title, message, ok := l.format(ev)
	if !ok {
		return
	}
	if err := l.notifier.Notify(ctx, string(ev.Type), title, message); err != nil {
		l.logger.Warn("notification delivery failed",
			slog.String("market_id", ev.MarketID),
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// format renders an operator-facing message for the event types worth
// alerting on. Routine events (registrations, reveals) return ok=false.
func (l *EventListener) format(ev domain.Event) (title, message string, ok bool) {
	switch ev.Type {
	case domain.EventResolutionSuccess:
		winner, _ := ev.Payload["player_id"].(string)
		return "Market resolved",
			fmt.Sprintf("Market %s resolved, winner %s", ev.MarketID, winner), true

	case domain.EventInternalSellResolved:
		return "Winnings claimed",
			fmt.Sprintf("Market %s winner claimed %v", ev.MarketID, ev.Payload["amount"]), true

	case domain.EventFeesClaimed:
		return "Fees claimed",
			fmt.Sprintf("Market %s fees claimed: %v", ev.MarketID, ev.Payload["amount"]), true

	case domain.EventMarketClosed:
		return "Market closed",
			fmt.Sprintf("Market %s swept and archived", ev.MarketID), true

	default:
		return "", "", false
	}
}
