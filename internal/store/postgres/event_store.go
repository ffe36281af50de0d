package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promptwars/warsd/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. The event log is
// append-only; rows are never updated or deleted except by market teardown.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append writes a single lifecycle event. The payload map is stored as JSONB.
func (s *EventStore) Append(ctx context.Context, e domain.Event) error {
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("postgres: marshal event payload: %w", err)
	}

	const query = `
		INSERT INTO market_events (market_id, type, payload, created_at)
		VALUES ($1, $2, $3, $4)`
	_, err = s.pool.Exec(ctx, query, e.MarketID, string(e.Type), payloadJSON, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: append event %s for market %s: %w", e.Type, e.MarketID, err)
	}
	return nil
}

// ListByMarket returns a market's events in append order.
func (s *EventStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT id, market_id, type, payload, created_at
		FROM market_events WHERE market_id = $1`
	args := []any{marketID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY id"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events for market %s: %w", marketID, err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var typ string
		var payloadJSON []byte

		if err := rows.Scan(&e.ID, &e.MarketID, &typ, &payloadJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.Type = domain.EventType(typ)

		if payloadJSON != nil {
			if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal event payload: %w", err)
			}
		}

		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}
