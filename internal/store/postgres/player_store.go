package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promptwars/warsd/internal/domain"
)

// PlayerStore implements domain.PlayerStore using PostgreSQL.
type PlayerStore struct {
	pool *pgxpool.Pool
}

// NewPlayerStore creates a new PlayerStore backed by the given connection pool.
func NewPlayerStore(pool *pgxpool.Pool) *PlayerStore {
	return &PlayerStore{pool: pool}
}

const playerCols = `id, prompt, output_img_uri, result, balance, claimed, registered_at`

// Create inserts a newly registered player.
func (s *PlayerStore) Create(ctx context.Context, marketID string, p domain.Player) error {
	const query = `
		INSERT INTO players (
			market_id, id, prompt, output_img_uri, result, balance, claimed, registered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		marketID, p.ID, p.Prompt, p.OutputImgURI, p.Result,
		p.Balance, p.Claimed, p.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create player %s in market %s: %w", p.ID, marketID, err)
	}
	return nil
}

// Update persists the mutable state of an existing player.
func (s *PlayerStore) Update(ctx context.Context, marketID string, p domain.Player) error {
	const query = `
		UPDATE players SET
			output_img_uri = $3,
			result         = $4,
			balance        = $5,
			claimed        = $6
		WHERE market_id = $1 AND id = $2`

	tag, err := s.pool.Exec(ctx, query,
		marketID, p.ID, p.OutputImgURI, p.Result, p.Balance, p.Claimed,
	)
	if err != nil {
		return fmt.Errorf("postgres: update player %s in market %s: %w", p.ID, marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a player by market and player ID.
func (s *PlayerStore) GetByID(ctx context.Context, marketID, playerID string) (domain.Player, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+playerCols+` FROM players WHERE market_id = $1 AND id = $2`,
		marketID, playerID)

	var p domain.Player
	err := row.Scan(&p.ID, &p.Prompt, &p.OutputImgURI, &p.Result, &p.Balance, &p.Claimed, &p.RegisteredAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Player{}, domain.ErrNotFound
		}
		return domain.Player{}, fmt.Errorf("postgres: get player %s in market %s: %w", playerID, marketID, err)
	}
	return p, nil
}

// ListByMarket returns every player of a market in registration order.
func (s *PlayerStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Player, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+playerCols+` FROM players WHERE market_id = $1 ORDER BY registered_at, id`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list players for market %s: %w", marketID, err)
	}
	defer rows.Close()

	var players []domain.Player
	for rows.Next() {
		var p domain.Player
		if err := rows.Scan(&p.ID, &p.Prompt, &p.OutputImgURI, &p.Result, &p.Balance, &p.Claimed, &p.RegisteredAt); err != nil {
			return nil, fmt.Errorf("postgres: scan player: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list players rows: %w", err)
	}
	return players, nil
}

// CountByMarket returns the number of registered players in a market.
func (s *PlayerStore) CountByMarket(ctx context.Context, marketID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM players WHERE market_id = $1", marketID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count players for market %s: %w", marketID, err)
	}
	return count, nil
}
