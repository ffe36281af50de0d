package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promptwars/warsd/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, image_uri, starts_at, ends_at,
	dao_account_id, market_creator_account_id, self_destruct_window, buy_sell_threshold,
	price, fee_ratio, fees_claimed_at,
	collateral_token_id, collateral_balance, collateral_decimals, fee_balance,
	resolution_window, reveal_window, resolved_at, winner_player_id,
	closed, created_at, updated_at`

// Create inserts a newly created market.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, image_uri, starts_at, ends_at,
			dao_account_id, market_creator_account_id, self_destruct_window, buy_sell_threshold,
			price, fee_ratio, fees_claimed_at,
			collateral_token_id, collateral_balance, collateral_decimals, fee_balance,
			resolution_window, reveal_window, resolved_at, winner_player_id,
			closed, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, $19,
			$20, $21, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		m.Data.ID, m.Data.ImageURI, m.Data.StartsAt, m.Data.EndsAt,
		m.Management.DAOAccountID, m.Management.MarketCreatorAccountID,
		m.Management.SelfDestructWindow, m.Management.BuySellThreshold,
		m.Fees.Price, m.Fees.FeeRatio, m.Fees.ClaimedAt,
		m.Collateral.ID, m.Collateral.Balance, m.Collateral.Decimals, m.Collateral.FeeBalance,
		m.Resolution.Window, m.Resolution.RevealWindow, m.Resolution.ResolvedAt, m.Resolution.PlayerID,
		m.Closed, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.Data.ID, err)
	}
	return nil
}

// Update persists the mutable state of an existing market.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			fees_claimed_at    = $2,
			collateral_balance = $3,
			fee_balance        = $4,
			resolved_at        = $5,
			winner_player_id   = $6,
			closed             = $7,
			updated_at         = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		m.Data.ID,
		m.Fees.ClaimedAt,
		m.Collateral.Balance, m.Collateral.FeeBalance,
		m.Resolution.ResolvedAt, m.Resolution.PlayerID,
		m.Closed,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.Data.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	err := row.Scan(
		&m.Data.ID, &m.Data.ImageURI, &m.Data.StartsAt, &m.Data.EndsAt,
		&m.Management.DAOAccountID, &m.Management.MarketCreatorAccountID,
		&m.Management.SelfDestructWindow, &m.Management.BuySellThreshold,
		&m.Fees.Price, &m.Fees.FeeRatio, &m.Fees.ClaimedAt,
		&m.Collateral.ID, &m.Collateral.Balance, &m.Collateral.Decimals, &m.Collateral.FeeBalance,
		&m.Resolution.Window, &m.Resolution.RevealWindow, &m.Resolution.ResolvedAt, &m.Resolution.PlayerID,
		&m.Closed, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets with pagination and optional time filtering.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.list(ctx, `SELECT `+marketCols+` FROM markets WHERE 1=1`, opts)
}

// ListOpen returns markets that have not been torn down by the sweeper,
// regardless of resolution state.
func (s *MarketStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.list(ctx, `SELECT `+marketCols+` FROM markets WHERE NOT closed`, opts)
}

func (s *MarketStore) list(ctx context.Context, query string, opts domain.ListOpts) ([]domain.Market, error) {
	args := []any{}
	argIdx := 1

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

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}
