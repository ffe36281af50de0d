package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/promptwars/warsd/internal/domain"
	"github.com/promptwars/warsd/internal/service"
)

// MarketService defines what the market handler needs from the service
// layer. It is declared locally so the handler package does not depend on
// the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, caller string, req service.CreateMarketRequest) (domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	GetSnapshot(ctx context.Context, id string) (domain.Snapshot, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	ListOpenMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	CountMarkets(ctx context.Context) (int64, error)
	GetPlayer(ctx context.Context, marketID, playerID string) (domain.Player, error)
	ListPlayers(ctx context.Context, marketID string) ([]domain.Player, error)
	ListEvents(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Event, error)
}

// MarketHandler serves the market read endpoints and creation.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets with pagination. ?open=true narrows the list
// to markets the sweeper has not torn down.
// GET /api/markets?limit=50&offset=0&open=true
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		markets []domain.Market
		err     error
	)
	if r.URL.Query().Get("open") == "true" {
		markets, err = h.markets.ListOpenMarkets(r.Context(), opts)
	} else {
		markets, err = h.markets.ListMarkets(r.Context(), opts)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	total, err := h.markets.CountMarkets(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count markets")
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market's persisted projection.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// snapshotResponse pairs the raw snapshot with its projected phase so
// clients do not re-derive the precedence rules.
type snapshotResponse struct {
	domain.Snapshot
	Phase domain.Phase `json:"phase"`
}

// GetSnapshot returns the live read surface and the projected phase.
// GET /api/markets/{id}/snapshot
func (h *MarketHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	snap, err := h.markets.GetSnapshot(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get snapshot failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get snapshot")
		return
	}

	writeJSON(w, http.StatusOK, snapshotResponse{
		Snapshot: snap,
		Phase:    domain.PhaseFromFlags(snap.Flags),
	})
}

// snapshotField fetches a snapshot and writes one slice of it.
func (h *MarketHandler) snapshotField(w http.ResponseWriter, r *http.Request, pick func(domain.Snapshot) any) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	snap, err := h.markets.GetSnapshot(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get snapshot failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get snapshot")
		return
	}

	writeJSON(w, http.StatusOK, pick(snap))
}

// GetStatus returns the projected phase and the window flags behind it.
// GET /api/markets/{id}/status
func (h *MarketHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.snapshotField(w, r, func(snap domain.Snapshot) any {
		return map[string]any{
			"phase":           domain.PhaseFromFlags(snap.Flags),
			"flags":           snap.Flags,
			"block_timestamp": snap.BlockTimestamp,
		}
	})
}

// GetResolution returns the resolution windows and outcome.
// GET /api/markets/{id}/resolution
func (h *MarketHandler) GetResolution(w http.ResponseWriter, r *http.Request) {
	h.snapshotField(w, r, func(snap domain.Snapshot) any { return snap.Resolution })
}

// GetFees returns the fee configuration and balance.
// GET /api/markets/{id}/fees
func (h *MarketHandler) GetFees(w http.ResponseWriter, r *http.Request) {
	h.snapshotField(w, r, func(snap domain.Snapshot) any { return snap.Fees })
}

// GetManagement returns the DAO and operator accounts.
// GET /api/markets/{id}/management
func (h *MarketHandler) GetManagement(w http.ResponseWriter, r *http.Request) {
	h.snapshotField(w, r, func(snap domain.Snapshot) any { return snap.Management })
}

// GetCollateral returns the collateral token state.
// GET /api/markets/{id}/collateral
func (h *MarketHandler) GetCollateral(w http.ResponseWriter, r *http.Request) {
	h.snapshotField(w, r, func(snap domain.Snapshot) any { return snap.Collateral })
}

// CreateMarket creates a new market. The caller comes from the signed
// account header set by the auth middleware.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req service.CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	market, err := h.markets.CreateMarket(r.Context(), callerAccount(r), req)
	if err != nil {
		if errors.Is(err, domain.ErrNotAuthorized) {
			writeError(w, http.StatusForbidden, "caller may not create markets")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: create market failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// ListPlayers returns a market's players in registration order.
// GET /api/markets/{id}/players
func (h *MarketHandler) ListPlayers(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	players, err := h.markets.ListPlayers(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list players failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list players")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"players":   players,
	})
}

// GetPlayer returns one player's entry.
// GET /api/markets/{id}/players/{player}
func (h *MarketHandler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	playerID := pathParam(r, "player")

	p, err := h.markets.GetPlayer(r.Context(), id, playerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrPlayerNotRegistered) {
			writeError(w, http.StatusNotFound, "player not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get player failed",
			slog.String("market_id", id),
			slog.String("player_id", playerID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get player")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// ListEvents returns a market's lifecycle events in append order.
// GET /api/markets/{id}/events
func (h *MarketHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	events, err := h.markets.ListEvents(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list events failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"events":    events,
	})
}
