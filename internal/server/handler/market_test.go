package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptwars/warsd/internal/domain"
	"github.com/promptwars/warsd/internal/service"
)

// stubMarkets serves a single market for the read endpoints.
type stubMarkets struct {
	market  domain.Market
	snap    domain.Snapshot
	players []domain.Player
}

func (s *stubMarkets) CreateMarket(context.Context, string, service.CreateMarketRequest) (domain.Market, error) {
	return s.market, nil
}

func (s *stubMarkets) GetMarket(_ context.Context, id string) (domain.Market, error) {
	if id != s.market.Data.ID {
		return domain.Market{}, domain.ErrNotFound
	}
	return s.market, nil
}

func (s *stubMarkets) GetSnapshot(_ context.Context, id string) (domain.Snapshot, error) {
	if id != s.market.Data.ID {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return s.snap, nil
}

func (s *stubMarkets) ListMarkets(context.Context, domain.ListOpts) ([]domain.Market, error) {
	return []domain.Market{s.market}, nil
}

func (s *stubMarkets) ListOpenMarkets(context.Context, domain.ListOpts) ([]domain.Market, error) {
	if s.market.Closed {
		return nil, nil
	}
	return []domain.Market{s.market}, nil
}

func (s *stubMarkets) CountMarkets(context.Context) (int64, error) { return 1, nil }

func (s *stubMarkets) GetPlayer(_ context.Context, _, playerID string) (domain.Player, error) {
	for _, p := range s.players {
		if p.ID == playerID {
			return p, nil
		}
	}
	return domain.Player{}, domain.ErrPlayerNotRegistered
}

func (s *stubMarkets) ListPlayers(context.Context, string) ([]domain.Player, error) {
	return s.players, nil
}

func (s *stubMarkets) ListEvents(context.Context, string, domain.ListOpts) ([]domain.Event, error) {
	return nil, nil
}

func newMarketMux(svc MarketService) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewMarketHandler(svc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets", h.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", h.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/snapshot", h.GetSnapshot)
	mux.HandleFunc("GET /api/markets/{id}/status", h.GetStatus)
	mux.HandleFunc("GET /api/markets/{id}/fees", h.GetFees)
	mux.HandleFunc("GET /api/markets/{id}/players/{player}", h.GetPlayer)
	return mux
}

func testStub() *stubMarkets {
	return &stubMarkets{
		market: domain.Market{
			Data: domain.MarketData{ID: "m1"},
		},
		snap: domain.Snapshot{
			Market: domain.MarketData{ID: "m1"},
			Fees:   domain.Fees{Price: 10_000, FeeRatio: 20_000_000},
			Flags:  domain.Flags{IsBeforeMarketEnds: true},
		},
		players: []domain.Player{{ID: "alice.near", Balance: 9_800}},
	}
}

func TestListMarketsEndpoint(t *testing.T) {
	mux := newMarketMux(testStub())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}

func TestGetMarketNotFound(t *testing.T) {
	mux := newMarketMux(testStub())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStatusProjectsPhase(t *testing.T) {
	mux := newMarketMux(testStub())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/m1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phase":"open"`)
	assert.Contains(t, rec.Body.String(), `"is_before_market_ends":true`)
}

func TestGetFeesSlice(t *testing.T) {
	mux := newMarketMux(testStub())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/m1/fees", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"price":10000`)
	assert.Contains(t, rec.Body.String(), `"fee_ratio":20000000`)
}

func TestGetPlayerNotRegistered(t *testing.T) {
	mux := newMarketMux(testStub())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/m1/players/ghost.near", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
