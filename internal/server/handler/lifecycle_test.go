package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptwars/warsd/internal/crypto"
	"github.com/promptwars/warsd/internal/domain"
)

// stubLifecycle returns canned results for every lifecycle write.
type stubLifecycle struct {
	registerErr error
	revealErr   error
	resolveErr  error
	sellAmount  domain.Amount
	sellErr     error
	feesAmount  domain.Amount
	feesErr     error
	autoWinner  string
	autoErr     error

	lastMarket string
	lastPlayer string
}

func (s *stubLifecycle) Register(_ context.Context, marketID, playerID, _ string, _ domain.Amount) error {
	s.lastMarket, s.lastPlayer = marketID, playerID
	return s.registerErr
}

func (s *stubLifecycle) Reveal(_ context.Context, marketID, playerID, _, _ string) error {
	s.lastMarket, s.lastPlayer = marketID, playerID
	return s.revealErr
}

func (s *stubLifecycle) Resolve(_ context.Context, marketID, playerID string) error {
	s.lastMarket, s.lastPlayer = marketID, playerID
	return s.resolveErr
}

func (s *stubLifecycle) ResolveAuto(_ context.Context, marketID string) (string, error) {
	s.lastMarket = marketID
	return s.autoWinner, s.autoErr
}

func (s *stubLifecycle) Sell(_ context.Context, marketID, playerID string) (domain.Amount, error) {
	s.lastMarket, s.lastPlayer = marketID, playerID
	return s.sellAmount, s.sellErr
}

func (s *stubLifecycle) ClaimFees(_ context.Context, caller, marketID string) (domain.Amount, error) {
	s.lastMarket, s.lastPlayer = marketID, caller
	return s.feesAmount, s.feesErr
}

func newLifecycleMux(svc LifecycleService) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewLifecycleHandler(svc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/markets/{id}/register", h.Register)
	mux.HandleFunc("POST /api/markets/{id}/reveal", h.Reveal)
	mux.HandleFunc("POST /api/markets/{id}/resolve", h.Resolve)
	mux.HandleFunc("POST /api/markets/{id}/sell", h.Sell)
	mux.HandleFunc("POST /api/markets/{id}/claim-fees", h.ClaimFees)
	return mux
}

func signedRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(crypto.HeaderAccount, "alice.near")
	return req
}

func TestRegisterEndpoint(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := &stubLifecycle{}
		mux := newLifecycleMux(svc)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, signedRequest(http.MethodPost, "/api/markets/m1/register",
			`{"prompt":"a cat on the moon","amount":10000}`))

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "m1", svc.lastMarket)
		assert.Equal(t, "alice.near", svc.lastPlayer)
	})

	t.Run("missing caller", func(t *testing.T) {
		mux := newLifecycleMux(&stubLifecycle{})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/markets/m1/register",
			strings.NewReader(`{"prompt":"x","amount":1}`))
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing prompt", func(t *testing.T) {
		mux := newLifecycleMux(&stubLifecycle{})

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, signedRequest(http.MethodPost, "/api/markets/m1/register",
			`{"amount":10000}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("domain errors map to status codes", func(t *testing.T) {
		cases := []struct {
			err  error
			want int
		}{
			{domain.ErrNotFound, http.StatusNotFound},
			{domain.ErrEventEnded, http.StatusConflict},
			{domain.ErrEventNotStarted, http.StatusConflict},
			{domain.ErrPlayerExists, http.StatusConflict},
			{domain.ErrInsufficientPayment, http.StatusUnprocessableEntity},
		}
		for _, tc := range cases {
			mux := newLifecycleMux(&stubLifecycle{registerErr: tc.err})

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, signedRequest(http.MethodPost, "/api/markets/m1/register",
				`{"prompt":"x","amount":10000}`))

			assert.Equal(t, tc.want, rec.Code, "error %v", tc.err)
		}
	})
}

func TestRevealEndpoint(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		svc := &stubLifecycle{}
		mux := newLifecycleMux(svc)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, signedRequest(http.MethodPost, "/api/markets/m1/reveal",
			`{"player_id":"bob.near","result":"-3","output_img_uri":"ipfs://out"}`))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "bob.near", svc.lastPlayer)
	})

	t.Run("expired window", func(t *testing.T) {
		mux := newLifecycleMux(&stubLifecycle{revealErr: domain.ErrRevealWindowExpired})

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, signedRequest(http.MethodPost, "/api/markets/m1/reveal",
			`{"player_id":"bob.near","result":"-3"}`))

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestResolveEndpoint(t *testing.T) {
	t.Run("explicit winner", func(t *testing.T) {
		svc := &stubLifecycle{}
		mux := newLifecycleMux(svc)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, signedRequest(http.MethodPost, "/api/markets/m1/resolve",
			`{"player_id":"bob.near"}`))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"winner":"bob.near"`)
	})

	t.Run("automatic winner", func(t *testing.T) {
		svc := &stubLifecycle{autoWinner: "alice.near"}
		mux := newLifecycleMux(svc)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, signedRequest(http.MethodPost, "/api/markets/m1/resolve", `{}`))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"winner":"alice.near"`)
	})

	t.Run("no participants", func(t *testing.T) {
		mux := newLifecycleMux(&stubLifecycle{autoErr: domain.ErrNoParticipants})

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, signedRequest(http.MethodPost, "/api/markets/m1/resolve", `{}`))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestSellEndpoint(t *testing.T) {
	t.Run("paid out", func(t *testing.T) {
		mux := newLifecycleMux(&stubLifecycle{sellAmount: 19_600})

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, signedRequest(http.MethodPost, "/api/markets/m1/sell", ``))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"amount":19600`)
	})

	t.Run("not winner", func(t *testing.T) {
		mux := newLifecycleMux(&stubLifecycle{sellErr: domain.ErrNotWinner})

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, signedRequest(http.MethodPost, "/api/markets/m1/sell", ``))

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("already claimed", func(t *testing.T) {
		mux := newLifecycleMux(&stubLifecycle{sellErr: domain.ErrAlreadyClaimed})

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, signedRequest(http.MethodPost, "/api/markets/m1/sell", ``))

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestClaimFeesEndpoint(t *testing.T) {
	t.Run("paid out", func(t *testing.T) {
		svc := &stubLifecycle{feesAmount: 400}
		mux := newLifecycleMux(svc)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, signedRequest(http.MethodPost, "/api/markets/m1/claim-fees", ``))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"amount":400`)
		assert.Equal(t, "alice.near", svc.lastPlayer)
	})

	t.Run("still active", func(t *testing.T) {
		mux := newLifecycleMux(&stubLifecycle{feesErr: domain.ErrMarketStillActive})

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, signedRequest(http.MethodPost, "/api/markets/m1/claim-fees", ``))

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}
