package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/promptwars/warsd/internal/domain"
)

// LifecycleService defines the write operations the lifecycle handler needs.
type LifecycleService interface {
	Register(ctx context.Context, marketID, playerID, prompt string, amount domain.Amount) error
	Reveal(ctx context.Context, marketID, playerID, result, outputImgURI string) error
	Resolve(ctx context.Context, marketID, playerID string) error
	ResolveAuto(ctx context.Context, marketID string) (string, error)
	Sell(ctx context.Context, marketID, playerID string) (domain.Amount, error)
	ClaimFees(ctx context.Context, caller, marketID string) (domain.Amount, error)
}

// LifecycleHandler serves the market write endpoints: register, reveal,
// resolve, sell, and fee claiming.
type LifecycleHandler struct {
	service LifecycleService
	logger  *slog.Logger
}

// NewLifecycleHandler creates a LifecycleHandler.
func NewLifecycleHandler(service LifecycleService, logger *slog.Logger) *LifecycleHandler {
	return &LifecycleHandler{
		service: service,
		logger:  logger,
	}
}

type registerRequest struct {
	Prompt string        `json:"prompt"`
	Amount domain.Amount `json:"amount"`
}

// Register enters the signed caller into the market with their prompt and
// payment.
// POST /api/markets/{id}/register
func (h *LifecycleHandler) Register(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	caller := callerAccount(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "missing caller account")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "missing prompt")
		return
	}

	if err := h.service.Register(r.Context(), id, caller, req.Prompt, req.Amount); err != nil {
		h.writeLifecycleError(w, r, "register", id, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"market_id": id,
		"player_id": caller,
		"status":    "registered",
	})
}

type revealRequest struct {
	PlayerID     string `json:"player_id"`
	Result       string `json:"result"`
	OutputImgURI string `json:"output_img_uri"`
}

// Reveal publishes a player's scored result. Operator only; the gateway
// enforces the caller identity.
// POST /api/markets/{id}/reveal
func (h *LifecycleHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req revealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlayerID == "" || req.Result == "" {
		writeError(w, http.StatusBadRequest, "missing player_id or result")
		return
	}

	if err := h.service.Reveal(r.Context(), id, req.PlayerID, req.Result, req.OutputImgURI); err != nil {
		h.writeLifecycleError(w, r, "reveal", id, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"market_id": id,
		"player_id": req.PlayerID,
		"status":    "revealed",
	})
}

type resolveRequest struct {
	PlayerID string `json:"player_id"`
}

// Resolve designates the winner. With an empty player_id the winner is
// selected automatically by the closest-to-zero rule.
// POST /api/markets/{id}/resolve
func (h *LifecycleHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	winner := req.PlayerID
	var err error
	if winner == "" {
		winner, err = h.service.ResolveAuto(r.Context(), id)
	} else {
		err = h.service.Resolve(r.Context(), id, winner)
	}
	if err != nil {
		h.writeLifecycleError(w, r, "resolve", id, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"market_id": id,
		"winner":    winner,
		"status":    "resolved",
	})
}

// Sell claims the signed caller's refund or winnings.
// POST /api/markets/{id}/sell
func (h *LifecycleHandler) Sell(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	caller := callerAccount(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "missing caller account")
		return
	}

	amount, err := h.service.Sell(r.Context(), id, caller)
	if err != nil {
		h.writeLifecycleError(w, r, "sell", id, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"player_id": caller,
		"amount":    amount,
	})
}

// ClaimFees moves the accumulated fee balance to the signed operator.
// POST /api/markets/{id}/claim-fees
func (h *LifecycleHandler) ClaimFees(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	caller := callerAccount(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "missing caller account")
		return
	}

	amount, err := h.service.ClaimFees(r.Context(), caller, id)
	if err != nil {
		h.writeLifecycleError(w, r, "claim fees", id, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"amount":    amount,
	})
}

// writeLifecycleError maps domain errors from the lifecycle engine onto
// HTTP status codes.
func (h *LifecycleHandler) writeLifecycleError(w http.ResponseWriter, r *http.Request, op, marketID string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPlayerNotRegistered):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotAuthorized), errors.Is(err, domain.ErrNotWinner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrEventNotStarted),
		errors.Is(err, domain.ErrEventEnded),
		errors.Is(err, domain.ErrRevealWindowExpired),
		errors.Is(err, domain.ErrResolutionExpired),
		errors.Is(err, domain.ErrMarketStillActive),
		errors.Is(err, domain.ErrMarketClosed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrPlayerExists),
		errors.Is(err, domain.ErrAlreadyRevealed),
		errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrFeesAlreadyClaimed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInsufficientPayment), errors.Is(err, domain.ErrNoParticipants):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}
