package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/promptwars/warsd/internal/domain"
)

// SweepRunner runs a single teardown pass over expired markets.
type SweepRunner interface {
	Sweep(ctx context.Context) error
}

// SweepHandler exposes a manual trigger for the teardown sweep, useful for
// operators who do not want to wait for the next scheduled pass.
type SweepHandler struct {
	sweeper SweepRunner
	logger  *slog.Logger
}

// NewSweepHandler creates a SweepHandler.
func NewSweepHandler(sweeper SweepRunner, logger *slog.Logger) *SweepHandler {
	return &SweepHandler{
		sweeper: sweeper,
		logger:  logger,
	}
}

// Trigger runs one sweep pass synchronously.
// POST /api/sweep
func (h *SweepHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if err := h.sweeper.Sweep(r.Context()); err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			writeError(w, http.StatusConflict, "sweep already in progress")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: sweep failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "swept"})
}
