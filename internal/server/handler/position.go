package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// ExitRequester flags positions for a forced exit on the next evaluation
// cycle.
type ExitRequester interface {
	RequestExit(mint, detail string)
	RequestExitAll(ctx context.Context, detail string) (int, error)
}

// PositionHandler serves manual exit commands.
type PositionHandler struct {
	positions domain.PositionStore
	exits     ExitRequester
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions domain.PositionStore, exits ExitRequester, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		exits:     exits,
		logger:    logger.With(slog.String("handler", "position")),
	}
}

// ExitPosition flags one open position for a forced exit. The close itself
// happens on the next monitor cycle; the response is an acknowledgement, not
// a fill.
func (h *PositionHandler) ExitPosition(w http.ResponseWriter, r *http.Request) {
	mint := r.PathValue("mint")
	if mint == "" {
		writeError(w, http.StatusBadRequest, "mint is required")
		return
	}

	pos, err := h.positions.Get(r.Context(), mint)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no position for mint")
			return
		}
		writeError(w, http.StatusInternalServerError, "position store unavailable")
		return
	}
	if pos.Status != domain.PositionStatusOpen {
		writeError(w, http.StatusConflict, "position is not open")
		return
	}

	h.exits.RequestExit(mint, "manual exit via api")
	h.logger.InfoContext(r.Context(), "manual exit requested", slog.String("mint", mint))

	writeJSON(w, http.StatusAccepted, map[string]string{
		"mint":   mint,
		"status": "exit_requested",
	})
}

// ExitAll flags every open position for a forced exit.
func (h *PositionHandler) ExitAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.exits.RequestExitAll(r.Context(), "manual exit-all via api")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "position store unavailable")
		return
	}
	h.logger.InfoContext(r.Context(), "manual exit-all requested", slog.Int("flagged", n))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"flagged": n,
		"status":  "exit_requested",
	})
}
