package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// DiagnosticsSource scans stored state for inconsistencies.
type DiagnosticsSource interface {
	Diagnostics(ctx context.Context, staleAfter time.Duration) ([]domain.Diagnostic, error)
}

// DiagnosticsHandler surfaces store inconsistencies and stale prices.
// Findings are reported, never repaired from here.
type DiagnosticsHandler struct {
	source     DiagnosticsSource
	staleAfter time.Duration
	logger     *slog.Logger
}

// NewDiagnosticsHandler creates a DiagnosticsHandler.
func NewDiagnosticsHandler(source DiagnosticsSource, staleAfter time.Duration, logger *slog.Logger) *DiagnosticsHandler {
	return &DiagnosticsHandler{
		source:     source,
		staleAfter: staleAfter,
		logger:     logger.With(slog.String("handler", "diagnostics")),
	}
}

// GetDiagnostics runs the consistency scan.
func (h *DiagnosticsHandler) GetDiagnostics(w http.ResponseWriter, r *http.Request) {
	findings, err := h.source.Diagnostics(r.Context(), h.staleAfter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "diagnostics scan failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "diagnostics scan failed")
		return
	}
	if findings == nil {
		findings = []domain.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(findings),
		"findings": findings,
	})
}
