package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/copybot/internal/domain"
	"github.com/alanyoungcy/copybot/internal/numeric"
)

// StatusHandler serves the aggregate operational snapshot.
type StatusHandler struct {
	positions domain.PositionStore
	queue     domain.SignalQueue // optional
	mode      string
	tracked   int
	startedAt time.Time
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler. queue may be nil.
func NewStatusHandler(
	positions domain.PositionStore,
	queue domain.SignalQueue,
	mode string,
	trackedWallets int,
	logger *slog.Logger,
) *StatusHandler {
	return &StatusHandler{
		positions: positions,
		queue:     queue,
		mode:      mode,
		tracked:   trackedWallets,
		startedAt: time.Now().UTC(),
		logger:    logger.With(slog.String("handler", "status")),
	}
}

// GetStatus returns counts and a per-position summary of the open book.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	open, err := h.positions.GetOpen(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "open positions read failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "position store unavailable")
		return
	}

	status := domain.BotStatus{
		Mode:           h.mode,
		UptimeSeconds:  int64(now.Sub(h.startedAt).Seconds()),
		OpenPositions:  len(open),
		TrackedWallets: h.tracked,
		Positions:      make([]domain.PositionSummary, 0, len(open)),
	}

	if h.queue != nil {
		pending, err := h.queue.Pending(ctx)
		if err != nil {
			h.logger.WarnContext(ctx, "pending signal count failed", slog.String("error", err.Error()))
		} else {
			status.PendingSignals = pending
		}
	}

	for _, p := range open {
		entry := p.AvgEntryPrice()
		pnl := 0.0
		if p.LastPrice > 0 {
			pnl = numeric.SafePercent(p.LastPrice, entry, 0)
		}
		status.Positions = append(status.Positions, domain.PositionSummary{
			Mint:          p.Mint,
			Strategy:      p.Strategy,
			SourceWallet:  p.SourceWallet,
			EntryPrice:    entry,
			LastPrice:     p.LastPrice,
			MaxPrice:      p.MaxPrice,
			PnLPercent:    pnl,
			MaxPnLPercent: p.MaxPnLPercent,
			SolSpent:      p.SolSpent,
			HeldFor:       p.HoldDuration(now).Round(time.Second).String(),
			PartialStage:  p.PartialStage,
			OpenedAt:      p.OpenedAt,
		})
	}

	writeJSON(w, http.StatusOK, status)
}
