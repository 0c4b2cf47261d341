package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/copybot/internal/domain"
	"github.com/alanyoungcy/copybot/internal/numeric"
)

// Notifier is the slice of the notification surface the consumer needs.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ConsumerConfig tunes the signal consumption loop.
type ConsumerConfig struct {
	BuySizeSol float64
	Slippage   float64
	Cooldown   time.Duration
	PollEvery  time.Duration
	BatchSize  int
}

// Consumer drains the inbound signal queue. Sell signals update the seller
// tracker read by the exit engine; buy signals update the buyer tracker,
// pass through admission, and on admit are executed and opened as positions.
// The queue is at-least-once, so every effect here is safe under redelivery.
type Consumer struct {
	queue     domain.SignalQueue
	tracker   domain.WalletTracker
	admission *Admission
	executor  domain.ExecutionAdapter
	positions domain.PositionStore
	cooldowns domain.CooldownTracker
	audit     domain.AuditStore // optional
	notifier  Notifier          // optional
	cfg       ConsumerConfig
	logger    *slog.Logger

	cursor string
}

// NewConsumer creates a Consumer. audit and notifier may be nil.
func NewConsumer(
	queue domain.SignalQueue,
	tracker domain.WalletTracker,
	admission *Admission,
	executor domain.ExecutionAdapter,
	positions domain.PositionStore,
	cooldowns domain.CooldownTracker,
	audit domain.AuditStore,
	notifier Notifier,
	cfg ConsumerConfig,
	logger *slog.Logger,
) *Consumer {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Consumer{
		queue:     queue,
		tracker:   tracker,
		admission: admission,
		executor:  executor,
		positions: positions,
		cooldowns: cooldowns,
		audit:     audit,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "signal_consumer")),
	}
}

// Run polls the queue until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("signal consumer started")
	defer c.logger.Info("signal consumer stopped")

	ticker := time.NewTicker(c.cfg.PollEvery)
	defer ticker.Stop()

	// Start from the beginning of the stream so signals enqueued while we
	// were down are still consumed; admission makes replays harmless.
	c.cursor = "0"

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			signals, cursor, err := c.queue.Read(ctx, c.cursor, c.cfg.BatchSize)
			if err != nil {
				c.logger.Warn("queue read failed", slog.String("error", err.Error()))
				continue
			}
			c.cursor = cursor
			for _, sig := range signals {
				c.process(ctx, sig)
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, sig domain.Signal) {
	log := c.logger.With(
		slog.String("signal_id", sig.ID),
		slog.String("mint", sig.Mint),
		slog.String("wallet", sig.Wallet),
		slog.String("tx_type", string(sig.TxType)),
	)

	switch sig.TxType {
	case domain.TxSell:
		if err := c.tracker.MarkSeller(ctx, sig.Mint, sig.Wallet); err != nil {
			log.Warn("seller mark failed", slog.String("error", err.Error()))
		}
	case domain.TxBuy:
		c.processBuy(ctx, sig, log)
	}
}

func (c *Consumer) processBuy(ctx context.Context, sig domain.Signal, log *slog.Logger) {
	if err := c.tracker.MarkBuyer(ctx, sig.Mint, sig.Wallet); err != nil {
		log.Warn("buyer mark failed", slog.String("error", err.Error()))
	}

	// Corroboration is the live buyer-set size, which includes this signal.
	if count, err := c.tracker.BuyerCount(ctx, sig.Mint); err == nil && count > sig.CorroborationCount {
		sig.CorroborationCount = count
	}

	admission, err := c.admission.EvaluateBuy(ctx, sig)
	if err != nil {
		log.Error("admission evaluate failed", slog.String("error", err.Error()))
		return
	}
	c.auditLog(ctx, "buy_signal", map[string]any{
		"mint":       sig.Mint,
		"wallet":     sig.Wallet,
		"admit":      admission.Admit,
		"reason":     admission.Reason,
		"confidence": string(admission.Confidence),
	})
	if !admission.Admit {
		return
	}

	result, err := c.executor.Buy(ctx, sig.Mint, c.cfg.BuySizeSol, sig.Venue)
	if err != nil {
		log.Error("buy execution failed", slog.String("error", err.Error()))
		return
	}
	if !result.Success {
		log.Warn("buy rejected by venue", slog.String("error", result.Error))
		return
	}

	err = c.positions.Open(ctx, domain.OpenRequest{
		Mint:         sig.Mint,
		Strategy:     domain.StrategyCopy,
		SourceWallet: sig.Wallet,
		EntryPrice:   result.EffectivePrice,
		SolSpent:     c.cfg.BuySizeSol,
		TokensAmount: result.TokensReceived,
		Venue:        result.Venue,
		Simulated:    c.executor.Simulated(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicatePosition) {
			// A racing signal for the same mint won; nothing to roll back in
			// simulation, and a live double-buy is surfaced for the operator.
			log.Warn("position already open after buy", slog.String("tx", result.Signature))
			return
		}
		log.Error("position open failed", slog.String("error", err.Error()))
		return
	}

	if err := c.cooldowns.SetCooldown(ctx, sig.Mint, c.cfg.Cooldown); err != nil {
		log.Warn("cooldown set failed", slog.String("error", err.Error()))
	}

	log.Info("position opened",
		slog.Float64("entry_price", result.EffectivePrice),
		slog.Float64("tokens", result.TokensReceived),
		slog.String("confidence", string(admission.Confidence)),
	)
	c.notify(ctx, "position_opened", "Position opened",
		fmt.Sprintf("%s: %.4f SOL at %.10f (%s confidence, copied %s)",
			sig.Mint, c.cfg.BuySizeSol,
			numeric.SafeNumber(result.EffectivePrice, 0),
			admission.Confidence, sig.Wallet))
}

func (c *Consumer) auditLog(ctx context.Context, event string, detail map[string]any) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Log(ctx, event, detail); err != nil {
		c.logger.Debug("audit log failed", slog.String("error", err.Error()))
	}
}

func (c *Consumer) notify(ctx context.Context, event, title, message string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, event, title, message); err != nil {
		c.logger.Debug("notification failed", slog.String("error", err.Error()))
	}
}
