package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// LogParser turns one raw log notification into zero or more loosely-typed
// signal payloads for Normalize. Implementations own the venue-specific
// transaction heuristics; the watcher only owns the connection.
type LogParser interface {
	Parse(wallet string, payload []byte) []map[string]any
}

// WalletWatcher subscribes to log notifications for each tracked wallet over
// the Solana websocket endpoint and enqueues every parsed, normalized signal.
// It reconnects with backoff on disconnect and keeps the connection alive
// with pings.
type WalletWatcher struct {
	wsURL    string
	wallets  []string
	parser   LogParser
	queue    domain.SignalQueue
	notifier Notifier // optional
	logger   *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewWalletWatcher creates a watcher for the given tracked wallets.
func NewWalletWatcher(wsURL string, wallets []string, parser LogParser, queue domain.SignalQueue, logger *slog.Logger) *WalletWatcher {
	return &WalletWatcher{
		wsURL:   wsURL,
		wallets: wallets,
		parser:  parser,
		queue:   queue,
		logger:  logger.With(slog.String("component", "wallet_watcher")),
		done:    make(chan struct{}),
	}
}

// WithNotifier enables disconnect notifications.
func (w *WalletWatcher) WithNotifier(n Notifier) *WalletWatcher {
	w.notifier = n
	return w
}

// Run connects and consumes notifications until ctx is cancelled,
// reconnecting with a growing delay after each failure.
func (w *WalletWatcher) Run(ctx context.Context) error {
	if len(w.wallets) == 0 {
		w.logger.Info("no tracked wallets, watcher idle")
		<-ctx.Done()
		return ctx.Err()
	}

	delay := 2 * time.Second
	const maxDelay = 30 * time.Second
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		default:
		}

		err := w.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Warn("wallet watcher disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		if w.notifier != nil {
			_ = w.notifier.Notify(ctx, "watcher_disconnected", "Watcher disconnected", err.Error())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay < maxDelay {
			delay *= 2
		}
	}
}

// Close stops the watcher after the current connection attempt.
func (w *WalletWatcher) Close() {
	w.closeOnce.Do(func() { close(w.done) })
}

func (w *WalletWatcher) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("intake: dial %s: %w", w.wsURL, err)
	}
	defer conn.Close()

	subIDs := make(map[int]string, len(w.wallets))
	for i, wallet := range w.wallets {
		id := i + 1
		sub := map[string]any{
			"jsonrpc": "2.0",
			"id":      id,
			"method":  "logsSubscribe",
			"params": []any{
				map[string]any{"mentions": []string{wallet}},
				map[string]any{"commitment": "confirmed"},
			},
		}
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("intake: subscribe %s: %w", wallet, err)
		}
		subIDs[id] = wallet
	}
	w.logger.Info("wallet subscriptions established", slog.Int("wallets", len(w.wallets)))

	// Close the connection when ctx ends so ReadMessage unblocks.
	go func() {
		select {
		case <-ctx.Done():
		case <-w.done:
		}
		_ = conn.Close()
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-pingTicker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	// Subscription id -> wallet, filled in from confirmation replies.
	walletBySub := make(map[int64]string)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("intake: read: %w", domain.ErrWSDisconnect)
		}

		var envelope struct {
			ID     int   `json:"id"`
			Result int64 `json:"result"`
			Params struct {
				Subscription int64 `json:"subscription"`
			} `json:"params"`
			Method string `json:"method"`
		}
		if err := json.Unmarshal(payload, &envelope); err != nil {
			continue
		}

		if envelope.ID != 0 {
			if wallet, ok := subIDs[envelope.ID]; ok {
				walletBySub[envelope.Result] = wallet
			}
			continue
		}
		if envelope.Method != "logsNotification" {
			continue
		}
		wallet := walletBySub[envelope.Params.Subscription]
		if wallet == "" {
			continue
		}

		for _, raw := range w.parser.Parse(wallet, payload) {
			sig, err := Normalize(raw)
			if err != nil {
				w.logger.Debug("dropped malformed payload",
					slog.String("wallet", wallet),
					slog.String("error", err.Error()),
				)
				continue
			}
			if err := w.queue.Enqueue(ctx, sig); err != nil {
				w.logger.Warn("signal enqueue failed",
					slog.String("mint", sig.Mint),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
