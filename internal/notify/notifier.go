// Package notify fans operational events out to the configured alert
// channels. Events can be filtered by type so an operator can subscribe to
// position closes without receiving every partial fill.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event types emitted by the bot.
const (
	EventPositionOpened  = "position_opened"
	EventPositionClosed  = "position_closed"
	EventPartialTP       = "partial_take_profit"
	EventWatcherDown     = "watcher_disconnected"
	EventDailySummary    = "daily_summary"
	EventArchiveComplete = "archive_complete"
)

// Sender is one delivery channel. The event type is passed through so a
// channel can adjust its formatting per event.
type Sender interface {
	Send(ctx context.Context, event, title, message string) error
	// Name identifies the channel in logs, e.g. "telegram".
	Name() string
}

// eventBadge prefixes chat messages so an operator can triage a busy feed at
// a glance.
func eventBadge(event string) string {
	switch event {
	case EventPositionOpened:
		return "🟢"
	case EventPositionClosed:
		return "🔴"
	case EventPartialTP:
		return "💰"
	case EventWatcherDown:
		return "⚠️"
	case EventDailySummary:
		return "📊"
	case EventArchiveComplete:
		return "🗄"
	default:
		return "ℹ️"
	}
}

// Notifier dispatches to every registered sender. With a non-empty event
// allowlist, Notify drops events outside the list; NotifyAll bypasses the
// filter for operator-critical messages.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	logger  *slog.Logger
}

// New creates a Notifier. An empty events slice allows every event type.
func New(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the message to all senders if the event type passes the
// allowlist.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.allowed) > 0 && !n.allowed[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, event, title, message)
}

// NotifyAll delivers to all senders regardless of the event filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, "", title, message)
}

// dispatch tries every sender; one channel failing never blocks the others.
func (n *Notifier) dispatch(ctx context.Context, event, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var failures []string
	for _, s := range n.senders {
		if err := s.Send(ctx, event, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			failures = append(failures, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(failures) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}
