package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedSend struct {
	event   string
	title   string
	message string
}

type fakeSender struct {
	name  string
	fail  error
	sends []recordedSend
}

func (f *fakeSender) Send(_ context.Context, event, title, message string) error {
	f.sends = append(f.sends, recordedSend{event: event, title: title, message: message})
	return f.fail
}

func (f *fakeSender) Name() string { return f.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersByEventAllowlist(t *testing.T) {
	ctx := context.Background()
	s := &fakeSender{name: "fake"}
	n := New([]Sender{s}, []string{EventPositionClosed}, discardLogger())

	require.NoError(t, n.Notify(ctx, EventPositionOpened, "Opened", "x"))
	assert.Empty(t, s.sends)

	require.NoError(t, n.Notify(ctx, EventPositionClosed, "Closed", "y"))
	require.Len(t, s.sends, 1)
	assert.Equal(t, EventPositionClosed, s.sends[0].event)
	assert.Equal(t, "Closed", s.sends[0].title)
}

func TestNotifyAllBypassesFilter(t *testing.T) {
	ctx := context.Background()
	s := &fakeSender{name: "fake"}
	n := New([]Sender{s}, []string{EventDailySummary}, discardLogger())

	require.NoError(t, n.NotifyAll(ctx, "Shutting down", "bye"))
	require.Len(t, s.sends, 1)
	assert.Empty(t, s.sends[0].event)
}

func TestDispatchIsolatesSenderFailures(t *testing.T) {
	ctx := context.Background()
	bad := &fakeSender{name: "bad", fail: errors.New("http 502")}
	good := &fakeSender{name: "good"}
	n := New([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(ctx, EventPartialTP, "Partial", "sold a slice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	// The failing channel never blocks delivery to the healthy one.
	require.Len(t, good.sends, 1)
	assert.Equal(t, EventPartialTP, good.sends[0].event)
}

func TestEventBadgeCoversKnownEvents(t *testing.T) {
	assert.Equal(t, "🟢", eventBadge(EventPositionOpened))
	assert.Equal(t, "🔴", eventBadge(EventPositionClosed))
	assert.Equal(t, "ℹ️", eventBadge("something_else"))
}
