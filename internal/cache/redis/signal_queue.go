package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/copybot/internal/domain"
)

const (
	signalStream = "signals:inbound"
	// signalMaxLen is the approximate maximum stream length, enforced via
	// XADD MAXLEN ~.
	signalMaxLen int64 = 10000
)

// SignalQueue implements domain.SignalQueue using a Redis stream. Delivery
// is at-least-once: a consumer that crashes after reading re-reads from its
// last committed cursor, so admission control must tolerate redelivery.
type SignalQueue struct {
	rdb *redis.Client
}

// NewSignalQueue creates a SignalQueue backed by the given Client.
func NewSignalQueue(c *Client) *SignalQueue {
	return &SignalQueue{rdb: c.Underlying()}
}

// Enqueue appends a normalized signal to the inbound stream.
func (q *SignalQueue) Enqueue(ctx context.Context, sig domain.Signal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("redis: marshal signal: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: signalStream,
		MaxLen: signalMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}
	if err := q.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: enqueue signal: %w", err)
	}
	return nil
}

// Read returns up to count signals after lastID along with the new cursor.
// Use "0" to read from the beginning or "$" for only new entries. An empty
// result with the unchanged cursor means nothing is pending.
func (q *SignalQueue) Read(ctx context.Context, lastID string, count int) ([]domain.Signal, string, error) {
	if lastID == "" {
		lastID = "0"
	}
	args := &redis.XReadArgs{
		Streams: []string{signalStream, lastID},
		Count:   int64(count),
		Block:   -1,
	}
	results, err := q.rdb.XRead(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, lastID, nil
		}
		return nil, lastID, fmt.Errorf("redis: read signals: %w", err)
	}

	cursor := lastID
	var signals []domain.Signal
	for _, s := range results {
		for _, msg := range s.Messages {
			cursor = msg.ID
			raw, ok := msg.Values["payload"]
			if !ok {
				continue
			}
			var data []byte
			switch v := raw.(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				continue
			}
			var sig domain.Signal
			if err := json.Unmarshal(data, &sig); err != nil {
				continue
			}
			signals = append(signals, sig)
		}
	}
	return signals, cursor, nil
}

// Pending returns the current stream length.
func (q *SignalQueue) Pending(ctx context.Context) (int64, error) {
	n, err := q.rdb.XLen(ctx, signalStream).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: signal stream length: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.SignalQueue = (*SignalQueue)(nil)
