// Package backtest replays a journaled event stream through a live
// dispatcher. "Backtest is Reality": the replayed sequence is the
// exact sequence the live run processed, so a strategy sees identical
// callbacks in identical order.
package backtest

import (
	"context"
	"fmt"
	"log/slog"

	"broker_go/internal/engine"
	"broker_go/internal/storage"
)

// Replayer reads event logs from SQLite and feeds them into a dispatcher.
type Replayer struct {
	store *storage.EventStore
}

// NewReplayer opens the journal at dbPath.
func NewReplayer(dbPath string) (*Replayer, error) {
	store, err := storage.NewEventStore(dbPath)
	if err != nil {
		return nil, err
	}
	return &Replayer{store: store}, nil
}

// NewReplayerFromStore wraps an already-open journal.
func NewReplayerFromStore(store *storage.EventStore) *Replayer {
	return &Replayer{store: store}
}

// RunReplay feeds every journaled event into the dispatcher in
// sequence order, draining after each one. Dispatch becomes fully
// synchronous: when RunReplay returns, the registry and every strategy
// callback reflect the complete stream.
//
// The orders the events reference must already be registered; replay
// reproduces lifecycle, it does not reproduce submissions.
func (r *Replayer) RunReplay(ctx context.Context, d *engine.Dispatcher) (int, error) {
	events, err := r.store.LoadEvents(ctx, 1)
	if err != nil {
		return 0, fmt.Errorf("failed to load journal: %w", err)
	}

	for i, ev := range events {
		select {
		case <-ctx.Done():
			return i, ctx.Err()
		default:
		}
		d.Enqueue(ev, true)
	}

	slog.Info("Replay complete", slog.Int("events", len(events)))
	return len(events), nil
}

// Close releases the underlying journal.
func (r *Replayer) Close() error {
	return r.store.Close()
}
