package storage

import (
	"context"
	"path/filepath"
	"testing"

	"broker_go/internal/event"
	"broker_go/pkg/quant"
)

func newTestStore(t *testing.T) *EventStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "events.db")
	store, err := NewEventStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEventStore_SaveAndLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	events := []event.Event{
		&event.OrderNewEvent{
			BaseEvent: event.BaseEvent{Seq: 1, Ts: quant.TimeStamp(1000), BrokerID: "ord-1"},
		},
		&event.OrderPartialFillEvent{
			BaseEvent:   event.BaseEvent{Seq: 2, Ts: quant.TimeStamp(2000), BrokerID: "ord-1"},
			PriceMicros: 50_000_000_000,
			QtySats:     40_000_000,
		},
		&event.OrderFillEvent{
			BaseEvent:   event.BaseEvent{Seq: 3, Ts: quant.TimeStamp(3000), BrokerID: "ord-1"},
			PriceMicros: 50_100_000_000,
			QtySats:     60_000_000,
		},
	}
	for _, ev := range events {
		if err := store.SaveEvent(ctx, ev); err != nil {
			t.Fatalf("Failed to save seq %d: %v", ev.GetSeq(), err)
		}
	}

	loaded, err := store.LoadEvents(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to load events: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(loaded))
	}

	// Concrete types must round-trip, not just the interface.
	if _, ok := loaded[0].(*event.OrderNewEvent); !ok {
		t.Errorf("loaded[0] type = %T, want *OrderNewEvent", loaded[0])
	}
	pf, ok := loaded[1].(*event.OrderPartialFillEvent)
	if !ok {
		t.Fatalf("loaded[1] type = %T, want *OrderPartialFillEvent", loaded[1])
	}
	if pf.PriceMicros != 50_000_000_000 || pf.QtySats != 40_000_000 {
		t.Errorf("partial fill payload lost: %+v", pf)
	}
	if loaded[2].GetBrokerID() != "ord-1" || loaded[2].GetSeq() != 3 {
		t.Errorf("loaded[2] identity wrong: seq=%d id=%s", loaded[2].GetSeq(), loaded[2].GetBrokerID())
	}
}

func TestEventStore_LoadFromCursor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for seq := uint64(1); seq <= 5; seq++ {
		ev := &event.OrderNewEvent{
			BaseEvent: event.BaseEvent{Seq: seq, Ts: quant.TimeStamp(seq * 1000), BrokerID: "ord-1"},
		}
		if err := store.SaveEvent(ctx, ev); err != nil {
			t.Fatalf("Failed to save: %v", err)
		}
	}

	loaded, err := store.LoadEvents(ctx, 4)
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if len(loaded) != 2 || loaded[0].GetSeq() != 4 {
		t.Fatalf("cursor load wrong: %d events, first seq %d", len(loaded), loaded[0].GetSeq())
	}
}

func TestEventStore_GetLastSeq(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seq, err := store.GetLastSeq(ctx)
	if err != nil {
		t.Fatalf("GetLastSeq failed: %v", err)
	}
	if seq != 0 {
		t.Errorf("Empty store last seq = %d, want 0", seq)
	}

	ev := &event.OrderCancelEvent{
		BaseEvent: event.BaseEvent{Seq: 42, Ts: quant.TimeStamp(1000), BrokerID: "ord-9"},
	}
	if err := store.SaveEvent(ctx, ev); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	seq, err = store.GetLastSeq(ctx)
	if err != nil {
		t.Fatalf("GetLastSeq failed: %v", err)
	}
	if seq != 42 {
		t.Errorf("Last seq = %d, want 42", seq)
	}
}

func TestEventStore_DuplicateSeqRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ev := &event.OrderNewEvent{
		BaseEvent: event.BaseEvent{Seq: 7, Ts: quant.TimeStamp(1000), BrokerID: "ord-1"},
	}
	if err := store.SaveEvent(ctx, ev); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if err := store.SaveEvent(ctx, ev); err == nil {
		t.Error("duplicate sequence insert should fail")
	}
}

func TestEventStore_Metadata(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertMetadata(ctx, "run_id", "alpha", 1000); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.UpsertMetadata(ctx, "run_id", "beta", 2000); err != nil {
		t.Fatalf("Upsert (update) failed: %v", err)
	}

	value, err := store.GetMetadata(ctx, "run_id")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if value != "beta" {
		t.Errorf("value = %q, want beta", value)
	}

	missing, err := store.GetMetadata(ctx, "nope")
	if err != nil {
		t.Fatalf("GetMetadata(missing) failed: %v", err)
	}
	if missing != "" {
		t.Errorf("missing key returned %q", missing)
	}
}
