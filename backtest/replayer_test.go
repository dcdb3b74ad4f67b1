package backtest

import (
	"context"
	"path/filepath"
	"testing"

	"broker_go/internal/domain"
	"broker_go/internal/engine"
	"broker_go/internal/event"
	"broker_go/internal/storage"
	"broker_go/pkg/quant"
)

// TestReplayReproducesLiveRun journals a live lifecycle, then replays
// it into a fresh dispatcher and checks the final states match.
func TestReplayReproducesLiveRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	store, err := storage.NewEventStore(dbPath)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer store.Close()

	newOrder := func() *domain.Order {
		o := domain.NewOrder("strat", "BTCUSDT", domain.SideBuy, domain.KindLimit, quant.QtyScale)
		o.LimitMicros = 50_000 * quant.PriceScale
		if !o.MarkSubmitted("ord-1", 1000) {
			t.Fatal("MarkSubmitted failed")
		}
		return o
	}

	// Live run: dispatcher journals while processing.
	live := engine.NewDispatcher(16, engine.NewRegistry(), store)
	if err := live.Registry().Register(newOrder()); err != nil {
		t.Fatalf("register: %v", err)
	}
	liveCtx, liveCancel := context.WithCancel(context.Background())
	go live.Run(liveCtx)

	seq := uint64(0)
	base := func() event.BaseEvent {
		return event.BaseEvent{Seq: quant.NextSeq(&seq), Ts: quant.TimeStamp(seq * 1000), BrokerID: "ord-1"}
	}
	live.Enqueue(&event.OrderNewEvent{BaseEvent: base()}, true)
	live.Enqueue(&event.OrderPartialFillEvent{BaseEvent: base(), PriceMicros: 50_000 * quant.PriceScale, QtySats: 40_000_000}, true)
	live.Enqueue(&event.OrderFillEvent{BaseEvent: base(), PriceMicros: 50_100 * quant.PriceScale, QtySats: 60_000_000}, true)
	liveCancel()

	liveOrder, _ := live.Registry().Get("ord-1")

	// Replay into a fresh engine with no journal attached.
	replay := engine.NewDispatcher(16, engine.NewRegistry(), nil)
	if err := replay.Registry().Register(newOrder()); err != nil {
		t.Fatalf("register: %v", err)
	}
	replayCtx, replayCancel := context.WithCancel(context.Background())
	defer replayCancel()
	go replay.Run(replayCtx)

	var callbackOrder []string
	for _, typ := range []event.Type{event.EvOrderNew, event.EvOrderPartialFill, event.EvOrderFill} {
		typ := typ
		replay.RegisterHandler(typ, func(o domain.Order) {
			callbackOrder = append(callbackOrder, typ.String())
		})
	}

	replayer := NewReplayerFromStore(store)
	n, err := replayer.RunReplay(context.Background(), replay)
	if err != nil {
		t.Fatalf("RunReplay failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("replayed %d events, want 3", n)
	}

	replayed, _ := replay.Registry().Get("ord-1")
	if replayed.Status != liveOrder.Status {
		t.Errorf("Status = %s, live was %s", replayed.Status, liveOrder.Status)
	}
	if replayed.FilledQtySats() != liveOrder.FilledQtySats() {
		t.Errorf("FilledQtySats = %d, live was %d", replayed.FilledQtySats(), liveOrder.FilledQtySats())
	}
	if replayed.AvgFillMicros() != liveOrder.AvgFillMicros() {
		t.Errorf("AvgFillMicros = %d, live was %d", replayed.AvgFillMicros(), liveOrder.AvgFillMicros())
	}
	if len(replayed.Transactions) != 2 {
		t.Errorf("Transactions = %d, want 2", len(replayed.Transactions))
	}

	// Drain-waiting enqueue makes callback order deterministic.
	want := []string{"ORDER_NEW", "ORDER_PARTIAL_FILL", "ORDER_FILL"}
	if len(callbackOrder) != 3 {
		t.Fatalf("callbacks = %v, want %v", callbackOrder, want)
	}
	for i := range want {
		if callbackOrder[i] != want[i] {
			t.Errorf("callbacks[%d] = %s, want %s", i, callbackOrder[i], want[i])
		}
	}
}
