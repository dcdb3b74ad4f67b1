package broker

import (
	"context"
	"errors"
	"testing"

	"broker_go/internal/domain"
	"broker_go/internal/engine"
	"broker_go/internal/event"
	"broker_go/pkg/quant"
)

type paperHarness struct {
	paper      *Paper
	dispatcher *engine.Dispatcher
	session    *Session
}

func newPaperHarness(t *testing.T) *paperHarness {
	t.Helper()

	d := engine.NewDispatcher(64, engine.NewRegistry(), nil)
	var seq uint64
	paper := NewPaper(d, &seq)

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	t.Cleanup(cancel)

	return &paperHarness{paper: paper, dispatcher: d, session: NewSession(paper, d)}
}

// drain blocks until everything enqueued before it has been applied.
func (h *paperHarness) drain(t *testing.T) {
	t.Helper()
	h.dispatcher.Enqueue(&event.OrderNewEvent{
		BaseEvent: event.BaseEvent{BrokerID: "flush-sentinel"},
	}, true)
}

func TestSessionSubmitRegistersOrder(t *testing.T) {
	h := newPaperHarness(t)

	o := domain.NewOrder("strat", "BTCUSDT", domain.SideBuy, domain.KindMarket, quant.QtyScale)
	if err := h.session.Submit(context.Background(), o); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if o.Status != domain.StatusSubmitted {
		t.Errorf("Status = %s, want SUBMITTED", o.Status)
	}
	if o.BrokerID == "" {
		t.Fatal("no broker ID assigned")
	}
	if _, ok := h.dispatcher.Registry().Get(o.BrokerID); !ok {
		t.Error("order not registered after successful submit")
	}
}

func TestSessionSubmitRejectionNeverRegisters(t *testing.T) {
	h := newPaperHarness(t)
	h.paper.FailNextSubmit("insufficient balance")

	o := domain.NewOrder("strat", "BTCUSDT", domain.SideBuy, domain.KindMarket, quant.QtyScale)
	err := h.session.Submit(context.Background(), o)
	if err == nil {
		t.Fatal("expected rejection")
	}

	var se *SubmissionError
	if !errors.As(err, &se) {
		t.Fatalf("error type = %T, want *SubmissionError", err)
	}
	if o.Status != domain.StatusRejected {
		t.Errorf("Status = %s, want REJECTED", o.Status)
	}
	if o.LastError == "" {
		t.Error("LastError not recorded")
	}
	if h.dispatcher.Registry().Len() != 0 {
		t.Error("rejected order must not be registered")
	}
}

// The caller keeps a detached snapshot after Submit: the dispatch
// loop mutates only the registered copy, so reading the submitted
// order while events stream is safe.
func TestSessionSubmitDetachedFromDispatch(t *testing.T) {
	h := newPaperHarness(t)

	o := domain.NewOrder("strat", "BTCUSDT", domain.SideBuy, domain.KindMarket, quant.QtyScale)
	if err := h.session.Submit(context.Background(), o); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Read the caller's copy concurrently with the fill stream; under
	// the race detector a shared pointer would fail here.
	stop := make(chan struct{})
	go func() {
		defer close(stop)
		for i := 0; i < 1000; i++ {
			_ = o.Status
			_ = len(o.Transactions)
		}
	}()

	if err := h.paper.Fill(o.BrokerID, 100*quant.PriceScale, 40_000_000); err != nil {
		t.Fatalf("partial Fill failed: %v", err)
	}
	if err := h.paper.Fill(o.BrokerID, 100*quant.PriceScale, 60_000_000); err != nil {
		t.Fatalf("closing Fill failed: %v", err)
	}
	<-stop
	h.drain(t)

	if o.Status != domain.StatusSubmitted {
		t.Errorf("caller's copy mutated to %s, want SUBMITTED", o.Status)
	}
	if len(o.Transactions) != 0 {
		t.Errorf("caller's copy accumulated %d transactions", len(o.Transactions))
	}
	tracked, ok := h.session.Order(o.BrokerID)
	if !ok {
		t.Fatal("order not tracked")
	}
	if tracked.Status != domain.StatusFilled {
		t.Errorf("tracked Status = %s, want FILLED", tracked.Status)
	}
}

// The paper New ack must land after registration; an ack processed
// first would be dropped as unknown and strand the order in SUBMITTED.
func TestPaperAckFollowsRegistration(t *testing.T) {
	h := newPaperHarness(t)

	o := domain.NewOrder("strat", "BTCUSDT", domain.SideBuy, domain.KindMarket, quant.QtyScale)
	if err := h.session.Submit(context.Background(), o); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	h.drain(t)

	tracked, _ := h.session.Order(o.BrokerID)
	if tracked.Status != domain.StatusNew {
		t.Errorf("Status = %s, want NEW (ack delivered after registration)", tracked.Status)
	}
}

func TestSessionSubmitValidatesState(t *testing.T) {
	h := newPaperHarness(t)

	o := domain.NewOrder("strat", "BTCUSDT", domain.SideBuy, domain.KindMarket, quant.QtyScale)
	if err := h.session.Submit(context.Background(), o); err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}
	if err := h.session.Submit(context.Background(), o); err == nil {
		t.Error("re-submitting an already submitted order must fail")
	}
}

func TestPaperScriptedLifecycle(t *testing.T) {
	h := newPaperHarness(t)

	o := domain.NewOrder("strat", "BTCUSDT", domain.SideBuy, domain.KindLimit, quant.QtyScale)
	o.LimitMicros = 50_000 * quant.PriceScale
	if err := h.session.Submit(context.Background(), o); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := h.paper.Fill(o.BrokerID, 50_000*quant.PriceScale, 40_000_000); err != nil {
		t.Fatalf("partial Fill failed: %v", err)
	}
	if err := h.paper.Fill(o.BrokerID, 50_100*quant.PriceScale, 60_000_000); err != nil {
		t.Fatalf("closing Fill failed: %v", err)
	}
	h.drain(t)

	final, _ := h.dispatcher.Registry().Get(o.BrokerID)
	if final.Status != domain.StatusFilled {
		t.Errorf("Status = %s, want FILLED", final.Status)
	}
	if final.FilledQtySats() != quant.QtyScale {
		t.Errorf("FilledQtySats = %d, want %d", final.FilledQtySats(), quant.QtyScale)
	}
}

func TestPaperOverfillRejected(t *testing.T) {
	h := newPaperHarness(t)

	o := domain.NewOrder("strat", "BTCUSDT", domain.SideBuy, domain.KindMarket, quant.QtyScale)
	if err := h.session.Submit(context.Background(), o); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := h.paper.Fill(o.BrokerID, 100*quant.PriceScale, 2*quant.QtyScale); err == nil {
		t.Error("fill beyond order quantity must fail")
	}
}

func TestPaperCancel(t *testing.T) {
	h := newPaperHarness(t)

	o := domain.NewOrder("strat", "BTCUSDT", domain.SideSell, domain.KindMarket, quant.QtyScale)
	if err := h.session.Submit(context.Background(), o); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	h.session.Cancel(context.Background(), o.BrokerID)
	h.drain(t)

	final, _ := h.dispatcher.Registry().Get(o.BrokerID)
	if final.Status != domain.StatusCanceled {
		t.Errorf("Status = %s, want CANCELED", final.Status)
	}

	// Cancel on a terminal order is a silent no-op.
	h.session.Cancel(context.Background(), o.BrokerID)
}

func TestPaperSubmitValidation(t *testing.T) {
	h := newPaperHarness(t)

	cases := []struct {
		name  string
		order *domain.Order
	}{
		{"zero quantity", domain.NewOrder("strat", "BTCUSDT", domain.SideBuy, domain.KindMarket, 0)},
		{"missing symbol", domain.NewOrder("strat", "", domain.SideBuy, domain.KindMarket, quant.QtyScale)},
		{"limit without price", domain.NewOrder("strat", "BTCUSDT", domain.SideBuy, domain.KindLimit, quant.QtyScale)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := h.session.Submit(context.Background(), tc.order); err == nil {
				t.Error("expected validation error")
			}
			if tc.order.Status != domain.StatusRejected {
				t.Errorf("Status = %s, want REJECTED", tc.order.Status)
			}
		})
	}
}
