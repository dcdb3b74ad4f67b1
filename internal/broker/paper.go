package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"broker_go/internal/domain"
	"broker_go/internal/engine"
	"broker_go/internal/event"
	"broker_go/pkg/quant"
	"broker_go/pkg/safe"

	"github.com/google/uuid"
)

// Paper is an in-memory broker used for paper trading mode, backtests
// and tests. It keeps its own broker-side book (the "exchange truth")
// and emits lifecycle events into the dispatcher exactly like a real
// push vendor would. Fills are scripted by the caller.
type Paper struct {
	dispatcher *engine.Dispatcher
	seq        *uint64

	mu       sync.Mutex
	book     map[string]*SnapshotRow
	ack      bool   // emit New on Ack
	failNext string // scripted synchronous rejection
}

// NewPaper creates a paper broker feeding the given dispatcher.
func NewPaper(d *engine.Dispatcher, seq *uint64) *Paper {
	return &Paper{
		dispatcher: d,
		seq:        seq,
		book:       make(map[string]*SnapshotRow),
		ack:        true,
	}
}

// SetAutoAck controls whether Ack emits the New event. Disable it to
// drive the lifecycle via snapshots instead.
func (p *Paper) SetAutoAck(ack bool) { p.ack = ack }

// FailNextSubmit scripts a synchronous rejection for the next Submit.
func (p *Paper) FailNextSubmit(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = reason
}

func (p *Paper) Name() string { return "PAPER" }

// Submit acknowledges the order with a fresh uuid broker ID.
func (p *Paper) Submit(ctx context.Context, order domain.Order) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failNext != "" {
		reason := p.failNext
		p.failNext = ""
		return "", &SubmissionError{Broker: p.Name(), Reason: reason}
	}
	if order.QtySats <= 0 {
		return "", &SubmissionError{Broker: p.Name(), Reason: "quantity must be positive"}
	}
	if order.Symbol == "" {
		return "", &SubmissionError{Broker: p.Name(), Reason: "missing symbol"}
	}
	if order.Kind == domain.KindLimit && order.LimitMicros <= 0 {
		return "", &SubmissionError{Broker: p.Name(), Reason: "limit order requires a limit price"}
	}

	brokerID := uuid.NewString()
	p.book[brokerID] = &SnapshotRow{
		BrokerID: brokerID,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Kind:     order.Kind,
		Status:   domain.StatusSubmitted,
		QtySats:  order.QtySats,
	}

	slog.Info("PAPER: Order accepted",
		slog.String("broker_id", brokerID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)))
	return brokerID, nil
}

// Ack moves a submitted paper order onto the book and emits New. The
// session calls it after registry insertion, so the ack cannot reach
// the dispatch loop before the order exists there.
func (p *Paper) Ack(brokerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ack {
		return
	}
	row, ok := p.book[brokerID]
	if !ok || row.Status != domain.StatusSubmitted {
		return
	}
	row.Status = domain.StatusNew
	p.enqueue(&event.OrderNewEvent{BaseEvent: p.base(brokerID)})
}

// Cancel removes an open order from the paper book and emits Cancel.
func (p *Paper) Cancel(ctx context.Context, brokerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	row, ok := p.book[brokerID]
	if !ok {
		return fmt.Errorf("order not found: %s", brokerID)
	}
	if row.Status.IsTerminal() {
		return fmt.Errorf("cannot cancel %s order: %s", row.Status, brokerID)
	}

	row.Status = domain.StatusCanceled
	p.enqueue(&event.OrderCancelEvent{BaseEvent: p.base(brokerID)})
	return nil
}

// Fill scripts one execution against an open paper order and emits the
// matching PartialFill or Fill event.
func (p *Paper) Fill(brokerID string, price quant.PriceMicros, qty quant.QtySats) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	row, ok := p.book[brokerID]
	if !ok {
		return fmt.Errorf("order not found: %s", brokerID)
	}
	if row.Status.IsTerminal() || row.Status == domain.StatusSubmitted {
		return fmt.Errorf("order %s not fillable (status %s)", brokerID, row.Status)
	}

	filled := safe.SafeAdd(int64(row.FilledQtySats), int64(qty))
	if filled > int64(row.QtySats) {
		return fmt.Errorf("fill exceeds order quantity: %d > %d", filled, row.QtySats)
	}
	row.FilledQtySats = quant.QtySats(filled)
	// Weighted average is good enough for a paper book.
	row.AvgPriceMicros = price

	if row.FilledQtySats == row.QtySats {
		row.Status = domain.StatusFilled
		ev := event.AcquireOrderFillEvent()
		ev.BaseEvent = p.base(brokerID)
		ev.PriceMicros = price
		ev.QtySats = qty
		p.enqueue(ev)
	} else {
		row.Status = domain.StatusPartiallyFilled
		ev := event.AcquireOrderPartialFillEvent()
		ev.BaseEvent = p.base(brokerID)
		ev.PriceMicros = price
		ev.QtySats = qty
		p.enqueue(ev)
	}
	return nil
}

// Reject scripts a broker-side error on an open order.
func (p *Paper) Reject(brokerID, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	row, ok := p.book[brokerID]
	if !ok {
		return fmt.Errorf("order not found: %s", brokerID)
	}
	row.Status = domain.StatusCanceled
	p.enqueue(&event.OrderErrorEvent{BaseEvent: p.base(brokerID), Message: message})
	return nil
}

// FetchSnapshot returns the paper book, satisfying Pollable so the
// reconciler can be tested end to end without a live vendor.
func (p *Paper) FetchSnapshot(ctx context.Context) ([]SnapshotRow, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rows := make([]SnapshotRow, 0, len(p.book))
	for _, row := range p.book {
		rows = append(rows, *row)
	}
	return rows, nil
}

// Seed places a row directly on the paper book without a Submit,
// simulating an order placed outside this process.
func (p *Paper) Seed(row SnapshotRow) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := row
	p.book[row.BrokerID] = &cp
}

func (p *Paper) base(brokerID string) event.BaseEvent {
	return event.BaseEvent{
		Seq:      quant.NextSeq(p.seq),
		Ts:       quant.TimeStamp(time.Now().UnixMicro()),
		BrokerID: brokerID,
	}
}

func (p *Paper) enqueue(ev event.Event) {
	if !p.dispatcher.Enqueue(ev, false) {
		switch e := ev.(type) {
		case *event.OrderPartialFillEvent:
			event.ReleaseOrderPartialFillEvent(e)
		case *event.OrderFillEvent:
			event.ReleaseOrderFillEvent(e)
		}
	}
}
