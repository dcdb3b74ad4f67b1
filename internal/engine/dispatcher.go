package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"broker_go/internal/domain"
	"broker_go/internal/event"
)

// Handler is a strategy callback for one event tag. It receives a copy
// of the order after the registry mutation has been fully applied.
type Handler func(domain.Order)

// Journal persists the event stream for deterministic replay.
// *storage.EventStore satisfies this; backtests may pass nil.
type Journal interface {
	SaveEvent(ctx context.Context, ev event.Event) error
}

type queuedEvent struct {
	ev   event.Event
	done chan struct{} // non-nil only for drain-waiting enqueues
}

// Dispatcher is the single consumer of the bounded event inbox.
// Channels (push workers, the reconciler, the paper broker) produce
// into the inbox; Run drains it, mutates the registry and invokes the
// registered handler for the event's tag. One dispatcher per broker
// connection; Run must be run in exactly one goroutine.
type Dispatcher struct {
	inbox    chan queuedEvent
	registry *Registry
	journal  Journal

	handlersMu sync.RWMutex
	handlers   map[event.Type]Handler

	// Closed when Run exits, so drain-mode waiters can never hang on a
	// dispatcher that has stopped consuming.
	stopped chan struct{}

	dropped atomic.Uint64
}

// NewDispatcher creates a dispatcher with a bounded inbox.
func NewDispatcher(inboxSize int, reg *Registry, journal Journal) *Dispatcher {
	return &Dispatcher{
		inbox:    make(chan queuedEvent, inboxSize),
		registry: reg,
		journal:  journal,
		handlers: make(map[event.Type]Handler),
		stopped:  make(chan struct{}),
	}
}

// Registry exposes the order registry for reads (strategy queries,
// reconciler diffs).
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// RegisterHandler binds a callback to one event tag. Tags without a
// handler are processed (registry still mutates) and silently skipped.
func (d *Dispatcher) RegisterHandler(t event.Type, h Handler) {
	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()
	d.handlers[t] = h
}

// Enqueue places an event on the inbox.
//
// waitUntilDrained=false is the live path: if the inbox is full the
// event is dropped with a warning rather than blocking the producer.
// A producer is usually a network-read goroutine and must never stall
// behind a slow consumer. The return value reports acceptance so
// pooled events can be released by the caller on drop.
//
// waitUntilDrained=true blocks until this event and everything
// enqueued before it has been fully applied, or returns false once
// the dispatcher has stopped. Backtests use this to make dispatch
// synchronous under a simulated clock; live trading never does.
func (d *Dispatcher) Enqueue(ev event.Event, waitUntilDrained bool) bool {
	if waitUntilDrained {
		done := make(chan struct{})
		select {
		case d.inbox <- queuedEvent{ev: ev, done: done}:
		case <-d.stopped:
			return false
		}
		select {
		case <-done:
			return true
		case <-d.stopped:
			return false
		}
	}

	select {
	case d.inbox <- queuedEvent{ev: ev}:
		return true
	default:
		d.dropped.Add(1)
		slog.Warn("INBOX_FULL_EVENT_DROPPED",
			slog.String("type", ev.GetType().String()),
			slog.String("broker_id", ev.GetBrokerID()),
			slog.Uint64("dropped_total", d.dropped.Load()))
		return false
	}
}

// DroppedEvents returns the number of events dropped on overflow.
func (d *Dispatcher) DroppedEvents() uint64 {
	return d.dropped.Load()
}

// Run starts the dispatch loop. Blocks until ctx is canceled; on exit
// it releases any drain waiters still queued without applying their
// events.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Dispatcher started (single-consumer loop)")

	for {
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher stopping...")
			d.shutdown()
			return
		case item := <-d.inbox:
			d.process(item.ev)
			if item.done != nil {
				close(item.done)
			}
		}
	}
}

// shutdown unblocks drain waiters and returns pooled events that will
// never be processed.
func (d *Dispatcher) shutdown() {
	close(d.stopped)
	for {
		select {
		case item := <-d.inbox:
			if item.done != nil {
				close(item.done)
			}
			d.release(item.ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) process(ev event.Event) {
	// Journal first so a backtest can replay the exact live sequence.
	// A journal failure degrades replay fidelity, never live
	// correctness; the broker remains the source of truth.
	if d.journal != nil {
		if err := d.journal.SaveEvent(context.Background(), ev); err != nil {
			slog.Error("JOURNAL_WRITE_FAILED",
				slog.Uint64("seq", ev.GetSeq()),
				slog.Any("error", err))
		}
	}

	order, applied, found := d.registry.Apply(ev)
	if !found {
		// Orders placed outside this process can surface here on push
		// channels; the reconciler adopts them, the push path drops them.
		slog.Warn("UNKNOWN_ORDER_EVENT_DROPPED",
			slog.String("type", ev.GetType().String()),
			slog.String("broker_id", ev.GetBrokerID()))
		d.release(ev)
		return
	}

	if applied {
		d.invoke(ev.GetType(), order)
	}
	d.release(ev)
}

// invoke runs the handler for one tag with panic containment: a
// strategy bug must never stop the loop or poison later events.
func (d *Dispatcher) invoke(t event.Type, order domain.Order) {
	d.handlersMu.RLock()
	h := d.handlers[t]
	d.handlersMu.RUnlock()
	if h == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("HANDLER_PANIC_RECOVERED",
				slog.String("type", t.String()),
				slog.String("broker_id", order.BrokerID),
				slog.Any("panic", r))
		}
	}()
	h(order)
}

// release returns pooled events once the loop is done with them.
func (d *Dispatcher) release(ev event.Event) {
	switch e := ev.(type) {
	case *event.OrderPartialFillEvent:
		event.ReleaseOrderPartialFillEvent(e)
	case *event.OrderFillEvent:
		event.ReleaseOrderFillEvent(e)
	}
}
