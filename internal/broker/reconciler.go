package broker

import (
	"context"
	"log/slog"
	"time"

	"broker_go/internal/domain"
	"broker_go/internal/engine"
	"broker_go/internal/event"
	"broker_go/internal/infra"
	"broker_go/pkg/quant"
	"broker_go/pkg/safe"
)

// Reconciler turns a poll-only broker into a stream of lifecycle
// events. On a fixed interval it fetches the vendor's complete order
// snapshot, diffs it against the registry's last known status, and
// synthesizes the events a push channel would have produced.
// Downstream of the dispatcher the two transports are
// indistinguishable.
//
// Each snapshot is a disposable observation; the registry remains the
// local source of truth and the broker the remote one.
type Reconciler struct {
	source     Pollable
	dispatcher *engine.Dispatcher
	interval   time.Duration
	seq        *uint64
	breaker    *infra.CircuitBreaker

	// AdoptOwner tags orders first observed in a snapshot but placed
	// outside this process. They are adopted into the registry so
	// their lifecycle stays observable.
	AdoptOwner string
}

// NewReconciler creates a reconciler for one poll vendor.
func NewReconciler(source Pollable, d *engine.Dispatcher, interval time.Duration, seq *uint64) *Reconciler {
	return &Reconciler{
		source:     source,
		dispatcher: d,
		interval:   interval,
		seq:        seq,
		breaker:    infra.NewCircuitBreaker(infra.DefaultCircuitBreakerConfig("poll:" + source.Name())),
		AdoptOwner: "external",
	}
}

// Start runs the timer-driven worker: one reconciliation pass
// immediately, then one per interval until ctx is canceled.
func (r *Reconciler) Start(ctx context.Context) {
	go func() {
		if err := r.RunOnce(ctx); err != nil {
			slog.Warn("Initial reconciliation pass failed", slog.Any("error", err))
		}

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("Reconciler stopped", slog.String("broker", r.source.Name()))
				return
			case <-ticker.C:
				if err := r.RunOnce(ctx); err != nil {
					slog.Warn("Reconciliation pass failed, retrying next tick",
						slog.String("broker", r.source.Name()),
						slog.Any("error", err))
				}
			}
		}
	}()
}

// RunOnce performs a single fetch-and-diff pass. A fetch failure skips
// the whole pass: no partial diff is ever applied.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	if !r.breaker.Allow() {
		slog.Debug("Reconciliation skipped, circuit open", slog.String("broker", r.source.Name()))
		return nil
	}

	rows, err := r.source.FetchSnapshot(ctx)
	if err != nil {
		r.breaker.RecordFailure()
		return err
	}
	r.breaker.RecordSuccess()

	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		seen[row.BrokerID] = struct{}{}
		r.diffRow(row)
	}

	// Orders we track as open but the broker no longer lists: gone
	// from the book means canceled (expired, user-canceled elsewhere).
	for _, id := range r.dispatcher.Registry().TrackedIDs() {
		if _, present := seen[id]; present {
			continue
		}
		status, ok := r.dispatcher.Registry().Status(id)
		if !ok || !(status == domain.StatusNew || status == domain.StatusPartiallyFilled) {
			continue
		}
		r.emit(&event.OrderCancelEvent{BaseEvent: r.base(id)})
	}

	return nil
}

// diffRow synthesizes the events that bring the local order from its
// last known status to the snapshot status. The state machine is never
// asked to skip NEW: an order first observed already terminal gets New
// followed by its terminal event in the same pass.
func (r *Reconciler) diffRow(row SnapshotRow) {
	reg := r.dispatcher.Registry()

	local, known := reg.Get(row.BrokerID)
	if !known {
		adopted := r.adopt(row)
		if adopted == nil {
			return
		}
		local = *adopted
	}

	if local.Status.IsTerminal() {
		// Re-observation of a finished order; nothing to report.
		return
	}

	if local.Status == domain.StatusSubmitted {
		r.emit(&event.OrderNewEvent{BaseEvent: r.base(row.BrokerID)})
	}

	switch row.Status {
	case domain.StatusNew, domain.StatusSubmitted:
		// New already emitted above if needed; same status is suppressed.

	case domain.StatusPartiallyFilled:
		// Only vendors that distinguish partials report this status.
		delta := safe.SafeSub(int64(row.FilledQtySats), int64(local.FilledQtySats()))
		if delta > 0 {
			ev := event.AcquireOrderPartialFillEvent()
			ev.BaseEvent = r.base(row.BrokerID)
			ev.PriceMicros = row.AvgPriceMicros
			ev.QtySats = quant.QtySats(delta)
			r.emit(ev)
		}

	case domain.StatusFilled:
		// Polling observes open->filled as one jump; report a single
		// aggregate fill for whatever quantity we have not yet booked.
		delta := safe.SafeSub(int64(row.FilledQtySats), int64(local.FilledQtySats()))
		if delta < 0 {
			delta = 0
		}
		ev := event.AcquireOrderFillEvent()
		ev.BaseEvent = r.base(row.BrokerID)
		ev.PriceMicros = row.AvgPriceMicros
		ev.QtySats = quant.QtySats(delta)
		r.emit(ev)

	case domain.StatusCanceled:
		r.emit(&event.OrderCancelEvent{BaseEvent: r.base(row.BrokerID)})

	case domain.StatusRejected:
		r.emit(&event.OrderErrorEvent{BaseEvent: r.base(row.BrokerID), Message: "rejected by broker"})
	}
}

// adopt registers a skeleton order for an identifier the broker lists
// but we never submitted (placed outside this process). Returns nil if
// the row is too incomplete to track.
func (r *Reconciler) adopt(row SnapshotRow) *domain.Order {
	if row.QtySats <= 0 || row.Symbol == "" {
		slog.Warn("Snapshot row not adoptable, skipped",
			slog.String("broker", r.source.Name()),
			slog.String("broker_id", row.BrokerID))
		return nil
	}

	kind := row.Kind
	if kind == "" {
		kind = domain.KindLimit
	}
	o := domain.NewOrder(r.AdoptOwner, row.Symbol, row.Side, kind, row.QtySats)
	o.MarkSubmitted(row.BrokerID, quant.TimeStamp(time.Now().UnixMicro()))
	if err := r.dispatcher.Registry().Register(o); err != nil {
		slog.Warn("Failed to adopt external order", slog.Any("error", err))
		return nil
	}

	slog.Info("Adopted externally placed order",
		slog.String("broker", r.source.Name()),
		slog.String("broker_id", row.BrokerID),
		slog.String("symbol", row.Symbol))
	return o
}

func (r *Reconciler) base(brokerID string) event.BaseEvent {
	return event.BaseEvent{
		Seq:      quant.NextSeq(r.seq),
		Ts:       quant.TimeStamp(time.Now().UnixMicro()),
		BrokerID: brokerID,
	}
}

func (r *Reconciler) emit(ev event.Event) {
	if !r.dispatcher.Enqueue(ev, false) {
		switch e := ev.(type) {
		case *event.OrderPartialFillEvent:
			event.ReleaseOrderPartialFillEvent(e)
		case *event.OrderFillEvent:
			event.ReleaseOrderFillEvent(e)
		}
	}
}
