package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"broker_go/internal/domain"
	"broker_go/internal/engine"
	"broker_go/pkg/quant"
)

// Session is the strategy-facing submit path for one broker
// connection. Registry insertion is a mandatory part of a successful
// Submit, not a side effect: an acknowledged order that is not
// registered would be invisible to every later lifecycle event.
type Session struct {
	broker     Broker
	dispatcher *engine.Dispatcher
}

// NewSession binds a broker to its dispatcher.
func NewSession(b Broker, d *engine.Dispatcher) *Session {
	return &Session{broker: b, dispatcher: d}
}

// Submit routes an unsubmitted order to the broker. On synchronous
// rejection the order becomes REJECTED and is never registered; no
// event will ever reference it. On success the order is SUBMITTED and
// carries its broker ID, and a detached copy is registered before
// Submit returns. The dispatch loop mutates only the registered copy;
// the caller's order stays a stable snapshot of the submission, and
// lifecycle progress is read through Order / OrdersByStatus.
func (s *Session) Submit(ctx context.Context, o *domain.Order) error {
	if o.Status != domain.StatusUnsubmitted {
		return fmt.Errorf("order already submitted (status %s)", o.Status)
	}

	brokerID, err := s.broker.Submit(ctx, o.Clone())
	if err != nil {
		o.MarkRejected(err.Error())
		if se, ok := err.(*SubmissionError); ok {
			return se
		}
		return &SubmissionError{Broker: s.broker.Name(), Reason: "submit failed", Err: err}
	}

	now := quant.TimeStamp(time.Now().UnixMicro())
	if !o.MarkSubmitted(brokerID, now) {
		return fmt.Errorf("order rejected broker id %q", brokerID)
	}
	cp := o.Clone()
	if err := s.dispatcher.Registry().Register(&cp); err != nil {
		// Duplicate broker ID is a vendor contract violation; the
		// already-registered order keeps receiving events.
		return fmt.Errorf("register after submit: %w", err)
	}

	// Brokers that acknowledge in process emit their New only now,
	// after registration, so the ack can never race the registry
	// insert and be dropped as unknown. Real vendors ack over their
	// notification channel.
	if a, ok := s.broker.(interface{ Ack(brokerID string) }); ok {
		a.Ack(brokerID)
	}

	slog.Info("Order submitted",
		slog.String("broker", s.broker.Name()),
		slog.String("broker_id", brokerID),
		slog.String("symbol", o.Symbol),
		slog.String("side", string(o.Side)),
		slog.Int64("qty", int64(o.QtySats)))
	return nil
}

// Cancel requests cancellation. Fire-and-forget: transport errors are
// logged, and the authoritative outcome arrives as a Cancel (or Fill)
// event on the dispatch loop.
func (s *Session) Cancel(ctx context.Context, brokerID string) {
	if status, ok := s.dispatcher.Registry().Status(brokerID); ok && status.IsTerminal() {
		return
	}
	if err := s.broker.Cancel(ctx, brokerID); err != nil {
		slog.Warn("Cancel request failed",
			slog.String("broker", s.broker.Name()),
			slog.String("broker_id", brokerID),
			slog.Any("error", err))
	}
}

// Order returns a copy of a tracked order.
func (s *Session) Order(brokerID string) (domain.Order, bool) {
	return s.dispatcher.Registry().Get(brokerID)
}

// OrdersByStatus returns copies of all tracked orders in one status.
func (s *Session) OrdersByStatus(status domain.Status) []domain.Order {
	return s.dispatcher.Registry().GetByStatus(status)
}
