package strategy

import (
	"log/slog"
	"sync"

	"broker_go/internal/domain"
	"broker_go/pkg/quant"
	"broker_go/pkg/safe"
)

// PositionTracker accumulates net position per symbol from fills.
// Buys add, sells subtract; partial fills contribute their deltas as
// they arrive, so a canceled order keeps whatever already executed.
type PositionTracker struct {
	Base

	mu        sync.RWMutex
	positions map[string]int64 // symbol -> net QtySats
	booked    map[string]quant.QtySats
}

// NewPositionTracker creates an empty tracker.
func NewPositionTracker() *PositionTracker {
	return &PositionTracker{
		positions: make(map[string]int64),
		booked:    make(map[string]quant.QtySats),
	}
}

func (p *PositionTracker) Name() string { return "POSITION_TRACKER" }

func (p *PositionTracker) OnPartialFill(order domain.Order) { p.book(order) }
func (p *PositionTracker) OnFill(order domain.Order)        { p.book(order) }

func (p *PositionTracker) OnCancel(order domain.Order) {
	p.book(order) // Keep fills that landed before the cancel.
	slog.Info("Order canceled",
		slog.String("broker_id", order.BrokerID),
		slog.String("symbol", order.Symbol),
		slog.Int64("filled", int64(order.FilledQtySats())))
}

func (p *PositionTracker) OnError(order domain.Order) {
	slog.Warn("Order failed",
		slog.String("broker_id", order.BrokerID),
		slog.String("error", order.LastError))
}

// Position returns the net quantity for a symbol.
func (p *PositionTracker) Position(symbol string) quant.QtySats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return quant.QtySats(p.positions[symbol])
}

// book folds the order's unbooked fill quantity into the position.
// Keyed by broker ID so replays of the same cumulative state are
// idempotent.
func (p *PositionTracker) book(order domain.Order) {
	p.mu.Lock()
	defer p.mu.Unlock()

	filled := order.FilledQtySats()
	delta := safe.SafeSub(int64(filled), int64(p.booked[order.BrokerID]))
	if delta <= 0 {
		return
	}
	p.booked[order.BrokerID] = filled

	if order.Side == domain.SideSell {
		delta = -delta
	}
	p.positions[order.Symbol] = safe.SafeAdd(p.positions[order.Symbol], delta)
}
