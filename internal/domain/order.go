package domain

import (
	"broker_go/pkg/quant"
	"broker_go/pkg/safe"
)

// Side of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Kind of an order.
type Kind string

const (
	KindMarket   Kind = "MARKET"
	KindLimit    Kind = "LIMIT"
	KindStop     Kind = "STOP"
	KindCompound Kind = "COMPOUND" // Multi-leg; legs are tracked as separate broker IDs.
)

// TimeInForce of an order.
type TimeInForce string

const (
	TIFGoodTillCancel TimeInForce = "GTC"
	TIFDay            TimeInForce = "DAY"
	TIFImmediate      TimeInForce = "IOC"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusUnsubmitted     Status = "UNSUBMITTED"
	StatusSubmitted       Status = "SUBMITTED"
	StatusNew             Status = "NEW"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCanceled        Status = "CANCELED"
	StatusRejected        Status = "REJECTED"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected
}

// Transaction is one fill against an order, in fill order.
type Transaction struct {
	PriceMicros quant.PriceMicros `json:"price"`
	QtySats     quant.QtySats     `json:"qty"`
	TsUnixM     quant.TimeStamp   `json:"ts"`
}

// Order represents one trading intent and its accumulated fills.
// All monetary values are strictly int64 fixed-point.
//
// Status is mutated only through the guarded Mark*/Apply* methods
// below; every method is a no-op (returns false) when the transition
// is not on the lifecycle graph. Once an order has a BrokerID, the
// dispatch loop is the only caller of the Apply* methods.
type Order struct {
	Owner        string            `json:"owner"`  // Strategy tag that created the order.
	Symbol       string            `json:"symbol"` // Instrument identifier, e.g. "BTCUSDT".
	Side         Side              `json:"side"`
	Kind         Kind              `json:"kind"`
	TIF          TimeInForce       `json:"tif"`
	QtySats      quant.QtySats     `json:"qty"`
	LimitMicros  quant.PriceMicros `json:"limit_price,omitempty"` // 0 for market orders.
	StopMicros   quant.PriceMicros `json:"stop_price,omitempty"`  // 0 unless stop/compound.
	BrokerID     string            `json:"broker_id"`             // Assigned at most once.
	Status       Status            `json:"status"`
	Transactions []Transaction     `json:"transactions,omitempty"` // Append-only.
	LastError    string            `json:"last_error,omitempty"`
	CreatedUnixM quant.TimeStamp   `json:"created_unix"`
}

// NewOrder creates an unsubmitted order with GTC time-in-force.
func NewOrder(owner, symbol string, side Side, kind Kind, qty quant.QtySats) *Order {
	return &Order{
		Owner:   owner,
		Symbol:  symbol,
		Side:    side,
		Kind:    kind,
		TIF:     TIFGoodTillCancel,
		QtySats: qty,
		Status:  StatusUnsubmitted,
	}
}

// IsOpen checks if the order is still active at the broker.
func (o *Order) IsOpen() bool {
	return o.Status == StatusNew || o.Status == StatusPartiallyFilled
}

// FilledQtySats returns the accumulated fill quantity.
func (o *Order) FilledQtySats() quant.QtySats {
	var total int64
	for _, tx := range o.Transactions {
		total = safe.SafeAdd(total, int64(tx.QtySats))
	}
	return quant.QtySats(total)
}

// RemainingQtySats returns the unfilled quantity.
func (o *Order) RemainingQtySats() quant.QtySats {
	return quant.QtySats(safe.SafeSub(int64(o.QtySats), int64(o.FilledQtySats())))
}

// AvgFillMicros returns the quantity-weighted average fill price,
// or 0 when nothing has filled.
func (o *Order) AvgFillMicros() quant.PriceMicros {
	var notional, qty int64
	for _, tx := range o.Transactions {
		notional = safe.SafeAdd(notional, safe.SafeDiv(safe.SafeMul(int64(tx.PriceMicros), int64(tx.QtySats)), quant.QtyScale))
		qty = safe.SafeAdd(qty, int64(tx.QtySats))
	}
	if qty == 0 {
		return 0
	}
	return quant.PriceMicros(safe.SafeDiv(safe.SafeMul(notional, quant.QtyScale), qty))
}

// MarkSubmitted records broker acknowledgment of the submission.
// The broker ID is assigned exactly once, here.
func (o *Order) MarkSubmitted(brokerID string, ts quant.TimeStamp) bool {
	if o.Status != StatusUnsubmitted || o.BrokerID != "" || brokerID == "" {
		return false
	}
	o.BrokerID = brokerID
	o.Status = StatusSubmitted
	o.CreatedUnixM = ts
	return true
}

// MarkRejected records a synchronous submission failure. Terminal.
func (o *Order) MarkRejected(reason string) bool {
	if o.Status != StatusUnsubmitted {
		return false
	}
	o.Status = StatusRejected
	o.LastError = reason
	return true
}

// ApplyNew transitions SUBMITTED -> NEW (broker accepted onto the book).
func (o *Order) ApplyNew() bool {
	if o.Status != StatusSubmitted {
		return false
	}
	o.Status = StatusNew
	return true
}

// ApplyPartialFill appends a transaction and moves to PARTIALLY_FILLED.
// The fill is rejected (false) when it would exceed the requested quantity.
// A fill that completes the quantity lands directly on FILLED.
func (o *Order) ApplyPartialFill(price quant.PriceMicros, qty quant.QtySats, ts quant.TimeStamp) bool {
	if !o.IsOpen() || qty <= 0 {
		return false
	}
	if safe.SafeAdd(int64(o.FilledQtySats()), int64(qty)) > int64(o.QtySats) {
		return false
	}
	o.Transactions = append(o.Transactions, Transaction{PriceMicros: price, QtySats: qty, TsUnixM: ts})
	if o.FilledQtySats() == o.QtySats {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
	return true
}

// ApplyFill appends the closing transaction and moves to FILLED. Terminal.
// A zero qty marks the order filled without a new transaction; polling
// brokers report terminal status without a distinct closing fill row.
func (o *Order) ApplyFill(price quant.PriceMicros, qty quant.QtySats, ts quant.TimeStamp) bool {
	if !o.IsOpen() {
		return false
	}
	if qty > 0 {
		if safe.SafeAdd(int64(o.FilledQtySats()), int64(qty)) > int64(o.QtySats) {
			return false
		}
		o.Transactions = append(o.Transactions, Transaction{PriceMicros: price, QtySats: qty, TsUnixM: ts})
	}
	o.Status = StatusFilled
	return true
}

// ApplyCancel moves an open order to CANCELED. Terminal.
// Partial fills already recorded are kept.
func (o *Order) ApplyCancel() bool {
	if !o.IsOpen() {
		return false
	}
	o.Status = StatusCanceled
	return true
}

// ApplyError records a broker-side failure and normalizes it to
// CANCELED after surfacing the message. Terminal.
func (o *Order) ApplyError(message string) bool {
	if !o.IsOpen() {
		return false
	}
	o.LastError = message
	o.Status = StatusCanceled
	return true
}

// Clone returns a deep copy safe to hand to strategy callbacks.
func (o *Order) Clone() Order {
	cp := *o
	if o.Transactions != nil {
		cp.Transactions = make([]Transaction, len(o.Transactions))
		copy(cp.Transactions, o.Transactions)
	}
	return cp
}
