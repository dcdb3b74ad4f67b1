package event

import (
	"broker_go/pkg/quant"
)

// Type defines the type of event.
type Type uint16

const (
	EvOrderNew Type = iota + 1
	EvOrderPartialFill
	EvOrderFill
	EvOrderCancel
	EvOrderError
)

func (t Type) String() string {
	switch t {
	case EvOrderNew:
		return "ORDER_NEW"
	case EvOrderPartialFill:
		return "ORDER_PARTIAL_FILL"
	case EvOrderFill:
		return "ORDER_FILL"
	case EvOrderCancel:
		return "ORDER_CANCEL"
	case EvOrderError:
		return "ORDER_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is the interface for all dispatcher events. Events are facts
// about broker-side order state, never commands; the dispatch loop is
// the only writer of order status.
type Event interface {
	GetSeq() uint64
	GetTs() quant.TimeStamp
	GetType() Type
	GetBrokerID() string
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Seq      uint64          `json:"seq"`
	Ts       quant.TimeStamp `json:"ts"`
	BrokerID string          `json:"broker_id"` // Broker-assigned order identifier.
}

func (e BaseEvent) GetSeq() uint64         { return e.Seq }
func (e BaseEvent) GetTs() quant.TimeStamp { return e.Ts }
func (e BaseEvent) GetBrokerID() string    { return e.BrokerID }

// OrderNewEvent: the broker accepted the order onto its book.
type OrderNewEvent struct {
	BaseEvent
}

func (e OrderNewEvent) GetType() Type { return EvOrderNew }

// OrderPartialFillEvent: one partial execution.
type OrderPartialFillEvent struct {
	BaseEvent
	PriceMicros quant.PriceMicros `json:"price"`
	QtySats     quant.QtySats     `json:"qty"`
}

func (e OrderPartialFillEvent) GetType() Type { return EvOrderPartialFill }

// OrderFillEvent: the execution that completes the order. Poll sources
// report a single aggregate fill; QtySats then carries the remaining
// quantity and PriceMicros the broker's average price.
type OrderFillEvent struct {
	BaseEvent
	PriceMicros quant.PriceMicros `json:"price"`
	QtySats     quant.QtySats     `json:"qty"`
}

func (e OrderFillEvent) GetType() Type { return EvOrderFill }

// OrderCancelEvent: the order left the book unfilled or part-filled.
type OrderCancelEvent struct {
	BaseEvent
}

func (e OrderCancelEvent) GetType() Type { return EvOrderCancel }

// OrderErrorEvent: broker-side failure, normalized downstream to a
// cancellation after the message is surfaced.
type OrderErrorEvent struct {
	BaseEvent
	Message string `json:"message"`
}

func (e OrderErrorEvent) GetType() Type { return EvOrderError }
