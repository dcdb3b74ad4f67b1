// Package strategy defines the callback surface trading logic sees.
// Strategies never touch order state directly: the dispatch loop
// applies the registry mutation first and hands each callback a
// consistent copy of the order.
package strategy

import (
	"broker_go/internal/domain"
	"broker_go/internal/engine"
	"broker_go/internal/event"
)

// Strategy receives order lifecycle notifications.
type Strategy interface {
	Name() string

	// OnNewOrder: the broker accepted the order onto its book.
	OnNewOrder(order domain.Order)

	// OnPartialFill: part of the quantity executed.
	OnPartialFill(order domain.Order)

	// OnFill: the order completed. Terminal.
	OnFill(order domain.Order)

	// OnCancel: the order left the book unfilled or part-filled. Terminal.
	OnCancel(order domain.Order)

	// OnError: broker-side failure; order.LastError carries the message.
	OnError(order domain.Order)
}

// Base provides no-op implementations so strategies only override the
// callbacks they care about.
type Base struct{}

func (Base) OnNewOrder(domain.Order)    {}
func (Base) OnPartialFill(domain.Order) {}
func (Base) OnFill(domain.Order)        {}
func (Base) OnCancel(domain.Order)      {}
func (Base) OnError(domain.Order)       {}

// Bind registers a strategy's callbacks on the dispatcher. One
// strategy per dispatcher; the dispatch loop serializes all callbacks.
func Bind(d *engine.Dispatcher, s Strategy) {
	d.RegisterHandler(event.EvOrderNew, s.OnNewOrder)
	d.RegisterHandler(event.EvOrderPartialFill, s.OnPartialFill)
	d.RegisterHandler(event.EvOrderFill, s.OnFill)
	d.RegisterHandler(event.EvOrderCancel, s.OnCancel)
	d.RegisterHandler(event.EvOrderError, s.OnError)
}
