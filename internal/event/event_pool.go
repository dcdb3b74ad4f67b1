package event

import "sync"

// Fill events are the highest-churn allocation on the hotpath: a busy
// push channel produces one per execution. They are pooled; the
// dispatcher releases them after the handler returns. Events that end
// up journaled or retained must be copied first.

var partialFillPool = sync.Pool{
	New: func() any { return &OrderPartialFillEvent{} },
}

var fillPool = sync.Pool{
	New: func() any { return &OrderFillEvent{} },
}

// AcquireOrderPartialFillEvent returns a zeroed pooled event.
func AcquireOrderPartialFillEvent() *OrderPartialFillEvent {
	return partialFillPool.Get().(*OrderPartialFillEvent)
}

// ReleaseOrderPartialFillEvent resets and returns the event to the pool.
func ReleaseOrderPartialFillEvent(e *OrderPartialFillEvent) {
	*e = OrderPartialFillEvent{}
	partialFillPool.Put(e)
}

// AcquireOrderFillEvent returns a zeroed pooled event.
func AcquireOrderFillEvent() *OrderFillEvent {
	return fillPool.Get().(*OrderFillEvent)
}

// ReleaseOrderFillEvent resets and returns the event to the pool.
func ReleaseOrderFillEvent(e *OrderFillEvent) {
	*e = OrderFillEvent{}
	fillPool.Put(e)
}

// Warmup pre-populates the pools to avoid first-fill allocations.
func Warmup() {
	const n = 64
	partials := make([]*OrderPartialFillEvent, 0, n)
	fills := make([]*OrderFillEvent, 0, n)
	for i := 0; i < n; i++ {
		partials = append(partials, AcquireOrderPartialFillEvent())
		fills = append(fills, AcquireOrderFillEvent())
	}
	for i := 0; i < n; i++ {
		ReleaseOrderPartialFillEvent(partials[i])
		ReleaseOrderFillEvent(fills[i])
	}
}
