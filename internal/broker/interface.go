// Package broker defines the contracts between the dispatch engine and
// vendor-specific brokerage backends, and the reconciliation logic that
// makes poll-only backends look like push backends downstream.
package broker

import (
	"context"
	"fmt"

	"broker_go/internal/domain"
	"broker_go/pkg/quant"
)

// Broker abstracts one brokerage connection for order routing.
// Lifecycle notifications do NOT flow through this interface: push
// vendors feed the dispatcher from their own subscription worker, poll
// vendors are wrapped in a Reconciler.
type Broker interface {
	// Name returns the vendor identifier (e.g. "BITGET", "TRADIER", "PAPER").
	Name() string

	// Submit sends a new order synchronously and returns the
	// broker-assigned identifier. On error no later event will ever be
	// produced for this order.
	Submit(ctx context.Context, order domain.Order) (string, error)

	// Cancel requests cancellation of an open order. Fire-and-forget:
	// the outcome is observed later as a lifecycle event, not here.
	Cancel(ctx context.Context, brokerID string) error
}

// SnapshotRow is one row of a poll vendor's full order listing.
// It is a disposable observation, never authoritative local state.
type SnapshotRow struct {
	BrokerID       string
	Symbol         string
	Side           domain.Side
	Kind           domain.Kind
	Status         domain.Status
	QtySats        quant.QtySats
	FilledQtySats  quant.QtySats
	AvgPriceMicros quant.PriceMicros
}

// Pollable is a broker whose only notification model is re-fetching
// the complete current order list.
type Pollable interface {
	Broker

	// FetchSnapshot returns the broker's complete current order list.
	FetchSnapshot(ctx context.Context) ([]SnapshotRow, error)
}

// SubmissionError is a synchronous broker rejection at submit time.
// The order is terminal (REJECTED) and was never registered.
type SubmissionError struct {
	Broker string
	Reason string
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s submission rejected: %s: %v", e.Broker, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s submission rejected: %s", e.Broker, e.Reason)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
