package engine

import (
	"fmt"
	"sync"

	"broker_go/internal/domain"
	"broker_go/internal/event"
)

// Registry owns every order ever seen by one broker connection, keyed
// by broker-assigned ID. It is the single source of truth for order
// status. Status mutation happens only through Apply, called from the
// dispatch loop; all other goroutines read copies.
//
// The per-status index exists purely for fast iteration. It is
// maintained inside the same critical section as the authoritative
// map and is always re-derivable from it.
type Registry struct {
	mu       sync.RWMutex
	orders   map[string]*domain.Order
	byStatus map[domain.Status]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		orders:   make(map[string]*domain.Order),
		byStatus: make(map[domain.Status]map[string]struct{}),
	}
}

// Register inserts an order after broker acknowledgment. The order
// must already carry its broker ID (MarkSubmitted ran). Registration
// is a mandatory part of the submit path, never an optional side effect.
func (r *Registry) Register(o *domain.Order) error {
	if o.BrokerID == "" {
		return fmt.Errorf("order has no broker id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[o.BrokerID]; exists {
		return fmt.Errorf("duplicate broker id: %s", o.BrokerID)
	}
	r.orders[o.BrokerID] = o
	r.indexLocked(o.BrokerID, "", o.Status)
	return nil
}

// Get returns a copy of the order for the given broker ID.
func (r *Registry) Get(brokerID string) (domain.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[brokerID]
	if !ok {
		return domain.Order{}, false
	}
	return o.Clone(), true
}

// Status returns the current lifecycle status for the given broker ID.
func (r *Registry) Status(brokerID string) (domain.Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[brokerID]
	if !ok {
		return "", false
	}
	return o.Status, true
}

// GetByStatus returns copies of all orders currently in the given status.
func (r *Registry) GetByStatus(status domain.Status) []domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byStatus[status]
	out := make([]domain.Order, 0, len(ids))
	for id := range ids {
		out = append(out, r.orders[id].Clone())
	}
	return out
}

// TrackedIDs returns the broker IDs of all non-terminal orders, the
// set the reconciler expects to see in every broker snapshot.
func (r *Registry) TrackedIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, o := range r.orders {
		if !o.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the total number of orders ever registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

// Apply runs one event through the order state machine.
// Returns a copy of the order after mutation, whether the transition
// was actually applied (idempotent replays return false), and whether
// the broker ID was known at all.
func (r *Registry) Apply(ev event.Event) (domain.Order, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[ev.GetBrokerID()]
	if !ok {
		return domain.Order{}, false, false
	}

	prev := o.Status
	var applied bool
	switch e := ev.(type) {
	case *event.OrderNewEvent:
		applied = o.ApplyNew()
	case *event.OrderPartialFillEvent:
		applied = o.ApplyPartialFill(e.PriceMicros, e.QtySats, e.Ts)
	case *event.OrderFillEvent:
		applied = o.ApplyFill(e.PriceMicros, e.QtySats, e.Ts)
	case *event.OrderCancelEvent:
		applied = o.ApplyCancel()
	case *event.OrderErrorEvent:
		applied = o.ApplyError(e.Message)
	}

	if applied && prev != o.Status {
		r.indexLocked(o.BrokerID, prev, o.Status)
	}
	return o.Clone(), applied, true
}

// indexLocked moves a broker ID between status sets. Caller holds mu.
func (r *Registry) indexLocked(brokerID string, from, to domain.Status) {
	if from != "" {
		if set, ok := r.byStatus[from]; ok {
			delete(set, brokerID)
		}
	}
	set, ok := r.byStatus[to]
	if !ok {
		set = make(map[string]struct{})
		r.byStatus[to] = set
	}
	set[brokerID] = struct{}{}
}
