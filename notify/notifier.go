package notify

import (
	"sync"
	"sync/atomic"

	"github.com/maxpert/xidledger/ledger"
	"github.com/puzpuzpuz/xsync/v3"
)

// defaultSignalBufferSize is the buffer size for transition channels.
// Subscribers that can't keep up will have transitions dropped (non-blocking send).
const defaultSignalBufferSize = 64

// Transition is a durable status change of one xid
type Transition struct {
	XID    uint64
	Status ledger.Status
}

// Filter selects which transitions a subscriber receives
type Filter struct {
	// Statuses to deliver; empty means all
	Statuses []ledger.Status
}

// subscription represents a single subscriber.
type subscription struct {
	id     uint64
	filter Filter
	ch     chan Transition

	mu     sync.RWMutex // excludes send and close
	closed bool
}

// matches checks if the status passes this subscription's filter.
func (s *subscription) matches(status ledger.Status) bool {
	if len(s.filter.Statuses) == 0 {
		return true
	}

	for _, st := range s.filter.Statuses {
		if st == status {
			return true
		}
	}
	return false
}

func (s *subscription) send(t Transition) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}
	select {
	case s.ch <- t:
	default:
		// Buffer full, drop
	}
}

// close closes the subscription channel if not already closed.
func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Hub fans ledger transitions out to subscribers. It satisfies txn.Notifier.
type Hub struct {
	subscriptions *xsync.MapOf[uint64, *subscription]
	nextID        atomic.Uint64
}

// NewHub creates a new transition hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: xsync.NewMapOf[uint64, *subscription](),
	}
}

// Signal sends a transition to all matching subscribers without blocking.
func (h *Hub) Signal(xid uint64, status ledger.Status) {
	t := Transition{XID: xid, Status: status}

	h.subscriptions.Range(func(_ uint64, sub *subscription) bool {
		if sub.matches(status) {
			sub.send(t)
		}
		return true
	})
}

// Subscribe creates a new subscription and returns the transition channel and cancel function.
// The returned channel is buffered; transitions are dropped when it is full.
// The cancel function is idempotent.
func (h *Hub) Subscribe(filter Filter) (<-chan Transition, func()) {
	sub := &subscription{
		id:     h.nextID.Add(1),
		filter: filter,
		ch:     make(chan Transition, defaultSignalBufferSize),
	}

	h.subscriptions.Store(sub.id, sub)

	cancel := func() {
		h.unsubscribe(sub.id)
	}

	return sub.ch, cancel
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	return h.subscriptions.Size()
}

// Close cancels every subscription.
func (h *Hub) Close() {
	h.subscriptions.Range(func(id uint64, _ *subscription) bool {
		h.unsubscribe(id)
		return true
	})
}

// unsubscribe removes a subscription and closes its channel.
func (h *Hub) unsubscribe(id uint64) {
	if sub, ok := h.subscriptions.LoadAndDelete(id); ok {
		sub.close()
	}
}
