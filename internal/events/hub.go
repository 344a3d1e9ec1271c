package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/flicky/solar-storefront/internal/model"
)

const (
	maxTrackedOrders = 10000
	trackRetention   = 24 * time.Hour
)

// Subscription receives order events for one dashboard connection.
type Subscription struct {
	id     uuid.UUID
	userID uuid.UUID
	admin  bool
	ch     chan model.OrderEvent
}

func (s *Subscription) C() <-chan model.OrderEvent { return s.ch }

type tracked struct {
	version int
	seenAt  time.Time
}

// Hub fans order events out to live subscribers. Customers only see their
// own orders; admins see everything. Events whose version is not newer than
// the last one delivered for the same order are dropped, so redelivered or
// reordered broker messages never move a dashboard backwards.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]*Subscription
	buffer int
	log    *slog.Logger

	versions map[uuid.UUID]tracked

	dropped atomic.Int64
}

func NewHub(buffer int, log *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:     make(map[uuid.UUID]*Subscription),
		versions: make(map[uuid.UUID]tracked),
		buffer:   buffer,
		log:      log,
	}
}

func (h *Hub) Subscribe(userID uuid.UUID, admin bool) *Subscription {
	sub := &Subscription{
		id:     uuid.New(),
		userID: userID,
		admin:  admin,
		ch:     make(chan model.OrderEvent, h.buffer),
	}
	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if _, ok := h.subs[sub.id]; ok {
		delete(h.subs, sub.id)
		close(sub.ch)
	}
	h.mu.Unlock()
}

// Broadcast delivers evt and reports whether it was newer than anything
// already delivered for its order.
func (h *Hub) Broadcast(evt model.OrderEvent) bool {
	// Version check and fan-out share the lock so subscribers never observe
	// versions out of order.
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.advance(evt) {
		return false
	}
	for _, sub := range h.subs {
		if !sub.admin && sub.userID != evt.UserID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Slow client; it catches up through the polling endpoint.
			h.dropped.Add(1)
			h.log.Warn("subscriber buffer full, event dropped",
				"subscriber", sub.id, "order_id", evt.OrderID, "version", evt.Version)
		}
	}
	return true
}

// advance must be called with h.mu held.
func (h *Hub) advance(evt model.OrderEvent) bool {
	now := time.Now()
	if last, ok := h.versions[evt.OrderID]; ok && evt.Version <= last.version {
		return false
	}
	h.versions[evt.OrderID] = tracked{version: evt.Version, seenAt: now}

	if len(h.versions) > maxTrackedOrders {
		for id, t := range h.versions {
			if now.Sub(t.seenAt) > trackRetention {
				delete(h.versions, id)
			}
		}
	}
	return true
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
	h.mu.Unlock()
}
