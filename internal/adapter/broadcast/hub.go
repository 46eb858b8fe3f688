package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rl1809/stockroom/internal/logging"
	"github.com/rl1809/stockroom/internal/metrics"
	"github.com/rl1809/stockroom/internal/port"
)

// Subscription receives envelopes for its topics until closed or evicted.
type Subscription struct {
	id     uint64
	topics map[string]struct{}
	ch     chan port.Envelope
	hub    *Hub
}

// C is closed when the subscription ends.
func (s *Subscription) C() <-chan port.Envelope { return s.ch }

func (s *Subscription) Close() { s.hub.remove(s.id, "closed") }

func (s *Subscription) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// Hub is the in-process Sink. Subscribers joining after an envelope was
// delivered never see it.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	buffer int
	nextID atomic.Uint64
}

func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
	}
}

// Subscribe registers a subscriber for topics, or for every topic when none are given.
func (h *Hub) Subscribe(topics ...string) *Subscription {
	sub := &Subscription{
		id:     h.nextID.Add(1),
		topics: make(map[string]struct{}, len(topics)),
		ch:     make(chan port.Envelope, h.buffer),
		hub:    h,
	}
	for _, t := range topics {
		if t != "" {
			sub.topics[t] = struct{}{}
		}
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	total := len(h.subs)
	h.mu.Unlock()

	metrics.Subscribers.Inc()
	logging.Debug().Uint64("subscriber", sub.id).Int("total", total).Msg("subscriber joined")
	return sub
}

// Deliver hands env to every matching subscriber without blocking. A
// subscriber whose buffer is full is evicted.
func (h *Hub) Deliver(_ context.Context, env port.Envelope) error {
	var slow []uint64

	h.mu.RLock()
	for id, sub := range h.subs {
		if !sub.wants(env.Topic) {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			slow = append(slow, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range slow {
		metrics.BroadcastDropped.WithLabelValues("slow_subscriber").Inc()
		h.remove(id, "slow")
	}
	return nil
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
		metrics.Subscribers.Dec()
	}
}

func (h *Hub) remove(id uint64, reason string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(sub.ch)
	}
	h.mu.Unlock()

	if ok {
		metrics.Subscribers.Dec()
		logging.Debug().Uint64("subscriber", id).Str("reason", reason).Msg("subscriber left")
	}
}
