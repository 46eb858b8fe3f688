// Package broadcast fans published events out to observers. Publishers never
// block on observers and never see their failures.
package broadcast

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rl1809/stockroom/internal/logging"
	"github.com/rl1809/stockroom/internal/metrics"
	"github.com/rl1809/stockroom/internal/port"
)

const deliverTimeout = 5 * time.Second

// Dispatcher queues envelopes and delivers them to every sink from a fixed
// pool of workers. Each topic is pinned to one worker so envelopes of a topic
// reach sinks in publish order.
type Dispatcher struct {
	queues []chan port.Envelope
	sinks  []port.Sink
	now    func() time.Time
	log    zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(queueSize, workers int, sinks ...port.Sink) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	perWorker := max(queueSize/workers, 1)

	d := &Dispatcher{
		queues: make([]chan port.Envelope, workers),
		sinks:  sinks,
		now:    time.Now,
		log:    logging.With("dispatcher"),
	}
	for i := range d.queues {
		d.queues[i] = make(chan port.Envelope, perWorker)
	}
	return d
}

// Start launches the worker pool. Call once.
func (d *Dispatcher) Start() {
	for i, q := range d.queues {
		d.wg.Add(1)
		go func(id int, queue <-chan port.Envelope) {
			defer d.wg.Done()
			d.workerLoop(id, queue)
		}(i, q)
	}
	d.log.Info().Int("workers", len(d.queues)).Int("sinks", len(d.sinks)).Msg("broadcast dispatcher started")
}

func (d *Dispatcher) Publish(topic string, payload any) {
	env := port.Envelope{
		ID:          uuid.NewString(),
		Topic:       topic,
		Payload:     payload,
		PublishedAt: d.now().UTC(),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.BroadcastDropped.WithLabelValues("closed").Inc()
		return
	}

	select {
	case d.queues[d.shard(topic)] <- env:
		metrics.BroadcastPublished.WithLabelValues(topic).Inc()
	default:
		metrics.BroadcastDropped.WithLabelValues("queue_full").Inc()
		d.log.Warn().Str("topic", topic).Str("id", env.ID).Msg("broadcast queue full, event dropped")
	}
}

// Close stops accepting events, drains what is queued and waits for the workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.log.Info().Msg("broadcast dispatcher stopped")
}

func (d *Dispatcher) shard(topic string) int {
	if len(d.queues) == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return int(h.Sum32() % uint32(len(d.queues)))
}

func (d *Dispatcher) workerLoop(id int, queue <-chan port.Envelope) {
	for env := range queue {
		for _, sink := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
			if err := sink.Deliver(ctx, env); err != nil {
				metrics.BroadcastDropped.WithLabelValues("sink_error").Inc()
				d.log.Error().Err(err).
					Int("worker", id).
					Str("topic", env.Topic).
					Str("id", env.ID).
					Msg("broadcast delivery failed")
			}
			cancel()
		}
	}
}
