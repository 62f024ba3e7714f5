/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package outbox queues continuous persistence writes (drag positions, label edits)
// per entity and sends them from a single background goroutine. A newer write for an
// entity that is still pending is merged into the pending one, so the last value
// always lands and intermediate values may be skipped. Failures are logged and
// counted, never retried.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"storyloom/internal/backend"
	"storyloom/internal/domain"
	applog "storyloom/internal/log"
)

// Operation names used in logs and metric labels.
const (
	OpUpdateNode = "update_node"
	OpUpdateEdge = "update_edge"
)

var (
	sentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storyloom",
		Subsystem: "outbox",
		Name:      "sent_total",
		Help:      "Persistence commands delivered to the backend.",
	}, []string{"op"})
	failedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storyloom",
		Subsystem: "outbox",
		Name:      "failures_total",
		Help:      "Persistence commands the backend rejected.",
	}, []string{"op"})
	coalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storyloom",
		Subsystem: "outbox",
		Name:      "coalesced_total",
		Help:      "Commands merged into an already pending command for the same entity.",
	})
)

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("outbox closed")

type command struct {
	key   string
	op    string
	id    string
	node  domain.NodePatch
	label string
}

func (c *command) run(ctx context.Context, be backend.Backend) error {
	switch c.op {
	case OpUpdateNode:
		return be.UpdateNode(ctx, c.id, c.node)
	case OpUpdateEdge:
		return be.UpdateEdge(ctx, c.id, c.label)
	}
	return nil
}

// Options tune an Outbox.
type Options struct {
	// Timeout bounds each backend call; zero means 15s.
	Timeout time.Duration
	// OnError, when set, is called from the worker goroutine after a failed send.
	OnError func(op, id string, err error)
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Pending   int
	InFlight  int
	Sent      int
	Failed    int
	Coalesced int
}

// Outbox is safe for concurrent use.
type Outbox struct {
	be   backend.Backend
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	order    []string
	pending  map[string]*command
	inflight int
	stats    Stats
	closing  bool

	wake   chan struct{}
	closed chan struct{}
	done   chan struct{}
	once   sync.Once
}

// New starts the worker goroutine. Call Close to stop it.
func New(be backend.Backend, opts Options) *Outbox {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	o := &Outbox{
		be:      be,
		opts:    opts,
		log:     applog.WithComponent("outbox"),
		pending: map[string]*command{},
		wake:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go o.loop()
	return o
}

// UpdateNode queues a node patch. Pending patches of the same node are merged field by field.
func (o *Outbox) UpdateNode(id string, p domain.NodePatch) {
	o.enqueue(&command{key: "node:" + id, op: OpUpdateNode, id: id, node: p})
}

// UpdateEdge queues a label write; a pending label of the same edge is replaced.
func (o *Outbox) UpdateEdge(id, label string) {
	o.enqueue(&command{key: "edge:" + id, op: OpUpdateEdge, id: id, label: label})
}

// DiscardNode drops pending writes of a node, e.g. because it is being deleted.
func (o *Outbox) DiscardNode(id string) { o.discard("node:" + id) }

// DiscardEdge drops a pending label write of an edge.
func (o *Outbox) DiscardEdge(id string) { o.discard("edge:" + id) }

func (o *Outbox) enqueue(c *command) {
	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		o.log.Warn("dropping command after close", slog.String("op", c.op), slog.String("id", c.id))
		return
	}
	if prev, ok := o.pending[c.key]; ok {
		prev.node = prev.node.Merge(c.node)
		prev.label = c.label
		o.stats.Coalesced++
		o.mu.Unlock()
		coalescedTotal.Inc()
		return
	}
	o.pending[c.key] = c
	o.order = append(o.order, c.key)
	o.mu.Unlock()
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Outbox) discard(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.pending[key]; !ok {
		return
	}
	delete(o.pending, key)
	for i, k := range o.order {
		if k == key {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

// Stats returns current counters.
func (o *Outbox) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.stats
	s.Pending = len(o.order)
	s.InFlight = o.inflight
	return s
}

// Flush waits until every queued command has been sent or ctx is done.
func (o *Outbox) Flush(ctx context.Context) error {
	for {
		o.mu.Lock()
		idle := len(o.order) == 0 && o.inflight == 0
		o.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-o.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Close flushes within ctx, then stops the worker. Commands still pending when ctx
// expires are dropped with a warning.
func (o *Outbox) Close(ctx context.Context) error {
	err := o.Flush(ctx)
	o.once.Do(func() {
		o.mu.Lock()
		o.closing = true
		if n := len(o.order); n > 0 {
			o.log.Warn("closing with pending commands", slog.Int("pending", n))
		}
		o.mu.Unlock()
		close(o.closed)
	})
	<-o.done
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (o *Outbox) loop() {
	defer close(o.done)
	for {
		select {
		case <-o.closed:
			return
		case <-o.wake:
		}
		for {
			c := o.next()
			if c == nil {
				break
			}
			o.send(c)
		}
	}
}

func (o *Outbox) next() *command {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closing || len(o.order) == 0 {
		return nil
	}
	key := o.order[0]
	o.order = o.order[1:]
	c := o.pending[key]
	delete(o.pending, key)
	o.inflight++
	return c
}

func (o *Outbox) send(c *command) {
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.Timeout)
	err := c.run(ctx, o.be)
	cancel()
	o.mu.Lock()
	o.inflight--
	if err != nil {
		o.stats.Failed++
	} else {
		o.stats.Sent++
	}
	o.mu.Unlock()
	if err != nil {
		failedTotal.WithLabelValues(c.op).Inc()
		o.log.Warn("persist failed", slog.String("op", c.op), slog.String("id", c.id), slog.Any("err", err))
		if o.opts.OnError != nil {
			o.opts.OnError(c.op, c.id, err)
		}
		return
	}
	sentTotal.WithLabelValues(c.op).Inc()
}
