/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package store keeps the working copy of one project's storyline graph: nodes,
// edges and catalog entries. Full loads run the integrity pass that removes
// duplicate and orphaned edges. Local state is updated optimistically; backend
// failures are logged and reported but never rolled back.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"storyloom/internal/backend"
	"storyloom/internal/domain"
	applog "storyloom/internal/log"
	"storyloom/internal/outbox"
)

var (
	ErrUnknownNode   = errors.New("unknown node")
	ErrUnknownEdge   = errors.New("unknown edge")
	ErrSelfLoop      = errors.New("edge endpoints must differ")
	ErrDuplicateEdge = errors.New("an edge already joins these nodes")
)

var (
	integrityRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storyloom",
		Subsystem: "integrity",
		Name:      "edges_removed_total",
		Help:      "Edges excluded from the working set by the load-time integrity pass.",
	}, []string{"reason"})
	integrityDeleteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storyloom",
		Subsystem: "integrity",
		Name:      "delete_failures_total",
		Help:      "Backend deletes that failed during the integrity pass.",
	})
	persistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storyloom",
		Subsystem: "store",
		Name:      "persist_failures_total",
		Help:      "Synchronous backend mutations that failed.",
	}, []string{"op"})
)

// LoadReport summarizes one full load.
type LoadReport struct {
	Nodes          int
	Edges          int
	Catalog        int
	DuplicateEdges int
	OrphanEdges    int
	SelfLoops      int
	FailedDeletes  int
}

// Store is safe for concurrent use; the editor session and the outbox worker share it.
type Store struct {
	be        backend.Backend
	out       *outbox.Outbox
	projectID string
	log       *slog.Logger

	mu      sync.RWMutex
	nodes   ordered[domain.StorylineNode]
	edges   ordered[domain.Connection]
	catalog ordered[domain.CatalogElement]
	pairs   map[domain.PairKey]string

	listeners map[int]func(ctx context.Context, nodeID string)
	nextSub   int
}

func New(be backend.Backend, out *outbox.Outbox, projectID string) *Store {
	return &Store{
		be:        be,
		out:       out,
		projectID: projectID,
		log:       applog.WithComponent("store").With(slog.String("project", projectID)),
		nodes:     newOrdered[domain.StorylineNode](),
		edges:     newOrdered[domain.Connection](),
		catalog:   newOrdered[domain.CatalogElement](),
		pairs:     map[domain.PairKey]string{},
		listeners: map[int]func(context.Context, string){},
	}
}

// OnNodeRemoved registers fn to run after a node leaves the working set, either
// through DeleteNode or because a reload no longer returns it. fn runs on the
// caller's goroutine without the store lock held. The returned func unregisters it.
func (s *Store) OnNodeRemoved(fn func(ctx context.Context, nodeID string)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notifyRemoved(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	s.mu.RLock()
	keys := make([]int, 0, len(s.listeners))
	for k := range s.listeners {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	fns := make([]func(context.Context, string), 0, len(keys))
	for _, k := range keys {
		fns = append(fns, s.listeners[k])
	}
	s.mu.RUnlock()
	for _, id := range ids {
		for _, fn := range fns {
			fn(ctx, id)
		}
	}
}

func (s *Store) ProjectID() string        { return s.projectID }
func (s *Store) Backend() backend.Backend { return s.be }
func (s *Store) Outbox() *outbox.Outbox   { return s.out }

// Load fetches the project, runs the integrity pass and swaps the working set.
// Queued writes are flushed first so the pass sees the session's own edits.
// A fetch failure leaves the current state untouched and is returned.
func (s *Store) Load(ctx context.Context) (LoadReport, error) {
	l := applog.WithOperation(s.log, "load")
	var rep LoadReport
	if s.out != nil {
		if err := s.out.Flush(ctx); err != nil {
			l.WarnContext(ctx, "outbox flush before load failed", slog.Any("err", err))
		}
	}
	nodes, err := s.be.FetchNodes(ctx, s.projectID)
	if err != nil {
		l.ErrorContext(ctx, "fetch nodes failed", slog.Any("err", err))
		return rep, fmt.Errorf("load nodes: %w", err)
	}
	edges, err := s.be.FetchEdges(ctx, s.projectID)
	if err != nil {
		l.ErrorContext(ctx, "fetch edges failed", slog.Any("err", err))
		return rep, fmt.Errorf("load edges: %w", err)
	}
	catalog, err := s.be.FetchCatalog(ctx, s.projectID)
	if err != nil {
		l.ErrorContext(ctx, "fetch catalog failed", slog.Any("err", err))
		return rep, fmt.Errorf("load catalog: %w", err)
	}

	clean := Integrity(nodes, edges)
	rep.DuplicateEdges = len(clean.Duplicates)
	rep.OrphanEdges = len(clean.Orphans)
	rep.SelfLoops = len(clean.SelfLoops)
	s.removeEdges(ctx, l, "duplicate", clean.Duplicates, &rep)
	s.removeEdges(ctx, l, "orphan", clean.Orphans, &rep)
	s.removeEdges(ctx, l, "self_loop", clean.SelfLoops, &rep)

	s.mu.Lock()
	prev := s.nodes
	s.nodes = newOrdered[domain.StorylineNode]()
	for _, n := range nodes {
		s.nodes.put(n.ID, n)
	}
	var gone []string
	for _, n := range prev.list() {
		if _, ok := s.nodes.get(n.ID); !ok {
			gone = append(gone, n.ID)
		}
	}
	s.edges = newOrdered[domain.Connection]()
	s.pairs = make(map[domain.PairKey]string, len(clean.Keep))
	for _, e := range clean.Keep {
		s.edges.put(e.ID, e)
		s.pairs[e.Pair()] = e.ID
	}
	s.catalog = newOrdered[domain.CatalogElement]()
	for _, c := range catalog {
		s.catalog.put(c.ID, c)
	}
	s.mu.Unlock()
	s.notifyRemoved(ctx, gone)

	rep.Nodes, rep.Edges, rep.Catalog = len(nodes), len(clean.Keep), len(catalog)
	if len(clean.Removed()) > 0 {
		l.InfoContext(ctx, "integrity pass removed edges",
			slog.Int("duplicates", rep.DuplicateEdges), slog.Int("orphans", rep.OrphanEdges),
			slog.Int("self_loops", rep.SelfLoops), slog.Int("failed_deletes", rep.FailedDeletes))
	}
	l.DebugContext(ctx, "loaded", slog.Int("nodes", rep.Nodes), slog.Int("edges", rep.Edges), slog.Int("catalog", rep.Catalog))
	return rep, nil
}

func (s *Store) removeEdges(ctx context.Context, l *slog.Logger, reason string, edges []domain.Connection, rep *LoadReport) {
	for _, e := range edges {
		integrityRemoved.WithLabelValues(reason).Inc()
		if err := s.be.DeleteEdge(ctx, e.ID); err != nil && !errors.Is(err, backend.ErrNotFound) {
			rep.FailedDeletes++
			integrityDeleteFailures.Inc()
			l.WarnContext(ctx, "integrity delete failed", slog.String("reason", reason), slog.String("edge", e.ID), slog.Any("err", err))
		}
	}
}

// ---- read access ----

func (s *Store) Node(id string) (domain.StorylineNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes.get(id)
}

// Nodes returns all nodes in load/creation order.
func (s *Store) Nodes() []domain.StorylineNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes.list()
}

func (s *Store) Edge(id string) (domain.Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edges.get(id)
}

func (s *Store) Edges() []domain.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edges.list()
}

// HasEdgeBetween reports whether any edge joins a and b, in either direction.
func (s *Store) HasEdgeBetween(a, b string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pairs[domain.MakePair(a, b)]
	return ok
}

func (s *Store) EdgesTouching(nodeID string) []domain.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Connection
	for _, e := range s.edges.list() {
		if e.Touches(nodeID) {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) CatalogElement(id string) (domain.CatalogElement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.get(id)
}

func (s *Store) Catalog() []domain.CatalogElement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.list()
}

// CatalogForNode returns the entry linked to nodeID.
func (s *Store) CatalogForNode(nodeID string) (domain.CatalogElement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.catalog.list() {
		if c.LinkedTo(nodeID) {
			return c, true
		}
	}
	return domain.CatalogElement{}, false
}

// ---- node mutations ----

// SetNodePosition moves a node locally right away and queues the write.
func (s *Store) SetNodePosition(id string, p domain.Position) error {
	s.mu.Lock()
	n, ok := s.nodes.get(id)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("move %s: %w", id, ErrUnknownNode)
	}
	n.Position = p
	s.nodes.put(id, n)
	s.mu.Unlock()
	if s.out != nil {
		s.out.UpdateNode(id, domain.NodePatch{Position: &p})
	}
	return nil
}

// CreateNode persists a node and adds it to the working set.
func (s *Store) CreateNode(ctx context.Context, in domain.NewNode) (domain.StorylineNode, error) {
	in.ProjectID = s.projectID
	if err := domain.Validate(in); err != nil {
		return domain.StorylineNode{}, fmt.Errorf("create node: %w", err)
	}
	n, err := s.be.CreateNode(ctx, in)
	if err != nil {
		s.failed(ctx, "create_node", "", err)
		return domain.StorylineNode{}, fmt.Errorf("create node: %w", err)
	}
	s.mu.Lock()
	s.nodes.put(n.ID, n)
	s.mu.Unlock()
	return n, nil
}

// UpdateNode applies an edit-form patch locally, then writes it through.
// The local change is kept when the write fails.
func (s *Store) UpdateNode(ctx context.Context, id string, p domain.NodePatch) (domain.StorylineNode, error) {
	if err := domain.Validate(p); err != nil {
		return domain.StorylineNode{}, fmt.Errorf("update node: %w", err)
	}
	s.mu.Lock()
	n, ok := s.nodes.get(id)
	if !ok {
		s.mu.Unlock()
		return domain.StorylineNode{}, fmt.Errorf("update node %s: %w", id, ErrUnknownNode)
	}
	p.Apply(&n)
	s.nodes.put(id, n)
	s.mu.Unlock()
	if p.Empty() {
		return n, nil
	}
	if err := s.be.UpdateNode(ctx, id, p); err != nil {
		s.failed(ctx, "update_node", id, err)
		return n, fmt.Errorf("update node %s: %w", id, err)
	}
	return n, nil
}

// DeleteNode removes the node and every edge touching it, locally and in the backend.
// Catalog handling is the caller's business.
func (s *Store) DeleteNode(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.nodes.get(id); !ok {
		s.mu.Unlock()
		return fmt.Errorf("delete node %s: %w", id, ErrUnknownNode)
	}
	var touching []string
	for _, e := range s.edges.list() {
		if e.Touches(id) {
			touching = append(touching, e.ID)
			s.dropEdgeLocked(e)
		}
	}
	s.nodes.remove(id)
	s.mu.Unlock()
	s.notifyRemoved(ctx, []string{id})

	if s.out != nil {
		s.out.DiscardNode(id)
		for _, eid := range touching {
			s.out.DiscardEdge(eid)
		}
	}
	var errs []error
	if err := s.be.DeleteEdgesTouching(ctx, id); err != nil {
		s.failed(ctx, "delete_edges", id, err)
		errs = append(errs, fmt.Errorf("delete edges of %s: %w", id, err))
	}
	if err := s.be.DeleteNode(ctx, id); err != nil && !errors.Is(err, backend.ErrNotFound) {
		s.failed(ctx, "delete_node", id, err)
		errs = append(errs, fmt.Errorf("delete node %s: %w", id, err))
	}
	return errors.Join(errs...)
}

// ---- edge mutations ----

// CreateEdge joins two distinct known nodes that are not yet connected.
func (s *Store) CreateEdge(ctx context.Context, sourceID, targetID, label string) (domain.Connection, error) {
	if sourceID == targetID {
		return domain.Connection{}, ErrSelfLoop
	}
	s.mu.RLock()
	_, okS := s.nodes.get(sourceID)
	_, okT := s.nodes.get(targetID)
	_, dup := s.pairs[domain.MakePair(sourceID, targetID)]
	s.mu.RUnlock()
	if !okS || !okT {
		return domain.Connection{}, fmt.Errorf("create edge %s-%s: %w", sourceID, targetID, ErrUnknownNode)
	}
	if dup {
		return domain.Connection{}, ErrDuplicateEdge
	}
	e, err := s.be.CreateEdge(ctx, domain.NewEdge{ProjectID: s.projectID, SourceID: sourceID, TargetID: targetID, Label: label})
	if err != nil {
		s.failed(ctx, "create_edge", "", err)
		return domain.Connection{}, fmt.Errorf("create edge: %w", err)
	}
	s.mu.Lock()
	s.edges.put(e.ID, e)
	s.pairs[e.Pair()] = e.ID
	s.mu.Unlock()
	return e, nil
}

// UpdateEdgeLabel sets the label locally and queues the write.
func (s *Store) UpdateEdgeLabel(id, label string) error {
	if len(label) > domain.MaxLabelLen {
		return fmt.Errorf("edge label: %w: longer than %d", domain.ErrInvalid, domain.MaxLabelLen)
	}
	s.mu.Lock()
	e, ok := s.edges.get(id)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("label %s: %w", id, ErrUnknownEdge)
	}
	e.Label = label
	s.edges.put(id, e)
	s.mu.Unlock()
	if s.out != nil {
		s.out.UpdateEdge(id, label)
	}
	return nil
}

func (s *Store) DeleteEdge(ctx context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.edges.get(id)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("delete edge %s: %w", id, ErrUnknownEdge)
	}
	s.dropEdgeLocked(e)
	s.mu.Unlock()
	if s.out != nil {
		s.out.DiscardEdge(id)
	}
	if err := s.be.DeleteEdge(ctx, id); err != nil && !errors.Is(err, backend.ErrNotFound) {
		s.failed(ctx, "delete_edge", id, err)
		return fmt.Errorf("delete edge %s: %w", id, err)
	}
	return nil
}

func (s *Store) dropEdgeLocked(e domain.Connection) {
	s.edges.remove(e.ID)
	if s.pairs[e.Pair()] == e.ID {
		delete(s.pairs, e.Pair())
	}
}

// ---- catalog cache ----
// The catalog package performs the backend calls and mirrors results here.

func (s *Store) PutCatalog(c domain.CatalogElement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog.put(c.ID, c)
}

func (s *Store) PatchCatalog(id string, p domain.CatalogPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.catalog.get(id)
	if !ok {
		return false
	}
	p.Apply(&c)
	s.catalog.put(id, c)
	return true
}

// PatchCatalogByNode patches every entry linked to nodeID and returns how many matched.
func (s *Store) PatchCatalogByNode(nodeID string, p domain.CatalogPatch) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.catalog.list() {
		if c.LinkedTo(nodeID) {
			p.Apply(&c)
			s.catalog.put(c.ID, c)
			n++
		}
	}
	return n
}

func (s *Store) RemoveCatalog(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog.remove(id)
}

func (s *Store) failed(ctx context.Context, op, id string, err error) {
	persistFailures.WithLabelValues(op).Inc()
	s.log.WarnContext(ctx, "persist failed", slog.String("op", op), slog.String("id", id), slog.Any("err", err))
}

// Summary is a one-line description for CLI output.
func (r LoadReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d nodes, %d edges, %d catalog entries", r.Nodes, r.Edges, r.Catalog)
	if n := r.DuplicateEdges + r.OrphanEdges + r.SelfLoops; n > 0 {
		fmt.Fprintf(&b, "; removed %d duplicate, %d orphaned, %d self-loop edges", r.DuplicateEdges, r.OrphanEdges, r.SelfLoops)
	}
	if r.FailedDeletes > 0 {
		fmt.Fprintf(&b, " (%d deletes failed)", r.FailedDeletes)
	}
	return b.String()
}
