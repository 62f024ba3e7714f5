/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"storyloom/internal/domain"
	applog "storyloom/internal/log"
)

// BreakerSettings tune Guarded.
type BreakerSettings struct {
	Name         string
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
}

// Guarded decorates a Backend with a circuit breaker. Once the failure ratio trips
// the breaker, calls fail fast with gobreaker.ErrOpenState until OpenTimeout elapses.
// ErrNotFound and context cancellation do not count as failures.
type Guarded struct {
	next Backend
	cb   *gobreaker.CircuitBreaker
}

func NewGuarded(next Backend, s BreakerSettings) *Guarded {
	if s.Name == "" {
		s.Name = "backend"
	}
	if s.MinRequests == 0 {
		s.MinRequests = 5
	}
	if s.FailureRatio <= 0 {
		s.FailureRatio = 0.8
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	l := applog.WithComponent("backend.breaker")
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("breaker state changed", slog.String("name", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrInvalid)
		},
	})
	return &Guarded{next: next, cb: cb}
}

// State exposes the breaker state for status output.
func (g *Guarded) State() gobreaker.State { return g.cb.State() }

func run[T any](g *Guarded, fn func() (T, error)) (T, error) {
	v, err := g.cb.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func runErr(g *Guarded, fn func() error) error {
	_, err := g.cb.Execute(func() (interface{}, error) { return nil, fn() })
	return err
}

func (g *Guarded) FetchNodes(ctx context.Context, projectID string) ([]domain.StorylineNode, error) {
	return run(g, func() ([]domain.StorylineNode, error) { return g.next.FetchNodes(ctx, projectID) })
}

func (g *Guarded) FetchEdges(ctx context.Context, projectID string) ([]domain.Connection, error) {
	return run(g, func() ([]domain.Connection, error) { return g.next.FetchEdges(ctx, projectID) })
}

func (g *Guarded) FetchCatalog(ctx context.Context, projectID string) ([]domain.CatalogElement, error) {
	return run(g, func() ([]domain.CatalogElement, error) { return g.next.FetchCatalog(ctx, projectID) })
}

func (g *Guarded) CreateNode(ctx context.Context, n domain.NewNode) (domain.StorylineNode, error) {
	return run(g, func() (domain.StorylineNode, error) { return g.next.CreateNode(ctx, n) })
}

func (g *Guarded) UpdateNode(ctx context.Context, id string, p domain.NodePatch) error {
	return runErr(g, func() error { return g.next.UpdateNode(ctx, id, p) })
}

func (g *Guarded) DeleteNode(ctx context.Context, id string) error {
	return runErr(g, func() error { return g.next.DeleteNode(ctx, id) })
}

func (g *Guarded) CreateEdge(ctx context.Context, e domain.NewEdge) (domain.Connection, error) {
	return run(g, func() (domain.Connection, error) { return g.next.CreateEdge(ctx, e) })
}

func (g *Guarded) UpdateEdge(ctx context.Context, id string, label string) error {
	return runErr(g, func() error { return g.next.UpdateEdge(ctx, id, label) })
}

func (g *Guarded) DeleteEdge(ctx context.Context, id string) error {
	return runErr(g, func() error { return g.next.DeleteEdge(ctx, id) })
}

func (g *Guarded) DeleteEdgesTouching(ctx context.Context, nodeID string) error {
	return runErr(g, func() error { return g.next.DeleteEdgesTouching(ctx, nodeID) })
}

func (g *Guarded) CreateCatalogElement(ctx context.Context, c domain.NewCatalogElement) (domain.CatalogElement, error) {
	return run(g, func() (domain.CatalogElement, error) { return g.next.CreateCatalogElement(ctx, c) })
}

func (g *Guarded) UpdateCatalogElement(ctx context.Context, id string, p domain.CatalogPatch) error {
	return runErr(g, func() error { return g.next.UpdateCatalogElement(ctx, id, p) })
}

func (g *Guarded) DeleteCatalogElement(ctx context.Context, id string) error {
	return runErr(g, func() error { return g.next.DeleteCatalogElement(ctx, id) })
}

func (g *Guarded) UpdateCatalogByNode(ctx context.Context, nodeID string, p domain.CatalogPatch) error {
	return runErr(g, func() error { return g.next.UpdateCatalogByNode(ctx, nodeID, p) })
}
