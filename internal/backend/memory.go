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
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"storyloom/internal/domain"
)

// Memory is an in-process Backend that keeps rows in insertion order.
// Besides the contract it offers seeding and failure injection for tests and demos.
type Memory struct {
	mu      sync.Mutex
	nodes   []domain.StorylineNode
	edges   []domain.Connection
	catalog []domain.CatalogElement
	fail    map[string]error
	calls   map[string]int
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{fail: map[string]error{}, calls: map[string]int{}, now: time.Now}
}

// Fail makes every later call of op (a method name such as "UpdateNode") return err.
// A nil err clears the failure.
func (m *Memory) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, op)
		return
	}
	m.fail[op] = err
}

// Calls reports how many times op was invoked, failures included.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// PutNode stores n as-is, bypassing validation. Used to seed legacy or broken data.
func (m *Memory) PutNode(n domain.StorylineNode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = append(m.nodes, n)
}

func (m *Memory) PutEdge(e domain.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges = append(m.edges, e)
}

func (m *Memory) PutCatalog(c domain.CatalogElement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog = append(m.catalog, cloneCatalog(c))
}

// enter records the call and returns the injected failure, if any. Caller holds mu.
func (m *Memory) enter(ctx context.Context, op string) error {
	m.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.fail[op]
}

func (m *Memory) FetchNodes(ctx context.Context, projectID string) ([]domain.StorylineNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "FetchNodes"); err != nil {
		return nil, err
	}
	var out []domain.StorylineNode
	for _, n := range m.nodes {
		if n.ProjectID == projectID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *Memory) FetchEdges(ctx context.Context, projectID string) ([]domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "FetchEdges"); err != nil {
		return nil, err
	}
	var out []domain.Connection
	for _, e := range m.edges {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) FetchCatalog(ctx context.Context, projectID string) ([]domain.CatalogElement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "FetchCatalog"); err != nil {
		return nil, err
	}
	var out []domain.CatalogElement
	for _, c := range m.catalog {
		if c.ProjectID == projectID {
			out = append(out, cloneCatalog(c))
		}
	}
	return out, nil
}

func (m *Memory) CreateNode(ctx context.Context, in domain.NewNode) (domain.StorylineNode, error) {
	if err := domain.Validate(in); err != nil {
		return domain.StorylineNode{}, fmt.Errorf("create node: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "CreateNode"); err != nil {
		return domain.StorylineNode{}, err
	}
	ts := m.now().UTC()
	n := domain.StorylineNode{
		ID: uuid.NewString(), ProjectID: in.ProjectID, Title: in.Title, Content: in.Content,
		Type: in.Type, Position: in.Position, CreatedAt: ts, UpdatedAt: ts,
	}
	m.nodes = append(m.nodes, n)
	return n, nil
}

func (m *Memory) UpdateNode(ctx context.Context, id string, p domain.NodePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "UpdateNode"); err != nil {
		return err
	}
	for i := range m.nodes {
		if m.nodes[i].ID == id {
			p.Apply(&m.nodes[i])
			m.nodes[i].UpdatedAt = m.now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) DeleteNode(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "DeleteNode"); err != nil {
		return err
	}
	for i := range m.nodes {
		if m.nodes[i].ID == id {
			m.nodes = append(m.nodes[:i], m.nodes[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) CreateEdge(ctx context.Context, in domain.NewEdge) (domain.Connection, error) {
	if err := domain.Validate(in); err != nil {
		return domain.Connection{}, fmt.Errorf("create edge: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "CreateEdge"); err != nil {
		return domain.Connection{}, err
	}
	ts := m.now().UTC()
	e := domain.Connection{
		ID: uuid.NewString(), ProjectID: in.ProjectID, SourceID: in.SourceID, TargetID: in.TargetID,
		Label: in.Label, CreatedAt: ts, UpdatedAt: ts,
	}
	m.edges = append(m.edges, e)
	return e, nil
}

func (m *Memory) UpdateEdge(ctx context.Context, id string, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "UpdateEdge"); err != nil {
		return err
	}
	for i := range m.edges {
		if m.edges[i].ID == id {
			m.edges[i].Label = label
			m.edges[i].UpdatedAt = m.now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) DeleteEdge(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "DeleteEdge"); err != nil {
		return err
	}
	for i := range m.edges {
		if m.edges[i].ID == id {
			m.edges = append(m.edges[:i], m.edges[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) DeleteEdgesTouching(ctx context.Context, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "DeleteEdgesTouching"); err != nil {
		return err
	}
	kept := m.edges[:0]
	for _, e := range m.edges {
		if !e.Touches(nodeID) {
			kept = append(kept, e)
		}
	}
	m.edges = kept
	return nil
}

func (m *Memory) CreateCatalogElement(ctx context.Context, in domain.NewCatalogElement) (domain.CatalogElement, error) {
	if err := domain.Validate(in); err != nil {
		return domain.CatalogElement{}, fmt.Errorf("create catalog element: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "CreateCatalogElement"); err != nil {
		return domain.CatalogElement{}, err
	}
	ts := m.now().UTC()
	c := domain.CatalogElement{
		ID: uuid.NewString(), ProjectID: in.ProjectID, Name: in.Name, Type: in.Type,
		Description: in.Description, StorylineNodeID: in.StorylineNodeID,
		CreatedFromStoryline: in.CreatedFromStoryline, CreatedAt: ts, UpdatedAt: ts,
	}
	c = cloneCatalog(c)
	m.catalog = append(m.catalog, c)
	return cloneCatalog(c), nil
}

func (m *Memory) UpdateCatalogElement(ctx context.Context, id string, p domain.CatalogPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "UpdateCatalogElement"); err != nil {
		return err
	}
	for i := range m.catalog {
		if m.catalog[i].ID == id {
			p.Apply(&m.catalog[i])
			m.catalog[i].UpdatedAt = m.now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) DeleteCatalogElement(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "DeleteCatalogElement"); err != nil {
		return err
	}
	for i := range m.catalog {
		if m.catalog[i].ID == id {
			m.catalog = append(m.catalog[:i], m.catalog[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) UpdateCatalogByNode(ctx context.Context, nodeID string, p domain.CatalogPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "UpdateCatalogByNode"); err != nil {
		return err
	}
	ts := m.now().UTC()
	for i := range m.catalog {
		if m.catalog[i].LinkedTo(nodeID) {
			p.Apply(&m.catalog[i])
			m.catalog[i].UpdatedAt = ts
		}
	}
	return nil
}

func cloneCatalog(c domain.CatalogElement) domain.CatalogElement {
	if c.StorylineNodeID != nil {
		id := *c.StorylineNodeID
		c.StorylineNodeID = &id
	}
	return c
}
