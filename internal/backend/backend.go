/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package backend holds the persistence contract of the storyline graph and its
// adapters: in-memory, SQL (SQLite and Postgres), Supabase and a circuit-breaker
// decorator that wraps any of them.
package backend

import (
	"context"
	"errors"

	"storyloom/internal/domain"
)

// ErrNotFound is returned when an update or delete addresses a missing row.
var ErrNotFound = errors.New("not found")

// Backend is the CRUD contract the graph store and catalog sync consume.
type Backend interface {
	FetchNodes(ctx context.Context, projectID string) ([]domain.StorylineNode, error)
	FetchEdges(ctx context.Context, projectID string) ([]domain.Connection, error)
	FetchCatalog(ctx context.Context, projectID string) ([]domain.CatalogElement, error)

	CreateNode(ctx context.Context, n domain.NewNode) (domain.StorylineNode, error)
	UpdateNode(ctx context.Context, id string, p domain.NodePatch) error
	DeleteNode(ctx context.Context, id string) error

	CreateEdge(ctx context.Context, e domain.NewEdge) (domain.Connection, error)
	UpdateEdge(ctx context.Context, id string, label string) error
	DeleteEdge(ctx context.Context, id string) error
	// DeleteEdgesTouching removes every edge with nodeID as source or target.
	DeleteEdgesTouching(ctx context.Context, nodeID string) error

	CreateCatalogElement(ctx context.Context, c domain.NewCatalogElement) (domain.CatalogElement, error)
	UpdateCatalogElement(ctx context.Context, id string, p domain.CatalogPatch) error
	DeleteCatalogElement(ctx context.Context, id string) error
	// UpdateCatalogByNode patches the entries whose storyline_node_id equals nodeID.
	// No match is not an error.
	UpdateCatalogByNode(ctx context.Context, nodeID string, p domain.CatalogPatch) error
}

type field struct {
	col string
	val any
}

// nodeFields lists the columns a node patch touches. Position values are domain.Position.
func nodeFields(p domain.NodePatch) []field {
	var fs []field
	if p.Title != nil {
		fs = append(fs, field{"title", *p.Title})
	}
	if p.Content != nil {
		fs = append(fs, field{"content", *p.Content})
	}
	if p.Type != nil {
		fs = append(fs, field{"node_type", string(*p.Type)})
	}
	if p.Position != nil {
		fs = append(fs, field{"position", *p.Position})
	}
	return fs
}

// catalogFields lists the columns a catalog patch touches. A nil val means SQL NULL.
func catalogFields(p domain.CatalogPatch) []field {
	var fs []field
	if p.Name != nil {
		fs = append(fs, field{"name", *p.Name})
	}
	if p.Type != nil {
		fs = append(fs, field{"type", string(*p.Type)})
	}
	if p.Description != nil {
		fs = append(fs, field{"description", *p.Description})
	}
	switch {
	case p.Unlink:
		fs = append(fs, field{"storyline_node_id", nil}, field{"created_from_storyline", false})
	default:
		if p.Link != nil {
			fs = append(fs, field{"storyline_node_id", *p.Link})
		}
		if p.CreatedFromStoryline != nil {
			fs = append(fs, field{"created_from_storyline", *p.CreatedFromStoryline})
		}
	}
	return fs
}
