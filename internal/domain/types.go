/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

// Core data model of the storyline graph: nodes, the edges between them and the
// world-building catalog entries that mirror nodes.

import (
	"time"

	"storyloom/internal/vector"
)

// Field limits shared by validation and the edit forms.
const (
	MaxTitleLen = 200
	MaxLabelLen = 200
)

// Position is a world-space point as persisted: {"x":..,"y":..}.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Position) Pt() vector.Pt       { return vector.Pt{X: p.X, Y: p.Y} }
func PositionOf(pt vector.Pt) Position { return Position{X: pt.X, Y: pt.Y} }

// StorylineNode is one story element on the graph. Position is the top-left corner of its box.
type StorylineNode struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Type      NodeType  `json:"node_type"`
	Position  Position  `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Connection is an undirected narrative relation between two nodes of one project.
type Connection struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	SourceID  string    `json:"source_id"`
	TargetID  string    `json:"target_id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Pair returns the unordered endpoint key of the edge.
func (c Connection) Pair() PairKey { return MakePair(c.SourceID, c.TargetID) }

// Touches reports whether nodeID is one of the endpoints.
func (c Connection) Touches(nodeID string) bool {
	return c.SourceID == nodeID || c.TargetID == nodeID
}

// CatalogElement is a world-building entry that may be linked to exactly one node.
type CatalogElement struct {
	ID                   string    `json:"id"`
	ProjectID            string    `json:"project_id"`
	Name                 string    `json:"name"`
	Type                 NodeType  `json:"type"`
	Description          string    `json:"description"`
	StorylineNodeID      *string   `json:"storyline_node_id"`
	CreatedFromStoryline bool      `json:"created_from_storyline"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// LinkedTo reports whether the entry's back-reference points at nodeID.
func (c CatalogElement) LinkedTo(nodeID string) bool {
	return c.StorylineNodeID != nil && *c.StorylineNodeID == nodeID
}

// PairKey identifies an unordered node pair; A <= B lexically.
type PairKey struct{ A, B string }

func MakePair(a, b string) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}

// NewNode carries the fields of a node to be created. The backend assigns id and timestamps.
type NewNode struct {
	ProjectID string `validate:"required"`
	Title     string `validate:"max=200"`
	Content   string
	Type      NodeType `validate:"nodetype"`
	Position  Position
}

// NewEdge carries the fields of an edge to be created.
type NewEdge struct {
	ProjectID string `validate:"required"`
	SourceID  string `validate:"required"`
	TargetID  string `validate:"required,nefield=SourceID"`
	Label     string `validate:"max=200"`
}

// NewCatalogElement carries the fields of a catalog entry to be created.
type NewCatalogElement struct {
	ProjectID            string   `validate:"required"`
	Name                 string   `validate:"max=200"`
	Type                 NodeType `validate:"nodetype"`
	Description          string
	StorylineNodeID      *string
	CreatedFromStoryline bool
}

// NodePatch updates only the non-nil fields.
type NodePatch struct {
	Title    *string `validate:"omitempty,max=200"`
	Content  *string
	Type     *NodeType `validate:"omitempty,nodetype"`
	Position *Position
}

func (p NodePatch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.Type == nil && p.Position == nil
}

// Apply writes the patch into n.
func (p NodePatch) Apply(n *StorylineNode) {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	if p.Type != nil {
		n.Type = *p.Type
	}
	if p.Position != nil {
		n.Position = *p.Position
	}
}

// Merge layers q over p; fields set in q win.
func (p NodePatch) Merge(q NodePatch) NodePatch {
	if q.Title != nil {
		p.Title = q.Title
	}
	if q.Content != nil {
		p.Content = q.Content
	}
	if q.Type != nil {
		p.Type = q.Type
	}
	if q.Position != nil {
		p.Position = q.Position
	}
	return p
}

// CatalogPatch updates the non-nil fields of a catalog entry. Link sets the
// back-reference; Unlink clears it together with the created-from-storyline flag.
type CatalogPatch struct {
	Name                 *string   `validate:"omitempty,max=200"`
	Type                 *NodeType `validate:"omitempty,nodetype"`
	Description          *string
	Link                 *string
	CreatedFromStoryline *bool
	Unlink               bool
}

func (p CatalogPatch) Apply(c *CatalogElement) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Type != nil {
		c.Type = *p.Type
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Link != nil {
		id := *p.Link
		c.StorylineNodeID = &id
	}
	if p.CreatedFromStoryline != nil {
		c.CreatedFromStoryline = *p.CreatedFromStoryline
	}
	if p.Unlink {
		c.StorylineNodeID = nil
		c.CreatedFromStoryline = false
	}
}

// Ptr is a small helper for building patches.
func Ptr[T any](v T) *T { return &v }
