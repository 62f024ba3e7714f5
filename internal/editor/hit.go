/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package editor

import (
	"unicode/utf8"

	"storyloom/internal/domain"
	"storyloom/internal/vector"
)

// AnchorRadiusPx is the grab radius of a connection anchor in screen pixels.
const AnchorRadiusPx = 8

// Label boxes use the 7x13 bitmap face metrics.
const (
	labelCharW = 7
	labelLineH = 13
	labelPad   = 6
)

// HitKind says what lies under a pointer.
type HitKind int

const (
	HitNone HitKind = iota
	HitAnchor
	HitNode
	HitEdgeLabel
	HitEdge
)

func (k HitKind) String() string {
	switch k {
	case HitAnchor:
		return "anchor"
	case HitNode:
		return "node"
	case HitEdgeLabel:
		return "edge_label"
	case HitEdge:
		return "edge"
	}
	return "none"
}

// Hit is the result of a hit test. NodeID is set for anchors and nodes, EdgeID for edges.
type Hit struct {
	Kind   HitKind
	NodeID string
	EdgeID string
	Side   vector.Side
	World  vector.Pt
}

func (h Hit) OnNode() bool { return h.Kind == HitAnchor || h.Kind == HitNode }

// NodeRect is the world-space box of a node; the position is its top-left corner.
func (s *Session) NodeRect(n domain.StorylineNode) vector.Rect {
	return vector.RectAt(n.Position.Pt(), s.opts.NodeSize)
}

// EdgeEnds returns the anchor points an edge is drawn between.
func (s *Session) EdgeEnds(a, b domain.StorylineNode) (vector.Pt, vector.Pt) {
	return vector.ClosestAnchors(s.NodeRect(a), s.NodeRect(b))
}

// LabelRect is the world-space box of an edge label centered on mid.
func LabelRect(mid vector.Pt, label string) vector.Rect {
	w := float64(utf8.RuneCountInString(label)*labelCharW + 2*labelPad)
	h := float64(labelLineH + 2*labelPad)
	return vector.R(mid.X-w/2, mid.Y-h/2, w, h)
}

// HitTest resolves a screen point. Anchors win over node bodies, nodes over
// edges, and later nodes over earlier ones since they are drawn on top.
func (s *Session) HitTest(screen vector.Pt) Hit {
	w := s.vp.ToWorld(screen)
	nodes := s.st.Nodes()
	r := AnchorRadiusPx / s.vp.Zoom
	for i := len(nodes) - 1; i >= 0; i-- {
		rect := s.NodeRect(nodes[i])
		for _, side := range vector.Sides {
			if rect.Anchor(side).Dist(w) <= r {
				return Hit{Kind: HitAnchor, NodeID: nodes[i].ID, Side: side, World: w}
			}
		}
	}
	for i := len(nodes) - 1; i >= 0; i-- {
		if s.NodeRect(nodes[i]).Contains(w) {
			return Hit{Kind: HitNode, NodeID: nodes[i].ID, World: w}
		}
	}
	edges := s.st.Edges()
	for i := len(edges) - 1; i >= 0; i-- {
		e := edges[i]
		if e.Label == "" {
			continue
		}
		if a, b, ok := s.edgeEnds(e); ok && LabelRect(vector.Mid(a, b), e.Label).Contains(w) {
			return Hit{Kind: HitEdgeLabel, EdgeID: e.ID, World: w}
		}
	}
	half := s.vp.EdgeHitWidth() / 2
	for i := len(edges) - 1; i >= 0; i-- {
		if a, b, ok := s.edgeEnds(edges[i]); ok && vector.DistToSegment(w, a, b) <= half {
			return Hit{Kind: HitEdge, EdgeID: edges[i].ID, World: w}
		}
	}
	return Hit{World: w}
}

func (s *Session) edgeEnds(e domain.Connection) (vector.Pt, vector.Pt, bool) {
	a, okA := s.st.Node(e.SourceID)
	b, okB := s.st.Node(e.TargetID)
	if !okA || !okB {
		return vector.Pt{}, vector.Pt{}, false
	}
	pa, pb := s.EdgeEnds(a, b)
	return pa, pb, true
}
