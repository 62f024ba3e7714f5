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
	"storyloom/internal/domain"
	"storyloom/internal/vector"
)

// Scene is a read-only snapshot of everything the renderer draws.
type Scene struct {
	Zoom     float64
	Pan      vector.Pt
	GridSize float64
	Nodes    []SceneNode
	Edges    []SceneEdge
	Preview  *Preview
	Label    *LabelEditor
}

type SceneNode struct {
	domain.StorylineNode
	Rect     vector.Rect
	Selected bool
	Dragging bool
}

// SceneEdge carries the endpoint types so edges can be tinted by the pair they join.
type SceneEdge struct {
	domain.Connection
	From, To               vector.Pt
	SourceType, TargetType domain.NodeType
}

func (e SceneEdge) Mid() vector.Pt { return vector.Mid(e.From, e.To) }

// Scene snapshots the session. Edges with a missing endpoint are skipped.
func (s *Session) Scene() Scene {
	sc := Scene{Zoom: s.vp.Zoom, Pan: s.vp.Pan, GridSize: s.opts.GridSize}
	nodes := s.st.Nodes()
	byID := make(map[string]domain.StorylineNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
		sc.Nodes = append(sc.Nodes, SceneNode{
			StorylineNode: n,
			Rect:          s.NodeRect(n),
			Selected:      n.ID == s.selected,
			Dragging:      n.ID == s.dragging,
		})
	}
	for _, e := range s.st.Edges() {
		a, okA := byID[e.SourceID]
		b, okB := byID[e.TargetID]
		if !okA || !okB {
			continue
		}
		from, to := s.EdgeEnds(a, b)
		sc.Edges = append(sc.Edges, SceneEdge{Connection: e, From: from, To: to, SourceType: a.Type, TargetType: b.Type})
	}
	if p, ok := s.Preview(); ok {
		sc.Preview = &p
	}
	if ed, ok := s.LabelEditor(); ok {
		sc.Label = &ed
	}
	return sc
}
