/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package store

import (
	"sort"

	"storyloom/internal/domain"
)

// Cleanup is the outcome of the integrity pass over one fetch.
type Cleanup struct {
	// Keep is the working edge set in fetch order.
	Keep []domain.Connection
	// Duplicates lost their pair to a preferred edge; Orphans reference a missing node.
	Duplicates []domain.Connection
	Orphans    []domain.Connection
	// SelfLoops join a node to itself, which the editor never creates.
	SelfLoops []domain.Connection
}

// Removed lists every edge the pass wants deleted, duplicates first.
func (c Cleanup) Removed() []domain.Connection {
	out := make([]domain.Connection, 0, len(c.Duplicates)+len(c.Orphans)+len(c.SelfLoops))
	out = append(out, c.Duplicates...)
	out = append(out, c.Orphans...)
	return append(out, c.SelfLoops...)
}

// preferred reports whether a should survive over b for the same pair:
// the most recently updated edge wins, then the smallest id.
func preferred(a, b domain.Connection) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID < b.ID
}

// Integrity groups edges by unordered endpoint pair, keeps one edge per pair and
// then drops edges whose endpoints are not among nodes, and self-loops.
// It is pure; callers do the deletes.
func Integrity(nodes []domain.StorylineNode, edges []domain.Connection) Cleanup {
	var c Cleanup
	winner := make(map[domain.PairKey]int, len(edges))
	for i, e := range edges {
		k := e.Pair()
		j, ok := winner[k]
		if !ok || preferred(e, edges[j]) {
			winner[k] = i
		}
	}
	known := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		known[n.ID] = struct{}{}
	}
	for i, e := range edges {
		if winner[e.Pair()] != i {
			c.Duplicates = append(c.Duplicates, e)
			continue
		}
		_, okS := known[e.SourceID]
		_, okT := known[e.TargetID]
		switch {
		case !okS || !okT:
			c.Orphans = append(c.Orphans, e)
			continue
		case e.SourceID == e.TargetID:
			c.SelfLoops = append(c.SelfLoops, e)
			continue
		}
		c.Keep = append(c.Keep, e)
	}
	sort.SliceStable(c.Duplicates, func(i, j int) bool { return c.Duplicates[i].ID < c.Duplicates[j].ID })
	return c
}
