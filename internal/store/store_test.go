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
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"storyloom/internal/backend"
	"storyloom/internal/domain"
	"storyloom/internal/outbox"
)

const pid = "proj"

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func node(id string, x, y float64) domain.StorylineNode {
	return domain.StorylineNode{ID: id, ProjectID: pid, Title: id, Type: domain.Scene, Position: domain.Position{X: x, Y: y}, CreatedAt: t0, UpdatedAt: t0}
}

func edge(id, s, t string, updated time.Time) domain.Connection {
	return domain.Connection{ID: id, ProjectID: pid, SourceID: s, TargetID: t, CreatedAt: t0, UpdatedAt: updated}
}

func newStore(t *testing.T, mem *backend.Memory) *Store {
	t.Helper()
	out := outbox.New(mem, outbox.Options{})
	t.Cleanup(func() { _ = out.Close(context.Background()) })
	return New(mem, out, pid)
}

func TestLoadRemovesReversedDuplicate(t *testing.T) {
	mem := backend.NewMemory()
	mem.PutNode(node("A", 0, 0))
	mem.PutNode(node("B", 100, 100))
	mem.PutEdge(edge("e1", "A", "B", t0))
	mem.PutEdge(edge("e2", "B", "A", t0.Add(time.Minute)))
	s := newStore(t, mem)

	before := testutil.ToFloat64(integrityRemoved.WithLabelValues("duplicate"))
	rep, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rep.DuplicateEdges)
	require.Equal(t, 0, rep.FailedDeletes)
	require.Equal(t, before+1, testutil.ToFloat64(integrityRemoved.WithLabelValues("duplicate")))

	edges := s.Edges()
	require.Len(t, edges, 1)
	// most recently updated wins
	require.Equal(t, "e2", edges[0].ID)
	require.True(t, s.HasEdgeBetween("A", "B"))
	require.True(t, s.HasEdgeBetween("B", "A"))

	stored, err := mem.FetchEdges(context.Background(), pid)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestDuplicateTieBreakSmallestID(t *testing.T) {
	c := Integrity(
		[]domain.StorylineNode{node("A", 0, 0), node("B", 0, 0)},
		[]domain.Connection{edge("zz", "A", "B", t0), edge("aa", "B", "A", t0), edge("mm", "A", "B", t0)},
	)
	require.Len(t, c.Keep, 1)
	require.Equal(t, "aa", c.Keep[0].ID)
	require.Len(t, c.Duplicates, 2)
}

func TestLoadDropsOrphanOfDeletedNode(t *testing.T) {
	mem := backend.NewMemory()
	mem.PutNode(node("A", 0, 0))
	mem.PutNode(node("B", 10, 0))
	mem.PutEdge(edge("ok", "A", "B", t0))
	mem.PutEdge(edge("orphan", "A", "C", t0))
	mem.PutEdge(edge("loop", "B", "B", t0))
	s := newStore(t, mem)

	rep, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rep.OrphanEdges)
	require.Equal(t, 1, rep.SelfLoops)
	_, ok := s.Edge("orphan")
	require.False(t, ok)
	require.Len(t, s.Edges(), 1)
	require.Contains(t, rep.Summary(), "1 orphaned")
}

func TestLoadExcludesEdgesWhoseDeleteFailed(t *testing.T) {
	mem := backend.NewMemory()
	mem.PutNode(node("A", 0, 0))
	mem.PutEdge(edge("orphan", "A", "gone", t0))
	mem.Fail("DeleteEdge", errors.New("permission denied"))
	s := newStore(t, mem)

	failures := testutil.ToFloat64(integrityDeleteFailures)
	rep, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rep.FailedDeletes)
	require.Equal(t, failures+1, testutil.ToFloat64(integrityDeleteFailures))
	require.Empty(t, s.Edges())

	stored, _ := mem.FetchEdges(context.Background(), pid)
	require.Len(t, stored, 1, "backend still holds the edge")
}

func TestFetchFailureKeepsState(t *testing.T) {
	mem := backend.NewMemory()
	mem.PutNode(node("A", 0, 0))
	s := newStore(t, mem)
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	boom := errors.New("network down")
	mem.Fail("FetchEdges", boom)
	mem.PutNode(node("B", 0, 0))
	_, err = s.Load(context.Background())
	require.ErrorIs(t, err, boom)
	require.Len(t, s.Nodes(), 1, "state must be untouched")
}

func TestIntegrityInvariants(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	ids := []string{"a", "b", "c", "d", "e", "f"}
	for round := 0; round < 200; round++ {
		var nodes []domain.StorylineNode
		for _, id := range ids[:2+r.IntN(4)] {
			nodes = append(nodes, node(id, 0, 0))
		}
		var edges []domain.Connection
		for i := 0; i < r.IntN(20); i++ {
			edges = append(edges, edge(fmt.Sprintf("e%d", i), ids[r.IntN(len(ids))], ids[r.IntN(len(ids))], t0.Add(time.Duration(r.IntN(5))*time.Second)))
		}
		c := Integrity(nodes, edges)
		require.Equal(t, len(edges), len(c.Keep)+len(c.Removed()))

		known := map[string]bool{}
		for _, n := range nodes {
			known[n.ID] = true
		}
		seen := map[domain.PairKey]bool{}
		for _, e := range c.Keep {
			require.True(t, known[e.SourceID] && known[e.TargetID], "orphan survived: %+v", e)
			require.NotEqual(t, e.SourceID, e.TargetID)
			require.False(t, seen[e.Pair()], "duplicate survived: %+v", e)
			seen[e.Pair()] = true
		}
	}
}

func TestCreateEdgeGuards(t *testing.T) {
	mem := backend.NewMemory()
	mem.PutNode(node("A", 0, 0))
	mem.PutNode(node("B", 0, 0))
	s := newStore(t, mem)
	ctx := context.Background()
	_, err := s.Load(ctx)
	require.NoError(t, err)

	_, err = s.CreateEdge(ctx, "A", "A", "")
	require.ErrorIs(t, err, ErrSelfLoop)
	_, err = s.CreateEdge(ctx, "A", "nope", "")
	require.ErrorIs(t, err, ErrUnknownNode)

	e, err := s.CreateEdge(ctx, "A", "B", "")
	require.NoError(t, err)
	require.Empty(t, e.Label)
	_, err = s.CreateEdge(ctx, "B", "A", "")
	require.ErrorIs(t, err, ErrDuplicateEdge)
	require.Equal(t, 1, mem.Calls("CreateEdge"))
}

func TestSetNodePositionGoesThroughOutbox(t *testing.T) {
	mem := backend.NewMemory()
	mem.PutNode(node("A", 0, 0))
	s := newStore(t, mem)
	ctx := context.Background()
	_, err := s.Load(ctx)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.SetNodePosition("A", domain.Position{X: float64(i * 10), Y: 3}))
	}
	n, _ := s.Node("A")
	require.Equal(t, domain.Position{X: 50, Y: 3}, n.Position, "local state is immediate")
	require.ErrorIs(t, s.SetNodePosition("zzz", domain.Position{}), ErrUnknownNode)

	// Load flushes queued writes before fetching, so the reload sees the drop position.
	_, err = s.Load(ctx)
	require.NoError(t, err)
	n, _ = s.Node("A")
	require.Equal(t, domain.Position{X: 50, Y: 3}, n.Position)
}

func TestDeleteNodeCascadesEdges(t *testing.T) {
	mem := backend.NewMemory()
	for _, id := range []string{"A", "B", "C"} {
		mem.PutNode(node(id, 0, 0))
	}
	mem.PutEdge(edge("ab", "A", "B", t0))
	mem.PutEdge(edge("bc", "B", "C", t0))
	mem.PutEdge(edge("ca", "C", "A", t0))
	s := newStore(t, mem)
	ctx := context.Background()
	_, err := s.Load(ctx)
	require.NoError(t, err)

	require.NoError(t, s.UpdateEdgeLabel("ab", "rivals"))
	require.NoError(t, s.DeleteNode(ctx, "A"))
	require.Len(t, s.Edges(), 1)
	require.False(t, s.HasEdgeBetween("A", "B"))
	_, ok := s.Node("A")
	require.False(t, ok)

	stored, _ := mem.FetchEdges(ctx, pid)
	require.Len(t, stored, 1)
	require.Equal(t, "bc", stored[0].ID)
	require.ErrorIs(t, s.DeleteNode(ctx, "A"), ErrUnknownNode)
}

func TestMutationFailureKeepsOptimisticState(t *testing.T) {
	mem := backend.NewMemory()
	mem.PutNode(node("A", 0, 0))
	s := newStore(t, mem)
	ctx := context.Background()
	_, err := s.Load(ctx)
	require.NoError(t, err)

	mem.Fail("UpdateNode", errors.New("timeout"))
	before := testutil.ToFloat64(persistFailures.WithLabelValues("update_node"))
	n, err := s.UpdateNode(ctx, "A", domain.NodePatch{Title: domain.Ptr("Renamed")})
	require.Error(t, err)
	require.Equal(t, "Renamed", n.Title)
	got, _ := s.Node("A")
	require.Equal(t, "Renamed", got.Title)
	require.Equal(t, before+1, testutil.ToFloat64(persistFailures.WithLabelValues("update_node")))

	_, err = s.UpdateNode(ctx, "A", domain.NodePatch{Type: domain.Ptr(domain.NodeType("bogus"))})
	require.ErrorIs(t, err, domain.ErrInvalid)
}

func TestCreateNodeFailureLeavesNoLocalNode(t *testing.T) {
	mem := backend.NewMemory()
	s := newStore(t, mem)
	mem.Fail("CreateNode", errors.New("quota"))
	_, err := s.CreateNode(context.Background(), domain.NewNode{Title: "x", Type: domain.Lore})
	require.Error(t, err)
	require.Empty(t, s.Nodes())

	mem.Fail("CreateNode", nil)
	n, err := s.CreateNode(context.Background(), domain.NewNode{Title: "x", Type: domain.Lore})
	require.NoError(t, err)
	require.Equal(t, pid, n.ProjectID)
	require.Len(t, s.Nodes(), 1)
}

func TestCatalogCache(t *testing.T) {
	s := New(backend.NewMemory(), nil, pid)
	s.PutCatalog(domain.CatalogElement{ID: "c1", Name: "Mara", StorylineNodeID: domain.Ptr("A")})
	c, ok := s.CatalogForNode("A")
	require.True(t, ok)
	require.Equal(t, "c1", c.ID)
	require.Equal(t, 1, s.PatchCatalogByNode("A", domain.CatalogPatch{Unlink: true}))
	_, ok = s.CatalogForNode("A")
	require.False(t, ok)
	require.True(t, s.PatchCatalog("c1", domain.CatalogPatch{Name: domain.Ptr("Mara K")}))
	s.RemoveCatalog("c1")
	require.Empty(t, s.Catalog())
}

func TestNodeRemovedListeners(t *testing.T) {
	mem := backend.NewMemory()
	mem.PutNode(node("A", 0, 0))
	mem.PutNode(node("B", 100, 0))
	mem.PutNode(node("C", 200, 0))
	s := newStore(t, mem)
	ctx := context.Background()
	_, err := s.Load(ctx)
	require.NoError(t, err)

	var got []string
	cancel := s.OnNodeRemoved(func(_ context.Context, id string) { got = append(got, id) })

	require.NoError(t, s.DeleteNode(ctx, "A"))
	require.Equal(t, []string{"A"}, got)

	// deleted behind the store's back; the reload reports it
	require.NoError(t, mem.DeleteNode(ctx, "C"))
	_, err = s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "C"}, got)

	cancel()
	require.NoError(t, s.DeleteNode(ctx, "B"))
	require.Equal(t, []string{"A", "C"}, got)

	// unknown ids notify nobody
	s.OnNodeRemoved(func(_ context.Context, id string) { t.Fatalf("unexpected removal of %s", id) })
	require.ErrorIs(t, s.DeleteNode(ctx, "A"), ErrUnknownNode)
}
