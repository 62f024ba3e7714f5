/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"storyloom/internal/backend"
	"storyloom/internal/domain"
)

// gated blocks UpdateNode until release is closed and records every patch it sees.
type gated struct {
	*backend.Memory
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	seen    []domain.NodePatch
}

func newGated() *gated {
	return &gated{Memory: backend.NewMemory(), entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gated) UpdateNode(ctx context.Context, id string, p domain.NodePatch) error {
	g.entered <- struct{}{}
	<-g.release
	g.mu.Lock()
	g.seen = append(g.seen, p)
	g.mu.Unlock()
	return g.Memory.UpdateNode(ctx, id, p)
}

func seedNode(t *testing.T, m *backend.Memory) domain.StorylineNode {
	t.Helper()
	n, err := m.CreateNode(context.Background(), domain.NewNode{ProjectID: "p", Title: "n", Type: domain.Scene})
	require.NoError(t, err)
	return n
}

func TestCoalescesPendingPositions(t *testing.T) {
	be := newGated()
	n := seedNode(t, be.Memory)
	o := New(be, Options{})
	defer func() { _ = o.Close(context.Background()) }()

	// first write occupies the worker
	o.UpdateNode(n.ID, domain.NodePatch{Position: &domain.Position{X: 1, Y: 1}})
	<-be.entered
	// these queue up behind it and collapse into one command
	for i := 2; i <= 10; i++ {
		o.UpdateNode(n.ID, domain.NodePatch{Position: &domain.Position{X: float64(i), Y: float64(i)}})
	}
	o.UpdateNode(n.ID, domain.NodePatch{Title: domain.Ptr("renamed")})
	st := o.Stats()
	require.Equal(t, 1, st.Pending)
	require.Equal(t, 9, st.Coalesced)

	close(be.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, o.Flush(ctx))

	require.Len(t, be.seen, 2)
	last := be.seen[1]
	require.Equal(t, domain.Position{X: 10, Y: 10}, *last.Position)
	require.Equal(t, "renamed", *last.Title)

	nodes, err := be.FetchNodes(ctx, "p")
	require.NoError(t, err)
	require.Equal(t, domain.Position{X: 10, Y: 10}, nodes[0].Position)
	require.Equal(t, 2, o.Stats().Sent)
}

func TestFailuresAreCountedNotRetried(t *testing.T) {
	mem := backend.NewMemory()
	n := seedNode(t, mem)
	mem.Fail("UpdateEdge", errors.New("offline"))
	var hooked []string
	var mu sync.Mutex
	o := New(mem, Options{OnError: func(op, id string, err error) {
		mu.Lock()
		hooked = append(hooked, op+":"+id)
		mu.Unlock()
	}})
	before := testutil.ToFloat64(failedTotal.WithLabelValues(OpUpdateEdge))

	o.UpdateEdge("e1", "label")
	o.UpdateNode(n.ID, domain.NodePatch{Content: domain.Ptr("x")})
	require.NoError(t, o.Flush(context.Background()))
	require.NoError(t, o.Close(context.Background()))

	require.Equal(t, 1, mem.Calls("UpdateEdge"))
	require.Equal(t, before+1, testutil.ToFloat64(failedTotal.WithLabelValues(OpUpdateEdge)))
	st := o.Stats()
	require.Equal(t, 1, st.Failed)
	require.Equal(t, 1, st.Sent)
	mu.Lock()
	require.Equal(t, []string{"update_edge:e1"}, hooked)
	mu.Unlock()
}

func TestDiscardDropsPendingWrite(t *testing.T) {
	be := newGated()
	a := seedNode(t, be.Memory)
	b := seedNode(t, be.Memory)
	o := New(be, Options{})
	o.UpdateNode(a.ID, domain.NodePatch{Title: domain.Ptr("a")})
	<-be.entered
	o.UpdateNode(b.ID, domain.NodePatch{Title: domain.Ptr("b")})
	o.DiscardNode(b.ID)
	require.Equal(t, 0, o.Stats().Pending)
	close(be.release)
	require.NoError(t, o.Close(context.Background()))
	require.Len(t, be.seen, 1)
}

func TestFlushHonoursContext(t *testing.T) {
	be := newGated()
	n := seedNode(t, be.Memory)
	o := New(be, Options{})
	o.UpdateNode(n.ID, domain.NodePatch{Title: domain.Ptr("slow")})
	<-be.entered
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, o.Flush(ctx), context.DeadlineExceeded)
	close(be.release)
	require.NoError(t, o.Close(context.Background()))

	// after close, writes are dropped
	o.UpdateNode(n.ID, domain.NodePatch{Title: domain.Ptr("late")})
	require.Equal(t, 0, o.Stats().Pending)
}
