/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import (
	"testing"
	"time"

	"storyloom/internal/domain"
)

func mv(id string, bx, ax float64, ts time.Time) Move {
	return Move{NodeID: id, Before: domain.Position{X: bx}, After: domain.Position{X: ax}, TS: ts}
}

func TestUndoRedoBasic(t *testing.T) {
	m := NewManager(Config{MaxPerScope: 10, MinInterval: 10 * time.Millisecond})
	t0 := time.Now()
	m.Record("p", mv("a", 0, 10, t0))
	m.Record("p", mv("b", 0, 20, t0.Add(20*time.Millisecond)))
	if total, scopes := m.Stats(); scopes != 1 || total != 2 {
		t.Fatalf("expected 1 scope and 2 moves, got scopes=%d total=%d", scopes, total)
	}
	got, ok := m.Undo("p")
	if !ok || got.NodeID != "b" || got.Before.X != 0 {
		t.Fatalf("undo expected move of b, got ok=%v %+v", ok, got)
	}
	got, ok = m.Redo("p")
	if !ok || got.NodeID != "b" || got.After.X != 20 {
		t.Fatalf("redo expected move of b, got ok=%v %+v", ok, got)
	}
	if latest, _ := m.Latest("p"); latest.NodeID != "b" {
		t.Fatalf("latest = %+v", latest)
	}
}

func TestCoalesceKeepsFirstBefore(t *testing.T) {
	m := NewManager(Config{MaxPerScope: 10, MinInterval: 50 * time.Millisecond})
	t0 := time.Now()
	m.Record("p", mv("a", 0, 5, t0))
	m.Record("p", mv("a", 5, 9, t0.Add(10*time.Millisecond))) // coalesce
	if total, _ := m.Stats(); total != 1 {
		t.Fatalf("expected coalesced to 1 move, got %d", total)
	}
	got, ok := m.Undo("p")
	if !ok || got.Before.X != 0 || got.After.X != 9 {
		t.Fatalf("expected coalesced 0->9, got ok=%v %+v", ok, got)
	}
}

func TestCoalesceBackToStartDropsEntry(t *testing.T) {
	m := NewManager(Config{MinInterval: time.Second})
	t0 := time.Now()
	m.Record("p", mv("a", 0, 5, t0))
	m.Record("p", mv("a", 5, 0, t0.Add(time.Millisecond)))
	if _, ok := m.Undo("p"); ok {
		t.Fatalf("a round trip to the start must leave nothing to undo")
	}
}

func TestNoopMoveIgnored(t *testing.T) {
	m := NewManager(Config{})
	m.Record("p", mv("a", 3, 3, time.Now()))
	if total, _ := m.Stats(); total != 0 {
		t.Fatalf("no-op move recorded")
	}
}

func TestCaps(t *testing.T) {
	m := NewManager(Config{MaxPerScope: 2, MinInterval: time.Millisecond})
	t0 := time.Now()
	for i := 0; i < 10; i++ {
		m.Record("p", mv("n", float64(i), float64(i+1), t0.Add(time.Duration(i)*time.Second)))
	}
	if total, _ := m.Stats(); total != 2 {
		t.Fatalf("expected MaxPerScope cap to limit to 2, got %d", total)
	}
	got, _ := m.Undo("p")
	if got.After.X != 10 {
		t.Fatalf("newest move must survive the cap, got %+v", got)
	}
}
