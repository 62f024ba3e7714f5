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
	"sync"
	"time"

	"storyloom/internal/domain"
)

// Move is one reversible node relocation. Before is where the drag started,
// After where the node was dropped. TS is when the move was recorded.
type Move struct {
	NodeID string
	Before domain.Position
	After  domain.Position
	TS     time.Time
}

// Config controls depth caps and coalescing behavior.
type Config struct {
	// MaxEntries is a soft cap across all scopes; the oldest moves are pruned when exceeded.
	MaxEntries int
	// MaxPerScope limits the moves kept per scope (0 means unlimited).
	MaxPerScope int
	// MinInterval coalesces moves of the same node recorded within the interval:
	// the earlier Before is kept and After is replaced.
	MinInterval time.Duration
}

// Manager provides in-memory undo/redo stacks of node moves per scope (usually a project).
// It is safe for concurrent use.
type Manager struct {
	cfg  Config
	mu   sync.Mutex
	undo map[string][]Move
	redo map[string][]Move
	// accounting
	total int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 250 * time.Millisecond
	}
	return &Manager{cfg: cfg, undo: make(map[string][]Move), redo: make(map[string][]Move)}
}

// Record pushes a move for scope. A move that does not change the position is ignored.
// Any new move clears the redo stack of the scope.
func (m *Manager) Record(scope string, mv Move) {
	if mv.Before == mv.After {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[scope]
	if n := len(stack); n > 0 {
		last := stack[n-1]
		if last.NodeID == mv.NodeID && mv.TS.Sub(last.TS) < m.cfg.MinInterval {
			mv.Before = last.Before
			m.redo[scope] = nil
			if mv.Before == mv.After {
				// dragged back to where it started
				m.undo[scope] = stack[:n-1]
				m.total--
				return
			}
			stack[n-1] = mv
			return
		}
	}
	m.undo[scope] = append(stack, mv)
	m.total++
	m.redo[scope] = nil
	m.enforceCapsLocked(scope)
}

// Undo pops the latest move of scope onto the redo stack. Callers restore mv.Before.
func (m *Manager) Undo(scope string) (Move, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[scope]
	if len(stack) == 0 {
		return Move{}, false
	}
	mv := stack[len(stack)-1]
	m.undo[scope] = stack[:len(stack)-1]
	m.total--
	m.redo[scope] = append(m.redo[scope], mv)
	return mv, true
}

// Redo pops from redo and pushes back to undo. Callers restore mv.After.
func (m *Manager) Redo(scope string) (Move, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[scope]
	if len(r) == 0 {
		return Move{}, false
	}
	mv := r[len(r)-1]
	m.redo[scope] = r[:len(r)-1]
	m.undo[scope] = append(m.undo[scope], mv)
	m.total++
	m.enforceCapsLocked(scope)
	return mv, true
}

// Latest returns the top of the undo stack without popping it.
func (m *Manager) Latest(scope string) (Move, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[scope]
	if len(stack) == 0 {
		return Move{}, false
	}
	return stack[len(stack)-1], true
}

// Forget drops every entry that refers to nodeID, e.g. after the node was deleted.
func (m *Manager) Forget(scope, nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keep := func(in []Move) []Move {
		out := in[:0]
		for _, mv := range in {
			if mv.NodeID != nodeID {
				out = append(out, mv)
			}
		}
		return out
	}
	before := len(m.undo[scope])
	m.undo[scope] = keep(m.undo[scope])
	m.total -= before - len(m.undo[scope])
	m.redo[scope] = keep(m.redo[scope])
}

// ClearScope clears undo/redo stacks for a scope to free memory.
func (m *Manager) ClearScope(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total -= len(m.undo[scope])
	delete(m.undo, scope)
	delete(m.redo, scope)
	if m.total < 0 {
		m.total = 0
	}
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalMoves int, scopes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total, len(m.undo)
}

func (m *Manager) enforceCapsLocked(scope string) {
	if m.cfg.MaxPerScope > 0 {
		stack := m.undo[scope]
		if len(stack) > m.cfg.MaxPerScope {
			toDrop := len(stack) - m.cfg.MaxPerScope
			m.total -= toDrop
			m.undo[scope] = append([]Move{}, stack[toDrop:]...)
		}
	}
	// global cap: prune oldest across all scopes
	for m.cfg.MaxEntries > 0 && m.total > m.cfg.MaxEntries {
		oldest := ""
		found := false
		var oldestTS time.Time
		for s, stack := range m.undo {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldest, oldestTS, found = s, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		m.undo[oldest] = m.undo[oldest][1:]
		m.total--
		if len(m.undo[oldest]) == 0 {
			delete(m.undo, oldest)
		}
	}
}
