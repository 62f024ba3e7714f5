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
	"context"
	"errors"
	"log/slog"
	"math"

	"storyloom/internal/domain"
	"storyloom/internal/store"
	"storyloom/internal/undo"
	"storyloom/internal/vector"
)

// ---- pan ----

type panGesture struct{ s *Session }

func (g *panGesture) mode() Mode                                 { return ModePanning }
func (g *panGesture) down(context.Context, Hit)                  {}
func (g *panGesture) move(_ context.Context, screen vector.Pt)   { g.s.vp.ContinuePan(screen) }
func (g *panGesture) up(ctx context.Context, _ vector.Pt, _ Hit) { g.cancel(ctx) }
func (g *panGesture) cancel(ctx context.Context) {
	g.s.vp.EndPan()
	g.s.exit(ctx)
}

// ---- node drag ----

// dragGesture is Pending until the pointer travels the threshold, then Dragging.
type dragGesture struct {
	s        *Session
	nodeID   string
	start    vector.Pt // screen
	origin   domain.Position
	offset   vector.Pt // world, pointer minus node position
	last     domain.Position
	dragging bool
}

func (s *Session) startDrag(ctx context.Context, nodeID string, screen vector.Pt) {
	n, ok := s.st.Node(nodeID)
	if !ok {
		return
	}
	s.enter(ctx, &dragGesture{s: s, nodeID: nodeID, start: screen, origin: n.Position, last: n.Position})
}

func (g *dragGesture) mode() Mode {
	if g.dragging {
		return ModeDragging
	}
	return ModePending
}

func (g *dragGesture) down(context.Context, Hit) {}

func (g *dragGesture) move(ctx context.Context, screen vector.Pt) {
	s := g.s
	if !g.dragging {
		d := screen.Sub(g.start)
		if math.Abs(d.X) < s.opts.DragThresholdPx && math.Abs(d.Y) < s.opts.DragThresholdPx {
			return
		}
		g.dragging = true
		g.offset = s.vp.ToWorld(g.start).Sub(g.origin.Pt())
		s.dragging = g.nodeID
		s.log.DebugContext(ctx, "drag started", slog.String("node", g.nodeID))
	}
	p := domain.PositionOf(s.vp.ToWorld(screen).Sub(g.offset))
	if err := s.st.SetNodePosition(g.nodeID, p); err != nil {
		s.log.WarnContext(ctx, "drag target vanished", slog.String("node", g.nodeID), slog.Any("err", err))
		g.cancel(ctx)
		return
	}
	g.last = p
}

func (g *dragGesture) up(ctx context.Context, _ vector.Pt, _ Hit) {
	s := g.s
	if !g.dragging {
		s.selected = g.nodeID
		s.exit(ctx)
		return
	}
	s.opts.History.Record(s.st.ProjectID(), undo.Move{NodeID: g.nodeID, Before: g.origin, After: g.last, TS: s.opts.Now()})
	g.cancel(ctx)
}

// cancel leaves the node where it was last put.
func (g *dragGesture) cancel(ctx context.Context) {
	g.s.dragging = ""
	g.s.exit(ctx)
}

// ---- connection creation ----

type connectGesture struct {
	s       *Session
	source  string
	from    vector.Pt // world
	preview vector.Pt // world
	// entry by modifier-click: the click's own release over the source is swallowed
	swallowUp bool
}

// Preview is the rubber-band line of a pending connection, in world space.
type Preview struct {
	SourceID string
	From     vector.Pt
	To       vector.Pt
}

func (s *Session) startConnect(ctx context.Context, nodeID string, h Hit, byModifier bool) {
	n, ok := s.st.Node(nodeID)
	if !ok {
		return
	}
	rect := s.NodeRect(n)
	start := rect.Center()
	if h.Kind == HitAnchor {
		start = rect.Anchor(h.Side)
	}
	s.enter(ctx, &connectGesture{s: s, source: nodeID, from: start, preview: start, swallowUp: byModifier})
}

func (g *connectGesture) mode() Mode { return ModeConnecting }

func (g *connectGesture) down(ctx context.Context, h Hit) {
	if h.Kind == HitNone {
		g.cancel(ctx)
	}
}

func (g *connectGesture) move(_ context.Context, screen vector.Pt) {
	g.preview = g.s.vp.ToWorld(screen)
}

func (g *connectGesture) up(ctx context.Context, screen vector.Pt, h Hit) {
	g.preview = g.s.vp.ToWorld(screen)
	swallow := g.swallowUp
	g.swallowUp = false
	if !h.OnNode() {
		return
	}
	if swallow && h.NodeID == g.source {
		return
	}
	g.finish(ctx, h.NodeID)
}

func (g *connectGesture) finish(ctx context.Context, target string) {
	s := g.s
	s.exit(ctx)
	e, err := s.st.CreateEdge(ctx, g.source, target, "")
	switch {
	case errors.Is(err, store.ErrSelfLoop), errors.Is(err, store.ErrDuplicateEdge):
		s.log.DebugContext(ctx, "connection skipped", slog.String("source", g.source), slog.String("target", target), slog.Any("reason", err))
	case err != nil:
		s.log.WarnContext(ctx, "connection failed", slog.String("source", g.source), slog.String("target", target), slog.Any("err", err))
	default:
		s.log.InfoContext(ctx, "connection created", slog.String("edge", e.ID))
	}
}

func (g *connectGesture) cancel(ctx context.Context) { g.s.exit(ctx) }

// CancelConnection abandons a pending connection without side effects.
func (s *Session) CancelConnection(ctx context.Context) {
	if g, ok := s.active.(*connectGesture); ok {
		g.cancel(s.ctx(ctx))
	}
}

// Preview returns the pending connection line, if any.
func (s *Session) Preview() (Preview, bool) {
	g, ok := s.active.(*connectGesture)
	if !ok {
		return Preview{}, false
	}
	return Preview{SourceID: g.source, From: g.from, To: g.preview}, true
}
