/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package editor holds the interaction state of one storyline graph editor:
// viewport, selection, node dragging, connection creation and inline edge
// label editing. A Session is driven by screen-space pointer, wheel and key
// events from a single goroutine and mutates the graph through store.Store.
package editor

import (
	"context"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"storyloom/internal/config"
	"storyloom/internal/domain"
	applog "storyloom/internal/log"
	"storyloom/internal/store"
	"storyloom/internal/undo"
	"storyloom/internal/vector"
)

// Modifiers is the set of keyboard modifiers held during a pointer-down.
type Modifiers uint8

// ModConnect is the modifier that turns a click on a node into a connection start.
const ModConnect Modifiers = 1 << 0

type Key int

const (
	KeyEscape Key = iota + 1
	KeyEnter
)

// Mode is the gesture currently holding the pointer capture.
type Mode int

const (
	ModeIdle Mode = iota
	ModePanning
	ModePending
	ModeDragging
	ModeConnecting
)

func (m Mode) String() string {
	switch m {
	case ModePanning:
		return "panning"
	case ModePending:
		return "pending"
	case ModeDragging:
		return "dragging"
	case ModeConnecting:
		return "connecting"
	}
	return "idle"
}

type Options struct {
	DragThresholdPx float64
	NodeSize        vector.Size
	// ResetRef defaults to the config default when nil.
	ResetRef *vector.Pt
	GridSize float64
	// History receives finished drags. Sessions of one project may share it.
	History *undo.Manager
	Now     func() time.Time
}

// OptionsFrom maps the editor config section onto session options.
func OptionsFrom(c config.EditorConfig) Options {
	o := Options{
		DragThresholdPx: c.DragThresholdPx,
		NodeSize:        vector.Size{W: c.NodeWidth, H: c.NodeHeight},
		GridSize:        c.GridSize,
		History:         undo.NewManager(undo.Config{MaxPerScope: c.HistoryDepth}),
	}
	if c.ResetRef != nil {
		o.ResetRef = &vector.Pt{X: c.ResetRef.X, Y: c.ResetRef.Y}
	}
	return o
}

func (o *Options) fill() {
	d := config.Defaults().Editor
	if o.DragThresholdPx <= 0 {
		o.DragThresholdPx = d.DragThresholdPx
	}
	if o.NodeSize.W <= 0 || o.NodeSize.H <= 0 {
		o.NodeSize = vector.Size{W: d.NodeWidth, H: d.NodeHeight}
	}
	if o.ResetRef == nil {
		o.ResetRef = &vector.Pt{X: d.ResetRef.X, Y: d.ResetRef.Y}
	}
	if o.GridSize <= 0 {
		o.GridSize = d.GridSize
	}
	if o.History == nil {
		o.History = undo.NewManager(undo.Config{MaxPerScope: d.HistoryDepth})
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Session is the interaction state of one open editor. It is not safe for
// concurrent use; the store it writes through is.
type Session struct {
	id   string
	st   *store.Store
	opts Options
	log  *slog.Logger

	vp       Viewport
	selected string
	dragging string
	active   gesture
	label    *LabelEditor
	unsub    func()
}

func NewSession(st *store.Store, opts Options) *Session {
	opts.fill()
	id, err := gonanoid.New(12)
	if err != nil {
		id = "session"
	}
	s := &Session{
		id:   id,
		st:   st,
		opts: opts,
		vp:   NewViewport(),
		log:  applog.WithComponent("editor"),
	}
	s.unsub = st.OnNodeRemoved(s.NodeRemoved)
	return s
}

// Close detaches the session from its store. The session must not be used afterwards.
func (s *Session) Close() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

func (s *Session) ID() string             { return s.id }
func (s *Session) Store() *store.Store    { return s.st }
func (s *Session) Viewport() *Viewport    { return &s.vp }
func (s *Session) Selected() string       { return s.selected }
func (s *Session) DraggingNode() string   { return s.dragging }
func (s *Session) History() *undo.Manager { return s.opts.History }
func (s *Session) ClearSelection()        { s.selected = "" }
func (s *Session) Select(nodeID string)   { s.selected = nodeID }
func (s *Session) Options() Options       { return s.opts }
func (s *Session) ctx(ctx context.Context) context.Context {
	return applog.WithSession(applog.WithProject(ctx, s.st.ProjectID()), s.id)
}

// Mode reports which gesture owns the pointer.
func (s *Session) Mode() Mode {
	if s.active == nil {
		return ModeIdle
	}
	return s.active.mode()
}

// ---- capture ----

// gesture is a pointer capture. While one is active every pointer event goes
// to it and no other gesture can start.
type gesture interface {
	mode() Mode
	down(ctx context.Context, h Hit)
	move(ctx context.Context, screen vector.Pt)
	up(ctx context.Context, screen vector.Pt, h Hit)
	cancel(ctx context.Context)
}

func (s *Session) enter(ctx context.Context, g gesture) {
	s.active = g
	s.log.DebugContext(ctx, "capture", slog.String("mode", g.mode().String()))
}

func (s *Session) exit(ctx context.Context) {
	if s.active == nil {
		return
	}
	s.log.DebugContext(ctx, "release", slog.String("mode", s.active.mode().String()))
	s.active = nil
}

// ---- input events ----

// PointerDown starts a gesture from idle, or forwards to the captured one.
func (s *Session) PointerDown(ctx context.Context, screen vector.Pt, mods Modifiers) {
	ctx = s.ctx(ctx)
	h := s.HitTest(screen)
	if s.active != nil {
		s.active.down(ctx, h)
		return
	}
	if s.label != nil && !(h.Kind == HitEdge || h.Kind == HitEdgeLabel) {
		s.CancelLabel()
	}
	switch {
	case h.Kind == HitAnchor:
		s.startConnect(ctx, h.NodeID, h, false)
	case h.Kind == HitNode && mods&ModConnect != 0:
		s.startConnect(ctx, h.NodeID, h, true)
	case h.Kind == HitNode:
		s.startDrag(ctx, h.NodeID, screen)
	case h.Kind == HitEdge || h.Kind == HitEdgeLabel:
		if _, err := s.OpenLabelEditor(h.EdgeID); err != nil {
			s.log.WarnContext(ctx, "open label editor failed", slog.String("edge", h.EdgeID), slog.Any("err", err))
		}
	default:
		s.selected = ""
		s.vp.BeginPan(screen)
		s.enter(ctx, &panGesture{s: s})
	}
}

func (s *Session) PointerMove(ctx context.Context, screen vector.Pt) {
	if s.active != nil {
		s.active.move(s.ctx(ctx), screen)
	}
}

func (s *Session) PointerUp(ctx context.Context, screen vector.Pt) {
	if s.active == nil {
		return
	}
	s.active.up(s.ctx(ctx), screen, s.HitTest(screen))
}

// Wheel zooms the viewport. It reports whether the host should suppress default scrolling.
func (s *Session) Wheel(deltaY float64) bool { return s.vp.Wheel(deltaY) }

// Key handles Escape and Enter. Escape closes the label editor first, then
// cancels a pending connection.
func (s *Session) Key(ctx context.Context, k Key) {
	ctx = s.ctx(ctx)
	switch k {
	case KeyEscape:
		if s.label != nil {
			s.CancelLabel()
			return
		}
		if s.Mode() == ModeConnecting {
			s.CancelConnection(ctx)
		}
	case KeyEnter:
		if s.label != nil {
			if err := s.CommitLabel(); err != nil {
				s.log.WarnContext(ctx, "commit label failed", slog.Any("err", err))
			}
		}
	}
}

// ResetView centers all nodes on the reference point at zoom 1.
func (s *Session) ResetView() {
	nodes := s.st.Nodes()
	pts := make([]vector.Pt, 0, len(nodes))
	for _, n := range nodes {
		pts = append(pts, n.Position.Pt())
	}
	s.vp.Reset(pts, *s.opts.ResetRef)
}

// NodeRemoved drops session references to a deleted node. The store calls it
// for every node that leaves the working set.
func (s *Session) NodeRemoved(ctx context.Context, nodeID string) {
	if s.selected == nodeID {
		s.selected = ""
	}
	if s.label != nil {
		if _, ok := s.st.Edge(s.label.EdgeID); !ok {
			s.CancelLabel()
		}
	}
	switch g := s.active.(type) {
	case *dragGesture:
		if g.nodeID == nodeID {
			g.cancel(s.ctx(ctx))
		}
	case *connectGesture:
		if g.source == nodeID {
			g.cancel(s.ctx(ctx))
		}
	}
	s.opts.History.Forget(s.st.ProjectID(), nodeID)
}

// ---- move history ----

// Undo moves the last dragged node back to where its drag started.
func (s *Session) Undo() bool {
	return s.replay(s.opts.History.Undo, func(mv undo.Move) vector.Pt { return mv.Before.Pt() })
}

// Redo reapplies the last undone move.
func (s *Session) Redo() bool {
	return s.replay(s.opts.History.Redo, func(mv undo.Move) vector.Pt { return mv.After.Pt() })
}

func (s *Session) replay(pop func(string) (undo.Move, bool), target func(undo.Move) vector.Pt) bool {
	if s.active != nil {
		return false
	}
	mv, ok := pop(s.st.ProjectID())
	if !ok {
		return false
	}
	p := target(mv)
	if err := s.st.SetNodePosition(mv.NodeID, domain.PositionOf(p)); err != nil {
		s.log.WarnContext(s.ctx(context.Background()), "replay move failed", slog.String("node", mv.NodeID), slog.Any("err", err))
		return false
	}
	return true
}
