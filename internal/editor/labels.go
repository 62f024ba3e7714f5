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
	"fmt"
	"strings"

	"storyloom/internal/store"
	"storyloom/internal/vector"
)

// LabelEditor is the inline form for one edge label. Anchor is the screen
// position of the edge midpoint when the editor opened; it does not follow
// later pans or zooms.
type LabelEditor struct {
	EdgeID    string
	Text      string
	Anchor    vector.Pt
	SelectAll bool
}

// OpenLabelEditor opens the editor for edgeID, replacing any open one.
func (s *Session) OpenLabelEditor(edgeID string) (LabelEditor, error) {
	e, ok := s.st.Edge(edgeID)
	if !ok {
		return LabelEditor{}, fmt.Errorf("label editor %s: %w", edgeID, store.ErrUnknownEdge)
	}
	a, b, ok := s.edgeEnds(e)
	if !ok {
		return LabelEditor{}, fmt.Errorf("label editor %s: %w", edgeID, store.ErrUnknownNode)
	}
	s.CancelLabel()
	s.label = &LabelEditor{
		EdgeID:    e.ID,
		Text:      e.Label,
		Anchor:    s.vp.ToScreen(vector.Mid(a, b)),
		SelectAll: true,
	}
	return *s.label, nil
}

// LabelEditor returns the open editor, if any.
func (s *Session) LabelEditor() (LabelEditor, bool) {
	if s.label == nil {
		return LabelEditor{}, false
	}
	return *s.label, true
}

// SetLabelText replaces the draft text; typing drops the initial selection.
func (s *Session) SetLabelText(text string) {
	if s.label == nil {
		return
	}
	s.label.Text = text
	s.label.SelectAll = false
}

// CommitLabel stores the trimmed draft and closes the editor. An empty draft clears the label.
func (s *Session) CommitLabel() error {
	if s.label == nil {
		return nil
	}
	ed := *s.label
	s.label = nil
	return s.st.UpdateEdgeLabel(ed.EdgeID, strings.TrimSpace(ed.Text))
}

func (s *Session) CancelLabel() { s.label = nil }
