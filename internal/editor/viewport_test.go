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
	"testing"

	"github.com/stretchr/testify/require"

	"storyloom/internal/config"
	"storyloom/internal/vector"
)

func TestZoomButtonsClamp(t *testing.T) {
	v := NewViewport()
	for i := 0; i < 20; i++ {
		v.ZoomIn()
	}
	require.Equal(t, vector.MaxZoom, v.Zoom)
	for i := 0; i < 20; i++ {
		v.ZoomOut()
	}
	require.Equal(t, vector.MinZoom, v.Zoom)
	v.ZoomIn()
	require.InDelta(t, 0.5, v.Zoom, 1e-9)
}

func TestWheel(t *testing.T) {
	v := NewViewport()
	require.True(t, v.Wheel(120))
	require.InDelta(t, 0.9, v.Zoom, 1e-9)
	require.True(t, v.Wheel(-3))
	require.True(t, v.Wheel(-3))
	require.InDelta(t, 1.1, v.Zoom, 1e-9)
	require.True(t, v.Wheel(0))
	require.InDelta(t, 1.1, v.Zoom, 1e-9)
	for i := 0; i < 50; i++ {
		v.Wheel(1)
	}
	require.Equal(t, vector.MinZoom, v.Zoom)
}

func TestPanAnchorsToPointer(t *testing.T) {
	v := NewViewport()
	v.Pan = vector.Pt{X: 30, Y: 40}
	v.ContinuePan(vector.Pt{X: 999, Y: 999})
	require.Equal(t, vector.Pt{X: 30, Y: 40}, v.Pan, "no pan without BeginPan")

	v.BeginPan(vector.Pt{X: 100, Y: 100})
	v.ContinuePan(vector.Pt{X: 130, Y: 90})
	require.Equal(t, vector.Pt{X: 60, Y: 30}, v.Pan)
	v.ContinuePan(vector.Pt{X: 100, Y: 100})
	require.Equal(t, vector.Pt{X: 30, Y: 40}, v.Pan)
	v.EndPan()
	require.False(t, v.Panning())
}

func TestResetCentersBoundingBox(t *testing.T) {
	f := setup(t)
	vp := f.s.Viewport()
	vp.Zoom, vp.Pan = 2.4, vector.Pt{X: -900, Y: 77}
	f.s.ResetView()
	require.Equal(t, 1.0, vp.Zoom)
	// positions span (0,0)..(400,300)
	require.Equal(t, vector.Pt{X: 400, Y: 300}, vp.ToScreen(vector.Pt{X: 200, Y: 150}))

	vp.Reset(nil, vector.Pt{X: 400, Y: 300})
	require.Equal(t, vector.Pt{}, vp.Pan)
	require.Equal(t, 1.0, vp.Zoom)
}

func TestResetToOriginReference(t *testing.T) {
	f := setup(t)
	ed := config.Defaults().Editor
	ed.ResetRef = &config.Point{}
	s := NewSession(f.st, OptionsFrom(ed))
	defer s.Close()
	s.ResetView()
	require.Equal(t, vector.Pt{}, s.Viewport().ToScreen(vector.Pt{X: 200, Y: 150}))

	ed.ResetRef = nil
	s = NewSession(f.st, OptionsFrom(ed))
	defer s.Close()
	s.ResetView()
	require.Equal(t, vector.Pt{X: 400, Y: 300}, s.Viewport().ToScreen(vector.Pt{X: 200, Y: 150}))
}

func TestEdgeHitWidth(t *testing.T) {
	v := NewViewport()
	require.Equal(t, 20.0, v.EdgeHitWidth())
	v.Zoom = 0.5
	require.Equal(t, 40.0, v.EdgeHitWidth())
	v.Zoom = 3
	require.Equal(t, 20.0, v.EdgeHitWidth())
}
