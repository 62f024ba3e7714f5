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
	"math"

	"storyloom/internal/vector"
)

// Zoom steps for buttons and the wheel.
const (
	ZoomStep  = 0.2
	WheelStep = 0.1
)

// Viewport holds pan and zoom of one editor session. Pan is in screen pixels.
type Viewport struct {
	Zoom float64
	Pan  vector.Pt

	panning   bool
	panAnchor vector.Pt
}

func NewViewport() Viewport { return Viewport{Zoom: 1} }

func (v *Viewport) ToWorld(screen vector.Pt) vector.Pt {
	return vector.ScreenToWorld(screen, v.Pan, v.Zoom)
}

func (v *Viewport) ToScreen(world vector.Pt) vector.Pt {
	return vector.WorldToScreen(world, v.Pan, v.Zoom)
}

func (v *Viewport) ZoomIn()  { v.setZoom(v.Zoom + ZoomStep) }
func (v *Viewport) ZoomOut() { v.setZoom(v.Zoom - ZoomStep) }

// Wheel zooms out for positive deltaY and in for negative. It always reports
// true: the host must suppress its default scrolling.
func (v *Viewport) Wheel(deltaY float64) bool {
	switch {
	case deltaY > 0:
		v.setZoom(v.Zoom - WheelStep)
	case deltaY < 0:
		v.setZoom(v.Zoom + WheelStep)
	}
	return true
}

// rounding keeps repeated 0.1 steps from drifting off the clamp bounds
func (v *Viewport) setZoom(z float64) { v.Zoom = vector.ClampZoom(vector.FloatRound(z, 6)) }

func (v *Viewport) BeginPan(screen vector.Pt) {
	v.panning = true
	v.panAnchor = screen.Sub(v.Pan)
}

func (v *Viewport) ContinuePan(screen vector.Pt) {
	if !v.panning {
		return
	}
	v.Pan = screen.Sub(v.panAnchor)
}

func (v *Viewport) EndPan()       { v.panning = false }
func (v *Viewport) Panning() bool { return v.panning }

// Reset centers the bounding box of pts on ref at zoom 1. Without points the
// view returns to the origin.
func (v *Viewport) Reset(pts []vector.Pt, ref vector.Pt) {
	v.Zoom = 1
	v.panning = false
	bb, ok := vector.BoundingBox(pts)
	if !ok {
		v.Pan = vector.Pt{}
		return
	}
	v.Pan = ref.Sub(bb.Center())
}

// EdgeHitWidth is the width of the invisible stroke that catches clicks on an
// edge, in world units. It never drops below 20 screen pixels.
func (v *Viewport) EdgeHitWidth() float64 {
	return math.Max(20, 20/v.Zoom)
}
