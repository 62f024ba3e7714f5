/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package vector

// Basic 2D geometry and the viewport transform shared by the editor and the renderer.
// World space is the graph coordinate system; screen space is viewport pixels.

import "math"

// Zoom bounds for every viewport.
const (
	MinZoom = 0.3
	MaxZoom = 3.0
)

// Pt is a 2D point.
type Pt struct{ X, Y float64 }

func (p Pt) Add(o Pt) Pt       { return Pt{p.X + o.X, p.Y + o.Y} }
func (p Pt) Sub(o Pt) Pt       { return Pt{p.X - o.X, p.Y - o.Y} }
func (p Pt) Mul(k float64) Pt  { return Pt{p.X * k, p.Y * k} }
func (p Pt) Dist(o Pt) float64 { return math.Hypot(p.X-o.X, p.Y-o.Y) }
func Mid(a, b Pt) Pt           { return Pt{(a.X + b.X) / 2, (a.Y + b.Y) / 2} }

// Size is a width/height pair.
type Size struct{ W, H float64 }

// Rect is an axis-aligned rectangle defined by min corner and size.
type Rect struct {
	X, Y float64
	W, H float64
}

func R(x, y, w, h float64) Rect { return Rect{X: x, Y: y, W: w, H: h} }

// RectAt places a box of size s with its top-left corner at p.
func RectAt(p Pt, s Size) Rect { return Rect{X: p.X, Y: p.Y, W: s.W, H: s.H} }

func (r Rect) Min() Pt    { return Pt{r.X, r.Y} }
func (r Rect) Max() Pt    { return Pt{r.X + r.W, r.Y + r.H} }
func (r Rect) Center() Pt { return Pt{r.X + r.W/2, r.Y + r.H/2} }

func (r Rect) Contains(p Pt) bool {
	return p.X >= r.X && p.Y >= r.Y && p.X <= r.X+r.W && p.Y <= r.Y+r.H
}

// Inset returns a rectangle inset by dx,dy on all sides (negative grows).
func (r Rect) Inset(dx, dy float64) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W - 2*dx, H: r.H - 2*dy}
}

// Side names one of the four connection anchors of a node box.
type Side uint8

const (
	Top Side = iota
	Right
	Bottom
	Left
)

var Sides = [4]Side{Top, Right, Bottom, Left}

func (s Side) String() string {
	switch s {
	case Top:
		return "top"
	case Right:
		return "right"
	case Bottom:
		return "bottom"
	case Left:
		return "left"
	}
	return "unknown"
}

// Anchor returns the midpoint of the given side.
func (r Rect) Anchor(s Side) Pt {
	switch s {
	case Top:
		return Pt{r.X + r.W/2, r.Y}
	case Right:
		return Pt{r.X + r.W, r.Y + r.H/2}
	case Bottom:
		return Pt{r.X + r.W/2, r.Y + r.H}
	default:
		return Pt{r.X, r.Y + r.H/2}
	}
}

// BoundingBox returns the smallest rect containing all points. ok is false for no points.
func BoundingBox(pts []Pt) (r Rect, ok bool) {
	if len(pts) == 0 {
		return Rect{}, false
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}, true
}

// DistToSegment is the shortest distance from p to the segment a-b.
func DistToSegment(p, a, b Pt) float64 {
	d := b.Sub(a)
	l2 := d.X*d.X + d.Y*d.Y
	if l2 == 0 {
		return p.Dist(a)
	}
	t := ((p.X-a.X)*d.X + (p.Y-a.Y)*d.Y) / l2
	t = math.Max(0, math.Min(1, t))
	return p.Dist(a.Add(d.Mul(t)))
}

// Affine2D represents a 2D affine transform as matrix:
// | a c e |
// | b d f |
// | 0 0 1 |
// stored as [a b c d e f].
type Affine2D struct{ A, B, C, D, E, F float64 }

func (m Affine2D) Mul(n Affine2D) Affine2D {
	return Affine2D{
		A: m.A*n.A + m.C*n.B,
		B: m.B*n.A + m.D*n.B,
		C: m.A*n.C + m.C*n.D,
		D: m.B*n.C + m.D*n.D,
		E: m.A*n.E + m.C*n.F + m.E,
		F: m.B*n.E + m.D*n.F + m.F,
	}
}

func (m Affine2D) Apply(p Pt) Pt {
	return Pt{
		X: m.A*p.X + m.C*p.Y + m.E,
		Y: m.B*p.X + m.D*p.Y + m.F,
	}
}

func Translate(tx, ty float64) Affine2D { return Affine2D{A: 1, D: 1, E: tx, F: ty} }
func Scale(sx, sy float64) Affine2D     { return Affine2D{A: sx, D: sy} }

// ViewTransform is the world-to-screen matrix for a pan/zoom pair.
func ViewTransform(pan Pt, zoom float64) Affine2D {
	return Translate(pan.X, pan.Y).Mul(Scale(zoom, zoom))
}

// WorldToScreen maps a world point into screen space: p*zoom + pan.
func WorldToScreen(p, pan Pt, zoom float64) Pt {
	return Pt{p.X*zoom + pan.X, p.Y*zoom + pan.Y}
}

// ScreenToWorld is the inverse of WorldToScreen: (p - pan) / zoom.
func ScreenToWorld(p, pan Pt, zoom float64) Pt {
	return Pt{(p.X - pan.X) / zoom, (p.Y - pan.Y) / zoom}
}

// ClampZoom keeps z inside [MinZoom, MaxZoom]. NaN collapses to MinZoom.
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) || z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}

// FloatRound rounds v to n decimal places deterministically.
func FloatRound(v float64, places int) float64 {
	if places < 0 {
		return v
	}
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}

// ClosestAnchors picks the pair of side midpoints of a and b that are nearest to each other.
// Ties keep the earlier side in Sides order.
func ClosestAnchors(a, b Rect) (pa, pb Pt) {
	best := math.Inf(1)
	for _, sa := range Sides {
		for _, sb := range Sides {
			p, q := a.Anchor(sa), b.Anchor(sb)
			if d := p.Dist(q); d < best {
				best, pa, pb = d, p, q
			}
		}
	}
	return pa, pb
}
