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

import (
	"math"
	"testing"
)

func TestRectContainsAndInset(t *testing.T) {
	r := R(10, 20, 100, 50)
	if !r.Contains(Pt{10, 20}) || !r.Contains(Pt{110, 70}) {
		t.Fatalf("expected edge points to be contained")
	}
	in := r.Inset(5, 5)
	if in.X != 15 || in.Y != 25 || in.W != 90 || in.H != 40 {
		t.Fatalf("unexpected inset: %+v", in)
	}
}

func TestAffineMatchesWorldToScreen(t *testing.T) {
	pan, zoom := Pt{12, -7}, 1.7
	p := Pt{33, 44}
	a := ViewTransform(pan, zoom).Apply(p)
	b := WorldToScreen(p, pan, zoom)
	if math.Abs(a.X-b.X) > 1e-9 || math.Abs(a.Y-b.Y) > 1e-9 {
		t.Fatalf("affine %+v != direct %+v", a, b)
	}
}

func TestScreenWorldRoundTrip(t *testing.T) {
	pts := []Pt{{0, 0}, {1, -1}, {123.456, 789.01}, {-5000, 2500.5}}
	pans := []Pt{{0, 0}, {400, 300}, {-1234.5, 77}}
	for z := MinZoom; z <= MaxZoom+1e-9; z += 0.1 {
		for _, pan := range pans {
			for _, p := range pts {
				got := ScreenToWorld(WorldToScreen(p, pan, z), pan, z)
				if math.Abs(got.X-p.X) > 1e-9 || math.Abs(got.Y-p.Y) > 1e-9 {
					t.Fatalf("round trip zoom=%v pan=%+v: got %+v want %+v", z, pan, got, p)
				}
			}
		}
	}
}

func TestClampZoom(t *testing.T) {
	cases := map[float64]float64{
		-10: MinZoom, 0: MinZoom, 0.29: MinZoom, 0.3: 0.3, 1: 1, 3: 3, 3.01: MaxZoom, 1e9: MaxZoom,
		math.Inf(1): MaxZoom, math.Inf(-1): MinZoom, math.NaN(): MinZoom,
	}
	for in, want := range cases {
		if got := ClampZoom(in); got != want {
			t.Fatalf("ClampZoom(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestAnchorsAreSideMidpoints(t *testing.T) {
	r := R(0, 0, 180, 80)
	want := map[Side]Pt{Top: {90, 0}, Right: {180, 40}, Bottom: {90, 80}, Left: {0, 40}}
	for _, s := range Sides {
		if got := r.Anchor(s); got != want[s] {
			t.Fatalf("%s anchor = %+v, want %+v", s, got, want[s])
		}
	}
}

func TestBoundingBox(t *testing.T) {
	if _, ok := BoundingBox(nil); ok {
		t.Fatalf("empty input must report !ok")
	}
	b, ok := BoundingBox([]Pt{{0, 0}, {100, 100}, {-20, 50}})
	if !ok || b != R(-20, 0, 120, 100) {
		t.Fatalf("bbox = %+v ok=%v", b, ok)
	}
	if c := b.Center(); c != (Pt{40, 50}) {
		t.Fatalf("center = %+v", c)
	}
}

func TestDistToSegment(t *testing.T) {
	a, b := Pt{0, 0}, Pt{10, 0}
	if d := DistToSegment(Pt{5, 3}, a, b); d != 3 {
		t.Fatalf("perpendicular distance = %v", d)
	}
	if d := DistToSegment(Pt{13, 4}, a, b); d != 5 {
		t.Fatalf("endpoint distance = %v", d)
	}
	if d := DistToSegment(Pt{3, 4}, a, a); d != 5 {
		t.Fatalf("degenerate segment distance = %v", d)
	}
}

func TestFloatRound(t *testing.T) {
	if got := FloatRound(0.1+0.2, 2); got != 0.3 {
		t.Fatalf("FloatRound = %v", got)
	}
	if got := FloatRound(1.25, -1); got != 1.25 {
		t.Fatalf("negative places must be a no-op, got %v", got)
	}
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#3b82f6")
	if err != nil || c != (Color{0x3b, 0x82, 0xf6, 255}) {
		t.Fatalf("ParseHex = %+v, %v", c, err)
	}
	if c.Hex() != "#3b82f6" {
		t.Fatalf("Hex = %s", c.Hex())
	}
	if _, err := ParseHex("#abc"); err == nil {
		t.Fatalf("short hex should fail")
	}
	c, _ = ParseHex("00000080")
	if c.A != 0x80 {
		t.Fatalf("alpha = %d", c.A)
	}
}

func TestClosestAnchors(t *testing.T) {
	a := R(0, 0, 180, 80)
	b := R(400, 0, 180, 80)
	pa, pb := ClosestAnchors(a, b)
	if pa != (Pt{180, 40}) || pb != (Pt{400, 40}) {
		t.Fatalf("side by side: got %+v %+v", pa, pb)
	}
	c := R(0, 300, 180, 80)
	pa, pc := ClosestAnchors(a, c)
	if pa != (Pt{90, 80}) || pc != (Pt{90, 300}) {
		t.Fatalf("stacked: got %+v %+v", pa, pc)
	}
}
