/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package render

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"storyloom/internal/editor"
	"storyloom/internal/vector"
)

// Label metrics follow the 7x13 bitmap face so sizes match editor hit boxes.
const (
	textSize  = 11
	labelPad  = 6
	edgeWidth = 2.5
	maxTitle  = 24
)

var face = basicfont.Face7x13

// Size is the output page in screen pixels.
type Size struct{ W, H float64 }

// textWidth measures s in pixels with the bitmap face.
func textWidth(s string) float64 { return float64(font.MeasureString(face, s).Ceil()) }

// Draw renders sc onto c: grid, edges, nodes, then the connection preview and
// label editor overlays.
func Draw(c Canvas, sc editor.Scene, pal Palette, size Size) error {
	c.Begin(size.W, size.H, color(pal.Background))
	vt := vector.ViewTransform(sc.Pan, sc.Zoom)
	drawGrid(c, sc, pal, size)

	for _, e := range sc.Edges {
		a, b := vt.Apply(e.From), vt.Apply(e.To)
		c.GradientLine(e.ID, a, b, pal.TypeColor(e.SourceType), pal.TypeColor(e.TargetType), edgeWidth*sc.Zoom)
	}
	for _, e := range sc.Edges {
		if e.Label == "" || (sc.Label != nil && sc.Label.EdgeID == e.ID) {
			continue
		}
		drawLabel(c, vt.Apply(e.Mid()), e.Label, pal)
	}

	for _, n := range sc.Nodes {
		r := vector.RectAt(vt.Apply(n.Rect.Min()), vector.Size{W: n.Rect.W * sc.Zoom, H: n.Rect.H * sc.Zoom})
		stroke := vector.Stroke{Color: color(pal.NodeStroke), Width: 1, Enabled: true}
		if n.Selected {
			stroke = vector.Stroke{Color: color(pal.Selected), Width: 2.5, Enabled: true}
		}
		if n.Dragging {
			stroke.Dash = []float64{4, 3}
		}
		c.Rect(r, vector.Fill{Color: color(pal.NodeFill), Enabled: true}, stroke)
		accent := vector.R(r.X, r.Y, r.W, math.Max(4, 6*sc.Zoom))
		c.Rect(accent, vector.Fill{Color: pal.TypeColor(n.Type), Enabled: true}, vector.Stroke{})
		body := r.Inset(8*sc.Zoom, 8*sc.Zoom)
		c.Text(vector.Pt{X: body.X, Y: body.Y + 14*sc.Zoom}, textSize*sc.Zoom, color(pal.Text), clip(n.Title, maxTitle))
		c.Text(vector.Pt{X: body.X, Y: body.Max().Y}, 9*sc.Zoom, pal.TypeColor(n.Type), string(n.Type))
	}

	if p := sc.Preview; p != nil {
		c.Line(vt.Apply(p.From), vt.Apply(p.To), vector.Stroke{Color: color(pal.Preview), Width: 2, Dash: []float64{6, 4}, Enabled: true})
	}
	if ed := sc.Label; ed != nil {
		drawEditor(c, *ed, pal)
	}
	return c.End()
}

func drawGrid(c Canvas, sc editor.Scene, pal Palette, size Size) {
	step := sc.GridSize * sc.Zoom
	if step < 4 {
		return
	}
	s := vector.Stroke{Color: color(pal.Grid), Width: 1, Enabled: true}
	for x := math.Mod(sc.Pan.X, step); x < size.W; x += step {
		if x >= 0 {
			c.Line(vector.Pt{X: x, Y: 0}, vector.Pt{X: x, Y: size.H}, s)
		}
	}
	for y := math.Mod(sc.Pan.Y, step); y < size.H; y += step {
		if y >= 0 {
			c.Line(vector.Pt{X: 0, Y: y}, vector.Pt{X: size.W, Y: y}, s)
		}
	}
}

// labelBox is the screen box of a label centered on mid.
func labelBox(mid vector.Pt, text string) vector.Rect {
	w := textWidth(text) + 2*labelPad
	h := float64(face.Height) + 2*labelPad
	return vector.R(mid.X-w/2, mid.Y-h/2, w, h)
}

func drawLabel(c Canvas, mid vector.Pt, text string, pal Palette) {
	box := labelBox(mid, text)
	c.Rect(box, vector.Fill{Color: color(pal.LabelFill), Enabled: true}, vector.Stroke{Color: color(pal.LabelStroke), Width: 1, Enabled: true})
	c.Text(vector.Pt{X: box.X + labelPad, Y: box.Y + labelPad + float64(face.Ascent)}, textSize, color(pal.Text), text)
}

// drawEditor paints the inline label form at its fixed screen anchor.
func drawEditor(c Canvas, ed editor.LabelEditor, pal Palette) {
	text := ed.Text
	if text == "" {
		text = " "
	}
	box := labelBox(ed.Anchor, text)
	box.W = math.Max(box.W, 120)
	box.X = ed.Anchor.X - box.W/2
	stroke := vector.Stroke{Color: color(pal.Selected), Width: 1.5, Enabled: true}
	c.Rect(box, vector.Fill{Color: color(pal.LabelFill), Enabled: true}, stroke)
	if ed.SelectAll && ed.Text != "" {
		sel := color(pal.Selected)
		sel.A = 60
		c.Rect(vector.R(box.X+labelPad, box.Y+labelPad, textWidth(ed.Text), float64(face.Height)), vector.Fill{Color: sel, Enabled: true}, vector.Stroke{})
	}
	c.Text(vector.Pt{X: box.X + labelPad, Y: box.Y + labelPad + float64(face.Ascent)}, textSize, color(pal.Text), ed.Text)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// ToFile picks the canvas by file extension: .svg or .pdf.
func ToFile(w io.Writer, path string) (Canvas, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".svg":
		return NewSVGCanvas(w), nil
	case ".pdf":
		return NewPDFCanvas(w), nil
	}
	return nil, fmt.Errorf("render %s: unsupported format, want .svg or .pdf", path)
}
