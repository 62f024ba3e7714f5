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
	"time"

	"github.com/jung-kurt/gofpdf"

	"storyloom/internal/vector"
)

// PDFCanvas draws onto a single-page PDF sized in points, one point per screen pixel.
type PDFCanvas struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
	w   io.Writer
}

func NewPDFCanvas(w io.Writer) *PDFCanvas { return &PDFCanvas{w: w} }

func (c *PDFCanvas) Begin(w, h float64, bg vector.Color) {
	c.pdf = gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: w, Ht: h},
	})
	c.pdf.SetTitle("Storyline", false)
	c.pdf.SetAuthor("storyloom", false)
	c.pdf.SetCreationDate(time.Unix(0, 0).UTC())
	c.pdf.SetAutoPageBreak(false, 0)
	c.pdf.SetMargins(0, 0, 0)
	c.pdf.SetFont("Courier", "", 10)
	c.tr = c.pdf.UnicodeTranslatorFromDescriptor("")
	c.pdf.AddPageFormat("", gofpdf.SizeType{Wd: w, Ht: h})
	setFillColor(c.pdf, bg)
	c.pdf.Rect(0, 0, w, h, "F")
}

func (c *PDFCanvas) Rect(r vector.Rect, fill vector.Fill, stroke vector.Stroke) {
	style := ""
	if fill.Enabled {
		setFillColor(c.pdf, fill.Color)
		c.pdf.SetAlpha(fill.Color.Opacity(), "Normal")
		style += "F"
	}
	if stroke.Enabled {
		c.applyStroke(stroke)
		style += "D"
	}
	if style == "" {
		return
	}
	c.pdf.RoundedRect(r.X, r.Y, r.W, r.H, 6, "1234", style)
	c.pdf.SetAlpha(1, "Normal")
	c.pdf.SetDashPattern(nil, 0)
}

func (c *PDFCanvas) Line(a, b vector.Pt, s vector.Stroke) {
	if !s.Enabled {
		return
	}
	c.applyStroke(s)
	c.pdf.Line(a.X, a.Y, b.X, b.Y)
	c.pdf.SetDashPattern(nil, 0)
}

// GradientLine fills the line's outline quad with a linear gradient along a-b.
func (c *PDFCanvas) GradientLine(_ string, a, b vector.Pt, from, to vector.Color, width float64) {
	d := b.Sub(a)
	l := math.Hypot(d.X, d.Y)
	if l == 0 {
		return
	}
	n := vector.Pt{X: -d.Y / l, Y: d.X / l}.Mul(width / 2)
	quad := []vector.Pt{a.Add(n), b.Add(n), b.Sub(n), a.Sub(n)}
	bb, _ := vector.BoundingBox(quad)
	if bb.W == 0 || bb.H == 0 {
		return
	}
	pts := make([]gofpdf.PointType, len(quad))
	for i, q := range quad {
		pts[i] = gofpdf.PointType{X: q.X, Y: q.Y}
	}
	// gradient vector is normalized to the box with the origin at its lower left
	x1, y1 := (a.X-bb.X)/bb.W, 1-(a.Y-bb.Y)/bb.H
	x2, y2 := (b.X-bb.X)/bb.W, 1-(b.Y-bb.Y)/bb.H
	c.pdf.ClipPolygon(pts, false)
	c.pdf.LinearGradient(bb.X, bb.Y, bb.W, bb.H,
		int(from.R), int(from.G), int(from.B), int(to.R), int(to.G), int(to.B), x1, y1, x2, y2)
	c.pdf.ClipEnd()
}

func (c *PDFCanvas) Text(p vector.Pt, size float64, col vector.Color, s string) {
	c.pdf.SetFontSize(size)
	c.pdf.SetTextColor(int(col.R), int(col.G), int(col.B))
	c.pdf.Text(p.X, p.Y, c.tr(s))
}

func (c *PDFCanvas) End() error {
	if c.pdf == nil {
		return fmt.Errorf("write pdf: canvas never started")
	}
	if err := c.pdf.Output(c.w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func (c *PDFCanvas) applyStroke(s vector.Stroke) {
	setDrawColor(c.pdf, s.Color)
	c.pdf.SetLineWidth(s.Width)
	c.pdf.SetDashPattern(s.Dash, 0)
}

func setDrawColor(pdf *gofpdf.Fpdf, c vector.Color) { pdf.SetDrawColor(int(c.R), int(c.G), int(c.B)) }
func setFillColor(pdf *gofpdf.Fpdf, c vector.Color) { pdf.SetFillColor(int(c.R), int(c.G), int(c.B)) }
