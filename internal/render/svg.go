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
	"bufio"
	"fmt"
	"io"
	"strings"

	"storyloom/internal/vector"
)

// SVGCanvas streams an SVG document to w.
type SVGCanvas struct {
	w   *bufio.Writer
	err error
}

func NewSVGCanvas(w io.Writer) *SVGCanvas { return &SVGCanvas{w: bufio.NewWriter(w)} }

func (c *SVGCanvas) wf(format string, args ...any) {
	if c.err != nil {
		return
	}
	_, c.err = fmt.Fprintf(c.w, format, args...)
}

func (c *SVGCanvas) Begin(w, h float64, bg vector.Color) {
	c.wf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	c.wf("<svg xmlns=\"http://www.w3.org/2000/svg\" version=\"1.1\" width=\"%gpx\" height=\"%gpx\" viewBox=\"0 0 %g %g\">\n", w, h, w, h)
	c.wf("  <rect x=\"0\" y=\"0\" width=\"%g\" height=\"%g\" fill=\"%s\"/>\n", w, h, bg.Hex())
}

func (c *SVGCanvas) Rect(r vector.Rect, fill vector.Fill, stroke vector.Stroke) {
	c.wf("  <rect x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" rx=\"6\" ry=\"6\"%s%s/>\n",
		r.X, r.Y, r.W, r.H, fillAttr(fill), strokeAttr(stroke))
}

func (c *SVGCanvas) Line(a, b vector.Pt, s vector.Stroke) {
	c.wf("  <line x1=\"%g\" y1=\"%g\" x2=\"%g\" y2=\"%g\"%s/>\n", a.X, a.Y, b.X, b.Y, strokeAttr(s))
}

func (c *SVGCanvas) GradientLine(id string, a, b vector.Pt, from, to vector.Color, width float64) {
	gid := "grad-" + escAttr(id)
	c.wf("  <defs><linearGradient id=\"%s\" gradientUnits=\"userSpaceOnUse\" x1=\"%g\" y1=\"%g\" x2=\"%g\" y2=\"%g\">", gid, a.X, a.Y, b.X, b.Y)
	c.wf("<stop offset=\"0\" stop-color=\"%s\"/><stop offset=\"1\" stop-color=\"%s\"/></linearGradient></defs>\n", from.Hex(), to.Hex())
	c.wf("  <line x1=\"%g\" y1=\"%g\" x2=\"%g\" y2=\"%g\" stroke=\"url(#%s)\" stroke-width=\"%g\" stroke-linecap=\"round\"/>\n", a.X, a.Y, b.X, b.Y, gid, width)
}

func (c *SVGCanvas) Text(p vector.Pt, size float64, col vector.Color, s string) {
	c.wf("  <text x=\"%g\" y=\"%g\" font-family=\"monospace\" font-size=\"%g\" fill=\"%s\">%s</text>\n", p.X, p.Y, size, col.Hex(), escText(s))
}

func (c *SVGCanvas) End() error {
	c.wf("</svg>\n")
	if c.err != nil {
		return fmt.Errorf("write svg: %w", c.err)
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}

func fillAttr(f vector.Fill) string {
	if !f.Enabled {
		return " fill=\"none\""
	}
	s := fmt.Sprintf(" fill=\"%s\"", f.Color.Hex())
	if f.Color.A < 255 {
		s += fmt.Sprintf(" fill-opacity=\"%.3g\"", f.Color.Opacity())
	}
	return s
}

func strokeAttr(s vector.Stroke) string {
	if !s.Enabled {
		return ""
	}
	out := fmt.Sprintf(" stroke=\"%s\" stroke-width=\"%g\"", s.Color.Hex(), s.Width)
	if len(s.Dash) > 0 {
		parts := make([]string, len(s.Dash))
		for i, d := range s.Dash {
			parts[i] = fmt.Sprintf("%g", d)
		}
		out += fmt.Sprintf(" stroke-dasharray=\"%s\"", strings.Join(parts, " "))
	}
	return out
}

var (
	attrEscaper = strings.NewReplacer(`"`, "&quot;", "&", "&amp;", "<", "&lt;", "\n", " ", "\r", "")
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

func escAttr(s string) string { return attrEscaper.Replace(s) }
func escText(s string) string { return textEscaper.Replace(s) }
