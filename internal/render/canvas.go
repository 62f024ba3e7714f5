/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package render draws an editor scene onto a vector canvas. Two canvases are
// provided: SVG for the browser and previews, PDF for print. All coordinates
// handed to a Canvas are screen pixels.
package render

import (
	"storyloom/internal/vector"
)

// Canvas is the drawing surface the renderer targets.
type Canvas interface {
	Begin(w, h float64, background vector.Color)
	Rect(r vector.Rect, fill vector.Fill, stroke vector.Stroke)
	Line(a, b vector.Pt, s vector.Stroke)
	// GradientLine strokes a-b blending from one color at a to the other at b.
	GradientLine(id string, a, b vector.Pt, from, to vector.Color, width float64)
	// Text draws s with its baseline starting at p.
	Text(p vector.Pt, size float64, c vector.Color, s string)
	// End finishes the document and reports the first write error.
	End() error
}
