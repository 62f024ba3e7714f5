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

// Paint definitions used by the renderers.

import (
	"fmt"
	"strings"
)

type Color struct{ R, G, B, A uint8 }

var Black = Color{0, 0, 0, 255}

// ParseHex accepts "#rrggbb" or "#rrggbbaa" (leading # optional).
func ParseHex(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	c := Color{A: 255}
	switch len(s) {
	case 6:
		if _, err := fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
			return Color{}, fmt.Errorf("parse color %q: %w", s, err)
		}
	case 8:
		if _, err := fmt.Sscanf(s, "%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A); err != nil {
			return Color{}, fmt.Errorf("parse color %q: %w", s, err)
		}
	default:
		return Color{}, fmt.Errorf("parse color %q: want 6 or 8 hex digits", s)
	}
	return c, nil
}

// Hex renders the colour as #rrggbb, dropping alpha.
func (c Color) Hex() string { return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B) }

// Opacity is alpha in [0,1].
func (c Color) Opacity() float64 { return float64(c.A) / 255 }

type Fill struct {
	Color   Color
	Enabled bool
}

type Stroke struct {
	Color   Color
	Width   float64
	Dash    []float64 // empty means solid
	Enabled bool
}
