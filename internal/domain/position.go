/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// language=JSON
const positionSchema = `{
  "type": "object",
  "properties": {
    "x": {"type": "number"},
    "y": {"type": "number"}
  },
  "required": ["x", "y"]
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

// Fallback placement for unreadable positions: a random point within
// FallbackSpread of FallbackCenter on both axes.
var (
	FallbackCenter = Position{X: 100, Y: 100}
	FallbackSpread = 50.0
)

// jitter returns values in [0,1); tests replace it.
var jitter = rand.Float64

func positionSchemaInstance() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(positionSchema))
	})
	return schema, schemaErr
}

// DecodePosition parses a stored position. It accepts the object form and the
// same object wrapped in a JSON string. ok is false for anything that is not a
// well-formed pair of finite numbers.
func DecodePosition(raw []byte) (Position, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Position{}, false
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return Position{}, false
		}
		raw = []byte(inner)
	}
	s, err := positionSchemaInstance()
	if err != nil {
		return Position{}, false
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil || !res.Valid() {
		return Position{}, false
	}
	var p Position
	if err := json.Unmarshal(raw, &p); err != nil {
		return Position{}, false
	}
	if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
		return Position{}, false
	}
	return p, true
}

// PositionOrFallback decodes raw, substituting FallbackPosition when it is unusable.
func PositionOrFallback(raw []byte) (Position, bool) {
	if p, ok := DecodePosition(raw); ok {
		return p, true
	}
	return FallbackPosition(), false
}

// FallbackPosition returns a pseudo-random placement near FallbackCenter.
func FallbackPosition() Position {
	return Position{
		X: FallbackCenter.X + (jitter()*2-1)*FallbackSpread,
		Y: FallbackCenter.Y + (jitter()*2-1)*FallbackSpread,
	}
}

// EncodePosition is the inverse of DecodePosition.
func EncodePosition(p Position) []byte {
	b, _ := json.Marshal(p)
	return b
}
