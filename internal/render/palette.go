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
	_ "embed"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"storyloom/internal/domain"
	"storyloom/internal/vector"
)

//go:embed palette.toml
var defaultPalette []byte

// Palette holds hex colors keyed like palette.toml.
type Palette struct {
	Background  string            `toml:"background"`
	Grid        string            `toml:"grid"`
	NodeFill    string            `toml:"node_fill"`
	NodeStroke  string            `toml:"node_stroke"`
	Selected    string            `toml:"selected"`
	Text        string            `toml:"text"`
	LabelFill   string            `toml:"label_fill"`
	LabelStroke string            `toml:"label_stroke"`
	Preview     string            `toml:"preview"`
	Types       map[string]string `toml:"types"`
}

// DefaultPalette decodes the embedded palette.
func DefaultPalette() Palette {
	var p Palette
	if err := toml.Unmarshal(defaultPalette, &p); err != nil {
		panic(fmt.Sprintf("embedded palette: %v", err))
	}
	return p
}

// LoadPalette layers the file at path over the embedded palette. An empty path
// returns the default.
func LoadPalette(path string) (Palette, error) {
	p := DefaultPalette()
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	var user Palette
	if _, err := toml.DecodeFile(path, &user); err != nil {
		return p, fmt.Errorf("palette %s: %w", path, err)
	}
	p.merge(user)
	return p, p.validate()
}

func (p *Palette) merge(o Palette) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&p.Background, o.Background)
	set(&p.Grid, o.Grid)
	set(&p.NodeFill, o.NodeFill)
	set(&p.NodeStroke, o.NodeStroke)
	set(&p.Selected, o.Selected)
	set(&p.Text, o.Text)
	set(&p.LabelFill, o.LabelFill)
	set(&p.LabelStroke, o.LabelStroke)
	set(&p.Preview, o.Preview)
	for k, v := range o.Types {
		t, ok := domain.CanonicalNodeType(k)
		if !ok {
			continue
		}
		if p.Types == nil {
			p.Types = map[string]string{}
		}
		p.Types[string(t)] = v
	}
}

func (p Palette) validate() error {
	for _, v := range []string{p.Background, p.Grid, p.NodeFill, p.NodeStroke, p.Selected, p.Text, p.LabelFill, p.LabelStroke, p.Preview} {
		if _, err := vector.ParseHex(v); err != nil {
			return fmt.Errorf("palette: %w", err)
		}
	}
	for k, v := range p.Types {
		if _, err := vector.ParseHex(v); err != nil {
			return fmt.Errorf("palette type %s: %w", k, err)
		}
	}
	return nil
}

// color resolves a palette entry, falling back to black on bad input.
func color(hex string) vector.Color {
	c, err := vector.ParseHex(hex)
	if err != nil {
		return vector.Black
	}
	return c
}

// TypeColor is the accent color of a node type.
func (p Palette) TypeColor(t domain.NodeType) vector.Color {
	if v, ok := p.Types[string(t)]; ok {
		return color(v)
	}
	return color(p.NodeStroke)
}
