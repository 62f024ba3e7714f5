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
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"storyloom/internal/domain"
	"storyloom/internal/editor"
	"storyloom/internal/vector"
)

var size = Size{W: 800, H: 600}

func scene() editor.Scene {
	n := func(id string, t domain.NodeType, x, y float64) editor.SceneNode {
		return editor.SceneNode{
			StorylineNode: domain.StorylineNode{ID: id, Title: "Node " + id, Type: t, Position: domain.Position{X: x, Y: y}},
			Rect:          vector.R(x, y, 180, 80),
		}
	}
	return editor.Scene{
		Zoom:     1,
		GridSize: 40,
		Nodes:    []editor.SceneNode{n("A", domain.Scene, 0, 0), n("B", domain.Character, 400, 0), n("C", domain.Location, 0, 300)},
		Edges: []editor.SceneEdge{
			{Connection: domain.Connection{ID: "e1", SourceID: "A", TargetID: "B", Label: "meets"}, From: vector.Pt{X: 180, Y: 40}, To: vector.Pt{X: 400, Y: 40}, SourceType: domain.Scene, TargetType: domain.Character},
			{Connection: domain.Connection{ID: "e2", SourceID: "A", TargetID: "C"}, From: vector.Pt{X: 90, Y: 80}, To: vector.Pt{X: 90, Y: 300}, SourceType: domain.Scene, TargetType: domain.Location},
		},
	}
}

func svg(t *testing.T, sc editor.Scene) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Draw(NewSVGCanvas(&buf), sc, DefaultPalette(), size))
	return buf.String()
}

func TestSVGOneGradientPerEdge(t *testing.T) {
	out := svg(t, scene())
	require.True(t, strings.HasPrefix(out, "<?xml"))
	require.Equal(t, 2, strings.Count(out, "<linearGradient"))
	require.Contains(t, out, `id="grad-e1"`)
	require.Contains(t, out, `stroke="url(#grad-e2)"`)

	pal := DefaultPalette()
	require.Contains(t, out, `stop-color="`+pal.Types["scene"]+`"`)
	require.Contains(t, out, `stop-color="`+pal.Types["character"]+`"`)
	require.Contains(t, out, ">meets</text>")
}

func TestSVGPreviewIsDashed(t *testing.T) {
	sc := scene()
	require.NotContains(t, svg(t, sc), "stroke-dasharray")

	sc.Preview = &editor.Preview{SourceID: "A", From: vector.Pt{X: 90, Y: 40}, To: vector.Pt{X: 600, Y: 500}}
	out := svg(t, sc)
	require.Equal(t, 1, strings.Count(out, "stroke-dasharray"))
	require.Contains(t, out, `x2="600" y2="500"`)
}

func TestSVGAppliesViewTransform(t *testing.T) {
	sc := scene()
	sc.Zoom, sc.Pan = 2, vector.Pt{X: 10, Y: 20}
	out := svg(t, sc)
	// node B at world (400,0) lands at (810,20) with a 360x160 box
	require.Contains(t, out, `<rect x="810" y="20" width="360" height="160"`)
}

func TestSVGNodeTextInsidePaddedBox(t *testing.T) {
	sc := scene()
	sc.Zoom, sc.Pan = 2, vector.Pt{X: 10, Y: 20}
	out := svg(t, sc)
	// B's box (810,20,360,160) inset by 16 starts at (826,36) and ends at y=164
	require.Contains(t, out, `<text x="826" y="64" font-family="monospace" font-size="`)
	require.Regexp(t, `<text x="826" y="164" [^>]*>character</text>`, out)
}

func TestSVGLabelEditorReplacesLabel(t *testing.T) {
	sc := scene()
	sc.Label = &editor.LabelEditor{EdgeID: "e1", Text: "a <b> & c", Anchor: vector.Pt{X: 290, Y: 40}, SelectAll: true}
	out := svg(t, sc)
	require.NotContains(t, out, ">meets</text>")
	require.Contains(t, out, ">a &lt;b&gt; &amp; c</text>")
}

func TestPDFOutput(t *testing.T) {
	sc := scene()
	sc.Preview = &editor.Preview{From: vector.Pt{X: 1, Y: 1}, To: vector.Pt{X: 50, Y: 60}}
	var buf bytes.Buffer
	require.NoError(t, Draw(NewPDFCanvas(&buf), sc, DefaultPalette(), size))
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestToFile(t *testing.T) {
	var buf bytes.Buffer
	c, err := ToFile(&buf, "graph.SVG")
	require.NoError(t, err)
	require.IsType(t, &SVGCanvas{}, c)
	c, err = ToFile(&buf, "out/graph.pdf")
	require.NoError(t, err)
	require.IsType(t, &PDFCanvas{}, c)
	_, err = ToFile(&buf, "graph.png")
	require.Error(t, err)
}

func TestLoadPaletteOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "palette.toml")
	require.NoError(t, os.WriteFile(path, []byte("grid = \"#010203\"\n[types]\nplotPoint = \"#000000\"\nunknown = \"#ffffff\"\n"), 0o644))
	p, err := LoadPalette(path)
	require.NoError(t, err)
	require.Equal(t, "#010203", p.Grid)
	require.Equal(t, vector.Color{A: 255}, p.TypeColor(domain.Event))
	require.Equal(t, DefaultPalette().Background, p.Background)
	_, ok := p.Types["unknown"]
	require.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("grid = \"nope\"\n"), 0o644))
	_, err = LoadPalette(path)
	require.Error(t, err)

	p, err = LoadPalette("")
	require.NoError(t, err)
	require.Equal(t, DefaultPalette(), p)
}

func TestTextWidthUsesBitmapFace(t *testing.T) {
	require.Equal(t, 21.0, textWidth("abc"))
	require.Equal(t, "Once upon a time in ...", clip("Once upon a time in the west", 23))
}
