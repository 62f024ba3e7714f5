/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storyloom/internal/crash"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	root, a := newRootCmd(&crash.Scope{})
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	if cerr := a.close(); cerr != nil {
		t.Fatalf("close: %v", cerr)
	}
	if err != nil {
		t.Fatalf("%s: %v\n%s", strings.Join(args, " "), err, buf.String())
	}
	return buf.String()
}

func field(t *testing.T, out, prefix string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, prefix+" ") {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix+" "))
		}
	}
	t.Fatalf("no %q line in %q", prefix, out)
	return ""
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Setenv("SLM_CONFIG", filepath.Join(dir, "config.yaml"))
	t.Setenv("SLM_BACKEND", "sqlite")
	t.Setenv("SLM_SQLITE_PATH", filepath.Join(dir, "graph.sqlite"))
	t.Setenv("SLM_SUPABASE_KEY", "unused")
	t.Setenv("SLM_LOG_LEVEL", "error")
	return dir
}

func TestAddConnectRender(t *testing.T) {
	dir := isolate(t)
	a := field(t, run(t, "add-node", "p1", "--title", "Opening", "--x", "10", "--y", "20"), "node")
	b := field(t, run(t, "add-node", "p1", "--title", "Hero", "--type", "Character", "--x", "400"), "node")

	if out := run(t, "connect", "p1", a, b, "--label", "  meets "); !strings.Contains(out, "edge ") {
		t.Fatalf("connect output: %q", out)
	}
	if out := run(t, "connect", "p1", b, a); !strings.Contains(out, "nothing to do") {
		t.Fatalf("duplicate connect should warn, got %q", out)
	}

	out := run(t, "nodes", "p1", "--edges")
	for _, want := range []string{"Opening", "Hero", "character", "meets"} {
		if !strings.Contains(out, want) {
			t.Fatalf("nodes output missing %q: %q", want, out)
		}
	}

	svg := filepath.Join(dir, "graph.svg")
	run(t, "render", "p1", "-o", svg)
	data, err := os.ReadFile(svg)
	if err != nil {
		t.Fatalf("read svg: %v", err)
	}
	if !bytes.Contains(data, []byte("Opening")) || !bytes.Contains(data, []byte("linearGradient")) {
		t.Fatalf("svg lacks node title or edge gradient")
	}
}

func TestRemoveKeepsCatalogAndRelinks(t *testing.T) {
	isolate(t)
	out := run(t, "add-node", "p1", "--title", "Harbor", "--type", "location")
	n, c := field(t, out, "node"), field(t, out, "catalog")

	run(t, "rm-node", "p1", n, "--keep-catalog")
	if out := run(t, "catalog", "p1"); !strings.Contains(out, c) {
		t.Fatalf("catalog should list unlinked %s: %q", c, out)
	}
	relinked := field(t, run(t, "link", "p1", c, "--x", "50"), "node")
	if relinked == n {
		t.Fatalf("relinked node reuses deleted id %s", n)
	}
	if out := run(t, "link", "p1", c); !strings.Contains(out, "already on the graph") {
		t.Fatalf("second link should warn, got %q", out)
	}
	if out := run(t, "catalog", "p1"); strings.Contains(out, c) {
		t.Fatalf("linked entry still listed: %q", out)
	}
}

func TestCheckReportsConsistentGraph(t *testing.T) {
	isolate(t)
	run(t, "add-node", "p1", "--title", "Only")
	if out := run(t, "check", "p1"); !strings.Contains(out, "graph is consistent") {
		t.Fatalf("check output: %q", out)
	}
}

func TestMigrateListsApplied(t *testing.T) {
	isolate(t)
	out := run(t, "migrate")
	if !strings.Contains(out, "schema up to date (sqlite)") || !strings.Contains(out, ".sql") {
		t.Fatalf("migrate output: %q", out)
	}
}

func TestUnknownNodeTypeRejected(t *testing.T) {
	isolate(t)
	root, a := newRootCmd(&crash.Scope{})
	defer func() { _ = a.close() }()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"add-node", "p1", "--type", "spaceship"})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "unknown node type") {
		t.Fatalf("want unknown node type error, got %v", err)
	}
}
