/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"storyloom/internal/domain"
)

// exerciseContract runs the same CRUD scenario against any adapter.
func exerciseContract(t *testing.T, b Backend) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pid := "proj-" + uuid.NewString()

	a, err := b.CreateNode(ctx, domain.NewNode{ProjectID: pid, Title: "Arrival", Type: domain.Scene, Position: domain.Position{X: 10, Y: 20}})
	if err != nil {
		t.Fatalf("create node a: %v", err)
	}
	c, err := b.CreateNode(ctx, domain.NewNode{ProjectID: pid, Title: "Mara", Type: domain.Character})
	if err != nil {
		t.Fatalf("create node c: %v", err)
	}
	if a.ID == "" || a.ID == c.ID {
		t.Fatalf("ids must be unique and non-empty: %q %q", a.ID, c.ID)
	}
	if _, err := b.CreateNode(ctx, domain.NewNode{ProjectID: pid, Type: "plotPoint"}); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("non-canonical write must be rejected, got %v", err)
	}

	if err := b.UpdateNode(ctx, a.ID, domain.NodePatch{Position: &domain.Position{X: -5.5, Y: 7.25}, Title: domain.Ptr("Arrival II")}); err != nil {
		t.Fatalf("update node: %v", err)
	}
	if err := b.UpdateNode(ctx, "missing", domain.NodePatch{Title: domain.Ptr("x")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing node: want ErrNotFound, got %v", err)
	}
	nodes, err := b.FetchNodes(ctx, pid)
	if err != nil {
		t.Fatalf("fetch nodes: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("want 2 nodes, got %d", len(nodes))
	}
	got := map[string]domain.StorylineNode{}
	for _, n := range nodes {
		got[n.ID] = n
	}
	if n := got[a.ID]; n.Title != "Arrival II" || n.Position != (domain.Position{X: -5.5, Y: 7.25}) || n.Type != domain.Scene {
		t.Fatalf("node a after update: %+v", n)
	}

	e, err := b.CreateEdge(ctx, domain.NewEdge{ProjectID: pid, SourceID: a.ID, TargetID: c.ID})
	if err != nil {
		t.Fatalf("create edge: %v", err)
	}
	if err := b.UpdateEdge(ctx, e.ID, "meets"); err != nil {
		t.Fatalf("update edge: %v", err)
	}
	edges, err := b.FetchEdges(ctx, pid)
	if err != nil || len(edges) != 1 || edges[0].Label != "meets" {
		t.Fatalf("fetch edges: %+v %v", edges, err)
	}

	el, err := b.CreateCatalogElement(ctx, domain.NewCatalogElement{ProjectID: pid, Name: "Mara", Type: domain.Character, StorylineNodeID: &c.ID, CreatedFromStoryline: true})
	if err != nil {
		t.Fatalf("create catalog element: %v", err)
	}
	if err := b.UpdateCatalogByNode(ctx, c.ID, domain.CatalogPatch{Description: domain.Ptr("the pilot")}); err != nil {
		t.Fatalf("update catalog by node: %v", err)
	}
	if err := b.UpdateCatalogByNode(ctx, "nobody", domain.CatalogPatch{Description: domain.Ptr("x")}); err != nil {
		t.Fatalf("update catalog by unknown node must be a no-op: %v", err)
	}
	cat, err := b.FetchCatalog(ctx, pid)
	if err != nil || len(cat) != 1 {
		t.Fatalf("fetch catalog: %+v %v", cat, err)
	}
	if !cat[0].LinkedTo(c.ID) || !cat[0].CreatedFromStoryline || cat[0].Description != "the pilot" {
		t.Fatalf("catalog element: %+v", cat[0])
	}
	if err := b.UpdateCatalogElement(ctx, el.ID, domain.CatalogPatch{Unlink: true}); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	cat, _ = b.FetchCatalog(ctx, pid)
	if cat[0].StorylineNodeID != nil || cat[0].CreatedFromStoryline {
		t.Fatalf("unlink not persisted: %+v", cat[0])
	}

	if err := b.DeleteEdgesTouching(ctx, c.ID); err != nil {
		t.Fatalf("delete edges touching: %v", err)
	}
	if edges, _ := b.FetchEdges(ctx, pid); len(edges) != 0 {
		t.Fatalf("edges left after cascade: %+v", edges)
	}
	if err := b.DeleteEdge(ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete gone edge: want ErrNotFound, got %v", err)
	}
	if err := b.DeleteNode(ctx, c.ID); err != nil {
		t.Fatalf("delete node: %v", err)
	}
	if err := b.DeleteCatalogElement(ctx, el.ID); err != nil {
		t.Fatalf("delete catalog element: %v", err)
	}
	if nodes, _ := b.FetchNodes(ctx, pid); len(nodes) != 1 || nodes[0].ID != a.ID {
		t.Fatalf("nodes after delete: %+v", nodes)
	}
}

func TestMemoryContract(t *testing.T) {
	exerciseContract(t, NewMemory())
}

func TestSQLiteContract(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "graph.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() { _ = s.Close() }()
	exerciseContract(t, s)
}

func TestPostgresContract(t *testing.T) {
	dsn := os.Getenv("SLM_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("SLM_TEST_PG_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	defer func() { _ = s.Close() }()
	exerciseContract(t, s)
}

func TestSupabaseContract(t *testing.T) {
	url, key := os.Getenv("SLM_TEST_SUPABASE_URL"), os.Getenv("SLM_TEST_SUPABASE_KEY")
	if url == "" || key == "" {
		t.Skip("SLM_TEST_SUPABASE_URL/KEY not set")
	}
	s, err := NewSupabase(url, key)
	if err != nil {
		t.Fatalf("supabase: %v", err)
	}
	exerciseContract(t, s)
}

func TestSQLiteMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.sqlite")
	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	applied, err := s.Migrate(ctx)
	if err != nil || len(applied) != 0 {
		t.Fatalf("second migrate applied %v (err %v)", applied, err)
	}
	var n int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("schema_migrations rows = %d (err %v)", n, err)
	}
	names, err := s.Applied(ctx)
	if err != nil || len(names) != 2 || names[0] != "0001_storyline.sql" {
		t.Fatalf("applied = %v (err %v)", names, err)
	}
	_ = s.Close()
}

func TestSQLiteRepairsLegacyRows(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "legacy.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()
	ts := time.Now().UTC().Format(tsLayout)
	rows := []struct{ id, typ, pos string }{
		{"n1", "plotPoint", `{"x":1,"y":2}`},
		{"n2", "locations", `not json`},
		{"n3", "artifacts", `{"x":"a","y":1}`},
	}
	for _, r := range rows {
		if _, err := s.DB().ExecContext(ctx, insertNode, r.id, "legacy", "", "", r.typ, r.pos, ts, ts); err != nil {
			t.Fatalf("seed %s: %v", r.id, err)
		}
	}
	nodes, err := s.FetchNodes(ctx, "legacy")
	if err != nil || len(nodes) != 3 {
		t.Fatalf("fetch: %+v %v", nodes, err)
	}
	want := []domain.NodeType{domain.Event, domain.Location, domain.Artifact}
	for i, n := range nodes {
		if n.Type != want[i] {
			t.Fatalf("%s type = %s, want %s", n.ID, n.Type, want[i])
		}
	}
	if nodes[0].Position != (domain.Position{X: 1, Y: 2}) {
		t.Fatalf("valid position changed: %+v", nodes[0].Position)
	}
	for _, n := range nodes[1:] {
		if n.Position.X < 50 || n.Position.X > 150 || n.Position.Y < 50 || n.Position.Y > 150 {
			t.Fatalf("%s fallback position out of range: %+v", n.ID, n.Position)
		}
	}
}

func TestRebind(t *testing.T) {
	s := &SQL{dialect: DialectPostgres}
	if got := s.rebind(`UPDATE t SET a = ?, b = ? WHERE id = ?`); got != `UPDATE t SET a = $1, b = $2 WHERE id = $3` {
		t.Fatalf("rebind = %s", got)
	}
	s.dialect = DialectSQLite
	if got := s.rebind(`a = ?`); got != `a = ?` {
		t.Fatalf("sqlite rebind must be identity, got %s", got)
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := parseVersion("migrations/sqlite/0002_catalog.sql"); err != nil || v != 2 {
		t.Fatalf("parseVersion = %d, %v", v, err)
	}
	if _, err := parseVersion("catalog.sql"); err == nil {
		t.Fatalf("expected error for unversioned file")
	}
}
