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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/supabase-go"

	"storyloom/internal/domain"
	applog "storyloom/internal/log"
)

// Table names shared by the SQL schema and the hosted PostgREST project.
const (
	tableNodes   = "storyline_nodes"
	tableEdges   = "storyline_connections"
	tableCatalog = "world_building_elements"
)

// Supabase implements Backend on top of a hosted PostgREST API.
// The PostgREST client has no context support; ctx is only checked before each call.
type Supabase struct {
	client *supabase.Client
	now    func() time.Time
	log    *slog.Logger
}

func NewSupabase(url, key string) (*Supabase, error) {
	if strings.TrimSpace(url) == "" || strings.TrimSpace(key) == "" {
		return nil, errors.New("supabase url and key are required")
	}
	c, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	return &Supabase{client: c, now: time.Now, log: applog.WithComponent("backend.supabase")}, nil
}

// Row shapes as PostgREST returns them. Position stays raw so malformed values can be repaired.
type nodeRow struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	NodeType  string          `json:"node_type"`
	Position  json.RawMessage `json:"position"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type catalogRow struct {
	ID                   string    `json:"id"`
	ProjectID            string    `json:"project_id"`
	Name                 string    `json:"name"`
	Type                 string    `json:"type"`
	Description          string    `json:"description"`
	StorylineNodeID      *string   `json:"storyline_node_id"`
	CreatedFromStoryline bool      `json:"created_from_storyline"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (s *Supabase) FetchNodes(ctx context.Context, projectID string) ([]domain.StorylineNode, error) {
	var rows []nodeRow
	if err := s.selectWhere(ctx, tableNodes, "project_id", projectID, &rows); err != nil {
		return nil, fmt.Errorf("fetch nodes: %w", err)
	}
	out := make([]domain.StorylineNode, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.StorylineNode{
			ID: r.ID, ProjectID: r.ProjectID, Title: r.Title, Content: r.Content,
			Type:      canonicalType(s.log, r.ID, r.NodeType),
			Position:  decodePosition(s.log, r.ID, r.Position),
			CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return createdBefore(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

func (s *Supabase) FetchEdges(ctx context.Context, projectID string) ([]domain.Connection, error) {
	var out []domain.Connection
	if err := s.selectWhere(ctx, tableEdges, "project_id", projectID, &out); err != nil {
		return nil, fmt.Errorf("fetch edges: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return createdBefore(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

func (s *Supabase) FetchCatalog(ctx context.Context, projectID string) ([]domain.CatalogElement, error) {
	var rows []catalogRow
	if err := s.selectWhere(ctx, tableCatalog, "project_id", projectID, &rows); err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	out := make([]domain.CatalogElement, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.CatalogElement{
			ID: r.ID, ProjectID: r.ProjectID, Name: r.Name, Type: canonicalType(s.log, r.ID, r.Type),
			Description: r.Description, StorylineNodeID: r.StorylineNodeID,
			CreatedFromStoryline: r.CreatedFromStoryline, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return createdBefore(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

func (s *Supabase) CreateNode(ctx context.Context, in domain.NewNode) (domain.StorylineNode, error) {
	if err := domain.Validate(in); err != nil {
		return domain.StorylineNode{}, fmt.Errorf("create node: %w", err)
	}
	now := s.now().UTC()
	n := domain.StorylineNode{
		ID: uuid.NewString(), ProjectID: in.ProjectID, Title: in.Title, Content: in.Content,
		Type: in.Type, Position: in.Position, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.insert(ctx, tableNodes, n); err != nil {
		return domain.StorylineNode{}, fmt.Errorf("create node: %w", err)
	}
	return n, nil
}

func (s *Supabase) UpdateNode(ctx context.Context, id string, p domain.NodePatch) error {
	if err := s.update(ctx, tableNodes, "id", id, nodeFields(p), true); err != nil {
		return fmt.Errorf("update node %s: %w", id, err)
	}
	return nil
}

func (s *Supabase) DeleteNode(ctx context.Context, id string) error {
	if err := s.delete(ctx, tableNodes, "eq", "id", id, true); err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	return nil
}

func (s *Supabase) CreateEdge(ctx context.Context, in domain.NewEdge) (domain.Connection, error) {
	if err := domain.Validate(in); err != nil {
		return domain.Connection{}, fmt.Errorf("create edge: %w", err)
	}
	now := s.now().UTC()
	e := domain.Connection{
		ID: uuid.NewString(), ProjectID: in.ProjectID, SourceID: in.SourceID, TargetID: in.TargetID,
		Label: in.Label, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.insert(ctx, tableEdges, e); err != nil {
		return domain.Connection{}, fmt.Errorf("create edge: %w", err)
	}
	return e, nil
}

func (s *Supabase) UpdateEdge(ctx context.Context, id string, label string) error {
	if err := s.update(ctx, tableEdges, "id", id, []field{{"label", label}}, true); err != nil {
		return fmt.Errorf("update edge %s: %w", id, err)
	}
	return nil
}

func (s *Supabase) DeleteEdge(ctx context.Context, id string) error {
	if err := s.delete(ctx, tableEdges, "eq", "id", id, true); err != nil {
		return fmt.Errorf("delete edge %s: %w", id, err)
	}
	return nil
}

func (s *Supabase) DeleteEdgesTouching(ctx context.Context, nodeID string) error {
	filter := fmt.Sprintf("source_id.eq.%s,target_id.eq.%s", nodeID, nodeID)
	if err := s.delete(ctx, tableEdges, "or", filter, "", false); err != nil {
		return fmt.Errorf("delete edges of %s: %w", nodeID, err)
	}
	return nil
}

func (s *Supabase) CreateCatalogElement(ctx context.Context, in domain.NewCatalogElement) (domain.CatalogElement, error) {
	if err := domain.Validate(in); err != nil {
		return domain.CatalogElement{}, fmt.Errorf("create catalog element: %w", err)
	}
	now := s.now().UTC()
	c := domain.CatalogElement{
		ID: uuid.NewString(), ProjectID: in.ProjectID, Name: in.Name, Type: in.Type, Description: in.Description,
		StorylineNodeID: in.StorylineNodeID, CreatedFromStoryline: in.CreatedFromStoryline, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.insert(ctx, tableCatalog, c); err != nil {
		return domain.CatalogElement{}, fmt.Errorf("create catalog element: %w", err)
	}
	return c, nil
}

func (s *Supabase) UpdateCatalogElement(ctx context.Context, id string, p domain.CatalogPatch) error {
	if err := s.update(ctx, tableCatalog, "id", id, catalogFields(p), true); err != nil {
		return fmt.Errorf("update catalog element %s: %w", id, err)
	}
	return nil
}

func (s *Supabase) DeleteCatalogElement(ctx context.Context, id string) error {
	if err := s.delete(ctx, tableCatalog, "eq", "id", id, true); err != nil {
		return fmt.Errorf("delete catalog element %s: %w", id, err)
	}
	return nil
}

func (s *Supabase) UpdateCatalogByNode(ctx context.Context, nodeID string, p domain.CatalogPatch) error {
	if err := s.update(ctx, tableCatalog, "storyline_node_id", nodeID, catalogFields(p), false); err != nil {
		return fmt.Errorf("update catalog of node %s: %w", nodeID, err)
	}
	return nil
}

func (s *Supabase) selectWhere(ctx context.Context, table, col, val string, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, _, err := s.client.From(table).Select("*", "", false).Eq(col, val).Execute()
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dest)
}

func (s *Supabase) insert(ctx context.Context, table string, row any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := s.client.From(table).Insert(row, false, "", "minimal", "").Execute()
	return err
}

func (s *Supabase) update(ctx context.Context, table, keyCol, key string, fs []field, mustExist bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	values := make(map[string]any, len(fs)+1)
	for _, f := range fs {
		values[f.col] = f.val
	}
	values["updated_at"] = s.now().UTC()
	body, _, err := s.client.From(table).Update(values, "representation", "").Eq(keyCol, key).Execute()
	if err != nil {
		return err
	}
	return checkReturned(body, mustExist)
}

// delete issues DELETE with either an eq(col, val) or an or(filter) condition.
func (s *Supabase) delete(ctx context.Context, table, op, a, b string, mustExist bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q := s.client.From(table).Delete("representation", "")
	if op == "or" {
		q = q.Or(a, "")
	} else {
		q = q.Eq(a, b)
	}
	body, _, err := q.Execute()
	if err != nil {
		return err
	}
	return checkReturned(body, mustExist)
}

func checkReturned(body []byte, mustExist bool) error {
	if !mustExist {
		return nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

func createdBefore(a time.Time, aID string, b time.Time, bID string) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return aID < bID
}
