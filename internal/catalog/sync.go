/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package catalog keeps world-building catalog entries in lock-step with graph
// node mutations. Every node create, edit and delete goes through Sync so the
// 1:1 link between a node and its catalog entry holds.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"storyloom/internal/domain"
	applog "storyloom/internal/log"
	"storyloom/internal/store"
)

// ErrAlreadyLinked is returned when a catalog entry already belongs to a live node.
var ErrAlreadyLinked = errors.New("catalog entry already linked to a node")

// ErrUnknownEntry is returned for catalog ids not present in the working set.
var ErrUnknownEntry = errors.New("unknown catalog entry")

// DeleteMode decides what happens to a node's catalog entry when the node is deleted.
type DeleteMode int

const (
	// DeleteLinked removes the catalog entry together with the node.
	DeleteLinked DeleteMode = iota
	// KeepUnlinked keeps the entry and clears its back-reference.
	KeepUnlinked
)

func (m DeleteMode) String() string {
	if m == KeepUnlinked {
		return "keep_unlinked"
	}
	return "delete_linked"
}

// NodeInput is what the node form submits.
type NodeInput struct {
	Title    string
	Content  string
	Type     domain.NodeType
	Position domain.Position
}

// Sync performs node mutations and their catalog counterparts.
type Sync struct {
	st  *store.Store
	log *slog.Logger
}

func New(st *store.Store) *Sync {
	return &Sync{st: st, log: applog.WithComponent("catalog").With(slog.String("project", st.ProjectID()))}
}

// CreateNode creates the node and a catalog entry of the mapped type linked to it.
// When the catalog write fails the node stays and the error is returned.
func (s *Sync) CreateNode(ctx context.Context, in NodeInput) (domain.StorylineNode, domain.CatalogElement, error) {
	n, err := s.st.CreateNode(ctx, domain.NewNode{Title: in.Title, Content: in.Content, Type: in.Type, Position: in.Position})
	if err != nil {
		return domain.StorylineNode{}, domain.CatalogElement{}, err
	}
	nodeID := n.ID
	el, err := s.st.Backend().CreateCatalogElement(ctx, domain.NewCatalogElement{
		ProjectID:            s.st.ProjectID(),
		Name:                 n.Title,
		Type:                 domain.CatalogTypeFor(n.Type),
		Description:          n.Content,
		StorylineNodeID:      &nodeID,
		CreatedFromStoryline: true,
	})
	if err != nil {
		s.log.WarnContext(ctx, "create catalog entry failed", slog.String("node", n.ID), slog.Any("err", err))
		return n, domain.CatalogElement{}, fmt.Errorf("create catalog entry for %s: %w", n.ID, err)
	}
	s.st.PutCatalog(el)
	return n, el, nil
}

// EditNode applies the form patch to the node and mirrors title, content and type
// onto the linked catalog entry.
func (s *Sync) EditNode(ctx context.Context, id string, p domain.NodePatch) (domain.StorylineNode, error) {
	n, err := s.st.UpdateNode(ctx, id, p)
	if errors.Is(err, store.ErrUnknownNode) || errors.Is(err, domain.ErrInvalid) {
		return n, err
	}
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	cp := mirror(p)
	if cp == (domain.CatalogPatch{}) {
		return n, errors.Join(errs...)
	}
	s.st.PatchCatalogByNode(id, cp)
	if err := s.st.Backend().UpdateCatalogByNode(ctx, id, cp); err != nil {
		s.log.WarnContext(ctx, "update catalog entry failed", slog.String("node", id), slog.Any("err", err))
		errs = append(errs, fmt.Errorf("update catalog entry of %s: %w", id, err))
	}
	return n, errors.Join(errs...)
}

func mirror(p domain.NodePatch) domain.CatalogPatch {
	var cp domain.CatalogPatch
	if p.Title != nil {
		cp.Name = p.Title
	}
	if p.Content != nil {
		cp.Description = p.Content
	}
	if p.Type != nil {
		t := domain.CatalogTypeFor(*p.Type)
		cp.Type = &t
	}
	return cp
}

// DeleteNode deletes the node, its edges, and either deletes or unlinks its catalog entry.
func (s *Sync) DeleteNode(ctx context.Context, id string, mode DeleteMode) error {
	if _, ok := s.st.Node(id); !ok {
		return fmt.Errorf("delete node %s: %w", id, store.ErrUnknownNode)
	}
	var errs []error
	el, linked := s.st.CatalogForNode(id)
	switch {
	case linked && mode == DeleteLinked:
		s.st.RemoveCatalog(el.ID)
		if err := s.st.Backend().DeleteCatalogElement(ctx, el.ID); err != nil {
			s.log.WarnContext(ctx, "delete catalog entry failed", slog.String("entry", el.ID), slog.Any("err", err))
			errs = append(errs, fmt.Errorf("delete catalog entry %s: %w", el.ID, err))
		}
	case mode == KeepUnlinked:
		unlink := domain.CatalogPatch{Unlink: true}
		s.st.PatchCatalogByNode(id, unlink)
		if err := s.st.Backend().UpdateCatalogByNode(ctx, id, unlink); err != nil {
			s.log.WarnContext(ctx, "unlink catalog entry failed", slog.String("node", id), slog.Any("err", err))
			errs = append(errs, fmt.Errorf("unlink catalog entry of %s: %w", id, err))
		}
	}
	if err := s.st.DeleteNode(ctx, id); err != nil {
		errs = append(errs, err)
	}
	s.log.DebugContext(ctx, "node deleted", slog.String("node", id), slog.String("mode", mode.String()))
	return errors.Join(errs...)
}

// CreateNodeFromCatalog seeds a node from an existing entry and links the entry to it.
// The entry keeps created_from_storyline=false since it predates the node.
func (s *Sync) CreateNodeFromCatalog(ctx context.Context, entryID string, at domain.Position) (domain.StorylineNode, error) {
	el, ok := s.st.CatalogElement(entryID)
	if !ok {
		return domain.StorylineNode{}, fmt.Errorf("link %s: %w", entryID, ErrUnknownEntry)
	}
	if el.StorylineNodeID != nil {
		if _, live := s.st.Node(*el.StorylineNodeID); live {
			return domain.StorylineNode{}, fmt.Errorf("link %s: %w", entryID, ErrAlreadyLinked)
		}
	}
	n, err := s.st.CreateNode(ctx, domain.NewNode{Title: el.Name, Content: el.Description, Type: el.Type, Position: at})
	if err != nil {
		return domain.StorylineNode{}, err
	}
	link := domain.CatalogPatch{Link: &n.ID, CreatedFromStoryline: domain.Ptr(false)}
	s.st.PatchCatalog(entryID, link)
	if err := s.st.Backend().UpdateCatalogElement(ctx, entryID, link); err != nil {
		s.log.WarnContext(ctx, "link catalog entry failed", slog.String("entry", entryID), slog.Any("err", err))
		return n, fmt.Errorf("link catalog entry %s: %w", entryID, err)
	}
	return n, nil
}

// Unlinked lists catalog entries without a live node, the candidates for CreateNodeFromCatalog.
func (s *Sync) Unlinked() []domain.CatalogElement {
	var out []domain.CatalogElement
	for _, c := range s.st.Catalog() {
		if c.StorylineNodeID == nil {
			out = append(out, c)
			continue
		}
		if _, ok := s.st.Node(*c.StorylineNodeID); !ok {
			out = append(out, c)
		}
	}
	return out
}
