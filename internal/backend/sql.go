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
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"storyloom/internal/domain"
	applog "storyloom/internal/log"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Dialect selects the SQL flavour and its migration set.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Timestamps are stored as fixed-width UTC text so they sort lexically on both dialects.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQL implements Backend over database/sql.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	log     *slog.Logger
}

// NewSQL wraps an open database. Call Migrate before first use.
func NewSQL(db *sql.DB, d Dialect) *SQL {
	return &SQL{db: db, dialect: d, now: time.Now, log: applog.WithComponent("backend.sql").With(slog.String("dialect", string(d)))}
}

// OpenSQLite opens (creating if needed) a local project database, enables WAL and migrates it.
func OpenSQLite(ctx context.Context, file string) (*SQL, error) {
	l := applog.WithOperation(applog.WithComponent("backend.sql"), "open_sqlite").With(slog.String("path", file))
	if strings.TrimSpace(file) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(file))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	s := NewSQL(db, DialectSQLite)
	if _, err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	l.Debug("sqlite ready")
	return s, nil
}

// OpenPostgres connects through the pgx stdlib driver and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*SQL, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := NewSQL(db, DialectPostgres)
	if _, err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQL) DB() *sql.DB      { return s.db }
func (s *SQL) Dialect() Dialect { return s.dialect }
func (s *SQL) Close() error     { return s.db.Close() }

// Migrate applies pending embedded migrations in version order and returns their file names.
func (s *SQL) Migrate(ctx context.Context) ([]string, error) {
	dir := path.Join("migrations", string(s.dialect))
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	// language=SQL
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return nil, err
		}
		applied[v] = true
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var done []string
	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return done, err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join(dir, fname))
		if err != nil {
			return done, err
		}
		if err := s.applyMigration(ctx, version, fname, string(b)); err != nil {
			return done, err
		}
		s.log.Info("applied migration", slog.String("file", fname))
		done = append(done, fname)
	}
	return done, nil
}

// Applied lists the recorded migrations in version order.
func (s *SQL) Applied(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("select schema_migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *SQL) applyMigration(ctx context.Context, version int64, name, text string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()
	if strings.TrimSpace(text) != "" {
		if _, err := tx.ExecContext(ctx, text); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO schema_migrations(version, name, applied_at) VALUES(?, ?, ?)`),
		version, name, s.stamp()); err != nil {
		return fmt.Errorf("record %s: %w", name, err)
	}
	return tx.Commit()
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	parts := strings.SplitN(base, "_", 2)
	v, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

// rebind turns ? placeholders into $n for Postgres.
func (s *SQL) rebind(q string) string {
	if s.dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) stamp() string { return s.now().UTC().Format(tsLayout) }

func parseStamp(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func sqlValue(v any) any {
	if p, ok := v.(domain.Position); ok {
		return string(domain.EncodePosition(p))
	}
	return v
}

// language=SQL
const (
	selectNodes   = `SELECT id, project_id, title, content, node_type, position, created_at, updated_at FROM storyline_nodes WHERE project_id = ? ORDER BY created_at, id`
	selectEdges   = `SELECT id, project_id, source_id, target_id, label, created_at, updated_at FROM storyline_connections WHERE project_id = ? ORDER BY created_at, id`
	selectCatalog = `SELECT id, project_id, name, type, description, storyline_node_id, created_from_storyline, created_at, updated_at FROM world_building_elements WHERE project_id = ? ORDER BY created_at, id`
	insertNode    = `INSERT INTO storyline_nodes(id, project_id, title, content, node_type, position, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?, ?, ?)`
	insertEdge    = `INSERT INTO storyline_connections(id, project_id, source_id, target_id, label, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?, ?)`
	insertCatalog = `INSERT INTO world_building_elements(id, project_id, name, type, description, storyline_node_id, created_from_storyline, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

func (s *SQL) FetchNodes(ctx context.Context, projectID string) ([]domain.StorylineNode, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(selectNodes), projectID)
	if err != nil {
		return nil, fmt.Errorf("fetch nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.StorylineNode
	for rows.Next() {
		var (
			n                domain.StorylineNode
			rawType          string
			rawPos           sql.NullString
			created, updated string
		)
		if err := rows.Scan(&n.ID, &n.ProjectID, &n.Title, &n.Content, &rawType, &rawPos, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.Type = canonicalType(s.log, n.ID, rawType)
		n.Position = decodePosition(s.log, n.ID, []byte(rawPos.String))
		n.CreatedAt, n.UpdatedAt = parseStamp(created), parseStamp(updated)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch nodes: %w", err)
	}
	return out, nil
}

func (s *SQL) FetchEdges(ctx context.Context, projectID string) ([]domain.Connection, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(selectEdges), projectID)
	if err != nil {
		return nil, fmt.Errorf("fetch edges: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Connection
	for rows.Next() {
		var (
			e                domain.Connection
			created, updated string
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.SourceID, &e.TargetID, &e.Label, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.CreatedAt, e.UpdatedAt = parseStamp(created), parseStamp(updated)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch edges: %w", err)
	}
	return out, nil
}

func (s *SQL) FetchCatalog(ctx context.Context, projectID string) ([]domain.CatalogElement, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(selectCatalog), projectID)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.CatalogElement
	for rows.Next() {
		var (
			c                domain.CatalogElement
			rawType          string
			nodeID           sql.NullString
			created, updated string
		)
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &rawType, &c.Description, &nodeID, &c.CreatedFromStoryline, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan catalog element: %w", err)
		}
		c.Type = canonicalType(s.log, c.ID, rawType)
		if nodeID.Valid && nodeID.String != "" {
			id := nodeID.String
			c.StorylineNodeID = &id
		}
		c.CreatedAt, c.UpdatedAt = parseStamp(created), parseStamp(updated)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	return out, nil
}

func (s *SQL) CreateNode(ctx context.Context, in domain.NewNode) (domain.StorylineNode, error) {
	if err := domain.Validate(in); err != nil {
		return domain.StorylineNode{}, fmt.Errorf("create node: %w", err)
	}
	now := s.stamp()
	n := domain.StorylineNode{
		ID: uuid.NewString(), ProjectID: in.ProjectID, Title: in.Title, Content: in.Content,
		Type: in.Type, Position: in.Position, CreatedAt: parseStamp(now), UpdatedAt: parseStamp(now),
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(insertNode), n.ID, n.ProjectID, n.Title, n.Content,
		string(n.Type), sqlValue(n.Position), now, now); err != nil {
		return domain.StorylineNode{}, fmt.Errorf("create node: %w", err)
	}
	return n, nil
}

func (s *SQL) UpdateNode(ctx context.Context, id string, p domain.NodePatch) error {
	if err := s.update(ctx, "storyline_nodes", "id", id, nodeFields(p), true); err != nil {
		return fmt.Errorf("update node %s: %w", id, err)
	}
	return nil
}

func (s *SQL) DeleteNode(ctx context.Context, id string) error {
	if err := s.delete(ctx, "storyline_nodes", "id", id, true); err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	return nil
}

func (s *SQL) CreateEdge(ctx context.Context, in domain.NewEdge) (domain.Connection, error) {
	if err := domain.Validate(in); err != nil {
		return domain.Connection{}, fmt.Errorf("create edge: %w", err)
	}
	now := s.stamp()
	e := domain.Connection{
		ID: uuid.NewString(), ProjectID: in.ProjectID, SourceID: in.SourceID, TargetID: in.TargetID,
		Label: in.Label, CreatedAt: parseStamp(now), UpdatedAt: parseStamp(now),
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(insertEdge), e.ID, e.ProjectID, e.SourceID, e.TargetID, e.Label, now, now); err != nil {
		return domain.Connection{}, fmt.Errorf("create edge: %w", err)
	}
	return e, nil
}

func (s *SQL) UpdateEdge(ctx context.Context, id string, label string) error {
	if err := s.update(ctx, "storyline_connections", "id", id, []field{{"label", label}}, true); err != nil {
		return fmt.Errorf("update edge %s: %w", id, err)
	}
	return nil
}

func (s *SQL) DeleteEdge(ctx context.Context, id string) error {
	if err := s.delete(ctx, "storyline_connections", "id", id, true); err != nil {
		return fmt.Errorf("delete edge %s: %w", id, err)
	}
	return nil
}

func (s *SQL) DeleteEdgesTouching(ctx context.Context, nodeID string) error {
	// language=SQL
	q := `DELETE FROM storyline_connections WHERE source_id = ? OR target_id = ?`
	if _, err := s.db.ExecContext(ctx, s.rebind(q), nodeID, nodeID); err != nil {
		return fmt.Errorf("delete edges of %s: %w", nodeID, err)
	}
	return nil
}

func (s *SQL) CreateCatalogElement(ctx context.Context, in domain.NewCatalogElement) (domain.CatalogElement, error) {
	if err := domain.Validate(in); err != nil {
		return domain.CatalogElement{}, fmt.Errorf("create catalog element: %w", err)
	}
	now := s.stamp()
	c := domain.CatalogElement{
		ID: uuid.NewString(), ProjectID: in.ProjectID, Name: in.Name, Type: in.Type, Description: in.Description,
		CreatedFromStoryline: in.CreatedFromStoryline, CreatedAt: parseStamp(now), UpdatedAt: parseStamp(now),
	}
	var link any
	if in.StorylineNodeID != nil {
		id := *in.StorylineNodeID
		c.StorylineNodeID = &id
		link = id
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(insertCatalog), c.ID, c.ProjectID, c.Name, string(c.Type), c.Description,
		link, c.CreatedFromStoryline, now, now); err != nil {
		return domain.CatalogElement{}, fmt.Errorf("create catalog element: %w", err)
	}
	return c, nil
}

func (s *SQL) UpdateCatalogElement(ctx context.Context, id string, p domain.CatalogPatch) error {
	if err := s.update(ctx, "world_building_elements", "id", id, catalogFields(p), true); err != nil {
		return fmt.Errorf("update catalog element %s: %w", id, err)
	}
	return nil
}

func (s *SQL) DeleteCatalogElement(ctx context.Context, id string) error {
	if err := s.delete(ctx, "world_building_elements", "id", id, true); err != nil {
		return fmt.Errorf("delete catalog element %s: %w", id, err)
	}
	return nil
}

func (s *SQL) UpdateCatalogByNode(ctx context.Context, nodeID string, p domain.CatalogPatch) error {
	if err := s.update(ctx, "world_building_elements", "storyline_node_id", nodeID, catalogFields(p), false); err != nil {
		return fmt.Errorf("update catalog of node %s: %w", nodeID, err)
	}
	return nil
}

func (s *SQL) update(ctx context.Context, table, keyCol string, key any, fs []field, mustExist bool) error {
	sets := make([]string, 0, len(fs)+1)
	args := make([]any, 0, len(fs)+2)
	for _, f := range fs {
		sets = append(sets, f.col+" = ?")
		args = append(args, sqlValue(f.val))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.stamp(), key)
	q := "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE " + keyCol + " = ?"
	res, err := s.db.ExecContext(ctx, s.rebind(q), args...)
	if err != nil {
		return err
	}
	return checkAffected(res, mustExist)
}

func (s *SQL) delete(ctx context.Context, table, keyCol string, key any, mustExist bool) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM "+table+" WHERE "+keyCol+" = ?"), key)
	if err != nil {
		return err
	}
	return checkAffected(res, mustExist)
}

func checkAffected(res sql.Result, mustExist bool) error {
	if !mustExist {
		return nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func canonicalType(l *slog.Logger, id, raw string) domain.NodeType {
	t, ok := domain.CanonicalNodeType(raw)
	if !ok {
		l.Warn("unknown node type, using scene", slog.String("id", id), slog.String("type", raw))
	}
	return t
}

func decodePosition(l *slog.Logger, id string, raw []byte) domain.Position {
	p, ok := domain.PositionOrFallback(raw)
	if !ok {
		l.Debug("unreadable position replaced", slog.String("id", id), slog.String("raw", string(raw)))
	}
	return p
}
