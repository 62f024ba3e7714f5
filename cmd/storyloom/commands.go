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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"storyloom/internal/backend"
	"storyloom/internal/catalog"
	"storyloom/internal/domain"
	"storyloom/internal/editor"
	"storyloom/internal/render"
	"storyloom/internal/store"
)

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the SQL schema of the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var (
				s   *backend.SQL
				err error
			)
			switch strings.ToLower(a.cfg.Backend.Kind) {
			case "", "sqlite":
				s, err = backend.OpenSQLite(ctx, a.cfg.Backend.SQLitePath)
			case "postgres", "pg":
				s, err = backend.OpenPostgres(ctx, a.cfg.Backend.PostgresDSN)
			default:
				return fmt.Errorf("migrate: backend %q has no managed schema", a.cfg.Backend.Kind)
			}
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			names, err := s.Applied(ctx)
			if err != nil {
				return err
			}
			good.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", s.Dialect())
			for _, n := range names {
				subtle.Fprintf(cmd.OutOrStdout(), "  %s\n", n)
			}
			return nil
		},
	}
}

func checkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <project>",
		Short: "Load a project, removing duplicate, orphaned and self-loop edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, rep, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, rep.Summary())
			switch removed := rep.DuplicateEdges + rep.OrphanEdges + rep.SelfLoops; {
			case rep.FailedDeletes > 0:
				warn.Fprintf(out, "%d edge(s) could not be deleted remotely; they stay hidden locally\n", rep.FailedDeletes)
			case removed > 0:
				good.Fprintf(out, "repaired %d edge(s)\n", removed)
			default:
				good.Fprintln(out, "graph is consistent")
			}
			return nil
		},
	}
}

func nodesCmd(a *app) *cobra.Command {
	var withEdges bool
	cmd := &cobra.Command{
		Use:   "nodes <project>",
		Short: "List nodes and, optionally, edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, n := range st.Nodes() {
				linked := ""
				if _, ok := st.CatalogForNode(n.ID); !ok {
					linked = warn.Sprint(" (no catalog entry)")
				}
				fmt.Fprintf(out, "%s  %-12s %8.1f,%-8.1f %s%s\n", subtle.Sprint(n.ID), info.Sprint(n.Type), n.Position.X, n.Position.Y, n.Title, linked)
			}
			if withEdges {
				for _, e := range st.Edges() {
					fmt.Fprintf(out, "%s  %s -- %s  %s\n", subtle.Sprint(e.ID), e.SourceID, e.TargetID, e.Label)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withEdges, "edges", false, "also list edges")
	return cmd
}

func addNodeCmd(a *app) *cobra.Command {
	var (
		in  catalog.NodeInput
		typ string
	)
	cmd := &cobra.Command{
		Use:   "add-node <project>",
		Short: "Create a node together with its catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ok := domain.CanonicalNodeType(typ)
			if !ok {
				return fmt.Errorf("unknown node type %q", typ)
			}
			in.Type = t
			st, _, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			n, el, err := a.sync(st).CreateNode(cmd.Context(), in)
			if n.ID != "" {
				good.Fprintf(cmd.OutOrStdout(), "node %s\n", n.ID)
			}
			if el.ID != "" {
				subtle.Fprintf(cmd.OutOrStdout(), "catalog %s\n", el.ID)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "node title")
	cmd.Flags().StringVar(&in.Content, "content", "", "node content")
	cmd.Flags().StringVar(&typ, "type", string(domain.Scene), "node type")
	cmd.Flags().Float64Var(&in.Position.X, "x", 0, "x position")
	cmd.Flags().Float64Var(&in.Position.Y, "y", 0, "y position")
	return cmd
}

func rmNodeCmd(a *app) *cobra.Command {
	var keep bool
	cmd := &cobra.Command{
		Use:   "rm-node <project> <node-id>",
		Short: "Delete a node, its edges and its catalog entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			mode := catalog.DeleteLinked
			if keep {
				mode = catalog.KeepUnlinked
			}
			if err := a.sync(st).DeleteNode(cmd.Context(), args[1], mode); err != nil {
				return err
			}
			good.Fprintf(cmd.OutOrStdout(), "deleted %s (%s)\n", args[1], mode)
			return nil
		},
	}
	cmd.Flags().BoolVar(&keep, "keep-catalog", false, "keep the catalog entry, unlinked")
	return cmd
}

func linkCmd(a *app) *cobra.Command {
	var at domain.Position
	cmd := &cobra.Command{
		Use:   "link <project> <catalog-id>",
		Short: "Create a node from an existing catalog entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			n, err := a.sync(st).CreateNodeFromCatalog(cmd.Context(), args[1], at)
			if errors.Is(err, catalog.ErrAlreadyLinked) {
				warn.Fprintf(cmd.OutOrStdout(), "%s is already on the graph\n", args[1])
				return nil
			}
			if n.ID != "" {
				good.Fprintf(cmd.OutOrStdout(), "node %s\n", n.ID)
			}
			return err
		},
	}
	cmd.Flags().Float64Var(&at.X, "x", 0, "x position")
	cmd.Flags().Float64Var(&at.Y, "y", 0, "y position")
	return cmd
}

func catalogCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog <project>",
		Short: "List catalog entries that are not on the graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, c := range a.sync(st).Unlinked() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-12s %s\n", subtle.Sprint(c.ID), info.Sprint(c.Type), c.Name)
			}
			return nil
		},
	}
}

func connectCmd(a *app) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "connect <project> <node-a> <node-b>",
		Short: "Connect two nodes",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			e, err := st.CreateEdge(cmd.Context(), args[1], args[2], strings.TrimSpace(label))
			switch {
			case errors.Is(err, store.ErrDuplicateEdge), errors.Is(err, store.ErrSelfLoop):
				warn.Fprintf(cmd.OutOrStdout(), "nothing to do: %v\n", err)
				return nil
			case err != nil:
				return err
			}
			good.Fprintf(cmd.OutOrStdout(), "edge %s\n", e.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "edge label")
	return cmd
}

func renderCmd(a *app) *cobra.Command {
	var (
		outPath string
		palette string
		w, h    float64
	)
	cmd := &cobra.Command{
		Use:   "render <project>",
		Short: "Render the graph to SVG or PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if palette == "" {
				palette = a.cfg.Render.PaletteFile
			}
			pal, err := render.LoadPalette(palette)
			if err != nil {
				return err
			}
			st, _, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			sess := editor.NewSession(st, editor.OptionsFrom(a.cfg.Editor))
			defer sess.Close()
			sess.ResetView()

			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("render: %w", err)
			}
			c, err := render.ToFile(f, outPath)
			if err != nil {
				_ = f.Close()
				_ = os.Remove(outPath)
				return err
			}
			size := render.Size{W: pick(w, float64(a.cfg.Render.Width)), H: pick(h, float64(a.cfg.Render.Height))}
			if err := render.Draw(c, sess.Scene(), pal, size); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("render: %w", err)
			}
			a.log.Info("rendered", slog.String("file", outPath), slog.Int("nodes", len(st.Nodes())))
			good.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "storyline.svg", "output file (.svg or .pdf)")
	cmd.Flags().StringVar(&palette, "palette", "", "palette TOML file")
	cmd.Flags().Float64Var(&w, "width", 0, "page width in pixels")
	cmd.Flags().Float64Var(&h, "height", 0, "page height in pixels")
	return cmd
}

func pick(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}
