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
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storyloom/internal/backend"
	"storyloom/internal/catalog"
	"storyloom/internal/config"
	"storyloom/internal/crash"
	applog "storyloom/internal/log"
	"storyloom/internal/outbox"
	"storyloom/internal/store"
	"storyloom/internal/version"
)

// app carries what every subcommand needs: config, the open backend and the outbox.
type app struct {
	cfg     config.AppConfig
	key     string
	kind    string
	scope   *crash.Scope
	log     *slog.Logger
	be      backend.Backend
	closeBe func() error
	out     *outbox.Outbox
}

func newRootCmd(scope *crash.Scope) (*cobra.Command, *app) {
	a := &app{scope: scope}
	var logLevel string
	root := &cobra.Command{
		Use:           "storyloom",
		Short:         "storyloom: storyline graph engine",
		Long:          brand.Sprint("storyloom") + " keeps a story's node graph and world-building catalog in sync\n" + subtle.Sprint("Inspect, repair and render storyline graphs from the command line"),
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, key, err := config.Load()
			if err != nil {
				return err
			}
			if a.kind != "" {
				cfg.Backend.Kind = a.kind
			}
			opts := applog.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, AddSource: cfg.Logging.Source, File: cfg.Logging.File}
			if logLevel != "" {
				opts.Level = logLevel
			}
			applog.Init(opts)
			a.cfg, a.key = cfg, key
			a.log = applog.WithComponent("cli")
			if dir, err := config.ConfigDir(); err == nil {
				a.scope.Dir = filepath.Join(dir, "crash")
			}
			a.scope.Backend = cfg.Backend.Kind
			return nil
		},
	}
	root.SetVersionTemplate("storyloom {{ .Version }}\n")
	root.PersistentFlags().StringVar(&a.kind, "backend", "", "backend kind: sqlite, postgres, supabase or memory")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		versionCmd(),
		migrateCmd(a),
		checkCmd(a),
		nodesCmd(a),
		addNodeCmd(a),
		rmNodeCmd(a),
		linkCmd(a),
		catalogCmd(a),
		connectCmd(a),
		renderCmd(a),
	)
	return root, a
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), brand.Sprint("storyloom"), version.String())
		},
	}
}

// open connects the configured backend and loads projectID into a store.
func (a *app) open(ctx context.Context, projectID string) (*store.Store, store.LoadReport, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, store.LoadReport{}, fmt.Errorf("project id is required")
	}
	if err := a.connect(ctx); err != nil {
		return nil, store.LoadReport{}, err
	}
	a.scope.ProjectID = projectID
	st := store.New(a.be, a.out, projectID)
	rep, err := st.Load(applog.WithProject(ctx, projectID))
	if err != nil {
		return nil, rep, err
	}
	return st, rep, nil
}

func (a *app) connect(ctx context.Context) error {
	if a.be != nil {
		return nil
	}
	be, closeBe, err := backend.Open(ctx, a.cfg.Backend, a.key)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", a.cfg.Backend.Kind, err)
	}
	a.be, a.closeBe = be, closeBe
	a.out = outbox.New(be, outbox.Options{
		Timeout: a.cfg.Backend.Timeout(),
		OnError: func(op, id string, err error) {
			_, _ = warn.Printf("  write %s %s failed: %v\n", op, id, err)
		},
	})
	a.scope.Outbox = a.out
	return nil
}

// close drains queued writes and releases the backend.
func (a *app) close() error {
	if a.out != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.out.Close(ctx); err != nil {
			applog.WithComponent("cli").Warn("outbox close", slog.Any("err", err))
		}
		if st := a.out.Stats(); st.Failed > 0 {
			_, _ = warn.Printf("%d queued write(s) failed\n", st.Failed)
		}
		a.scope.Outbox = nil
		a.out = nil
	}
	if a.closeBe != nil {
		err := a.closeBe()
		a.closeBe = nil
		return err
	}
	return nil
}

func (a *app) sync(st *store.Store) *catalog.Sync { return catalog.New(st) }
