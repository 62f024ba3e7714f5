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
	"fmt"
	"strings"
	"time"

	"storyloom/internal/config"
)

// Open builds the Backend selected by cfg. The returned close func releases
// database handles and is never nil.
func Open(ctx context.Context, cfg config.BackendConfig, supabaseKey string) (Backend, func() error, error) {
	noop := func() error { return nil }
	var (
		b      Backend
		closer = noop
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "memory":
		b = NewMemory()
	case "", "sqlite":
		s, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		b, closer = s, s.Close
	case "postgres", "pg":
		s, err := OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		b, closer = s, s.Close
	case "supabase":
		s, err := NewSupabase(cfg.SupabaseURL, supabaseKey)
		if err != nil {
			return nil, noop, err
		}
		b = s
	default:
		return nil, noop, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
	if cfg.Breaker.Enabled {
		b = NewGuarded(b, BreakerSettings{
			Name:         cfg.Kind,
			MinRequests:  cfg.Breaker.MinRequests,
			FailureRatio: cfg.Breaker.FailureRatio,
			OpenTimeout:  time.Duration(cfg.Breaker.OpenTimeoutMs) * time.Millisecond,
		})
	}
	return b, closer, nil
}
