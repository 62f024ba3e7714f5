/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package crash

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "storyloom/internal/log"
	"storyloom/internal/outbox"
	"storyloom/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// flushTimeout bounds how long a crashing process waits for queued writes.
var flushTimeout = 3 * time.Second

// Scope describes the running command for the report. All fields are optional.
type Scope struct {
	// Dir receives the report; defaults to <tmp>/storyloom.
	Dir       string
	ProjectID string
	Backend   string
	// Outbox is flushed before exit so queued position and label writes still land.
	Outbox *outbox.Outbox
}

// Recover captures a panic, logs an error with stacktrace, flushes pending
// writes and writes an error report file.
//
// Usage: defer crash.Recover(scope)
func Recover(sc *Scope) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		if sc != nil && sc.Outbox != nil {
			ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			if err := sc.Outbox.Flush(ctx); err != nil {
				l.Error("outbox flush failed", slog.Any("err", err), slog.Int("pending", sc.Outbox.Stats().Pending))
			} else {
				l.Info("outbox flushed")
			}
			cancel()
		}

		reportPath, err := writeReport(sc, r, stack)
		if err != nil {
			l.Error("write crash report failed", slog.Any("err", err))
		}

		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		exitFn(2)
	}
}

func writeReport(sc *Scope, panicVal any, stack []byte) (string, error) {
	dir := filepath.Join(os.TempDir(), "storyloom")
	if sc != nil && sc.Dir != "" {
		dir = sc.Dir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("crash dir: %w", err)
	}
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", stamp))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Storyloom Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if sc != nil {
		if sc.ProjectID != "" {
			_, _ = fmt.Fprintf(&buf, "Project: %s\n", sc.ProjectID)
		}
		if sc.Backend != "" {
			_, _ = fmt.Fprintf(&buf, "Backend: %s\n", sc.Backend)
		}
		if sc.Outbox != nil {
			st := sc.Outbox.Stats()
			_, _ = fmt.Fprintf(&buf, "Outbox: pending=%d sent=%d failed=%d\n", st.Pending, st.Sent, st.Failed)
		}
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()
	return path, nil
}
