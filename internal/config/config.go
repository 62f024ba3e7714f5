/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables (and an optional .env file in the working directory) are treated as
// read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type BackendConfig struct {
	// Kind selects the persistence adapter: "sqlite", "postgres", "supabase" or "memory".
	Kind        string        `yaml:"kind"`
	SQLitePath  string        `yaml:"sqlite_path"`
	PostgresDSN string        `yaml:"postgres_dsn"`
	SupabaseURL string        `yaml:"supabase_url"`
	TimeoutMs   int           `yaml:"timeout_ms"`
	Breaker     BreakerConfig `yaml:"breaker"`
	// The Supabase service key is not stored on disk; it lives in the OS keychain.
}

type BreakerConfig struct {
	Enabled       bool    `yaml:"enabled"`
	FailureRatio  float64 `yaml:"failure_ratio"`
	MinRequests   uint32  `yaml:"min_requests"`
	OpenTimeoutMs int     `yaml:"open_timeout_ms"`
}

type EditorConfig struct {
	DragThresholdPx float64 `yaml:"drag_threshold_px"`
	NodeWidth       float64 `yaml:"node_width"`
	NodeHeight      float64 `yaml:"node_height"`
	// ResetRef is where reset-view centers the graph; nil means unset.
	ResetRef     *Point  `yaml:"reset_ref,omitempty"`
	GridSize     float64 `yaml:"grid_size"`
	HistoryDepth int     `yaml:"history_depth"`
}

// Point is a world-space coordinate in the config file.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

type RenderConfig struct {
	// PaletteFile optionally points to a TOML palette overriding the built-in node colours.
	PaletteFile string `yaml:"palette_file"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Backend       BackendConfig `yaml:"backend"`
	Editor        EditorConfig  `yaml:"editor"`
	Render        RenderConfig  `yaml:"render"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Backend: BackendConfig{
			Kind:      "sqlite",
			TimeoutMs: 15000,
			Breaker:   BreakerConfig{Enabled: false, FailureRatio: 0.8, MinRequests: 5, OpenTimeoutMs: 30000},
		},
		Editor: EditorConfig{
			DragThresholdPx: 5,
			NodeWidth:       180,
			NodeHeight:      80,
			ResetRef:        &Point{X: 400, Y: 300},
			GridSize:        40,
			HistoryDepth:    50,
		},
		Render:  RenderConfig{Width: 1200, Height: 800},
		Logging: LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvBackendKind      = "SLM_BACKEND"
	EnvSQLitePath       = "SLM_SQLITE_PATH"
	EnvPostgresDSN      = "SLM_PG_DSN"
	EnvSupabaseURL      = "SLM_SUPABASE_URL"
	EnvSupabaseKey      = "SLM_SUPABASE_KEY"
	EnvBackendTimeoutMs = "SLM_BACKEND_TIMEOUT_MS"
	EnvBreaker          = "SLM_BREAKER"
	EnvDragThreshold    = "SLM_DRAG_THRESHOLD_PX"
	EnvPaletteFile      = "SLM_PALETTE_FILE"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "SLM_LOG_LEVEL"
	EnvLogFormat = "SLM_LOG_FORMAT"
	EnvLogSource = "SLM_LOG_SOURCE"
	EnvLogFile   = "SLM_LOG_FILE"
	// EnvConfigPath points Load/Save at an explicit file instead of the per-user location.
	EnvConfigPath = "SLM_CONFIG"
)

// ConfigDir returns the per-user configuration directory.
func ConfigDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Storyloom")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Storyloom")
	default: // linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "storyloom")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "storyloom")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// ConfigPath returns the config file path, honouring SLM_CONFIG.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment
// overrides. The Supabase service key is returned separately: it comes from SLM_SUPABASE_KEY
// when set, otherwise from the OS keyring.
func Load() (AppConfig, string, error) {
	// .env is optional; a missing file is the common case.
	_ = godotenv.Load()

	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	if cfg.Backend.SQLitePath == "" {
		if dir, err := ConfigDir(); err == nil {
			cfg.Backend.SQLitePath = filepath.Join(dir, "storyloom.sqlite")
		}
	}

	key := strings.TrimSpace(os.Getenv(EnvSupabaseKey))
	if key == "" {
		key, _ = tokenStore.Get(keyringService, keyringSupabaseKey)
	}
	return cfg, key, nil
}

// Save writes the user config YAML and persists the Supabase key into the OS keyring (if non-empty).
func Save(cfg AppConfig, supabaseKey string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if supabaseKey != "" {
		if err := tokenStore.Set(keyringService, keyringSupabaseKey, supabaseKey); err != nil {
			return err
		}
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// backend
	if s := strings.ToLower(strings.TrimSpace(src.Backend.Kind)); s != "" {
		dst.Backend.Kind = s
	}
	if s := strings.TrimSpace(src.Backend.SQLitePath); s != "" {
		dst.Backend.SQLitePath = s
	}
	if s := strings.TrimSpace(src.Backend.PostgresDSN); s != "" {
		dst.Backend.PostgresDSN = s
	}
	if s := strings.TrimSpace(src.Backend.SupabaseURL); s != "" {
		dst.Backend.SupabaseURL = s
	}
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.Backend.Breaker.Enabled = src.Backend.Breaker.Enabled
	if src.Backend.Breaker.FailureRatio > 0 {
		dst.Backend.Breaker.FailureRatio = src.Backend.Breaker.FailureRatio
	}
	if src.Backend.Breaker.MinRequests > 0 {
		dst.Backend.Breaker.MinRequests = src.Backend.Breaker.MinRequests
	}
	if src.Backend.Breaker.OpenTimeoutMs > 0 {
		dst.Backend.Breaker.OpenTimeoutMs = src.Backend.Breaker.OpenTimeoutMs
	}
	// editor
	if src.Editor.DragThresholdPx > 0 {
		dst.Editor.DragThresholdPx = src.Editor.DragThresholdPx
	}
	if src.Editor.NodeWidth > 0 {
		dst.Editor.NodeWidth = src.Editor.NodeWidth
	}
	if src.Editor.NodeHeight > 0 {
		dst.Editor.NodeHeight = src.Editor.NodeHeight
	}
	if src.Editor.ResetRef != nil {
		ref := *src.Editor.ResetRef
		dst.Editor.ResetRef = &ref
	}
	if src.Editor.GridSize > 0 {
		dst.Editor.GridSize = src.Editor.GridSize
	}
	if src.Editor.HistoryDepth > 0 {
		dst.Editor.HistoryDepth = src.Editor.HistoryDepth
	}
	// render
	if s := strings.TrimSpace(src.Render.PaletteFile); s != "" {
		dst.Render.PaletteFile = s
	}
	if src.Render.Width > 0 {
		dst.Render.Width = src.Render.Width
	}
	if src.Render.Height > 0 {
		dst.Render.Height = src.Render.Height
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvBackendKind)); v != "" {
		cfg.Backend.Kind = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvSQLitePath)); v != "" {
		cfg.Backend.SQLitePath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPostgresDSN)); v != "" {
		cfg.Backend.PostgresDSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSupabaseURL)); v != "" {
		cfg.Backend.SupabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.TimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvBreaker)); v != "" {
		cfg.Backend.Breaker.Enabled = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvDragThreshold)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Editor.DragThresholdPx = f
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvPaletteFile)); v != "" {
		cfg.Render.PaletteFile = v
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

func parseBool(v string) bool {
	lv := strings.ToLower(strings.TrimSpace(v))
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	names := map[string]string{
		"backend.kind":             EnvBackendKind,
		"backend.sqlite_path":      EnvSQLitePath,
		"backend.postgres_dsn":     EnvPostgresDSN,
		"backend.supabase_url":     EnvSupabaseURL,
		"backend.timeout_ms":       EnvBackendTimeoutMs,
		"backend.breaker.enabled":  EnvBreaker,
		"editor.drag_threshold_px": EnvDragThreshold,
		"render.palette_file":      EnvPaletteFile,
		"logging.level":            EnvLogLevel,
		"logging.format":           EnvLogFormat,
		"logging.source":           EnvLogSource,
		"logging.file":             EnvLogFile,
	}
	env, ok := names[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// Timeout returns the backend timeout, falling back to the default when unset.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Backend.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}
