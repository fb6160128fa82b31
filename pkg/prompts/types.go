// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package prompts retrieves, caches and renders prompt templates.
//
// Prompt bodies live in pluggable sources (a remote prompt-hosting API, local
// files, databases, object storage). A Manager maps logical prompt names to a
// source and its parameters, caches the raw template per prompt with a TTL and
// substitutes named variables on every call.
//
// Example usage:
//
//	registry := prompts.NewSourceRegistry()
//	_ = registry.Register("static", prompts.SourceFunc(func(ctx context.Context, p prompts.Params) (string, error) {
//	    return "Hello {name}", nil
//	}))
//	mgr, err := prompts.NewManager(ctx, prompts.Config{
//	    Prompts: []prompts.PromptSpec{{Name: "greeting", Source: "static"}},
//	}, registry)
//	text, err := mgr.Get(ctx, "greeting", prompts.Vars{"name": "World"})
package prompts

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"
)

// DefaultCacheTTL is used when neither the prompt nor the Config sets a TTL.
const DefaultCacheTTL = time.Hour

// Params are backend-specific parameters such as an id, a version or a path.
type Params map[string]string

// Clone returns a copy that can be modified without touching the original.
func (p Params) Clone() Params {
	out := make(Params, len(p)+1)
	maps.Copy(out, p)
	return out
}

// Get returns the first non-empty value among keys.
func (p Params) Get(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(p[k]); v != "" {
			return v
		}
	}
	return ""
}

// Vars is the per-call rendering context.
type Vars map[string]any

// PromptSpec declares where a named prompt comes from.
type PromptSpec struct {
	// Name is the logical name callers use. Unique per Manager.
	Name string

	// Source is the registered source name, e.g. "openai" or "local".
	Source string

	// Params are handed to the source on every fetch.
	Params Params

	// CacheTTL overrides the global TTL. nil means "use the global default",
	// zero means "never cache".
	CacheTTL *time.Duration
}

// TTL returns a pointer to d, for PromptSpec.CacheTTL and Config.CacheTTL literals.
func TTL(d time.Duration) *time.Duration {
	return &d
}

// SourceConfig configures one source backend.
type SourceConfig struct {
	// Type selects the backend implementation. Defaults to the source name.
	Type string

	APIKey     string
	BaseURL    string
	BaseDir    string
	Timeout    time.Duration
	MaxRetries int

	// Options carries backend-specific settings (bucket, dsn, table, ...).
	Options map[string]string
}

var secretOptionKeys = []string{"key", "secret", "password", "token", "dsn"}

// String renders the config with secrets redacted.
func (c SourceConfig) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SourceConfig{Type:%q BaseURL:%q BaseDir:%q Timeout:%s MaxRetries:%d",
		c.Type, c.BaseURL, c.BaseDir, c.Timeout, c.MaxRetries)
	if c.APIKey != "" {
		b.WriteString(" APIKey:[REDACTED]")
	}
	keys := make([]string, 0, len(c.Options))
	for k := range c.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := c.Options[k]
		if isSecretOption(k) {
			v = "[REDACTED]"
		}
		fmt.Fprintf(&b, " %s:%q", k, v)
	}
	b.WriteString("}")
	return b.String()
}

// GoString keeps %#v from printing secrets.
func (c SourceConfig) GoString() string {
	return c.String()
}

// Option returns a backend option or def when it is unset.
func (c SourceConfig) Option(key, def string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return def
}

func isSecretOption(key string) bool {
	k := strings.ToLower(key)
	for _, s := range secretOptionKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// ValidationMode controls what NewManager checks before returning.
type ValidationMode string

const (
	// ValidateNone skips startup validation.
	ValidateNone ValidationMode = "none"
	// ValidateConfig checks that every prompt's source exists and accepts its params.
	ValidateConfig ValidationMode = "config"
	// ValidateLoad additionally fetches every prompt.
	ValidateLoad ValidationMode = "load"
)

// ParseValidationMode accepts the mode names plus the aliases "env_only",
// "load_test", "true" and "false".
func ParseValidationMode(s string) (ValidationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "false", "off":
		return ValidateNone, nil
	case "config", "env_only":
		return ValidateConfig, nil
	case "load", "load_test", "true", "on":
		return ValidateLoad, nil
	default:
		return "", &ConfigError{Field: "validation", Reason: fmt.Sprintf("unknown mode %q", s)}
	}
}

// Config is everything a Manager needs besides its sources.
type Config struct {
	Prompts []PromptSpec

	// Sources is consumed by the source factory, not by the Manager.
	Sources map[string]SourceConfig

	// CacheTTL is the global default. nil means DefaultCacheTTL.
	CacheTTL *time.Duration

	// DisableCache bypasses the cache for every prompt.
	DisableCache bool

	Validation ValidationMode
}

// Change is a notification that prompts served by a source may have changed.
type Change struct {
	// Source is the registered source name.
	Source string

	// Key is the backend-specific identifier that changed (file path, prompt id).
	// Empty means the whole source.
	Key string

	// Action is "created", "modified", "deleted" or "error".
	Action string

	// Prompts lists the prompts whose cache entries were invalidated.
	Prompts []string

	Timestamp time.Time
	Err       error
}
