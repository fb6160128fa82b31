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

// Package sources provides the prompt source backends and a factory that
// builds a prompts.SourceRegistry from configuration.
//
// Supported types:
//   - openai: hosted prompts fetched from the Responses API
//   - local:  text, markdown, JSON and YAML files (optionally zstd-compressed)
//   - http:   a generic REST prompt service with optional SSE change events
//   - sql:    a prompts table in SQLite, PostgreSQL or MySQL
//   - s3:     objects in S3-compatible storage
//   - static: prompts declared inline in configuration
package sources

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/promptmgr/pkg/prompts"
)

// Source type names.
const (
	TypeOpenAI = "openai"
	TypeLocal  = "local"
	TypeHTTP   = "http"
	TypeSQL    = "sql"
	TypeS3     = "s3"
	TypeStatic = "static"
)

// Constructor builds a source from its configuration.
type Constructor func(cfg prompts.SourceConfig, o Options) (prompts.Source, error)

// Options are shared by every constructor.
type Options struct {
	Logger     *zap.Logger
	HTTPClient *http.Client
}

// Option configures NewRegistry.
type Option func(*Options)

// WithLogger sets the logger handed to every source.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithHTTPClient overrides the HTTP client used by the openai and http sources.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = c
	}
}

var constructors = map[string]Constructor{
	TypeOpenAI: func(cfg prompts.SourceConfig, o Options) (prompts.Source, error) { return NewOpenAISource(cfg, o) },
	TypeLocal:  func(cfg prompts.SourceConfig, o Options) (prompts.Source, error) { return NewLocalSource(cfg, o) },
	TypeHTTP:   func(cfg prompts.SourceConfig, o Options) (prompts.Source, error) { return NewHTTPSource(cfg, o) },
	TypeSQL:    func(cfg prompts.SourceConfig, o Options) (prompts.Source, error) { return NewSQLSource(cfg, o) },
	TypeS3:     func(cfg prompts.SourceConfig, o Options) (prompts.Source, error) { return NewS3Source(cfg, o) },
	TypeStatic: func(cfg prompts.SourceConfig, o Options) (prompts.Source, error) { return NewStaticSource(cfg), nil },
}

// alwaysRegistered sources are available even when not configured.
var alwaysRegistered = []string{TypeLocal, TypeOpenAI}

// Types returns the supported source types, sorted.
func Types() []string {
	types := make([]string, 0, len(constructors))
	for t := range constructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// NewRegistry builds a registry with one source per entry in cfgs.
//
// The entry's Type selects the backend and defaults to the entry name. The
// local and openai sources are added with default settings when cfgs does not
// name them. A source missing credentials is still registered; it fails at
// fetch time with prompts.ErrSourceNotConfigured.
func NewRegistry(cfgs map[string]prompts.SourceConfig, opts ...Option) (*prompts.SourceRegistry, error) {
	o := Options{Logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	registry := prompts.NewSourceRegistry()
	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[string]bool)
	for _, name := range names {
		cfg := cfgs[name]
		src, err := New(name, cfg, opts...)
		if err != nil {
			_ = registry.Close()
			return nil, err
		}
		if err := registry.Register(name, src); err != nil {
			_ = registry.Close()
			return nil, err
		}
		seen[strings.ToLower(name)] = true
	}

	for _, name := range alwaysRegistered {
		if seen[name] {
			continue
		}
		src, err := constructors[name](prompts.SourceConfig{Type: name}, o)
		if err != nil {
			_ = registry.Close()
			return nil, fmt.Errorf("default %s source: %w", name, err)
		}
		if err := registry.Register(name, src); err != nil {
			_ = registry.Close()
			return nil, err
		}
	}

	o.Logger.Debug("prompt sources registered", zap.Strings("sources", registry.Names()))
	return registry, nil
}

// New builds a single source. cfg.Type defaults to name.
func New(name string, cfg prompts.SourceConfig, opts ...Option) (prompts.Source, error) {
	o := Options{Logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	typ := strings.ToLower(strings.TrimSpace(cfg.Type))
	if typ == "" {
		typ = strings.ToLower(strings.TrimSpace(name))
	}
	ctor, ok := constructors[typ]
	if !ok {
		return nil, &prompts.ConfigError{
			Field:  fmt.Sprintf("sources.%s.type", name),
			Reason: fmt.Sprintf("unsupported source type %q (supported: %s)", typ, strings.Join(Types(), ", ")),
		}
	}
	cfg.Type = typ

	o.Logger = o.Logger.With(zap.String("source", name), zap.String("type", typ))
	src, err := ctor(cfg, o)
	if err != nil {
		var cfgErr *prompts.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, fmt.Errorf("create source %s: %w", name, err)
	}
	return src, nil
}

// notConfigured wraps prompts.ErrSourceNotConfigured with a reason.
func notConfigured(format string, args ...any) error {
	return fmt.Errorf("%w: %s", prompts.ErrSourceNotConfigured, fmt.Sprintf(format, args...))
}

// notFound wraps prompts.ErrNotFound with the missing identifier.
func notFound(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), prompts.ErrNotFound)
}

// requireParam returns the first non-empty key or an error naming them.
func requireParam(params prompts.Params, keys ...string) (string, error) {
	if v := params.Get(keys...); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("missing required parameter %q", keys[0])
}
