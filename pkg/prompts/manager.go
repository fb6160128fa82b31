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
package prompts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Manager resolves prompt names to rendered text.
//
// Raw templates are cached per prompt (and per pinned version); variables are
// substituted on every call so the cache never grows with variable sets.
//
// Example:
//
//	mgr, err := prompts.NewManager(ctx, cfg, registry, prompts.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close()
//
//	text, err := mgr.Get(ctx, "sql.system", prompts.Vars{"dialect": "teradata"},
//	    prompts.WithDefault("You are a SQL assistant."))
type Manager struct {
	specs    map[string]PromptSpec
	names    []string
	registry *SourceRegistry
	cache    *Cache
	renderer Renderer
	logger   *zap.Logger

	globalTTL    time.Duration
	disableCache bool
	concurrency  int

	inflight singleflight.Group
	closed   atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithCache replaces the Manager's cache, e.g. one built with WithClock.
func WithCache(c *Cache) Option {
	return func(m *Manager) {
		if c != nil {
			m.cache = c
		}
	}
}

// WithRenderer replaces the default plain Renderer.
func WithRenderer(r Renderer) Option {
	return func(m *Manager) {
		m.renderer = r
	}
}

// WithValidationConcurrency bounds parallel fetches during load validation.
func WithValidationConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// GetOption tunes a single Get or Raw call.
type GetOption func(*getOptions)

type getOptions struct {
	fallback    string
	hasFallback bool
	version     string
}

// WithDefault returns text instead of failing when the prompt is unknown or
// its source cannot deliver it. Render errors are never replaced.
func WithDefault(text string) GetOption {
	return func(o *getOptions) {
		o.fallback = text
		o.hasFallback = true
	}
}

// WithVersion pins a version for this call. Cached separately from the
// unpinned prompt.
func WithVersion(version string) GetOption {
	return func(o *getOptions) {
		o.version = strings.TrimSpace(version)
	}
}

// NewManager validates cfg and builds a Manager over registry.
//
// The Manager takes ownership of registry: Close closes its sources. When
// cfg.Validation is not ValidateNone the configured checks run before
// NewManager returns; on failure the registry is left open for the caller.
func NewManager(ctx context.Context, cfg Config, registry *SourceRegistry, opts ...Option) (*Manager, error) {
	if registry == nil {
		return nil, &ConfigError{Field: "sources", Reason: "source registry is nil"}
	}

	m := &Manager{
		specs:        make(map[string]PromptSpec, len(cfg.Prompts)),
		registry:     registry,
		cache:        NewCache(),
		logger:       zap.NewNop(),
		globalTTL:    DefaultCacheTTL,
		disableCache: cfg.DisableCache,
		concurrency:  8,
	}
	for _, opt := range opts {
		opt(m)
	}

	if cfg.CacheTTL != nil {
		if *cfg.CacheTTL < 0 {
			return nil, &ConfigError{Field: "cache_ttl", Reason: "must not be negative"}
		}
		m.globalTTL = *cfg.CacheTTL
	}

	for i, spec := range cfg.Prompts {
		if err := validateSpec(spec); err != nil {
			return nil, err
		}
		if _, dup := m.specs[spec.Name]; dup {
			return nil, &ConfigError{Field: fmt.Sprintf("prompts[%d]", i), Reason: fmt.Sprintf("duplicate prompt name %q", spec.Name)}
		}
		spec.Params = spec.Params.Clone()
		if spec.CacheTTL != nil {
			ttl := *spec.CacheTTL
			spec.CacheTTL = &ttl
		}
		m.specs[spec.Name] = spec
		m.names = append(m.names, spec.Name)
	}
	sort.Strings(m.names)

	mode := cfg.Validation
	if mode == "" {
		mode = ValidateNone
	}
	if err := m.Validate(ctx, mode); err != nil {
		return nil, err
	}

	m.logger.Debug("prompt manager ready",
		zap.Int("prompts", len(m.names)),
		zap.Strings("sources", registry.Names()),
		zap.Duration("cache_ttl", m.globalTTL),
		zap.Bool("cache_disabled", m.disableCache))
	return m, nil
}

func validateSpec(spec PromptSpec) error {
	field := fmt.Sprintf("prompts.%s", spec.Name)
	switch {
	case strings.TrimSpace(spec.Name) == "":
		return &ConfigError{Field: "prompts", Reason: "prompt name cannot be empty"}
	case strings.Contains(spec.Name, versionSeparator):
		return &ConfigError{Field: field, Reason: fmt.Sprintf("name must not contain %q", versionSeparator)}
	case strings.TrimSpace(spec.Source) == "":
		return &ConfigError{Field: field + ".source", Reason: "source is required"}
	case spec.CacheTTL != nil && *spec.CacheTTL < 0:
		return &ConfigError{Field: field + ".cache_ttl", Reason: "must not be negative"}
	}
	return nil
}

// Get returns the rendered prompt.
//
// Errors: *PromptNotFoundError, *UnknownSourceError and *SourceFetchError are
// replaced by the WithDefault text when one is given; *MissingVariableError
// always propagates.
func (m *Manager) Get(ctx context.Context, name string, vars Vars, opts ...GetOption) (string, error) {
	raw, err := m.Raw(ctx, name, opts...)
	if err != nil {
		return "", err
	}

	text, err := m.renderer.Render(raw, vars)
	if err != nil {
		var missing *MissingVariableError
		if errors.As(err, &missing) {
			missing.Prompt = name
		}
		return "", err
	}
	return text, nil
}

// Raw returns the unrendered template, going through the cache.
func (m *Manager) Raw(ctx context.Context, name string, opts ...GetOption) (string, error) {
	if m.closed.Load() {
		return "", ErrClosed
	}

	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}

	spec, ok := m.specs[name]
	if !ok {
		if o.hasFallback {
			m.logger.Debug("prompt not configured, using default", zap.String("prompt", name))
			return o.fallback, nil
		}
		return "", &PromptNotFoundError{Name: name}
	}

	key := cacheKey(name, o.version)
	ttl := m.effectiveTTL(spec)
	if ttl > 0 {
		if raw, hit := m.cache.Get(key); hit {
			return raw, nil
		}
	}

	raw, err := m.load(ctx, spec, o.version, key, ttl)
	if err != nil {
		if o.hasFallback {
			m.logger.Warn("prompt fetch failed, using default",
				zap.String("prompt", name),
				zap.String("source", spec.Source),
				zap.Error(err))
			return o.fallback, nil
		}
		return "", err
	}
	return raw, nil
}

// load fetches and caches. Concurrent misses on the same key share one fetch.
//
// The shared fetch runs detached from any one caller's cancellation and is
// bounded by the source's own timeout. A result is cached only if the cache
// was not cleared while it was in flight, and a miss after a clear never
// joins a fetch that started before it.
func (m *Manager) load(ctx context.Context, spec PromptSpec, version, key string, ttl time.Duration) (string, error) {
	gen := m.cache.Generation()
	flight := key + "#" + strconv.FormatUint(gen, 10)

	ch := m.inflight.DoChan(flight, func() (any, error) {
		raw, err := m.fetch(context.WithoutCancel(ctx), spec, version)
		if err != nil {
			return "", err
		}
		if !m.cache.StoreIfGeneration(key, raw, ttl, gen) && ttl > 0 {
			m.logger.Debug("cache cleared during fetch, result not cached",
				zap.String("prompt", spec.Name))
		}
		return raw, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", &SourceFetchError{Prompt: spec.Name, Source: spec.Source, Err: ctx.Err()}
	}
}

func (m *Manager) fetch(ctx context.Context, spec PromptSpec, version string) (string, error) {
	src, err := m.registry.Resolve(spec.Source)
	if err != nil {
		var unknown *UnknownSourceError
		if errors.As(err, &unknown) {
			return "", &UnknownSourceError{Source: unknown.Source, Prompt: spec.Name}
		}
		return "", err
	}

	params := spec.Params.Clone()
	if version != "" {
		params["version"] = version
	}

	start := time.Now()
	raw, err := src.Fetch(ctx, params)
	if err != nil {
		return "", &SourceFetchError{Prompt: spec.Name, Source: spec.Source, Err: err}
	}
	m.logger.Debug("prompt fetched",
		zap.String("prompt", spec.Name),
		zap.String("source", spec.Source),
		zap.String("version", version),
		zap.Duration("duration", time.Since(start)))
	return raw, nil
}

// effectiveTTL applies per-prompt, global and disable-cache settings.
func (m *Manager) effectiveTTL(spec PromptSpec) time.Duration {
	if m.disableCache {
		return 0
	}
	if spec.CacheTTL != nil {
		return *spec.CacheTTL
	}
	return m.globalTTL
}

// ClearCache drops cached templates for names, or everything when none are given.
func (m *Manager) ClearCache(names ...string) {
	if len(names) == 0 {
		m.cache.InvalidateAll()
		return
	}
	for _, name := range names {
		m.cache.Invalidate(name)
	}
}

// List returns the configured prompt names, sorted.
func (m *Manager) List() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Exists reports whether name is configured.
func (m *Manager) Exists(name string) bool {
	_, ok := m.specs[name]
	return ok
}

// Spec returns a copy of the configuration for name.
func (m *Manager) Spec(name string) (PromptSpec, bool) {
	spec, ok := m.specs[name]
	if !ok {
		return PromptSpec{}, false
	}
	spec.Params = spec.Params.Clone()
	return spec, true
}

// Stats returns cache statistics.
func (m *Manager) Stats() CacheStats {
	return m.cache.Stats()
}

// Close closes the underlying sources. Safe to call more than once.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.cache.InvalidateAll()
	return m.registry.Close()
}

// promptsForSource returns the prompts configured against source.
func (m *Manager) promptsForSource(source string) []string {
	var names []string
	for _, name := range m.names {
		if normalizeSourceName(m.specs[name].Source) == normalizeSourceName(source) {
			names = append(names, name)
		}
	}
	return names
}
