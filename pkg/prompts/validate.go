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
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Validate checks every configured prompt.
//
// ValidateConfig resolves each prompt's source and runs its ParamValidator.
// ValidateLoad also fetches every prompt concurrently; fetched templates are
// stored in the cache. All failures are reported together in one
// *StartupValidationError, sorted by prompt name.
func (m *Manager) Validate(ctx context.Context, mode ValidationMode) error {
	switch mode {
	case ValidateNone:
		return nil
	case ValidateConfig, ValidateLoad:
	default:
		return &ConfigError{Field: "validation", Reason: fmt.Sprintf("unknown mode %q", mode)}
	}
	if m.closed.Load() {
		return ErrClosed
	}

	var (
		mu       sync.Mutex
		failures []ValidationFailure
	)
	fail := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, ValidationFailure{Prompt: name, Err: err})
	}

	var loadable []PromptSpec
	for _, name := range m.names {
		spec := m.specs[name]
		if err := m.checkSpec(spec); err != nil {
			fail(name, err)
			continue
		}
		loadable = append(loadable, spec)
	}

	if mode == ValidateLoad {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(m.concurrency)
		for _, spec := range loadable {
			g.Go(func() error {
				gen := m.cache.Generation()
				raw, err := m.fetch(gctx, spec, "")
				if err != nil {
					fail(spec.Name, err)
					return nil
				}
				m.cache.StoreIfGeneration(cacheKey(spec.Name, ""), raw, m.effectiveTTL(spec), gen)
				return nil
			})
		}
		// Workers never return errors; failures are collected above.
		_ = g.Wait()
	}

	if len(failures) == 0 {
		m.logger.Debug("prompt validation passed", zap.String("mode", string(mode)), zap.Int("prompts", len(m.names)))
		return nil
	}

	sort.Slice(failures, func(i, j int) bool { return failures[i].Prompt < failures[j].Prompt })
	verr := &StartupValidationError{Failures: failures}
	m.logger.Error("prompt validation failed",
		zap.String("mode", string(mode)),
		zap.Strings("prompts", verr.Prompts()))
	return verr
}

// checkSpec verifies the source exists and accepts the params.
func (m *Manager) checkSpec(spec PromptSpec) error {
	src, err := m.registry.Resolve(spec.Source)
	if err != nil {
		var unknown *UnknownSourceError
		if errors.As(err, &unknown) {
			return &UnknownSourceError{Source: unknown.Source, Prompt: spec.Name}
		}
		return err
	}
	if v, ok := src.(ParamValidator); ok {
		if err := v.ValidateParams(spec.Params); err != nil {
			return &SourceFetchError{Prompt: spec.Name, Source: spec.Source, Err: err}
		}
	}
	return nil
}
