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
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// SourceRegistry maps source names to Source implementations.
// Names are case-insensitive.
type SourceRegistry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewSourceRegistry creates an empty registry.
func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{sources: make(map[string]Source)}
}

// Register adds a source under name.
func (r *SourceRegistry) Register(name string, src Source) error {
	key := normalizeSourceName(name)
	if key == "" {
		return fmt.Errorf("source name cannot be empty")
	}
	if src == nil {
		return fmt.Errorf("source %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[key]; exists {
		return fmt.Errorf("source %q already registered", key)
	}
	r.sources[key] = src
	return nil
}

// Resolve returns the source registered under name.
func (r *SourceRegistry) Resolve(name string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[normalizeSourceName(name)]
	if !ok {
		return nil, &UnknownSourceError{Source: name}
	}
	return src, nil
}

// Names returns the registered source names, sorted.
func (r *SourceRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every source that implements io.Closer.
func (r *SourceRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, src := range r.sources {
		if c, ok := src.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close source %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func normalizeSourceName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
