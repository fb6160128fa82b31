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
	"sync"
)

// The process-wide handle is opt-in: nothing in this package sets it.
var (
	defaultMu      sync.RWMutex
	defaultManager *Manager
)

// SetDefault installs m as the process-wide Manager and returns the previous one.
func SetDefault(m *Manager) *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultManager
	defaultManager = m
	return prev
}

// Default returns the process-wide Manager.
func Default() (*Manager, error) {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultManager == nil {
		return nil, ErrNoDefaultManager
	}
	return defaultManager, nil
}

// ResetDefault closes and clears the process-wide Manager.
func ResetDefault() error {
	defaultMu.Lock()
	m := defaultManager
	defaultManager = nil
	defaultMu.Unlock()

	if m == nil {
		return nil
	}
	return m.Close()
}

// GetPrompt calls Get on the process-wide Manager.
func GetPrompt(ctx context.Context, name string, vars Vars, opts ...GetOption) (string, error) {
	m, err := Default()
	if err != nil {
		return "", err
	}
	return m.Get(ctx, name, vars, opts...)
}
