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
	"strings"
)

var (
	// ErrNotFound is wrapped by sources when the requested prompt does not exist.
	ErrNotFound = errors.New("prompt not found in source")

	// ErrSourceNotConfigured is wrapped by sources missing required settings.
	ErrSourceNotConfigured = errors.New("source not configured")

	// ErrNoDefaultManager is returned by Default before SetDefault is called.
	ErrNoDefaultManager = errors.New("no default prompt manager set")

	// ErrWatchUnsupported is returned by Manager.Watch when no source can watch.
	ErrWatchUnsupported = errors.New("no configured source supports watching")

	// ErrClosed is returned by operations on a closed Manager.
	ErrClosed = errors.New("prompt manager is closed")
)

// PromptNotFoundError is returned for a name that is not configured.
type PromptNotFoundError struct {
	Name string
}

func (e *PromptNotFoundError) Error() string {
	return fmt.Sprintf("prompt %q is not configured", e.Name)
}

// UnknownSourceError is returned when a prompt references an unregistered source.
type UnknownSourceError struct {
	Source string
	Prompt string
}

func (e *UnknownSourceError) Error() string {
	if e.Prompt == "" {
		return fmt.Sprintf("unknown prompt source %q", e.Source)
	}
	return fmt.Sprintf("prompt %q: unknown prompt source %q", e.Prompt, e.Source)
}

// SourceFetchError wraps any error a source returns.
type SourceFetchError struct {
	Prompt string
	Source string
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("prompt %q: fetch from source %q failed: %v", e.Prompt, e.Source, e.Err)
}

func (e *SourceFetchError) Unwrap() error {
	return e.Err
}

// MissingVariableError lists placeholders that had no value, in first-occurrence order.
type MissingVariableError struct {
	Prompt    string
	Variables []string
}

func (e *MissingVariableError) Error() string {
	vars := strings.Join(e.Variables, ", ")
	if e.Prompt == "" {
		return "missing template variables: " + vars
	}
	return fmt.Sprintf("prompt %q: missing template variables: %s", e.Prompt, vars)
}

// ValidationFailure is one prompt that failed startup validation.
type ValidationFailure struct {
	Prompt string
	Err    error
}

// StartupValidationError aggregates every failing prompt.
type StartupValidationError struct {
	Failures []ValidationFailure
}

func (e *StartupValidationError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.Prompt, f.Err)
	}
	return fmt.Sprintf("prompt validation failed for %d prompt(s): %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *StartupValidationError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Prompts returns the names of the failing prompts.
func (e *StartupValidationError) Prompts() []string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Prompt
	}
	return names
}

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid prompt configuration: %s: %s", e.Field, e.Reason)
}
