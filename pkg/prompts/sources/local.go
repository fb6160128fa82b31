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
package sources

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptmgr/pkg/prompts"
)

// LocalSource reads prompts from files.
//
// Params:
//   - path (alias id): file path, relative to BaseDir or absolute
//   - version: tries "<stem>.<version><ext>" then "<version>/<file>"
//   - format: text, markdown, json or yaml; inferred from the extension otherwise
//   - field: document field for json/yaml (default "prompt")
//
// A path without a recognised extension is probed with .txt, .text, .md,
// .json, .yaml and .yml, each optionally followed by .zst.
//
// Example directory:
//
//	prompts/
//	├── greeting.txt
//	├── greeting.v2.txt
//	├── sql/system.yaml          # prompt: |
//	└── v3/greeting.txt
type LocalSource struct {
	baseDir string
	logger  *zap.Logger
}

var knownExtensions = map[string]bool{
	".txt": true, ".text": true, ".md": true, ".markdown": true,
	".json": true, ".yaml": true, ".yml": true, zstdExt: true,
}

// NewLocalSource creates a file source rooted at cfg.BaseDir. An empty
// BaseDir resolves relative paths against the working directory.
func NewLocalSource(cfg prompts.SourceConfig, o Options) (*LocalSource, error) {
	s := &LocalSource{logger: o.Logger}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	if cfg.BaseDir != "" {
		dir, err := filepath.Abs(expandHome(cfg.BaseDir))
		if err != nil {
			return nil, fmt.Errorf("invalid prompts directory %q: %w", cfg.BaseDir, err)
		}
		info, err := os.Stat(dir)
		if err != nil {
			return nil, &prompts.ConfigError{Field: "base_dir", Reason: fmt.Sprintf("prompts directory does not exist: %s", dir)}
		}
		if !info.IsDir() {
			return nil, &prompts.ConfigError{Field: "base_dir", Reason: fmt.Sprintf("prompts path is not a directory: %s", dir)}
		}
		s.baseDir = dir
		s.logger.Debug("local prompt source ready", zap.String("base_dir", dir))
	}
	return s, nil
}

// BaseDir returns the absolute root directory, or "" when unset.
func (s *LocalSource) BaseDir() string {
	return s.baseDir
}

// Fetch reads and decodes the prompt file.
func (s *LocalSource) Fetch(ctx context.Context, params prompts.Params) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.ValidateParams(params); err != nil {
		return "", err
	}

	path, err := s.Resolve(params.Get("path", "id"), params.Get("version"))
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", notFound("file %s", s.display(path))
		}
		return "", fmt.Errorf("failed to read %s: %w", s.display(path), err)
	}

	data, err = maybeDecompress(path, data)
	if err != nil {
		return "", err
	}

	format, _ := normalizeFormat(params.Get("format"))
	if format == "" {
		format = formatFromPath(path)
	}

	text, err := decodeDocument(data, format, params.Get("field"))
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.display(path), err)
	}
	s.logger.Debug("loaded prompt file", zap.String("path", s.display(path)), zap.String("format", format))
	return text, nil
}

// ValidateParams checks params without touching the filesystem.
func (s *LocalSource) ValidateParams(params prompts.Params) error {
	path, err := requireParam(params, "path", "id")
	if err != nil {
		return err
	}
	if _, err := normalizeFormat(params.Get("format")); err != nil {
		return err
	}
	_, err = s.join(path)
	return err
}

// Resolve maps a path param and optional version to the file to read.
// The returned path may not exist.
func (s *LocalSource) Resolve(path, version string) (string, error) {
	full, err := s.join(path)
	if err != nil {
		return "", err
	}

	if version != "" {
		for _, candidate := range versionCandidates(full, version) {
			if found, ok := probe(candidate); ok {
				return found, nil
			}
		}
	}

	if found, ok := probe(full); ok {
		return found, nil
	}
	return full, nil
}

// join resolves path against the base directory, refusing to leave it.
func (s *LocalSource) join(path string) (string, error) {
	p := filepath.FromSlash(expandHome(path))
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	if s.baseDir == "" {
		return filepath.Abs(p)
	}

	full := filepath.Join(s.baseDir, p)
	rel, err := filepath.Rel(s.baseDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the prompts directory", path)
	}
	return full, nil
}

// versionCandidates lists "<stem>.<version><ext>" and "<version>/<file>".
func versionCandidates(full, version string) []string {
	dir, file := filepath.Split(full)
	ext := filepath.Ext(file)
	stem := file
	if knownExtensions[strings.ToLower(ext)] {
		stem = strings.TrimSuffix(file, ext)
	} else {
		ext = ""
	}
	return []string{
		filepath.Join(dir, stem+"."+version+ext),
		filepath.Join(dir, version, file),
	}
}

// probe returns path if it exists, or the first existing path with a known
// extension appended when path has none.
func probe(path string) (string, bool) {
	if fileExists(path) {
		return path, true
	}
	if knownExtensions[strings.ToLower(filepath.Ext(path))] {
		return "", false
	}
	for _, ext := range probeExtensions {
		for _, candidate := range []string{path + ext, path + ext + zstdExt} {
			if fileExists(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// display shortens path for logs and errors.
func (s *LocalSource) display(path string) string {
	if s.baseDir == "" {
		return path
	}
	if rel, err := filepath.Rel(s.baseDir, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}

// Watch reports file changes under the base directory using fsnotify.
func (s *LocalSource) Watch(ctx context.Context) (<-chan prompts.Change, error) {
	if s.baseDir == "" {
		return nil, notConfigured("local source needs base_dir to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watchDirectory(watcher, s.baseDir); err != nil {
		watcher.Close()
		return nil, err
	}

	ch := make(chan prompts.Change, 10)
	go func() {
		defer watcher.Close()
		defer close(ch)

		send := func(c prompts.Change) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if err := watchDirectory(watcher, event.Name); err != nil {
							s.logger.Warn("failed to watch new directory", zap.String("dir", event.Name), zap.Error(err))
						}
						continue
					}
				}
				if !isPromptFile(event.Name) {
					continue
				}

				var action string
				switch {
				case event.Has(fsnotify.Write):
					action = "modified"
				case event.Has(fsnotify.Create):
					action = "created"
				case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
					action = "deleted"
				default:
					continue
				}
				if !send(prompts.Change{Key: s.display(event.Name), Action: action, Timestamp: time.Now()}) {
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if !send(prompts.Change{Action: "error", Err: err, Timestamp: time.Now()}) {
					return
				}
			}
		}
	}()

	return ch, nil
}

func isPromptFile(name string) bool {
	return knownExtensions[strings.ToLower(filepath.Ext(name))]
}

// watchDirectory recursively adds directories to the watcher.
func watchDirectory(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("failed to watch directory %s: %w", path, err)
			}
		}
		return nil
	})
}
