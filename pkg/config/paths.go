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
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv overrides the data directory.
const HomeEnv = "PROMPT_MANAGER_HOME"

// DataDir returns the promptmgr data directory.
//
// Priority:
// 1. PROMPT_MANAGER_HOME environment variable (if set and non-empty)
// 2. ~/.promptmgr (default)
//
// The returned path is always absolute. Tilde (~) is expanded to the user's
// home directory and relative paths are resolved against the working directory.
//
// Examples:
//
//	PROMPT_MANAGER_HOME=/srv/prompts   -> /srv/prompts
//	PROMPT_MANAGER_HOME=~/my-prompts   -> /home/user/my-prompts
//	PROMPT_MANAGER_HOME not set        -> /home/user/.promptmgr
//
// DataDir reads os.Getenv directly because it is needed to locate the config
// file before viper is set up.
func DataDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return expandPath(dir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".promptmgr"
	}
	return filepath.Join(homeDir, ".promptmgr")
}

// SubDir returns a subdirectory within the data directory.
// Example: SubDir("prompts") returns ~/.promptmgr/prompts
func SubDir(subdir string) string {
	return filepath.Join(DataDir(), subdir)
}

// expandPath expands ~ and resolves to absolute path
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
