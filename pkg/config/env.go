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
	"sort"
	"strings"

	"github.com/teradata-labs/promptmgr/pkg/prompts"
)

const (
	promptEnvPrefix = "PROMPT_"
	sourceEnvSuffix = "_SOURCE"
)

// promptEnvParams maps PROMPT_{NAME}_{SUFFIX} variables to source params.
var promptEnvParams = map[string]string{
	"ID":      "id",
	"VERSION": "version",
	"PATH":    "path",
	"FORMAT":  "format",
	"FIELD":   "field",
	"KEY":     "key",
}

// DiscoverPrompts builds prompt specs from the environment. A prompt named
// "welcome" is declared by PROMPT_WELCOME_SOURCE (or only PROMPT_WELCOME_ID
// when defaultSource is set) and configured by:
//
//	PROMPT_WELCOME_ID, PROMPT_WELCOME_VERSION, PROMPT_WELCOME_PATH,
//	PROMPT_WELCOME_FORMAT, PROMPT_WELCOME_FIELD, PROMPT_WELCOME_KEY,
//	PROMPT_WELCOME_CACHE_TTL (seconds or a duration such as 5m)
//
// Names are lowercased. PROMPT_MANAGER_* variables are never prompts.
func DiscoverPrompts(defaultSource string) ([]prompts.PromptSpec, error) {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, promptEnvPrefix) || strings.HasPrefix(k, EnvPrefix+"_") {
			continue
		}
		env[k] = v
	}

	names := make(map[string]bool)
	for k := range env {
		if name, ok := strings.CutSuffix(strings.TrimPrefix(k, promptEnvPrefix), sourceEnvSuffix); ok && name != "" {
			names[name] = true
		}
	}
	if defaultSource != "" {
		for k := range env {
			if name, ok := strings.CutSuffix(strings.TrimPrefix(k, promptEnvPrefix), "_ID"); ok && name != "" {
				names[name] = true
			}
		}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	specs := make([]prompts.PromptSpec, 0, len(sorted))
	for _, name := range sorted {
		prefix := promptEnvPrefix + name + "_"
		spec := prompts.PromptSpec{
			Name:   strings.ToLower(name),
			Source: env[prefix+"SOURCE"],
			Params: prompts.Params{},
		}
		if spec.Source == "" {
			spec.Source = defaultSource
		}
		for suffix, param := range promptEnvParams {
			if v := env[prefix+suffix]; v != "" {
				spec.Params[param] = v
			}
		}
		if raw, ok := env[prefix+"CACHE_TTL"]; ok && raw != "" {
			ttl, err := parseDuration(raw)
			if err != nil {
				return nil, &prompts.ConfigError{Field: prefix + "CACHE_TTL", Reason: err.Error()}
			}
			spec.CacheTTL = prompts.TTL(ttl)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
