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
	"sort"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/teradata-labs/promptmgr/pkg/prompts"
)

// ServiceName for keyring storage
const ServiceName = "promptmgr"

// SecretMapping defines how to load a secret from keyring into a source.
type SecretMapping struct {
	Source     string
	KeyringKey string
	Setter     func(*prompts.SourceConfig, string)
	IsSet      func(prompts.SourceConfig) bool // skip the keyring lookup when true
}

// GetSecretMappings returns the keyring mappings for the given sources.
// openai and http sources read {name}_api_key, s3 sources {name}_secret_key
// and sql sources {name}_dsn. The openai source is always included.
func GetSecretMappings(srcs map[string]prompts.SourceConfig) []SecretMapping {
	names := make([]string, 0, len(srcs)+1)
	for name := range srcs {
		names = append(names, name)
	}
	if _, ok := srcs["openai"]; !ok {
		names = append(names, "openai")
	}
	sort.Strings(names)

	var mappings []SecretMapping
	for _, name := range names {
		typ := strings.ToLower(srcs[name].Type)
		if typ == "" {
			typ = name
		}
		switch typ {
		case "openai", "http":
			mappings = append(mappings, SecretMapping{
				Source:     name,
				KeyringKey: name + "_api_key",
				Setter:     func(c *prompts.SourceConfig, val string) { c.APIKey = val },
				IsSet:      func(c prompts.SourceConfig) bool { return c.APIKey != "" },
			})
		case "s3":
			mappings = append(mappings, optionMapping(name, "secret_key"))
		case "sql":
			mappings = append(mappings, optionMapping(name, "dsn"))
		}
	}
	return mappings
}

func optionMapping(source, option string) SecretMapping {
	return SecretMapping{
		Source:     source,
		KeyringKey: source + "_" + option,
		Setter: func(c *prompts.SourceConfig, val string) {
			if c.Options == nil {
				c.Options = map[string]string{}
			}
			c.Options[option] = val
		},
		IsSet: func(c prompts.SourceConfig) bool { return c.Options[option] != "" },
	}
}

// loadSecretsFromKeyring fills unset secrets from the system keyring.
// Keyring errors are ignored: the keyring may be unavailable and secrets can
// come from the file or the environment instead.
func loadSecretsFromKeyring(cfg *prompts.Config) {
	if cfg.Sources == nil {
		cfg.Sources = map[string]prompts.SourceConfig{}
	}
	for _, mapping := range GetSecretMappings(cfg.Sources) {
		src, declared := cfg.Sources[mapping.Source]
		if mapping.IsSet(src) {
			continue
		}
		value, err := GetSecretFromKeyring(mapping.KeyringKey)
		if err != nil || value == "" {
			continue
		}
		if !declared {
			src = prompts.SourceConfig{Type: mapping.Source}
		}
		mapping.Setter(&src, value)
		cfg.Sources[mapping.Source] = src
	}
}

// GetSecretFromKeyring retrieves a secret from the system keyring.
func GetSecretFromKeyring(key string) (string, error) {
	return keyring.Get(ServiceName, key)
}

// SaveSecretToKeyring saves a secret to the system keyring.
func SaveSecretToKeyring(key, value string) error {
	return keyring.Set(ServiceName, key, value)
}

// DeleteSecretFromKeyring removes a secret from the system keyring.
func DeleteSecretFromKeyring(key string) error {
	return keyring.Delete(ServiceName, key)
}

// ListAvailableSecretKeys returns the keyring keys that the given sources read.
func ListAvailableSecretKeys(srcs map[string]prompts.SourceConfig) []string {
	mappings := GetSecretMappings(srcs)
	keys := make([]string, 0, len(mappings))
	for _, m := range mappings {
		keys = append(keys, m.KeyringKey)
	}
	return keys
}
