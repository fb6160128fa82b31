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

// Package config loads prompt manager configuration from a YAML or JSON
// file, an in-memory document, PROMPT_MANAGER_* environment variables and the
// OS keyring.
//
// A configuration document looks like:
//
//	cache_ttl: 1h
//	validation: config
//	logging:
//	  level: info
//	sources:
//	  local:
//	    base_dir: ./prompts
//	  catalog:
//	    type: sql
//	    options:
//	      driver: sqlite
//	      dsn: file:prompts.db
//	prompts:
//	  welcome:
//	    source: openai
//	    id: pmpt_welcome
//	    version: "2"
//	  email:
//	    source: local
//	    path: templates/email.txt
//	    cache_ttl: 0
//
// Keys other than source, cache_ttl and params inside a prompt entry become
// source params. Prompt names keep their case and may contain dots; source
// names are case-insensitive.
//
// Priority: flags bound to the viper instance > environment > file > defaults.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/promptmgr/pkg/prompts"
)

const (
	// EnvPrefix prefixes every manager-level environment variable.
	EnvPrefix = "PROMPT_MANAGER"
	// DefaultConfigFileName is searched for (prompts.yaml, prompts.json) when
	// no file is given.
	DefaultConfigFileName = "prompts"
)

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// Config is the loaded configuration.
type Config struct {
	// Manager is passed to prompts.NewManager; Manager.Sources to sources.NewRegistry.
	Manager prompts.Config `mapstructure:"-"`

	Logging LoggingConfig `mapstructure:"logging"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
	File   string `mapstructure:"file"`   // optional log file, default stderr
}

type loadOptions struct {
	v       *viper.Viper
	keyring bool
}

// Option configures Load and FromMap.
type Option func(*loadOptions)

// WithViper loads through v, typically one with cobra flags already bound.
func WithViper(v *viper.Viper) Option {
	return func(o *loadOptions) {
		if v != nil {
			o.v = v
		}
	}
}

// WithoutKeyring disables the OS keyring fallback for secrets.
func WithoutKeyring() Option {
	return func(o *loadOptions) {
		o.keyring = false
	}
}

func newLoadOptions(opts []Option) loadOptions {
	o := loadOptions{keyring: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.v == nil {
		o.v = viper.New()
	}
	return o
}

// Load reads cfgFile, or searches the data directory, the working directory
// and /etc/promptmgr for prompts.{yaml,json} when cfgFile is empty. A missing
// file is not an error; environment variables alone can configure prompts.
func Load(cfgFile string, opts ...Option) (*Config, error) {
	o := newLoadOptions(opts)
	v := o.v
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(DataDir())
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/promptmgr/")
		v.SetConfigName(DefaultConfigFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	rawPrompts, err := readRawPrompts(v.ConfigFileUsed())
	if err != nil {
		return nil, err
	}

	cfg, err := build(v, o, rawPrompts)
	if err != nil {
		return nil, err
	}
	cfg.File = v.ConfigFileUsed()
	return cfg, nil
}

// FromMap builds a configuration from an in-memory document with the same
// layout as the config file.
func FromMap(doc map[string]any, opts ...Option) (*Config, error) {
	o := newLoadOptions(opts)
	v := o.v
	setDefaults(v)
	if err := v.MergeConfigMap(doc); err != nil {
		return nil, fmt.Errorf("failed to merge config document: %w", err)
	}
	return build(v, o, doc["prompts"])
}

// readRawPrompts returns the prompts section of a YAML or JSON config file
// with its keys as written. viper lowercases keys and splits them on dots,
// which would change prompt names.
func readRawPrompts(file string) (any, error) {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml", ".json":
	default:
		return nil, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", file, err)
	}
	var doc map[string]any
	unmarshal := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(file), ".json") {
		unmarshal = json.Unmarshal
	}
	if err := unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", file, err)
	}
	return doc["prompts"], nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache_enabled", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
}

// build validates the document, then applies the environment. rawPrompts,
// when non-nil, replaces viper's view of the prompts section.
func build(v *viper.Viper, o loadOptions, rawPrompts any) (*Config, error) {
	settings := v.AllSettings()
	if rawPrompts != nil {
		settings["prompts"] = rawPrompts
	} else {
		rawPrompts = v.Get("prompts")
	}
	if err := validateDocument(settings); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	m := &cfg.Manager
	var err error

	if raw := v.Get("cache_ttl"); raw != nil {
		ttl, err := parseDuration(raw)
		if err != nil {
			return nil, &prompts.ConfigError{Field: "cache_ttl", Reason: err.Error()}
		}
		m.CacheTTL = prompts.TTL(ttl)
	}

	enabled, err := parseBool(v.Get("cache_enabled"))
	if err != nil {
		return nil, &prompts.ConfigError{Field: "cache_enabled", Reason: err.Error()}
	}
	m.DisableCache = !enabled

	mode := v.GetString("validation")
	if mode == "" {
		mode = v.GetString("validate_on_startup")
	}
	if m.Validation, err = prompts.ParseValidationMode(mode); err != nil {
		return nil, err
	}

	if m.Sources, err = decodeSources(v.Get("sources")); err != nil {
		return nil, err
	}
	applyLegacySources(v, m.Sources)

	defaultSource := v.GetString("default_source")
	if m.Prompts, err = decodePrompts(rawPrompts, defaultSource); err != nil {
		return nil, err
	}

	discovered, err := DiscoverPrompts(defaultSource)
	if err != nil {
		return nil, err
	}
	m.Prompts = mergePrompts(m.Prompts, discovered)

	if o.keyring {
		loadSecretsFromKeyring(m)
	}
	return cfg, nil
}

func validateDocument(doc map[string]any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var errs []error
	for _, e := range result.Errors() {
		errs = append(errs, &prompts.ConfigError{Field: e.Field(), Reason: e.Description()})
	}
	return errors.Join(errs...)
}

// applyLegacySources maps the flat openai_* and prompts_dir keys onto the
// openai and local sources without overriding explicit source settings.
func applyLegacySources(v *viper.Viper, srcs map[string]prompts.SourceConfig) {
	if key := v.GetString("openai_api_key"); key != "" {
		c := srcs["openai"]
		if c.APIKey == "" {
			c.APIKey = key
		}
		srcs["openai"] = c
	}
	if raw := v.Get("openai_timeout"); raw != nil {
		if d, err := parseDuration(raw); err == nil {
			c := srcs["openai"]
			if c.Timeout == 0 {
				c.Timeout = d
			}
			srcs["openai"] = c
		}
	}
	if n := v.GetInt("openai_max_retries"); n > 0 {
		c := srcs["openai"]
		if c.MaxRetries == 0 {
			c.MaxRetries = n
		}
		srcs["openai"] = c
	}
	if dir := v.GetString("prompts_dir"); dir != "" {
		c := srcs["local"]
		if c.BaseDir == "" {
			c.BaseDir = dir
		}
		srcs["local"] = c
	}
}

func decodeSources(raw any) (map[string]prompts.SourceConfig, error) {
	out := make(map[string]prompts.SourceConfig)
	entries, err := asMap(raw, "sources")
	if err != nil {
		return nil, err
	}

	for name, entry := range entries {
		fields, err := asMap(entry, "sources."+name)
		if err != nil {
			return nil, err
		}
		sc := prompts.SourceConfig{Options: map[string]string{}}
		for key, val := range fields {
			field := "sources." + name + "." + key
			switch key {
			case "type":
				sc.Type = stringify(val)
			case "api_key":
				sc.APIKey = stringify(val)
			case "base_url":
				sc.BaseURL = stringify(val)
			case "base_dir":
				sc.BaseDir = stringify(val)
			case "timeout":
				if sc.Timeout, err = parseDuration(val); err != nil {
					return nil, &prompts.ConfigError{Field: field, Reason: err.Error()}
				}
			case "max_retries":
				n, err := strconv.Atoi(stringify(val))
				if err != nil || n < 0 {
					return nil, &prompts.ConfigError{Field: field, Reason: "must be a non-negative integer"}
				}
				sc.MaxRetries = n
			case "options":
				opts, err := asMap(val, field)
				if err != nil {
					return nil, err
				}
				for k, ov := range opts {
					sc.Options[k] = stringify(ov)
				}
			default:
				sc.Options[key] = stringify(val)
			}
		}
		out[name] = sc
	}
	return out, nil
}

func decodePrompts(raw any, defaultSource string) ([]prompts.PromptSpec, error) {
	entries, err := asMap(raw, "prompts")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]prompts.PromptSpec, 0, len(names))
	for _, name := range names {
		fields, err := asMap(entries[name], "prompts."+name)
		if err != nil {
			return nil, err
		}
		spec := prompts.PromptSpec{Name: name, Source: defaultSource, Params: prompts.Params{}}
		for key, val := range fields {
			field := "prompts." + name + "." + key
			switch key {
			case "source":
				spec.Source = stringify(val)
			case "cache_ttl":
				if val == nil {
					continue
				}
				ttl, err := parseDuration(val)
				if err != nil {
					return nil, &prompts.ConfigError{Field: field, Reason: err.Error()}
				}
				spec.CacheTTL = prompts.TTL(ttl)
			case "params":
				params, err := asMap(val, field)
				if err != nil {
					return nil, err
				}
				for k, pv := range params {
					spec.Params[k] = stringify(pv)
				}
			default:
				spec.Params[key] = stringify(val)
			}
		}
		if spec.Source == "" {
			return nil, &prompts.ConfigError{Field: "prompts." + name + ".source", Reason: "no source and no default_source"}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// mergePrompts appends discovered prompts whose names are not already
// declared, ignoring case.
func mergePrompts(declared, discovered []prompts.PromptSpec) []prompts.PromptSpec {
	seen := make(map[string]bool, len(declared))
	for _, p := range declared {
		seen[strings.ToLower(p.Name)] = true
	}
	for _, p := range discovered {
		if !seen[p.Name] {
			declared = append(declared, p)
		}
	}
	return declared
}

func asMap(raw any, field string) (map[string]any, error) {
	switch m := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = v
		}
		return out, nil
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	default:
		return nil, &prompts.ConfigError{Field: field, Reason: fmt.Sprintf("expected a mapping, got %T", raw)}
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// parseDuration accepts whole seconds (number or numeric string) or a Go
// duration string. Negative values are rejected.
func parseDuration(v any) (time.Duration, error) {
	var d time.Duration
	switch t := v.(type) {
	case int:
		d = time.Duration(t) * time.Second
	case int64:
		d = time.Duration(t) * time.Second
	case float64:
		d = time.Duration(t * float64(time.Second))
	case time.Duration:
		d = t
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			d = time.Duration(n * float64(time.Second))
			break
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", t)
		}
		d = parsed
	default:
		return 0, fmt.Errorf("invalid duration of type %T", v)
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}

func parseBool(v any) (bool, error) {
	switch t := v.(type) {
	case nil:
		return true, nil
	case bool:
		return t, nil
	default:
		b, err := strconv.ParseBool(strings.TrimSpace(stringify(v)))
		if err != nil {
			return false, fmt.Errorf("not a boolean: %q", stringify(v))
		}
		return b, nil
	}
}
