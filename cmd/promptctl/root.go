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
package main

import (
	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptmgr/internal/log"
	"github.com/teradata-labs/promptmgr/internal/version"
	"github.com/teradata-labs/promptmgr/pkg/config"
	"github.com/teradata-labs/promptmgr/pkg/prompts"
	"github.com/teradata-labs/promptmgr/pkg/prompts/sources"
)

// app carries the state shared by all subcommands of one invocation.
type app struct {
	v         *viper.Viper
	cfgFile   string
	noKeyring bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "promptctl",
		Short: "Fetch, render and validate managed prompts",
		Long: heredoc.Doc(`
			promptctl resolves named prompts from the sources declared in a
			promptmgr configuration file (local files, OpenAI stored prompts,
			HTTP, SQL, S3) and renders them with {variable} substitution.

			Configuration is read from --config, $PROMPT_MANAGER_HOME/prompts.yaml,
			./prompts.yaml or /etc/promptmgr/prompts.yaml. Every key can be
			overridden with a PROMPT_MANAGER_ environment variable and prompts
			can be declared with PROMPT_{NAME}_SOURCE / PROMPT_{NAME}_ID.
		`),
		Version:       version.Get(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default: $PROMPT_MANAGER_HOME/prompts.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	pf.String("log-file", "", "write logs to this file instead of stderr")
	pf.String("cache-ttl", "", "default cache TTL in seconds or as a duration (e.g. 10m)")
	pf.Bool("no-cache", false, "bypass the prompt cache")
	pf.String("validation", "", "startup validation mode (none, config, load)")
	pf.String("prompts-dir", "", "base directory of the local source when the config sets none")
	pf.BoolVar(&a.noKeyring, "no-keyring", false, "do not read secrets from the system keyring")

	_ = a.v.BindPFlag("logging.level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("logging.format", pf.Lookup("log-format"))
	_ = a.v.BindPFlag("logging.file", pf.Lookup("log-file"))

	rootCmd.AddCommand(
		newGetCmd(a),
		newRenderCmd(),
		newListCmd(a),
		newValidateCmd(a),
		newDiffCmd(a),
		newWatchCmd(a),
		newSecretCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// load reads the configuration once per invocation and installs the logger.
// Flags that map onto config keys are applied only when given, so an empty
// flag never masks the file or the environment.
func (a *app) load(cmd *cobra.Command) (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	flags := cmd.Flags()
	if flags.Changed("cache-ttl") {
		ttl, _ := flags.GetString("cache-ttl")
		a.v.Set("cache_ttl", ttl)
	}
	if flags.Changed("no-cache") {
		noCache, _ := flags.GetBool("no-cache")
		a.v.Set("cache_enabled", !noCache)
	}
	if flags.Changed("validation") {
		mode, _ := flags.GetString("validation")
		a.v.Set("validation", mode)
	}
	if flags.Changed("prompts-dir") {
		dir, _ := flags.GetString("prompts-dir")
		a.v.Set("prompts_dir", dir)
	}

	opts := []config.Option{config.WithViper(a.v)}
	if a.noKeyring {
		opts = append(opts, config.WithoutKeyring())
	}
	cfg, err := config.Load(a.cfgFile, opts...)
	if err != nil {
		return nil, err
	}

	logger, err := log.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return nil, err
	}
	log.SetLogger(logger)
	if cfg.File != "" {
		log.Debug("config loaded", zap.String("file", cfg.File))
	}

	a.cfg, a.logger = cfg, log.With(zap.String("command", cmd.Name()))
	return cfg, nil
}

// newManager builds a Manager over the configured sources. The caller closes it.
func (a *app) newManager(cmd *cobra.Command) (*prompts.Manager, error) {
	cfg, err := a.load(cmd)
	if err != nil {
		return nil, err
	}

	registry, err := sources.NewRegistry(cfg.Manager.Sources, sources.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	mgr, err := prompts.NewManager(cmd.Context(), cfg.Manager, registry, prompts.WithLogger(a.logger))
	if err != nil {
		_ = registry.Close()
		return nil, err
	}
	return mgr, nil
}
