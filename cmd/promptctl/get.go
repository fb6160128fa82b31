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
	"fmt"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/pkoukk/tiktoken-go"
	"github.com/spf13/cobra"

	"github.com/teradata-labs/promptmgr/pkg/prompts"
)

func newGetCmd(a *app) *cobra.Command {
	var (
		vars          []string
		defaultText   string
		promptVersion string
		raw           bool
		tokens        bool
	)

	cmd := &cobra.Command{
		Use:   "get <prompt>",
		Short: "Fetch a prompt and substitute its variables",
		Example: heredoc.Doc(`
			promptctl get welcome --var name=Ada --var company=Acme
			promptctl get welcome --version 2 --raw
			promptctl get optional --default "Hello there!"
			promptctl get system --tokens`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseVars(vars)
			if err != nil {
				return err
			}

			mgr, err := a.newManager(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = mgr.Close() }()

			var opts []prompts.GetOption
			if cmd.Flags().Changed("default") {
				opts = append(opts, prompts.WithDefault(defaultText))
			}
			if promptVersion != "" {
				opts = append(opts, prompts.WithVersion(promptVersion))
			}

			var text string
			if raw {
				text, err = mgr.Raw(cmd.Context(), args[0], opts...)
			} else {
				text, err = mgr.Get(cmd.Context(), args[0], values, opts...)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), text)
			if tokens {
				fmt.Fprintf(cmd.ErrOrStderr(), "tokens: %d\n", countTokens(text))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&vars, "var", nil, "template variable as key=value (repeatable)")
	cmd.Flags().StringVar(&defaultText, "default", "", "text to use when the prompt cannot be fetched")
	cmd.Flags().StringVar(&promptVersion, "version", "", "fetch this prompt version instead of the configured one")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the template without substituting variables")
	cmd.Flags().BoolVar(&tokens, "tokens", false, "print the cl100k_base token count to stderr")
	return cmd
}

// parseVars turns key=value pairs into rendering variables. Values may be
// empty and may contain '='.
func parseVars(pairs []string) (prompts.Vars, error) {
	vars := make(prompts.Vars, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", pair)
		}
		vars[key] = value
	}
	return vars, nil
}

// countTokens counts cl100k_base tokens, falling back to ~4 characters per
// token when the encoding cannot be loaded.
func countTokens(text string) int {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
