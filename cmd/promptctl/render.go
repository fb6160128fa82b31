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
	"io"
	"os"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/teradata-labs/promptmgr/pkg/prompts"
)

func newRenderCmd() *cobra.Command {
	var (
		vars         []string
		sanitize     bool
		placeholders bool
	)

	cmd := &cobra.Command{
		Use:   "render [file|-]",
		Short: "Render a template file without any configured source",
		Long: heredoc.Doc(`
			Render substitutes {name} placeholders in a template read from a file
			or from stdin. Doubled braces ({{ and }}) are literal braces.
			No configuration is needed.
		`),
		Example: heredoc.Doc(`
			promptctl render greeting.txt --var name=Ada
			echo 'Hi {name}' | promptctl render --var name=Ada
			promptctl render system.txt --placeholders`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 0 || args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}
			template := string(data)

			if placeholders {
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(prompts.Placeholders(template), "\n"))
				return nil
			}

			values, err := parseVars(vars)
			if err != nil {
				return err
			}
			out, err := prompts.Renderer{Sanitize: sanitize}.Render(template, values)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&vars, "var", nil, "template variable as key=value (repeatable)")
	cmd.Flags().BoolVar(&sanitize, "sanitize", false, "neutralize prompt-injection markers in variable values")
	cmd.Flags().BoolVar(&placeholders, "placeholders", false, "list the template's placeholders instead of rendering")
	return cmd
}
