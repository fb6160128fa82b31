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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/promptmgr/pkg/prompts"
)

func newValidateCmd(a *app) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that every configured prompt can be served",
		Long: `Validate checks the configured prompts.

Mode "config" verifies that each prompt names a known source and passes the
parameters that source needs. Mode "load" also fetches every prompt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			validation, err := prompts.ParseValidationMode(mode)
			if err != nil {
				return err
			}

			cfg, err := a.load(cmd)
			if err != nil {
				return err
			}
			// Validation happens below, with its own report.
			cfg.Manager.Validation = prompts.ValidateNone

			mgr, err := a.newManager(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = mgr.Close() }()

			out := cmd.OutOrStdout()
			err = mgr.Validate(cmd.Context(), validation)
			var verr *prompts.StartupValidationError
			switch {
			case err == nil:
				fmt.Fprintf(out, "✓ %d prompt(s) valid (mode: %s)\n", len(mgr.List()), validation)
				return nil
			case errors.As(err, &verr):
				for _, f := range verr.Failures {
					fmt.Fprintf(out, "✗ %s: %v\n", f.Prompt, f.Err)
				}
				return fmt.Errorf("%d of %d prompt(s) failed validation", len(verr.Failures), len(mgr.List()))
			default:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(prompts.ValidateConfig), "validation mode (config, load)")
	return cmd
}
