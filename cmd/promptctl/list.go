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
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/promptmgr/pkg/config"
	"github.com/teradata-labs/promptmgr/pkg/prompts"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load(cmd)
			if err != nil {
				return err
			}
			if len(cfg.Manager.Prompts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No prompts configured.")
				return nil
			}

			specs := append([]prompts.PromptSpec(nil), cfg.Manager.Prompts...)
			sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSOURCE\tTTL\tPARAMS")
			for _, spec := range specs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", spec.Name, spec.Source, describeTTL(cfg, spec), formatParams(spec.Params))
			}
			return w.Flush()
		},
	}
}

func describeTTL(cfg *config.Config, spec prompts.PromptSpec) string {
	ttl := prompts.DefaultCacheTTL
	switch {
	case cfg.Manager.DisableCache:
		return "disabled"
	case spec.CacheTTL != nil:
		ttl = *spec.CacheTTL
	case cfg.Manager.CacheTTL != nil:
		ttl = *cfg.Manager.CacheTTL
	}
	if ttl == 0 {
		return "never"
	}
	return ttl.Round(time.Second).String()
}

func formatParams(params prompts.Params) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + params[k]
	}
	return strings.Join(parts, ",")
}
