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
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptmgr/internal/log"
	"github.com/teradata-labs/promptmgr/pkg/prompts"
)

func newWatchCmd(a *app) *cobra.Command {
	var refetch bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow source changes until interrupted",
		Long: `Watch subscribes to every source that can report changes (local files,
HTTP event streams) and prints each change. Cached templates of the affected
prompts are invalidated as changes arrive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mgr, err := a.newManager(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = mgr.Close() }()

			changes, err := mgr.Watch(ctx)
			if errors.Is(err, prompts.ErrWatchUnsupported) {
				return fmt.Errorf("none of the configured prompts use a source that can be watched")
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Watching for prompt changes (Ctrl+C to stop)...")
			for change := range changes {
				fmt.Fprintln(out, formatChange(change))
				if refetch && change.Err == nil {
					reload(ctx, cmd, mgr, change.Prompts)
				}
			}
			log.Info("watch stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&refetch, "refetch", false, "fetch affected prompts again after each change")
	return cmd
}

func formatChange(c prompts.Change) string {
	ts := c.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("%s  %-8s  %s", ts.Format(time.TimeOnly), c.Action, c.Source)
	if c.Key != "" {
		line += "  " + c.Key
	}
	if len(c.Prompts) > 0 {
		line += "  [" + strings.Join(c.Prompts, ", ") + "]"
	}
	if c.Err != nil {
		line += "  error: " + c.Err.Error()
	}
	return line
}

func reload(ctx context.Context, cmd *cobra.Command, mgr *prompts.Manager, names []string) {
	for _, name := range names {
		if _, err := mgr.Raw(ctx, name); err != nil {
			log.Warn("prompt reload failed", zap.String("prompt", name), zap.Error(err))
			fmt.Fprintf(cmd.ErrOrStderr(), "  ✗ %s: %v\n", name, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  ✓ %s reloaded\n", name)
	}
}
