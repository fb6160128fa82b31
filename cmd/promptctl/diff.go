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
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/teradata-labs/promptmgr/pkg/prompts"
)

func newDiffCmd(a *app) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "diff <prompt> [other-prompt]",
		Short: "Compare two prompt versions or two prompts",
		Example: heredoc.Doc(`
			promptctl diff welcome --from 1 --to 2
			promptctl diff welcome --to 3
			promptctl diff welcome welcome_v2`),
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			left, right := args[0], args[0]
			if len(args) == 2 {
				right = args[1]
			} else if from == "" && to == "" {
				return fmt.Errorf("nothing to compare: pass a second prompt or --from/--to")
			}

			mgr, err := a.newManager(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = mgr.Close() }()

			before, err := fetchRaw(cmd, mgr, left, from)
			if err != nil {
				return err
			}
			after, err := fetchRaw(cmd, mgr, right, to)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if before == after {
				fmt.Fprintln(out, "No differences.")
				return nil
			}
			if isTerminal(out) {
				fmt.Fprintln(out, prettyDiff(before, after))
				return nil
			}
			fmt.Fprint(out, formatDiff(label(left, from), label(right, to), before, after))
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "version of the first prompt (default: configured version)")
	cmd.Flags().StringVar(&to, "to", "", "version of the second prompt (default: configured version)")
	return cmd
}

func fetchRaw(cmd *cobra.Command, mgr *prompts.Manager, name, version string) (string, error) {
	var opts []prompts.GetOption
	if version != "" {
		opts = append(opts, prompts.WithVersion(version))
	}
	return mgr.Raw(cmd.Context(), name, opts...)
}

func label(name, version string) string {
	if version == "" {
		return name
	}
	return name + "@" + version
}

func lineDiffs(before, after string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	return dmp.DiffCharsToLines(diffs, lines)
}

// formatDiff renders a line diff with +/- markers. Unchanged runs longer than
// four lines are collapsed to their first and last line.
func formatDiff(fromLabel, toLabel, before, after string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", fromLabel, toLabel)

	for _, d := range lineDiffs(before, after) {
		lines := strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n")
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			writeLines(&b, "+ ", lines)
		case diffmatchpatch.DiffDelete:
			writeLines(&b, "- ", lines)
		case diffmatchpatch.DiffEqual:
			if len(lines) > 4 {
				writeLines(&b, "  ", []string{lines[0], "...", lines[len(lines)-1]})
			} else {
				writeLines(&b, "  ", lines)
			}
		}
	}
	return b.String()
}

func writeLines(b *strings.Builder, prefix string, lines []string) {
	for _, line := range lines {
		b.WriteString(prefix)
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

// prettyDiff renders an ANSI-colored diff for terminals.
func prettyDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))
	return dmp.DiffPrettyText(diffs)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
