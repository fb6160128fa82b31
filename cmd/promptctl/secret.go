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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"

	"github.com/teradata-labs/promptmgr/pkg/config"
)

func newSecretCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage source credentials in the system keyring",
		Long: `Store source credentials in the system keyring (Keychain on macOS,
Credential Manager on Windows, Secret Service on Linux).

Keys are named after the source: {source}_api_key for openai and http
sources, {source}_secret_key for s3 and {source}_dsn for sql. Values in the
config file or environment take precedence over the keyring.`,
	}
	cmd.AddCommand(newSecretSetCmd(a), newSecretDeleteCmd(a), newSecretListCmd(a))
	return cmd
}

func newSecretSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key-name>",
		Short: "Save a secret to the system keyring",
		Long:  `Save a secret read from stdin. Run 'promptctl secret list' to see available key names.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyName := args[0]
			if err := a.checkKeyName(cmd, keyName); err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Enter %s (input hidden): ", keyName)
			secret, err := readSecret(cmd.InOrStdin())
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			if secret == "" {
				return errors.New("secret cannot be empty")
			}

			if err := config.SaveSecretToKeyring(keyName, secret); err != nil {
				return fmt.Errorf("save to keyring: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %s to system keyring\n", keyName)
			return nil
		},
	}
}

func newSecretDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key-name>",
		Short: "Remove a secret from the system keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyName := args[0]
			if err := a.checkKeyName(cmd, keyName); err != nil {
				return err
			}
			err := config.DeleteSecretFromKeyring(keyName)
			if errors.Is(err, keyring.ErrNotFound) {
				return fmt.Errorf("%s is not stored in the keyring", keyName)
			}
			if err != nil {
				return fmt.Errorf("delete from keyring: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s from system keyring\n", keyName)
			return nil
		},
	}
}

func newSecretListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the secret keys the configured sources read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := a.secretKeys(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, k := range keys {
				status := "not set"
				if _, err := config.GetSecretFromKeyring(k); err == nil {
					status = "set"
				}
				fmt.Fprintf(out, "  %-28s %s\n", k, status)
			}
			return nil
		},
	}
}

func (a *app) secretKeys(cmd *cobra.Command) ([]string, error) {
	cfg, err := a.load(cmd)
	if err != nil {
		return nil, err
	}
	return config.ListAvailableSecretKeys(cfg.Manager.Sources), nil
}

func (a *app) checkKeyName(cmd *cobra.Command, keyName string) error {
	keys, err := a.secretKeys(cmd)
	if err != nil {
		return err
	}
	if !slices.Contains(keys, keyName) {
		return fmt.Errorf("invalid key name %q, available keys: %s", keyName, strings.Join(keys, ", "))
	}
	return nil
}

// readSecret reads without echo from a terminal, otherwise the first line of r.
func readSecret(r io.Reader) (string, error) {
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		return strings.TrimSpace(string(b)), err
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
