// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"sqltunnel/cli/internal/config"
	"sqltunnel/cli/internal/logging"

	"github.com/pterm/pterm"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// targetsCmd lists the targets of a config file with secrets masked.
var targetsCmd = &cobra.Command{
	Use:   "targets <config-file>",
	Short: "List the targets defined in a config file",
	Long: `The targets command loads and validates <config-file> and shows every target
it defines. Passwords are never printed; the listing only shows whether one
is set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(afero.NewOsFs(), args[0])
		if err != nil {
			return err
		}

		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Targets")).
			WithTopPadding(1).WithBottomPadding(1).WithLeftPadding(1).WithRightPadding(1).
			Println(cfg.Path)
		pterm.Println()

		data := pterm.TableData{{"Name", "SSH", "Auth", "Database", "DB password"}}
		for _, name := range cfg.Names() {
			t, err := cfg.Target(name)
			if err != nil {
				return err
			}
			data = append(data, targetRow(t))
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func targetRow(t config.Target) []string {
	auth := "password " + logging.Secret(t.Password)
	if t.KeyFile != "" {
		auth = "key " + t.KeyFile
	}
	if t.KnownHosts == "" {
		auth += pterm.Yellow(" (host key not verified)")
	}
	return []string{
		t.Name,
		fmt.Sprintf("%s@%s", t.User, t.SSHAddress()),
		auth,
		fmt.Sprintf("%s %s@%s/%s", t.DBType(), t.DBUser, t.DBAddress(), t.DBName),
		logging.Secret(t.DBPassword),
	}
}

func init() {
	rootCmd.AddCommand(targetsCmd)
}
