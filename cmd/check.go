// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"os"
	"time"

	"sqltunnel/cli/internal/config"
	"sqltunnel/cli/internal/logging"
	"sqltunnel/cli/internal/session"

	"github.com/pterm/pterm"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var checkTimeout time.Duration

// checkCmd opens the tunnel and database session for a target and closes it
// again, without running any query files.
var checkCmd = &cobra.Command{
	Use:   "check <target> <config-file>",
	Short: "Verify that a target is reachable through its SSH host",
	Long: `The check command opens the SSH tunnel for <target>, logs in to its database
through the tunnel, reports the local port that was bound and closes everything
again. Use it to validate a config file before a long run.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.NewLogger(os.Stderr, verbose, jsonLogs)
		fs := afero.NewOsFs()

		cfg, err := config.Load(fs, args[1])
		if err != nil {
			return err
		}
		t, err := cfg.Target(args[0])
		if err != nil {
			return err
		}

		stopSpinner := startSpinner(fmt.Sprintf("Verifying %s via %s", t.Name, t.SSHAddress()))
		start := time.Now()
		sess, err := session.Open(cmd.Context(), cfg, t.Name,
			session.WithLogger(logger),
			session.WithFS(fs),
			session.WithConnectTimeout(checkTimeout),
		)
		stopSpinner()
		if err != nil {
			logging.PresentConnectionError(os.Stderr, t.Name, err)
			return reportedError{err}
		}
		port := sess.LocalPort()
		if err := sess.Close(); err != nil {
			return err
		}

		pterm.Success.Printfln("Target %s is reachable (%s)", t.Name, time.Since(start).Round(time.Millisecond))
		pterm.Printfln("  tunnel    127.0.0.1:%d -> %s via %s", port, t.DBAddress(), t.SSHAddress())
		pterm.Printfln("  database  %s as %s (%s)", t.DBName, t.DBUser, t.DBType())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().DurationVar(&checkTimeout, "connect-timeout", 30*time.Second, "Time limit for the SSH connection and handshake")
}
