// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for sqltunnel. It runs a
// directory of SQL query files against a database reached through an SSH
// tunnel and writes one CSV per query, using the Cobra CLI framework with
// pterm for terminal output.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sqltunnel/cli/internal/logging"

	"github.com/spf13/cobra"
)

var (
	showVersion bool
	verbose     bool
	jsonLogs    bool

	rootRun runFlags
)

// rootCmd accepts the query directory, target and config file directly, so
// `sqltunnel <query-dir> <target> <config-file>` behaves like `sqltunnel run`.
var rootCmd = &cobra.Command{
	Use:   "sqltunnel <query-dir> <target> <config-file>",
	Short: "Run SQL query files through an SSH tunnel and save the results as CSV",
	Long: `sqltunnel opens an SSH tunnel to the named target from the config file,
connects to its database through the tunnel and executes every *.sql file under
the query directory. The first two lines of each file are a header and are
skipped. Results are written next to the query directory as
<YYMMDDHHmm>_<name>.csv, mirroring its subdirectories.`,
	Args:          cobra.MaximumNArgs(3),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("sqltunnel %s\n", Version)
			return nil
		}
		switch len(args) {
		case 0:
			return cmd.Help()
		case 3:
			return executeRun(cmd.Context(), args[0], args[1], args[2], rootRun)
		default:
			return fmt.Errorf("expected <query-dir> <target> <config-file>, got %d argument(s)", len(args))
		}
	},
}

// reportedError marks an error whose details were already shown to the user.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

// Execute runs the CLI application. Interrupts cancel the run; open
// tunnels are still closed before exit.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, logging.PresentError("error", err))
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging and per-query start lines")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Write logs to stderr as JSON")
	addRunFlags(rootCmd, &rootRun)
}
