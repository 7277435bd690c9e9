// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sqltunnel/cli/internal/batch"
	"sqltunnel/cli/internal/config"
	apperrors "sqltunnel/cli/internal/errors"
	"sqltunnel/cli/internal/logging"
	"sqltunnel/cli/internal/progress"
	"sqltunnel/cli/internal/runner"
	"sqltunnel/cli/internal/session"

	"github.com/pterm/pterm"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

type runFlags struct {
	strictNames    bool
	keepGoing      bool
	queryTimeout   time.Duration
	connectTimeout time.Duration
}

var runRun runFlags

var runCmd = &cobra.Command{
	Use:   "run <query-dir> <target> <config-file>",
	Short: "Execute every query file and write one CSV per query",
	Long: `The run command resolves every *.sql file under <query-dir>, opens one SSH
tunnel to <target> as described in <config-file>, and executes the files one
after another over a single database connection.

A query file at <query-dir>/sub/report.sql produces
<parent of query-dir>/sub/<YYMMDDHHmm>_report.csv. The tunnel is always
closed before the command exits.`,
	Example: `  sqltunnel run ./queries mydb ./dbconf.json
  sqltunnel run ./queries warehouse ./dbconf.json --keep-going --timeout 10m`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeRun(cmd.Context(), args[0], args[1], args[2], runRun)
	},
}

func addRunFlags(c *cobra.Command, f *runFlags) {
	c.Flags().BoolVar(&f.strictNames, "strict-names", false, "Fail when two query files would write the same CSV")
	c.Flags().BoolVar(&f.keepGoing, "keep-going", false, "Continue with the next query file after a query fails")
	c.Flags().DurationVar(&f.queryTimeout, "timeout", 0, "Per-query time limit, including reading all rows (0 = none)")
	c.Flags().DurationVar(&f.connectTimeout, "connect-timeout", 30*time.Second, "Time limit for the SSH connection and handshake")
}

func executeRun(ctx context.Context, queryDir, target, configPath string, f runFlags) error {
	logger := logging.NewLogger(os.Stderr, verbose, jsonLogs)
	fs := afero.NewOsFs()

	cfg, err := config.Load(fs, configPath)
	if err != nil {
		return err
	}

	renderer := progress.NewRenderer(os.Stdout, verbose)
	stopSpinner := func() {}
	if !jsonLogs {
		if t, err := cfg.Target(target); err == nil {
			stopSpinner = startSpinner(fmt.Sprintf("Connecting to %s via %s", t.Name, t.SSHAddress()))
		}
	}
	defer stopSpinner()

	report, err := batch.Run(ctx, batch.Options{
		QueryDir:     queryDir,
		Target:       target,
		Config:       cfg,
		FS:           fs,
		Logger:       logger,
		StrictNames:  f.strictNames,
		KeepGoing:    f.keepGoing,
		QueryTimeout: f.queryTimeout,
		Events: func(ev progress.Event) {
			stopSpinner()
			renderer.Render(ev)
		},
		SessionOptions: []session.Option{session.WithConnectTimeout(f.connectTimeout)},
	})
	stopSpinner()

	if len(report.Results) > 0 {
		printSummary(report)
	} else if err == nil {
		pterm.Warning.Printfln("No query files found under %s", queryDir)
	}

	if err != nil {
		if apperrors.KindOf(err) == apperrors.ConnectionError {
			logging.PresentConnectionError(os.Stderr, target, err)
			return reportedError{err}
		}
		return err
	}
	return nil
}

func printSummary(report runner.Report) {
	data := pterm.TableData{{"Query", "Output", "Rows", "Time", "Status"}}
	for _, res := range report.Results {
		status := pterm.Green("ok")
		rows := fmt.Sprint(res.Rows)
		if res.Err != nil {
			status = pterm.Red(apperrors.KindOf(res.Err))
			rows = "-"
		}
		data = append(data, []string{
			filepath.Base(res.Source),
			res.Output,
			rows,
			res.Duration.Round(time.Millisecond).String(),
			status,
		})
	}

	pterm.Println()
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	pterm.Println()
	pterm.Printfln("%d succeeded, %d failed, %d rows written", report.Succeeded(), report.Failed(), report.Rows())
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd, &runRun)
}
