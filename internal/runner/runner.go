// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package runner executes every query file of a resolved map over one open
// session and streams each result set into its CSV output.
//
// Outputs appear atomically: rows are written to a temporary file in the
// destination directory, which is renamed into place only once the result set
// has been read to the end. A failed query never leaves a partial CSV behind.
package runner

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	apperrors "sqltunnel/cli/internal/errors"
	"sqltunnel/cli/internal/logging"
	"sqltunnel/cli/internal/progress"
	"sqltunnel/cli/internal/querypath"
	"sqltunnel/cli/internal/sqlexec"

	"github.com/spf13/afero"
)

// Executor runs the statement contained in a query file's text.
// *session.Session satisfies it.
type Executor interface {
	Execute(ctx context.Context, queryText string) (*sqlexec.ResultSet, error)
}

// Result is the outcome of one query file.
type Result struct {
	Source   string
	Output   string
	Rows     int64
	Duration time.Duration
	Err      error
}

// Report lists results in execution order.
type Report struct {
	Results []Result
}

// Succeeded returns the number of files whose CSV was written.
func (r Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the number of files that produced no CSV.
func (r Report) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// Rows returns the total row count across written files.
func (r Report) Rows() int64 {
	var n int64
	for _, res := range r.Results {
		if res.Err == nil {
			n += res.Rows
		}
	}
	return n
}

// Option configures a Runner.
type Option func(*Runner)

// WithContinueOnError keeps going after a failed query file instead of
// stopping. A lost connection still stops the run.
func WithContinueOnError(v bool) Option {
	return func(r *Runner) { r.keepGoing = v }
}

// WithEvents sets the progress sink.
func WithEvents(sink progress.Sink) Option {
	return func(r *Runner) { r.events = sink }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithQueryTimeout bounds each query, including reading all of its rows.
// Zero means no limit.
func WithQueryTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// Runner executes query files one after another.
type Runner struct {
	fs        afero.Fs
	exec      Executor
	keepGoing bool
	timeout   time.Duration
	events    progress.Sink
	logger    *slog.Logger
}

// New creates a Runner reading and writing through fs.
func New(fs afero.Fs, exec Executor, opts ...Option) *Runner {
	r := &Runner{fs: fs, exec: exec, logger: logging.Discard()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every entry of m in source-path order. By default it stops at
// the first failure and returns that error; with WithContinueOnError it
// returns all failures joined. The report covers every file attempted.
func (r *Runner) Run(ctx context.Context, m querypath.Map) (Report, error) {
	files := m.Files()
	report := Report{Results: make([]Result, 0, len(files))}
	var errs []error

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, apperrors.Wrap(apperrors.ConnectionError, "run cancelled", err))
			break
		}

		ev := progress.Event{Type: progress.EventQueryStarted, Source: f.Source, Output: f.Output, Index: i + 1, Total: len(files)}
		r.events.Emit(ev)

		start := time.Now()
		rows, err := r.runOne(ctx, f)
		if err != nil {
			err = fmt.Errorf("%s: %w", f.Source, err)
		}
		res := Result{Source: f.Source, Output: f.Output, Rows: rows, Duration: time.Since(start), Err: err}
		report.Results = append(report.Results, res)

		if err != nil {
			ev.Type, ev.Err = progress.EventQueryFailed, err
			r.events.Emit(ev)
			r.logger.Error("query failed", "source", f.Source, "error", err)
			errs = append(errs, err)
			if !r.keepGoing || apperrors.IsKind(err, apperrors.ConnectionError) {
				break
			}
			continue
		}

		ev.Type, ev.Rows, ev.Duration = progress.EventQueryDone, rows, res.Duration
		r.events.Emit(ev)
		r.logger.Info("query written", "source", f.Source, "output", f.Output, "rows", rows)
	}
	return report, errors.Join(errs...)
}

func (r *Runner) runOne(ctx context.Context, f querypath.QueryFile) (int64, error) {
	text, err := afero.ReadFile(r.fs, f.Source)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.InvalidInput, "read query file", err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	rs, err := r.exec.Execute(ctx, string(text))
	if err != nil {
		return 0, err
	}
	defer rs.Close()

	return r.writeCSV(rs, f.Output)
}

// writeCSV streams rs into path via a temporary sibling file.
func (r *Runner) writeCSV(rs *sqlexec.ResultSet, path string) (n int64, err error) {
	dir := filepath.Dir(path)
	if err := r.fs.MkdirAll(dir, 0o755); err != nil {
		return 0, apperrors.Wrapf(apperrors.InvalidInput, err, "create output directory %s", dir)
	}
	tmp, err := afero.TempFile(r.fs, dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, apperrors.Wrapf(apperrors.InvalidInput, err, "create output in %s", dir)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = r.fs.Remove(tmp.Name())
		}
	}()

	w := csv.NewWriter(tmp)
	w.UseCRLF = true
	if err := w.Write(rs.Columns); err != nil {
		return 0, apperrors.Wrap(apperrors.InvalidInput, "write csv header", err)
	}
	for rs.Next() {
		record, err := rs.Record()
		if err != nil {
			return rs.Count(), apperrors.Wrap(apperrors.QueryError, "read row", err)
		}
		if err := w.Write(record); err != nil {
			return rs.Count(), apperrors.Wrap(apperrors.InvalidInput, "write csv row", err)
		}
	}
	if err := rs.Err(); err != nil {
		kind := apperrors.QueryError
		if sqlexec.IsConnectionError(err) {
			kind = apperrors.ConnectionError
		}
		return rs.Count(), apperrors.Wrap(kind, "read rows", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return rs.Count(), apperrors.Wrap(apperrors.InvalidInput, "flush csv", err)
	}
	if err := tmp.Close(); err != nil {
		return rs.Count(), apperrors.Wrap(apperrors.InvalidInput, "close csv", err)
	}
	if err := r.fs.Rename(tmp.Name(), path); err != nil {
		return rs.Count(), apperrors.Wrapf(apperrors.InvalidInput, err, "move csv into %s", path)
	}
	if err := r.fs.Chmod(path, 0o644); err != nil && !os.IsNotExist(err) {
		r.logger.Debug("chmod output", "output", path, "error", err)
	}
	return rs.Count(), nil
}
