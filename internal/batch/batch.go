// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package batch wires one run together: it resolves the query tree, opens
// the session for the chosen target, runs every query through it and always
// closes the session before returning.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"sqltunnel/cli/internal/config"
	apperrors "sqltunnel/cli/internal/errors"
	"sqltunnel/cli/internal/logging"
	"sqltunnel/cli/internal/progress"
	"sqltunnel/cli/internal/querypath"
	"sqltunnel/cli/internal/runner"
	"sqltunnel/cli/internal/session"

	"github.com/spf13/afero"
)

// Options describes one run.
type Options struct {
	QueryDir string
	Target   string
	Config   *config.Config

	FS     afero.Fs
	Clock  querypath.Clock
	Logger *slog.Logger

	// StrictNames rejects runs where two query files map to the same output.
	StrictNames bool
	// KeepGoing continues past failed query files.
	KeepGoing    bool
	QueryTimeout time.Duration

	Events         progress.Sink
	SessionOptions []session.Option
}

// Plan validates the inputs and resolves the query tree without connecting.
func Plan(opts Options) (querypath.Map, error) {
	fs := opts.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	if err := querypath.CheckDir(fs, opts.QueryDir); err != nil {
		return nil, err
	}
	if _, err := opts.Config.Target(opts.Target); err != nil {
		return nil, err
	}

	m, err := querypath.Resolve(fs, opts.QueryDir, querypath.NewNameGenerator(opts.Clock))
	if err != nil {
		return nil, err
	}

	if collisions := m.Collisions(); len(collisions) > 0 {
		outputs := make([]string, 0, len(collisions))
		for out := range collisions {
			outputs = append(outputs, out)
		}
		sort.Strings(outputs)
		if opts.StrictNames {
			var b strings.Builder
			for _, out := range outputs {
				b.WriteString("\n  " + out + " <- " + strings.Join(collisions[out], ", "))
			}
			return nil, apperrors.Newf(apperrors.InvalidInput, "query files map to the same output:%s", b.String())
		}
		for _, out := range outputs {
			logger.Warn("output shared by several query files; the last one wins", "output", out, "sources", collisions[out])
		}
	}
	return m, nil
}

// Run executes one batch. Zero query files is a successful, empty run that
// never connects. The session is closed on every path once opened, and a
// close failure is joined onto the returned error.
func Run(ctx context.Context, opts Options) (report runner.Report, err error) {
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	m, err := Plan(opts)
	if err != nil {
		return runner.Report{}, err
	}
	if len(m) == 0 {
		opts.Logger.Warn("no query files found", "dir", opts.QueryDir, "pattern", querypath.Pattern)
		return runner.Report{}, nil
	}
	opts.Logger.Debug("resolved query files", "count", len(m))

	sessOpts := append([]session.Option{
		session.WithLogger(opts.Logger),
		session.WithFS(opts.FS),
	}, opts.SessionOptions...)
	sess, err := session.Open(ctx, opts.Config, opts.Target, sessOpts...)
	if err != nil {
		return runner.Report{}, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	r := runner.New(opts.FS, sess,
		runner.WithContinueOnError(opts.KeepGoing),
		runner.WithQueryTimeout(opts.QueryTimeout),
		runner.WithEvents(opts.Events),
		runner.WithLogger(opts.Logger),
	)
	return r.Run(ctx, m)
}
