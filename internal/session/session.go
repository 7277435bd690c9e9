// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package session owns the one live connection of a run: an SSH tunnel to a
// target's network and a database handle opened through the tunnel's local
// port. A Session executes statements only while open and tears everything
// down exactly once, database first, then the tunnel and its SSH transport.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sqltunnel/cli/internal/config"
	"sqltunnel/cli/internal/dsn"
	apperrors "sqltunnel/cli/internal/errors"
	"sqltunnel/cli/internal/logging"
	"sqltunnel/cli/internal/sqlexec"
	"sqltunnel/cli/internal/tunnel"

	"github.com/spf13/afero"
)

// State is a Session's lifecycle position.
type State int

const (
	StateUnopened State = iota
	StateOpening
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Tunnel is a forwarded local port.
type Tunnel interface {
	LocalPort() int
	Close() error
}

// TunnelDialer establishes the tunnel for a target.
type TunnelDialer func(ctx context.Context, target config.Target) (Tunnel, error)

// DBOpener opens a database handle; sql.Open by default.
type DBOpener func(driverName, dataSourceName string) (*sql.DB, error)

// Option configures Open.
type Option func(*Session)

// WithTunnelDialer replaces the SSH dialer.
func WithTunnelDialer(d TunnelDialer) Option {
	return func(s *Session) { s.dial = d }
}

// WithDBOpener replaces sql.Open.
func WithDBOpener(o DBOpener) Option {
	return func(s *Session) { s.openDB = o }
}

// WithLogger sets the logger for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFS sets the filesystem SSH key files are read from.
func WithFS(fs afero.Fs) Option {
	return func(s *Session) {
		if fs != nil {
			s.fs = fs
		}
	}
}

// WithConnectTimeout bounds the SSH connect and handshake.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *Session) { s.connectTimeout = d }
}

// Session is the tunnel plus database handle for one run.
type Session struct {
	target         config.Target
	dial           TunnelDialer
	openDB         DBOpener
	logger         *slog.Logger
	fs             afero.Fs
	connectTimeout time.Duration

	mu     sync.Mutex
	state  State
	tunnel Tunnel
	db     *sql.DB
}

// Open resolves targetName in cfg, establishes the tunnel and opens the
// database through it. On any failure whatever was already established is
// torn down before returning, and no Session is returned.
func Open(ctx context.Context, cfg *config.Config, targetName string, opts ...Option) (*Session, error) {
	target, err := cfg.Target(targetName)
	if err != nil {
		return nil, err
	}

	s := &Session{
		target: target,
		openDB: sql.Open,
		logger: logging.Discard(),
		fs:     afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dial == nil {
		s.dial = s.dialSSH
	}

	s.state = StateOpening
	if err := s.open(ctx); err != nil {
		s.state = StateClosed
		return nil, err
	}
	s.state = StateOpen
	return s, nil
}

func (s *Session) open(ctx context.Context) error {
	log := s.logger.With("target", s.target.Name)
	log.Debug("opening tunnel", "ssh_host", s.target.SSHAddress(), "remote", s.target.DBAddress())

	t, err := s.dial(ctx, s.target)
	if err != nil {
		return apperrors.Wrapf(apperrors.ConnectionError, err, "open tunnel to %s for target %q", s.target.SSHAddress(), s.target.Name)
	}
	s.tunnel = t
	log.Info("tunnel established", "local_port", t.LocalPort(), "remote", s.target.DBAddress())

	driverName, dataSource, err := dsn.Build(&dsn.Info{
		Type:     s.target.DBType(),
		Host:     "127.0.0.1",
		Port:     t.LocalPort(),
		User:     s.target.DBUser,
		Password: s.target.DBPassword,
		Database: s.target.DBName,
		Params:   s.target.DBParams,
	})
	if err != nil {
		s.abort()
		return apperrors.Wrapf(apperrors.ConfigurationError, err, "connection settings for target %q", s.target.Name)
	}

	db, err := s.openDB(driverName, dataSource)
	if err != nil {
		s.abort()
		return apperrors.Wrapf(apperrors.ConnectionError, err, "open %s database for target %q", driverName, s.target.Name)
	}
	// One connection, so at most one statement is ever in flight.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	s.db = db

	if err := db.PingContext(ctx); err != nil {
		s.abort()
		return apperrors.Wrapf(apperrors.ConnectionError, err, "connect to database %q on target %q", s.target.DBName, s.target.Name)
	}
	log.Debug("database session established", "driver", driverName, "database", s.target.DBName)
	return nil
}

// abort releases a partially opened session.
func (s *Session) abort() {
	if err := s.teardown(); err != nil {
		s.logger.Warn("cleanup after failed open", "target", s.target.Name, "error", err)
	}
}

func (s *Session) dialSSH(ctx context.Context, t config.Target) (Tunnel, error) {
	f, err := tunnel.Dial(ctx, tunnel.Config{
		SSHAddress:    t.SSHAddress(),
		User:          t.User,
		Password:      t.Password,
		KeyFile:       t.KeyFile,
		KnownHosts:    t.KnownHosts,
		RemoteAddress: t.DBAddress(),
		Timeout:       s.connectTimeout,
		FS:            s.fs,
		Logger:        s.logger,
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Execute strips the two header lines from queryText and runs the remaining
// statement. The caller must close the returned ResultSet before the next call.
func (s *Session) Execute(ctx context.Context, queryText string) (*sqlexec.ResultSet, error) {
	s.mu.Lock()
	state, db := s.state, s.db
	s.mu.Unlock()
	if state != StateOpen {
		return nil, apperrors.Newf(apperrors.ConnectionError, "session for target %q is %s", s.target.Name, state)
	}

	statement, err := sqlexec.StripHeader(queryText)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.QueryError, "read statement", err)
	}
	rs, err := sqlexec.Query(ctx, db, statement)
	if err != nil {
		if sqlexec.IsConnectionError(err) {
			return nil, apperrors.Wrapf(apperrors.ConnectionError, err, "execute on target %q", s.target.Name)
		}
		return nil, apperrors.Wrap(apperrors.QueryError, "execute statement", err)
	}
	return rs, nil
}

// Close tears down the database handle, then the tunnel. Both are attempted
// even if the first fails. Calling Close again, or on a failed Open, is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosing
	s.mu.Unlock()

	err := s.teardown()

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	if err != nil {
		return apperrors.Wrapf(apperrors.ConnectionError, err, "close session for target %q", s.target.Name)
	}
	s.logger.Info("tunnel closed", "target", s.target.Name)
	return nil
}

func (s *Session) teardown() error {
	var errs []error
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		s.db = nil
	}
	if s.tunnel != nil {
		if err := s.tunnel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close tunnel: %w", err))
		}
		s.tunnel = nil
	}
	return errors.Join(errs...)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LocalPort returns the tunnel's bound port, or 0 when not open.
func (s *Session) LocalPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tunnel == nil {
		return 0
	}
	return s.tunnel.LocalPort()
}

// Target returns the target the session was opened for.
func (s *Session) Target() config.Target {
	return s.target
}
