// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

package batch

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"sqltunnel/cli/internal/config"
	apperrors "sqltunnel/cli/internal/errors"
	"sqltunnel/cli/internal/progress"
	"sqltunnel/cli/internal/querypath"
	"sqltunnel/cli/internal/session"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTunnel struct {
	closed int
}

func (f *fakeTunnel) LocalPort() int { return 40999 }

func (f *fakeTunnel) Close() error {
	f.closed++
	return nil
}

type env struct {
	fs     afero.Fs
	mock   sqlmock.Sqlmock
	tunnel *fakeTunnel
	dials  int
	opts   Options
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
		sqlmock.MonitorPingsOption(true),
	)
	require.NoError(t, err)

	e := &env{fs: afero.NewMemMapFs(), mock: mock, tunnel: &fakeTunnel{}}
	e.opts = Options{
		QueryDir: "/work/queries",
		Target:   "mydb",
		Config: &config.Config{DBs: map[string]config.Target{
			"mydb": {
				Name: "mydb", Host: "bastion", Port: 22, User: "ops", Password: "pw",
				DBHost: "10.0.0.12", DBPort: 3306, DBUser: "reporter", DBPassword: "x", DBName: "sales",
			},
		}},
		FS:    e.fs,
		Clock: querypath.FixedClock(time.Date(2024, 1, 1, 12, 0, 30, 0, time.Local)),
		SessionOptions: []session.Option{
			session.WithTunnelDialer(func(context.Context, config.Target) (session.Tunnel, error) {
				e.dials++
				return e.tunnel, nil
			}),
			session.WithDBOpener(func(string, string) (*sql.DB, error) { return db, nil }),
		},
	}
	return e
}

func (e *env) query(t *testing.T, path, statement string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(e.fs, path, []byte("-- header\n-- header2\n"+statement), 0o644))
}

func TestRun_EndToEnd(t *testing.T) {
	e := newEnv(t)
	e.query(t, "/work/queries/a.sql", "SELECT 1;")
	e.query(t, "/work/queries/sub/b.sql", "SELECT name FROM t;")

	e.mock.ExpectPing()
	e.mock.ExpectQuery("SELECT 1;").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))
	e.mock.ExpectQuery("SELECT name FROM t;").WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow([]byte("x")))
	e.mock.ExpectClose()

	var done []string
	e.opts.Events = func(ev progress.Event) {
		if ev.Type == progress.EventQueryDone {
			done = append(done, ev.Output)
		}
	}

	report, err := Run(context.Background(), e.opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"/work/2401011200_a.csv", "/work/sub/2401011200_b.csv"}, done)
	a, err := afero.ReadFile(e.fs, "/work/2401011200_a.csv")
	require.NoError(t, err)
	assert.Equal(t, "1\r\n1\r\n", string(a))
	b, err := afero.ReadFile(e.fs, "/work/sub/2401011200_b.csv")
	require.NoError(t, err)
	assert.Equal(t, "name\r\nx\r\n", string(b))

	assert.Equal(t, 2, report.Succeeded())
	assert.Equal(t, 1, e.tunnel.closed, "session must be closed after the run")
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestRun_FailureStillCloses(t *testing.T) {
	e := newEnv(t)
	e.query(t, "/work/queries/a.sql", "SELEC 1")

	e.mock.ExpectPing()
	e.mock.ExpectQuery("SELEC 1").WillReturnError(errors.New("Error 1064: syntax"))
	e.mock.ExpectClose()

	_, err := Run(context.Background(), e.opts)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.QueryError))
	assert.Equal(t, 1, e.tunnel.closed)
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestRun_CloseErrorIsJoined(t *testing.T) {
	e := newEnv(t)
	e.query(t, "/work/queries/a.sql", "SELECT 1")

	e.mock.ExpectPing()
	e.mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))
	e.mock.ExpectClose().WillReturnError(errors.New("close: broken pipe"))

	report, err := Run(context.Background(), e.opts)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.ConnectionError))
	assert.Equal(t, 1, report.Succeeded(), "the report survives a failed close")
}

func TestRun_NoQueryFilesDoesNotConnect(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.fs.MkdirAll("/work/queries/empty", 0o755))
	require.NoError(t, afero.WriteFile(e.fs, "/work/queries/readme.txt", []byte("not sql"), 0o644))

	report, err := Run(context.Background(), e.opts)
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Zero(t, e.dials)
}

func TestRun_InvalidInputsFailBeforeConnecting(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*env)
		wantKind apperrors.Kind
	}{
		{
			name:     "missing query dir",
			mutate:   func(e *env) { e.opts.QueryDir = "/nope" },
			wantKind: apperrors.InvalidInput,
		},
		{
			name: "query dir is a file",
			mutate: func(e *env) {
				_ = afero.WriteFile(e.fs, "/work/file.sql", []byte("x"), 0o644)
				e.opts.QueryDir = "/work/file.sql"
			},
			wantKind: apperrors.InvalidInput,
		},
		{
			name:     "unknown target",
			mutate:   func(e *env) { e.opts.Target = "prod" },
			wantKind: apperrors.ConfigurationError,
		},
		{
			name: "strict names with collision",
			mutate: func(e *env) {
				e.opts.StrictNames = true
				_ = afero.WriteFile(e.fs, "/work/queries/report.sql", []byte("a\nb\nSELECT 1"), 0o644)
				_ = afero.WriteFile(e.fs, "/work/queries/report.v2.sql", []byte("a\nb\nSELECT 2"), 0o644)
			},
			wantKind: apperrors.InvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.query(t, "/work/queries/a.sql", "SELECT 1")
			tt.mutate(e)

			_, err := Run(context.Background(), e.opts)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperrors.KindOf(err), "err = %v", err)
			assert.Zero(t, e.dials, "no connection may be attempted")
		})
	}
}

func TestPlan_CollisionsAllowedByDefault(t *testing.T) {
	e := newEnv(t)
	e.query(t, "/work/queries/report.sql", "SELECT 1")
	e.query(t, "/work/queries/report.v2.sql", "SELECT 2")

	m, err := Plan(e.opts)
	require.NoError(t, err)
	assert.Len(t, m, 2)
	assert.Len(t, m.Collisions(), 1)
}
