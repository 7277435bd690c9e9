// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

package session

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"sqltunnel/cli/internal/config"
	apperrors "sqltunnel/cli/internal/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTunnel struct {
	port     int
	closes   int
	closeErr error
	onClose  func()
}

func (f *fakeTunnel) LocalPort() int { return f.port }

func (f *fakeTunnel) Close() error {
	f.closes++
	if f.onClose != nil {
		f.onClose()
	}
	return f.closeErr
}

func testConfig() *config.Config {
	return &config.Config{DBs: map[string]config.Target{
		"mydb": {
			Name:       "mydb",
			Host:       "bastion",
			Port:       22,
			User:       "ops",
			Password:   "pw",
			DBHost:     "10.0.0.12",
			DBPort:     3306,
			DBUser:     "reporter",
			DBPassword: "dbpw",
			DBName:     "sales",
		},
	}}
}

type harness struct {
	tunnel  *fakeTunnel
	db      *sql.DB
	mock    sqlmock.Sqlmock
	dialed  int
	opened  []string
	dialErr error
	openErr error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
		sqlmock.MonitorPingsOption(true),
	)
	require.NoError(t, err)
	return &harness{tunnel: &fakeTunnel{port: 40123}, db: db, mock: mock}
}

func (h *harness) options() []Option {
	return []Option{
		WithTunnelDialer(func(ctx context.Context, target config.Target) (Tunnel, error) {
			h.dialed++
			if h.dialErr != nil {
				return nil, h.dialErr
			}
			return h.tunnel, nil
		}),
		WithDBOpener(func(driverName, dataSourceName string) (*sql.DB, error) {
			h.opened = append(h.opened, driverName, dataSourceName)
			if h.openErr != nil {
				return nil, h.openErr
			}
			return h.db, nil
		}),
	}
}

func TestOpen_ExecuteClose(t *testing.T) {
	h := newHarness(t)
	h.mock.ExpectPing()
	h.mock.ExpectQuery("SELECT 1;").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))
	h.mock.ExpectClose()

	s, err := Open(context.Background(), testConfig(), "mydb", h.options()...)
	require.NoError(t, err)
	assert.Equal(t, StateOpen, s.State())
	assert.Equal(t, 40123, s.LocalPort())

	require.Len(t, h.opened, 2)
	assert.Equal(t, "mysql", h.opened[0])
	cfg, err := mysql.ParseDSN(h.opened[1])
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:40123", cfg.Addr, "database must be reached through the tunnel's local port")
	assert.Equal(t, "reporter", cfg.User)
	assert.Equal(t, "sales", cfg.DBName)

	rs, err := s.Execute(context.Background(), "-- header\n-- header2\nSELECT 1;")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, rs.Columns)
	require.True(t, rs.Next())
	rec, err := rs.Record()
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, rec)
	require.NoError(t, rs.Close())

	h.tunnel.onClose = func() {
		assert.Error(t, h.db.Ping(), "database must be closed before the tunnel")
	}
	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, h.tunnel.closes)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestClose_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.mock.ExpectPing()
	h.mock.ExpectClose()

	s, err := Open(context.Background(), testConfig(), "mydb", h.options()...)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, h.tunnel.closes, "tunnel must be stopped exactly once")

	_, err = s.Execute(context.Background(), "a\nb\nSELECT 1")
	assert.True(t, apperrors.IsKind(err, apperrors.ConnectionError), "execute after close: %v", err)
}

func TestClose_BestEffort(t *testing.T) {
	h := newHarness(t)
	h.mock.ExpectPing()
	h.mock.ExpectClose().WillReturnError(errors.New("broken pipe"))
	h.tunnel.closeErr = errors.New("listener already gone")

	s, err := Open(context.Background(), testConfig(), "mydb", h.options()...)
	require.NoError(t, err)

	err = s.Close()
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.ConnectionError))
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Contains(t, err.Error(), "listener already gone")
	assert.Equal(t, 1, h.tunnel.closes, "tunnel close must still run when database close fails")
	assert.Equal(t, StateClosed, s.State())
}

func TestOpen_UnknownTarget(t *testing.T) {
	h := newHarness(t)

	_, err := Open(context.Background(), testConfig(), "other", h.options()...)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.ConfigurationError))
	assert.Zero(t, h.dialed, "no connection may be attempted for an unknown target")
}

func TestOpen_TunnelFailure(t *testing.T) {
	h := newHarness(t)
	h.dialErr = errors.New("ssh: unable to authenticate")

	_, err := Open(context.Background(), testConfig(), "mydb", h.options()...)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.ConnectionError))
	assert.Empty(t, h.opened, "database must not be opened without a tunnel")
}

func TestOpen_DatabaseFailureStopsTunnel(t *testing.T) {
	h := newHarness(t)
	h.mock.ExpectPing().WillReturnError(errors.New("Error 1045: Access denied for user 'reporter'"))
	h.mock.ExpectClose()

	_, err := Open(context.Background(), testConfig(), "mydb", h.options()...)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.ConnectionError))
	assert.Equal(t, 1, h.tunnel.closes, "tunnel must be stopped when the database login fails")
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestOpen_OpenerFailureStopsTunnel(t *testing.T) {
	h := newHarness(t)
	h.openErr = errors.New("sql: unknown driver")

	_, err := Open(context.Background(), testConfig(), "mydb", h.options()...)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.ConnectionError))
	assert.Equal(t, 1, h.tunnel.closes)
}

func TestExecute_Errors(t *testing.T) {
	h := newHarness(t)
	h.mock.ExpectPing()
	h.mock.ExpectQuery("SELEC 1").WillReturnError(errors.New("Error 1064: You have an error in your SQL syntax"))
	h.mock.ExpectQuery("SELECT 2").WillReturnError(mysql.ErrInvalidConn)
	h.mock.ExpectClose()

	s, err := Open(context.Background(), testConfig(), "mydb", h.options()...)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Execute(context.Background(), "h1\nh2\nSELEC 1")
	assert.True(t, apperrors.IsKind(err, apperrors.QueryError), "syntax error: %v", err)

	_, err = s.Execute(context.Background(), "h1\nh2\nSELECT 2")
	assert.True(t, apperrors.IsKind(err, apperrors.ConnectionError), "lost connection: %v", err)

	_, err = s.Execute(context.Background(), "only one line")
	assert.True(t, apperrors.IsKind(err, apperrors.QueryError), "missing statement: %v", err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unopened", StateUnopened.String())
	assert.Equal(t, "opening", StateOpening.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestClose_NeverOpened(t *testing.T) {
	var s Session
	assert.NoError(t, s.Close())
	assert.Equal(t, StateUnopened, s.State())
}
