// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestDetectDBType(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		want   DBType
	}{
		{name: "empty defaults to mysql", driver: "", want: DBTypeMySQL},
		{name: "mysql", driver: "mysql", want: DBTypeMySQL},
		{name: "mariadb", driver: "MariaDB", want: DBTypeMySQL},
		{name: "postgres", driver: "postgres", want: DBTypePostgreSQL},
		{name: "postgresql uppercase", driver: "POSTGRESQL", want: DBTypePostgreSQL},
		{name: "pgx", driver: "pgx", want: DBTypePostgreSQL},
		{name: "unknown", driver: "oracle", want: DBTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectDBType(tt.driver); got != tt.want {
				t.Errorf("DetectDBType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuild_MySQL(t *testing.T) {
	info := &Info{
		Type:     DBTypeMySQL,
		Host:     "127.0.0.1",
		Port:     40123,
		User:     "report",
		Password: "p@ss:w/rd",
		Database: "sales",
	}

	driver, dsn, err := Build(info)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if driver != "mysql" {
		t.Errorf("driver = %q, want mysql", driver)
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("built DSN does not parse: %v", err)
	}
	if cfg.Addr != "127.0.0.1:40123" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.User != "report" || cfg.Passwd != "p@ss:w/rd" {
		t.Errorf("credentials = %q/%q", cfg.User, cfg.Passwd)
	}
	if cfg.DBName != "sales" {
		t.Errorf("DBName = %q", cfg.DBName)
	}
}

func TestBuild_PostgreSQL(t *testing.T) {
	info := &Info{
		Type:     DBTypePostgreSQL,
		Host:     "127.0.0.1",
		Port:     40124,
		User:     "report",
		Password: "r^NAbbi^Ym=mTi",
		Database: "sales",
		Params:   map[string]string{"application_name": "sqltunnel"},
	}

	driver, dsn, err := Build(info)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if driver != "pgx" {
		t.Errorf("driver = %q, want pgx", driver)
	}
	if !strings.HasPrefix(dsn, "postgresql://report:") {
		t.Errorf("dsn = %q, want postgresql scheme with user", dsn)
	}
	if !strings.Contains(dsn, "@127.0.0.1:40124/sales?") {
		t.Errorf("dsn = %q, want tunnel address and database", dsn)
	}
	if !strings.HasSuffix(dsn, "?application_name=sqltunnel&sslmode=disable") {
		t.Errorf("dsn = %q, want sorted params with sslmode default", dsn)
	}
}

func TestBuild_Invalid(t *testing.T) {
	valid := func() *Info {
		return &Info{Type: DBTypeMySQL, Host: "127.0.0.1", Port: 3306, User: "u", Database: "d"}
	}

	tests := []struct {
		name   string
		mutate func(*Info)
	}{
		{name: "missing host", mutate: func(i *Info) { i.Host = "" }},
		{name: "zero port", mutate: func(i *Info) { i.Port = 0 }},
		{name: "port out of range", mutate: func(i *Info) { i.Port = 70000 }},
		{name: "missing user", mutate: func(i *Info) { i.User = " " }},
		{name: "missing database", mutate: func(i *Info) { i.Database = "" }},
		{name: "unknown type", mutate: func(i *Info) { i.Type = DBTypeUnknown }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := valid()
			tt.mutate(info)
			_, _, err := Build(info)
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if _, ok := err.(*BuildError); !ok {
				t.Errorf("error type = %T, want *BuildError", err)
			}
		})
	}

	if _, _, err := Build(nil); err == nil {
		t.Error("expected error for nil info")
	}
}

func TestBuildError(t *testing.T) {
	err := NewBuildError("missing host", "set dbhost")
	if got := err.Error(); got != "invalid connection settings: missing host\nHint: set dbhost" {
		t.Errorf("Error() = %q", got)
	}
	if got := NewBuildError("nil DSN info", "").Error(); got != "invalid connection settings: nil DSN info" {
		t.Errorf("Error() = %q", got)
	}
}

func TestDefaultPort(t *testing.T) {
	if DBTypeMySQL.DefaultPort() != 3306 {
		t.Error("mysql default port should be 3306")
	}
	if DBTypePostgreSQL.DefaultPort() != 5432 {
		t.Error("postgres default port should be 5432")
	}
}
