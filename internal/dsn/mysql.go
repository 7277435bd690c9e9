// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"github.com/go-sql-driver/mysql"
)

// MySQLResolver builds go-sql-driver/mysql DSNs
type MySQLResolver struct{}

// NewMySQLResolver creates a new MySQL resolver
func NewMySQLResolver() *MySQLResolver {
	return &MySQLResolver{}
}

func (r *MySQLResolver) DriverName() string { return "mysql" }

// Validate checks the info carries everything a MySQL login needs
func (r *MySQLResolver) Validate(info *Info) error {
	return validateCommon(info)
}

// Normalize formats info as user:password@tcp(host:port)/dbname?params
func (r *MySQLResolver) Normalize(info *Info) (string, error) {
	if info == nil {
		return "", NewBuildError("nil DSN info", "")
	}
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = info.Address()
	cfg.User = info.User
	cfg.Passwd = info.Password
	cfg.DBName = info.Database
	// Hand temporal and decimal values back as text so the CSV matches what the server printed.
	cfg.ParseTime = false
	if len(info.Params) > 0 {
		cfg.Params = make(map[string]string, len(info.Params))
		for k, v := range info.Params {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN(), nil
}
