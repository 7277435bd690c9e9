// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"strings"
)

// DetectDBType maps a configured driver name to a database type.
// An empty name means MySQL, the only database the query files were written for originally.
func DetectDBType(driver string) DBType {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "mysql", "mariadb":
		return DBTypeMySQL
	case "postgres", "postgresql", "pgx":
		return DBTypePostgreSQL
	}
	return DBTypeUnknown
}

// ResolverFor returns the resolver for a database type.
func ResolverFor(t DBType) (Resolver, error) {
	switch t {
	case DBTypeMySQL:
		return NewMySQLResolver(), nil
	case DBTypePostgreSQL:
		return NewPostgreSQLResolver(), nil
	default:
		return nil, NewBuildError("unknown database type", "use driver \"mysql\" or \"postgres\"")
	}
}

// Build validates info and returns the driver name and connection string to pass to sql.Open.
func Build(info *Info) (driverName string, dsn string, err error) {
	if info == nil {
		return "", "", NewBuildError("nil DSN info", "")
	}
	resolver, err := ResolverFor(info.Type)
	if err != nil {
		return "", "", err
	}
	if err := resolver.Validate(info); err != nil {
		return "", "", err
	}
	dsn, err = resolver.Normalize(info)
	if err != nil {
		return "", "", err
	}
	return resolver.DriverName(), dsn, nil
}

func validateCommon(info *Info) error {
	if strings.TrimSpace(info.Host) == "" {
		return NewBuildError("missing host", "the tunnel must be established before building the DSN")
	}
	if info.Port <= 0 || info.Port > 65535 {
		return NewBuildError("invalid port number", "port must be between 1 and 65535")
	}
	if strings.TrimSpace(info.User) == "" {
		return NewBuildError("missing username", "set dbuser for the target")
	}
	if strings.TrimSpace(info.Database) == "" {
		return NewBuildError("missing database name", "set dbname for the target")
	}
	return nil
}
