// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package dsn builds database/sql connection strings for the databases a
// target can point at. The host and port are always the local end of the
// tunnel; everything else comes from the target configuration.
package dsn

import "fmt"

// DBType represents the type of database
type DBType string

const (
	DBTypeMySQL      DBType = "mysql"
	DBTypePostgreSQL DBType = "postgresql"
	DBTypeUnknown    DBType = "unknown"
)

// DefaultPort returns the conventional server port for the database type.
func (t DBType) DefaultPort() int {
	switch t {
	case DBTypePostgreSQL:
		return 5432
	default:
		return 3306
	}
}

// Info contains the parts a connection string is built from
type Info struct {
	Type     DBType
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Params   map[string]string
}

// Address returns host:port.
func (i *Info) Address() string {
	return fmt.Sprintf("%s:%d", i.Host, i.Port)
}

// Resolver is an interface for database-specific DSN building
type Resolver interface {
	// DriverName is the database/sql driver the DSN is meant for
	DriverName() string

	// Normalize converts DSN info to a properly formatted connection string
	Normalize(info *Info) (string, error)

	// Validate checks if the info is complete for the database type
	Validate(info *Info) error
}

// BuildError represents an error that occurred while building a DSN
type BuildError struct {
	Reason string
	Hint   string
}

func (e *BuildError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("invalid connection settings: %s\nHint: %s", e.Reason, e.Hint)
	}
	return fmt.Sprintf("invalid connection settings: %s", e.Reason)
}

// NewBuildError creates a new BuildError
func NewBuildError(reason, hint string) *BuildError {
	return &BuildError{
		Reason: reason,
		Hint:   hint,
	}
}
