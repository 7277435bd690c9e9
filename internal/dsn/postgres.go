// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	// registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgreSQLResolver handles PostgreSQL DSN building and validation
type PostgreSQLResolver struct{}

// NewPostgreSQLResolver creates a new PostgreSQL resolver
func NewPostgreSQLResolver() *PostgreSQLResolver {
	return &PostgreSQLResolver{}
}

func (r *PostgreSQLResolver) DriverName() string { return "pgx" }

// Validate checks the info is complete and that pgx accepts the resulting DSN
func (r *PostgreSQLResolver) Validate(info *Info) error {
	if err := validateCommon(info); err != nil {
		return err
	}
	normalized, err := r.Normalize(info)
	if err != nil {
		return err
	}
	if _, err := pgx.ParseConfig(normalized); err != nil {
		return NewBuildError(fmt.Sprintf("pgx rejected connection string: %v", err), "check dbparams for the target")
	}
	return nil
}

// Normalize converts DSN info to a properly formatted connection string
func (r *PostgreSQLResolver) Normalize(info *Info) (string, error) {
	if info == nil {
		return "", NewBuildError("nil DSN info", "")
	}

	var builder strings.Builder

	// Use postgresql:// as canonical scheme
	builder.WriteString("postgresql://")

	// Encode username and password
	if info.User != "" {
		userinfo := url.User(info.User)
		if info.Password != "" {
			userinfo = url.UserPassword(info.User, info.Password)
		}
		builder.WriteString(userinfo.String())
		builder.WriteString("@")
	}

	builder.WriteString(info.Address())

	builder.WriteString("/")
	builder.WriteString(url.PathEscape(info.Database))

	params := make(map[string]string, len(info.Params)+1)
	for k, v := range info.Params {
		params[k] = v
	}
	// The tunnel already encrypts the hop; the local leg is loopback.
	if _, ok := params["sslmode"]; !ok {
		params["sslmode"] = "disable"
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	builder.WriteString("?")
	for i, key := range keys {
		if i > 0 {
			builder.WriteString("&")
		}
		builder.WriteString(url.QueryEscape(key))
		builder.WriteString("=")
		builder.WriteString(url.QueryEscape(params[key]))
	}

	return builder.String(), nil
}
