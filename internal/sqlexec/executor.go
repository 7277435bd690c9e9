// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlexec runs a single statement over database/sql and exposes its
// result set as ordered column names plus a row iterator. Rows are pulled from
// the driver one at a time so arbitrarily large results never sit in memory.
//
// Values are rendered as text the way they should appear in a CSV cell:
//   - NULL becomes an empty field
//   - byte slices are taken as text (MySQL's text protocol returns everything this way)
//   - timestamps use the server's "2006-01-02 15:04:05" layout
//   - 16-byte arrays are formatted as UUIDs
package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ResultSet is the ordered columns and rows of one executed statement.
// It must be closed once the caller is done with it.
type ResultSet struct {
	// Columns holds the column names in driver order
	Columns []string

	rows   *sql.Rows
	values []any
	dest   []any
	count  int64
}

// Query executes statement on q and returns its result set.
func Query(ctx context.Context, q Querier, statement string) (*ResultSet, error) {
	rows, err := q.QueryContext(ctx, statement)
	if err != nil {
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	rs := &ResultSet{
		Columns: cols,
		rows:    rows,
		values:  make([]any, len(cols)),
		dest:    make([]any, len(cols)),
	}
	for i := range rs.values {
		rs.dest[i] = &rs.values[i]
	}
	return rs, nil
}

// Next advances to the next row. It returns false when the rows are exhausted
// or an error occurred; check Err afterwards.
func (r *ResultSet) Next() bool {
	return r.rows.Next()
}

// Record scans the current row and renders each value as text.
func (r *ResultSet) Record() ([]string, error) {
	if err := r.rows.Scan(r.dest...); err != nil {
		return nil, err
	}
	r.count++
	record := make([]string, len(r.values))
	for i, v := range r.values {
		record[i] = FormatValue(v)
	}
	return record, nil
}

// Err returns the error, if any, that ended iteration.
func (r *ResultSet) Err() error {
	return r.rows.Err()
}

// Count returns the number of rows read so far.
func (r *ResultSet) Count() int64 {
	return r.count
}

// Close releases the underlying rows. It is safe to call more than once.
func (r *ResultSet) Close() error {
	return r.rows.Close()
}

// FormatValue renders a scanned driver value as a CSV cell.
func FormatValue(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case string:
		return v
	case [16]byte:
		return fmt.Sprintf("%02x%02x%02x%02x-%02x%02x-%02x%02x-%02x%02x-%02x%02x%02x%02x%02x%02x",
			v[0], v[1], v[2], v[3], v[4], v[5], v[6], v[7],
			v[8], v[9], v[10], v[11], v[12], v[13], v[14], v[15])
	case time.Time:
		if v.Nanosecond() != 0 {
			return v.Format("2006-01-02 15:04:05.999999")
		}
		return v.Format("2006-01-02 15:04:05")
	case bool:
		if v {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}
