// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"errors"
	"strings"
)

// HeaderLines is the number of leading lines of a query file reserved for
// metadata. They are never sent to the database.
const HeaderLines = 2

// ErrNoStatement is returned by StripHeader when nothing follows the header.
var ErrNoStatement = errors.New("query file has no statement after its two header lines")

// StripHeader drops the first two lines of a query file and returns the rest
// verbatim. The split is on "\n" only, so a CRLF file keeps its "\r" in the
// statement, which every supported server treats as whitespace.
func StripHeader(text string) (string, error) {
	parts := strings.SplitN(text, "\n", HeaderLines+1)
	if len(parts) <= HeaderLines || strings.TrimSpace(parts[HeaderLines]) == "" {
		return "", ErrNoStatement
	}
	return parts[HeaderLines], nil
}
