// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package querypath discovers query files under a directory and derives the
// CSV path each one's result set is written to.
package querypath

import (
	"strings"
	"time"
)

// TimestampLayout formats the run minute as YYMMDDHHmm.
const TimestampLayout = "0601021504"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// NameGenerator derives output file names from query file names.
type NameGenerator struct {
	clock Clock
}

// NewNameGenerator returns a generator reading time from clock; nil means SystemClock.
func NewNameGenerator(clock Clock) *NameGenerator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &NameGenerator{clock: clock}
}

// Name returns "<YYMMDDHHmm>_<stem>.csv" where stem is everything before the
// first dot of fileName, so "report.v2.sql" yields "report".
func (g *NameGenerator) Name(fileName string) string {
	stem, _, _ := strings.Cut(fileName, ".")
	return g.clock.Now().Local().Format(TimestampLayout) + "_" + stem + ".csv"
}
