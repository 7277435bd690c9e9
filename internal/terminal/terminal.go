// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package terminal answers questions about the attached terminal: whether
// animated output makes sense and how wide a line may be.
package terminal

import (
	"os"

	"golang.org/x/term"
)

// DefaultWidth is assumed when the width cannot be determined.
const DefaultWidth = 80

// IsInteractive reports whether f is a terminal. Spinners and in-place
// updates are only drawn when it is; pipes and CI logs get plain lines.
func IsInteractive(f *os.File) bool {
	if f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Width returns the column count of f, or DefaultWidth.
func Width(f *os.File) int {
	if f == nil {
		return DefaultWidth
	}
	if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
		return width
	}
	return DefaultWidth
}

// Truncate shortens s to fit within width columns, marking the cut with "…".
func Truncate(s string, width int) string {
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}
