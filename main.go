// Package main is the entry point for the sqltunnel CLI.
// It runs SQL query files against a database behind an SSH host.
package main

import (
	"sqltunnel/cli/cmd"
)

// main is the entry point for the sqltunnel CLI application.
func main() {
	cmd.Execute()
}
