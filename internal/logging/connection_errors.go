// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
)

// ConnectionErrorType represents the category of a tunnel or database failure.
type ConnectionErrorType int

const (
	ConnectionErrorUnknown ConnectionErrorType = iota
	ConnectionErrorRefused
	ConnectionErrorDNS
	ConnectionErrorTimeout
	ConnectionErrorSSHAuth
	ConnectionErrorHostKey
	ConnectionErrorDBAuth
	ConnectionErrorLost
)

// ParseConnectionError categorizes a connection error message.
func ParseConnectionError(errMsg string) ConnectionErrorType {
	lower := strings.ToLower(errMsg)

	// Order matters: database login failures also mention the tunnel address.
	switch {
	case strings.Contains(lower, "knownhosts") || strings.Contains(lower, "host key"):
		return ConnectionErrorHostKey
	case strings.Contains(lower, "ssh: unable to authenticate") || strings.Contains(lower, "no supported methods remain"):
		return ConnectionErrorSSHAuth
	case strings.Contains(lower, "access denied") || strings.Contains(lower, "password authentication failed"):
		return ConnectionErrorDBAuth
	case strings.Contains(lower, "no such host"):
		return ConnectionErrorDNS
	case strings.Contains(lower, "deadline") || strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out"):
		return ConnectionErrorTimeout
	case strings.Contains(lower, "connection refused"):
		return ConnectionErrorRefused
	case strings.Contains(lower, "invalid connection") || strings.Contains(lower, "broken pipe") ||
		strings.Contains(lower, "connection reset") || strings.Contains(lower, "eof"):
		return ConnectionErrorLost
	}
	return ConnectionErrorUnknown
}

// FormatConnectionError formats a tunnel or database failure in a user-friendly way.
func FormatConnectionError(target, errMsg string) string {
	errType := ParseConnectionError(errMsg)

	var builder strings.Builder

	builder.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Connection failed"))
	builder.WriteString("\n\n")

	switch errType {
	case ConnectionErrorRefused:
		builder.WriteString(fmt.Sprintf("The SSH host for target %q refused the connection.\n", target))
		builder.WriteString("Check that \"host\" and \"port\" point at a running SSH server.\n")
	case ConnectionErrorDNS:
		builder.WriteString(fmt.Sprintf("The SSH host for target %q could not be resolved.\n", target))
		builder.WriteString("Check the \"host\" value and your DNS settings.\n")
	case ConnectionErrorTimeout:
		builder.WriteString(fmt.Sprintf("Connecting to target %q timed out.\n", target))
		builder.WriteString("This usually happens when:\n")
		builder.WriteString("  • A firewall drops traffic to the SSH port\n")
		builder.WriteString("  • The database host is not reachable from the SSH host\n")
	case ConnectionErrorSSHAuth:
		builder.WriteString(fmt.Sprintf("The SSH host for target %q rejected the credentials.\n", target))
		builder.WriteString("Check \"user\" together with \"pwd\" or \"key_file\".\n")
	case ConnectionErrorHostKey:
		builder.WriteString(fmt.Sprintf("The SSH host key for target %q did not match known_hosts.\n", target))
		builder.WriteString("Verify the host fingerprint before updating the file.\n")
	case ConnectionErrorDBAuth:
		builder.WriteString(fmt.Sprintf("The database for target %q rejected the login.\n", target))
		builder.WriteString("Check \"dbuser\", \"dbpassword\" and \"dbname\".\n")
	case ConnectionErrorLost:
		builder.WriteString(fmt.Sprintf("The connection to target %q was lost mid-run.\n", target))
		builder.WriteString("Files written before the failure are complete; the rest were not produced.\n")
	default:
		builder.WriteString(fmt.Sprintf("Could not reach target %q.\n", target))
	}

	if strings.TrimSpace(errMsg) != "" {
		builder.WriteString("\n")
		builder.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(errMsg)))
	}

	return builder.String()
}

// PresentConnectionError writes a formatted connection error to w.
func PresentConnectionError(w io.Writer, target string, err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, FormatConnectionError(target, err.Error()))
	fmt.Fprintln(w)
}
