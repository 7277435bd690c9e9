// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"

	apperrors "sqltunnel/cli/internal/errors"
)

var kindHints = map[apperrors.Kind]string{
	apperrors.InvalidInput:       "check the query directory and command arguments",
	apperrors.ConfigurationError: "check the config file; `sqltunnel targets <config-file>` lists what it defines",
	apperrors.ConnectionError:    "`sqltunnel check <target> <config-file>` verifies the tunnel and database login",
	apperrors.QueryError:         "the statement after the two header lines was rejected by the database",
}

// PresentError formats an error for user display with masking. Errors that
// carry a known kind get a one-line hint on what to look at.
func PresentError(context string, err error) string {
	if err == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: %s", context, Mask(err.Error()))
	if hint, ok := kindHints[apperrors.KindOf(err)]; ok {
		msg += "\n  hint: " + hint
	}
	return msg
}
