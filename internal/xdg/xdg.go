// Package xdg resolves XDG Base Directory paths for sqltunnel, falling back
// to the traditional ~/.config location when XDG_CONFIG_HOME is unset.
package xdg

import (
	"os"
	"path/filepath"
)

// AppName is the directory name used under each XDG base.
const AppName = "sqltunnel"

// ConfigDir returns the XDG config directory for sqltunnel. It does not
// create it; config files there are written by the user.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, AppName), nil
}
