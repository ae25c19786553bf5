// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg provides XDG Base Directory paths for gatekeeper.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "gatekeeper"

// ConfigDir returns $XDG_CONFIG_HOME/gatekeeper, falling back to
// ~/.config/gatekeeper.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the default configuration file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
