// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg provides XDG Base Directory paths for membership.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	appName        = "membership"
	configFileName = "config.yaml"
)

// ConfigDir returns the XDG config directory for membership.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultConfigFile returns ConfigDir()/config.yaml if that file exists,
// and "" otherwise.
func DefaultConfigFile() string {
	path := filepath.Join(ConfigDir(), configFileName)
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return path
		}
		return ""
	}
	if info.IsDir() {
		return ""
	}
	return path
}
