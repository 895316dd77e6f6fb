// Zaparoo Serial Terminal
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Serial Terminal.
//
// Zaparoo Serial Terminal is free software: you can redistribute it and/or
// modify it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Serial Terminal is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Serial Terminal.  If not, see <http://www.gnu.org/licenses/>.

package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
	"github.com/spf13/afero"
)

const (
	AppName = "zaparoo-serialterm"
	// AppEnv overrides the executable path used to look for a portable user
	// directory.
	AppEnv  = "SERIALTERM_APP"
	UserDir = "user"
	LogsDir = "logs"
	LogFile = "serialterm.log"
)

// Paths holds the directories the terminal writes to.
type Paths struct {
	ConfigDir string
	LogDir    string
}

var (
	userDirCache       string
	userDirCacheExists bool
	userDirOnce        sync.Once
)

// HasUserDir checks if a "user" directory exists next to the executable
// and returns true and the absolute path to it. This directory is used in
// place of the XDG directories for a portable install. The result is cached
// after the first call.
func HasUserDir() (string, bool) {
	userDirOnce.Do(func() {
		exePath := os.Getenv(AppEnv)
		if exePath == "" {
			var err error
			exePath, err = os.Executable()
			if err != nil {
				return
			}
		}

		userDir := filepath.Join(filepath.Dir(exePath), UserDir)
		info, err := os.Stat(userDir)
		if err != nil || !info.IsDir() {
			return
		}

		userDirCache = userDir
		userDirCacheExists = true
	})

	return userDirCache, userDirCacheExists
}

// DefaultPaths returns the portable user directory if present, otherwise the
// XDG config and state directories.
func DefaultPaths() Paths {
	if dir, ok := HasUserDir(); ok {
		return Paths{
			ConfigDir: dir,
			LogDir:    filepath.Join(dir, LogsDir),
		}
	}
	return Paths{
		ConfigDir: filepath.Join(xdg.ConfigHome, AppName),
		LogDir:    filepath.Join(xdg.StateHome, AppName, LogsDir),
	}
}

// EnsureDirectories creates the config and log directories.
func EnsureDirectories(fs afero.Fs, paths Paths) error {
	if err := fs.MkdirAll(paths.ConfigDir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := fs.MkdirAll(paths.LogDir, 0o750); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}
