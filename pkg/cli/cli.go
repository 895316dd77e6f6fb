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

// Package cli holds the command line flags and the process setup they drive.
package cli

import (
	"flag"
	"fmt"
	"io"

	"github.com/ZaparooProject/zaparoo-serialterm/internal/telemetry"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/config"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/serialport"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

type Flags struct {
	// ListPorts backs -list and defaults to serialport.ListPorts.
	ListPorts func() ([]string, error)

	set      *flag.FlagSet
	Port     *string
	Baud     *int
	Config   *string
	List     *bool
	Headless *bool
	Debug    *bool
	Version  *bool
}

// SetupFlags defines the terminal's flags on fs.
func SetupFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		ListPorts: serialport.ListPorts,
		set:       fs,
		Port: fs.String(
			"port",
			"",
			"serial port to select, and connect to in headless mode",
		),
		Baud: fs.Int(
			"baud",
			0,
			"baud rate to select (default from config)",
		),
		Config: fs.String(
			"config",
			"",
			"path to config file",
		),
		List: fs.Bool(
			"list",
			false,
			"print available serial ports and exit",
		),
		Headless: fs.Bool(
			"headless",
			false,
			"run on stdin and stdout without the text ui",
		),
		Debug: fs.Bool(
			"debug",
			false,
			"enable debug logging",
		),
		Version: fs.Bool(
			"version",
			false,
			"print version and exit",
		),
	}
}

func (f *Flags) isFlagPassed(name string) bool {
	found := false
	f.set.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

// Pre parses args and actions the flags that exit before any setup. It
// returns true when the process should exit.
func (f *Flags) Pre(args []string, out io.Writer) (bool, error) {
	if err := f.set.Parse(args); err != nil {
		return true, fmt.Errorf("failed to parse flags: %w", err)
	}

	switch {
	case *f.Version:
		_, _ = fmt.Fprintf(out, "Zaparoo Serial Terminal v%s\n", config.AppVersion)
		return true, nil
	case *f.List:
		ports, err := f.ListPorts()
		if err != nil {
			return true, err
		}
		for _, p := range ports {
			_, _ = fmt.Fprintln(out, p)
		}
		return true, nil
	}
	return false, nil
}

// Setup initializes logging and the user config, then opts in to error
// reporting if the config enables it.
//
//nolint:gocritic // config struct copied for immutability
func (f *Flags) Setup(fs afero.Fs, defaults config.Values, writers []io.Writer) (*config.Instance, error) {
	paths := helpers.DefaultPaths()

	if err := helpers.InitLogging(fs, paths, *f.Debug, writers); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	var (
		cfg *config.Instance
		err error
	)
	if *f.Config != "" {
		cfg, err = config.NewConfigAt(fs, *f.Config, defaults)
	} else {
		cfg, err = config.NewConfig(fs, paths.ConfigDir, defaults)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	helpers.SetDebugLogging(*f.Debug || cfg.DebugLogging())

	if err := telemetry.Init(cfg.ErrorReportingDSN(), config.AppVersion); err != nil {
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}

	return cfg, nil
}

// Post applies flags that override config values for this run. They are
// persisted like any choice made in the UI.
func (f *Flags) Post(cfg *config.Instance) error {
	if f.isFlagPassed("port") {
		cfg.SetPort(*f.Port)
	}
	if f.isFlagPassed("baud") {
		if err := cfg.SetBaudRate(*f.Baud); err != nil {
			return err
		}
	}
	return nil
}
