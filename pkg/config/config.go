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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ZaparooProject/zaparoo-serialterm/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/link"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/serialport"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	SchemaVersion = 1
	CfgEnv        = "SERIALTERM_CFG"
	CfgFile       = "config.toml"
)

var ErrSchemaMismatch = errors.New("schema version mismatch")

// AppVersion is set at build time with -ldflags.
var AppVersion = "DEVELOPMENT"

type Values struct {
	Terminal       Terminal       `toml:"terminal"`
	ErrorReporting ErrorReporting `toml:"error_reporting"`
	Link           Link           `toml:"link"`
	ConfigSchema   int            `toml:"config_schema"`
	DebugLogging   bool           `toml:"debug_logging"`
}

type Terminal struct {
	// Port is the last used device, preselected on start.
	Port        string `toml:"port,omitempty"`
	Encoding    string `toml:"encoding" validate:"encoding"`
	BaudRate    int    `toml:"baud_rate" validate:"baud"`
	KeepCommand bool   `toml:"keep_command"`
}

// Link holds the connection tuning knobs. Durations are Go duration strings;
// an empty value uses the built-in default.
type Link struct {
	PollInterval       string `toml:"poll_interval,omitempty" validate:"duration"`
	HealthInterval     string `toml:"health_interval,omitempty" validate:"duration"`
	FreshnessThreshold string `toml:"freshness_threshold,omitempty" validate:"duration"`
	// PartialLineTimeout set to a negative duration disables partial line
	// flushing.
	PartialLineTimeout string `toml:"partial_line_timeout,omitempty" validate:"duration"`
	MaxLineLength      int    `toml:"max_line_length,omitempty" validate:"gte=0"`
}

// ErrorReporting is off unless both enabled and a DSN are set.
type ErrorReporting struct {
	DSN     string `toml:"dsn,omitempty" validate:"omitempty,url"`
	Enabled bool   `toml:"enabled"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Terminal: Terminal{
		BaudRate: serialport.DefaultBaudRate,
		Encoding: link.DefaultEncoding,
	},
	Link: Link{
		PollInterval:       link.DefaultPollInterval.String(),
		HealthInterval:     link.DefaultHealthInterval.String(),
		FreshnessThreshold: link.DefaultFreshnessThreshold.String(),
		PartialLineTimeout: link.DefaultPartialLineTimeout.String(),
		MaxLineLength:      link.DefaultMaxLineLength,
	},
}

type Instance struct {
	fs       afero.Fs
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

// NewConfig loads the config file from configDir, or from the path in
// CfgEnv if set. A missing file is created with defaults.
//
//nolint:gocritic // config struct copied for immutability
func NewConfig(fs afero.Fs, configDir string, defaults Values) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	log.Debug().Msgf("env config path: %s", cfgPath)

	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	return NewConfigAt(fs, cfgPath, defaults)
}

// NewConfigAt is NewConfig with an explicit file path.
//
//nolint:gocritic // config struct copied for immutability
func NewConfigAt(fs afero.Fs, cfgPath string, defaults Values) (*Instance, error) {
	cfg := Instance{
		fs:       fs,
		cfgPath:  cfgPath,
		vals:     defaults,
		defaults: defaults,
	}

	exists, err := afero.Exists(fs, cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if !exists {
		log.Info().Str("path", cfgPath).Msg("saving new default config to disk")

		err := fs.MkdirAll(filepath.Dir(cfgPath), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		err = cfg.Save()
		if err != nil {
			return nil, err
		}
	}

	err = cfg.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	data, err := afero.ReadFile(c.fs, c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then unmarshal file values on top.
	// This ensures fields not present in the file retain their default values.
	newVals := c.defaults
	err = toml.Unmarshal(data, &newVals)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema,
			SchemaVersion,
		)
		return ErrSchemaMismatch
	}

	if err := DefaultValidator.Validate(&newVals); err != nil {
		return fmt.Errorf("invalid config %s: %w", c.cfgPath, err)
	}

	c.vals = newVals
	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	// set current schema version
	c.vals.ConfigSchema = SchemaVersion

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(c.fs, c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Instance) Path() string {
	return c.cfgPath
}

func (c *Instance) Port() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Terminal.Port
}

func (c *Instance) SetPort(port string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Terminal.Port = port
}

func (c *Instance) BaudRate() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Terminal.BaudRate
}

func (c *Instance) SetBaudRate(baud int) error {
	if !serialport.ValidBaudRate(baud) {
		return fmt.Errorf("%w: %d", link.ErrUnsupportedBaud, baud)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Terminal.BaudRate = baud
	return nil
}

func (c *Instance) Encoding() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Terminal.Encoding
}

func (c *Instance) KeepCommand() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Terminal.KeepCommand
}

func (c *Instance) SetKeepCommand(keep bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Terminal.KeepCommand = keep
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) SetDebugLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = enabled
	helpers.SetDebugLogging(enabled)
}

// ErrorReportingDSN returns the Sentry DSN, or an empty string when error
// reporting is disabled.
func (c *Instance) ErrorReportingDSN() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.vals.ErrorReporting.Enabled {
		return ""
	}
	return c.vals.ErrorReporting.DSN
}

// LinkSettings converts the loaded values into connection settings. Zero
// values are left for link to fill with its defaults.
func (c *Instance) LinkSettings() link.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()

	l := c.vals.Link
	return link.Settings{
		Encoding:           c.vals.Terminal.Encoding,
		PollInterval:       parseDuration(l.PollInterval),
		HealthInterval:     parseDuration(l.HealthInterval),
		FreshnessThreshold: parseDuration(l.FreshnessThreshold),
		PartialLineTimeout: parseDuration(l.PartialLineTimeout),
		MaxLineLength:      l.MaxLineLength,
	}
}

// parseDuration returns zero for empty or invalid values. Values are already
// checked by the validator on load.
func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
