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

// Package link owns the lifecycle of a single serial terminal session: the
// background reader, the connect/disconnect state machine and the liveness
// monitor that flags a link gone silent.
//
// A Manager runs one event loop goroutine. Every public Manager call, every
// Worker event and every health tick is handled on that goroutine, so the
// Session is never shared between goroutines.
package link

import (
	"errors"
	"time"
)

const (
	// DefaultPollInterval bounds how long the read loop waits for input before
	// checking for a stop request.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultHealthInterval is the period of the health monitor.
	DefaultHealthInterval = 5 * time.Second
	// DefaultFreshnessThreshold is how long a link may go without receiving a
	// line before it is considered degraded.
	DefaultFreshnessThreshold = 5 * time.Second
	// DefaultPartialLineTimeout is how long an unterminated line is held
	// before being delivered as is.
	DefaultPartialLineTimeout = 1 * time.Second
	// DefaultMaxLineLength caps how many unterminated bytes are buffered.
	DefaultMaxLineLength = 64 * 1024

	// LineTerminator is appended to every sent line.
	LineTerminator = "\n"

	eventBufferSize        = 64
	notificationBufferSize = 256
	readBufferSize         = 1024
)

var (
	ErrEmptyPort        = errors.New("no port selected")
	ErrUnsupportedBaud  = errors.New("unsupported baud rate")
	ErrAlreadyConnected = errors.New("a connection is already active")
	ErrNotLive          = errors.New("link is not live")
	ErrManagerStopped   = errors.New("connection manager is not running")
	ErrPortNotOpen      = errors.New("port not open")
)

// Settings tune the timing and decoding of a session.
type Settings struct {
	Encoding           string
	PollInterval       time.Duration
	HealthInterval     time.Duration
	FreshnessThreshold time.Duration
	PartialLineTimeout time.Duration
	MaxLineLength      int
}

// DefaultSettings returns the stock timings.
func DefaultSettings() Settings {
	return Settings{
		Encoding:           DefaultEncoding,
		PollInterval:       DefaultPollInterval,
		HealthInterval:     DefaultHealthInterval,
		FreshnessThreshold: DefaultFreshnessThreshold,
		PartialLineTimeout: DefaultPartialLineTimeout,
		MaxLineLength:      DefaultMaxLineLength,
	}
}

// withDefaults fills unset fields. A negative PartialLineTimeout disables
// partial line flushing.
func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Encoding == "" {
		s.Encoding = d.Encoding
	}
	if s.PollInterval <= 0 {
		s.PollInterval = d.PollInterval
	}
	if s.HealthInterval <= 0 {
		s.HealthInterval = d.HealthInterval
	}
	if s.FreshnessThreshold <= 0 {
		s.FreshnessThreshold = d.FreshnessThreshold
	}
	if s.PartialLineTimeout == 0 {
		s.PartialLineTimeout = d.PartialLineTimeout
	}
	if s.MaxLineLength <= 0 {
		s.MaxLineLength = d.MaxLineLength
	}
	return s
}
