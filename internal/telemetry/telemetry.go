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

// Package telemetry provides opt-in error reporting via Sentry. Nothing is
// sent unless a DSN is configured. Failed serial sessions are reported with
// the lifecycle of that session as breadcrumbs; received data is never sent.
// Usernames are stripped from paths before transmission.
package telemetry

import (
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/ZaparooProject/zaparoo-serialterm/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/link"
	"github.com/getsentry/sentry-go"
	sentryzerolog "github.com/getsentry/sentry-go/zerolog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	flushTimeout   = 2 * time.Second
	maxBreadcrumbs = 20
)

var (
	enabled      bool
	sentryWriter *sentryzerolog.Writer
	closeOnce    sync.Once

	// Patterns to strip usernames from file paths
	homePathRe    = regexp.MustCompile(`(?i)/home/[^/]+/`)
	usersPathRe   = regexp.MustCompile(`(?i)/Users/[^/]+/`)
	windowsUserRe = regexp.MustCompile(`(?i)[a-zA-Z]:\\Users\\[^\\]+\\`)
)

// Init initializes Sentry error reporting. An empty dsn leaves telemetry
// disabled. Session failures arrive through Observe; the zerolog writer only
// forwards fatal and panic logs so a failure is not reported twice.
func Init(dsn, appVersion string) error {
	if dsn == "" {
		log.Debug().Msg("error reporting disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          "zaparoo-serialterm@" + appVersion,
		AttachStacktrace: true,
		SendDefaultPII:   false,
		ServerName:       "",
		MaxBreadcrumbs:   maxBreadcrumbs,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return sanitizeEvent(event)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
	})

	sentryWriter, err = sentryzerolog.NewWithHub(sentry.CurrentHub(), sentryzerolog.Options{
		Levels:          []zerolog.Level{zerolog.FatalLevel, zerolog.PanicLevel},
		FlushTimeout:    flushTimeout,
		WithBreadcrumbs: false,
	})
	if err != nil {
		return fmt.Errorf("failed to create sentry zerolog writer: %w", err)
	}

	log.Logger = log.Output(zerolog.MultiLevelWriter(
		helpers.LogWriter(),
		sentryWriter,
	)).With().Timestamp().Caller().Logger()

	enabled = true
	log.Info().Msg("error reporting enabled")
	return nil
}

// Close flushes pending events and shuts down Sentry.
// Safe to call multiple times.
func Close() {
	if !enabled {
		return
	}
	closeOnce.Do(func() {
		_ = sentryWriter.Close()
		sentry.Flush(flushTimeout)
	})
}

// Flush ensures all pending events are sent to Sentry.
// Call this before os.Exit to ensure error events are transmitted.
func Flush() {
	if !enabled {
		return
	}
	sentry.Flush(flushTimeout)
}

func Enabled() bool {
	return enabled
}

// Observe feeds one manager notification into error reporting. Lifecycle
// notifications become breadcrumbs of the current session and an Error is
// captured as one event tagged with the session.
func Observe(n link.Notification) {
	if !enabled {
		return
	}
	hub := sentry.CurrentHub()
	if n.Kind == link.NotificationConnecting {
		hub.Scope().ClearBreadcrumbs()
	}
	if crumb, ok := breadcrumbFor(n); ok {
		hub.AddBreadcrumb(crumb, nil)
	}
	if n.Kind == link.NotificationError {
		hub.CaptureEvent(failureEvent(n))
	}
}

func breadcrumbFor(n link.Notification) (*sentry.Breadcrumb, bool) {
	level := sentry.LevelInfo
	message := ""
	switch n.Kind {
	case link.NotificationLine:
		return nil, false
	case link.NotificationStale:
		level = sentry.LevelWarning
	case link.NotificationError:
		level = sentry.LevelError
		message = n.Text
	case link.NotificationConnecting, link.NotificationConnected,
		link.NotificationFresh, link.NotificationClosed:
	}
	return &sentry.Breadcrumb{
		Type:      "default",
		Category:  "serial." + string(n.Kind),
		Message:   message,
		Level:     level,
		Timestamp: n.Time,
		Data: map[string]any{
			"state": n.State.String(),
		},
	}, true
}

func failureEvent(n link.Notification) *sentry.Event {
	event := sentry.NewEvent()
	event.Level = sentry.LevelError
	event.Message = "serial session failed: " + n.Text
	event.Timestamp = n.Time
	event.Tags["session"] = n.SessionID
	event.Tags["port"] = n.PortID
	event.Tags["baud"] = strconv.Itoa(n.BaudRate)
	event.Tags["state"] = n.State.String()
	return event
}

// sanitizeEvent removes PII from Sentry events before sending.
func sanitizeEvent(event *sentry.Event) *sentry.Event {
	// SDK may populate the hostname despite ServerName: ""
	event.ServerName = ""

	for i := range event.Exception {
		if event.Exception[i].Stacktrace != nil {
			for j := range event.Exception[i].Stacktrace.Frames {
				frame := &event.Exception[i].Stacktrace.Frames[j]
				frame.AbsPath = sanitizePath(frame.AbsPath)
				frame.Filename = sanitizePath(frame.Filename)
			}
		}
	}

	event.Message = sanitizePath(event.Message)

	for _, crumb := range event.Breadcrumbs {
		if crumb != nil {
			crumb.Message = sanitizePath(crumb.Message)
		}
	}

	for k, v := range event.Extra {
		if s, ok := v.(string); ok {
			event.Extra[k] = sanitizePath(s)
		}
	}

	return event
}

// sanitizePath removes usernames from file paths.
func sanitizePath(path string) string {
	if path == "" {
		return path
	}

	result := homePathRe.ReplaceAllString(path, "/home/<user>/")
	result = usersPathRe.ReplaceAllString(result, "/Users/<user>/")
	result = windowsUserRe.ReplaceAllString(result, "C:\\Users\\<user>\\")

	return result
}
