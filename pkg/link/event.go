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

package link

import (
	"time"
)

// EventKind tags what a connection worker is reporting.
type EventKind int

const (
	// EventConnected is sent once, after the port opened successfully.
	EventConnected EventKind = iota
	// EventLine carries one decoded, terminator-stripped line.
	EventLine
	// EventError reports an open or I/O failure. It is always the last event.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventLine:
		return "line"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is produced by a Worker and consumed exactly once by the Manager.
type Event struct {
	At   time.Time
	Err  error
	Text string
	Kind EventKind
}

// Message returns the user-visible error text of an EventError.
func (e Event) Message() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}

// NotificationKind tags what the Manager is telling its collaborators.
type NotificationKind string

const (
	NotificationConnecting NotificationKind = "connecting"
	NotificationConnected  NotificationKind = "connected"
	NotificationLine       NotificationKind = "line"
	NotificationError      NotificationKind = "error"
	NotificationStale      NotificationKind = "stale"
	NotificationFresh      NotificationKind = "fresh"
	NotificationClosed     NotificationKind = "closed"
)

// Notification is a session event re-emitted by the Manager to the UI, with
// the session state that resulted from it.
type Notification struct {
	Time      time.Time
	Kind      NotificationKind
	SessionID string
	PortID    string
	// Text is the received line for NotificationLine and the error message
	// for NotificationError.
	Text     string
	BaudRate int
	State    State
}
