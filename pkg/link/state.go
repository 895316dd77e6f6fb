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

import "time"

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateLive
	StateDegraded
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Active reports whether a session in this state still owns a worker, which
// blocks a new connect.
func (s State) Active() bool {
	return s == StateConnecting || s == StateLive || s == StateDegraded
}

// Established reports whether the port has opened and the health monitor is
// judging the link.
func (s State) Established() bool {
	return s == StateLive || s == StateDegraded
}

// Terminal reports whether the session is over.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// Session is one connect-to-disconnect lifetime. It is only ever read or
// written by the Manager's event loop.
type Session struct {
	ConnectedAt    time.Time
	LastReceivedAt time.Time
	ID             string
	PortID         string
	BaudRate       int
	State          State
}

func (s *Session) snapshot() Session {
	if s == nil {
		return Session{State: StateIdle}
	}
	return *s
}

// markReceived moves LastReceivedAt forward to at. It never moves backwards.
func (s *Session) markReceived(at time.Time) {
	if at.After(s.LastReceivedAt) {
		s.LastReceivedAt = at
	}
}
