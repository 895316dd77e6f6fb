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

// Package ui holds what the terminal front ends share: the controller
// contract, transcript formatting and which controls are usable per state.
package ui

import (
	"fmt"

	"github.com/ZaparooProject/zaparoo-serialterm/pkg/link"
)

// Controller is the part of link.Manager a front end drives.
type Controller interface {
	Connect(portID string, baud int) error
	Disconnect() error
	Send(text string) error
	Snapshot() link.Session
}

// TranscriptLine returns the text a notification adds to the transcript.
// Health transitions only change controls and produce no text.
func TranscriptLine(n link.Notification) (string, bool) {
	switch n.Kind {
	case link.NotificationConnecting:
		return fmt.Sprintf("Connecting to %s at %d baud…", n.PortID, n.BaudRate), true
	case link.NotificationConnected:
		return fmt.Sprintf("Connected to %s.", n.PortID), true
	case link.NotificationLine:
		return n.Text, true
	case link.NotificationError:
		return "Connection failed: " + n.Text, true
	case link.NotificationClosed:
		return "Disconnected.", true
	case link.NotificationStale, link.NotificationFresh:
		return "", false
	default:
		return "", false
	}
}

// Controls says which inputs are enabled.
type Controls struct {
	PortSelect bool
	Connect    bool
	Disconnect bool
	Input      bool
	Send       bool
}

// ControlsFor derives the enabled controls from the session state and
// whether a port is selected. Send is only offered while Live, so a degraded
// link disables it until data arrives again.
func ControlsFor(state link.State, portSelected bool) Controls {
	switch state {
	case link.StateConnecting:
		return Controls{Disconnect: true}
	case link.StateLive:
		return Controls{Disconnect: true, Input: true, Send: true}
	case link.StateDegraded:
		return Controls{Disconnect: true, Input: true}
	case link.StateIdle, link.StateClosed, link.StateFailed:
		return Controls{PortSelect: true, Connect: portSelected}
	default:
		return Controls{PortSelect: true, Connect: portSelected}
	}
}
