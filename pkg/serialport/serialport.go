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

// Package serialport is the narrow contract between the terminal core and the
// operating system's serial driver.
package serialport

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-serialterm/pkg/helpers"
	"go.bug.st/serial"
)

// DefaultBaudRate is preselected in the UI and used when no config value is set.
const DefaultBaudRate = 9600

// BaudRates lists every rate a session may be opened with.
var BaudRates = []int{4800, 9600, 14400, 19200, 38400, 57600, 115200, 230400, 460800, 921600}

// ValidBaudRate reports whether rate is one of BaudRates.
func ValidBaudRate(rate int) bool {
	return slices.Contains(BaudRates, rate)
}

// Port defines the serial operations the connection worker relies on. A read
// returning zero bytes and a nil error means no input arrived within the read
// timeout.
type Port interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
	SetReadTimeout(t time.Duration) error
}

// Opener opens a port by its device identifier at the given baud rate.
type Opener func(portID string, baud int) (Port, error)

// DefaultOpener opens a real serial device with 8N1 framing.
func DefaultOpener(portID string, baud int) (Port, error) {
	port, err := serial.Open(portID, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portID, err)
	}
	return port, nil
}

// ListPorts returns the device identifiers a session can be opened on.
func ListPorts() ([]string, error) {
	ports, err := helpers.GetSerialDeviceList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// IsDisconnectionError checks if an error indicates the device went away, as
// opposed to a configuration or permission problem.
func IsDisconnectionError(err error) bool {
	if err == nil {
		return false
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
			return true
		case serial.PortBusy, serial.PermissionDenied, serial.InvalidSpeed,
			serial.InvalidDataBits, serial.InvalidParity, serial.InvalidStopBits,
			serial.InvalidTimeoutValue, serial.ErrorEnumeratingPorts, serial.FunctionNotImplemented:
			return false
		default:
			return false
		}
	}

	// OS-level errors that aren't wrapped in a PortError
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "device not configured") ||
		strings.Contains(errStr, "input/output error") ||
		strings.Contains(errStr, "no such device") ||
		strings.Contains(errStr, "device not found") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "device disconnected")
}
