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

// Package testutils provides a scriptable serial port for tests.
package testutils

import (
	"bytes"
	"errors"
	"time"

	"github.com/ZaparooProject/zaparoo-serialterm/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/serialport"
)

// ErrPortClosed is returned by reads and writes on a closed mock port.
var ErrPortClosed = errors.New("port closed")

// IdleReadDelay is how long an empty read blocks, standing in for the
// driver's read timeout.
const IdleReadDelay = 10 * time.Millisecond

// MockPort is a thread-safe fake serial port. Reads are served from chunks
// queued with Feed; writes are captured and returned by Written.
type MockPort struct {
	ReadError    error
	WriteError   error
	CloseError   error
	TimeoutError error
	chunks       [][]byte
	written      bytes.Buffer
	readTimeout  time.Duration
	closeCount   int
	closed       bool
	mu           syncutil.Mutex
}

// NewMockPort creates a mock port with optional initial read chunks.
func NewMockPort(chunks ...[]byte) *MockPort {
	m := &MockPort{}
	for _, c := range chunks {
		m.Feed(c)
	}
	return m
}

// Feed queues bytes to be returned by a subsequent Read. Each chunk is returned
// by exactly one Read call if it fits the caller's buffer.
func (m *MockPort) Feed(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, bytes.Clone(data))
}

// FailReads makes every following Read return err.
func (m *MockPort) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadError = err
}

// FailWrites makes every following Write return err.
func (m *MockPort) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteError = err
}

func (m *MockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrPortClosed
	}
	if m.ReadError != nil {
		err := m.ReadError
		m.mu.Unlock()
		return 0, err
	}
	if len(m.chunks) == 0 {
		m.mu.Unlock()
		time.Sleep(IdleReadDelay)
		return 0, nil
	}
	n := copy(p, m.chunks[0])
	if n < len(m.chunks[0]) {
		m.chunks[0] = m.chunks[0][n:]
	} else {
		m.chunks = m.chunks[1:]
	}
	m.mu.Unlock()
	return n, nil
}

func (m *MockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrPortClosed
	}
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	return m.written.Write(p)
}

func (m *MockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.closeCount++
	return m.CloseError
}

func (m *MockPort) SetReadTimeout(t time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readTimeout = t
	return m.TimeoutError
}

// Written returns a copy of every byte written so far.
func (m *MockPort) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.written.Bytes())
}

// IsClosed returns true if the port has been closed.
func (m *MockPort) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// CloseCount returns how many times Close was called.
func (m *MockPort) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

// ReadTimeout returns the last timeout passed to SetReadTimeout.
func (m *MockPort) ReadTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readTimeout
}

// Opener returns a serialport.Opener that always hands out port, recording
// the requested identifier and baud rate.
func Opener(port *MockPort) (serialport.Opener, *OpenLog) {
	openLog := &OpenLog{}
	return func(portID string, baud int) (serialport.Port, error) {
		openLog.record(portID, baud)
		return port, nil
	}, openLog
}

// FailingOpener returns a serialport.Opener that always fails with err.
func FailingOpener(err error) (serialport.Opener, *OpenLog) {
	openLog := &OpenLog{}
	return func(portID string, baud int) (serialport.Port, error) {
		openLog.record(portID, baud)
		return nil, err
	}, openLog
}

// OpenCall is one recorded open attempt.
type OpenCall struct {
	PortID string
	Baud   int
}

// OpenLog records open attempts made through a test opener.
type OpenLog struct {
	calls []OpenCall
	mu    syncutil.Mutex
}

func (l *OpenLog) record(portID string, baud int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, OpenCall{PortID: portID, Baud: baud})
}

// Calls returns a copy of the recorded open attempts.
func (l *OpenLog) Calls() []OpenCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]OpenCall(nil), l.calls...)
}
