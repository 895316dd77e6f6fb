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
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-serialterm/pkg/serialport"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/serialport/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestWorker(t *testing.T, opener serialport.Opener, settings Settings) *Worker {
	t.Helper()
	w := NewWorker("/dev/ttyUSB0", 115200, opener, nil, settings, nil)
	t.Cleanup(w.Stop)
	return w
}

func nextEvent(t *testing.T, w *Worker, timeout time.Duration) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		return ev, ok
	case <-time.After(timeout):
		require.Fail(t, "expected worker event within timeout", "timeout: %v", timeout)
		return Event{}, false
	}
}

func TestWorker_OpenFailure(t *testing.T) {
	t.Parallel()

	opener, openLog := testutils.FailingOpener(errors.New("no such file or directory"))
	w := newTestWorker(t, opener, Settings{})
	w.Start()

	ev, ok := nextEvent(t, w, time.Second)
	require.True(t, ok)
	assert.Equal(t, EventError, ev.Kind)
	assert.Contains(t, ev.Message(), "no such file or directory")

	_, ok = nextEvent(t, w, time.Second)
	assert.False(t, ok, "event channel should close after open failure")

	require.Len(t, openLog.Calls(), 1)
	assert.Equal(t, testutils.OpenCall{PortID: "/dev/ttyUSB0", Baud: 115200}, openLog.Calls()[0])
}

func TestWorker_SetReadTimeoutFailure(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort()
	port.TimeoutError = assert.AnError
	opener, _ := testutils.Opener(port)
	w := newTestWorker(t, opener, Settings{})
	w.Start()

	ev, ok := nextEvent(t, w, time.Second)
	require.True(t, ok)
	assert.Equal(t, EventError, ev.Kind)
	assert.Contains(t, ev.Message(), "failed to set read timeout")

	w.Stop()
	assert.True(t, port.IsClosed())
}

func TestWorker_ConnectedThenLine(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort([]byte("hello\r\n"))
	opener, _ := testutils.Opener(port)
	w := newTestWorker(t, opener, Settings{PollInterval: 50 * time.Millisecond})
	w.Start()

	ev, ok := nextEvent(t, w, time.Second)
	require.True(t, ok)
	assert.Equal(t, EventConnected, ev.Kind)

	ev, ok = nextEvent(t, w, time.Second)
	require.True(t, ok)
	assert.Equal(t, EventLine, ev.Kind)
	assert.Equal(t, "hello", ev.Text)

	assert.Equal(t, 50*time.Millisecond, port.ReadTimeout())
}

func TestWorker_LineSplitAcrossReads(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort([]byte("hel"), []byte("lo\nwor"), []byte("ld\r\n\r\n"))
	opener, _ := testutils.Opener(port)
	w := newTestWorker(t, opener, Settings{PartialLineTimeout: -1})
	w.Start()

	ev, _ := nextEvent(t, w, time.Second)
	require.Equal(t, EventConnected, ev.Kind)

	var lines []string
	for range 3 {
		ev, ok := nextEvent(t, w, time.Second)
		require.True(t, ok)
		require.Equal(t, EventLine, ev.Kind)
		lines = append(lines, ev.Text)
	}
	assert.Equal(t, []string{"hello", "world", ""}, lines)
}

func TestWorker_MalformedBytesElided(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort([]byte("ok\xff\xfe!\n"))
	opener, _ := testutils.Opener(port)
	w := newTestWorker(t, opener, Settings{})
	w.Start()

	ev, _ := nextEvent(t, w, time.Second)
	require.Equal(t, EventConnected, ev.Kind)

	ev, ok := nextEvent(t, w, time.Second)
	require.True(t, ok)
	assert.Equal(t, EventLine, ev.Kind)
	assert.Equal(t, "ok!", ev.Text)
}

func TestWorker_PartialLineFlushedAfterTimeout(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort([]byte("prompt> "))
	opener, _ := testutils.Opener(port)
	w := newTestWorker(t, opener, Settings{PartialLineTimeout: 50 * time.Millisecond})
	w.Start()

	ev, _ := nextEvent(t, w, time.Second)
	require.Equal(t, EventConnected, ev.Kind)

	ev, ok := nextEvent(t, w, time.Second)
	require.True(t, ok)
	assert.Equal(t, EventLine, ev.Kind)
	assert.Equal(t, "prompt> ", ev.Text)
}

func TestWorker_ReadErrorEndsLoop(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort([]byte("last words\n"))
	opener, _ := testutils.Opener(port)
	w := newTestWorker(t, opener, Settings{})
	w.Start()

	ev, _ := nextEvent(t, w, time.Second)
	require.Equal(t, EventConnected, ev.Kind)
	ev, _ = nextEvent(t, w, time.Second)
	require.Equal(t, EventLine, ev.Kind)

	port.FailReads(errors.New("input/output error"))

	ev, ok := nextEvent(t, w, time.Second)
	require.True(t, ok)
	assert.Equal(t, EventError, ev.Kind)
	assert.Contains(t, ev.Message(), "input/output error")

	_, ok = nextEvent(t, w, time.Second)
	assert.False(t, ok, "event channel should close after the terminating error")
	assert.True(t, port.IsClosed())
}

func TestWorker_StopClosesPortAndIsIdempotent(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort()
	opener, _ := testutils.Opener(port)
	w := newTestWorker(t, opener, Settings{})
	w.Start()

	ev, _ := nextEvent(t, w, time.Second)
	require.Equal(t, EventConnected, ev.Kind)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Stop()
	}()
	w.Stop()
	<-done

	assert.True(t, port.IsClosed())
	assert.Equal(t, 1, port.CloseCount())

	// nothing is delivered once stopped
	port.Feed([]byte("late\n"))
	for ev := range w.Events() {
		assert.NotEqual(t, EventLine, ev.Kind)
	}
}

func TestWorker_StopBeforeStart(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort()
	opener, openLog := testutils.Opener(port)
	w := NewWorker("COM3", 9600, opener, nil, Settings{}, nil)

	w.Stop()
	w.Start()
	w.Stop()

	assert.Empty(t, openLog.Calls(), "a stopped worker must never open the port")
}

func TestWorker_WriteExactBytes(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort()
	opener, _ := testutils.Opener(port)
	w := newTestWorker(t, opener, Settings{})
	w.Start()

	ev, _ := nextEvent(t, w, time.Second)
	require.Equal(t, EventConnected, ev.Kind)

	require.NoError(t, w.Write("ping\n"))
	assert.Equal(t, []byte("ping\n"), port.Written())
}

func TestWorker_WriteFailureHaltsLoop(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort()
	port.FailWrites(errors.New("broken pipe"))
	opener, _ := testutils.Opener(port)
	w := newTestWorker(t, opener, Settings{})
	w.Start()

	ev, _ := nextEvent(t, w, time.Second)
	require.Equal(t, EventConnected, ev.Kind)

	err := w.Write("ping\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write to port")

	w.Stop()
	assert.True(t, port.IsClosed())
	assert.ErrorIs(t, w.Write("again\n"), ErrPortNotOpen)
}

func TestWorker_WriteBeforeOpen(t *testing.T) {
	t.Parallel()

	w := NewWorker("COM3", 9600, nil, nil, Settings{}, nil)
	assert.ErrorIs(t, w.Write("ping\n"), ErrPortNotOpen)
}

func TestWorker_WriteEncodesCharset(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort()
	opener, _ := testutils.Opener(port)
	codec, err := NewCodec("latin1")
	require.NoError(t, err)

	w := NewWorker("COM3", 9600, opener, codec, Settings{}, nil)
	t.Cleanup(w.Stop)
	w.Start()

	ev, _ := nextEvent(t, w, time.Second)
	require.Equal(t, EventConnected, ev.Kind)

	require.NoError(t, w.Write("café\n"))
	assert.Equal(t, []byte{'c', 'a', 'f', 0xe9, '\n'}, port.Written())
}
