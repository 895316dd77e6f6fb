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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-serialterm/pkg/serialport"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/serialport/testutils"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

func newTestManager(t *testing.T, opener serialport.Opener, clock clockwork.Clock) *Manager {
	t.Helper()
	m, err := NewManager(opener, Settings{}, clock)
	require.NoError(t, err)
	m.Start()
	t.Cleanup(m.Stop)
	return m
}

// waitForKind reads notifications until one of kind arrives and returns it
// along with everything read before it.
func waitForKind(t *testing.T, m *Manager, kind NotificationKind) (Notification, []Notification) {
	t.Helper()
	var seen []Notification
	timeout := time.After(waitTimeout)
	for {
		select {
		case n, ok := <-m.Notifications():
			require.True(t, ok, "notifications closed while waiting for %s", kind)
			if n.Kind == kind {
				return n, seen
			}
			seen = append(seen, n)
		case <-timeout:
			require.Fail(t, "timed out waiting for notification", "kind: %s, seen: %v", kind, seen)
			return Notification{}, seen
		}
	}
}

// drain collects notifications until none arrive for quiet.
func drain(m *Manager, quiet time.Duration) []Notification {
	var got []Notification
	for {
		select {
		case n, ok := <-m.Notifications():
			if !ok {
				return got
			}
			got = append(got, n)
		case <-time.After(quiet):
			return got
		}
	}
}

func kinds(ns []Notification) []NotificationKind {
	out := make([]NotificationKind, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Kind)
	}
	return out
}

func countKind(ns []Notification, kind NotificationKind) int {
	c := 0
	for _, n := range ns {
		if n.Kind == kind {
			c++
		}
	}
	return c
}

func TestManager_ConnectRejectsEmptyPort(t *testing.T) {
	t.Parallel()

	opener, openLog := testutils.Opener(testutils.NewMockPort())
	m := newTestManager(t, opener, nil)

	err := m.Connect("", 9600)
	require.ErrorIs(t, err, ErrEmptyPort)
	err = m.Connect("   ", 9600)
	require.ErrorIs(t, err, ErrEmptyPort)

	assert.Empty(t, openLog.Calls(), "no worker should be spawned")
	assert.Equal(t, StateIdle, m.Snapshot().State)
}

func TestManager_ConnectRejectsUnsupportedBaud(t *testing.T) {
	t.Parallel()

	opener, openLog := testutils.Opener(testutils.NewMockPort())
	m := newTestManager(t, opener, nil)

	err := m.Connect("/dev/ttyUSB0", 12345)
	require.ErrorIs(t, err, ErrUnsupportedBaud)
	assert.Empty(t, openLog.Calls())
}

func TestManager_NonexistentPort(t *testing.T) {
	t.Parallel()

	opener, _ := testutils.FailingOpener(errors.New("open /dev/ttyNOPE: no such file or directory"))
	m := newTestManager(t, opener, nil)

	require.NoError(t, m.Connect("/dev/ttyNOPE", 9600))

	n, seen := waitForKind(t, m, NotificationError)
	assert.Contains(t, n.Text, "no such file or directory")
	assert.Equal(t, StateFailed, n.State)
	assert.Equal(t, []NotificationKind{NotificationConnecting}, kinds(seen))

	rest := drain(m, 100*time.Millisecond)
	assert.Zero(t, countKind(rest, NotificationConnected), "connected must never be emitted")
	assert.Zero(t, countKind(rest, NotificationError), "exactly one error expected")
	assert.Equal(t, StateFailed, m.Snapshot().State)
}

func TestManager_ReceiveLine(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	port := testutils.NewMockPort()
	opener, openLog := testutils.Opener(port)
	m := newTestManager(t, opener, clock)

	require.NoError(t, m.Connect("/dev/ttyUSB0", 115200))
	connectedAt := clock.Now()
	waitForKind(t, m, NotificationConnected)

	assert.Equal(t, []testutils.OpenCall{{PortID: "/dev/ttyUSB0", Baud: 115200}}, openLog.Calls())

	clock.Advance(2 * time.Second)
	port.Feed([]byte("hello\r\n"))

	n, _ := waitForKind(t, m, NotificationLine)
	assert.Equal(t, "hello", n.Text)
	assert.Equal(t, StateLive, n.State)

	s := m.Snapshot()
	assert.Equal(t, StateLive, s.State)
	assert.Equal(t, connectedAt, s.ConnectedAt)
	assert.Equal(t, connectedAt.Add(2*time.Second), s.LastReceivedAt)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, n.SessionID, s.ID)
}

func TestManager_ConnectedOnceBeforeLines(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort([]byte("one\ntwo\nthree\n"))
	opener, _ := testutils.Opener(port)
	m := newTestManager(t, opener, nil)

	require.NoError(t, m.Connect("COM4", 57600))
	got := drain(m, 200*time.Millisecond)

	assert.Equal(t, []NotificationKind{
		NotificationConnecting,
		NotificationConnected,
		NotificationLine,
		NotificationLine,
		NotificationLine,
	}, kinds(got))
	assert.Equal(t, "one", got[2].Text)
	assert.Equal(t, "two", got[3].Text)
	assert.Equal(t, "three", got[4].Text)
}

func TestManager_SendWhileConnectingRejected(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort()
	release := make(chan struct{})
	opener := func(_ string, _ int) (serialport.Port, error) {
		<-release
		return port, nil
	}
	m := newTestManager(t, opener, nil)
	var released bool
	t.Cleanup(func() {
		if !released {
			close(release)
		}
	})

	require.NoError(t, m.Connect("/dev/ttyACM0", 9600))
	assert.Equal(t, StateConnecting, m.Snapshot().State)

	err := m.Send("ping")
	require.ErrorIs(t, err, ErrNotLive)
	assert.Empty(t, port.Written(), "no bytes may be written before connected")

	err = m.Connect("/dev/ttyACM0", 9600)
	require.ErrorIs(t, err, ErrAlreadyConnected)

	released = true
	close(release)
	waitForKind(t, m, NotificationConnected)
	assert.Equal(t, StateLive, m.Snapshot().State)
}

func TestManager_SendAppendsTerminator(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort()
	opener, _ := testutils.Opener(port)
	m := newTestManager(t, opener, nil)

	require.NoError(t, m.Connect("/dev/ttyUSB0", 9600))
	waitForKind(t, m, NotificationConnected)

	require.NoError(t, m.Send("ping"))
	assert.Equal(t, []byte("ping\n"), port.Written())
}

func TestManager_SendWhenIdleRejected(t *testing.T) {
	t.Parallel()

	opener, _ := testutils.Opener(testutils.NewMockPort())
	m := newTestManager(t, opener, nil)

	err := m.Send("ping")
	require.ErrorIs(t, err, ErrNotLive)
	assert.Contains(t, err.Error(), "idle")
}

func TestManager_WriteFailureFailsSession(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort()
	port.FailWrites(errors.New("broken pipe"))
	opener, _ := testutils.Opener(port)
	m := newTestManager(t, opener, nil)

	require.NoError(t, m.Connect("/dev/ttyUSB0", 9600))
	waitForKind(t, m, NotificationConnected)

	err := m.Send("ping")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")

	n, _ := waitForKind(t, m, NotificationError)
	assert.Equal(t, StateFailed, n.State)
	assert.Equal(t, StateFailed, m.Snapshot().State)
	assert.True(t, port.IsClosed())
}

func TestManager_ReadErrorFailsThenReconnect(t *testing.T) {
	t.Parallel()

	first := testutils.NewMockPort()
	second := testutils.NewMockPort([]byte("back\n"))
	ports := []*testutils.MockPort{first, second}
	opener := func(_ string, _ int) (serialport.Port, error) {
		p := ports[0]
		ports = ports[1:]
		return p, nil
	}
	m := newTestManager(t, opener, nil)

	require.NoError(t, m.Connect("/dev/ttyUSB0", 9600))
	waitForKind(t, m, NotificationConnected)
	firstID := m.Snapshot().ID

	first.FailReads(errors.New("device disconnected"))
	n, _ := waitForKind(t, m, NotificationError)
	assert.Contains(t, n.Text, "device disconnected")
	assert.Equal(t, StateFailed, m.Snapshot().State)
	assert.True(t, first.IsClosed())

	require.NoError(t, m.Connect("/dev/ttyUSB0", 9600))
	waitForKind(t, m, NotificationConnected)
	line, _ := waitForKind(t, m, NotificationLine)
	assert.Equal(t, "back", line.Text)
	assert.NotEqual(t, firstID, m.Snapshot().ID, "a new connect builds a fresh session")
}

func TestManager_DisconnectIdempotent(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort()
	opener, _ := testutils.Opener(port)
	m := newTestManager(t, opener, nil)

	require.NoError(t, m.Disconnect(), "disconnect while idle is a no-op")
	assert.Equal(t, StateIdle, m.Snapshot().State)

	require.NoError(t, m.Connect("/dev/ttyUSB0", 9600))
	waitForKind(t, m, NotificationConnected)

	require.NoError(t, m.Disconnect())
	assert.True(t, port.IsClosed(), "port must be closed when disconnect returns")
	n, _ := waitForKind(t, m, NotificationClosed)
	assert.Equal(t, StateClosed, n.State)

	require.NoError(t, m.Disconnect())
	assert.Equal(t, StateClosed, m.Snapshot().State)

	port.Feed([]byte("late\n"))
	assert.Empty(t, drain(m, 150*time.Millisecond), "no event after disconnect completes")
	assert.ErrorIs(t, m.Send("ping"), ErrNotLive)
}

func TestManager_DisconnectAfterFailure(t *testing.T) {
	t.Parallel()

	opener, _ := testutils.FailingOpener(errors.New("permission denied"))
	m := newTestManager(t, opener, nil)

	require.NoError(t, m.Connect("/dev/ttyS0", 9600))
	waitForKind(t, m, NotificationError)

	require.NoError(t, m.Disconnect())
	n, _ := waitForKind(t, m, NotificationClosed)
	assert.Equal(t, StateClosed, n.State)
}

func TestManager_StaleAfterThreshold(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	port := testutils.NewMockPort()
	opener, _ := testutils.Opener(port)
	m := newTestManager(t, opener, clock)

	require.NoError(t, m.Connect("/dev/ttyUSB0", 9600))
	waitForKind(t, m, NotificationConnected)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	// first tick at 5s sees exactly the threshold: still fresh
	clock.Advance(5 * time.Second)
	assert.Empty(t, drain(m, 100*time.Millisecond), "no transition at the threshold")
	clock.Advance(1 * time.Second)
	assert.Equal(t, StateLive, m.Snapshot().State, "6s without data is still live between ticks")

	// next tick at 10s is past the threshold
	clock.Advance(4 * time.Second)
	n, _ := waitForKind(t, m, NotificationStale)
	assert.Equal(t, StateDegraded, n.State)
	assert.Equal(t, StateDegraded, m.Snapshot().State)

	clock.Advance(5 * time.Second)
	rest := drain(m, 100*time.Millisecond)
	assert.Zero(t, countKind(rest, NotificationStale), "degraded is reported once")

	assert.ErrorIs(t, m.Send("ping"), ErrNotLive, "send is disabled while degraded")
	assert.Empty(t, port.Written())
}

func TestManager_FreshAgainAfterLine(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	port := testutils.NewMockPort()
	opener, _ := testutils.Opener(port)
	m := newTestManager(t, opener, clock)

	require.NoError(t, m.Connect("/dev/ttyUSB0", 9600))
	waitForKind(t, m, NotificationConnected)

	clock.Advance(10 * time.Second)
	waitForKind(t, m, NotificationStale)

	port.Feed([]byte("alive\n"))
	waitForKind(t, m, NotificationLine)
	assert.Equal(t, StateDegraded, m.Snapshot().State, "only the health tick restores live")

	clock.Advance(5 * time.Second)
	n, _ := waitForKind(t, m, NotificationFresh)
	assert.Equal(t, StateLive, n.State)
	assert.Equal(t, StateLive, m.Snapshot().State)
}

func TestManager_LineBeforeTickKeepsLive(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	port := testutils.NewMockPort()
	opener, _ := testutils.Opener(port)
	m := newTestManager(t, opener, clock)

	require.NoError(t, m.Connect("/dev/ttyUSB0", 9600))
	waitForKind(t, m, NotificationConnected)

	for range 4 {
		clock.Advance(4 * time.Second)
		port.Feed([]byte("tick\n"))
		waitForKind(t, m, NotificationLine)
		clock.Advance(1 * time.Second)
		assert.Equal(t, StateLive, m.Snapshot().State)
	}

	rest := drain(m, 100*time.Millisecond)
	assert.Zero(t, countKind(rest, NotificationStale))
}

func TestManager_LastReceivedMonotonic(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	port := testutils.NewMockPort()
	opener, _ := testutils.Opener(port)
	m := newTestManager(t, opener, clock)

	require.NoError(t, m.Connect("/dev/ttyUSB0", 9600))
	waitForKind(t, m, NotificationConnected)

	prev := m.Snapshot().LastReceivedAt
	for i := range 5 {
		clock.Advance(time.Duration(i) * 700 * time.Millisecond)
		port.Feed([]byte("x\n"))
		waitForKind(t, m, NotificationLine)

		cur := m.Snapshot().LastReceivedAt
		assert.False(t, cur.Before(prev), "last received moved backwards")
		prev = cur
	}
}

func TestManager_StopClosesNotifications(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort()
	opener, _ := testutils.Opener(port)
	m, err := NewManager(opener, Settings{}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, m.Connect("/dev/ttyUSB0", 9600), ErrManagerStopped, "not started yet")

	m.Start()
	require.NoError(t, m.Connect("/dev/ttyUSB0", 9600))
	waitForKind(t, m, NotificationConnected)

	m.Stop()
	m.Stop()
	assert.True(t, port.IsClosed())

	for range m.Notifications() {
		// drain until closed
	}
	assert.ErrorIs(t, m.Connect("/dev/ttyUSB0", 9600), ErrManagerStopped)
	assert.ErrorIs(t, m.Disconnect(), ErrManagerStopped)
	assert.Equal(t, StateIdle, m.Snapshot().State)
}

func TestNewManager_InvalidEncoding(t *testing.T) {
	t.Parallel()

	_, err := NewManager(nil, Settings{Encoding: "klingon"}, nil)
	require.Error(t, err)
}
