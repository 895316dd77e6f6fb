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
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ZaparooProject/zaparoo-serialterm/pkg/serialport"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Manager orchestrates zero or one active Worker and the HealthMonitor, and
// re-emits their events as Notifications. All session state lives on the
// loop goroutine started by Start.
type Manager struct {
	clock         clockwork.Clock
	ctx           context.Context
	opener        serialport.Opener
	codec         *Codec
	monitor       *HealthMonitor
	cancel        context.CancelFunc
	cmds          chan func()
	notifications chan Notification
	done          chan struct{}

	// owned by the loop goroutine
	session      *Session
	worker       *Worker
	workerEvents <-chan Event

	settings  Settings
	startOnce sync.Once
	stopOnce  sync.Once
	running   atomic.Bool
}

// NewManager creates a stopped manager. A nil opener uses the real serial
// driver and a nil clock uses the wall clock.
func NewManager(opener serialport.Opener, settings Settings, clock clockwork.Clock) (*Manager, error) {
	if opener == nil {
		opener = serialport.DefaultOpener
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	settings = settings.withDefaults()

	codec, err := NewCodec(settings.Encoding)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opener:        opener,
		clock:         clock,
		settings:      settings,
		codec:         codec,
		monitor:       NewHealthMonitor(clock, settings.HealthInterval, settings.FreshnessThreshold),
		ctx:           ctx,
		cancel:        cancel,
		cmds:          make(chan func()),
		notifications: make(chan Notification, notificationBufferSize),
		done:          make(chan struct{}),
	}, nil
}

// Notifications returns the stream of session notifications. It is closed
// after Stop.
func (m *Manager) Notifications() <-chan Notification {
	return m.notifications
}

// Start launches the event loop.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.running.Store(true)
		go m.loop()
	})
}

// Stop disconnects any active session and ends the event loop. It is safe to
// call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		if m.running.Load() {
			<-m.done
		}
	})
}

// Connect starts a new session on portID. It fails fast, without spawning a
// worker, if the port is empty, the baud rate is unsupported or a session is
// still active. The open itself happens in the background; its outcome
// arrives as a Connected or Error notification.
func (m *Manager) Connect(portID string, baud int) error {
	var err error
	if derr := m.do(func() { err = m.connect(portID, baud) }); derr != nil {
		return derr
	}
	return err
}

// Disconnect stops the worker and the monitor and closes the session. It is a
// no-op when there is no session or it is already closed. When it returns the
// port is closed and no further events from that session will be delivered.
func (m *Manager) Disconnect() error {
	return m.do(m.disconnect)
}

// Send writes text followed by a line terminator. It is rejected with
// ErrNotLive unless the session is Live.
func (m *Manager) Send(text string) error {
	var err error
	if derr := m.do(func() { err = m.send(text) }); derr != nil {
		return derr
	}
	return err
}

// Snapshot returns a copy of the current session. With no session the state is
// StateIdle.
func (m *Manager) Snapshot() Session {
	var s Session
	if err := m.do(func() { s = m.session.snapshot() }); err != nil {
		return Session{State: StateIdle}
	}
	return s
}

// do runs fn on the event loop and waits for it to finish.
func (m *Manager) do(fn func()) error {
	if !m.running.Load() {
		return ErrManagerStopped
	}
	finished := make(chan struct{})
	select {
	case m.cmds <- func() {
		defer close(finished)
		fn()
	}:
	case <-m.done:
		return ErrManagerStopped
	}
	<-finished
	return nil
}

func (m *Manager) loop() {
	defer close(m.done)
	defer close(m.notifications)

	for {
		select {
		case <-m.ctx.Done():
			m.disconnect()
			log.Debug().Msg("connection manager stopped")
			return
		case fn := <-m.cmds:
			fn()
		case ev, ok := <-m.workerEvents:
			if !ok {
				m.workerEvents = nil
				continue
			}
			m.handleEvent(ev)
		case <-m.monitor.C():
			m.handleTick()
		}
	}
}

func (m *Manager) connect(portID string, baud int) error {
	portID = strings.TrimSpace(portID)
	if portID == "" {
		return ErrEmptyPort
	}
	if !serialport.ValidBaudRate(baud) {
		return fmt.Errorf("%w: %d", ErrUnsupportedBaud, baud)
	}
	if m.session != nil && m.session.State.Active() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyConnected, m.session.PortID, m.session.State)
	}

	// a previous worker is always joined by fail or disconnect before its
	// session goes terminal
	m.stopWorker()

	now := m.clock.Now()
	m.session = &Session{
		ID:             uuid.NewString(),
		PortID:         portID,
		BaudRate:       baud,
		State:          StateConnecting,
		ConnectedAt:    now,
		LastReceivedAt: now,
	}

	m.worker = NewWorker(portID, baud, m.opener, m.codec, m.settings, m.clock)
	m.workerEvents = m.worker.Events()
	m.worker.Start()
	m.monitor.Start()

	log.Info().
		Str("session", m.session.ID).
		Str("port", portID).
		Int("baud", baud).
		Msg("connecting")
	m.notify(NotificationConnecting, "")
	return nil
}

func (m *Manager) disconnect() {
	if m.session == nil || m.session.State == StateClosed {
		return
	}

	m.stopWorker()
	m.monitor.Stop()
	m.session.State = StateClosed

	log.Info().Str("session", m.session.ID).Str("port", m.session.PortID).Msg("disconnected")
	m.notify(NotificationClosed, "")
}

func (m *Manager) send(text string) error {
	if m.session == nil || m.session.State != StateLive || m.worker == nil {
		state := StateIdle
		if m.session != nil {
			state = m.session.State
		}
		return fmt.Errorf("%w: state is %s", ErrNotLive, state)
	}

	if err := m.worker.Write(text + LineTerminator); err != nil {
		m.fail(err, err.Error())
		return err
	}
	return nil
}

func (m *Manager) handleEvent(ev Event) {
	if m.session == nil {
		return
	}

	switch ev.Kind {
	case EventConnected:
		if m.session.State != StateConnecting {
			log.Warn().Str("session", m.session.ID).Msgf("connected event while %s", m.session.State)
			return
		}
		m.session.State = StateLive
		log.Info().Str("session", m.session.ID).Str("port", m.session.PortID).Msg("connected")
		m.notify(NotificationConnected, "")
	case EventLine:
		if !m.session.State.Established() {
			return
		}
		m.session.markReceived(m.clock.Now())
		m.notify(NotificationLine, ev.Text)
	case EventError:
		m.fail(ev.Err, ev.Message())
	}
}

// fail moves an active session to Failed and releases its resources. msg is
// what collaborators are shown.
func (m *Manager) fail(err error, msg string) {
	if m.session == nil || !m.session.State.Active() {
		return
	}

	m.stopWorker()
	m.monitor.Stop()
	m.session.State = StateFailed

	log.Error().Err(err).Str("session", m.session.ID).Str("port", m.session.PortID).Msg("connection failed")
	m.notify(NotificationError, msg)
}

func (m *Manager) handleTick() {
	if m.session == nil || !m.session.State.Established() {
		return
	}

	verdict := m.monitor.Evaluate(m.clock.Now(), m.session.LastReceivedAt)
	log.Debug().
		Str("session", m.session.ID).
		Stringer("verdict", verdict).
		Time("last_received", m.session.LastReceivedAt).
		Msg("health check")

	switch {
	case verdict == VerdictStale && m.session.State == StateLive:
		m.session.State = StateDegraded
		log.Warn().Str("session", m.session.ID).Msg("link stale, no data within freshness window")
		m.notify(NotificationStale, "")
	case verdict == VerdictFresh && m.session.State == StateDegraded:
		m.session.State = StateLive
		log.Info().Str("session", m.session.ID).Msg("link fresh again")
		m.notify(NotificationFresh, "")
	}
}

func (m *Manager) stopWorker() {
	if m.worker == nil {
		return
	}
	m.worker.Stop()
	m.worker = nil
	m.workerEvents = nil
}

// notify blocks until the notification is queued, except during shutdown
// when it gives up rather than wait on a consumer that may be gone.
func (m *Manager) notify(kind NotificationKind, text string) {
	n := Notification{
		Time:      m.clock.Now(),
		Kind:      kind,
		SessionID: m.session.ID,
		PortID:    m.session.PortID,
		BaudRate:  m.session.BaudRate,
		State:     m.session.State,
		Text:      text,
	}

	if m.ctx.Err() != nil {
		select {
		case m.notifications <- n:
		default:
			log.Warn().Str("kind", string(kind)).Msg("dropping notification during shutdown")
		}
		return
	}

	select {
	case m.notifications <- n:
	case <-m.ctx.Done():
	}
}
