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
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ZaparooProject/zaparoo-serialterm/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/serialport"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Worker owns the port for one session. It opens the device, reports
// Connected, then drains the port line by line until stopped or until an I/O
// error, which it reports as its final event.
type Worker struct {
	clock    clockwork.Clock
	opener   serialport.Opener
	port     serialport.Port
	codec    *Codec
	splitter *lineSplitter
	events   chan Event
	stopCh   chan struct{}
	doneCh   chan struct{}
	portID   string
	settings Settings
	baud     int
	stopOnce sync.Once
	started  atomic.Bool
	mu       syncutil.Mutex // protects port
}

// NewWorker prepares a worker. Nothing is opened until Start.
func NewWorker(
	portID string,
	baud int,
	opener serialport.Opener,
	codec *Codec,
	settings Settings,
	clock clockwork.Clock,
) *Worker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if codec == nil {
		codec = &Codec{name: DefaultEncoding}
	}
	settings = settings.withDefaults()
	return &Worker{
		portID:   portID,
		baud:     baud,
		opener:   opener,
		codec:    codec,
		settings: settings,
		clock:    clock,
		splitter: newLineSplitter(settings.MaxLineLength),
		events:   make(chan Event, eventBufferSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Events returns the worker's event stream. It is closed when the worker
// goroutine exits.
func (w *Worker) Events() <-chan Event {
	return w.events
}

// Start launches the open and read loop. Calling it more than once is a no-op.
func (w *Worker) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run()
}

// Stop requests the read loop to end and blocks until the goroutine has exited
// and the port is closed. It is idempotent and safe from any goroutine.
func (w *Worker) Stop() {
	w.halt()
	if w.started.Load() {
		<-w.doneCh
	}
}

// Write encodes text and writes it to the port in one call. A failed write
// means the link is unusable, so it also ends the read loop.
func (w *Worker) Write(text string) error {
	data, err := w.codec.Encode(text)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.port == nil {
		return ErrPortNotOpen
	}

	n, err := w.port.Write(data)
	if err == nil && n != len(data) {
		err = fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}
	if err != nil {
		log.Error().Err(err).Str("port", w.portID).Msg("failed to write to serial port")
		w.halt()
		return fmt.Errorf("failed to write to port: %w", err)
	}

	log.Debug().Str("port", w.portID).Int("bytes", n).Msg("wrote to serial port")
	return nil
}

func (w *Worker) halt() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

func (w *Worker) stopping() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

// emit delivers ev unless a stop was requested first. Once stopped, nothing
// more reaches the manager.
func (w *Worker) emit(ev Event) bool {
	if w.stopping() {
		return false
	}
	select {
	case w.events <- ev:
		return true
	case <-w.stopCh:
		return false
	}
}

func (w *Worker) run() {
	defer close(w.doneCh)
	defer close(w.events)

	if w.stopping() {
		return
	}

	port, err := w.open()
	if err != nil {
		log.Error().Err(err).Str("port", w.portID).Int("baud", w.baud).Msg("failed to open serial port")
		w.emit(Event{Kind: EventError, Err: err, At: w.clock.Now()})
		return
	}
	defer w.closePort()

	log.Info().Str("port", w.portID).Int("baud", w.baud).Msg("serial port opened")

	if !w.emit(Event{Kind: EventConnected, At: w.clock.Now()}) {
		return
	}

	w.readLoop(port)
}

func (w *Worker) open() (serialport.Port, error) {
	port, err := w.opener(w.portID, w.baud)
	if err != nil {
		return nil, err
	}

	// the read timeout doubles as the idle poll interval
	if err := port.SetReadTimeout(w.settings.PollInterval); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set read timeout on serial port: %w", err)
	}

	w.mu.Lock()
	w.port = port
	w.mu.Unlock()
	return port, nil
}

func (w *Worker) readLoop(port serialport.Port) {
	buf := make([]byte, readBufferSize)
	for {
		if w.stopping() {
			return
		}

		n, err := port.Read(buf)
		if err != nil {
			if w.stopping() {
				return
			}
			if serialport.IsDisconnectionError(err) {
				log.Warn().Err(err).Str("port", w.portID).Msg("serial device disconnected")
			} else {
				log.Error().Err(err).Str("port", w.portID).Msg("failed to read from serial port")
			}
			w.emit(Event{Kind: EventError, Err: fmt.Errorf("failed to read from port: %w", err), At: w.clock.Now()})
			return
		}

		now := w.clock.Now()
		if n > 0 {
			for _, raw := range w.splitter.Feed(buf[:n], now) {
				if !w.emitLine(raw) {
					return
				}
			}
			continue
		}

		if raw, ok := w.splitter.FlushStale(now, w.settings.PartialLineTimeout); ok {
			if !w.emitLine(raw) {
				return
			}
		}
	}
}

func (w *Worker) emitLine(raw []byte) bool {
	text := w.codec.DecodeLine(raw)
	log.Debug().Str("port", w.portID).Str("line", text).Msg("received line")
	return w.emit(Event{Kind: EventLine, Text: text, At: w.clock.Now()})
}

func (w *Worker) closePort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.port == nil {
		return
	}
	if err := w.port.Close(); err != nil {
		log.Warn().Err(err).Str("port", w.portID).Msg("failed to close serial port")
	}
	w.port = nil
	log.Info().Str("port", w.portID).Msg("serial port closed")
}
