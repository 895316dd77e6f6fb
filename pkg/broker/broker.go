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

// Package broker fans connection notifications out to multiple consumers
// without letting a slow consumer stall the connection manager.
package broker

import (
	"context"
	"sync"

	"github.com/ZaparooProject/zaparoo-serialterm/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/link"
	"github.com/rs/zerolog/log"
)

// Broker reads manager notifications and delivers them to every subscriber.
// Each subscriber has its own queue and delivery goroutine. Received lines
// are shed once a subscriber has bufferSize of them queued; lifecycle
// notifications are never shed and keep their order.
//
// A subscriber must read its channel until it is closed, or Unsubscribe.
type Broker struct {
	ctx    context.Context
	source <-chan link.Notification
	subs   map[int]*subscriber
	done   chan struct{}
	wg     sync.WaitGroup
	mu     syncutil.Mutex
	nextID int
	closed bool
}

func NewBroker(ctx context.Context, source <-chan link.Notification) *Broker {
	return &Broker{
		ctx:    ctx,
		source: source,
		subs:   make(map[int]*subscriber),
		done:   make(chan struct{}),
	}
}

// Start begins the broadcast loop. When the source closes, queued
// notifications are still delivered before each subscriber channel closes.
// When ctx is cancelled, subscriber channels close straight away.
func (b *Broker) Start() {
	go func() {
		defer close(b.done)
		for {
			select {
			case notif, ok := <-b.source:
				if !ok {
					log.Debug().Msg("broker: source closed, draining subscribers")
					b.shutdown((*subscriber).finish)
					b.wg.Wait()
					return
				}
				b.broadcast(notif)
			case <-b.ctx.Done():
				log.Debug().Msg("broker: context cancelled, shutting down")
				b.shutdown((*subscriber).stop)
				b.wg.Wait()
				return
			}
		}
	}()
}

// Done is closed once the loop has exited and every subscriber channel is
// closed.
func (b *Broker) Done() <-chan struct{} {
	return b.done
}

// Subscribe registers a consumer. bufferSize is how many received lines may
// queue up before new ones are shed. After shutdown the returned channel is
// already closed.
func (b *Broker) Subscribe(bufferSize int) (notifChan <-chan link.Notification, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id = b.nextID
	b.nextID++

	s := newSubscriber(id, bufferSize)
	if b.closed {
		close(s.out)
		return s.out, id
	}

	b.subs[id] = s
	b.wg.Add(1)
	go b.deliver(s)

	log.Debug().Int("subscriber_id", id).Int("line_buffer", s.lineCap).Msg("new subscriber")
	return s.out, id
}

// Unsubscribe closes the subscriber's channel, discarding anything queued.
// Unknown ids are ignored.
func (b *Broker) Unsubscribe(id int) {
	b.mu.Lock()
	s, ok := b.subs[id]
	b.mu.Unlock()
	if !ok {
		return
	}
	s.stop()
	log.Debug().Int("subscriber_id", id).Msg("subscriber unsubscribed")
}

func (b *Broker) broadcast(notif link.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.enqueue(notif)
	}
}

func (b *Broker) shutdown(end func(*subscriber)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, s := range b.subs {
		end(s)
	}
}

func (b *Broker) deliver(s *subscriber) {
	defer b.wg.Done()
	defer func() {
		b.mu.Lock()
		delete(b.subs, s.id)
		b.mu.Unlock()
	}()
	defer close(s.out)

	for {
		notif, ok, more := s.next()
		if !ok {
			if !more {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.quit:
				return
			}
		}
		select {
		case s.out <- notif:
		case <-s.quit:
			return
		}
	}
}

type subscriber struct {
	out      chan link.Notification
	wake     chan struct{}
	quit     chan struct{}
	dropped  map[string]int // shed lines per session
	queue    []link.Notification
	id       int
	lineCap  int
	lines    int
	mu       syncutil.Mutex
	quitOnce sync.Once
	finished bool
}

func newSubscriber(id, bufferSize int) *subscriber {
	return &subscriber{
		id:      id,
		lineCap: max(bufferSize, 1),
		out:     make(chan link.Notification),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		dropped: make(map[string]int),
	}
}

func sessionEnded(kind link.NotificationKind) bool {
	return kind == link.NotificationClosed || kind == link.NotificationError
}

func (s *subscriber) enqueue(notif link.Notification) {
	s.mu.Lock()
	if notif.Kind == link.NotificationLine && s.lines >= s.lineCap {
		s.dropped[notif.SessionID]++
		first := s.dropped[notif.SessionID] == 1
		s.mu.Unlock()
		if first {
			log.Warn().Int("subscriber_id", s.id).Str("session", notif.SessionID).
				Msg("subscriber is behind, shedding received lines")
		}
		return
	}

	if notif.Kind == link.NotificationLine {
		s.lines++
	}
	shed := 0
	if sessionEnded(notif.Kind) {
		shed = s.dropped[notif.SessionID]
		delete(s.dropped, notif.SessionID)
	}
	s.queue = append(s.queue, notif)
	s.mu.Unlock()

	if shed > 0 {
		log.Warn().Int("subscriber_id", s.id).Str("session", notif.SessionID).
			Int("dropped_lines", shed).Msg("lines shed for subscriber during session")
	}
	s.signal()
}

// next pops the oldest queued notification. more is false once the
// subscriber is finished and its queue is empty.
func (s *subscriber) next() (notif link.Notification, ok, more bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return link.Notification{}, false, !s.finished
	}
	notif = s.queue[0]
	s.queue[0] = link.Notification{}
	s.queue = s.queue[1:]
	if notif.Kind == link.NotificationLine {
		s.lines--
	}
	return notif, true, true
}

func (s *subscriber) droppedLines(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped[sessionID]
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// finish lets the queue drain, then closes the channel.
func (s *subscriber) finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.signal()
}

// stop closes the channel without draining.
func (s *subscriber) stop() {
	s.quitOnce.Do(func() {
		close(s.quit)
	})
}
