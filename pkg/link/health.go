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

	"github.com/jonboulle/clockwork"
)

// Verdict is the health monitor's judgement of one tick.
type Verdict int

const (
	VerdictFresh Verdict = iota
	VerdictStale
)

func (v Verdict) String() string {
	if v == VerdictStale {
		return "stale"
	}
	return "fresh"
}

// HealthMonitor detects a link that is open but has gone silent. It keeps no
// timestamps of its own: each tick is judged against the session's
// LastReceivedAt, which the Manager owns. It is driven entirely from the
// Manager's event loop and is not safe for concurrent use.
type HealthMonitor struct {
	clock     clockwork.Clock
	ticker    clockwork.Ticker
	interval  time.Duration
	threshold time.Duration
}

// NewHealthMonitor creates a stopped monitor.
func NewHealthMonitor(clock clockwork.Clock, interval, threshold time.Duration) *HealthMonitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HealthMonitor{
		clock:     clock,
		interval:  interval,
		threshold: threshold,
	}
}

// Start begins ticking. It is a no-op if already running.
func (h *HealthMonitor) Start() {
	if h.ticker != nil {
		return
	}
	h.ticker = h.clock.NewTicker(h.interval)
}

// Stop halts the ticker. A tick that was already pending is never read
// because C returns nil from now on.
func (h *HealthMonitor) Stop() {
	if h.ticker == nil {
		return
	}
	h.ticker.Stop()
	h.ticker = nil
}

// running reports whether the timer is active.
func (h *HealthMonitor) running() bool {
	return h.ticker != nil
}

// C returns the tick channel, or nil while stopped so a select on it blocks.
func (h *HealthMonitor) C() <-chan time.Time {
	if h.ticker == nil {
		return nil
	}
	return h.ticker.Chan()
}

// Evaluate judges the link stale if more than the freshness threshold has
// passed since lastReceived.
func (h *HealthMonitor) Evaluate(now, lastReceived time.Time) Verdict {
	if now.Sub(lastReceived) > h.threshold {
		return VerdictStale
	}
	return VerdictFresh
}
