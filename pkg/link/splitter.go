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
	"bytes"
	"time"
)

// lineSplitter accumulates raw bytes and cuts them into lines at '\n'. The
// returned slices include the terminator; decoding strips it.
type lineSplitter struct {
	lastByteAt time.Time
	buf        []byte
	maxLen     int
}

func newLineSplitter(maxLen int) *lineSplitter {
	return &lineSplitter{maxLen: maxLen}
}

// Feed appends data and returns every line it completed. A line whose text,
// ignoring its terminator, grows past maxLen is cut into maxLen pieces.
func (s *lineSplitter) Feed(data []byte, now time.Time) [][]byte {
	if len(data) == 0 {
		return nil
	}
	s.lastByteAt = now

	var lines [][]byte
	for len(data) > 0 {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			s.buf = append(s.buf, data...)
			for s.maxLen > 0 && len(s.buf) > s.maxLen {
				lines = append(lines, s.cut())
			}
			return lines
		}

		s.buf = append(s.buf, data[:idx+1]...)
		data = data[idx+1:]
		for s.maxLen > 0 && len(bytes.TrimRight(s.buf, "\r\n")) > s.maxLen {
			lines = append(lines, s.cut())
		}
		lines = append(lines, s.take())
	}
	return lines
}

// FlushStale returns the partial line if no byte arrived for at least after.
func (s *lineSplitter) FlushStale(now time.Time, after time.Duration) ([]byte, bool) {
	if len(s.buf) == 0 || after <= 0 {
		return nil, false
	}
	if now.Sub(s.lastByteAt) < after {
		return nil, false
	}
	return s.take(), true
}

// pending returns how many bytes are buffered without a terminator.
func (s *lineSplitter) pending() int {
	return len(s.buf)
}

// cut removes the first maxLen buffered bytes as one line.
func (s *lineSplitter) cut() []byte {
	line := bytes.Clone(s.buf[:s.maxLen])
	s.buf = append(s.buf[:0], s.buf[s.maxLen:]...)
	return line
}

func (s *lineSplitter) take() []byte {
	line := bytes.Clone(s.buf)
	s.buf = s.buf[:0]
	return line
}
