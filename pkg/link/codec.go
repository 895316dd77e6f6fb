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
	"sort"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// DefaultEncoding is used when no encoding is configured.
const DefaultEncoding = "utf-8"

var charsets = map[string]encoding.Encoding{
	"utf-8":        nil,
	"utf8":         nil,
	"latin1":       charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
	"windows-1252": charmap.Windows1252,
	"cp1252":       charmap.Windows1252,
	"cp437":        charmap.CodePage437,
}

// Encodings returns the supported encoding names, sorted.
func Encodings() []string {
	names := make([]string, 0, len(charsets))
	for name := range charsets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidEncoding reports whether name is a supported encoding.
func ValidEncoding(name string) bool {
	_, ok := charsets[strings.ToLower(name)]
	return ok
}

// Codec converts between wire bytes and text for one charset.
type Codec struct {
	enc  encoding.Encoding
	name string
}

// NewCodec returns the codec for a named charset. An empty name selects UTF-8.
func NewCodec(name string) (*Codec, error) {
	if name == "" {
		name = DefaultEncoding
	}
	name = strings.ToLower(name)
	enc, ok := charsets[name]
	if !ok {
		return nil, fmt.Errorf("unsupported encoding: %s", name)
	}
	return &Codec{name: name, enc: enc}, nil
}

// Name returns the normalised charset name.
func (c *Codec) Name() string {
	return c.name
}

// DecodeLine turns one raw line into text. Malformed sequences are dropped
// rather than reported, and any trailing CR/LF run is stripped.
func (c *Codec) DecodeLine(raw []byte) string {
	var text string
	if c.enc == nil {
		text = strings.ToValidUTF8(string(raw), "")
	} else {
		out, err := c.enc.NewDecoder().Bytes(raw)
		if err != nil {
			text = strings.ToValidUTF8(string(raw), "")
		} else {
			text = string(out)
		}
	}
	return strings.TrimRight(text, "\r\n")
}

// Encode converts outgoing text to wire bytes. Runes the charset cannot
// represent are replaced with the charset's substitute byte.
func (c *Codec) Encode(text string) ([]byte, error) {
	if c.enc == nil {
		return []byte(text), nil
	}
	out, err := encoding.ReplaceUnsupported(c.enc.NewEncoder()).Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("failed to encode text as %s: %w", c.name, err)
	}
	return out, nil
}
