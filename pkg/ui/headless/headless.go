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

// Package headless runs the terminal over plain stdin and stdout. Input lines
// are sent to the device; lines starting with "/" are commands.
package headless

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ZaparooProject/zaparoo-serialterm/pkg/link"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/serialport"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/ui"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const helpText = `commands:
  /connect PORT [BAUD]  open PORT (default baud from config)
  /disconnect           close the current session
  /ports                list serial ports
  /status               show the session state
  /help                 show this help
  /quit                 disconnect and exit
any other line is sent to the device`

var errQuit = errors.New("quit")

type Options struct {
	Controller    ui.Controller
	Notifications <-chan link.Notification
	// ListPorts defaults to serialport.ListPorts.
	ListPorts func() ([]string, error)
	// Port, if set, is connected on start.
	Port     string
	BaudRate int
}

// Console is one stdin/stdout session driving a Controller.
type Console struct {
	ctrl          ui.Controller
	notifications <-chan link.Notification
	listPorts     func() ([]string, error)
	out           *bufio.Writer
	port          string
	baud          int
}

//nolint:gocritic // options struct copied once at construction
func New(out io.Writer, opts Options) *Console {
	c := &Console{
		ctrl:          opts.Controller,
		notifications: opts.Notifications,
		listPorts:     opts.ListPorts,
		out:           bufio.NewWriter(out),
		port:          opts.Port,
		baud:          opts.BaudRate,
	}
	if c.listPorts == nil {
		c.listPorts = serialport.ListPorts
	}
	if c.baud == 0 {
		c.baud = serialport.DefaultBaudRate
	}
	return c
}

// Run processes input until EOF, /quit or ctx is cancelled. The reader is
// consumed on its own goroutine, which is left blocked if ctx ends first.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	g, ctx := errgroup.WithContext(ctx)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			readErr <- err
			close(lines)
		}()
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		err = scanner.Err()
	}()

	// the writer belongs to the output loop, which runs until printCh closes
	printCh := make(chan string, 16)

	g.Go(func() error {
		return c.outputLoop(printCh)
	})
	g.Go(func() error {
		defer close(printCh)
		if c.port != "" {
			c.connect(c.port, c.baud, printCh)
		}
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					if err := <-readErr; err != nil {
						return fmt.Errorf("failed to read input: %w", err)
					}
					return errQuit
				}
				if err := c.handleLine(line, printCh); err != nil {
					return err
				}
			case <-ctx.Done():
				return nil
			}
		}
	})

	err := g.Wait()
	if derr := c.ctrl.Disconnect(); derr != nil && !errors.Is(derr, link.ErrManagerStopped) {
		log.Warn().Err(derr).Msg("failed to disconnect on exit")
	}
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

// outputLoop prints notifications and command output. After a write error it
// keeps draining so the input side never blocks, and reports the error last.
func (c *Console) outputLoop(printCh <-chan string) error {
	var writeErr error
	write := func(line string) {
		if writeErr != nil {
			return
		}
		_, _ = c.out.WriteString(line)
		_ = c.out.WriteByte('\n')
		if err := c.out.Flush(); err != nil {
			writeErr = fmt.Errorf("failed to write output: %w", err)
		}
	}

	for {
		select {
		case n, ok := <-c.notifications:
			if !ok {
				c.notifications = nil
				continue
			}
			if line, ok := ui.TranscriptLine(n); ok {
				write(line)
			}
			switch n.Kind { //nolint:exhaustive // other kinds have a transcript line
			case link.NotificationStale:
				write("[link stale, sending disabled]")
			case link.NotificationFresh:
				write("[link fresh]")
			}
		case msg, ok := <-printCh:
			if !ok {
				return writeErr
			}
			write(msg)
		}
	}
}

// handleLine runs a command or sends the line. Only errQuit ends the session.
func (c *Console) handleLine(line string, printCh chan<- string) error {
	if !strings.HasPrefix(line, "/") {
		if err := c.ctrl.Send(line); err != nil {
			printCh <- "Send failed: " + err.Error()
		}
		return nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/connect":
		if len(fields) < 2 {
			printCh <- "usage: /connect PORT [BAUD]"
			return nil
		}
		baud := c.baud
		if len(fields) > 2 {
			v, err := strconv.Atoi(fields[2])
			if err != nil {
				printCh <- "invalid baud rate: " + fields[2]
				return nil
			}
			baud = v
		}
		c.connect(fields[1], baud, printCh)
	case "/disconnect":
		if err := c.ctrl.Disconnect(); err != nil {
			printCh <- "Disconnect failed: " + err.Error()
		}
	case "/ports":
		ports, err := c.listPorts()
		if err != nil {
			printCh <- "Failed to list serial ports: " + err.Error()
			return nil
		}
		if len(ports) == 0 {
			printCh <- "no serial ports found"
		}
		for _, p := range ports {
			printCh <- p
		}
	case "/status":
		snap := c.ctrl.Snapshot()
		if snap.State == link.StateIdle {
			printCh <- "idle"
			return nil
		}
		printCh <- fmt.Sprintf("%s %s at %d baud, last data %s",
			snap.State, snap.PortID, snap.BaudRate, snap.LastReceivedAt.Format("15:04:05"))
	case "/help":
		printCh <- helpText
	case "/quit":
		return errQuit
	default:
		printCh <- "unknown command " + fields[0] + ", try /help"
	}
	return nil
}

func (c *Console) connect(port string, baud int, printCh chan<- string) {
	if err := c.ctrl.Connect(port, baud); err != nil {
		printCh <- "Connect failed: " + err.Error()
	}
}
