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

// Package tui is the interactive terminal front end built on tview.
package tui

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/ZaparooProject/zaparoo-serialterm/pkg/link"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/serialport"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	PageMain  = "main"
	PageError = "error"

	transcriptMaxLines = 5000
)

// Preferences are the user choices remembered between runs.
type Preferences interface {
	Port() string
	SetPort(port string)
	BaudRate() int
	SetBaudRate(baud int) error
	KeepCommand() bool
	SetKeepCommand(keep bool)
}

type Options struct {
	Controller    ui.Controller
	Preferences   Preferences
	Notifications <-chan link.Notification
	// ListPorts defaults to serialport.ListPorts.
	ListPorts func() ([]string, error)
	Version   string
}

// Terminal owns the widgets. Every method except Run must be called on the
// tview event goroutine once the app is running.
type Terminal struct {
	app           *tview.Application
	ctrl          ui.Controller
	prefs         Preferences
	listPorts     func() ([]string, error)
	notifications <-chan link.Notification

	pages      *tview.Pages
	ports      *tview.DropDown
	bauds      *tview.DropDown
	refresh    *tview.Button
	connect    *tview.Button
	disconnect *tview.Button
	status     *tview.TextView
	transcript *tview.TextView
	input      *tview.InputField
	keep       *tview.Checkbox
	send       *tview.Button

	portOptions []string
	controls    ui.Controls
	state       link.State
}

//nolint:gocritic // options struct copied once at construction
func New(app *tview.Application, opts Options) *Terminal {
	t := &Terminal{
		app:           app,
		ctrl:          opts.Controller,
		prefs:         opts.Preferences,
		listPorts:     opts.ListPorts,
		notifications: opts.Notifications,
		state:         link.StateIdle,
	}
	if t.listPorts == nil {
		t.listPorts = serialport.ListPorts
	}

	t.ports = tview.NewDropDown().SetLabel("Port: ")
	t.refresh = tview.NewButton("Refresh").SetSelectedFunc(t.refreshPorts)
	t.bauds = tview.NewDropDown().SetLabel(" Baud: ")
	t.connect = tview.NewButton("Connect").SetSelectedFunc(t.doConnect)
	t.disconnect = tview.NewButton("Disconnect").SetSelectedFunc(t.doDisconnect)
	t.status = tview.NewTextView().SetDynamicColors(true)

	// serial data is shown verbatim, never parsed for color tags
	t.transcript = tview.NewTextView().
		SetDynamicColors(false).
		SetScrollable(true).
		SetMaxLines(transcriptMaxLines)
	t.transcript.SetBorder(true).SetTitle("Transcript")

	t.input = tview.NewInputField().SetLabel("Send: ")
	t.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			t.doSend()
		}
	})
	t.keep = tview.NewCheckbox().
		SetLabel(" Keep command ").
		SetChecked(t.prefs.KeepCommand()).
		SetChangedFunc(t.prefs.SetKeepCommand)
	t.send = tview.NewButton("Send").SetSelectedFunc(t.doSend)

	baudOptions := make([]string, len(serialport.BaudRates))
	for i, rate := range serialport.BaudRates {
		baudOptions[i] = strconv.Itoa(rate)
	}
	baudIndex := slices.Index(serialport.BaudRates, t.prefs.BaudRate())
	if baudIndex < 0 {
		baudIndex = slices.Index(serialport.BaudRates, serialport.DefaultBaudRate)
	}
	t.bauds.SetOptions(baudOptions, nil).SetCurrentOption(baudIndex)

	top := tview.NewFlex().
		AddItem(t.ports, 0, 2, true).
		AddItem(t.refresh, 9, 0, false).
		AddItem(t.bauds, 0, 1, false).
		AddItem(nil, 1, 0, false).
		AddItem(t.connect, 11, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(t.disconnect, 14, 0, false)

	bottom := tview.NewFlex().
		AddItem(t.input, 0, 1, false).
		AddItem(t.keep, 17, 0, false).
		AddItem(t.send, 8, 0, false)

	main := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(top, 1, 0, true).
		AddItem(t.status, 1, 0, false).
		AddItem(t.transcript, 0, 1, false).
		AddItem(bottom, 1, 0, false)
	main.SetBorder(true).
		SetTitle(" Zaparoo Serial Terminal " + opts.Version + " ").
		SetTitleAlign(tview.AlignCenter)

	t.pages = tview.NewPages().AddPage(PageMain, main, true, true)

	t.refreshPorts()
	t.applyControls()

	app.SetRoot(t.pages, true).
		SetFocus(t.ports).
		SetInputCapture(t.captureKeys)
	return t
}

// Run shows the terminal until the user quits or ctx is cancelled.
func (t *Terminal) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go t.pump(ctx, done)

	if err := t.app.Run(); err != nil {
		return fmt.Errorf("failed to run terminal ui: %w", err)
	}
	return nil
}

func (t *Terminal) pump(ctx context.Context, done <-chan struct{}) {
	for {
		select {
		case n, ok := <-t.notifications:
			if !ok {
				return
			}
			t.app.QueueUpdateDraw(func() {
				t.handleNotification(n)
			})
		case <-ctx.Done():
			t.app.Stop()
			return
		case <-done:
			return
		}
	}
}

func (t *Terminal) handleNotification(n link.Notification) {
	t.state = n.State
	if line, ok := ui.TranscriptLine(n); ok {
		t.appendLine(line)
	}
	if n.Kind == link.NotificationError {
		// force a fresh port choice before reconnecting
		t.ports.SetCurrentOption(0)
		t.showError("Error: " + n.Text)
	}
	t.applyControls()
}

func (t *Terminal) appendLine(line string) {
	_, _ = fmt.Fprintln(t.transcript, line)
	t.transcript.ScrollToEnd()
}

func (t *Terminal) selectedPort() string {
	idx, text := t.ports.GetCurrentOption()
	if idx <= 0 {
		return ""
	}
	return text
}

func (t *Terminal) selectedBaud() int {
	idx, _ := t.bauds.GetCurrentOption()
	if idx < 0 || idx >= len(serialport.BaudRates) {
		return serialport.DefaultBaudRate
	}
	return serialport.BaudRates[idx]
}

func (t *Terminal) refreshPorts() {
	ports, err := t.listPorts()
	if err != nil {
		log.Error().Err(err).Msg("failed to list serial ports")
		t.appendLine("Failed to list serial ports: " + err.Error())
		ports = nil
	}

	current := t.selectedPort()
	if current == "" {
		current = t.prefs.Port()
	}

	t.portOptions = append([]string{""}, ports...)
	selected := max(0, slices.Index(t.portOptions, current))

	t.ports.SetOptions(t.portOptions, func(string, int) {
		t.applyControls()
	})
	t.ports.SetCurrentOption(selected)
	t.applyControls()
}

func (t *Terminal) doConnect() {
	port := t.selectedPort()
	if port == "" {
		return
	}
	baud := t.selectedBaud()

	if err := t.ctrl.Connect(port, baud); err != nil {
		t.showError(err.Error())
		return
	}
	t.prefs.SetPort(port)
	if err := t.prefs.SetBaudRate(baud); err != nil {
		log.Warn().Err(err).Msg("failed to store baud rate")
	}
	t.syncState()
	t.app.SetFocus(t.input)
}

func (t *Terminal) doDisconnect() {
	if err := t.ctrl.Disconnect(); err != nil {
		t.showError(err.Error())
		return
	}
	t.syncState()
}

func (t *Terminal) doSend() {
	if !t.controls.Send {
		return
	}
	text := t.input.GetText()
	if err := t.ctrl.Send(text); err != nil {
		// write failures also arrive as an Error notification
		log.Warn().Err(err).Msg("send failed")
		return
	}
	if !t.keep.IsChecked() {
		t.input.SetText("")
	}
}

func (t *Terminal) syncState() {
	t.state = t.ctrl.Snapshot().State
	t.applyControls()
}

func (t *Terminal) applyControls() {
	if t.connect == nil {
		return
	}
	c := ui.ControlsFor(t.state, t.selectedPort() != "")
	t.controls = c

	t.ports.SetDisabled(!c.PortSelect)
	t.bauds.SetDisabled(!c.PortSelect)
	t.refresh.SetDisabled(!c.PortSelect)
	t.connect.SetDisabled(!c.Connect)
	t.disconnect.SetDisabled(!c.Disconnect)
	t.input.SetDisabled(!c.Input)
	t.send.SetDisabled(!c.Send)

	switch t.state {
	case link.StateLive:
		t.status.SetText("[green]" + t.state.String())
	case link.StateDegraded:
		t.status.SetText("[yellow]" + t.state.String() + " (no data received recently)")
	case link.StateFailed:
		t.status.SetText("[red]" + t.state.String())
	case link.StateIdle, link.StateConnecting, link.StateClosed:
		t.status.SetText(t.state.String())
	default:
		t.status.SetText(t.state.String())
	}
}

func (t *Terminal) showError(msg string) {
	modal := genericModal(msg, "Serial Error", func(int, string) {
		t.pages.RemovePage(PageError)
		t.app.SetFocus(t.ports)
	}, true)
	t.pages.AddPage(PageError, modal, true, true)
	t.app.SetFocus(modal)
}

// focusables lists the widgets Tab cycles through, skipping disabled ones.
func (t *Terminal) focusables() []tview.Primitive {
	c := t.controls
	items := make([]tview.Primitive, 0, 9)
	if c.PortSelect {
		items = append(items, t.ports, t.refresh, t.bauds)
	}
	if c.Connect {
		items = append(items, t.connect)
	}
	if c.Disconnect {
		items = append(items, t.disconnect)
	}
	items = append(items, t.transcript)
	if c.Input {
		items = append(items, t.input)
	}
	items = append(items, t.keep)
	if c.Send {
		items = append(items, t.send)
	}
	return items
}

func (t *Terminal) cycleFocus(step int) {
	items := t.focusables()
	current := slices.IndexFunc(items, func(p tview.Primitive) bool {
		return p.HasFocus()
	})
	next := (current + step + len(items)) % len(items)
	if current < 0 {
		next = 0
	}
	t.app.SetFocus(items[next])
}

func (t *Terminal) captureKeys(event *tcell.EventKey) *tcell.EventKey {
	if t.pages.HasPage(PageError) {
		return event
	}
	switch event.Key() { //nolint:exhaustive
	case tcell.KeyTab:
		t.cycleFocus(1)
		return nil
	case tcell.KeyBacktab:
		t.cycleFocus(-1)
		return nil
	case tcell.KeyF5:
		if t.controls.PortSelect {
			t.refreshPorts()
		}
		return nil
	case tcell.KeyCtrlQ:
		t.app.Stop()
		return nil
	}
	return event
}
