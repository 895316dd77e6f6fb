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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZaparooProject/zaparoo-serialterm/internal/telemetry"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/broker"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/cli"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/config"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/link"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/ui/headless"
	"github.com/ZaparooProject/zaparoo-serialterm/pkg/ui/tui"
	"github.com/rivo/tview"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	uiBufferSize    = 1024
	logBufferSize   = 256
	shutdownTimeout = 2 * time.Second
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := cli.SetupFlags(flag.CommandLine)
	if exit, err := flags.Pre(os.Args[1:], os.Stdout); exit {
		return err
	}

	var logWriters []io.Writer
	if *flags.Headless {
		logWriters = []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}}
	}

	cfg, err := flags.Setup(afero.NewOsFs(), config.BaseDefaults, logWriters)
	if err != nil {
		return err
	}
	defer telemetry.Close()

	defer func() {
		if err := recover(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", err)
			log.Fatal().Msgf("panic: %v", err)
		}
	}()

	if err := flags.Post(cfg); err != nil {
		return err
	}
	defer func() {
		if err := cfg.Save(); err != nil {
			log.Error().Err(err).Msg("error saving config")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, err := link.NewManager(nil, cfg.LinkSettings(), nil)
	if err != nil {
		return fmt.Errorf("error creating connection manager: %w", err)
	}
	mgr.Start()

	notifBroker := broker.NewBroker(ctx, mgr.Notifications())
	uiNotifs, uiID := notifBroker.Subscribe(uiBufferSize)
	logNotifs, _ := notifBroker.Subscribe(logBufferSize)
	notifBroker.Start()

	var observe func(link.Notification)
	if telemetry.Enabled() {
		observe = telemetry.Observe
	}
	sessionsLogged := make(chan struct{})
	go func() {
		defer close(sessionsLogged)
		logSessions(logNotifs, observe)
	}()

	// the front end has stopped reading by the time this runs; stopping the
	// manager closes the broker's source so the final Closed is still logged
	defer func() {
		notifBroker.Unsubscribe(uiID)
		mgr.Stop()
		select {
		case <-notifBroker.Done():
			<-sessionsLogged
		case <-time.After(shutdownTimeout):
			log.Warn().Msg("timed out waiting for notifications to drain")
		}
	}()

	log.Info().Str("version", config.AppVersion).Bool("headless", *flags.Headless).Msg("serial terminal started")

	if *flags.Headless {
		err = headless.New(os.Stdout, headless.Options{
			Controller:    mgr,
			Notifications: uiNotifs,
			Port:          *flags.Port,
			BaudRate:      cfg.BaudRate(),
		}).Run(ctx, os.Stdin)
		if err != nil {
			return fmt.Errorf("error running headless session: %w", err)
		}
		return nil
	}

	tui.SetTheme(&tview.Styles)
	term := tui.New(tview.NewApplication(), tui.Options{
		Controller:    mgr,
		Preferences:   cfg,
		Notifications: uiNotifs,
		Version:       config.AppVersion,
	})
	if err := term.Run(ctx); err != nil {
		log.Error().Err(err).Msg("error running UI")
		return fmt.Errorf("error running UI: %w", err)
	}
	return nil
}

// logSessions writes one summary entry per finished session and hands every
// notification to observe, if set.
func logSessions(notifs <-chan link.Notification, observe func(link.Notification)) {
	var (
		lines   int
		started time.Time
	)
	for n := range notifs {
		if observe != nil {
			observe(n)
		}
		switch n.Kind { //nolint:exhaustive // only session boundaries and lines count
		case link.NotificationConnecting:
			lines = 0
			started = n.Time
		case link.NotificationLine:
			lines++
		case link.NotificationClosed, link.NotificationError:
			log.Info().
				Str("session", n.SessionID).
				Str("port", n.PortID).
				Stringer("state", n.State).
				Int("lines", lines).
				Dur("duration", n.Time.Sub(started)).
				Msg("session ended")
		}
	}
}
