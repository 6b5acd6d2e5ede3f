// EnRav
// Copyright (c) 2025 The EnRav Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of EnRav.
//
// EnRav is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// EnRav is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with EnRav; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	cardrecord "github.com/arnuschky/EnRav"
	"github.com/arnuschky/EnRav/inspect"
	"github.com/arnuschky/EnRav/polling"
	"github.com/jonboulle/clockwork"
)

// app drives one handler for the lifetime of a command
type app struct {
	clock    clockwork.Clock
	handler  *cardrecord.Handler
	out      io.Writer
	interval time.Duration
	outMu    sync.Mutex
}

func (a *app) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	_, _ = fmt.Fprintf(a.out, format, args...)
}

func (a *app) printRecord(rec cardrecord.Record) {
	a.printf("  file:      %s\n  volume:    %d\n  resumable: %t\n", rec.FileName, rec.Volume, rec.Resumable)
}

// waitForCard polls until a card is selected or ctx ends
func (a *app) waitForCard(ctx context.Context) (cardrecord.Identity, error) {
	for {
		if a.handler.PollForNewCard() {
			if id, ok := a.handler.FetchIdentity(); ok {
				a.printf("Card %s (%s)\n", id, a.handler.Transceiver().CardType())
				return id, nil
			}
		}
		timer := a.clock.NewTimer(a.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("no card detected: %w", ctx.Err())
		case <-timer.Chan():
		}
	}
}

func (a *app) read(ctx context.Context) error {
	if _, err := a.waitForCard(ctx); err != nil {
		return err
	}
	rec, err := a.handler.Read()
	if err != nil {
		return fmt.Errorf("failed to read record: %w", err)
	}
	a.printRecord(rec)
	return nil
}

// write stores rec on the next card and reads it back
func (a *app) write(ctx context.Context, rec cardrecord.Record) error {
	id, err := a.waitForCard(ctx)
	if err != nil {
		return err
	}
	if err := a.handler.Write(rec, id); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	a.printf("Write successful, verifying...\n")

	// The write leaves the card halted.
	if !a.handler.IsKnownCardStillPresent(id) {
		return fmt.Errorf("verify: %w", cardrecord.ErrCardLost)
	}
	got, err := a.handler.Read()
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if !got.Equal(rec) {
		return fmt.Errorf("verify: read back %+v, wrote %+v", got, rec)
	}
	a.printRecord(got)
	return nil
}

func (a *app) watch(ctx context.Context) error {
	w, err := polling.NewWatcher(a.handler,
		polling.WithClock(a.clock),
		polling.WithPollInterval(a.interval),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.OnCardDetected = func(id cardrecord.Identity, rec cardrecord.Record, err error) {
		if err != nil {
			a.printf("Card %s detected, no record: %v\n", id, err)
			return
		}
		a.printf("Card %s detected\n", id)
		a.printRecord(rec)
	}
	w.OnCardRemoved = func(id cardrecord.Identity) {
		a.printf("Card %s removed\n", id)
	}

	a.printf("Watching for cards (poll interval %s)...\n", a.interval)
	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// inspect reports the record of an own card or the NDEF content of a
// foreign Ultralight/NTAG card
func (a *app) inspect(ctx context.Context) error {
	if _, err := a.waitForCard(ctx); err != nil {
		return err
	}
	rec, err := a.handler.Read()
	if err == nil {
		a.printf("Card carries a record:\n")
		a.printRecord(rec)
		return nil
	}
	a.printf("No record: %v\n", err)

	rep, err := inspect.Type2(a.handler.Transceiver())
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	a.printf("%s", rep)
	return nil
}
