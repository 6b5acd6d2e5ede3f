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

// Package polling watches a reader for cards carrying records and
// serialises record writes onto the goroutine that owns the reader.
package polling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	cardrecord "github.com/arnuschky/EnRav"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is how often the field is checked
const DefaultPollInterval = 250 * time.Millisecond

var (
	ErrNoCard             = errors.New("no card on the reader")
	ErrWatcherNotRunning  = errors.New("watcher is not running")
	ErrWatcherRunning     = errors.New("watcher is already running")
	ErrWriteAlreadyQueued = errors.New("write operation already pending")
)

// writeRequest is a record write waiting for the watcher goroutine
type writeRequest struct {
	result chan error
	record cardrecord.Record
}

// Watcher polls a handler and reports cards arriving and leaving. All
// reader access happens on the goroutine running Run or Step.
type Watcher struct {
	clock   clockwork.Clock
	handler *cardrecord.Handler
	writes  chan *writeRequest

	// OnCardDetected runs when a card arrives. err tells why rec is not
	// valid.
	OnCardDetected func(id cardrecord.Identity, rec cardrecord.Record, err error)

	// OnCardRemoved runs when the tracked card leaves the field.
	OnCardRemoved func(id cardrecord.Identity)

	log      zerolog.Logger
	state    CardState
	interval time.Duration
	stateMu  sync.Mutex
	writeMu  sync.Mutex
	running  atomic.Bool
}

// Option configures a Watcher
type Option func(*Watcher)

// WithClock replaces the wall clock
func WithClock(clock clockwork.Clock) Option {
	return func(w *Watcher) {
		w.clock = clock
	}
}

// WithLogger sets the watcher's logger
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Watcher) {
		w.log = logger
	}
}

// WithPollInterval sets the time between polls
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher creates a watcher for h
func NewWatcher(h *cardrecord.Handler, opts ...Option) (*Watcher, error) {
	if h == nil {
		return nil, errors.New("handler cannot be nil")
	}
	w := &Watcher{
		handler:  h,
		clock:    clockwork.NewRealClock(),
		log:      log.With().Str("component", "watcher").Logger(),
		interval: DefaultPollInterval,
		writes:   make(chan *writeRequest),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// State returns a snapshot of the tracked card
func (w *Watcher) State() CardState {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.state.Clone()
}

func (w *Watcher) update(fn func(cs *CardState)) {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	fn(&w.state)
}

// IsRunning reports whether Run is active
func (w *Watcher) IsRunning() bool {
	return w.running.Load()
}

// Run polls until ctx is cancelled, servicing queued writes between polls
func (w *Watcher) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrWatcherRunning
	}
	defer w.running.Store(false)

	for {
		w.Step()
		timer := w.clock.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case req := <-w.writes:
			timer.Stop()
			req.result <- w.write(req.record)
		case <-timer.Chan():
		}
	}
}

// Step performs one detection or presence cycle
func (w *Watcher) Step() {
	cs := w.State()
	if !cs.Present() {
		w.detect()
		return
	}
	if w.handler.IsKnownCardStillPresent(cs.ID) {
		w.update(func(s *CardState) { s.LastSeen = w.clock.Now() })
		return
	}
	w.log.Info().Stringer("uid", cs.ID).Msg("card removed")
	w.update(func(s *CardState) { s.TransitionToIdle() })
	if w.OnCardRemoved != nil {
		w.OnCardRemoved(cs.ID)
	}
}

func (w *Watcher) detect() {
	if !w.handler.PollForNewCard() {
		return
	}
	id, ok := w.handler.FetchIdentity()
	if !ok {
		return
	}
	w.update(func(s *CardState) { s.TransitionToReading(id, w.clock.Now()) })
	rec, err := w.handler.Read()
	w.update(func(s *CardState) { s.TransitionToPresent(rec, w.clock.Now()) })
	w.log.Debug().Stringer("uid", id).Bool("valid", rec.Valid).Msg("card detected")
	if w.OnCardDetected != nil {
		w.OnCardDetected(id, rec, err)
	}
}

// write runs on the watcher goroutine against the tracked card
func (w *Watcher) write(rec cardrecord.Record) error {
	cs := w.State()
	if !cs.Present() {
		return ErrNoCard
	}
	w.update(func(s *CardState) { s.TransitionToWriting() })
	err := w.handler.Write(rec, cs.ID)
	w.update(func(s *CardState) {
		if err == nil {
			rec.Valid = true
			s.TransitionToPresent(rec, w.clock.Now())
			return
		}
		s.State = StateCardPresent
	})
	return err
}

// Write queues rec for the card on the reader and waits for the result
func (w *Watcher) Write(ctx context.Context, rec cardrecord.Record) error {
	if !w.running.Load() {
		return ErrWatcherNotRunning
	}
	if !w.writeMu.TryLock() {
		return ErrWriteAlreadyQueued
	}
	defer w.writeMu.Unlock()

	req := &writeRequest{record: rec, result: make(chan error, 1)}
	select {
	case w.writes <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
