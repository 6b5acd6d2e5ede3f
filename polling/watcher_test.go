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

package polling_test

import (
	"context"
	"testing"
	"time"

	cardrecord "github.com/arnuschky/EnRav"
	"github.com/arnuschky/EnRav/polling"
	"github.com/arnuschky/EnRav/virtual"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const interval = 100 * time.Millisecond

type detection struct {
	err error
	id  cardrecord.Identity
	rec cardrecord.Record
}

type fixture struct {
	rf       *virtual.Transceiver
	handler  *cardrecord.Handler
	watcher  *polling.Watcher
	clock    *clockwork.FakeClock
	detected chan detection
	removed  chan cardrecord.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rf:       virtual.NewTransceiver(),
		clock:    clockwork.NewFakeClock(),
		detected: make(chan detection, 8),
		removed:  make(chan cardrecord.Identity, 8),
	}
	var err error
	f.handler, err = cardrecord.New(f.rf, cardrecord.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	f.watcher, err = polling.NewWatcher(f.handler,
		polling.WithClock(f.clock),
		polling.WithPollInterval(interval),
		polling.WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	f.watcher.OnCardDetected = func(id cardrecord.Identity, rec cardrecord.Record, err error) {
		f.detected <- detection{id: id, rec: rec, err: err}
	}
	f.watcher.OnCardRemoved = func(id cardrecord.Identity) {
		f.removed <- id
	}
	return f
}

// seed writes rec onto card and leaves the card idle in the field
func (f *fixture) seed(t *testing.T, card *virtual.Card, rec cardrecord.Record) {
	t.Helper()
	f.rf.Place(card)
	require.True(t, f.handler.PollForNewCard())
	id, ok := f.handler.FetchIdentity()
	require.True(t, ok)
	require.True(t, f.handler.WriteRecord(rec, id))
	f.rf.Place(card)
}

// start runs the watcher until the test ends
func (f *fixture) start(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	done := make(chan error, 1)
	go func() { done <- f.watcher.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
	return ctx
}

// tick waits for the watcher to sleep and wakes it for the next cycle
func (f *fixture) tick(ctx context.Context, t *testing.T) {
	t.Helper()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(interval)
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for event")
	}
	var zero T
	return zero
}

func TestNewWatcherRequiresHandler(t *testing.T) {
	t.Parallel()

	_, err := polling.NewWatcher(nil)
	assert.Error(t, err)
}

func TestStepLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	want := cardrecord.Record{FileName: "/stories/01.mp3", Volume: 8, Resumable: true}
	f.seed(t, virtual.NewMifare1K(nil), want)

	f.watcher.Step()
	ev := receive(t, f.detected)
	require.NoError(t, ev.err)
	assert.Equal(t, virtual.Test1KUID, ev.id)
	assert.True(t, want.Equal(ev.rec))
	assert.True(t, ev.rec.Valid)

	state := f.watcher.State()
	assert.Equal(t, polling.StateCardPresent, state.State)
	assert.Equal(t, virtual.Test1KUID, state.ID)

	f.watcher.Step()
	assert.Empty(t, f.detected)
	assert.Empty(t, f.removed)

	f.rf.Remove()
	f.watcher.Step()
	assert.Equal(t, virtual.Test1KUID, receive(t, f.removed))
	assert.Equal(t, polling.StateIdle, f.watcher.State().State)
	assert.Equal(t, "idle", f.watcher.State().State.String())
}

func TestStepReportsForeignCard(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	card := virtual.NewMifare1K(nil)
	card.Poke(4, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01})
	f.rf.Place(card)

	f.watcher.Step()
	ev := receive(t, f.detected)
	assert.ErrorIs(t, ev.err, cardrecord.ErrForeignCard)
	assert.False(t, ev.rec.Valid)
	assert.True(t, f.watcher.State().Present())
}

func TestRunDetectsAndRemoves(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.rf.Place(virtual.NewNTAG215(nil))
	ctx := f.start(t)

	ev := receive(t, f.detected)
	assert.Equal(t, virtual.TestUltralightUID, ev.id)
	assert.False(t, ev.rec.Valid, "blank card")

	f.rf.Remove()
	f.tick(ctx, t)
	assert.Equal(t, virtual.TestUltralightUID, receive(t, f.removed))

	f.rf.Place(virtual.NewMifareMini(nil))
	f.tick(ctx, t)
	assert.Equal(t, virtual.TestMiniUID, receive(t, f.detected).id)
}

func TestRunQueuedWrite(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	card := virtual.NewMifare4K(nil)
	f.rf.Place(card)
	ctx := f.start(t)
	receive(t, f.detected)

	rec := cardrecord.Record{FileName: "/music/album/track.flac", Volume: 20}
	require.NoError(t, f.watcher.Write(ctx, rec))

	state := f.watcher.State()
	assert.True(t, rec.Equal(state.Record))
	assert.True(t, state.Record.Valid)
	assert.Equal(t, []byte{0x56, 0x52, 0x4E, 0x45}, card.Peek(4)[:4])

	// card is still tracked after the write halted it
	f.tick(ctx, t)
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	assert.Empty(t, f.removed)
	assert.Equal(t, polling.StateCardPresent, f.watcher.State().State)
}

func TestRunWriteWithoutCard(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := f.start(t)
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))

	err := f.watcher.Write(ctx, cardrecord.Record{FileName: "/a.mp3"})
	assert.ErrorIs(t, err, polling.ErrNoCard)
}

func TestRunWriteRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.rf.Place(virtual.NewMifare1K(nil))
	ctx := f.start(t)
	receive(t, f.detected)

	err := f.watcher.Write(ctx, cardrecord.Record{})
	require.ErrorIs(t, err, cardrecord.ErrEmptyFileName)
	assert.Equal(t, polling.StateCardPresent, f.watcher.State().State)
	assert.False(t, f.watcher.State().Record.Valid)
}

func TestWriteRequiresRunningWatcher(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	err := f.watcher.Write(context.Background(), cardrecord.Record{FileName: "/a.mp3"})
	assert.ErrorIs(t, err, polling.ErrWatcherNotRunning)
	assert.False(t, f.watcher.IsRunning())
}

func TestRunTwice(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := f.start(t)
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	assert.True(t, f.watcher.IsRunning())
	assert.ErrorIs(t, f.watcher.Run(ctx), polling.ErrWatcherRunning)
}
