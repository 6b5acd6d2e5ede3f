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

package i2c

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	cardrecord "github.com/arnuschky/EnRav"
	"github.com/arnuschky/EnRav/internal/frame"
	testutil "github.com/arnuschky/EnRav/internal/testing"
	"github.com/arnuschky/EnRav/pn532"
	"github.com/arnuschky/EnRav/virtual"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus answers I2C transactions on behalf of a simulated PN532. Every
// read returns the status byte followed by the next queued message.
type fakeBus struct {
	sim      *testutil.PN532Sim
	queue    [][]byte
	lastResp []byte
	written  [][]byte
	mu       sync.Mutex
	corrupt  int
	silent   bool
	busErr   error
}

func responseFrame(data []byte) []byte {
	length := byte(len(data) + 1)
	frm := []byte{0x00, 0x00, 0xFF, length, frame.CalculateLengthChecksum(length), frame.Pn532ToHost}
	frm = append(frm, data...)
	return append(frm, frame.CalculateDataChecksum(frame.Pn532ToHost, data), 0x00)
}

func (b *fakeBus) Tx(w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.busErr != nil {
		return b.busErr
	}
	if len(w) > 0 {
		b.write(w)
	}
	if len(r) > 0 {
		b.read(r)
	}
	return nil
}

func (b *fakeBus) write(w []byte) {
	b.written = append(b.written, append([]byte(nil), w...))
	switch {
	case b.silent, bytes.Equal(w, frame.AckFrame):
		return
	case bytes.Equal(w, frame.NackFrame):
		b.emit()
		return
	}
	off, err := frame.FindStart(w)
	if err != nil {
		return
	}
	body := w[off+2 : off+2+int(w[off])]
	resp, err := b.sim.SendCommand(body[1], body[2:])
	if err != nil {
		return
	}
	b.lastResp = responseFrame(resp)
	b.queue = append(b.queue, frame.AckFrame)
	b.emit()
}

func (b *fakeBus) emit() {
	msg := append([]byte(nil), b.lastResp...)
	if b.corrupt > 0 {
		b.corrupt--
		msg[len(msg)-2]++
	}
	b.queue = append(b.queue, msg)
}

func (b *fakeBus) read(r []byte) {
	clear(r)
	if len(b.queue) == 0 {
		return
	}
	r[0] = pn532Ready
	copy(r[1:], b.queue[0])
	b.queue = b.queue[1:]
}

func (b *fakeBus) writes() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.written...)
}

func newFake(card *virtual.Card) (*Transport, *fakeBus) {
	b := &fakeBus{sim: testutil.NewPN532Sim(card)}
	return newTransport(b, "fake"), b
}

func TestTransportCreation(t *testing.T) {
	t.Parallel()

	transport := &Transport{busName: "1"}
	assert.Equal(t, pn532.TransportI2C, transport.Type())
	assert.False(t, transport.IsConnected())

	_, err := transport.SendCommand(pn532.CmdGetFirmwareVersion, nil)
	require.ErrorIs(t, err, pn532.ErrTransportClosed)
	require.NoError(t, transport.Close())
}

func TestSendCommand(t *testing.T) {
	t.Parallel()

	transport, bus := newFake(nil)
	assert.True(t, transport.IsConnected())

	resp, err := transport.SendCommand(pn532.CmdGetFirmwareVersion, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x32, 0x01, 0x06, 0x07}, resp)

	writes := bus.writes()
	require.Len(t, writes, 2)
	assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0x02, 0xFE, 0xD4, 0x02, 0x2A, 0x00}, writes[0])
	assert.Equal(t, frame.AckFrame, writes[1])
}

func TestCorruptedFrameIsNacked(t *testing.T) {
	t.Parallel()

	transport, bus := newFake(nil)
	bus.corrupt = 1

	resp, err := transport.SendCommand(pn532.CmdGetFirmwareVersion, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), resp[0])

	writes := bus.writes()
	require.Len(t, writes, 3)
	assert.Equal(t, frame.NackFrame, writes[1])
}

func TestCorruptionExhaustsRetries(t *testing.T) {
	t.Parallel()

	transport, bus := newFake(nil)
	bus.corrupt = maxResends + 1

	_, err := transport.SendCommand(pn532.CmdGetFirmwareVersion, nil)
	require.ErrorIs(t, err, pn532.ErrChecksumMismatch)
}

func TestNoAck(t *testing.T) {
	t.Parallel()

	transport, bus := newFake(nil)
	bus.silent = true
	require.NoError(t, transport.SetTimeout(20*time.Millisecond))

	_, err := transport.SendCommand(pn532.CmdGetFirmwareVersion, nil)
	require.ErrorIs(t, err, pn532.ErrNoACK)
}

func TestBusFailure(t *testing.T) {
	t.Parallel()

	transport, bus := newFake(nil)
	bus.busErr = errors.New("remote I/O error")

	_, err := transport.SendCommand(pn532.CmdGetFirmwareVersion, nil)
	require.ErrorIs(t, err, pn532.ErrTransportWrite)
	assert.True(t, pn532.IsRetryable(err))
}

func TestHandlerOverI2C(t *testing.T) {
	t.Parallel()

	transport, _ := newFake(virtual.NewNTAG215(nil))
	defer func() { assert.NoError(t, transport.Close()) }()

	h, err := cardrecord.New(
		pn532.NewTransceiver(transport, pn532.WithLogger(zerolog.Nop())),
		cardrecord.WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	require.NoError(t, h.Connect())
	require.True(t, h.PollForNewCard())
	id, ok := h.FetchIdentity()
	require.True(t, ok)

	want := cardrecord.Record{FileName: "/stories/bear.mp3", Volume: 12}
	require.True(t, h.WriteRecord(want, id))
	require.True(t, h.IsKnownCardStillPresent(id))
	got := h.ReadRecord()
	assert.True(t, got.Valid)
	assert.True(t, want.Equal(got))
}
