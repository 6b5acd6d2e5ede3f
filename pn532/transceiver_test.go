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

package pn532_test

import (
	"errors"
	"testing"

	cardrecord "github.com/arnuschky/EnRav"
	testutil "github.com/arnuschky/EnRav/internal/testing"
	"github.com/arnuschky/EnRav/pn532"
	"github.com/arnuschky/EnRav/virtual"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransceiver(card *virtual.Card) (*pn532.Transceiver, *testutil.PN532Sim) {
	sim := testutil.NewPN532Sim(card)
	return pn532.NewTransceiver(sim, pn532.WithLogger(zerolog.Nop())), sim
}

func TestInitAndFirmware(t *testing.T) {
	t.Parallel()

	d, sim := newTransceiver(nil)
	require.NoError(t, d.Init())
	version, err := d.FirmwareVersion()
	require.NoError(t, err)
	assert.Equal(t, "PN532 firmware 1.6", version)
	assert.Equal(t, []byte{
		pn532.CmdSAMConfiguration, pn532.CmdRFConfiguration, pn532.CmdGetFirmwareVersion,
	}, sim.Commands())
}

func TestFirmwareVersionRejectsGarbage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr error
		name    string
		resp    []byte
	}{
		{name: "all zero", resp: []byte{0x03, 0x00, 0x00, 0x00, 0x00}, wantErr: pn532.ErrBadFirmware},
		{name: "all ones", resp: []byte{0x03, 0xFF, 0xFF, 0xFF, 0xFF}, wantErr: pn532.ErrBadFirmware},
		{name: "short", resp: []byte{0x03, 0x32}, wantErr: pn532.ErrInvalidResponse},
		{name: "wrong response code", resp: []byte{0x15, 0x32, 0x01, 0x06, 0x07}, wantErr: pn532.ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, sim := newTransceiver(nil)
			sim.SetResponse(pn532.CmdGetFirmwareVersion, tt.resp)
			_, err := d.FirmwareVersion()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDetectAndSerial(t *testing.T) {
	t.Parallel()

	card := virtual.NewMifare1K(nil)
	d, sim := newTransceiver(card)

	assert.True(t, d.IsNewCardPresent())
	assert.False(t, d.IsNewCardPresent(), "target already held")
	assert.Equal(t, cardrecord.CardTypeMifare1K, d.CardType())

	id, err := d.ReadCardSerial()
	require.NoError(t, err)
	assert.Equal(t, virtual.Test1KUID, id)

	require.NoError(t, d.Halt())
	assert.Equal(t, cardrecord.CardTypeUnknown, d.CardType())

	sim.Remove()
	assert.False(t, d.IsNewCardPresent())
	err = d.Wakeup()
	assert.Equal(t, cardrecord.StatusTimeout, cardrecord.StatusOf(err))
	_, err = d.ReadCardSerial()
	assert.Error(t, err)
}

func TestTransportErrorsMapToStatus(t *testing.T) {
	t.Parallel()

	d, sim := newTransceiver(virtual.NewMifare1K(nil))
	sim.SetError(pn532.CmdInListPassiveTarget, pn532.NewTimeoutError("receiveFrame", "sim"))
	err := d.Wakeup()
	assert.Equal(t, cardrecord.StatusTimeout, cardrecord.StatusOf(err))
	assert.ErrorIs(t, err, pn532.ErrTransportTimeout)

	sim.SetError(pn532.CmdInListPassiveTarget, errors.New("bus fault"))
	err = d.Wakeup()
	assert.Equal(t, cardrecord.StatusCommError, cardrecord.StatusOf(err))
}

func TestStatusBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status byte
		want   cardrecord.StatusCode
	}{
		{name: "timeout", status: 0x01, want: cardrecord.StatusTimeout},
		{name: "crc", status: 0x02, want: cardrecord.StatusCRCWrong},
		{name: "collision", status: 0x06, want: cardrecord.StatusCollision},
		{name: "buffer", status: 0x07, want: cardrecord.StatusNoRoom},
		{name: "mifare auth", status: 0x14, want: cardrecord.StatusAuthFailed},
		{name: "card gone", status: 0x2B, want: cardrecord.StatusTimeout},
		{name: "not acceptable", status: 0x27, want: cardrecord.StatusInvalid},
		{name: "more info bit", status: 0x41, want: cardrecord.StatusTimeout},
		{name: "other", status: 0x0D, want: cardrecord.StatusCommError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, sim := newTransceiver(virtual.NewMifare1K(nil))
			require.True(t, d.IsNewCardPresent())
			sim.SetResponse(pn532.CmdInDataExchange, testutil.BuildStatusResponse(pn532.CmdInDataExchange, tt.status))
			_, err := d.ReadBlock(4)
			assert.Equal(t, tt.want, cardrecord.StatusOf(err))
		})
	}
}

func TestClassicBlockAccess(t *testing.T) {
	t.Parallel()

	card := virtual.NewMifare1K(nil)
	d, _ := newTransceiver(card)
	id, err := d.ReadCardSerial()
	require.NoError(t, err)

	_, err = d.ReadBlock(4)
	assert.Error(t, err, "sector not authenticated")

	err = d.Authenticate(cardrecord.KeyA, 7, cardrecord.Key{1, 2, 3, 4, 5, 6}, id)
	assert.Equal(t, cardrecord.StatusAuthFailed, cardrecord.StatusOf(err))

	require.NoError(t, d.Authenticate(cardrecord.KeyA, 7, cardrecord.DefaultKey, id))
	var data [16]byte
	copy(data[:], "hello, sector 1!")
	require.NoError(t, d.WriteBlock(5, data))
	got, err := d.ReadBlock(5)
	require.NoError(t, err)
	assert.Equal(t, data[:], got)
	assert.Equal(t, data[:], card.Peek(5))

	assert.Error(t, d.WriteBlock(7, data), "trailer is write protected")
}

func TestUltralightAccess(t *testing.T) {
	t.Parallel()

	card := virtual.NewNTAG215(nil)
	card.SetPassword([4]byte{1, 2, 3, 4}, [2]byte{0xAA, 0xBB}, 4)
	d, _ := newTransceiver(card)
	_, err := d.ReadCardSerial()
	require.NoError(t, err)
	assert.Equal(t, cardrecord.CardTypeMifareUltralight, d.CardType())

	_, err = d.AuthenticateUltralight([4]byte{9, 9, 9, 9})
	assert.Equal(t, cardrecord.StatusTimeout, cardrecord.StatusOf(err))

	pack, err := d.AuthenticateUltralight([4]byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, [2]byte{0xAA, 0xBB}, pack)

	require.NoError(t, d.WriteBlock(8, [16]byte{'a', 'b', 'c', 'd', 'x', 'x'}))
	assert.Equal(t, []byte("abcd"), card.Peek(8))
}

func TestHandlerRoundTripThroughPN532(t *testing.T) {
	t.Parallel()

	tests := []struct {
		card func() *virtual.Card
		name string
	}{
		{name: "mini", card: func() *virtual.Card { return virtual.NewMifareMini(nil) }},
		{name: "1k", card: func() *virtual.Card { return virtual.NewMifare1K(nil) }},
		{name: "4k", card: func() *virtual.Card { return virtual.NewMifare4K(nil) }},
		{name: "ntag215", card: func() *virtual.Card { return virtual.NewNTAG215(nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, _ := newTransceiver(tt.card())
			h, err := cardrecord.New(d, cardrecord.WithLogger(zerolog.Nop()))
			require.NoError(t, err)
			require.NoError(t, h.Connect())

			require.True(t, h.PollForNewCard())
			id, ok := h.FetchIdentity()
			require.True(t, ok)

			want := cardrecord.Record{FileName: "/podcasts/episode-0042.mp3", Volume: 17, Resumable: true}
			require.NoError(t, h.Write(want, id))
			require.True(t, h.IsKnownCardStillPresent(id))
			got, err := h.Read()
			require.NoError(t, err)
			assert.True(t, want.Equal(got))
		})
	}
}
