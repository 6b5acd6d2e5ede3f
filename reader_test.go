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

package cardrecord_test

import (
	"strings"
	"testing"

	cardrecord "github.com/arnuschky/EnRav"
	"github.com/arnuschky/EnRav/virtual"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seed stores an information block and file name directly on a card.
func seed(t *testing.T, card *virtual.Card, ib cardrecord.InfoBlock, name string) {
	t.Helper()
	raw, err := cardrecord.EncodeInfoBlock(ib)
	require.NoError(t, err)

	unit := len(card.Peek(4))
	for i := 0; i < len(raw); i += unit {
		card.Poke(4+i/unit, raw[i:i+unit])
	}

	b := 8
	data := []byte(name)
	for len(data) > 0 {
		if card.Classic() && b > 2 && (b-3)%4 == 0 {
			b++
			continue
		}
		n := min(unit, len(data))
		card.Poke(b, data[:n])
		data = data[n:]
		b++
	}
}

func header(name string) cardrecord.InfoBlock {
	return cardrecord.InfoBlock{
		Cookie:         cardrecord.MagicCookie,
		Version:        cardrecord.FormatVersion,
		Volume:         9,
		Resumable:      true,
		FileNameLength: uint16(len(name)),
	}
}

func TestReadRecord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		card      func() *virtual.Card
		name      string
		fileName  string
		wantReads []int
	}{
		{
			name:      "1k short name",
			card:      func() *virtual.Card { return virtual.NewMifare1K(nil) },
			fileName:  "/042.mp3",
			wantReads: []int{4, 8},
		},
		{
			name:      "1k three full blocks",
			card:      func() *virtual.Card { return virtual.NewMifare1K(nil) },
			fileName:  strings.Repeat("a", 48),
			wantReads: []int{4, 8, 9, 10},
		},
		{
			name:      "1k crosses trailer",
			card:      func() *virtual.Card { return virtual.NewMifare1K(nil) },
			fileName:  strings.Repeat("b", 49),
			wantReads: []int{4, 8, 9, 10, 12},
		},
		{
			name:      "mini",
			card:      func() *virtual.Card { return virtual.NewMifareMini(nil) },
			fileName:  "/music/track.ogg",
			wantReads: []int{4, 8},
		},
		{
			name:      "4k",
			card:      func() *virtual.Card { return virtual.NewMifare4K(nil) },
			fileName:  strings.Repeat("c", 20),
			wantReads: []int{4, 8, 9},
		},
		{
			name:      "ntag pages",
			card:      func() *virtual.Card { return virtual.NewNTAG215(nil) },
			fileName:  "/042.mp3",
			wantReads: []int{4, 5, 6, 7, 8, 9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			card := tt.card()
			seed(t, card, header(tt.fileName), tt.fileName)
			h, rf, _ := newHandler(t, card)

			rec, err := h.Read()
			require.NoError(t, err)
			assert.True(t, rec.Valid)
			assert.Equal(t, tt.fileName, rec.FileName)
			assert.Equal(t, uint8(9), rec.Volume)
			assert.True(t, rec.Resumable)
			assert.Equal(t, tt.wantReads, rf.Reads())
		})
	}
}

func TestReadAuthenticatesPerSector(t *testing.T) {
	t.Parallel()

	name := strings.Repeat("x", 60)
	card := virtual.NewMifare1K(nil)
	seed(t, card, header(name), name)
	h, rf, _ := newHandler(t, card)

	rec := h.ReadRecord()
	require.True(t, rec.Valid)
	assert.Equal(t, []int{7, 11, 15}, rf.Auths())
	for _, b := range rf.Reads() {
		assert.False(t, b > 2 && (b-3)%4 == 0, "read trailer block %d", b)
	}
}

func TestReadRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr   error
		prepare   func(t *testing.T, card *virtual.Card, rf *virtual.Transceiver)
		name      string
		wantReads []int
	}{
		{
			name:      "blank card",
			prepare:   func(*testing.T, *virtual.Card, *virtual.Transceiver) {},
			wantErr:   cardrecord.ErrForeignCard,
			wantReads: []int{4},
		},
		{
			name: "foreign cookie",
			prepare: func(t *testing.T, card *virtual.Card, _ *virtual.Transceiver) {
				ib := header("/001.mp3")
				ib.Cookie = 0xDEADBEEF
				seed(t, card, ib, "/001.mp3")
			},
			wantErr:   cardrecord.ErrForeignCard,
			wantReads: []int{4},
		},
		{
			name: "unknown version skips file name",
			prepare: func(t *testing.T, card *virtual.Card, _ *virtual.Transceiver) {
				ib := header("/001.mp3")
				ib.Version = 2
				seed(t, card, ib, "/001.mp3")
			},
			wantErr:   cardrecord.ErrUnknownVersion,
			wantReads: []int{4},
		},
		{
			name: "zero length",
			prepare: func(t *testing.T, card *virtual.Card, _ *virtual.Transceiver) {
				seed(t, card, header(""), "")
			},
			wantErr:   cardrecord.ErrEmptyFileName,
			wantReads: []int{4},
		},
		{
			name: "oversize length",
			prepare: func(t *testing.T, card *virtual.Card, _ *virtual.Transceiver) {
				ib := header("")
				ib.FileNameLength = 300
				seed(t, card, ib, "")
			},
			wantErr:   cardrecord.ErrCorruptHeader,
			wantReads: []int{4},
		},
		{
			name: "name starts with NUL",
			prepare: func(t *testing.T, card *virtual.Card, _ *virtual.Transceiver) {
				seed(t, card, header("abcd"), "\x00bcd")
			},
			wantErr:   cardrecord.ErrEmptyFileName,
			wantReads: []int{4, 8},
		},
		{
			name: "wrong key",
			prepare: func(_ *testing.T, card *virtual.Card, _ *virtual.Transceiver) {
				card.SetKey(cardrecord.Key{1, 2, 3, 4, 5, 6})
			},
			wantErr: cardrecord.ErrAuthentication,
		},
		{
			name: "information block read fails",
			prepare: func(_ *testing.T, _ *virtual.Card, rf *virtual.Transceiver) {
				rf.FailReadAt(4)
			},
			wantErr:   cardrecord.ErrCommunication,
			wantReads: []int{4},
		},
		{
			name: "file name read fails",
			prepare: func(t *testing.T, card *virtual.Card, rf *virtual.Transceiver) {
				name := strings.Repeat("n", 40)
				seed(t, card, header(name), name)
				rf.FailReadAt(9)
			},
			wantErr:   cardrecord.ErrCommunication,
			wantReads: []int{4, 8, 9},
		},
		{
			name: "card removed",
			prepare: func(_ *testing.T, _ *virtual.Card, rf *virtual.Transceiver) {
				rf.Remove()
			},
			wantErr: cardrecord.ErrUnsupportedCard,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			card := virtual.NewMifare1K(nil)
			h, rf, _ := newHandler(t, card)
			tt.prepare(t, card, rf)

			rec, err := h.Read()
			require.ErrorIs(t, err, tt.wantErr)
			assert.False(t, rec.Valid)
			assert.False(t, cardrecord.IsFatal(err))
			assert.Equal(t, tt.wantReads, rf.Reads())
			assert.False(t, h.ReadRecord().Valid)
		})
	}
}

func TestReadUnsupportedCard(t *testing.T) {
	t.Parallel()

	h, rf, _ := newHandler(t, virtual.NewCard(cardrecord.Identity{1, 2, 3, 4, 5, 6, 7}, 0x20))
	_, err := h.Read()
	require.ErrorIs(t, err, cardrecord.ErrUnsupportedCard)
	assert.Empty(t, rf.Reads())
	assert.Empty(t, rf.Auths())
}

func TestReadBlockErrorCarriesAddress(t *testing.T) {
	t.Parallel()

	name := strings.Repeat("n", 40)
	card := virtual.NewMifare1K(nil)
	seed(t, card, header(name), name)
	h, rf, _ := newHandler(t, card)
	rf.FailReadAt(10)

	_, err := h.Read()
	var be *cardrecord.BlockError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 10, be.Block)
	assert.Equal(t, cardrecord.StatusCRCWrong, cardrecord.StatusOf(err))
}

func TestReadUltralightPassword(t *testing.T) {
	t.Parallel()

	pwd := [4]byte{0xDE, 0xAD, 0xBE, 0xEF}
	key := cardrecord.Key{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x00}

	card := virtual.NewNTAG215(nil)
	seed(t, card, header("/007.mp3"), "/007.mp3")
	card.SetPassword(pwd, [2]byte{0x12, 0x34}, 4)

	h, _, _ := newHandler(t, card, cardrecord.WithKey(key))
	rec := h.ReadRecord()
	assert.True(t, rec.Valid)
	assert.Equal(t, "/007.mp3", rec.FileName)

	wrong, _, _ := newHandler(t, card)
	_, err := wrong.Read()
	assert.ErrorIs(t, err, cardrecord.ErrAuthentication)
}

func TestReadPlainUltralightRejected(t *testing.T) {
	t.Parallel()

	card := virtual.NewUltralight(nil)
	seed(t, card, header("/001.mp3"), "/001.mp3")
	h, _, _ := newHandler(t, card)

	_, err := h.Read()
	assert.ErrorIs(t, err, cardrecord.ErrAuthentication)
}
