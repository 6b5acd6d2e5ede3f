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

package inspect_test

import (
	"testing"

	"github.com/arnuschky/EnRav/inspect"
	"github.com/arnuschky/EnRav/virtual"
	"github.com/hsanjuan/go-ndef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pokePages(card *virtual.Card, start int, data []byte) {
	for i := 0; i < len(data); i += 4 {
		card.Poke(start+i/4, data[i:min(i+4, len(data))])
	}
}

func tlv(msg []byte) []byte {
	out := []byte{0x03}
	if len(msg) < 0xFF {
		out = append(out, byte(len(msg)))
	} else {
		out = append(out, 0xFF, byte(len(msg)>>8), byte(len(msg)))
	}
	out = append(out, msg...)
	return append(out, 0xFE)
}

func selected(t *testing.T, card *virtual.Card) *virtual.Transceiver {
	t.Helper()
	rf := virtual.NewTransceiver()
	rf.Place(card)
	require.True(t, rf.IsNewCardPresent())
	_, err := rf.ReadCardSerial()
	require.NoError(t, err)
	return rf
}

func TestType2TextRecord(t *testing.T) {
	t.Parallel()

	msg, err := ndef.NewTextMessage("hello box", "en").Marshal()
	require.NoError(t, err)
	card := virtual.NewNTAG215(nil)
	pokePages(card, 4, tlv(msg))

	rep, err := inspect.Type2(selected(t, card))
	require.NoError(t, err)
	assert.Equal(t, "1.0", rep.Version)
	assert.Equal(t, 496, rep.DataSize)
	assert.Equal(t, len(msg), rep.MessageSize)
	require.Len(t, rep.Records, 1)
	assert.Equal(t, "well-known", rep.Records[0].TNF)
	assert.Equal(t, "T", rep.Records[0].Type)
	assert.Equal(t, "hello box", rep.Records[0].Text)
	assert.Contains(t, rep.String(), `"hello box"`)
}

func TestType2LongMessage(t *testing.T) {
	t.Parallel()

	uri := "https://example.org/"
	for len(uri) < 300 {
		uri += "abcdefghij"
	}
	msg, err := ndef.NewURIMessage(uri).Marshal()
	require.NoError(t, err)
	card := virtual.NewNTAG215(nil)
	// lock control TLV ahead of the message
	data := append([]byte{0x01, 0x03, 0xA0, 0x0C, 0x34}, tlv(msg)...)
	pokePages(card, 4, data)

	rep, err := inspect.Type2(selected(t, card))
	require.NoError(t, err)
	require.Len(t, rep.Records, 1)
	assert.Equal(t, "U", rep.Records[0].Type)
	assert.Equal(t, len(msg), rep.MessageSize)
}

func TestType2Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr error
		card    func() *virtual.Card
		name    string
	}{
		{
			name:    "classic card",
			card:    func() *virtual.Card { return virtual.NewMifare1K(nil) },
			wantErr: inspect.ErrNotType2,
		},
		{
			name:    "no capability container",
			card:    func() *virtual.Card { return virtual.NewUltralight(nil) },
			wantErr: inspect.ErrNotNDEFFormatted,
		},
		{
			name: "empty NDEF TLV",
			card: func() *virtual.Card {
				c := virtual.NewNTAG215(nil)
				pokePages(c, 4, []byte{0x03, 0x00, 0xFE})
				return c
			},
			wantErr: inspect.ErrNoNDEF,
		},
		{
			name:    "blank data area",
			card:    func() *virtual.Card { return virtual.NewNTAG215(nil) },
			wantErr: inspect.ErrNoNDEF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := inspect.Type2(selected(t, tt.card()))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFindNDEF(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr error
		name    string
		data    []byte
		want    []byte
	}{
		{name: "short form", data: []byte{0x03, 0x02, 0xAA, 0xBB, 0xFE}, want: []byte{0xAA, 0xBB}},
		{name: "leading nulls", data: []byte{0x00, 0x00, 0x03, 0x01, 0xCC}, want: []byte{0xCC}},
		{name: "skips memory control", data: []byte{0x02, 0x01, 0x00, 0x03, 0x01, 0xDD}, want: []byte{0xDD}},
		{name: "long form", data: []byte{0x03, 0xFF, 0x00, 0x01, 0xEE}, want: []byte{0xEE}},
		{name: "terminator first", data: []byte{0xFE, 0x03, 0x01, 0xCC}, wantErr: inspect.ErrNoNDEF},
		{name: "truncated body", data: []byte{0x03, 0x05, 0xAA}, wantErr: inspect.ErrTruncatedTLV},
		{name: "truncated long length", data: []byte{0x03, 0xFF, 0x00}, wantErr: inspect.ErrTruncatedTLV},
		{name: "only nulls", data: []byte{0x00, 0x00}, wantErr: inspect.ErrNoNDEF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := inspect.FindNDEF(tt.data)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
