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

package cardrecord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeInfoBlock(t *testing.T) {
	t.Parallel()

	raw, err := EncodeInfoBlock(InfoBlock{
		Cookie:         MagicCookie,
		Version:        FormatVersion,
		Volume:         5,
		Resumable:      true,
		FileNameLength: 8,
	})
	require.NoError(t, err)

	want := [InfoBlockSize]byte{
		0x56, 0x52, 0x4E, 0x45, // cookie
		0x01,       // version
		0x05,       // volume
		0x01,       // resumable
		0x00,       // reserved
		0x08, 0x00, // file name length
	}
	assert.Equal(t, want, raw)
}

func TestDecodeInfoBlock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     []byte
		want    InfoBlock
		wantErr error
	}{
		{
			name: "resumable record",
			raw:  []byte{0x56, 0x52, 0x4E, 0x45, 1, 7, 0x01, 0, 0x00, 0x01, 0, 0, 0, 0, 0, 0},
			want: InfoBlock{Cookie: MagicCookie, Version: 1, Volume: 7, Resumable: true, FileNameLength: 256},
		},
		{
			name: "full flag",
			raw:  []byte{0x56, 0x52, 0x4E, 0x45, 1, 0, 0x02, 0, 0x10, 0x00, 0, 0, 0, 0, 0, 0},
			want: InfoBlock{Cookie: MagicCookie, Version: 1, Full: true, FileNameLength: 16},
		},
		{
			name: "blank",
			raw:  make([]byte, InfoBlockSize),
			want: InfoBlock{},
		},
		{
			name:    "short buffer",
			raw:     []byte{0x56, 0x52, 0x4E},
			wantErr: ErrCorruptHeader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeInfoBlock(tt.raw)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInfoBlockValidate(t *testing.T) {
	t.Parallel()

	valid := InfoBlock{Cookie: MagicCookie, Version: FormatVersion, FileNameLength: 8}
	tests := []struct {
		wantErr error
		mutate  func(*InfoBlock)
		name    string
	}{
		{name: "valid", mutate: func(*InfoBlock) {}},
		{name: "maximum length", mutate: func(ib *InfoBlock) { ib.FileNameLength = MaxFileNameLength }},
		{name: "foreign cookie", mutate: func(ib *InfoBlock) { ib.Cookie = 0xDEADBEEF }, wantErr: ErrForeignCard},
		{name: "zero cookie", mutate: func(ib *InfoBlock) { ib.Cookie = 0 }, wantErr: ErrForeignCard},
		{name: "version 0", mutate: func(ib *InfoBlock) { ib.Version = 0 }, wantErr: ErrUnknownVersion},
		{name: "version 2", mutate: func(ib *InfoBlock) { ib.Version = 2 }, wantErr: ErrUnknownVersion},
		{name: "empty name", mutate: func(ib *InfoBlock) { ib.FileNameLength = 0 }, wantErr: ErrEmptyFileName},
		{
			name:    "oversize name",
			mutate:  func(ib *InfoBlock) { ib.FileNameLength = MaxFileNameLength + 1 },
			wantErr: ErrCorruptHeader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ib := valid
			tt.mutate(&ib)
			err := ib.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, IsFatal(err))
		})
	}
}

func TestNewInfoBlock(t *testing.T) {
	t.Parallel()

	ib := NewInfoBlock(Record{FileName: "/042.mp3", Volume: 5, Resumable: true})
	assert.Equal(t, InfoBlock{
		Cookie:         MagicCookie,
		Version:        FormatVersion,
		Volume:         5,
		Resumable:      true,
		FileNameLength: 8,
	}, ib)
	assert.NoError(t, ib.Validate())
}

// countingTransceiver fails the test if the handler talks to the card.
type countingTransceiver struct {
	calls int
}

func (c *countingTransceiver) Init() error            { return nil }
func (c *countingTransceiver) IsNewCardPresent() bool { c.calls++; return false }
func (c *countingTransceiver) Wakeup() error          { c.calls++; return nil }
func (c *countingTransceiver) CardType() CardType     { c.calls++; return CardTypeMifare1K }
func (c *countingTransceiver) Halt() error            { c.calls++; return nil }
func (c *countingTransceiver) StopCrypto()            { c.calls++ }

func (c *countingTransceiver) ReadCardSerial() (Identity, error) {
	c.calls++
	return Identity{1, 2, 3, 4}, nil
}

func (c *countingTransceiver) Authenticate(KeyType, uint8, Key, Identity) error {
	c.calls++
	return nil
}

func (c *countingTransceiver) AuthenticateUltralight([4]byte) ([2]byte, error) {
	c.calls++
	return [2]byte{}, nil
}

func (c *countingTransceiver) ReadBlock(uint8) ([]byte, error) {
	c.calls++
	return make([]byte, 16), nil
}

func (c *countingTransceiver) WriteBlock(uint8, [16]byte) error {
	c.calls++
	return nil
}

//nolint:paralleltest,tparallel // mutates the package-level layout size
func TestLayoutMismatchIsFatal(t *testing.T) {
	saved := packedSize
	packedSize = InfoBlockSize - 1
	t.Cleanup(func() { packedSize = saved })

	rf := &countingTransceiver{}
	h, err := New(rf)
	require.NoError(t, err)

	_, err = EncodeInfoBlock(InfoBlock{})
	require.ErrorIs(t, err, ErrLayoutMismatch)
	assert.True(t, IsFatal(err))

	_, err = h.Read()
	require.ErrorIs(t, err, ErrLayoutMismatch)
	assert.False(t, h.ReadRecord().Valid)

	err = h.Write(Record{FileName: "/001.mp3"}, Identity{1, 2, 3, 4})
	require.ErrorIs(t, err, ErrLayoutMismatch)
	assert.Zero(t, rf.calls, "no card interaction after an integrity failure")
}
