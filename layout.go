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
	"encoding/binary"
	"fmt"
)

const (
	// InfoBlockSize is the on-card size of the information block.
	InfoBlockSize = 16
	// MagicCookie marks a card as belonging to EnRav.
	MagicCookie uint32 = 0x454E5256
	// FormatVersion is the only information block version understood.
	FormatVersion = 1
	// MaxFileNameLength is the longest file name a card may carry.
	MaxFileNameLength = 256
)

const (
	flagResumable = 1 << 0
	flagFull      = 1 << 1
)

// Field offsets within the information block.
const (
	offCookie         = 0
	offVersion        = 4
	offVolume         = 5
	offConfiguration  = 6
	offFileNameLength = 8
	infoBlockEnd      = 16
)

// packedSize is the size of the field table above.
var packedSize = infoBlockEnd

// InfoBlock is the decoded information block.
type InfoBlock struct {
	Cookie         uint32
	Version        uint8
	Volume         uint8
	Resumable      bool
	Full           bool
	FileNameLength uint16
}

// NewInfoBlock builds the header for rec as the write path stores it.
func NewInfoBlock(rec Record) InfoBlock {
	return InfoBlock{
		Cookie:         MagicCookie,
		Version:        FormatVersion,
		Volume:         rec.Volume,
		Resumable:      rec.Resumable,
		FileNameLength: uint16(len(rec.FileName)), //nolint:gosec // bounded by MaxFileNameLength
	}
}

// checkLayout verifies the packed field table matches InfoBlockSize.
func checkLayout() error {
	if packedSize != InfoBlockSize || offFileNameLength+2 > packedSize {
		return fmt.Errorf("%w: %d instead of %d", ErrLayoutMismatch, packedSize, InfoBlockSize)
	}
	return nil
}

// EncodeInfoBlock packs ib into its little-endian wire form.
func EncodeInfoBlock(ib InfoBlock) ([InfoBlockSize]byte, error) {
	var raw [InfoBlockSize]byte
	if err := checkLayout(); err != nil {
		return raw, err
	}
	binary.LittleEndian.PutUint32(raw[offCookie:], ib.Cookie)
	raw[offVersion] = ib.Version
	raw[offVolume] = ib.Volume
	var cfg byte
	if ib.Resumable {
		cfg |= flagResumable
	}
	if ib.Full {
		cfg |= flagFull
	}
	raw[offConfiguration] = cfg
	binary.LittleEndian.PutUint16(raw[offFileNameLength:], ib.FileNameLength)
	return raw, nil
}

// DecodeInfoBlock unpacks a wire-form information block. It does not
// validate cookie or version.
func DecodeInfoBlock(raw []byte) (InfoBlock, error) {
	if err := checkLayout(); err != nil {
		return InfoBlock{}, err
	}
	if len(raw) < InfoBlockSize {
		return InfoBlock{}, fmt.Errorf("%w: got %d bytes", ErrCorruptHeader, len(raw))
	}
	cfg := raw[offConfiguration]
	return InfoBlock{
		Cookie:         binary.LittleEndian.Uint32(raw[offCookie:]),
		Version:        raw[offVersion],
		Volume:         raw[offVolume],
		Resumable:      cfg&flagResumable != 0,
		Full:           cfg&flagFull != 0,
		FileNameLength: binary.LittleEndian.Uint16(raw[offFileNameLength:]),
	}, nil
}

// Validate checks cookie, version and file name length.
func (ib InfoBlock) Validate() error {
	if ib.Cookie != MagicCookie {
		return fmt.Errorf("%w: cookie %08x", ErrForeignCard, ib.Cookie)
	}
	if ib.Version != FormatVersion {
		return fmt.Errorf("%w: %d", ErrUnknownVersion, ib.Version)
	}
	if ib.FileNameLength == 0 {
		return ErrEmptyFileName
	}
	if ib.FileNameLength > MaxFileNameLength {
		return fmt.Errorf("%w: file name length %d", ErrCorruptHeader, ib.FileNameLength)
	}
	return nil
}
