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

// Package inspect describes the NDEF content of cards that do not carry a
// record, so users can tell what a foreign card holds.
package inspect

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	cardrecord "github.com/arnuschky/EnRav"
	"github.com/hsanjuan/go-ndef"
)

// Type 2 tag layout
const (
	ccPage       = 3
	dataPage     = 4
	pageSize     = 4
	ccMagic      = 0xE1
	ccSizeUnit   = 8
	readPages    = 4
	maxDataPages = 256
)

// TLV tags
const (
	tlvNull       = 0x00
	tlvNDEF       = 0x03
	tlvTerminator = 0xFE
)

var (
	ErrNotType2         = errors.New("card is not an NFC Forum Type 2 tag")
	ErrNotNDEFFormatted = errors.New("card is not NDEF formatted")
	ErrNoNDEF           = errors.New("no NDEF message found")
	ErrTruncatedTLV     = errors.New("TLV runs past the data area")
)

// Record summarises one NDEF record
type Record struct {
	TNF           string
	Type          string
	ID            string
	Text          string
	PayloadLength int
}

// Report describes a Type 2 tag's NDEF area
type Report struct {
	Records     []Record
	CC          [4]byte
	Version     string
	DataSize    int
	MessageSize int
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "NDEF mapping %s, data area %d bytes, message %d bytes\n",
		r.Version, r.DataSize, r.MessageSize)
	for i, rec := range r.Records {
		fmt.Fprintf(&b, "  record %d: %s type=%q", i, rec.TNF, rec.Type)
		if rec.ID != "" {
			fmt.Fprintf(&b, " id=%q", rec.ID)
		}
		fmt.Fprintf(&b, " payload=%d bytes", rec.PayloadLength)
		if rec.Text != "" {
			fmt.Fprintf(&b, " %q", rec.Text)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

var tnfNames = map[byte]string{
	ndef.Empty:                 "empty",
	ndef.NFCForumWellKnownType: "well-known",
	ndef.MediaType:             "media",
	ndef.AbsoluteURI:           "absolute-uri",
	ndef.NFCForumExternalType:  "external",
	ndef.Unknown:               "unknown",
	ndef.Unchanged:             "unchanged",
	ndef.Reserved:              "reserved",
}

// Type2 reads the capability container and NDEF area of the selected
// Ultralight/NTAG card. The card must already be selected.
func Type2(rf cardrecord.Transceiver) (*Report, error) {
	if rf.CardType() != cardrecord.CardTypeMifareUltralight {
		return nil, fmt.Errorf("%w: %s", ErrNotType2, rf.CardType())
	}
	block, err := rf.ReadBlock(ccPage)
	if err != nil {
		return nil, fmt.Errorf("reading capability container: %w", err)
	}
	rep := &Report{}
	copy(rep.CC[:], block[:pageSize])
	if rep.CC[0] != ccMagic {
		return nil, fmt.Errorf("%w: CC % X", ErrNotNDEFFormatted, rep.CC)
	}
	rep.Version = fmt.Sprintf("%d.%d", rep.CC[1]>>4, rep.CC[1]&0x0F)
	rep.DataSize = int(rep.CC[2]) * ccSizeUnit

	// Pages before the data area were already read with the CC.
	data := append([]byte(nil), block[pageSize:]...)
	pages := min(rep.DataSize/pageSize, maxDataPages)
	for p := dataPage + (len(data) / pageSize); len(data) < pages*pageSize; p += readPages {
		if _, err := walkTLV(data); !errors.Is(err, ErrTruncatedTLV) && !errors.Is(err, errEndOfData) {
			break
		}
		block, err := rf.ReadBlock(uint8(p))
		if err != nil {
			return nil, fmt.Errorf("reading page %d: %w", p, err)
		}
		data = append(data, block...)
	}
	data = data[:min(len(data), rep.DataSize)]

	msg, err := FindNDEF(data)
	if err != nil {
		return nil, err
	}
	rep.MessageSize = len(msg)
	rep.Records, err = Describe(msg)
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// FindNDEF walks the TLV blocks of a Type 2 data area and returns the
// first NDEF message
func FindNDEF(data []byte) ([]byte, error) {
	msg, err := walkTLV(data)
	if errors.Is(err, errEndOfData) {
		return nil, ErrNoNDEF
	}
	return msg, err
}

var errEndOfData = errors.New("data area ended without terminator")

func walkTLV(data []byte) ([]byte, error) {
	for i := 0; i < len(data); {
		tag := data[i]
		switch tag {
		case tlvNull:
			i++
			continue
		case tlvTerminator:
			return nil, ErrNoNDEF
		}
		if i+1 >= len(data) {
			return nil, ErrTruncatedTLV
		}
		length, hdr := int(data[i+1]), 2
		if data[i+1] == 0xFF {
			if i+3 >= len(data) {
				return nil, ErrTruncatedTLV
			}
			length, hdr = int(binary.BigEndian.Uint16(data[i+2:i+4])), 4
		}
		end := i + hdr + length
		if end > len(data) {
			return nil, ErrTruncatedTLV
		}
		if tag == tlvNDEF {
			if length == 0 {
				return nil, ErrNoNDEF
			}
			return data[i+hdr : end], nil
		}
		// lock, memory and proprietary TLVs carry no message
		i = end
	}
	return nil, errEndOfData
}

// Describe decodes an NDEF message into record summaries
func Describe(msg []byte) ([]Record, error) {
	m := &ndef.Message{}
	if _, err := m.Unmarshal(msg); err != nil {
		return nil, fmt.Errorf("failed to parse NDEF message: %w", err)
	}
	records := make([]Record, 0, len(m.Records))
	for _, rec := range m.Records {
		r := Record{
			TNF:  tnfNames[rec.TNF()],
			Type: rec.Type(),
			ID:   rec.ID(),
		}
		payload, err := rec.Payload()
		if err == nil {
			raw := payload.Marshal()
			r.PayloadLength = len(raw)
			if rec.TNF() == ndef.NFCForumWellKnownType && (r.Type == "T" || r.Type == "U") {
				r.Text = payload.String()
			}
		}
		records = append(records, r)
	}
	return records, nil
}
