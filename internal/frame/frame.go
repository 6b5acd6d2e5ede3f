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

// Package frame encodes and decodes PN532 normal information frames.
package frame

import (
	"bytes"
	"errors"
)

var (
	ErrTooLarge        = errors.New("frame data too large")
	ErrNoStartCode     = errors.New("frame start code not found")
	ErrTruncated       = errors.New("frame truncated")
	ErrLengthChecksum  = errors.New("frame length checksum mismatch")
	ErrDataChecksum    = errors.New("frame data checksum mismatch")
	ErrUnexpectedTFI   = errors.New("unexpected frame identifier")
	ErrApplicationFail = errors.New("PN532 application level error frame")
)

// CalculateChecksum sums data modulo 256
func CalculateChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// ValidateChecksum reports whether data does NOT sum to zero, meaning
// the frame should be NACKed
func ValidateChecksum(data []byte) bool {
	return CalculateChecksum(data) != 0
}

// CalculateLengthChecksum returns LCS so that LEN + LCS == 0
func CalculateLengthChecksum(length byte) byte {
	return ^length + 1
}

// CalculateDataChecksum returns DCS so that TFI + data + DCS == 0
func CalculateDataChecksum(tfi byte, data []byte) byte {
	return ^(tfi + CalculateChecksum(data)) + 1
}

// Build encodes a host command frame for cmd and args
func Build(cmd byte, args []byte) ([]byte, error) {
	dataLen := 2 + len(args)
	if dataLen > MaxFrameDataLength {
		return nil, ErrTooLarge
	}
	frm := make([]byte, 0, frameOverhead+dataLen)
	frm = append(frm, Preamble, StartCode1, StartCode2,
		byte(dataLen), CalculateLengthChecksum(byte(dataLen)),
		HostToPn532, cmd)
	frm = append(frm, args...)
	body := append([]byte{cmd}, args...)
	frm = append(frm, CalculateDataChecksum(HostToPn532, body), Postamble)
	return frm, nil
}

// IsAck reports whether buf starts with an ACK frame
func IsAck(buf []byte) bool {
	return bytes.HasPrefix(buf, AckFrame)
}

// FindStart returns the offset of the LEN byte after the first 00 FF
func FindStart(buf []byte) (int, error) {
	i := bytes.Index(buf, []byte{StartCode1, StartCode2})
	if i < 0 {
		return 0, ErrNoStartCode
	}
	return i + 2, nil
}

// Parse decodes a PN532 response frame and returns the payload after the
// TFI. It returns the total number of bytes the frame occupies in buf so
// streaming readers know when a frame is complete; ErrTruncated means more
// bytes are needed.
func Parse(buf []byte) (data []byte, consumed int, err error) {
	off, err := FindStart(buf)
	if err != nil {
		return nil, 0, err
	}
	if off+2 > len(buf) {
		return nil, 0, ErrTruncated
	}
	length, lcs := buf[off], buf[off+1]
	if length == 0xFF && lcs == 0x00 {
		// 00 FF FF 00: NACK, or an extended frame which is never requested
		return nil, off + 2, ErrUnexpectedTFI
	}
	if length+lcs != 0 {
		return nil, off + 2, ErrLengthChecksum
	}
	if length == 0 {
		return nil, off + 3, ErrUnexpectedTFI
	}
	end := off + 2 + int(length) + 1
	if end > len(buf) {
		return nil, 0, ErrTruncated
	}
	body := buf[off+2 : end]
	if ValidateChecksum(body) {
		return nil, end + 1, ErrDataChecksum
	}
	switch body[0] {
	case Pn532ToHost:
	case 0x7F:
		return nil, end + 1, ErrApplicationFail
	default:
		return nil, end + 1, ErrUnexpectedTFI
	}
	out := make([]byte, int(length)-1)
	copy(out, body[1:length])
	return out, end + 1, nil
}
