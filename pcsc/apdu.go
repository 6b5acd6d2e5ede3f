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

package pcsc

import (
	"errors"
	"fmt"
)

// Pseudo-APDU instruction bytes of PC/SC part 3 storage card commands
const (
	claReader         = 0xFF
	insGetData        = 0xCA
	insLoadKey        = 0x82
	insAuthenticate   = 0x86
	insReadBinary     = 0xB0
	insUpdateBinary   = 0xD6
	insDirectTransmit = 0x00

	keyStructVolatile = 0x00
	keySlot           = 0x00
	authVersion       = 0x01

	pn53xCommunicateThru = 0x42
	pn53xHostTFI         = 0xD4
	ultralightPwdAuth    = 0x1B
)

var (
	ErrShortResponse = errors.New("APDU response too short")
	ErrNoCard        = errors.New("no card connected")
)

// StatusWordError is an APDU that completed with SW1SW2 other than 9000
type StatusWordError struct {
	SW1, SW2 byte
}

func (e *StatusWordError) Error() string {
	return fmt.Sprintf("card returned status %02X %02X", e.SW1, e.SW2)
}

// splitResponse strips and checks the trailing status word
func splitResponse(rsp []byte) ([]byte, error) {
	if len(rsp) < 2 {
		return nil, fmt.Errorf("%w: % X", ErrShortResponse, rsp)
	}
	sw1, sw2 := rsp[len(rsp)-2], rsp[len(rsp)-1]
	if sw1 != 0x90 || sw2 != 0x00 {
		return nil, &StatusWordError{SW1: sw1, SW2: sw2}
	}
	return rsp[:len(rsp)-2], nil
}

func getUIDAPDU() []byte {
	return []byte{claReader, insGetData, 0x00, 0x00, 0x00}
}

func loadKeyAPDU(key [6]byte) []byte {
	return append([]byte{claReader, insLoadKey, keyStructVolatile, keySlot, 0x06}, key[:]...)
}

func authenticateAPDU(block, keyType byte) []byte {
	return []byte{claReader, insAuthenticate, 0x00, 0x00, 0x05, authVersion, 0x00, block, keyType, keySlot}
}

func readAPDU(block byte, n byte) []byte {
	return []byte{claReader, insReadBinary, 0x00, block, n}
}

func updateAPDU(block byte, data []byte) []byte {
	return append([]byte{claReader, insUpdateBinary, 0x00, block, byte(len(data))}, data...)
}

// pwdAuthAPDU wraps PWD_AUTH in a PN53x InCommunicateThru direct transmit
func pwdAuthAPDU(pwd [4]byte) []byte {
	payload := append([]byte{pn53xHostTFI, pn53xCommunicateThru, ultralightPwdAuth}, pwd[:]...)
	return append([]byte{claReader, insDirectTransmit, 0x00, 0x00, byte(len(payload))}, payload...)
}
