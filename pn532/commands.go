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

package pn532

import (
	"fmt"

	cardrecord "github.com/arnuschky/EnRav"
)

// PN532 command codes
const (
	CmdGetFirmwareVersion  = 0x02
	CmdSAMConfiguration    = 0x14
	CmdRFConfiguration     = 0x32
	CmdInDataExchange      = 0x40
	CmdInCommunicateThru   = 0x42
	CmdInListPassiveTarget = 0x4A
	CmdInRelease           = 0x52
)

// MIFARE and NTAG commands carried inside InDataExchange and
// InCommunicateThru
const (
	MifareRead       = 0x30
	MifareWrite      = 0xA0
	UltralightWrite  = 0xA2
	NTAGPasswordAuth = 0x1B
)

const (
	rfConfigMaxRetries = 0x05
	samModeNormal      = 0x01
	samTimeout         = 0x14
	samUseIRQ          = 0x01
	brTy106kbpsTypeA   = 0x00
)

// PN532 error codes from the status byte (low 6 bits)
const (
	statusTimeout        = 0x01
	statusCRC            = 0x02
	statusParity         = 0x03
	statusCollision      = 0x06
	statusBufferSize     = 0x07
	statusRFBuffer       = 0x09
	statusInvalidParam   = 0x10
	statusMifareAuth     = 0x14
	statusInternalBuffer = 0x0E
	statusNotAllowed     = 0x26
	statusNotAcceptable  = 0x27
	statusReleased       = 0x29
	statusCardGone       = 0x2B
)

// statusCode maps a PN532 status byte to a transceiver status.
func statusCode(status byte) cardrecord.StatusCode {
	switch status & 0x3F {
	case 0x00:
		return cardrecord.StatusOK
	case statusTimeout, statusReleased, statusCardGone:
		return cardrecord.StatusTimeout
	case statusCRC, statusParity:
		return cardrecord.StatusCRCWrong
	case statusCollision:
		return cardrecord.StatusCollision
	case statusBufferSize, statusRFBuffer, statusInternalBuffer:
		return cardrecord.StatusNoRoom
	case statusInvalidParam, statusNotAllowed, statusNotAcceptable:
		return cardrecord.StatusInvalid
	case statusMifareAuth:
		return cardrecord.StatusAuthFailed
	default:
		return cardrecord.StatusCommError
	}
}

func statusError(op string, status byte) error {
	code := statusCode(status)
	if code == cardrecord.StatusOK {
		return nil
	}
	return cardrecord.NewStatusError(op, code, fmt.Sprintf("PN532 status 0x%02X", status))
}
