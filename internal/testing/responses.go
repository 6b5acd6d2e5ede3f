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

package testing

import (
	"github.com/arnuschky/EnRav/pn532"
	"github.com/arnuschky/EnRav/virtual"
)

// BuildFirmwareVersionResponse creates a GetFirmwareVersion response for a
// PN532 with firmware 1.6, supporting ISO14443A/B and ISO18092
func BuildFirmwareVersionResponse() []byte {
	return []byte{pn532.CmdGetFirmwareVersion + 1, 0x32, 0x01, 0x06, 0x07}
}

// BuildAckResponse creates the bare response for commands that return no data
func BuildAckResponse(cmd byte) []byte {
	return []byte{cmd + 1}
}

// BuildTargetResponse creates an InListPassiveTarget response listing card
// as target 1
func BuildTargetResponse(card *virtual.Card) []byte {
	atqa := []byte{0x00, 0x04}
	if !card.Classic() {
		atqa = []byte{0x00, 0x44}
	}
	response := []byte{pn532.CmdInListPassiveTarget + 1, 0x01, 0x01}
	response = append(response, atqa...)
	response = append(response, card.SAK(), byte(len(card.UID)))
	return append(response, card.UID...)
}

// BuildNoTargetResponse creates an empty InListPassiveTarget response
func BuildNoTargetResponse() []byte {
	return []byte{pn532.CmdInListPassiveTarget + 1, 0x00}
}

// BuildStatusResponse creates a response carrying a status byte and data
func BuildStatusResponse(cmd, status byte, data ...byte) []byte {
	response := []byte{cmd + 1, status}
	return append(response, data...)
}
