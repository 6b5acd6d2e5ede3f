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

// KeyType selects which Classic sector key authenticates a block.
type KeyType byte

const (
	KeyA KeyType = 0x60
	KeyB KeyType = 0x61
)

func (k KeyType) String() string {
	if k == KeyB {
		return "B"
	}
	return "A"
}

// Key is a 6-byte MIFARE Classic sector key.
type Key [6]byte

// DefaultKey is the factory transport key.
var DefaultKey = Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// Password returns the Ultralight/NTAG password derived from the key.
func (k Key) Password() [4]byte {
	var pwd [4]byte
	copy(pwd[:], k[:4])
	return pwd
}

// Transceiver is the RF reader capability the record codec drives.
//
// Implementations are not safe for concurrent use. Every method blocks
// until the reader answers or its own timeout expires.
type Transceiver interface {
	// Init resets the reader and prepares it for ISO14443A polling.
	Init() error
	// IsNewCardPresent reports whether an idle card entered the field.
	IsNewCardPresent() bool
	// Wakeup wakes idle or halted cards without completing anti-collision.
	Wakeup() error
	// ReadCardSerial completes anti-collision and returns the card's UID.
	ReadCardSerial() (Identity, error)
	// CardType classifies the last selected card.
	CardType() CardType
	// Authenticate unlocks the sector containing block for Classic cards.
	Authenticate(keyType KeyType, block uint8, key Key, id Identity) error
	// AuthenticateUltralight sends PWD_AUTH and returns the PACK.
	AuthenticateUltralight(pwd [4]byte) ([2]byte, error)
	// ReadBlock returns 16 bytes starting at block.
	ReadBlock(block uint8) ([]byte, error)
	// WriteBlock writes one block. Page-based cards store the first 4 bytes.
	WriteBlock(block uint8, data [16]byte) error
	// Halt puts the selected card into HALT state.
	Halt() error
	// StopCrypto leaves the authenticated state on the reader side.
	StopCrypto()
}

// FirmwareReporter is implemented by transceivers that can report their
// firmware version.
type FirmwareReporter interface {
	FirmwareVersion() (string, error)
}
