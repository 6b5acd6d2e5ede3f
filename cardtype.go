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

// CardType classifies a card from its SAK (select acknowledge) byte.
type CardType int

const (
	CardTypeUnknown CardType = iota
	CardTypeISO14443_4
	CardTypeISO18092
	CardTypeMifareMini
	CardTypeMifare1K
	CardTypeMifare4K
	CardTypeMifareUltralight
	CardTypeMifarePlus
	CardTypeTNP3XXX
	CardTypeNotComplete
)

var cardTypeNames = map[CardType]string{
	CardTypeUnknown:          "Unknown type",
	CardTypeISO14443_4:       "PICC compliant with ISO/IEC 14443-4",
	CardTypeISO18092:         "PICC compliant with ISO/IEC 18092 (NFC)",
	CardTypeMifareMini:       "MIFARE Mini, 320 bytes",
	CardTypeMifare1K:         "MIFARE 1KB",
	CardTypeMifare4K:         "MIFARE 4KB",
	CardTypeMifareUltralight: "MIFARE Ultralight or Ultralight C",
	CardTypeMifarePlus:       "MIFARE Plus",
	CardTypeTNP3XXX:          "MIFARE TNP3XXX",
	CardTypeNotComplete:      "SAK indicates UID is not complete.",
}

// String returns the human-readable card type name.
func (t CardType) String() string {
	if name, ok := cardTypeNames[t]; ok {
		return name
	}
	return cardTypeNames[CardTypeUnknown]
}

// Supported reports whether records can be stored on this card type.
func (t CardType) Supported() bool {
	switch t {
	case CardTypeMifareMini, CardTypeMifare1K, CardTypeMifare4K, CardTypeMifareUltralight:
		return true
	default:
		return false
	}
}

// IsClassic reports whether the card uses sectored Crypto1 storage.
func (t CardType) IsClassic() bool {
	return t == CardTypeMifareMini || t == CardTypeMifare1K || t == CardTypeMifare4K
}

// CardTypeFromSAK maps a SAK byte to a card type. Bit 8 carries no
// information and is masked off.
func CardTypeFromSAK(sak byte) CardType {
	switch sak & 0x7F {
	case 0x04:
		return CardTypeNotComplete
	case 0x09:
		return CardTypeMifareMini
	case 0x08:
		return CardTypeMifare1K
	case 0x18:
		return CardTypeMifare4K
	case 0x00:
		return CardTypeMifareUltralight
	case 0x10, 0x11:
		return CardTypeMifarePlus
	case 0x01:
		return CardTypeTNP3XXX
	case 0x20:
		return CardTypeISO14443_4
	case 0x40:
		return CardTypeISO18092
	default:
		return CardTypeUnknown
	}
}
