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

package virtual

import (
	cardrecord "github.com/arnuschky/EnRav"
)

// Detached stands in for a reader that is not attached. Polling always
// reports a card so callers can exercise their flow without hardware;
// everything that would need the card fails.
type Detached struct{}

var _ cardrecord.Transceiver = Detached{}

func detached(op string) error {
	return cardrecord.NewStatusError(op, cardrecord.StatusCommError, "no reader attached")
}

func (Detached) Init() error { return nil }

func (Detached) IsNewCardPresent() bool { return true }

func (Detached) Wakeup() error { return detached("wakeup") }

func (Detached) CardType() cardrecord.CardType { return cardrecord.CardTypeUnknown }

func (Detached) ReadCardSerial() (cardrecord.Identity, error) {
	return nil, detached("read serial")
}

func (Detached) Authenticate(cardrecord.KeyType, uint8, cardrecord.Key, cardrecord.Identity) error {
	return detached("authenticate")
}

func (Detached) AuthenticateUltralight([4]byte) ([2]byte, error) {
	return [2]byte{}, detached("pwd_auth")
}

func (Detached) ReadBlock(uint8) ([]byte, error) { return nil, detached("read") }

func (Detached) WriteBlock(uint8, [16]byte) error { return detached("write") }

func (Detached) Halt() error { return nil }

func (Detached) StopCrypto() {}
