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
	"bytes"
	"encoding/hex"
	"strings"
)

// MaxIdentityLength is the longest UID an ISO14443A card can report.
const MaxIdentityLength = 10

// Identity is a card's unique identifier as produced by anti-collision.
type Identity []byte

// Equal compares two identities by length, then content.
func (id Identity) Equal(other Identity) bool {
	if len(id) != len(other) {
		return false
	}
	return bytes.Equal(id, other)
}

// Valid reports whether the identity has a plausible UID length.
func (id Identity) Valid() bool {
	return len(id) > 0 && len(id) <= MaxIdentityLength
}

// String renders the identity as upper-case hex.
func (id Identity) String() string {
	return strings.ToUpper(hex.EncodeToString(id))
}

// Clone returns a copy that does not alias the transceiver's buffers.
func (id Identity) Clone() Identity {
	if id == nil {
		return nil
	}
	out := make(Identity, len(id))
	copy(out, id)
	return out
}
