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

// PollForNewCard reports whether a card newly entered the field.
func (h *Handler) PollForNewCard() bool {
	return h.rf.IsNewCardPresent()
}

// FetchIdentity completes anti-collision and returns the selected card's
// identity. The identity is cached for the read path.
func (h *Handler) FetchIdentity() (Identity, bool) {
	id, err := h.rf.ReadCardSerial()
	if err != nil {
		h.log.Debug().Err(err).Msg("reading card serial failed")
		return nil, false
	}
	if !id.Valid() {
		h.log.Debug().Int("length", len(id)).Msg("card serial has invalid length")
		return nil, false
	}
	h.current = id.Clone()
	h.log.Debug().
		Stringer("uid", h.current).
		Stringer("type", h.rf.CardType()).
		Msg("card selected")
	return h.current.Clone(), true
}

// IsKnownCardStillPresent wakes the field and checks that the card with
// identity id answers. Each failed wakeup or mismatched serial consumes one
// attempt.
func (h *Handler) IsKnownCardStillPresent(id Identity) bool {
	for attempt := 1; attempt <= h.presenceRetries; attempt++ {
		if err := h.rf.Wakeup(); err != nil {
			h.log.Trace().Err(err).Int("attempt", attempt).Msg("wakeup failed")
			continue
		}
		got, err := h.rf.ReadCardSerial()
		if err != nil {
			h.log.Trace().Err(err).Int("attempt", attempt).Msg("reading card serial failed")
			continue
		}
		if !got.Equal(id) {
			h.log.Trace().
				Stringer("want", id).
				Stringer("got", got).
				Int("attempt", attempt).
				Msg("card serial differs")
			continue
		}
		h.current = got.Clone()
		return true
	}
	return false
}
