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
	"fmt"

	"github.com/rs/zerolog"
)

const noSector = -1

// session tracks authentication for one read or write pass over a card.
type session struct {
	rf         Transceiver
	log        zerolog.Logger
	id         Identity
	geo        Geometry
	authSector int
	unlocked   bool
	key        Key
}

func (h *Handler) newSession(geo Geometry) *session {
	return &session{
		rf:         h.rf,
		log:        h.log.With().Str("card", geo.Type.String()).Logger(),
		id:         h.current,
		geo:        geo,
		authSector: noSector,
		key:        h.key,
	}
}

// authenticate unlocks block b, reusing the current authentication while
// it still covers b.
func (s *session) authenticate(b int) error {
	switch s.geo.Auth {
	case AuthSectorKeyA:
		sector := s.geo.Sector(b)
		if sector == s.authSector {
			return nil
		}
		trailer := s.geo.TrailerOf(b)
		s.log.Trace().Int("sector", sector).Int("trailer", trailer).Msg("authenticating sector")
		if err := s.rf.Authenticate(KeyA, uint8(trailer), s.key, s.id); err != nil { //nolint:gosec // bounded by TotalBlocks
			s.authSector = noSector
			return authError(trailer, err)
		}
		s.authSector = sector
	case AuthPassword:
		if s.unlocked {
			return nil
		}
		pack, err := s.rf.AuthenticateUltralight(s.key.Password())
		if err != nil {
			return authError(b, err)
		}
		s.log.Trace().Hex("pack", pack[:]).Msg("password accepted")
		s.unlocked = true
	default:
		return fmt.Errorf("%w: unknown auth scheme %s", ErrUnsupportedCard, s.geo.Auth)
	}
	return nil
}

// readBlock returns the geometry's block size worth of data at b.
func (s *session) readBlock(b int) ([]byte, error) {
	if err := s.authenticate(b); err != nil {
		return nil, err
	}
	data, err := s.rf.ReadBlock(uint8(b)) //nolint:gosec // bounded by TotalBlocks
	if err != nil {
		return nil, readError(b, err)
	}
	if len(data) < s.geo.BlockSize {
		return nil, readError(b, NewStatusError("read", StatusNoRoom,
			fmt.Sprintf("got %d bytes, want %d", len(data), s.geo.BlockSize)))
	}
	s.log.Trace().Int("block", b).Hex("data", data[:s.geo.BlockSize]).Msg("read block")
	return data[:s.geo.BlockSize], nil
}

func (s *session) writeBlock(b int, chunk []byte) error {
	if err := s.authenticate(b); err != nil {
		return err
	}
	var payload [16]byte
	copy(payload[:], chunk)
	if err := s.rf.WriteBlock(uint8(b), payload); err != nil { //nolint:gosec // bounded by TotalBlocks
		return writeError(b, err)
	}
	s.log.Trace().Int("block", b).Hex("data", chunk).Msg("wrote block")
	return nil
}

// readSpan reads n bytes from the blocks starting at start, copying only
// the bytes still needed from the last block.
func (s *session) readSpan(start, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for _, b := range s.geo.Sequence(start, s.geo.BlocksFor(n)) {
		data, err := s.readBlock(b)
		if err != nil {
			return nil, err
		}
		out = append(out, data[:min(n-len(out), len(data))]...)
	}
	return out, nil
}

// writeSpan writes data across seq, zero-padding the final block.
func (s *session) writeSpan(seq []int, data []byte) error {
	bs := s.geo.BlockSize
	for i, b := range seq {
		lo := min(i*bs, len(data))
		hi := min(lo+bs, len(data))
		if err := s.writeBlock(b, data[lo:hi]); err != nil {
			return err
		}
	}
	return nil
}
