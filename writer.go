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
	"strings"
)

// WriteRecord writes rec to the card identified by id and reports success.
func (h *Handler) WriteRecord(rec Record, id Identity) bool {
	return h.Write(rec, id) == nil
}

// Write stores rec on the card identified by id. The card is halted on
// every exit once the layout check passed. A failed write may leave the
// card partially updated.
func (h *Handler) Write(rec Record, id Identity) error {
	if err := checkLayout(); err != nil {
		h.log.Error().Err(err).Msg("information block layout is broken")
		return err
	}
	defer h.endSession()

	if !h.IsKnownCardStillPresent(id) {
		h.log.Warn().Stringer("uid", id).Msg("card was removed or swapped")
		return fmt.Errorf("%w: %s", ErrCardLost, id)
	}
	if len(rec.FileName) > MaxFileNameLength {
		h.log.Warn().Int("length", len(rec.FileName)).Int("max", MaxFileNameLength).
			Msg("file name too long")
		return fmt.Errorf("%w: %d bytes", ErrFileNameTooLong, len(rec.FileName))
	}
	if rec.FileName == "" {
		h.log.Warn().Msg("refusing to write an empty file name")
		return ErrEmptyFileName
	}
	if i := strings.IndexByte(rec.FileName, 0); i >= 0 {
		h.log.Warn().Int("offset", i).Msg("file name contains a NUL byte")
		return fmt.Errorf("%w: NUL at offset %d", ErrInvalidFileName, i)
	}

	cardType := h.rf.CardType()
	geo, err := GeometryFor(cardType)
	if err != nil {
		h.log.Warn().Stringer("type", cardType).Msg("card type not supported")
		return err
	}

	s := h.newSession(geo)
	if !geo.Sectored() {
		cc, err := s.readBlock(CCPage)
		if err != nil {
			h.logBlockFailure(err, "reading capability container failed")
			return err
		}
		geo = geo.WithDataArea(cc)
		s.geo = geo
		h.log.Debug().Hex("cc", cc).Int("pages", geo.TotalBlocks).Msg("page card data area")
	}

	raw, err := EncodeInfoBlock(NewInfoBlock(rec))
	if err != nil {
		h.log.Error().Err(err).Msg("encoding information block failed")
		return err
	}
	infoSeq := geo.Sequence(geo.InfoBlock, geo.BlocksFor(InfoBlockSize))
	// One extra byte so the last block always carries a terminator.
	nameSeq := geo.Sequence(geo.FileNameBlock, geo.BlocksFor(len(rec.FileName)+1))
	if !geo.Fits(infoSeq) || !geo.Fits(nameSeq) {
		h.log.Warn().
			Int("length", len(rec.FileName)).
			Int("blocks", geo.TotalBlocks).
			Stringer("type", cardType).
			Msg("record does not fit on card")
		return fmt.Errorf("%w: %d byte file name on %s", ErrCapacityExceeded, len(rec.FileName), cardType)
	}

	if err := s.authenticate(geo.InfoBlock); err != nil {
		h.log.Warn().Err(err).Msg("authentication failed")
		return err
	}
	if err := s.writeSpan(infoSeq, raw[:]); err != nil {
		h.logBlockFailure(err, "writing information block failed")
		return err
	}
	if err := s.writeSpan(nameSeq, []byte(rec.FileName)); err != nil {
		h.logBlockFailure(err, "writing file name failed")
		return err
	}

	h.log.Info().
		Str("file", rec.FileName).
		Uint8("volume", rec.Volume).
		Bool("resumable", rec.Resumable).
		Int("blocks", len(infoSeq)+len(nameSeq)).
		Msg("card written")
	return nil
}

func (h *Handler) endSession() {
	if err := h.rf.Halt(); err != nil {
		h.log.Debug().Err(err).Msg("halting card failed")
	}
	h.rf.StopCrypto()
}
