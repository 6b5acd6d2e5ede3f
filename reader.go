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
	"errors"
)

// ReadRecord reads the record from the selected card. Failures are logged
// and reported through Record.Valid.
func (h *Handler) ReadRecord() Record {
	rec, err := h.Read()
	if err != nil {
		return Record{}
	}
	return rec
}

// Read reads the record from the card selected by the last FetchIdentity.
func (h *Handler) Read() (Record, error) {
	if err := checkLayout(); err != nil {
		h.log.Error().Err(err).Msg("information block layout is broken")
		return Record{}, err
	}

	cardType := h.rf.CardType()
	geo, err := GeometryFor(cardType)
	if err != nil {
		h.log.Warn().Stringer("type", cardType).Msg("card type not supported")
		return Record{}, err
	}

	s := h.newSession(geo)
	if err := s.authenticate(geo.InfoBlock); err != nil {
		h.log.Warn().Err(err).Msg("authentication failed")
		return Record{}, err
	}

	raw, err := s.readSpan(geo.InfoBlock, InfoBlockSize)
	if err != nil {
		h.logBlockFailure(err, "reading information block failed")
		return Record{}, err
	}
	ib, err := DecodeInfoBlock(raw)
	if err != nil {
		h.log.Warn().Err(err).Msg("decoding information block failed")
		return Record{}, err
	}
	if err := ib.Validate(); err != nil {
		h.logRejectedHeader(ib, err)
		return Record{}, err
	}
	h.log.Debug().Uint8("version", ib.Version).Msg("card version found")

	name, err := s.readSpan(geo.FileNameBlock, int(ib.FileNameLength))
	if err != nil {
		h.logBlockFailure(err, "reading file name failed")
		return Record{}, err
	}
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	if len(name) == 0 {
		h.log.Warn().Uint16("length", ib.FileNameLength).Msg("file name is blank")
		return Record{}, ErrEmptyFileName
	}

	rec := Record{
		Volume:    ib.Volume,
		Resumable: ib.Resumable,
		FileName:  string(name),
		Valid:     true,
	}
	h.log.Info().
		Str("file", rec.FileName).
		Uint8("volume", rec.Volume).
		Bool("resumable", rec.Resumable).
		Msg("card read")
	return rec, nil
}

func (h *Handler) logRejectedHeader(ib InfoBlock, err error) {
	switch {
	case errors.Is(err, ErrForeignCard):
		h.log.Info().Uint32("cookie", ib.Cookie).Msg("wrong magic key, card is not for this box")
	case errors.Is(err, ErrUnknownVersion):
		h.log.Warn().Uint8("version", ib.Version).Msg("unknown card version")
	default:
		h.log.Warn().Err(err).Uint16("length", ib.FileNameLength).Msg("invalid file name length")
	}
}

func (h *Handler) logBlockFailure(err error, msg string) {
	h.log.Warn().Err(err).Stringer("status", StatusOf(err)).Msg(msg)
}
