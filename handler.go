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
	"github.com/rs/zerolog/log"
)

// DefaultPresenceRetries is how often a known card is woken before it is
// considered gone.
const DefaultPresenceRetries = 3

// Record is the payload an application stores on a card.
type Record struct {
	FileName  string
	Volume    uint8
	Resumable bool
	// Valid is set by reads that produced a usable record.
	Valid bool
}

// Equal compares the stored fields of two records, ignoring Valid.
func (r Record) Equal(other Record) bool {
	return r.Volume == other.Volume && r.Resumable == other.Resumable && r.FileName == other.FileName
}

// Handler reads and writes records through a Transceiver. A Handler owns
// its transceiver and must be driven from a single goroutine.
type Handler struct {
	rf              Transceiver
	log             zerolog.Logger
	current         Identity
	presenceRetries int
	key             Key
}

// New creates a Handler for rf.
func New(rf Transceiver, opts ...Option) (*Handler, error) {
	if rf == nil {
		return nil, ErrNoTransceiver
	}
	h := &Handler{
		rf:              rf,
		log:             log.With().Str("component", "cardrecord").Logger(),
		presenceRetries: DefaultPresenceRetries,
		key:             DefaultKey,
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Connect initializes the transceiver and logs its firmware version when
// it reports one.
func (h *Handler) Connect() error {
	if err := h.rf.Init(); err != nil {
		return fmt.Errorf("init transceiver: %w", err)
	}
	fr, ok := h.rf.(FirmwareReporter)
	if !ok {
		return nil
	}
	version, err := fr.FirmwareVersion()
	if err != nil {
		h.log.Warn().Err(err).Msg("communication failure, is the card reader properly connected?")
		return nil
	}
	h.log.Info().Str("firmware", version).Msg("card reader connected")
	return nil
}

// Transceiver returns the underlying transceiver.
func (h *Handler) Transceiver() Transceiver {
	return h.rf
}

// Key returns the configured sector key.
func (h *Handler) Key() Key {
	return h.key
}
