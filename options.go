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
	"errors"

	"github.com/rs/zerolog"
)

// Option is a functional option for configuring a Handler
type Option func(*Handler) error

// WithLogger sets the logger used for card diagnostics
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler) error {
		h.log = logger
		return nil
	}
}

// WithKey sets the Classic sector key. Its first four bytes double as the
// Ultralight password.
func WithKey(key Key) Option {
	return func(h *Handler) error {
		h.key = key
		return nil
	}
}

// WithPresenceRetries sets how many wake-and-compare attempts
// IsKnownCardStillPresent makes before giving up
func WithPresenceRetries(n int) Option {
	return func(h *Handler) error {
		if n < 1 {
			return errors.New("presence retries must be at least 1")
		}
		h.presenceRetries = n
		return nil
	}
}
