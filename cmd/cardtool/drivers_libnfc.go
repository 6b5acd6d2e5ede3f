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

//go:build libnfc

package main

import (
	"time"

	"github.com/arnuschky/EnRav/config"
	"github.com/arnuschky/EnRav/libnfc"
	"github.com/rs/zerolog"
)

func init() {
	drivers[config.DriverLibNFC] = openLibNFC
}

func openLibNFC(path string, timeout time.Duration, logger zerolog.Logger) (*reader, error) {
	rf := libnfc.NewTransceiver(path,
		libnfc.WithLogger(logger),
		libnfc.WithTimeout(int(timeout.Milliseconds())),
	)
	return &reader{rf: rf, close: rf.Close}, nil
}
