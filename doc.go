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

/*
Package cardrecord stores a small playback record on MIFARE contactless cards.

A record carries a media file name, a volume and a resumable flag. It is
written as a 16-byte information block followed by the raw file name bytes,
addressed according to the card's geometry:

  - MIFARE Classic Mini, 1K and 4K use 16-byte blocks grouped into 4-block
    sectors. Every sector is unlocked with key A on its trailer, and trailers
    never carry payload.
  - MIFARE Ultralight and NTAG use 4-byte pages unlocked once per session
    with a 4-byte password.

The RF reader is abstracted as a Transceiver. Backends live in the pn532,
pcsc and libnfc packages; the virtual package simulates cards for tests
and for running without hardware.

Basic Usage:

	import (
	    "github.com/arnuschky/EnRav"
	    "github.com/arnuschky/EnRav/pn532"
	    "github.com/arnuschky/EnRav/transport/uart"
	)

	transport, err := uart.New("/dev/ttyUSB0")
	if err != nil {
	    log.Fatal(err)
	}
	defer transport.Close()

	handler, err := cardrecord.New(pn532.NewTransceiver(transport))
	if err != nil {
	    log.Fatal(err)
	}
	if err := handler.Connect(); err != nil {
	    log.Fatal(err)
	}

	for !handler.PollForNewCard() {
	    time.Sleep(250 * time.Millisecond)
	}
	id, ok := handler.FetchIdentity()
	if !ok {
	    return
	}
	rec := handler.ReadRecord()
	if rec.Valid {
	    fmt.Printf("%s at volume %d\n", rec.FileName, rec.Volume)
	}

Writing confirms that the same card is still in the field before touching
it:

	ok = handler.WriteRecord(cardrecord.Record{
	    FileName:  "/042.mp3",
	    Volume:    5,
	    Resumable: true,
	}, id)

Read and Write return the underlying error for callers that need more than
a boolean. Every error except ErrLayoutMismatch is a per-card rejection.
*/
package cardrecord
