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

package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	cardrecord "github.com/arnuschky/EnRav"
	"github.com/arnuschky/EnRav/config"
	"github.com/arnuschky/EnRav/pcsc"
	"github.com/arnuschky/EnRav/pn532"
	"github.com/arnuschky/EnRav/transport/i2c"
	"github.com/arnuschky/EnRav/transport/uart"
	"github.com/arnuschky/EnRav/virtual"
	"github.com/rs/zerolog"
)

// reader is an opened transceiver and the function releasing it
type reader struct {
	rf    cardrecord.Transceiver
	close func() error
}

// driverFactory opens a transceiver at path. The meaning of path depends
// on the driver.
type driverFactory func(path string, timeout time.Duration, logger zerolog.Logger) (*reader, error)

var drivers = map[string]driverFactory{
	config.DriverPN532UART: openPN532UART,
	config.DriverPN532I2C:  openPN532I2C,
	config.DriverPCSC:      openPCSC,
	config.DriverVirtual:   openVirtual,
}

func driverNames() string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func openDriver(name, path string, timeout time.Duration, logger zerolog.Logger) (*reader, error) {
	open, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("driver %q not available in this build (have: %s)", name, driverNames())
	}
	return open(path, timeout, logger.With().Str("driver", name).Logger())
}

func pn532Reader(transport pn532.Transport, timeout time.Duration, logger zerolog.Logger) (*reader, error) {
	if err := transport.SetTimeout(timeout); err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to set timeout: %w", err)
	}
	return &reader{
		rf:    pn532.NewTransceiver(transport, pn532.WithLogger(logger)),
		close: transport.Close,
	}, nil
}

func openPN532UART(path string, timeout time.Duration, logger zerolog.Logger) (*reader, error) {
	transport, err := uart.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport: %w", err)
	}
	return pn532Reader(transport, timeout, logger)
}

func openPN532I2C(path string, timeout time.Duration, logger zerolog.Logger) (*reader, error) {
	transport, err := i2c.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create I2C transport: %w", err)
	}
	return pn532Reader(transport, timeout, logger)
}

func openPCSC(path string, _ time.Duration, logger zerolog.Logger) (*reader, error) {
	rf := pcsc.NewTransceiver(pcsc.WithLogger(logger), pcsc.WithReader(path))
	return &reader{rf: rf, close: rf.Close}, nil
}

// openVirtual places a blank simulated card of the kind named by path.
func openVirtual(path string, _ time.Duration, _ zerolog.Logger) (*reader, error) {
	var card *virtual.Card
	switch strings.ToLower(path) {
	case "", "1k":
		card = virtual.NewMifare1K(nil)
	case "mini":
		card = virtual.NewMifareMini(nil)
	case "4k":
		card = virtual.NewMifare4K(nil)
	case "ntag213":
		card = virtual.NewNTAG213(nil)
	case "ntag215":
		card = virtual.NewNTAG215(nil)
	case "ultralight":
		card = virtual.NewUltralight(nil)
	default:
		return nil, fmt.Errorf("unknown virtual card %q (want 1k, mini, 4k, ntag213, ntag215 or ultralight)", path)
	}
	rf := virtual.NewTransceiver()
	rf.Place(card)
	return &reader{rf: rf, close: func() error { return nil }}, nil
}
