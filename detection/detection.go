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

// Package detection lists reader paths the card tool's drivers could open.
package detection

import (
	"errors"
	"fmt"

	"github.com/arnuschky/EnRav/config"
	"github.com/arnuschky/EnRav/pcsc"
	"github.com/ebfe/scard"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial/enumerator"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Candidate is a reader a driver could open at Path
type Candidate struct {
	Driver      string
	Path        string
	Description string
}

func (c Candidate) String() string {
	return fmt.Sprintf("%-10s %-40s %s", c.Driver, c.Path, c.Description)
}

// Options controls detection
type Options struct {
	PCSC        pcsc.ContextFactory
	Blocklist   []string
	IgnorePaths []string
}

// DefaultOptions returns options with the default blocklist and the system
// PC/SC service.
func DefaultOptions() Options {
	return Options{
		PCSC:      pcsc.DefaultContextFactory,
		Blocklist: DefaultBlocklist(),
	}
}

type source struct {
	list   func(opts *Options) ([]Candidate, error)
	driver string
}

var sources = []source{
	{driver: config.DriverPN532UART, list: listSerial},
	{driver: config.DriverPN532I2C, list: listI2C},
	{driver: config.DriverPCSC, list: listPCSC},
}

// Detect lists candidates from every source. A failing source does not
// hide the others; its error is joined into the returned error.
func Detect(opts Options) ([]Candidate, error) {
	return detect(&opts, sources)
}

func detect(opts *Options, srcs []source) ([]Candidate, error) {
	var (
		found []Candidate
		errs  []error
	)
	for _, src := range srcs {
		cands, err := src.list(opts)
		if err != nil {
			log.Debug().Err(err).Str("driver", src.driver).Msg("detection source failed")
			errs = append(errs, fmt.Errorf("%s: %w", src.driver, err))
			continue
		}
		for _, c := range cands {
			if IsPathIgnored(c.Path, opts.IgnorePaths) {
				continue
			}
			found = append(found, c)
		}
	}
	return found, errors.Join(errs...)
}

func listSerial(opts *Options) ([]Candidate, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("listing serial ports: %w", err)
	}
	return serialCandidates(ports, opts.Blocklist), nil
}

func serialCandidates(ports []*enumerator.PortDetails, blocklist []string) []Candidate {
	cands := make([]Candidate, 0, len(ports))
	for _, p := range ports {
		desc := "serial port"
		if p.IsUSB {
			vidpid := p.VID + ":" + p.PID
			if IsBlocked(vidpid, blocklist) {
				continue
			}
			desc = "USB " + vidpid
			if p.Product != "" {
				desc += " " + p.Product
			}
		}
		cands = append(cands, Candidate{Driver: config.DriverPN532UART, Path: p.Name, Description: desc})
	}
	return cands
}

func listI2C(_ *Options) ([]Candidate, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initializing periph host: %w", err)
	}
	refs := i2creg.All()
	cands := make([]Candidate, 0, len(refs))
	for _, ref := range refs {
		cands = append(cands, Candidate{
			Driver:      config.DriverPN532I2C,
			Path:        ref.Name,
			Description: fmt.Sprintf("I2C bus %d", ref.Number),
		})
	}
	return cands, nil
}

func listPCSC(opts *Options) ([]Candidate, error) {
	if opts.PCSC == nil {
		return nil, nil
	}
	ctx, err := opts.PCSC()
	if err != nil {
		return nil, fmt.Errorf("establishing PC/SC context: %w", err)
	}
	defer func() { _ = ctx.Release() }()

	readers, err := ctx.ListReaders()
	if errors.Is(err, scard.ErrNoReadersAvailable) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing PC/SC readers: %w", err)
	}
	cands := make([]Candidate, 0, len(readers))
	for _, name := range readers {
		cands = append(cands, Candidate{Driver: config.DriverPCSC, Path: name, Description: "PC/SC reader"})
	}
	return cands, nil
}
