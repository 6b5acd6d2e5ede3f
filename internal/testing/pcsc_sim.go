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

package testing

import (
	"sync"
	"time"

	cardrecord "github.com/arnuschky/EnRav"
	"github.com/arnuschky/EnRav/pcsc"
	"github.com/arnuschky/EnRav/virtual"
	"github.com/ebfe/scard"
)

// SimReaderName is the reader name the PC/SC simulator lists
const SimReaderName = "ACS ACR122U PICC Interface 00 00"

var (
	swOK           = []byte{0x90, 0x00}
	swFailed       = []byte{0x63, 0x00}
	swNotSupported = []byte{0x6A, 0x81}
)

// PCSCSim implements pcsc.Context for one ACR122-style reader holding at
// most one virtual card.
type PCSCSim struct {
	card      *virtual.Card
	statusErr error
	apdus     [][]byte
	mu        sync.Mutex
	connects  int
	released  bool
}

var _ pcsc.Context = (*PCSCSim)(nil)

// NewPCSCSim creates a simulator with card on the reader; card may be nil.
func NewPCSCSim(card *virtual.Card) *PCSCSim {
	return &PCSCSim{card: card}
}

// Factory returns a context factory handing out the simulator.
func (s *PCSCSim) Factory() pcsc.ContextFactory {
	return func() (pcsc.Context, error) { return s, nil }
}

// Place puts card on the reader.
func (s *PCSCSim) Place(card *virtual.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.card = card
}

// Remove takes the card off the reader.
func (s *PCSCSim) Remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.card = nil
}

// FailStatus makes reader state queries fail with err until cleared with nil.
func (s *PCSCSim) FailStatus(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusErr = err
}

// APDUs returns every transmitted command.
func (s *PCSCSim) APDUs() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.apdus...)
}

// Connects returns how often a card connection was opened.
func (s *PCSCSim) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Released reports whether the context was released.
func (s *PCSCSim) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// ATRFor builds the PC/SC part 3 ATR a reader reports for card.
func ATRFor(card *virtual.Card) []byte {
	var name byte
	switch card.SAK() {
	case 0x09:
		name = 0x26
	case 0x08:
		name = 0x01
	case 0x18:
		name = 0x02
	case 0x00:
		name = 0x03
	}
	atr := []byte{
		0x3B, 0x8F, 0x80, 0x01, 0x80, 0x4F, 0x0C,
		0xA0, 0x00, 0x00, 0x03, 0x06, 0x03,
		0x00, name, 0x00, 0x00, 0x00, 0x00,
	}
	var tck byte
	for _, b := range atr[1:] {
		tck ^= b
	}
	return append(atr, tck)
}

func (*PCSCSim) ListReaders() ([]string, error) {
	return []string{SimReaderName}, nil
}

func (s *PCSCSim) GetStatusChange(rs []scard.ReaderState, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return s.statusErr
	}
	for i := range rs {
		if rs[i].Reader != SimReaderName {
			rs[i].EventState = scard.StateUnknown
			continue
		}
		if s.card == nil {
			rs[i].EventState = scard.StateEmpty
			continue
		}
		rs[i].EventState = scard.StatePresent
		rs[i].Atr = ATRFor(s.card)
	}
	return nil
}

func (s *PCSCSim) Connect(reader string, _ scard.ShareMode, _ scard.Protocol) (pcsc.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reader != SimReaderName {
		return nil, scard.ErrUnknownReader
	}
	if s.card == nil {
		return nil, scard.ErrNoSmartcard
	}
	s.card.ResetAuth()
	s.connects++
	return &simCard{sim: s, card: s.card}, nil
}

func (s *PCSCSim) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	return nil
}

// simCard is one connection to the card on the simulated reader
type simCard struct {
	sim    *PCSCSim
	card   *virtual.Card
	key    cardrecord.Key
	closed bool
}

func (c *simCard) Status() (*scard.CardStatus, error) {
	c.sim.mu.Lock()
	defer c.sim.mu.Unlock()
	if c.closed {
		return nil, scard.ErrInvalidHandle
	}
	return &scard.CardStatus{
		Reader:         SimReaderName,
		ActiveProtocol: scard.ProtocolT1,
		Atr:            ATRFor(c.card),
	}, nil
}

func (c *simCard) Disconnect(scard.Disposition) error {
	c.sim.mu.Lock()
	defer c.sim.mu.Unlock()
	c.closed = true
	return nil
}

func (c *simCard) Transmit(apdu []byte) ([]byte, error) {
	c.sim.mu.Lock()
	defer c.sim.mu.Unlock()
	c.sim.apdus = append(c.sim.apdus, append([]byte(nil), apdu...))
	switch {
	case c.closed:
		return nil, scard.ErrInvalidHandle
	case c.sim.card != c.card:
		return nil, scard.ErrRemovedCard
	case len(apdu) < 5 || apdu[0] != 0xFF:
		return swNotSupported, nil
	}
	return c.execute(apdu), nil
}

func (c *simCard) execute(apdu []byte) []byte {
	p2, lc := int(apdu[3]), int(apdu[4])
	body := apdu[5:]
	switch apdu[1] {
	case 0xCA:
		return append(c.card.UID.Clone(), swOK...)
	case 0x82:
		if len(body) < 6 {
			return swNotSupported
		}
		copy(c.key[:], body[:6])
		return swOK
	case 0x86:
		if len(body) < 5 {
			return swNotSupported
		}
		if err := c.card.Authenticate(cardrecord.KeyType(body[3]), int(body[2]), c.key); err != nil {
			return swFailed
		}
		return swOK
	case 0xB0:
		data, err := c.card.Read(p2)
		if err != nil {
			return swFailed
		}
		n := min(lc, len(data))
		return append(append([]byte(nil), data[:n]...), swOK...)
	case 0xD6:
		var block [16]byte
		copy(block[:], body[:min(lc, len(body))])
		if err := c.card.Write(p2, block); err != nil {
			return swFailed
		}
		return swOK
	case 0x00:
		return c.direct(body)
	default:
		return swNotSupported
	}
}

// direct answers PN53x InCommunicateThru PWD_AUTH passed through the reader
func (c *simCard) direct(body []byte) []byte {
	if len(body) < 7 || body[0] != 0xD4 || body[1] != 0x42 || body[2] != 0x1B {
		return swNotSupported
	}
	var pwd [4]byte
	copy(pwd[:], body[3:7])
	pack, err := c.card.PasswordAuth(pwd)
	if err != nil {
		return append([]byte{0xD5, 0x43, 0x01}, swOK...)
	}
	return append([]byte{0xD5, 0x43, 0x00, pack[0], pack[1]}, swOK...)
}
