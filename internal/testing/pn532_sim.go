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

// Package testing provides PN532 and PC/SC reader simulators backed by
// virtual cards.
package testing

import (
	"sync"
	"time"

	cardrecord "github.com/arnuschky/EnRav"
	"github.com/arnuschky/EnRav/pn532"
	"github.com/arnuschky/EnRav/virtual"
)

const (
	simStatusOK         = 0x00
	simStatusTimeout    = 0x01
	simStatusMifareAuth = 0x14
	simStatusBadCommand = 0x27
)

// PN532Sim implements pn532.Transport by answering commands from a
// virtual card in its field.
type PN532Sim struct {
	card      *virtual.Card
	errors    map[byte]error
	responses map[byte][]byte
	commands  []byte
	mu        sync.Mutex
	listed    bool
	closed    bool
}

var _ pn532.Transport = (*PN532Sim)(nil)

// NewPN532Sim creates a simulator with card in its field; card may be nil.
func NewPN532Sim(card *virtual.Card) *PN532Sim {
	return &PN532Sim{
		card:      card,
		errors:    make(map[byte]error),
		responses: make(map[byte][]byte),
	}
}

// Place puts card into the field.
func (s *PN532Sim) Place(card *virtual.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.card = card
	s.listed = false
}

// Remove empties the field.
func (s *PN532Sim) Remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.card = nil
	s.listed = false
}

// SetError makes every cmd fail with err.
func (s *PN532Sim) SetError(cmd byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[cmd] = err
}

// SetResponse answers every cmd with resp instead of simulating it.
func (s *PN532Sim) SetResponse(cmd byte, resp []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[cmd] = resp
}

// Commands returns the command codes received, in order.
func (s *PN532Sim) Commands() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.commands...)
}

func (s *PN532Sim) SendCommand(cmd byte, args []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, pn532.NewTransportError("SendCommand", "sim", pn532.ErrTransportClosed, pn532.ErrorTypePermanent)
	}
	s.commands = append(s.commands, cmd)
	if err, ok := s.errors[cmd]; ok {
		return nil, err
	}
	if resp, ok := s.responses[cmd]; ok {
		return append([]byte(nil), resp...), nil
	}

	switch cmd {
	case pn532.CmdGetFirmwareVersion:
		return BuildFirmwareVersionResponse(), nil
	case pn532.CmdSAMConfiguration, pn532.CmdRFConfiguration:
		return BuildAckResponse(cmd), nil
	case pn532.CmdInListPassiveTarget:
		if s.card == nil {
			s.listed = false
			return BuildNoTargetResponse(), nil
		}
		s.card.ResetAuth()
		s.listed = true
		return BuildTargetResponse(s.card), nil
	case pn532.CmdInRelease:
		if s.card != nil {
			s.card.ResetAuth()
		}
		s.listed = false
		return BuildStatusResponse(cmd, simStatusOK), nil
	case pn532.CmdInDataExchange:
		return s.dataExchange(args), nil
	case pn532.CmdInCommunicateThru:
		return s.communicateThru(args), nil
	default:
		return BuildStatusResponse(cmd, simStatusBadCommand), nil
	}
}

func statusFor(err error) byte {
	switch cardrecord.StatusOf(err) {
	case cardrecord.StatusOK:
		return simStatusOK
	case cardrecord.StatusAuthFailed:
		return simStatusMifareAuth
	default:
		return simStatusTimeout
	}
}

func (s *PN532Sim) dataExchange(args []byte) []byte {
	const cmd = pn532.CmdInDataExchange
	if !s.listed || s.card == nil || len(args) < 3 {
		return BuildStatusResponse(cmd, simStatusBadCommand)
	}
	op, block := args[1], int(args[2])
	switch op {
	case byte(cardrecord.KeyA), byte(cardrecord.KeyB):
		if len(args) < 13 {
			return BuildStatusResponse(cmd, simStatusBadCommand)
		}
		uid := s.card.UID
		if string(args[9:13]) != string(uid[len(uid)-4:]) {
			return BuildStatusResponse(cmd, simStatusMifareAuth)
		}
		var key cardrecord.Key
		copy(key[:], args[3:9])
		return BuildStatusResponse(cmd, statusFor(s.card.Authenticate(cardrecord.KeyType(op), block, key)))
	case pn532.MifareRead:
		data, err := s.card.Read(block)
		if err != nil {
			return BuildStatusResponse(cmd, statusFor(err))
		}
		return BuildStatusResponse(cmd, simStatusOK, data...)
	case pn532.MifareWrite, pn532.UltralightWrite:
		var data [16]byte
		copy(data[:], args[3:])
		return BuildStatusResponse(cmd, statusFor(s.card.Write(block, data)))
	default:
		return BuildStatusResponse(cmd, simStatusBadCommand)
	}
}

func (s *PN532Sim) communicateThru(args []byte) []byte {
	const cmd = pn532.CmdInCommunicateThru
	if !s.listed || s.card == nil || len(args) < 5 || args[0] != pn532.NTAGPasswordAuth {
		return BuildStatusResponse(cmd, simStatusBadCommand)
	}
	var pwd [4]byte
	copy(pwd[:], args[1:5])
	pack, err := s.card.PasswordAuth(pwd)
	if err != nil {
		return BuildStatusResponse(cmd, simStatusTimeout)
	}
	return BuildStatusResponse(cmd, simStatusOK, pack[:]...)
}

func (*PN532Sim) SetTimeout(time.Duration) error { return nil }

func (s *PN532Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *PN532Sim) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (*PN532Sim) Type() pn532.TransportType { return pn532.TransportMock }
