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

// Package pcsc drives MIFARE cards through PC/SC readers such as the
// ACR122U using the reader's pseudo-APDUs
package pcsc

import (
	"fmt"
	"time"

	"github.com/ebfe/scard"
)

// Card is the subset of *scard.Card the transceiver uses
type Card interface {
	Status() (*scard.CardStatus, error)
	Transmit(cmd []byte) ([]byte, error)
	Disconnect(d scard.Disposition) error
}

// Context is the subset of *scard.Context the transceiver uses
type Context interface {
	ListReaders() ([]string, error)
	GetStatusChange(rs []scard.ReaderState, timeout time.Duration) error
	Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (Card, error)
	Release() error
}

// ContextFactory establishes a PC/SC context
type ContextFactory func() (Context, error)

type realContext struct {
	ctx *scard.Context
}

// DefaultContextFactory establishes a context with the system PC/SC daemon
func DefaultContextFactory() (Context, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish scard context: %w", err)
	}
	return &realContext{ctx: ctx}, nil
}

func (r *realContext) ListReaders() ([]string, error) {
	readers, err := r.ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("failed to list readers: %w", err)
	}
	return readers, nil
}

func (r *realContext) GetStatusChange(rs []scard.ReaderState, timeout time.Duration) error {
	if err := r.ctx.GetStatusChange(rs, timeout); err != nil {
		return fmt.Errorf("failed to get status change: %w", err)
	}
	return nil
}

func (r *realContext) Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (Card, error) {
	card, err := r.ctx.Connect(reader, mode, proto)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to reader: %w", err)
	}
	return card, nil
}

func (r *realContext) Release() error {
	if err := r.ctx.Release(); err != nil {
		return fmt.Errorf("failed to release context: %w", err)
	}
	return nil
}
