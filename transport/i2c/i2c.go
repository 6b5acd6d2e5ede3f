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

// Package i2c provides the I2C transport for PN532 readers
package i2c

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arnuschky/EnRav/internal/frame"
	"github.com/arnuschky/EnRav/internal/transport"
	"github.com/arnuschky/EnRav/pn532"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// 7-bit PN532 address; 0x48/0x49 on the wire.
	pn532Addr  = 0x24
	pn532Ready = 0x01

	maxClockFreq    = 400 * physic.KiloHertz
	defaultTimeout  = time.Second
	processingDelay = 6 * time.Millisecond
	maxResends      = 3
)

// conn is the subset of periph's conn.Conn the transport uses
type conn interface {
	Tx(w, r []byte) error
}

// Transport implements pn532.Transport for I2C communication
type Transport struct {
	dev     conn
	closer  func() error
	busName string
	timeout time.Duration
	mu      sync.Mutex
}

var _ pn532.Transport = (*Transport)(nil)

// New opens busName (e.g. "/dev/i2c-1" or "1") and addresses the PN532
func New(busName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	// Not every bus driver supports setting the clock.
	_ = bus.SetSpeed(maxClockFreq)

	t := newTransport(&i2c.Dev{Addr: pn532Addr, Bus: bus}, busName)
	t.closer = bus.Close
	return t, nil
}

func newTransport(dev conn, busName string) *Transport {
	return &Transport{
		dev:     dev,
		busName: busName,
		timeout: defaultTimeout,
	}
}

// SendCommand sends a command to the PN532 and waits for response
func (t *Transport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev == nil {
		return nil, pn532.NewTransportError("SendCommand", t.busName, pn532.ErrTransportClosed, pn532.ErrorTypePermanent)
	}

	frm, err := frame.Build(cmd, args)
	if err != nil {
		return nil, pn532.NewDataTooLargeError("SendCommand", t.busName)
	}
	if err := t.dev.Tx(frm, nil); err != nil {
		return nil, pn532.NewTransportError("sendFrame", t.busName,
			fmt.Errorf("%w: %w", pn532.ErrTransportWrite, err), pn532.ErrorTypeTransient)
	}
	if err := t.waitAck(); err != nil {
		return nil, err
	}

	time.Sleep(processingDelay)

	return transport.Receive(transport.Resend{
		Op:    "receiveFrame",
		Limit: maxResends,
		Nack: func() error {
			return t.tx(frame.NackFrame)
		},
		GiveUp: func() error {
			return pn532.NewTransportError("receiveFrame", t.busName, pn532.ErrChecksumMismatch, pn532.ErrorTypeTransient)
		},
	}, t.receiveFrame)
}

func (t *Transport) tx(data []byte) error {
	if err := t.dev.Tx(data, nil); err != nil {
		return pn532.NewTransportError("write", t.busName,
			fmt.Errorf("%w: %w", pn532.ErrTransportWrite, err), pn532.ErrorTypeTransient)
	}
	return nil
}

// readReady reads n bytes after the status byte once the PN532 reports
// ready; ok is false while it is still busy
func (t *Transport) readReady(n int) (data []byte, ok bool, err error) {
	buf := make([]byte, n+1)
	if err := t.dev.Tx(nil, buf); err != nil {
		return nil, false, pn532.NewTransportError("read", t.busName,
			fmt.Errorf("%w: %w", pn532.ErrTransportRead, err), pn532.ErrorTypeTransient)
	}
	if buf[0]&pn532Ready == 0 {
		return nil, false, nil
	}
	return buf[1:], true, nil
}

func (t *Transport) waitAck() error {
	_, err := transport.Poll(t.timeout, func() (struct{}, bool, error) {
		data, ok, err := t.readReady(len(frame.AckFrame))
		if err != nil || !ok {
			return struct{}{}, err == nil, err
		}
		return struct{}{}, !frame.IsAck(data), nil
	})
	if errors.Is(err, pn532.ErrTransportTimeout) {
		return pn532.NewNoACKError("waitAck", t.busName)
	}
	return err
}

func (t *Transport) receiveFrame() ([]byte, bool, error) {
	data, err := transport.Poll(t.timeout, func() ([]byte, bool, error) {
		raw, ok, err := t.readReady(frame.MaxFrameDataLength + 7)
		if err != nil || !ok {
			return nil, err == nil, err
		}
		data, _, err := frame.Parse(raw)
		return data, false, err
	})
	switch {
	case err == nil:
		return data, false, t.tx(frame.AckFrame)
	case errors.Is(err, frame.ErrDataChecksum), errors.Is(err, frame.ErrLengthChecksum),
		errors.Is(err, frame.ErrTruncated), errors.Is(err, frame.ErrNoStartCode):
		return nil, true, nil
	case errors.Is(err, pn532.ErrTransportTimeout):
		return nil, false, pn532.NewTimeoutError("receiveFrame", t.busName)
	case errors.Is(err, frame.ErrApplicationFail), errors.Is(err, frame.ErrUnexpectedTFI):
		return nil, false, pn532.NewTransportError("receiveFrame", t.busName,
			fmt.Errorf("%w: %w", pn532.ErrFrameCorrupted, err), pn532.ErrorTypePermanent)
	default:
		return nil, false, err
	}
}

// SetTimeout sets the ACK and response timeout
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close closes the bus
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dev = nil
	if t.closer == nil {
		return nil
	}
	closer := t.closer
	t.closer = nil
	if err := closer(); err != nil {
		return fmt.Errorf("failed to close I2C bus %s: %w", t.busName, err)
	}
	return nil
}

// IsConnected returns true while the bus is open
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev != nil
}

// Type returns the transport type
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportI2C
}
