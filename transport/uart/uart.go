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

// Package uart provides the HSU serial transport for PN532 readers
package uart

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/arnuschky/EnRav/internal/frame"
	"github.com/arnuschky/EnRav/internal/transport"
	"github.com/arnuschky/EnRav/pn532"
	"go.bug.st/serial"
)

const (
	baudRate        = 115200
	defaultTimeout  = time.Second
	readPollTimeout = 10 * time.Millisecond
	maxResends      = 3
)

// wakeupPreamble takes the PN532 out of power-down on HSU.
var wakeupPreamble = []byte{
	0x55, 0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// port is the subset of serial.Port the transport uses
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Transport implements pn532.Transport over a serial port
type Transport struct {
	port     port
	lock     *os.File
	portName string
	buf      []byte
	timeout  time.Duration
	mu       sync.Mutex
	awake    bool
}

var _ pn532.Transport = (*Transport)(nil)

// New opens portName at 115200 8N1 and takes an exclusive lock on it
func New(portName string) (*Transport, error) {
	lock, err := acquireLock(portName)
	if err != nil {
		return nil, err
	}
	p, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		releaseLock(lock)
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	t := newTransport(p, portName)
	t.lock = lock
	if err := p.SetReadTimeout(readPollTimeout); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}
	return t, nil
}

func newTransport(p port, portName string) *Transport {
	return &Transport{
		port:     p,
		portName: portName,
		timeout:  defaultTimeout,
	}
}

// SendCommand sends a command frame, waits for the ACK and returns the
// response payload
func (t *Transport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil, pn532.NewTransportError("SendCommand", t.portName, pn532.ErrTransportClosed, pn532.ErrorTypePermanent)
	}

	frm, err := frame.Build(cmd, args)
	if err != nil {
		return nil, pn532.NewDataTooLargeError("SendCommand", t.portName)
	}
	if err := t.wakeup(); err != nil {
		return nil, err
	}
	_ = t.port.ResetInputBuffer()
	t.buf = t.buf[:0]
	if err := t.write(frm); err != nil {
		return nil, err
	}
	if err := t.waitAck(); err != nil {
		return nil, err
	}
	return transport.Receive(transport.Resend{
		Op:    "receiveFrame",
		Limit: maxResends,
		Nack: func() error {
			t.buf = t.buf[:0]
			return t.write(frame.NackFrame)
		},
		GiveUp: func() error {
			return pn532.NewTransportError("receiveFrame", t.portName, pn532.ErrChecksumMismatch, pn532.ErrorTypeTransient)
		},
	}, t.receiveFrame)
}

func (t *Transport) wakeup() error {
	if t.awake {
		return nil
	}
	if err := t.write(wakeupPreamble); err != nil {
		return err
	}
	t.awake = true
	return nil
}

func (t *Transport) write(data []byte) error {
	if _, err := t.port.Write(data); err != nil {
		return pn532.NewTransportError("write", t.portName, fmt.Errorf("%w: %w", pn532.ErrTransportWrite, err),
			pn532.ErrorTypeTransient)
	}
	return nil
}

// fill reads whatever the port has within one poll interval
func (t *Transport) fill() error {
	chunk := make([]byte, 64)
	n, err := t.port.Read(chunk)
	if err != nil {
		return pn532.NewTransportError("read", t.portName, fmt.Errorf("%w: %w", pn532.ErrTransportRead, err),
			pn532.ErrorTypeTransient)
	}
	t.buf = append(t.buf, chunk[:n]...)
	return nil
}

func (t *Transport) waitAck() error {
	_, err := transport.Poll(t.timeout, func() (struct{}, bool, error) {
		if i := bytes.Index(t.buf, frame.AckFrame); i >= 0 {
			t.buf = t.buf[i+len(frame.AckFrame):]
			return struct{}{}, false, nil
		}
		if err := t.fill(); err != nil {
			return struct{}{}, false, err
		}
		return struct{}{}, true, nil
	})
	if errors.Is(err, pn532.ErrTransportTimeout) {
		return pn532.NewNoACKError("waitAck", t.portName)
	}
	return err
}

// receiveFrame reads until one response frame is complete; a corrupted
// frame asks Receive for a NACK and another attempt
func (t *Transport) receiveFrame() ([]byte, bool, error) {
	data, err := transport.Poll(t.timeout, func() ([]byte, bool, error) {
		data, consumed, err := frame.Parse(t.buf)
		switch {
		case err == nil:
			t.buf = t.buf[consumed:]
			return data, false, nil
		case errors.Is(err, frame.ErrTruncated), errors.Is(err, frame.ErrNoStartCode):
			if err := t.fill(); err != nil {
				return nil, false, err
			}
			return nil, true, nil
		default:
			return nil, false, err
		}
	})
	switch {
	case err == nil:
		return data, false, nil
	case errors.Is(err, frame.ErrDataChecksum), errors.Is(err, frame.ErrLengthChecksum):
		return nil, true, nil
	case errors.Is(err, pn532.ErrTransportTimeout):
		return nil, false, pn532.NewTimeoutError("receiveFrame", t.portName)
	case errors.Is(err, frame.ErrApplicationFail), errors.Is(err, frame.ErrUnexpectedTFI):
		return nil, false, pn532.NewTransportError("receiveFrame", t.portName,
			fmt.Errorf("%w: %w", pn532.ErrFrameCorrupted, err), pn532.ErrorTypePermanent)
	default:
		return nil, false, err
	}
}

// SetTimeout sets how long to wait for the ACK and the response
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close closes the port and releases its lock
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var err error
	if t.port != nil {
		err = t.port.Close()
		t.port = nil
	}
	releaseLock(t.lock)
	t.lock = nil
	if err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", t.portName, err)
	}
	return nil
}

// IsConnected returns true while the port is open
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Type returns the transport type
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportUART
}
