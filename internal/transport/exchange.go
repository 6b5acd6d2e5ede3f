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

// Package transport holds the frame exchange loops the UART and I2C
// transports share.
package transport

import (
	"fmt"
	"time"

	"github.com/arnuschky/EnRav/pn532"
)

// pollInterval is the pause between two looks at a busy PN532.
const pollInterval = time.Millisecond

// Step is one pass of an exchange loop. again asks for another pass; a
// non-nil error ends the loop with that error.
type Step[T any] func() (result T, again bool, err error)

// Resend bounds how often a damaged response frame is requested again.
type Resend struct {
	// Nack makes the PN532 repeat its last response frame.
	Nack func() error
	// GiveUp builds the error reported once Limit resends were spent. A
	// nil GiveUp, or one returning nil, reports a communication failure.
	GiveUp func() error
	Op     string
	Limit  int
	Pause  time.Duration
}

// Receive reads a response with step. While step reports a damaged frame
// it sends a NACK and reads again, up to Limit times.
func Receive[T any](r Resend, step Step[T]) (T, error) {
	var zero T
	for resends := 0; ; resends++ {
		result, again, err := step()
		switch {
		case err != nil:
			return zero, err
		case !again:
			return result, nil
		case resends == r.Limit:
			return zero, r.exhausted()
		}
		if r.Nack != nil {
			if err := r.Nack(); err != nil {
				return zero, err
			}
		}
		if r.Pause > 0 {
			time.Sleep(r.Pause)
		}
	}
}

func (r Resend) exhausted() error {
	if r.GiveUp != nil {
		if err := r.GiveUp(); err != nil {
			return err
		}
	}
	return pn532.NewTransportError(r.Op, "",
		fmt.Errorf("%w: %d resends", pn532.ErrCommunicationFailed, r.Limit), pn532.ErrorTypeTransient)
}

// Poll runs step until it stops asking for another pass. It returns a
// retryable timeout once timeout has elapsed with the PN532 still busy.
func Poll[T any](timeout time.Duration, step Step[T]) (T, error) {
	var zero T
	deadline := time.Now().Add(timeout)
	for {
		result, again, err := step()
		if err != nil {
			return zero, err
		}
		if !again {
			return result, nil
		}
		if time.Now().After(deadline) {
			return zero, pn532.NewTimeoutError("poll", "")
		}
		time.Sleep(pollInterval)
	}
}
