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

package cardrecord

import (
	"errors"
	"fmt"
)

// Integrity errors. These indicate a broken build rather than a bad card.
var (
	ErrLayoutMismatch = errors.New("information block layout does not match wire size")
)

// Rejection errors. Every one of these means "this card or this operation
// did not work, move on"; none of them is fatal to the caller.
var (
	ErrNoTransceiver    = errors.New("no transceiver configured")
	ErrUnsupportedCard  = errors.New("unsupported card type")
	ErrAuthentication   = errors.New("card authentication failed")
	ErrCommunication    = errors.New("card communication failed")
	ErrForeignCard      = errors.New("card does not belong to this box")
	ErrUnknownVersion   = errors.New("unknown information block version")
	ErrEmptyFileName    = errors.New("file name is empty")
	ErrInvalidFileName  = errors.New("file name is not storable")
	ErrFileNameTooLong  = errors.New("file name too long")
	ErrCorruptHeader    = errors.New("information block is corrupt")
	ErrCardLost         = errors.New("card is no longer present")
	ErrCapacityExceeded = errors.New("record does not fit on card")
)

// IsFatal reports whether err signals a programming-integrity problem.
func IsFatal(err error) bool {
	return errors.Is(err, ErrLayoutMismatch)
}

// IsRejection reports whether err is a non-fatal, per-card rejection.
func IsRejection(err error) bool {
	return err != nil && !IsFatal(err)
}

// StatusCode is the outcome of a single transceiver command.
type StatusCode int

const (
	StatusOK StatusCode = iota
	StatusCommError
	StatusCollision
	StatusTimeout
	StatusNoRoom
	StatusInternalError
	StatusInvalid
	StatusCRCWrong
	StatusMifareNACK
	StatusAuthFailed
)

// String returns a human-readable name for the status code.
func (s StatusCode) String() string {
	switch s {
	case StatusOK:
		return "Success."
	case StatusCommError:
		return "Error in communication."
	case StatusCollision:
		return "Collision detected."
	case StatusTimeout:
		return "Timeout in communication."
	case StatusNoRoom:
		return "A buffer is not big enough."
	case StatusInternalError:
		return "Internal error in the code. Should not happen."
	case StatusInvalid:
		return "Invalid argument."
	case StatusCRCWrong:
		return "The CRC_A does not match."
	case StatusMifareNACK:
		return "A MIFARE PICC responded with NAK."
	case StatusAuthFailed:
		return "Authentication rejected by the card."
	default:
		return "Unknown error"
	}
}

// StatusError is returned by transceiver backends when a command fails.
// Err optionally carries the backend's own error.
type StatusError struct {
	Err    error
	Op     string
	Detail string
	Code   StatusCode
}

func (e *StatusError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Code, e.Detail)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// NewStatusError builds a StatusError.
func NewStatusError(op string, code StatusCode, detail string) *StatusError {
	return &StatusError{Op: op, Code: code, Detail: detail}
}

// WrapStatus wraps a backend error with a status code.
func WrapStatus(op string, code StatusCode, err error) *StatusError {
	return &StatusError{Op: op, Code: code, Err: err}
}

// StatusOf extracts the status code carried by err, StatusCommError when err
// carries none and StatusOK for nil.
func StatusOf(err error) StatusCode {
	if err == nil {
		return StatusOK
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return StatusCommError
}

// BlockError describes a failed authenticate, read or write of one block.
type BlockError struct {
	Err   error
	Kind  error
	Op    string
	Block int
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("%s block %d: %v", e.Op, e.Block, e.Err)
}

// Unwrap exposes both the rejection kind and the transceiver cause.
func (e *BlockError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func authError(block int, err error) error {
	return &BlockError{Op: "authenticate", Block: block, Kind: ErrAuthentication, Err: err}
}

func readError(block int, err error) error {
	return &BlockError{Op: "read", Block: block, Kind: ErrCommunication, Err: err}
}

func writeError(block int, err error) error {
	return &BlockError{Op: "write", Block: block, Kind: ErrCommunication, Err: err}
}
