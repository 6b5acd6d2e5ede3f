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

//go:build libnfc

// Package libnfc drives MIFARE cards through any reader libnfc supports.
// It needs the libnfc C library and the libnfc build tag.
package libnfc

import (
	"errors"
	"fmt"

	cardrecord "github.com/arnuschky/EnRav"
	"github.com/arnuschky/EnRav/pn532"
	"github.com/clausecker/nfc/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// device is the subset of nfc.Device the transceiver uses
type device interface {
	InitiatorInit() error
	InitiatorSelectPassiveTarget(m nfc.Modulation, initData []byte) (nfc.Target, error)
	InitiatorTransceiveBytes(tx, rx []byte, timeout int) (int, error)
	InitiatorDeselectTarget() error
	String() string
	Close() error
}

var iso14443a = nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}

// DefaultTimeout is the per-command timeout in milliseconds
const DefaultTimeout = 500

var ErrNotISO14443A = errors.New("target is not ISO14443A")

// Transceiver drives cards through libnfc. It is not safe for concurrent
// use.
type Transceiver struct {
	dev     device
	open    func(conn string) (device, error)
	target  *nfc.ISO14443aTarget
	log     zerolog.Logger
	conn    string
	timeout int
}

var (
	_ cardrecord.Transceiver      = (*Transceiver)(nil)
	_ cardrecord.FirmwareReporter = (*Transceiver)(nil)
)

// Option configures a Transceiver
type Option func(*Transceiver)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transceiver) {
		t.log = logger
	}
}

// WithTimeout sets the per-command timeout in milliseconds
func WithTimeout(ms int) Option {
	return func(t *Transceiver) {
		t.timeout = ms
	}
}

func withDevice(dev device) Option {
	return func(t *Transceiver) {
		t.open = func(string) (device, error) { return dev, nil }
	}
}

// NewTransceiver creates a transceiver for the libnfc connection string,
// e.g. "pn532_uart:/dev/ttyUSB0". An empty string picks the first device.
func NewTransceiver(conn string, opts ...Option) *Transceiver {
	t := &Transceiver{
		conn: conn,
		open: func(conn string) (device, error) {
			dev, err := nfc.Open(conn)
			if err != nil {
				return nil, fmt.Errorf("failed to open NFC device: %w", err)
			}
			return &dev, nil
		},
		log:     log.With().Str("component", "libnfc").Logger(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func statusOf(err error) cardrecord.StatusCode {
	switch {
	case errors.Is(err, nfc.Error(nfc.ETIMEOUT)):
		return cardrecord.StatusTimeout
	case errors.Is(err, nfc.Error(nfc.EMFCAUTHFAIL)):
		return cardrecord.StatusAuthFailed
	case errors.Is(err, nfc.Error(nfc.ERFTRANS)):
		return cardrecord.StatusMifareNACK
	case errors.Is(err, nfc.Error(nfc.EOVFLOW)):
		return cardrecord.StatusNoRoom
	default:
		return cardrecord.StatusCommError
	}
}

// Init opens the device on first use and configures it as initiator.
func (t *Transceiver) Init() error {
	t.target = nil
	if t.dev == nil {
		dev, err := t.open(t.conn)
		if err != nil {
			return cardrecord.WrapStatus("init", cardrecord.StatusCommError, err)
		}
		t.dev = dev
	}
	if err := t.dev.InitiatorInit(); err != nil {
		return cardrecord.WrapStatus("init", statusOf(err), err)
	}
	return nil
}

// FirmwareVersion returns the device name libnfc reports.
func (t *Transceiver) FirmwareVersion() (string, error) {
	if t.dev == nil {
		return "", cardrecord.NewStatusError("firmware version", cardrecord.StatusCommError, "device not open")
	}
	return t.dev.String(), nil
}

func (t *Transceiver) selectTarget(op string) (*nfc.ISO14443aTarget, error) {
	if t.dev == nil {
		return nil, cardrecord.NewStatusError(op, cardrecord.StatusCommError, "device not open")
	}
	tgt, err := t.dev.InitiatorSelectPassiveTarget(iso14443a, nil)
	if err != nil {
		return nil, cardrecord.WrapStatus(op, statusOf(err), err)
	}
	card, ok := tgt.(*nfc.ISO14443aTarget)
	if !ok {
		return nil, cardrecord.WrapStatus(op, cardrecord.StatusCommError, ErrNotISO14443A)
	}
	if card.UIDLen == 0 || card.UIDLen > cardrecord.MaxIdentityLength {
		return nil, cardrecord.NewStatusError(op, cardrecord.StatusCommError,
			fmt.Sprintf("UID of %d bytes", card.UIDLen))
	}
	t.log.Debug().
		Hex("uid", card.UID[:card.UIDLen]).
		Hex("atqa", card.Atqa[:]).
		Uint8("sak", card.Sak).
		Msg("target selected")
	return card, nil
}

func (t *Transceiver) deselect() {
	if t.target == nil {
		return
	}
	if err := t.dev.InitiatorDeselectTarget(); err != nil {
		t.log.Debug().Err(err).Msg("deselecting target failed")
	}
	t.target = nil
}

// IsNewCardPresent selects a target while none is held.
func (t *Transceiver) IsNewCardPresent() bool {
	if t.target != nil {
		return false
	}
	tgt, err := t.selectTarget("detect")
	if err != nil {
		if cardrecord.StatusOf(err) != cardrecord.StatusTimeout {
			t.log.Debug().Err(err).Msg("detecting card failed")
		}
		return false
	}
	t.target = tgt
	return true
}

// Wakeup deselects the held target and selects again.
func (t *Transceiver) Wakeup() error {
	t.deselect()
	tgt, err := t.selectTarget("wakeup")
	if err != nil {
		return err
	}
	t.target = tgt
	return nil
}

// ReadCardSerial returns the held target's UID, selecting one if needed.
func (t *Transceiver) ReadCardSerial() (cardrecord.Identity, error) {
	if t.target == nil {
		tgt, err := t.selectTarget("read serial")
		if err != nil {
			return nil, err
		}
		t.target = tgt
	}
	return cardrecord.Identity(t.target.UID[:t.target.UIDLen]).Clone(), nil
}

// CardType classifies the held target by its SAK.
func (t *Transceiver) CardType() cardrecord.CardType {
	if t.target == nil {
		return cardrecord.CardTypeUnknown
	}
	return cardrecord.CardTypeFromSAK(t.target.Sak)
}

func (t *Transceiver) transceive(op string, tx []byte, rxSize int) ([]byte, error) {
	if t.target == nil {
		return nil, cardrecord.NewStatusError(op, cardrecord.StatusTimeout, "no target selected")
	}
	rx := make([]byte, rxSize)
	n, err := t.dev.InitiatorTransceiveBytes(tx, rx, t.timeout)
	if err != nil {
		return nil, cardrecord.WrapStatus(op, statusOf(err), err)
	}
	t.log.Trace().Str("op", op).Hex("tx", tx).Hex("rx", rx[:n]).Msg("libnfc transceive")
	return rx[:n], nil
}

// Authenticate sends the MIFARE Classic auth command; libnfc's easy
// framing hands it to the chip's Crypto1 engine.
func (t *Transceiver) Authenticate(
	keyType cardrecord.KeyType, block uint8, key cardrecord.Key, id cardrecord.Identity,
) error {
	if len(id) < 4 {
		return cardrecord.NewStatusError("authenticate", cardrecord.StatusInvalid, "UID shorter than 4 bytes")
	}
	tx := make([]byte, 0, 12)
	tx = append(tx, byte(keyType), block)
	tx = append(tx, key[:]...)
	tx = append(tx, id[len(id)-4:]...)
	_, err := t.transceive("authenticate", tx, 0)
	if err != nil && cardrecord.StatusOf(err) == cardrecord.StatusCommError {
		return cardrecord.WrapStatus("authenticate", cardrecord.StatusAuthFailed, err)
	}
	return err
}

// AuthenticateUltralight sends PWD_AUTH and returns the PACK.
func (t *Transceiver) AuthenticateUltralight(pwd [4]byte) ([2]byte, error) {
	var pack [2]byte
	rx, err := t.transceive("pwd_auth", append([]byte{pn532.NTAGPasswordAuth}, pwd[:]...), 2)
	if err != nil {
		return pack, err
	}
	if len(rx) < 2 {
		return pack, cardrecord.NewStatusError("pwd_auth", cardrecord.StatusMifareNACK, "no PACK")
	}
	copy(pack[:], rx)
	return pack, nil
}

// ReadBlock issues MIFARE READ.
func (t *Transceiver) ReadBlock(block uint8) ([]byte, error) {
	rx, err := t.transceive("read", []byte{pn532.MifareRead, block}, 16)
	if err != nil {
		return nil, err
	}
	if len(rx) < 16 {
		return nil, cardrecord.NewStatusError("read", cardrecord.StatusNoRoom,
			fmt.Sprintf("got %d bytes", len(rx)))
	}
	return rx, nil
}

// WriteBlock issues MIFARE WRITE or the 4-byte Ultralight WRITE.
func (t *Transceiver) WriteBlock(block uint8, data [16]byte) error {
	tx := append([]byte{pn532.UltralightWrite, block}, data[:4]...)
	if t.CardType().IsClassic() {
		tx = append([]byte{pn532.MifareWrite, block}, data[:]...)
	}
	_, err := t.transceive("write", tx, 0)
	return err
}

// Halt deselects the target.
func (t *Transceiver) Halt() error {
	t.deselect()
	return nil
}

// StopCrypto is a no-op: deselecting ends the Crypto1 session.
func (*Transceiver) StopCrypto() {}

// Close closes the device
func (t *Transceiver) Close() error {
	if t.dev == nil {
		return nil
	}
	t.deselect()
	dev := t.dev
	t.dev = nil
	if err := dev.Close(); err != nil {
		return fmt.Errorf("failed to close NFC device: %w", err)
	}
	return nil
}
