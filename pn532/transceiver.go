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

package pn532

import (
	"errors"
	"fmt"

	cardrecord "github.com/arnuschky/EnRav"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultPassiveActivationRetries bounds how long InListPassiveTarget
// searches before reporting an empty field.
const DefaultPassiveActivationRetries = 2

type target struct {
	uid    cardrecord.Identity
	atqa   [2]byte
	sak    byte
	number byte
}

// Transceiver drives MIFARE cards through a PN532. It is not safe for
// concurrent use.
type Transceiver struct {
	transport Transport
	target    *target
	log       zerolog.Logger
	retries   byte
}

var (
	_ cardrecord.Transceiver      = (*Transceiver)(nil)
	_ cardrecord.FirmwareReporter = (*Transceiver)(nil)
)

// Option configures a Transceiver
type Option func(*Transceiver)

// WithLogger sets the logger for command traces
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Transceiver) {
		d.log = logger
	}
}

// WithPassiveActivationRetries sets the RF passive activation retry count.
// 0xFF retries forever and blocks polling.
func WithPassiveActivationRetries(n byte) Option {
	return func(d *Transceiver) {
		d.retries = n
	}
}

// NewTransceiver creates a PN532 transceiver on transport
func NewTransceiver(transport Transport, opts ...Option) *Transceiver {
	d := &Transceiver{
		transport: transport,
		log:       log.With().Str("component", "pn532").Logger(),
		retries:   DefaultPassiveActivationRetries,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Transport returns the underlying transport
func (d *Transceiver) Transport() Transport {
	return d.transport
}

func transportStatus(err error) cardrecord.StatusCode {
	var te *TransportError
	if errors.As(err, &te) && te.Type == ErrorTypeTimeout {
		return cardrecord.StatusTimeout
	}
	if errors.Is(err, ErrTransportTimeout) {
		return cardrecord.StatusTimeout
	}
	return cardrecord.StatusCommError
}

// command sends cmd and returns the response payload after the response
// code.
func (d *Transceiver) command(op string, cmd byte, args []byte) ([]byte, error) {
	resp, err := d.transport.SendCommand(cmd, args)
	if err != nil {
		return nil, cardrecord.WrapStatus(op, transportStatus(err), err)
	}
	if len(resp) == 0 || resp[0] != cmd+1 {
		return nil, cardrecord.WrapStatus(op, cardrecord.StatusCommError,
			fmt.Errorf("%w: % X", ErrInvalidResponse, resp))
	}
	d.log.Trace().Str("op", op).Hex("args", args).Hex("resp", resp[1:]).Msg("pn532 command")
	return resp[1:], nil
}

// exchange runs InDataExchange against the current target and checks the
// status byte.
func (d *Transceiver) exchange(op string, payload ...byte) ([]byte, error) {
	if d.target == nil {
		return nil, cardrecord.WrapStatus(op, cardrecord.StatusTimeout, ErrNoTarget)
	}
	args := append([]byte{d.target.number}, payload...)
	data, err := d.command(op, CmdInDataExchange, args)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, cardrecord.WrapStatus(op, cardrecord.StatusCommError, ErrInvalidResponse)
	}
	if err := statusError(op, data[0]); err != nil {
		return nil, err
	}
	return data[1:], nil
}

// Init configures the SAM for normal mode and bounds passive activation.
func (d *Transceiver) Init() error {
	if _, err := d.command("sam configuration", CmdSAMConfiguration,
		[]byte{samModeNormal, samTimeout, samUseIRQ}); err != nil {
		return err
	}
	if _, err := d.command("rf configuration", CmdRFConfiguration,
		[]byte{rfConfigMaxRetries, 0xFF, 0x01, d.retries}); err != nil {
		return err
	}
	d.target = nil
	return nil
}

// FirmwareVersion returns the chip and firmware revision.
func (d *Transceiver) FirmwareVersion() (string, error) {
	data, err := d.command("firmware version", CmdGetFirmwareVersion, nil)
	if err != nil {
		return "", err
	}
	if len(data) < 4 {
		return "", fmt.Errorf("%w: firmware version % X", ErrInvalidResponse, data)
	}
	if data[0] == 0x00 || data[0] == 0xFF {
		return "", fmt.Errorf("%w: 0x%02X", ErrBadFirmware, data[0])
	}
	return fmt.Sprintf("PN5%02X firmware %d.%d", data[0], data[1], data[2]), nil
}

// listTarget selects one ISO14443A target, or returns nil for an empty
// field.
func (d *Transceiver) listTarget(op string) (*target, error) {
	data, err := d.command(op, CmdInListPassiveTarget, []byte{0x01, brTy106kbpsTypeA})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || data[0] == 0 {
		return nil, nil
	}
	// NbTg, Tg, SENS_RES(2), SEL_RES, NFCIDLength, NFCID1
	if len(data) < 6 || len(data) < 6+int(data[5]) || int(data[5]) > cardrecord.MaxIdentityLength {
		return nil, cardrecord.WrapStatus(op, cardrecord.StatusCommError,
			fmt.Errorf("%w: target data % X", ErrInvalidResponse, data))
	}
	tgt := &target{
		number: data[1],
		atqa:   [2]byte{data[2], data[3]},
		sak:    data[4],
		uid:    cardrecord.Identity(data[6 : 6+int(data[5])]).Clone(),
	}
	d.log.Debug().
		Stringer("uid", tgt.uid).
		Hex("atqa", tgt.atqa[:]).
		Uint8("sak", tgt.sak).
		Msg("target listed")
	return tgt, nil
}

func (d *Transceiver) release() {
	if d.target == nil {
		return
	}
	if _, err := d.command("release", CmdInRelease, []byte{d.target.number}); err != nil {
		d.log.Debug().Err(err).Msg("releasing target failed")
	}
	d.target = nil
}

// IsNewCardPresent lists a target while none is held.
func (d *Transceiver) IsNewCardPresent() bool {
	if d.target != nil {
		return false
	}
	tgt, err := d.listTarget("detect")
	if err != nil {
		d.log.Debug().Err(err).Msg("detecting card failed")
		return false
	}
	d.target = tgt
	return tgt != nil
}

// Wakeup releases the held target and lists the field again.
func (d *Transceiver) Wakeup() error {
	d.release()
	tgt, err := d.listTarget("wakeup")
	if err != nil {
		return err
	}
	if tgt == nil {
		return cardrecord.NewStatusError("wakeup", cardrecord.StatusTimeout, "no card in field")
	}
	d.target = tgt
	return nil
}

// ReadCardSerial returns the held target's UID, listing one if needed.
func (d *Transceiver) ReadCardSerial() (cardrecord.Identity, error) {
	if d.target == nil {
		tgt, err := d.listTarget("read serial")
		if err != nil {
			return nil, err
		}
		if tgt == nil {
			return nil, cardrecord.NewStatusError("read serial", cardrecord.StatusTimeout, "no card in field")
		}
		d.target = tgt
	}
	return d.target.uid.Clone(), nil
}

// CardType classifies the held target by its SAK.
func (d *Transceiver) CardType() cardrecord.CardType {
	if d.target == nil {
		return cardrecord.CardTypeUnknown
	}
	return cardrecord.CardTypeFromSAK(d.target.sak)
}

// Authenticate runs MIFARE Classic authentication with the last four UID
// bytes.
func (d *Transceiver) Authenticate(
	keyType cardrecord.KeyType, block uint8, key cardrecord.Key, id cardrecord.Identity,
) error {
	uid := id
	if len(uid) < 4 && d.target != nil {
		uid = d.target.uid
	}
	if len(uid) < 4 {
		return cardrecord.NewStatusError("authenticate", cardrecord.StatusInvalid, "UID shorter than 4 bytes")
	}
	payload := make([]byte, 0, 12)
	payload = append(payload, byte(keyType), block)
	payload = append(payload, key[:]...)
	payload = append(payload, uid[len(uid)-4:]...)
	_, err := d.exchange("authenticate", payload...)
	return err
}

// AuthenticateUltralight sends PWD_AUTH through InCommunicateThru.
func (d *Transceiver) AuthenticateUltralight(pwd [4]byte) ([2]byte, error) {
	var pack [2]byte
	data, err := d.command("pwd_auth", CmdInCommunicateThru, append([]byte{NTAGPasswordAuth}, pwd[:]...))
	if err != nil {
		return pack, err
	}
	if len(data) == 0 {
		return pack, cardrecord.WrapStatus("pwd_auth", cardrecord.StatusCommError, ErrInvalidResponse)
	}
	if err := statusError("pwd_auth", data[0]); err != nil {
		return pack, err
	}
	if len(data) < 3 {
		return pack, cardrecord.NewStatusError("pwd_auth", cardrecord.StatusMifareNACK, "no PACK")
	}
	copy(pack[:], data[1:3])
	return pack, nil
}

// ReadBlock issues MIFARE READ, which returns 16 bytes for both families.
func (d *Transceiver) ReadBlock(block uint8) ([]byte, error) {
	data, err := d.exchange("read", MifareRead, block)
	if err != nil {
		return nil, err
	}
	if len(data) < 16 {
		return nil, cardrecord.NewStatusError("read", cardrecord.StatusNoRoom,
			fmt.Sprintf("got %d bytes", len(data)))
	}
	return data[:16], nil
}

// WriteBlock issues MIFARE WRITE for Classic cards and the 4-byte
// Ultralight WRITE for page cards.
func (d *Transceiver) WriteBlock(block uint8, data [16]byte) error {
	if d.CardType().IsClassic() {
		_, err := d.exchange("write", append([]byte{MifareWrite, block}, data[:]...)...)
		return err
	}
	_, err := d.exchange("write", append([]byte{UltralightWrite, block}, data[:4]...)...)
	return err
}

// Halt releases the target, which also ends its Crypto1 session.
func (d *Transceiver) Halt() error {
	d.release()
	return nil
}

// StopCrypto is a no-op: the PN532 drops Crypto1 state on release.
func (*Transceiver) StopCrypto() {}
