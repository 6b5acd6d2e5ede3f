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

package pcsc

import (
	"errors"
	"fmt"
	"slices"
	"time"

	cardrecord "github.com/arnuschky/EnRav"
	"github.com/ebfe/scard"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultStatusTimeout bounds one reader state query
const DefaultStatusTimeout = 50 * time.Millisecond

var ErrReaderNotFound = errors.New("PC/SC reader not found")

// PC/SC part 3 card names, ATR bytes 13 and 14
const (
	nameClassic1K    = 0x0001
	nameClassic4K    = 0x0002
	nameUltralight   = 0x0003
	nameClassicMini  = 0x0026
	nameUltralightC  = 0x003A
	namePlusSL1of2K  = 0x0036
	namePlusSL1of4K  = 0x0037
	atrNameOffset    = 13
	atrStorageLength = 15
)

// Transceiver drives MIFARE cards through a PC/SC reader. It is not safe
// for concurrent use.
type Transceiver struct {
	ctx      Context
	factory  ContextFactory
	card     Card
	log      zerolog.Logger
	reader   string
	cardType cardrecord.CardType
	timeout  time.Duration
	present  bool
}

var (
	_ cardrecord.Transceiver      = (*Transceiver)(nil)
	_ cardrecord.FirmwareReporter = (*Transceiver)(nil)
)

// Option configures a Transceiver
type Option func(*Transceiver)

// WithLogger sets the logger for APDU traces
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transceiver) {
		t.log = logger
	}
}

// WithReader selects the reader by name. The first listed reader is used
// otherwise.
func WithReader(name string) Option {
	return func(t *Transceiver) {
		t.reader = name
	}
}

// WithContextFactory replaces the PC/SC context factory
func WithContextFactory(f ContextFactory) Option {
	return func(t *Transceiver) {
		t.factory = f
	}
}

// WithStatusTimeout sets how long a reader state query may block
func WithStatusTimeout(d time.Duration) Option {
	return func(t *Transceiver) {
		t.timeout = d
	}
}

// NewTransceiver creates a PC/SC transceiver
func NewTransceiver(opts ...Option) *Transceiver {
	t := &Transceiver{
		factory: DefaultContextFactory,
		log:     log.With().Str("component", "pcsc").Logger(),
		timeout: DefaultStatusTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Reader returns the name of the reader in use
func (t *Transceiver) Reader() string {
	return t.reader
}

// CardTypeFromATR classifies a contactless storage card by the card name
// its reader reports in the ATR
func CardTypeFromATR(atr []byte) cardrecord.CardType {
	if len(atr) < atrStorageLength {
		return cardrecord.CardTypeUnknown
	}
	switch uint16(atr[atrNameOffset])<<8 | uint16(atr[atrNameOffset+1]) {
	case nameClassicMini:
		return cardrecord.CardTypeMifareMini
	case nameClassic1K:
		return cardrecord.CardTypeMifare1K
	case nameClassic4K:
		return cardrecord.CardTypeMifare4K
	case nameUltralight, nameUltralightC:
		return cardrecord.CardTypeMifareUltralight
	case namePlusSL1of2K, namePlusSL1of4K:
		return cardrecord.CardTypeMifarePlus
	default:
		return cardrecord.CardTypeUnknown
	}
}

// Init establishes the PC/SC context and picks the reader
func (t *Transceiver) Init() error {
	t.disconnect(scard.ResetCard)
	t.present = false
	if t.ctx == nil {
		ctx, err := t.factory()
		if err != nil {
			return cardrecord.WrapStatus("init", cardrecord.StatusCommError, err)
		}
		t.ctx = ctx
	}
	readers, err := t.ctx.ListReaders()
	if err != nil {
		return cardrecord.WrapStatus("init", cardrecord.StatusCommError, err)
	}
	switch {
	case len(readers) == 0:
		return cardrecord.WrapStatus("init", cardrecord.StatusCommError, ErrReaderNotFound)
	case t.reader == "":
		t.reader = readers[0]
	case !slices.Contains(readers, t.reader):
		return cardrecord.WrapStatus("init", cardrecord.StatusCommError,
			fmt.Errorf("%w: %s", ErrReaderNotFound, t.reader))
	}
	t.log.Debug().Str("reader", t.reader).Msg("using PC/SC reader")
	return nil
}

// FirmwareVersion reports the reader name; PC/SC has no portable firmware
// query.
func (t *Transceiver) FirmwareVersion() (string, error) {
	if t.reader == "" {
		return "", cardrecord.NewStatusError("firmware version", cardrecord.StatusCommError, "reader not initialised")
	}
	return t.reader, nil
}

// fieldOccupied asks the PC/SC daemon whether a card is on the reader
func (t *Transceiver) fieldOccupied() (bool, error) {
	if t.ctx == nil {
		return false, ErrNoCard
	}
	rs := []scard.ReaderState{{
		Reader:       t.reader,
		CurrentState: scard.StateUnaware,
	}}
	if err := t.ctx.GetStatusChange(rs, t.timeout); err != nil {
		return false, err
	}
	return rs[0].EventState&scard.StatePresent != 0, nil
}

func (t *Transceiver) connect(op string) error {
	card, err := t.ctx.Connect(t.reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return cardrecord.WrapStatus(op, cardrecord.StatusTimeout, err)
	}
	status, err := card.Status()
	if err != nil {
		_ = card.Disconnect(scard.ResetCard)
		return cardrecord.WrapStatus(op, cardrecord.StatusCommError, err)
	}
	t.card = card
	t.cardType = CardTypeFromATR(status.Atr)
	t.log.Debug().Hex("atr", status.Atr).Stringer("type", t.cardType).Msg("card connected")
	return nil
}

func (t *Transceiver) disconnect(d scard.Disposition) {
	if t.card == nil {
		return
	}
	if err := t.card.Disconnect(d); err != nil {
		t.log.Debug().Err(err).Msg("disconnecting card failed")
	}
	t.card = nil
	t.cardType = cardrecord.CardTypeUnknown
}

// IsNewCardPresent reports a card that arrived since the last query. A
// halted card stays unreported until it leaves the reader.
func (t *Transceiver) IsNewCardPresent() bool {
	if t.card != nil {
		return false
	}
	occupied, err := t.fieldOccupied()
	if err != nil {
		t.log.Debug().Err(err).Msg("reader state query failed")
		return false
	}
	if !occupied {
		t.present = false
		return false
	}
	if t.present {
		return false
	}
	if err := t.connect("detect"); err != nil {
		t.log.Debug().Err(err).Msg("connecting card failed")
		return false
	}
	t.present = true
	return true
}

// Wakeup reconnects to whatever card is on the reader, halted or not.
func (t *Transceiver) Wakeup() error {
	t.disconnect(scard.LeaveCard)
	occupied, err := t.fieldOccupied()
	if err != nil {
		return cardrecord.WrapStatus("wakeup", cardrecord.StatusCommError, err)
	}
	t.present = occupied
	if !occupied {
		return cardrecord.NewStatusError("wakeup", cardrecord.StatusTimeout, "no card in field")
	}
	return t.connect("wakeup")
}

// transmit sends one APDU and strips the status word
func (t *Transceiver) transmit(op string, failCode cardrecord.StatusCode, apdu []byte) ([]byte, error) {
	if t.card == nil {
		return nil, cardrecord.WrapStatus(op, cardrecord.StatusTimeout, ErrNoCard)
	}
	rsp, err := t.card.Transmit(apdu)
	if err != nil {
		return nil, cardrecord.WrapStatus(op, cardrecord.StatusCommError, err)
	}
	t.log.Trace().Str("op", op).Hex("apdu", apdu).Hex("resp", rsp).Msg("pcsc transmit")
	data, err := splitResponse(rsp)
	if err != nil {
		var sw *StatusWordError
		if errors.As(err, &sw) {
			return nil, cardrecord.WrapStatus(op, failCode, err)
		}
		return nil, cardrecord.WrapStatus(op, cardrecord.StatusCommError, err)
	}
	return data, nil
}

// ReadCardSerial returns the UID through GET DATA, connecting if needed.
func (t *Transceiver) ReadCardSerial() (cardrecord.Identity, error) {
	if t.card == nil {
		if err := t.connect("read serial"); err != nil {
			return nil, err
		}
	}
	uid, err := t.transmit("read serial", cardrecord.StatusCommError, getUIDAPDU())
	if err != nil {
		return nil, err
	}
	if len(uid) == 0 || len(uid) > cardrecord.MaxIdentityLength {
		return nil, cardrecord.NewStatusError("read serial", cardrecord.StatusCommError,
			fmt.Sprintf("UID of %d bytes", len(uid)))
	}
	return cardrecord.Identity(uid).Clone(), nil
}

// CardType returns the type reported in the connected card's ATR.
func (t *Transceiver) CardType() cardrecord.CardType {
	if t.card == nil {
		return cardrecord.CardTypeUnknown
	}
	return t.cardType
}

// Authenticate loads key into the reader's volatile slot and runs
// GENERAL AUTHENTICATE. The reader knows the UID, so id is unused.
func (t *Transceiver) Authenticate(
	keyType cardrecord.KeyType, block uint8, key cardrecord.Key, _ cardrecord.Identity,
) error {
	if _, err := t.transmit("load key", cardrecord.StatusCommError, loadKeyAPDU(key)); err != nil {
		return err
	}
	_, err := t.transmit("authenticate", cardrecord.StatusAuthFailed, authenticateAPDU(block, byte(keyType)))
	return err
}

// AuthenticateUltralight sends PWD_AUTH through the reader's PN53x.
func (t *Transceiver) AuthenticateUltralight(pwd [4]byte) ([2]byte, error) {
	var pack [2]byte
	data, err := t.transmit("pwd_auth", cardrecord.StatusCommError, pwdAuthAPDU(pwd))
	if err != nil {
		return pack, err
	}
	// D5 43 status PACK
	if len(data) < 3 || data[0] != 0xD5 || data[1] != pn53xCommunicateThru+1 {
		return pack, cardrecord.WrapStatus("pwd_auth", cardrecord.StatusCommError,
			fmt.Errorf("%w: % X", ErrShortResponse, data))
	}
	if data[2]&0x3F != 0 {
		return pack, cardrecord.NewStatusError("pwd_auth", cardrecord.StatusAuthFailed,
			fmt.Sprintf("PN53x status 0x%02X", data[2]))
	}
	if len(data) < 5 {
		return pack, cardrecord.NewStatusError("pwd_auth", cardrecord.StatusMifareNACK, "no PACK")
	}
	copy(pack[:], data[3:5])
	return pack, nil
}

// ReadBlock reads 16 bytes with READ BINARY.
func (t *Transceiver) ReadBlock(block uint8) ([]byte, error) {
	data, err := t.transmit("read", cardrecord.StatusMifareNACK, readAPDU(block, 16))
	if err != nil {
		return nil, err
	}
	if len(data) < 16 {
		return nil, cardrecord.NewStatusError("read", cardrecord.StatusNoRoom,
			fmt.Sprintf("got %d bytes", len(data)))
	}
	return data[:16], nil
}

// WriteBlock writes with UPDATE BINARY: 16 bytes for Classic, one 4-byte
// page otherwise.
func (t *Transceiver) WriteBlock(block uint8, data [16]byte) error {
	n := 4
	if t.CardType().IsClassic() {
		n = 16
	}
	_, err := t.transmit("write", cardrecord.StatusMifareNACK, updateAPDU(block, data[:n]))
	return err
}

// Halt disconnects from the card and leaves it powered.
func (t *Transceiver) Halt() error {
	t.disconnect(scard.LeaveCard)
	return nil
}

// StopCrypto is a no-op: the reader drops authentication on disconnect.
func (*Transceiver) StopCrypto() {}

// Close disconnects and releases the PC/SC context
func (t *Transceiver) Close() error {
	t.disconnect(scard.ResetCard)
	if t.ctx == nil {
		return nil
	}
	ctx := t.ctx
	t.ctx = nil
	if err := ctx.Release(); err != nil {
		return fmt.Errorf("failed to release scard context: %w", err)
	}
	return nil
}
