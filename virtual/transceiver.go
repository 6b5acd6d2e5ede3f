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

package virtual

import (
	"sync"

	cardrecord "github.com/arnuschky/EnRav"
)

// FirmwareVersion is reported by Transceiver.FirmwareVersion.
const FirmwareVersion = "virtual 1.0"

// Transceiver simulates an RF reader with a field that holds at most one
// card. It is safe to Place and Remove cards from another goroutine while
// a handler drives it.
type Transceiver struct {
	card       *Card
	failReads  map[int]bool
	failWrites map[int]bool
	reads      []int
	writes     []int
	auths      []int
	mu         sync.Mutex
	failWakes  int
	halts      int
	inits      int
	failAuth   bool
}

var _ cardrecord.Transceiver = (*Transceiver)(nil)

// NewTransceiver creates a reader with an empty field.
func NewTransceiver() *Transceiver {
	return &Transceiver{
		failReads:  make(map[int]bool),
		failWrites: make(map[int]bool),
	}
}

// Place puts card into the field as a freshly powered card.
func (t *Transceiver) Place(card *Card) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if card != nil {
		card.state = stateIdle
		card.ResetAuth()
	}
	t.card = card
}

// Remove takes the current card out of the field and returns it.
func (t *Transceiver) Remove() *Card {
	t.mu.Lock()
	defer t.mu.Unlock()
	card := t.card
	t.card = nil
	return card
}

// Swap replaces the card in the field and returns the previous one.
func (t *Transceiver) Swap(card *Card) *Card {
	prev := t.Remove()
	t.Place(card)
	return prev
}

// Card returns the card currently in the field.
func (t *Transceiver) Card() *Card {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.card
}

// FailReadAt makes every read of block fail until ClearFailures.
func (t *Transceiver) FailReadAt(block int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failReads[block] = true
}

// FailWriteAt makes every write of block fail until ClearFailures.
func (t *Transceiver) FailWriteAt(block int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failWrites[block] = true
}

// FailAuth makes every authentication fail.
func (t *Transceiver) FailAuth(fail bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failAuth = fail
}

// FailWakeups makes the next n wakeups time out.
func (t *Transceiver) FailWakeups(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failWakes = n
}

// ClearFailures removes all injected failures.
func (t *Transceiver) ClearFailures() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failReads = make(map[int]bool)
	t.failWrites = make(map[int]bool)
	t.failAuth = false
	t.failWakes = 0
}

// Reads returns the blocks passed to ReadBlock, in order.
func (t *Transceiver) Reads() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.reads...)
}

// Writes returns the blocks passed to WriteBlock, in order.
func (t *Transceiver) Writes() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.writes...)
}

// Auths returns the blocks passed to Authenticate, in order.
func (t *Transceiver) Auths() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.auths...)
}

// Halts returns how often Halt was called.
func (t *Transceiver) Halts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.halts
}

// Inits returns how often Init was called.
func (t *Transceiver) Inits() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inits
}

// ResetLog clears the read, write and authentication logs.
func (t *Transceiver) ResetLog() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reads, t.writes, t.auths = nil, nil, nil
	t.halts = 0
}

func timeout(op string) error {
	return cardrecord.NewStatusError(op, cardrecord.StatusTimeout, "no card in field")
}

func (t *Transceiver) Init() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inits++
	return nil
}

func (*Transceiver) FirmwareVersion() (string, error) {
	return FirmwareVersion, nil
}

func (t *Transceiver) IsNewCardPresent() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.card == nil || t.card.state != stateIdle {
		return false
	}
	t.card.state = stateReady
	return true
}

func (t *Transceiver) Wakeup() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failWakes > 0 {
		t.failWakes--
		return cardrecord.NewStatusError("wakeup", cardrecord.StatusTimeout, "injected failure")
	}
	if t.card == nil {
		return timeout("wakeup")
	}
	t.card.state = stateReady
	t.card.ResetAuth()
	return nil
}

func (t *Transceiver) ReadCardSerial() (cardrecord.Identity, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.card == nil || t.card.state == stateHalted {
		return nil, timeout("read serial")
	}
	t.card.state = stateActive
	return t.card.UID.Clone(), nil
}

func (t *Transceiver) CardType() cardrecord.CardType {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.card == nil {
		return cardrecord.CardTypeUnknown
	}
	return cardrecord.CardTypeFromSAK(t.card.sak)
}

func (t *Transceiver) Authenticate(keyType cardrecord.KeyType, block uint8, key cardrecord.Key, id cardrecord.Identity) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.auths = append(t.auths, int(block))
	if t.card == nil || t.card.state != stateActive {
		return timeout("authenticate")
	}
	if t.failAuth || !id.Equal(t.card.UID) {
		t.card.ResetAuth()
		return cardrecord.NewStatusError("authenticate", cardrecord.StatusAuthFailed, "injected failure")
	}
	return t.card.Authenticate(keyType, int(block), key)
}

func (t *Transceiver) AuthenticateUltralight(pwd [4]byte) ([2]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.card == nil || t.card.state != stateActive {
		return [2]byte{}, timeout("pwd_auth")
	}
	if t.failAuth {
		return [2]byte{}, nack("pwd_auth", "injected failure")
	}
	return t.card.PasswordAuth(pwd)
}

func (t *Transceiver) ReadBlock(block uint8) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reads = append(t.reads, int(block))
	if t.card == nil || t.card.state != stateActive {
		return nil, timeout("read")
	}
	if t.failReads[int(block)] {
		return nil, cardrecord.NewStatusError("read", cardrecord.StatusCRCWrong, "injected failure")
	}
	return t.card.Read(int(block))
}

func (t *Transceiver) WriteBlock(block uint8, data [16]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, int(block))
	if t.card == nil || t.card.state != stateActive {
		return timeout("write")
	}
	if t.failWrites[int(block)] {
		return cardrecord.NewStatusError("write", cardrecord.StatusTimeout, "injected failure")
	}
	return t.card.Write(int(block), data)
}

func (t *Transceiver) Halt() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.halts++
	if t.card != nil {
		t.card.state = stateHalted
		t.card.ResetAuth()
	}
	return nil
}

func (t *Transceiver) StopCrypto() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.card != nil {
		t.card.authSector = -1
	}
}
