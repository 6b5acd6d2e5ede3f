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
	"fmt"

	cardrecord "github.com/arnuschky/EnRav"
)

// Default UIDs for the constructors below when nil is passed.
var (
	TestMiniUID       = cardrecord.Identity{0x11, 0x22, 0x33, 0x44}
	Test1KUID         = cardrecord.Identity{0x12, 0x34, 0x56, 0x78}
	Test4KUID         = cardrecord.Identity{0x87, 0x65, 0x43, 0x21}
	TestUltralightUID = cardrecord.Identity{0x04, 0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC}
)

const (
	classicBlockSize = 16
	pageSize         = 4
	readSize         = 16
	ntag213Pages     = 45
	ntag215Pages     = 135
	ntag215UserEnd   = 130
	ultralightPages  = 16
)

type rfState int

const (
	stateIdle rfState = iota
	stateReady
	stateActive
	stateHalted
)

// Card is a simulated MIFARE card.
//
// Classic cards hold 16-byte blocks with a trailer per 4-block sector.
// Page cards hold 4-byte pages; a read returns four pages and a write
// stores one.
type Card struct {
	UID cardrecord.Identity
	// Memory is one slice per block or page.
	Memory [][]byte

	sak         byte
	state       rfState
	authSector  int
	unlocked    bool
	hasPassword bool
	password    [4]byte
	pack        [2]byte
	// protectFrom is the first page that needs PWD_AUTH; len(Memory)
	// disables protection.
	protectFrom int
	userEnd     int
}

func newClassic(uid cardrecord.Identity, sak byte, blocks int) *Card {
	c := &Card{
		UID:        uid.Clone(),
		sak:        sak,
		Memory:     make([][]byte, blocks),
		authSector: -1,
	}
	for b := range c.Memory {
		c.Memory[b] = make([]byte, classicBlockSize)
		if c.isTrailer(b) {
			c.setTrailer(b, cardrecord.DefaultKey)
		}
	}
	copy(c.Memory[0], uid)
	return c
}

// NewMifareMini creates a 20-block MIFARE Classic Mini.
func NewMifareMini(uid cardrecord.Identity) *Card {
	if uid == nil {
		uid = TestMiniUID
	}
	return newClassic(uid, 0x09, 20)
}

// NewMifare1K creates a 64-block MIFARE Classic 1K.
func NewMifare1K(uid cardrecord.Identity) *Card {
	if uid == nil {
		uid = Test1KUID
	}
	return newClassic(uid, 0x08, 64)
}

// NewMifare4K creates a MIFARE Classic 4K. Only the 32 small sectors are
// modelled.
func NewMifare4K(uid cardrecord.Identity) *Card {
	if uid == nil {
		uid = Test4KUID
	}
	return newClassic(uid, 0x18, 128)
}

func newNTAG(uid cardrecord.Identity, pages, userEnd int, cc []byte) *Card {
	if uid == nil {
		uid = TestUltralightUID
	}
	c := &Card{
		UID:         uid.Clone(),
		Memory:      make([][]byte, pages),
		hasPassword: true,
		password:    [4]byte{0xFF, 0xFF, 0xFF, 0xFF},
		protectFrom: pages,
		userEnd:     userEnd,
	}
	c.initPages()
	copy(c.Memory[3], cc)
	return c
}

// NewNTAG213 creates an NTAG213 with the default password FFFFFFFF. Its
// 144 byte data area ends at page 39; the lock and configuration pages
// after it accept writes like on a real tag.
func NewNTAG213(uid cardrecord.Identity) *Card {
	return newNTAG(uid, ntag213Pages, ntag213Pages, []byte{0xE1, 0x10, 0x12, 0x00})
}

// NewNTAG215 creates an NTAG215 with the default password FFFFFFFF.
func NewNTAG215(uid cardrecord.Identity) *Card {
	// Capability container for 496 bytes of NDEF area.
	return newNTAG(uid, ntag215Pages, ntag215UserEnd, []byte{0xE1, 0x10, 0x3E, 0x00})
}

// NewUltralight creates a plain 16-page Ultralight without PWD_AUTH.
func NewUltralight(uid cardrecord.Identity) *Card {
	if uid == nil {
		uid = TestUltralightUID
	}
	c := &Card{
		UID:         uid.Clone(),
		Memory:      make([][]byte, ultralightPages),
		protectFrom: ultralightPages,
		userEnd:     ultralightPages,
	}
	c.initPages()
	return c
}

// NewCard creates a card with no usable memory, for SAK values the record
// codec does not support.
func NewCard(uid cardrecord.Identity, sak byte) *Card {
	return &Card{UID: uid.Clone(), sak: sak, authSector: -1}
}

func (c *Card) initPages() {
	for p := range c.Memory {
		c.Memory[p] = make([]byte, pageSize)
	}
	copy(c.Memory[0], c.UID[:min(3, len(c.UID))])
	if len(c.UID) > 3 {
		copy(c.Memory[1], c.UID[3:])
	}
}

// SAK returns the card's select acknowledge byte.
func (c *Card) SAK() byte {
	return c.sak
}

// Classic reports whether the card is sectored.
func (c *Card) Classic() bool {
	return cardrecord.CardTypeFromSAK(c.sak).IsClassic()
}

// SetPassword changes the PWD_AUTH password and protects pages from page
// on. Only NTAG cards support passwords.
func (c *Card) SetPassword(pwd [4]byte, pack [2]byte, from int) {
	c.password = pwd
	c.pack = pack
	c.protectFrom = from
}

// SetKey sets key A on every sector trailer.
func (c *Card) SetKey(key cardrecord.Key) {
	for b := range c.Memory {
		if c.isTrailer(b) {
			c.setTrailer(b, key)
		}
	}
}

// Peek returns a copy of a block or page without authentication.
func (c *Card) Peek(b int) []byte {
	if b < 0 || b >= len(c.Memory) {
		return nil
	}
	out := make([]byte, len(c.Memory[b]))
	copy(out, c.Memory[b])
	return out
}

// Poke overwrites a block or page without authentication or protection.
func (c *Card) Poke(b int, data []byte) {
	if b < 0 || b >= len(c.Memory) {
		return
	}
	copy(c.Memory[b], data)
}

// Bytes concatenates the payload blocks or pages from start, skipping
// trailers, until n bytes are collected.
func (c *Card) Bytes(start, n int) []byte {
	out := make([]byte, 0, n)
	for b := start; b < len(c.Memory) && len(out) < n; b++ {
		if c.isTrailer(b) {
			continue
		}
		out = append(out, c.Memory[b][:min(n-len(out), len(c.Memory[b]))]...)
	}
	return out
}

func (c *Card) isTrailer(b int) bool {
	return c.Classic() && b > 2 && (b-3)%4 == 0
}

func (c *Card) setTrailer(b int, keyA cardrecord.Key) {
	copy(c.Memory[b][0:6], keyA[:])
	copy(c.Memory[b][6:10], []byte{0xFF, 0x07, 0x80, 0x69})
	copy(c.Memory[b][10:16], cardrecord.DefaultKey[:])
}

// ResetAuth drops Crypto1 and password authentication.
func (c *Card) ResetAuth() {
	c.authSector = -1
	c.unlocked = false
}

func nack(op string, format string, args ...any) error {
	return cardrecord.NewStatusError(op, cardrecord.StatusMifareNACK, fmt.Sprintf(format, args...))
}

// Authenticate runs Classic sector authentication for the sector of block.
func (c *Card) Authenticate(keyType cardrecord.KeyType, block int, key cardrecord.Key) error {
	if !c.Classic() {
		return cardrecord.NewStatusError("authenticate", cardrecord.StatusTimeout, "card does not support Crypto1")
	}
	if block < 0 || block >= len(c.Memory) {
		return cardrecord.NewStatusError("authenticate", cardrecord.StatusTimeout, fmt.Sprintf("block %d out of range", block))
	}
	trailer := c.Memory[(block/4)*4+3]
	want := trailer[0:6]
	if keyType == cardrecord.KeyB {
		want = trailer[10:16]
	}
	if string(want) != string(key[:]) {
		c.ResetAuth()
		return cardrecord.NewStatusError("authenticate", cardrecord.StatusAuthFailed, fmt.Sprintf("wrong key %s", keyType))
	}
	c.authSector = block / 4
	return nil
}

// PasswordAuth answers PWD_AUTH with the PACK when pwd matches.
func (c *Card) PasswordAuth(pwd [4]byte) ([2]byte, error) {
	if c.Classic() || !c.hasPassword {
		return [2]byte{}, nack("pwd_auth", "PWD_AUTH not supported")
	}
	if pwd != c.password {
		c.unlocked = false
		return [2]byte{}, nack("pwd_auth", "wrong password")
	}
	c.unlocked = true
	return c.pack, nil
}

// Read answers a MIFARE READ command with 16 bytes.
func (c *Card) Read(block int) ([]byte, error) {
	if block < 0 || block >= len(c.Memory) {
		return nil, nack("read", "block %d out of range", block)
	}
	if c.Classic() {
		if c.authSector != block/4 {
			return nil, nack("read", "sector %d not authenticated", block/4)
		}
		return c.Peek(block), nil
	}
	out := make([]byte, 0, readSize)
	for i := range readSize / pageSize {
		p := (block + i) % len(c.Memory)
		if p >= c.protectFrom && !c.unlocked {
			return nil, nack("read", "page %d is password protected", p)
		}
		out = append(out, c.Memory[p]...)
	}
	return out, nil
}

// Write answers a MIFARE WRITE. Page cards store the first 4 bytes.
func (c *Card) Write(block int, data [16]byte) error {
	if block < 0 || block >= len(c.Memory) {
		return nack("write", "block %d out of range", block)
	}
	if c.Classic() {
		if block == 0 || c.isTrailer(block) {
			return nack("write", "block %d is write protected", block)
		}
		if c.authSector != block/4 {
			return nack("write", "sector %d not authenticated", block/4)
		}
		copy(c.Memory[block], data[:])
		return nil
	}
	if block < 4 || block >= c.userEnd {
		return nack("write", "page %d is not user memory", block)
	}
	if block >= c.protectFrom && !c.unlocked {
		return nack("write", "page %d is password protected", block)
	}
	copy(c.Memory[block], data[:pageSize])
	return nil
}
