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

import "fmt"

// AuthScheme selects how a geometry unlocks its blocks.
type AuthScheme int

const (
	// AuthSectorKeyA authenticates every sector with key A on its trailer.
	AuthSectorKeyA AuthScheme = iota
	// AuthPassword sends a 4-byte password once per session.
	AuthPassword
)

func (a AuthScheme) String() string {
	switch a {
	case AuthSectorKeyA:
		return "sector key A"
	case AuthPassword:
		return "password"
	default:
		return fmt.Sprintf("AuthScheme(%d)", int(a))
	}
}

// Geometry describes how a card type lays out the record.
type Geometry struct {
	Type          CardType
	Auth          AuthScheme
	BlockSize     int
	SectorSize    int
	InfoBlock     int
	FileNameBlock int
	// TotalBlocks bounds usable addresses. Page geometries start at zero
	// and learn it from the card's capability container (WithDataArea).
	TotalBlocks int
}

// Type 2 capability container
const (
	CCPage       = 3
	ccMagic      = 0xE1
	ccSizeUnit   = 8
	dataAreaPage = 4
	// Pages 4 to 15 are user memory on every Ultralight EV1 and NTAG21x.
	minPageCardEnd = 16
)

var (
	classicGeometry = Geometry{
		Auth:          AuthSectorKeyA,
		BlockSize:     16,
		SectorSize:    4,
		InfoBlock:     4,
		FileNameBlock: 8,
	}
	ultralightGeometry = Geometry{
		Type:          CardTypeMifareUltralight,
		Auth:          AuthPassword,
		BlockSize:     4,
		InfoBlock:     4,
		FileNameBlock: 8,
	}
)

// GeometryFor returns the layout for a card type, or ErrUnsupportedCard.
func GeometryFor(t CardType) (Geometry, error) {
	var g Geometry
	switch t {
	case CardTypeMifareMini:
		g = classicGeometry
		g.TotalBlocks = 20
	case CardTypeMifare1K:
		g = classicGeometry
		g.TotalBlocks = 64
	case CardTypeMifare4K:
		// Only the 32 four-block sectors; the 16-block sectors above 128
		// would break the trailer rule.
		g = classicGeometry
		g.TotalBlocks = 128
	case CardTypeMifareUltralight:
		return ultralightGeometry, nil
	default:
		return Geometry{}, fmt.Errorf("%w: %s", ErrUnsupportedCard, t)
	}
	g.Type = t
	return g, nil
}

// WithDataArea bounds a page geometry by the data area size in capability
// container cc (byte 2, in units of 8 bytes). Lock, configuration and
// password pages follow the data area and must never be written. A
// container without the NDEF magic falls back to the smallest user area
// of the family.
func (g Geometry) WithDataArea(cc []byte) Geometry {
	if g.Sectored() {
		return g
	}
	g.TotalBlocks = minPageCardEnd
	if len(cc) >= 3 && cc[0] == ccMagic && cc[2] != 0 {
		g.TotalBlocks = dataAreaPage + int(cc[2])*ccSizeUnit/g.BlockSize
	}
	return g
}

// Sectored reports whether the geometry has per-sector authentication.
func (g Geometry) Sectored() bool {
	return g.SectorSize > 0
}

// IsTrailer reports whether block b holds sector keys.
func (g Geometry) IsTrailer(b int) bool {
	if !g.Sectored() {
		return false
	}
	return b > 2 && (b-3)%g.SectorSize == 0
}

// Sector returns the sector that contains block b.
func (g Geometry) Sector(b int) int {
	if !g.Sectored() {
		return 0
	}
	return b / g.SectorSize
}

// TrailerOf returns the trailer block of the sector containing b.
func (g Geometry) TrailerOf(b int) int {
	return g.Sector(b)*g.SectorSize + g.SectorSize - 1
}

// Next advances the cursor past b, skipping a trailer it lands on.
func (g Geometry) Next(b int) int {
	b++
	if g.IsTrailer(b) {
		b++
	}
	return b
}

// BlocksFor returns how many blocks hold n payload bytes.
func (g Geometry) BlocksFor(n int) int {
	return (n + g.BlockSize - 1) / g.BlockSize
}

// Sequence lists n block addresses starting at start, trailers skipped.
func (g Geometry) Sequence(start, n int) []int {
	if n <= 0 {
		return nil
	}
	seq := make([]int, 0, n)
	b := start
	for range n {
		seq = append(seq, b)
		b = g.Next(b)
	}
	return seq
}

// Fits reports whether every address in seq is inside the card.
func (g Geometry) Fits(seq []int) bool {
	if g.TotalBlocks == 0 || len(seq) == 0 {
		return true
	}
	return seq[len(seq)-1] < g.TotalBlocks
}
