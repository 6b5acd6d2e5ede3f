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

package polling

import (
	"time"

	cardrecord "github.com/arnuschky/EnRav"
)

// DetectionState is the watcher's view of the field
type DetectionState int

const (
	StateIdle DetectionState = iota
	StateReading
	StateCardPresent
	StateWriting
)

func (s DetectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateCardPresent:
		return "present"
	case StateWriting:
		return "writing"
	default:
		return "unknown"
	}
}

// CardState tracks the card currently on the reader
type CardState struct {
	DetectedAt time.Time
	LastSeen   time.Time
	Record     cardrecord.Record
	ID         cardrecord.Identity
	State      DetectionState
}

// Present reports whether a card is being tracked
func (cs CardState) Present() bool {
	return cs.State != StateIdle
}

// TransitionToReading starts tracking id while its record is read
func (cs *CardState) TransitionToReading(id cardrecord.Identity, now time.Time) {
	cs.State = StateReading
	cs.ID = id.Clone()
	cs.Record = cardrecord.Record{}
	cs.DetectedAt = now
	cs.LastSeen = now
}

// TransitionToPresent stores the record read from the tracked card
func (cs *CardState) TransitionToPresent(rec cardrecord.Record, now time.Time) {
	cs.State = StateCardPresent
	cs.Record = rec
	cs.LastSeen = now
}

// TransitionToWriting marks a queued write in progress
func (cs *CardState) TransitionToWriting() {
	cs.State = StateWriting
}

// TransitionToIdle forgets the tracked card
func (cs *CardState) TransitionToIdle() {
	*cs = CardState{}
}

// Clone returns a copy that shares no memory with cs
func (cs CardState) Clone() CardState {
	out := cs
	out.ID = cs.ID.Clone()
	return out
}
