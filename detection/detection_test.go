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

package detection

import (
	"errors"
	"testing"

	"github.com/arnuschky/EnRav/config"
	testutil "github.com/arnuschky/EnRav/internal/testing"
	"github.com/arnuschky/EnRav/pcsc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

func TestIsPathIgnored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		path        string
		ignorePaths []string
		expected    bool
	}{
		{name: "empty ignore list", path: "/dev/ttyUSB0", ignorePaths: []string{}},
		{name: "empty device path", path: "", ignorePaths: []string{"/dev/ttyUSB0"}},
		{name: "exact match", path: "/dev/ttyUSB0", ignorePaths: []string{"/dev/ttyUSB0"}, expected: true},
		{name: "windows case insensitive", path: "com2", ignorePaths: []string{"COM2"}, expected: true},
		{name: "no match", path: "/dev/ttyUSB1", ignorePaths: []string{"/dev/ttyUSB0"}},
		{
			name: "relative components", path: "/dev/../dev/ttyUSB0",
			ignorePaths: []string{"/dev/ttyUSB0"}, expected: true,
		},
		{
			name: "pcsc reader name", path: "ACS ACR122U PICC Interface 00 00",
			ignorePaths: []string{"acs acr122u picc interface 00 00"}, expected: true,
		},
		{name: "empty strings in list", path: "/dev/i2c-1", ignorePaths: []string{"", "/dev/i2c-1"}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsPathIgnored(tt.path, tt.ignorePaths))
		})
	}
}

func TestIsBlocked(t *testing.T) {
	t.Parallel()

	assert.True(t, IsBlocked("2341:0043", DefaultBlocklist()))
	assert.True(t, IsBlocked(" abcd:ef01 ", []string{"ABCD:EF01"}))
	assert.False(t, IsBlocked("1A86:7523", DefaultBlocklist()))
}

func TestSerialCandidates(t *testing.T) {
	t.Parallel()

	ports := []*enumerator.PortDetails{
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1A86", PID: "7523", Product: "USB Serial"},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043"},
		{Name: "/dev/ttyS0"},
	}
	got := serialCandidates(ports, DefaultBlocklist())
	require.Len(t, got, 2)
	assert.Equal(t, Candidate{
		Driver: config.DriverPN532UART, Path: "/dev/ttyUSB0", Description: "USB 1A86:7523 USB Serial",
	}, got[0])
	assert.Equal(t, "/dev/ttyS0", got[1].Path)
	assert.Equal(t, "serial port", got[1].Description)
}

func TestListPCSC(t *testing.T) {
	t.Parallel()

	sim := testutil.NewPCSCSim(nil)
	got, err := listPCSC(&Options{PCSC: sim.Factory()})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, testutil.SimReaderName, got[0].Path)
	assert.Equal(t, config.DriverPCSC, got[0].Driver)
	assert.True(t, sim.Released())

	got, err = listPCSC(&Options{})
	require.NoError(t, err)
	assert.Empty(t, got)

	failing := pcsc.ContextFactory(func() (pcsc.Context, error) { return nil, errors.New("pcscd not running") })
	_, err = listPCSC(&Options{PCSC: failing})
	assert.ErrorContains(t, err, "pcscd not running")
}

func TestDetectJoinsErrorsAndFilters(t *testing.T) {
	t.Parallel()

	errBus := errors.New("bus unavailable")
	srcs := []source{
		{driver: "a", list: func(*Options) ([]Candidate, error) {
			return []Candidate{{Driver: "a", Path: "/dev/ttyUSB0"}, {Driver: "a", Path: "/dev/ttyUSB1"}}, nil
		}},
		{driver: "b", list: func(*Options) ([]Candidate, error) { return nil, errBus }},
		{driver: "c", list: func(*Options) ([]Candidate, error) {
			return []Candidate{{Driver: "c", Path: "reader"}}, nil
		}},
	}

	got, err := detect(&Options{IgnorePaths: []string{"/dev/ttyUSB1"}}, srcs)
	require.ErrorIs(t, err, errBus)
	assert.ErrorContains(t, err, "b: bus unavailable")
	require.Len(t, got, 2)
	assert.Equal(t, "/dev/ttyUSB0", got[0].Path)
	assert.Equal(t, "reader", got[1].Path)
}
