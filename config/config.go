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

// Package config loads the card tool's TOML configuration
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	cardrecord "github.com/arnuschky/EnRav"
	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	SchemaVersion = 1
	CfgEnv        = "ENRAV_CFG"
	CfgFile       = "enrav.toml"
)

// Reader drivers
const (
	DriverPN532UART = "pn532_uart"
	DriverPN532I2C  = "pn532_i2c"
	DriverPCSC      = "pcsc"
	DriverLibNFC    = "libnfc"
	DriverVirtual   = "virtual"
)

var ErrSchemaMismatch = errors.New("schema version mismatch")

type Values struct {
	Logging      Logging `toml:"logging"`
	Reader       Reader  `toml:"reader"`
	Card         Card    `toml:"card"`
	Poll         Poll    `toml:"poll"`
	ConfigSchema int     `toml:"config_schema" validate:"eq=1"`
}

type Reader struct {
	Driver    string `toml:"driver" validate:"oneof=pn532_uart pn532_i2c pcsc libnfc virtual"`
	Path      string `toml:"path"`
	TimeoutMS int    `toml:"timeout_ms" validate:"gte=10,lte=60000"`
}

type Card struct {
	Key             string `toml:"key" validate:"len=12,hexadecimal"`
	PresenceRetries int    `toml:"presence_retries" validate:"gte=1,lte=20"`
}

type Poll struct {
	IntervalMS int `toml:"interval_ms" validate:"gte=10,lte=10000"`
}

type Logging struct {
	Level string `toml:"level" validate:"oneof=trace debug info warn error"`
	File  string `toml:"file"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Reader: Reader{
		Driver:    DriverPN532UART,
		Path:      "/dev/ttyUSB0",
		TimeoutMS: 1000,
	},
	Card: Card{
		Key:             "FFFFFFFFFFFF",
		PresenceRetries: cardrecord.DefaultPresenceRetries,
	},
	Poll: Poll{
		IntervalMS: 250,
	},
	Logging: Logging{
		Level: "info",
	},
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Instance is a loaded configuration file
type Instance struct {
	fs       afero.Fs
	cfgPath  string
	vals     Values
	defaults Values
	mu       sync.RWMutex
}

// DefaultPath returns the config path from ENRAV_CFG or the user config
// directory
func DefaultPath() string {
	if p := os.Getenv(CfgEnv); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return CfgFile
	}
	return filepath.Join(dir, "enrav", CfgFile)
}

// NewConfig opens the configuration at cfgPath on fs, writing defaults
// first when the file does not exist
//
//nolint:gocritic // defaults copied so callers cannot mutate them later
func NewConfig(fs afero.Fs, cfgPath string, defaults Values) (*Instance, error) {
	cfg := &Instance{
		fs:       fs,
		cfgPath:  cfgPath,
		vals:     defaults,
		defaults: defaults,
	}

	exists, err := afero.Exists(fs, cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if !exists {
		log.Info().Str("path", cfgPath).Msg("saving new default config to disk")
		if err := fs.MkdirAll(filepath.Dir(cfgPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := cfg.Save(); err != nil {
			return nil, err
		}
	}

	if err := cfg.Load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the file over the defaults and validates the result
func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := afero.ReadFile(c.fs, c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Fields missing from the file keep their defaults.
	newVals := c.defaults
	if err := toml.Unmarshal(data, &newVals); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf("schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema, SchemaVersion)
		return ErrSchemaMismatch
	}

	if err := validate.Struct(&newVals); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %s", formatValidationErrors(verrs))
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	c.vals = newVals
	return nil
}

func formatValidationErrors(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return strings.Join(msgs, "; ")
}

// Save writes the current values to disk
func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.vals.ConfigSchema = SchemaVersion
	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := afero.WriteFile(c.fs, c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Path returns the file the configuration was loaded from
func (c *Instance) Path() string {
	return c.cfgPath
}

// Values returns a copy of the loaded values
func (c *Instance) Values() Values {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals
}

func (c *Instance) ReaderDriver() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Reader.Driver
}

func (c *Instance) SetReaderDriver(driver string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Reader.Driver = driver
}

func (c *Instance) ReaderPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Reader.Path
}

func (c *Instance) SetReaderPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Reader.Path = path
}

func (c *Instance) ReaderTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Reader.TimeoutMS) * time.Millisecond
}

func (c *Instance) PollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Poll.IntervalMS) * time.Millisecond
}

func (c *Instance) PresenceRetries() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Card.PresenceRetries
}

func (c *Instance) LogLevel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Logging.Level
}

func (c *Instance) LogFile() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Logging.File
}

// Key decodes the configured sector key
func (c *Instance) Key() (cardrecord.Key, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ParseKey(c.vals.Card.Key)
}

// ParseKey decodes a 12 digit hex string into a sector key
func ParseKey(s string) (cardrecord.Key, error) {
	var key cardrecord.Key
	raw, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("invalid key %q: %w", s, err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("invalid key %q: want %d bytes, got %d", s, len(key), len(raw))
	}
	copy(key[:], raw)
	return key, nil
}
