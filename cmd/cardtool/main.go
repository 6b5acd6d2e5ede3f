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

// Command cardtool reads, writes and watches EnRav card records.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	cardrecord "github.com/arnuschky/EnRav"
	"github.com/arnuschky/EnRav/config"
	"github.com/arnuschky/EnRav/detection"
	"github.com/arnuschky/EnRav/internal/logging"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	modeRead    = "read"
	modeWrite   = "write"
	modeWatch   = "watch"
	modeInspect = "inspect"
	modeList    = "list"
)

var errUsage = errors.New("usage error")

type options struct {
	configPath string
	mode       string
	driver     string
	path       string
	file       string
	timeout    time.Duration
	volume     uint
	resumable  bool
	initConfig bool
	debug      bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("cardtool", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", config.DefaultPath(), "Path to the configuration file")
	fs.StringVar(&opts.mode, "mode", modeRead, "One of read, write, watch, inspect or list")
	fs.StringVar(&opts.driver, "driver", "", "Override the configured reader driver")
	fs.StringVar(&opts.path, "path", "", "Override the configured reader path")
	fs.StringVar(&opts.file, "file", "", "File name to store on the card (write mode)")
	fs.UintVar(&opts.volume, "volume", 10, "Volume to store on the card (write mode)")
	fs.BoolVar(&opts.resumable, "resumable", false, "Mark the record as resumable (write mode)")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second,
		"Time to wait for a card, 0 waits forever (watch mode ignores it)")
	fs.BoolVar(&opts.initConfig, "init-config", false, "Write the configuration file and exit")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug output")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}

	switch opts.mode {
	case modeRead, modeWatch, modeInspect, modeList:
	case modeWrite:
		if opts.file == "" {
			return nil, fmt.Errorf("%w: write mode needs -file", errUsage)
		}
		if opts.volume > 255 {
			return nil, fmt.Errorf("%w: volume %d out of range 0-255", errUsage, opts.volume)
		}
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", errUsage, opts.mode)
	}
	return opts, nil
}

// loadConfig opens the configuration and applies command line overrides
func loadConfig(fs afero.Fs, opts *options) (*config.Instance, error) {
	cfg, err := config.NewConfig(fs, opts.configPath, config.BaseDefaults)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.driver != "" {
		cfg.SetReaderDriver(opts.driver)
	}
	if opts.path != "" {
		cfg.SetReaderPath(opts.path)
	}
	return cfg, nil
}

func newHandler(cfg *config.Instance, rf cardrecord.Transceiver) (*cardrecord.Handler, error) {
	key, err := cfg.Key()
	if err != nil {
		return nil, err
	}
	h, err := cardrecord.New(rf,
		cardrecord.WithKey(key),
		cardrecord.WithPresenceRetries(cfg.PresenceRetries()),
		cardrecord.WithLogger(log.With().Str("component", "cardrecord").Logger()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create handler: %w", err)
	}
	return h, nil
}

func (a *app) runMode(ctx context.Context, opts *options) error {
	if opts.mode == modeWatch {
		return a.watch(ctx)
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	switch opts.mode {
	case modeWrite:
		return a.write(ctx, cardrecord.Record{
			FileName:  opts.file,
			Volume:    uint8(opts.volume),
			Resumable: opts.resumable,
		})
	case modeInspect:
		return a.inspect(ctx)
	default:
		return a.read(ctx)
	}
}

// listReaders prints detected readers. Source failures only matter when
// nothing was found.
func listReaders(out io.Writer, cands []detection.Candidate, err error) error {
	if len(cands) == 0 {
		if err != nil {
			return fmt.Errorf("no readers found: %w", err)
		}
		_, _ = fmt.Fprintln(out, "No readers found")
		return nil
	}
	for _, c := range cands {
		_, _ = fmt.Fprintln(out, c)
	}
	return nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(afero.NewOsFs(), opts)
	if err != nil {
		return err
	}
	if opts.initConfig {
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		_, _ = fmt.Fprintf(stdout, "Configuration written to %s\n", cfg.Path())
		return nil
	}

	if opts.mode == modeList {
		cands, err := detection.Detect(detection.DefaultOptions())
		return listReaders(stdout, cands, err)
	}

	level := cfg.LogLevel()
	if opts.debug {
		level = "debug"
	}
	logCloser, err := logging.Setup(level, cfg.LogFile(), stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()

	_, _ = fmt.Fprintf(stdout, "Opening %s reader %q\n", cfg.ReaderDriver(), cfg.ReaderPath())
	rd, err := openDriver(cfg.ReaderDriver(), cfg.ReaderPath(), cfg.ReaderTimeout(), log.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = rd.close() }()

	h, err := newHandler(cfg, rd.rf)
	if err != nil {
		return err
	}
	if err := h.Connect(); err != nil {
		return fmt.Errorf("failed to connect to reader: %w", err)
	}

	a := &app{
		clock:    clockwork.NewRealClock(),
		handler:  h,
		out:      stdout,
		interval: cfg.PollInterval(),
	}
	return a.runMode(ctx, opts)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "cardtool: %v\n", err)
		stop()
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
