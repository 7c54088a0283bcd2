// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"github.com/adequatesystems/peach-miner/coordinator"
	"github.com/adequatesystems/peach-miner/device"
	"github.com/adequatesystems/peach-miner/device/peach"
	"github.com/adequatesystems/peach-miner/stratum"
)

// logWriter fans out log output to stdout and to the rotating log file,
// the same dual-sink pattern a full node uses for its own log backend.
type logWriter struct {
	rotator *rotator.Rotator
}

func (w logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	return w.rotator.Write(p)
}

var logRotator *rotator.Rotator

// initLogRotator creates the rotating log file under logDir and returns a
// btclog.Backend writing to both stdout and that file.
func initLogRotator(logDir string) (*btclog.Backend, error) {
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	logFile := filepath.Join(logDir, "peachminer.log")

	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return nil, fmt.Errorf("create log rotator: %w", err)
	}
	logRotator = r

	var w io.Writer = logWriter{rotator: r}
	return btclog.NewBackend(w), nil
}

// wireLoggers constructs one logger per subsystem off a shared backend,
// mirroring how a full node wires per-subsystem loggers: each package
// only sees a btclog.Logger through UseLogger, never the backend itself.
func wireLoggers(backend *btclog.Backend, level btclog.Level) {
	subsystems := map[string]func(btclog.Logger){
		"DVCE": device.UseLogger,
		"PEAC": peach.UseLogger,
		"STRM": stratum.UseLogger,
		"COOR": coordinator.UseLogger,
	}
	for tag, use := range subsystems {
		logger := backend.Logger(tag)
		logger.SetLevel(level)
		use(logger)
	}
}

func parseLevel(s string) btclog.Level {
	level, ok := btclog.LevelFromString(s)
	if !ok {
		return btclog.LevelInfo
	}
	return level
}
