// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package device

import "github.com/btcsuite/btclog"

// log is the package-level logger used by the device enumerator and
// telemetry probes. It is disabled by default; callers wire a concrete
// backend in with UseLogger.
var log btclog.Logger

// UseLogger sets the package-wide logger. Disabled by default.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// DisableLog disables all library log output.
func DisableLog() {
	log = btclog.Disabled
}

func init() {
	DisableLog()
}
