// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build !linux

package device

import "errors"

// ErrTelemetryUnsupported is returned by queryTelemetry on platforms with
// no NVML binding wired in.
var ErrTelemetryUnsupported = errors.New("device: telemetry unsupported on this platform")

func queryTelemetry(index int) (Telemetry, error) {
	return Telemetry{}, ErrTelemetryUnsupported
}
