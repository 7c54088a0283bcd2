// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build !cgo

package main

import "github.com/adequatesystems/peach-miner/device/peach"

// newHardwareBackend falls back to the simulated backend on builds
// without cgo, matching device.Enumerate's own fallback to simulated
// devices on the same build tag.
func newHardwareBackend() peach.Backend {
	return peach.NewSimBackend(0, 0)
}
