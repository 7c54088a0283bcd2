// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build cgo

package main

import "github.com/adequatesystems/peach-miner/device/peach"

// newHardwareBackend returns the real OpenCL-backed compute backend.
func newHardwareBackend() peach.Backend {
	return peach.NewOpenCLBackend()
}
