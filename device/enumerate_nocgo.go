// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build !cgo

package device

import "fmt"

// simulatedDevices describes the devices reported by enumerateImpl when
// built without cgo (no OpenCL bindings available). It stands in for real
// platform/device enumeration in tests and non-cgo builds: identical
// exported surface, trivial behavior.
var simulatedDevices = []struct {
	computeUnits int
	maxWorkGroup int
	name         string
	memMB        uint64
}{
	{computeUnits: 20, maxWorkGroup: 256, name: "Simulated GPU 0", memMB: 8192},
	{computeUnits: 32, maxWorkGroup: 256, name: "Simulated GPU 1", memMB: 12288},
}

func enumerateImpl(limit int) ([]*Context, error) {
	var out []*Context
	for i, d := range simulatedDevices {
		if limit > 0 && len(out) >= limit {
			break
		}
		if d.memMB*1024*1024 < minGlobalMemBytes {
			continue
		}
		local, global := deriveWorkDimensions(d.computeUnits, d.maxWorkGroup)
		out = append(out, &Context{
			ID:           i,
			Kind:         KindOpenCL,
			Info:         fmt.Sprintf("[sim] %s (%d CU, %d MB)", d.name, d.computeUnits, d.memMB),
			ComputeUnits: d.computeUnits,
			MaxWorkGroup: d.maxWorkGroup,
			Local:        local,
			Global:       global,
			Status:       StatusNull,
		})
	}
	return out, nil
}
