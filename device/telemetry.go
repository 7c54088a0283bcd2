// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package device

// Telemetry is a best-effort out-of-band snapshot of a device's power,
// thermal, and utilization state. It is never consulted by device/peach's
// state machine, and the coordinator's metrics do not export it; it is
// only carried on the device Context.
type Telemetry struct {
	Available       bool
	PowerUsageMW    uint32
	TemperatureC    uint32
	UtilizationGPU  uint32
	UtilizationMem  uint32
}

// Enrich attempts to populate ctx.Telemetry for KindCUDA devices via NVML.
// Any failure is logged at debug level and leaves ctx.Telemetry at its
// zero value; enumeration never fails because telemetry is unavailable.
func Enrich(ctx *Context) {
	if ctx.Kind != KindCUDA {
		return
	}
	t, err := queryTelemetry(ctx.ID)
	if err != nil {
		log.Debugf("device: telemetry unavailable for device %d: %v", ctx.ID, err)
		return
	}
	ctx.Telemetry = t
}
