// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package device enumerates candidate compute accelerators and allocates
// the per-device contexts that device/peach drives through its state
// machine. It does not itself run any kernels.
package device

import "time"

// Kind tags the accelerator family a Context was discovered on. Both kinds
// are driven through the same OpenCL-style Backend in device/peach; Kind
// only affects which enrichment probes apply (e.g. NVML telemetry applies
// to KindCUDA devices; see telemetry.go).
type Kind int

const (
	// KindCUDA tags an NVIDIA, CUDA-capable accelerator (device-kind
	// tag "gpu-A" in the specification).
	KindCUDA Kind = iota
	// KindOpenCL tags a generic OpenCL-capable accelerator (device-kind
	// tag "gpu-B").
	KindOpenCL
)

func (k Kind) String() string {
	switch k {
	case KindCUDA:
		return "gpu-A"
	case KindOpenCL:
		return "gpu-B"
	default:
		return "unknown"
	}
}

// Status is the per-device lifecycle state shared between device and
// device/peach. It mirrors the state machine's {NULL, INIT, IDLE, WORK,
// FAIL} vocabulary.
type Status int

const (
	StatusNull Status = iota
	StatusInit
	StatusIdle
	StatusWork
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusNull:
		return "NULL"
	case StatusInit:
		return "INIT"
	case StatusIdle:
		return "IDLE"
	case StatusWork:
		return "WORK"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// minGlobalMemBytes is the minimum global memory a device must report to
// be considered for attachment: the 1 GiB Peach map plus headroom for the
// phash buffer, the two trailer/solve/prng buffers, and driver overhead.
const minGlobalMemBytes = uint64(1.2 * 1024 * 1024 * 1024)

// Context describes one candidate accelerator: its identity, capability,
// derived work dimensions, and runtime status. Enumerate returns a slice
// of these; device/peach.Driver.Attach consumes one to allocate the
// backend resources described in SPEC_FULL.md §3.
type Context struct {
	ID           int
	Kind         Kind
	Info         string
	ComputeUnits int
	MaxWorkGroup int

	// Local and Global are the derived work dimensions: Local <= 256
	// (capped by MaxWorkGroup), Global = ComputeUnits * 256 * Local.
	Local  uint64
	Global uint64

	Status Status

	// Work doubles as build-progress (state INIT) and hashcount (state
	// WORK), per the reference implementation's aliasing. See
	// DESIGN.md Open Question (b).
	Work uint64
	HPS  float64
	Last time.Time

	// Telemetry is a best-effort snapshot populated by Enrich. Its
	// zero value is always valid and means "no telemetry available".
	Telemetry Telemetry

	// Handle is an opaque backend-specific device reference (e.g. a
	// cgo cl_device_id) used only by the Enumerate implementation that
	// produced this Context and the Backend that later attaches to it.
	Handle any
}

// deriveWorkDimensions computes Local/Global from ComputeUnits and
// MaxWorkGroup, per SPEC_FULL.md §3 and the reference implementation's
// `block = min(max_work_group, 256); grid = compute_units * 256`.
func deriveWorkDimensions(computeUnits, maxWorkGroup int) (local, global uint64) {
	local = uint64(maxWorkGroup)
	if local > 256 {
		local = 256
	}
	if local == 0 {
		local = 1
	}
	global = uint64(computeUnits) * 256 * local
	return local, global
}
