// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peach implements the per-device Peach state machine described
// in SPEC_FULL.md §4.2: a double-buffered build/solve pipeline driven
// entirely by non-blocking completion polling, dispatched through an
// opaque Backend so the state machine itself never touches
// backend-specific handles.
package peach

import (
	"github.com/adequatesystems/peach-miner/device"
	"github.com/adequatesystems/peach-miner/trailer"
)

// Backend is the variant-per-backend dispatch surface for one attached
// device. Implementations hold opaque device handles (buffers, queues,
// programs, kernels) entirely behind this interface; Driver never
// inspects them. Two backends exist: a cgo-gated real OpenCL backend
// (backend_opencl.go) and a pure-Go simulated backend used for tests and
// non-cgo builds (backend_sim.go).
type Backend interface {
	// Attach allocates the compute context, both command queues, the
	// map/phash/trailer/prng/solve buffers, and seeds each queue's PRNG
	// state with (time XOR (id<<32) XOR queue_index).
	Attach(ctx *device.Context) error
	// Detach releases every resource. Safe to call repeatedly and on a
	// partially-attached backend.
	Detach()

	// QueueIdle reports whether queue id has no outstanding work.
	QueueIdle(id int) bool
	// SyncQueues blocks until both queues are idle. Used only at the
	// build-entry barrier, at most once per phash change.
	SyncQueues()

	// ResetForBuild zeroes both device and host solve buffers, copies
	// bt into both host-trailer mirrors, and uploads bt's previous
	// hash to the device phash buffer.
	ResetForBuild(bt *trailer.Trailer)
	// LaunchBuild enqueues build_map(offset, count) on queue id. count
	// is already rounded up to a multiple of Local() by the caller.
	LaunchBuild(id int, offset, count uint64)

	// HostTrailer returns a mutable view of queue id's host-trailer
	// mirror.
	HostTrailer(id int) *trailer.Trailer
	// LaunchSolve writes the first AttemptSize bytes of HostTrailer(id)
	// to the device trailer buffer, launches solve() at the given
	// effective difficulty, and enqueues a non-blocking readback of the
	// 32-byte solve buffer into the host solve slot.
	LaunchSolve(id int, difficulty byte)
	// SolveResult returns the 32-byte host solve slot for queue id. All
	// zero means no solution is pending.
	SolveResult(id int) [32]byte
	// ClearSolve zeroes the device and host solve buffers for queue id.
	ClearSolve(id int)
}
