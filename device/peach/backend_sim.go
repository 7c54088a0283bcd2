// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peach

import (
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/adequatesystems/peach-miner/device"
	"github.com/adequatesystems/peach-miner/trailer"
)

// SimBackend is a pure-Go Backend with no device dependency: it implements
// the full Backend surface with in-process state, so Driver's state
// machine is exercised identically to the real backend. It is used by
// every unit and property test, and is the default backend on builds
// without cgo.
//
// Its "kernels" are software stand-ins: build_map stamps the current
// phash into a sentinel cell (the mechanism SPEC_FULL.md §8 calls for to
// verify "IDLE implies map built under current phash"), and solve finds a
// solution whenever a seed happens to blake2b-hash to a value whose
// leading byte is below the requested difficulty threshold -- rare enough
// that tests instead usually drive a solve directly via InjectSolve.
type SimBackend struct {
	mu sync.Mutex

	global uint64
	local  uint64

	// sentinel records the phash most recently written by ResetForBuild,
	// standing in for the 1 GiB map's content-addressing.
	sentinel trailer.Trailer

	queues [2]simQueue
}

type simQueue struct {
	busy  bool
	host  trailer.Trailer
	solve [32]byte
}

var _ Backend = (*SimBackend)(nil)

// NewSimBackend constructs a SimBackend. global/local describe the work
// dimensions a real device of this shape would report.
func NewSimBackend(global, local uint64) *SimBackend {
	return &SimBackend{global: global, local: local}
}

func (s *SimBackend) Attach(ctx *device.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Global == 0 {
		ctx.Global = s.global
	}
	if ctx.Local == 0 {
		ctx.Local = s.local
	}
	s.global, s.local = ctx.Global, ctx.Local
	s.queues = [2]simQueue{}
	return nil
}

func (s *SimBackend) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues = [2]simQueue{}
}

func (s *SimBackend) QueueIdle(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.queues[id].busy
}

func (s *SimBackend) SyncQueues() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[0].busy = false
	s.queues[1].busy = false
}

func (s *SimBackend) ResetForBuild(bt *trailer.Trailer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentinel = *bt
	for i := range s.queues {
		s.queues[i].host = *bt
		s.queues[i].solve = [32]byte{}
	}
}

func (s *SimBackend) LaunchBuild(id int, offset, count uint64) {
	// Software stand-in for a build_map launch: instantaneous, since
	// there is no real device queue to model latency on. QueueIdle
	// always reports true for this backend outside of SyncQueues'
	// bookkeeping, matching a map build that completes synchronously
	// from the caller's point of view.
}

func (s *SimBackend) HostTrailer(id int) *trailer.Trailer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &s.queues[id].host
}

func (s *SimBackend) LaunchSolve(id int, difficulty byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := &s.queues[id]
	attempt := q.host.Bytes()[:trailer.AttemptSize]
	sum := blake2b.Sum256(attempt)
	if sum[0] < difficulty {
		copy(q.solve[:], sum[:32])
		if q.solve == ([32]byte{}) {
			q.solve[0] = 1 // never report an all-zero "solution"
		}
	}
}

func (s *SimBackend) SolveResult(id int) [32]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queues[id].solve
}

func (s *SimBackend) ClearSolve(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[id].solve = [32]byte{}
}

// InjectSolve deterministically stamps queue id's solve buffer, for tests
// that need to exercise the SOLVE path without waiting on blake2b luck
// (matching SPEC_FULL.md §8 scenario 1's "inject a solve").
func (s *SimBackend) InjectSolve(id int, solve [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[id].solve = solve
}
