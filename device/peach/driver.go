// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peach

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/aead/siphash"

	"github.com/adequatesystems/peach-miner/device"
	"github.com/adequatesystems/peach-miner/trailer"
)

// DefaultCacheLen is the number of entries in the Peach map used when a
// Driver is not given an explicit WithCacheLen option. It stands in for
// PEACHCACHELEN, which the specification calls out as a compile-time
// constant external to this document; tests override it with WithCacheLen
// to keep the build phase short.
const DefaultCacheLen = 1 << 26

// DefaultBridge is the soft time horizon after which a block's time0 is
// considered stale and mining should yield, per the BRIDGE glossary
// entry.
const DefaultBridge = 5 * time.Minute

// Result is the outcome of one Driver.Tick call.
type Result int

const (
	NoSolve Result = iota
	Solve
	Timeout
)

func (r Result) String() string {
	switch r {
	case NoSolve:
		return "NO_SOLVE"
	case Solve:
		return "SOLVE"
	case Timeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Option configures a Driver at construction time.
type Option func(*Driver)

// WithCacheLen overrides DefaultCacheLen.
func WithCacheLen(n uint64) Option {
	return func(d *Driver) { d.cacheLen = n }
}

// WithBridge overrides DefaultBridge.
func WithBridge(b time.Duration) Option {
	return func(d *Driver) { d.bridge = b }
}

// Driver drives a single device.Context through the {NULL, INIT, IDLE,
// WORK, FAIL} state machine described in SPEC_FULL.md §4.2, dispatching
// every device-touching operation through a Backend. A Driver is not safe
// for concurrent use; SPEC_FULL.md §5 assumes one cooperative loop calls
// Tick for all attached devices in turn.
type Driver struct {
	backend  Backend
	ctx      *device.Context
	cacheLen uint64
	bridge   time.Duration

	// buildStarted is true for the remainder of the current build
	// cycle once the build-entry barrier has run, so it is not
	// repeated while work == 0 on a later queue within the same tick
	// or across ticks until the cycle completes.
	buildStarted bool

	// lastSolvedBnum/haveSolved track the block number most recently
	// reported via a SOLVE result, so "work-available" can refuse to
	// re-mine a block this device already solved (SPEC_FULL.md §4.2's
	// "differs from the one last reported to out_bt"). See DESIGN.md
	// Open Question decisions (e).
	lastSolvedBnum uint64
	haveSolved     bool

	sipKey      [16]byte
	seedCounter uint64
}

// NewDriver constructs a Driver bound to backend. It is not attached to
// any device until Attach is called.
func NewDriver(backend Backend, opts ...Option) *Driver {
	d := &Driver{
		backend:  backend,
		cacheLen: DefaultCacheLen,
		bridge:   DefaultBridge,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Attach allocates backend resources for ctx and transitions it
// NULL->INIT, or NULL->FAIL on any step failure.
func (d *Driver) Attach(ctx *device.Context) error {
	if ctx == nil {
		return &ConfigError{Msg: "nil device context"}
	}
	if err := d.backend.Attach(ctx); err != nil {
		ctx.Status = device.StatusFail
		log.Errorf("peach: attach device %d: %v", ctx.ID, err)
		return &DeviceError{Op: "attach", Err: err}
	}
	if _, err := rand.Read(d.sipKey[:]); err != nil {
		ctx.Status = device.StatusFail
		log.Errorf("peach: seed trigg PRNG for device %d: %v", ctx.ID, err)
		return &DeviceError{Op: "attach", Err: err}
	}
	d.ctx = ctx
	d.buildStarted = false
	d.seedCounter = 0
	ctx.Status = device.StatusInit
	ctx.Work = 0
	ctx.Last = time.Now()
	return nil
}

// Detach releases backend resources. Safe to call repeatedly and on a
// Driver that was never successfully attached.
func (d *Driver) Detach() {
	if d.backend != nil {
		d.backend.Detach()
	}
	if d.ctx != nil {
		d.ctx.Status = device.StatusNull
	}
	d.ctx = nil
}

// Tick runs one non-blocking step of the state machine. It never blocks
// on device completion, except for the SyncQueues barrier at the start of
// a build cycle.
func (d *Driver) Tick(in *trailer.Trailer, diffFloor byte, out *trailer.Trailer) (Result, error) {
	if d.ctx == nil {
		return Timeout, nil
	}
	switch d.ctx.Status {
	case device.StatusFail, device.StatusNull:
		return Timeout, nil
	}

	if d.ctx.Status == device.StatusInit {
		if err := d.tickBuild(in); err != nil {
			return d.fail(err)
		}
	}
	if d.ctx.Status == device.StatusIdle {
		d.tickIdleGate(in)
	}
	if d.ctx.Status == device.StatusWork {
		return d.tickWork(in, diffFloor, out)
	}
	return NoSolve, nil
}

func (d *Driver) fail(err error) (Result, error) {
	d.ctx.Status = device.StatusFail
	log.Errorf("peach: device %d entering FAIL: %v", d.ctx.ID, err)
	return Timeout, err
}

// tickBuild implements the INIT cache-build algorithm of SPEC_FULL.md
// §4.2, grounded line-for-line on
// original_source/src/peach_opencl.c's build loop.
func (d *Driver) tickBuild(in *trailer.Trailer) error {
	for q := 0; q < 2; q++ {
		id := q
		if !d.backend.QueueIdle(id) {
			continue
		}
		if d.ctx.Work == 0 && !d.buildStarted {
			if !d.backend.QueueIdle(id ^ 1) {
				break
			}
			d.backend.ResetForBuild(in)
			d.backend.SyncQueues()
			d.buildStarted = true
		}
		if d.ctx.Work >= d.cacheLen {
			if !d.backend.QueueIdle(id ^ 1) {
				break
			}
			d.ctx.Last = time.Now()
			d.ctx.Status = device.StatusIdle
			d.ctx.Work = 0
			d.buildStarted = false
			break
		}
		remaining := d.cacheLen - d.ctx.Work
		size := remaining
		if size > d.ctx.Global {
			size = d.ctx.Global
		}
		size = roundUp(size, d.ctx.Local)
		d.backend.LaunchBuild(id, d.ctx.Work, size)
		d.ctx.Work += size
	}
	return nil
}

func (d *Driver) tickIdleGate(in *trailer.Trailer) {
	if !d.workAvailable(in) {
		return
	}
	d.ctx.Work = 0
	d.ctx.Last = time.Now()
	d.ctx.Status = device.StatusWork
}

// tickWork implements the WORK solve algorithm of SPEC_FULL.md §4.2.
func (d *Driver) tickWork(in *trailer.Trailer, diffFloor byte, out *trailer.Trailer) (Result, error) {
	for q := 0; q < 2; q++ {
		id := q
		if !d.backend.QueueIdle(id) {
			continue
		}
		ht := d.backend.HostTrailer(id)
		if ht.PrevHash() != in.PrevHash() {
			d.ctx.Status = device.StatusInit
			d.ctx.Work = 0
			d.buildStarted = false
			return NoSolve, nil
		}
		if !d.workAvailable(in) {
			d.ctx.Status = device.StatusIdle
			d.ctx.Work = 0
			return NoSolve, nil
		}

		solve := d.backend.SolveResult(id)
		if hasSolve(solve) {
			ht.SetNonce(solve)
			*out = *ht
			d.backend.ClearSolve(id)
			d.lastSolvedBnum = out.BlockNum()
			d.haveSolved = true
			return Solve, nil
		}

		ht.SetHeaderPrefix(in.HeaderPrefix())
		ht.SetSeedHalf(d.generateSeedHalf(id))
		diff := trailer.EffectiveDifficulty(in, diffFloor)
		d.backend.LaunchSolve(id, diff)

		d.ctx.Work += d.ctx.Global
		elapsed := time.Since(d.ctx.Last).Seconds()
		if elapsed <= 0 {
			elapsed = 1
		}
		d.ctx.HPS = float64(d.ctx.Work) / elapsed
	}
	return NoSolve, nil
}

// workAvailable is true iff: the trailer carries at least one
// transaction; its block number is not the one this device already
// solved; and wall time since time0 is still inside the BRIDGE horizon.
func (d *Driver) workAvailable(in *trailer.Trailer) bool {
	if in.TCount() == 0 {
		return false
	}
	if d.haveSolved && in.BlockNum() == d.lastSolvedBnum {
		return false
	}
	if time.Since(time.Unix(int64(in.Time0()), 0)) >= d.bridge {
		return false
	}
	return true
}

// generateSeedHalf produces the 16-byte "trigg-seed" nonce half from a
// CPU PRNG: a SipHash-2-4 keyed hash of a monotonic counter and the queue
// id, keyed by a value drawn from crypto/rand at Attach. This is the CPU
// PRNG called for in SPEC_FULL.md §4.2 step 5; it has no relationship to
// the device-side seed_prng kernel seeded at Attach.
func (d *Driver) generateSeedHalf(id int) [16]byte {
	d.seedCounter++
	var msg [16]byte
	binary.LittleEndian.PutUint64(msg[0:8], d.seedCounter)
	binary.LittleEndian.PutUint64(msg[8:16], uint64(id))
	return siphash.Sum128(msg[:], &d.sipKey)
}

func hasSolve(b [32]byte) bool {
	for i := 0; i < 8; i++ {
		if b[i] != 0 {
			return true
		}
	}
	return false
}

func roundUp(v, multiple uint64) uint64 {
	if multiple == 0 {
		return v
	}
	if rem := v % multiple; rem != 0 {
		return v + (multiple - rem)
	}
	return v
}
