// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peach

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/adequatesystems/peach-miner/device"
	"github.com/adequatesystems/peach-miner/trailer"
)

func newTestDriver(t *testing.T, cacheLen uint64) (*Driver, *device.Context, *SimBackend) {
	t.Helper()
	ctx := &device.Context{ID: 0, Kind: device.KindOpenCL, ComputeUnits: 4, Global: 64, Local: 16}
	backend := NewSimBackend(ctx.Global, ctx.Local)
	d := NewDriver(backend, WithCacheLen(cacheLen), WithBridge(time.Hour))
	require.NoError(t, d.Attach(ctx))
	return d, ctx, backend
}

func freshTrailer(phash byte, bnum uint64, difficulty byte, tcount uint32) *trailer.Trailer {
	var tr trailer.Trailer
	var prev [32]byte
	for i := range prev {
		prev[i] = phash
	}
	tr.SetPrevHash(chainhash.Hash(prev))
	tr.SetBlockNum(bnum)
	tr.SetDifficulty(difficulty)
	tr.SetTime0(uint32(time.Now().Unix()))
	tr.SetTCount(tcount)
	return &tr
}

// driveToIdle builds the map for in's phash and stops in IDLE. It ticks
// with a copy of in whose tcount is zero: with work available, the tick
// that finishes the build also passes the IDLE gate and enters WORK, so
// IDLE would never be observed between ticks.
func driveToIdle(t *testing.T, d *Driver, ctx *device.Context, in *trailer.Trailer) {
	t.Helper()
	stalled := *in
	stalled.SetTCount(0)
	var out trailer.Trailer
	for i := 0; i < 10000 && ctx.Status != device.StatusIdle; i++ {
		res, err := d.Tick(&stalled, 0, &out)
		require.NoError(t, err)
		require.NotEqual(t, Timeout, res)
	}
	require.Equal(t, device.StatusIdle, ctx.Status)
}

func TestColdStartFirstJob(t *testing.T) {
	d, ctx, backend := newTestDriver(t, 64) // one chunk == global, finishes fast
	in := freshTrailer(0x11, 0x0100000000000000, 8, 1)

	driveToIdle(t, d, ctx, in)

	var out trailer.Trailer
	res, err := d.Tick(in, 0, &out)
	require.NoError(t, err)
	require.Equal(t, NoSolve, res)
	require.Equal(t, device.StatusWork, ctx.Status)

	var solve [32]byte
	for i := range solve {
		solve[i] = 0xab
	}
	backend.InjectSolve(0, solve)

	res, err = d.Tick(in, 0, &out)
	require.NoError(t, err)
	assert.Equal(t, Solve, res)
	assert.Equal(t, solve, out.Nonce())
	assert.Equal(t, [32]byte{}, backend.SolveResult(0))
}

func TestPhashRotationReturnsToInit(t *testing.T) {
	d, ctx, _ := newTestDriver(t, 64)
	in := freshTrailer(0x11, 1, 8, 1)
	driveToIdle(t, d, ctx, in)

	var out trailer.Trailer
	res, err := d.Tick(in, 0, &out)
	require.NoError(t, err)
	require.Equal(t, NoSolve, res)
	require.Equal(t, device.StatusWork, ctx.Status)

	rotated := freshTrailer(0x22, 1, 8, 1)
	res, err = d.Tick(rotated, 0, &out)
	require.NoError(t, err)
	assert.Equal(t, NoSolve, res)
	assert.Equal(t, device.StatusInit, ctx.Status)
	assert.Equal(t, uint64(0), ctx.Work)
}

func TestWorkExpiryTransitionsToIdle(t *testing.T) {
	d, ctx, _ := newTestDriver(t, 64)
	in := freshTrailer(0x11, 1, 8, 1)
	driveToIdle(t, d, ctx, in)

	var out trailer.Trailer
	res, err := d.Tick(in, 0, &out)
	require.NoError(t, err)
	require.Equal(t, device.StatusWork, ctx.Status)
	require.Equal(t, NoSolve, res)

	expired := freshTrailer(0x11, 1, 8, 0) // tcount == 0
	res, err = d.Tick(expired, 0, &out)
	require.NoError(t, err)
	assert.Equal(t, NoSolve, res)
	assert.Equal(t, device.StatusIdle, ctx.Status)
}

func TestBuildPhaseTerminatesWithinBound(t *testing.T) {
	const global = 64
	const cacheLen = global * 10
	ctx := &device.Context{ID: 0, Kind: device.KindOpenCL, Global: global, Local: 16}
	backend := NewSimBackend(global, 16)
	d := NewDriver(backend, WithCacheLen(cacheLen), WithBridge(time.Hour))
	require.NoError(t, d.Attach(ctx))

	// tcount == 0 keeps the device in IDLE once the build completes.
	in := freshTrailer(0x11, 1, 8, 0)
	var out trailer.Trailer
	bound := (cacheLen + global - 1) / global

	ticks := 0
	for ctx.Status == device.StatusInit && ticks <= int(bound) {
		_, err := d.Tick(in, 0, &out)
		require.NoError(t, err)
		ticks++
	}
	assert.LessOrEqual(t, ticks, int(bound))
	assert.Equal(t, device.StatusIdle, ctx.Status)
}
