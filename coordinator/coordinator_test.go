// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adequatesystems/peach-miner/device"
	"github.com/adequatesystems/peach-miner/device/peach"
	"github.com/adequatesystems/peach-miner/stratum"
	"github.com/adequatesystems/peach-miner/trailer"
)

// fakePool authorizes whatever it's asked and sends exactly one notify,
// standing in for a permissive pool over an in-memory pipe.
func fakePool(t *testing.T, conn net.Conn, notify string) {
	t.Helper()
	reader := bufio.NewReader(conn)
	if _, err := reader.ReadString('\n'); err != nil { // authorize request
		return
	}
	if _, err := conn.Write([]byte(`{"id":1,"result":true,"error":null}` + "\n")); err != nil {
		return
	}
	if _, err := conn.Write([]byte(notify)); err != nil {
		return
	}
	// Keep draining anything the client sends afterward (share submits),
	// so a later Submit's Write doesn't block forever on this pipe.
	for {
		if _, err := reader.ReadString('\n'); err != nil {
			return
		}
	}
}

func newConnectedClient(t *testing.T) *stratum.Client {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { server.Close() })
	c := stratum.NewClientWithConn(client, "wallet", "rig")

	phash := strings.Repeat("11", 32)
	mroot := strings.Repeat("22", 32)
	notify := `{"method":"mining.notify","params":["job1","` + phash + `","0100000000000000","1","` +
		hexNow() + `","` + mroot + `",true]}` + "\n"

	go fakePool(t, server, notify)

	require.NoError(t, c.Authorize())
	require.NoError(t, c.Process()) // consumes the authorize response
	require.Equal(t, stratum.Connected, c.ConnState())
	require.NoError(t, c.Process()) // consumes the notify
	require.True(t, c.HasJob())
	return c
}

func hexNow() string {
	return fmt.Sprintf("0x%x", time.Now().Unix())
}

func TestTickAdvancesDeviceAndSubmitsSolve(t *testing.T) {
	client := newConnectedClient(t)

	ctx := &device.Context{ID: 0, Kind: device.KindOpenCL, Global: 32, Local: 8}
	backend := peach.NewSimBackend(ctx.Global, ctx.Local)
	driver := peach.NewDriver(backend, peach.WithCacheLen(32), peach.WithBridge(time.Hour))
	require.NoError(t, driver.Attach(ctx))

	co := New(client, []*Slot{{Context: ctx, Driver: driver}})

	for i := 0; i < 100 && ctx.Status != device.StatusWork; i++ {
		require.NoError(t, co.Tick())
	}
	require.Equal(t, device.StatusWork, ctx.Status)

	var solve [32]byte
	solve[0] = 0x42
	backend.InjectSolve(0, solve)

	require.NoError(t, co.Tick())
	assert.Equal(t, device.StatusWork, ctx.Status, "a solved attempt stays in WORK for the next job")
	assert.False(t, co.Slots[0].Removed)
}

func TestShareFingerprintDeterministic(t *testing.T) {
	var tr trailer.Trailer
	tr.SetBlockNum(7)
	a := shareFingerprint(&tr)
	b := shareFingerprint(&tr)
	assert.Equal(t, a, b)

	tr.SetBlockNum(8)
	c := shareFingerprint(&tr)
	assert.NotEqual(t, a, c)
}
