// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stratum

import (
	"bufio"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adequatesystems/peach-miner/trailer"
)

func newPipedClient() (*Client, net.Conn) {
	client, server := net.Pipe()
	c := NewClient("pool.example", 3333, "wallet123", "rig1")
	c.conn = client
	return c, server
}

// TestAuthorizeSuccess covers SPEC_FULL.md §8 scenario 4: feeding
// {"id":1,"result":true,"error":null} while AUTHORIZING advances to
// CONNECTED.
func TestAuthorizeSuccess(t *testing.T) {
	c, server := newPipedClient()
	c.state = Authorizing

	go func() {
		_, _ = server.Write([]byte(`{"id":1,"result":true,"error":null}` + "\n"))
	}()

	require.NoError(t, c.Process())
	assert.Equal(t, Connected, c.ConnState())
}

func TestAuthorizeFailureReturnsAuthError(t *testing.T) {
	c, server := newPipedClient()
	c.state = Authorizing

	go func() {
		_, _ = server.Write([]byte(`{"id":1,"result":false,"error":"bad worker"}` + "\n"))
	}()

	err := c.Process()
	require.Error(t, err)
	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
	assert.Equal(t, Disconnected, c.ConnState())
}

// TestNotifyParse covers SPEC_FULL.md §8 scenario 5.
func TestNotifyParse(t *testing.T) {
	c, server := newPipedClient()
	c.state = Connected

	phash := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	mroot := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	line := `{"method":"mining.notify","params":["j1","` + phash + `","0100000000000000","8","66ddee00","` + mroot + `",true]}` + "\n"

	go func() {
		_, _ = server.Write([]byte(line))
	}()

	require.NoError(t, c.Process())

	assert.True(t, c.pending.Valid)
	assert.Equal(t, uint64(1), c.pending.Seq)
	assert.Equal(t, byte(8), c.pending.Difficulty)

	var out trailer.Trailer
	jobID, err := c.GetJob(&out)
	require.NoError(t, err)
	assert.Equal(t, "j1", jobID)
	assert.Equal(t, []byte{0x00, 0xee, 0xdd, 0x66}, out.Bytes()[80:84])
}

func TestSetDifficultyUpdatesFloor(t *testing.T) {
	c, server := newPipedClient()
	c.state = Connected

	go func() {
		_, _ = server.Write([]byte(`{"method":"mining.set_difficulty","params":[12]}` + "\n"))
	}()
	require.NoError(t, c.Process())
	assert.Equal(t, byte(12), c.Difficulty())

	// a non-positive value must be ignored, leaving the floor unchanged.
	go func() {
		_, _ = server.Write([]byte(`{"method":"mining.set_difficulty","params":[0]}` + "\n"))
	}()
	require.NoError(t, c.Process())
	assert.Equal(t, byte(12), c.Difficulty())
}

func TestSubmitFormatsMessageAndDedupes(t *testing.T) {
	c, server := newPipedClient()
	c.state = Connected

	reader := bufio.NewReader(server)
	lineCh := make(chan string, 2)
	go func() {
		line, _ := reader.ReadString('\n')
		lineCh <- line
	}()

	var nonce, hash [32]byte
	for i := range nonce {
		nonce[i] = byte(i)
		hash[i] = byte(255 - i)
	}

	require.NoError(t, c.Submit("job7", nonce, hash))
	line := <-lineCh
	assert.Contains(t, line, `"method":"mining.submit"`)
	assert.Contains(t, line, `"wallet123.rig1"`)
	assert.Contains(t, line, `"job7"`)

	msgIDBefore := c.msgID
	require.NoError(t, c.Submit("job7", nonce, hash))
	assert.Equal(t, msgIDBefore, c.msgID, "duplicate submit must not send a second message")
}

func TestReceiveBufferOverflowClears(t *testing.T) {
	c, server := newPipedClient()
	c.state = Connected

	garbage := make([]byte, recvBufSize-overflowGuard+10)
	for i := range garbage {
		garbage[i] = 'x'
	}
	go func() {
		_, _ = server.Write(garbage)
	}()

	require.NoError(t, c.Process())
	assert.Empty(t, c.recvBuf)
}

func TestProcessTimeoutIsNotAnError(t *testing.T) {
	c, server := newPipedClient()
	defer server.Close()
	c.state = Connected

	require.NoError(t, c.Process())
	assert.Equal(t, Connected, c.ConnState())
}

func TestHasJobFalseUntilNotified(t *testing.T) {
	c, _ := newPipedClient()
	assert.False(t, c.HasJob())
}

func TestConnectToUnreachableHostReturnsNetworkError(t *testing.T) {
	c := NewClient("127.0.0.1", 1, "w", "r")
	// port 0/1 on loopback should refuse immediately.
	err := c.Connect()
	if err == nil {
		t.Skip("environment accepted connection on an unusual port")
	}
	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
	assert.Equal(t, Disconnected, c.ConnState())
}
