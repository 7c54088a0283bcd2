// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stratum

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/adequatesystems/peach-miner/trailer"
)

func randomHexString(t *rapid.T, label string, n int) string {
	b := rapid.SliceOfN(rapid.Byte(), n, n).Draw(t, label)
	return hex.EncodeToString(b)
}

func notifyMessage(jobID, phashHex, bnumHex, diffDecimal, mrootHex string) string {
	return fmt.Sprintf(`{"method":"mining.notify","params":["%s","%s","%s","%s","0x0","%s",true]}`+"\n",
		jobID, phashHex, bnumHex, diffDecimal, mrootHex)
}

// TestPropertyNotifyRoundTrip covers SPEC_FULL.md §8's "∀ notify then
// get_job" property: the BTRAILER projected by GetJob carries the fields
// supplied in the notify, surviving the hex/number parsing round trip.
func TestPropertyNotifyRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c, server := newPipedClient()
		defer server.Close()
		c.state = Connected

		phashHex := randomHexString(rt, "phash", 32)
		mrootHex := randomHexString(rt, "mroot", 32)
		bnum := rapid.Uint64().Draw(rt, "bnum")
		diff := byte(rapid.IntRange(0, 255).Draw(rt, "diff"))
		jobID := rapid.StringMatching(`[a-f0-9]{1,16}`).Draw(rt, "jobID")

		var bnumBytes [8]byte
		binary.LittleEndian.PutUint64(bnumBytes[:], bnum)
		bnumHex := hex.EncodeToString(bnumBytes[:])

		line := notifyMessage(jobID, phashHex, bnumHex, fmt.Sprintf("%d", diff), mrootHex)
		c.handleNotify(line)

		require.True(rt, c.pending.Valid)

		var out trailer.Trailer
		gotID, err := c.GetJob(&out)
		require.NoError(rt, err)
		require.Equal(rt, jobID, gotID)
		require.Equal(rt, diff, out.Difficulty())
		require.Equal(rt, bnum, out.BlockNum())
		require.Equal(rt, phashHex, hex.EncodeToString(out.PrevHash().CloneBytes()))
		require.Equal(rt, mrootHex, hex.EncodeToString(out.MerkleRoot().CloneBytes()))
	})
}

// TestPropertyJobSeqAlwaysIncrements covers SPEC_FULL.md §8's "two
// consecutive notify for the same job id with identical params" property:
// job_seq still advances every time, since freshness is a counter, not a
// comparison of field values.
func TestPropertyJobSeqAlwaysIncrements(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c, server := newPipedClient()
		defer server.Close()
		c.state = Connected

		phashHex := randomHexString(rt, "phash", 32)
		mrootHex := randomHexString(rt, "mroot", 32)
		line := notifyMessage("same-job", phashHex, "0100000000000000", "8", mrootHex)

		count := rapid.IntRange(1, 8).Draw(rt, "count")
		var lastSeq uint64
		for i := 0; i < count; i++ {
			c.handleNotify(line)
			require.Greater(rt, c.pending.Seq, lastSeq)
			lastSeq = c.pending.Seq
		}
		require.Equal(rt, uint64(count), lastSeq)
	})
}

// TestPropertySubmitLineFormat covers SPEC_FULL.md §8's submit-formatting
// property: for any job id and 32-byte nonce/hash pair, Submit writes
// exactly one newline-terminated, valid-shaped line with 64-hex-character
// nonce and hash fields.
func TestPropertySubmitLineFormat(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c, server := newPipedClient()
		defer server.Close()
		c.state = Connected

		jobID := rapid.StringMatching(`[a-zA-Z0-9]{1,32}`).Draw(rt, "jobID")
		nonceBytes := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(rt, "nonce")
		hashBytes := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(rt, "hash")
		var nonce, hash [32]byte
		copy(nonce[:], nonceBytes)
		copy(hash[:], hashBytes)

		reader := bufio.NewReader(server)
		lineCh := make(chan string, 1)
		go func() {
			line, _ := reader.ReadString('\n')
			lineCh <- line
		}()

		require.NoError(rt, c.Submit(jobID, nonce, hash))
		line := <-lineCh

		require.True(rt, strings.HasSuffix(line, "\n"))
		require.Equal(rt, 1, strings.Count(line, "\n"))

		fields := splitParamsArray(line[strings.Index(line, `"params"`):])
		require.Len(rt, fields, 4)
		require.Len(rt, fields[2], 64)
		require.Len(rt, fields[3], 64)
		require.Equal(rt, hex.EncodeToString(nonce[:]), fields[2])
		require.Equal(rt, hex.EncodeToString(hash[:]), fields[3])
	})
}
