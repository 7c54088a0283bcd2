// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stratum

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/adequatesystems/peach-miner/trailer"
)

// jobIDLen bounds the pool-supplied job identifier length, matching the
// reference STRATUM_JOB_ID_LEN.
const jobIDLen = 63

// Job is one pool work assignment, carrying the fields of a notify
// message in decoded form. The zero value has Valid == false.
type Job struct {
	ID         string
	PrevHash   chainhash.Hash
	BlockNum   uint64
	Difficulty byte
	Time0      uint32
	MerkleRoot chainhash.Hash
	Valid      bool
	Seq        uint64
}

// Trailer projects the job into a BTRAILER: previous hash, merkle root,
// block number, difficulty byte, and time0. TCount is set to 1 when the
// job is valid and left zero otherwise; the nonce/other regions are left
// zero.
func (j *Job) Trailer() *trailer.Trailer {
	var t trailer.Trailer
	t.SetPrevHash(j.PrevHash)
	t.SetMerkleRoot(j.MerkleRoot)
	t.SetBlockNum(j.BlockNum)
	t.SetDifficulty(j.Difficulty)
	t.SetTime0(j.Time0)
	if j.Valid {
		t.SetTCount(1)
	}
	return &t
}
