// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package trailer implements the fixed 160-byte block-trailer record used
// as the unit of work between the Stratum client and the Peach device
// drivers.
package trailer

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Size is the byte length of a BTRAILER record on the wire.
const Size = 160

// HeaderPrefixSize is the length of the leading "header prefix" region
// (previous hash, merkle root, block number, difficulty, time0, tcount,
// reserved) copied verbatim into a device's host-trailer slot at the
// build-entry barrier.
const HeaderPrefixSize = 92

// AttemptSize is HeaderPrefixSize plus the 16-byte nonce seed half; it is
// the number of bytes written to the device trailer buffer for one solve
// attempt.
const AttemptSize = HeaderPrefixSize + 16

// Field byte offsets within a Trailer, per the wire layout.
const (
	offPrevHash   = 0
	offMerkleRoot = 32
	offBlockNum   = 64
	offDifficulty = 72
	offTime0      = 80
	offTCount     = 84
	offReserved   = 88
	offNonce      = 92
	offOther      = 124

	nonceSeedLen  = 16
	nonceFoundLen = 16
)

// Trailer is a fixed-layout, little-endian BTRAILER record. The zero value
// is a valid, all-zero trailer.
type Trailer [Size]byte

// PrevHash returns the previous-block-hash field.
func (t *Trailer) PrevHash() chainhash.Hash {
	var h chainhash.Hash
	copy(h[:], t[offPrevHash:offPrevHash+chainhash.HashSize])
	return h
}

// SetPrevHash sets the previous-block-hash field.
func (t *Trailer) SetPrevHash(h chainhash.Hash) {
	copy(t[offPrevHash:offPrevHash+chainhash.HashSize], h[:])
}

// MerkleRoot returns the merkle-root field.
func (t *Trailer) MerkleRoot() chainhash.Hash {
	var h chainhash.Hash
	copy(h[:], t[offMerkleRoot:offMerkleRoot+chainhash.HashSize])
	return h
}

// SetMerkleRoot sets the merkle-root field.
func (t *Trailer) SetMerkleRoot(h chainhash.Hash) {
	copy(t[offMerkleRoot:offMerkleRoot+chainhash.HashSize], h[:])
}

// BlockNum returns the 8-byte little-endian block number.
func (t *Trailer) BlockNum() uint64 {
	return binary.LittleEndian.Uint64(t[offBlockNum : offBlockNum+8])
}

// SetBlockNum sets the block number.
func (t *Trailer) SetBlockNum(v uint64) {
	binary.LittleEndian.PutUint64(t[offBlockNum:offBlockNum+8], v)
}

// Difficulty returns the effective difficulty: only byte 0 of the 8-byte
// field is meaningful. Bytes 1-7 are preserved by DifficultyBytes/
// SetDifficultyBytes but never examined here. See SPEC_FULL.md §9(a).
func (t *Trailer) Difficulty() byte {
	return t[offDifficulty]
}

// SetDifficulty sets byte 0 of the difficulty field, leaving the remaining
// seven bytes untouched.
func (t *Trailer) SetDifficulty(d byte) {
	t[offDifficulty] = d
}

// DifficultyBytes returns all 8 bytes of the difficulty field, including
// the high bytes this package never interprets.
func (t *Trailer) DifficultyBytes() [8]byte {
	var b [8]byte
	copy(b[:], t[offDifficulty:offDifficulty+8])
	return b
}

// SetDifficultyBytes sets all 8 bytes of the difficulty field verbatim.
func (t *Trailer) SetDifficultyBytes(b [8]byte) {
	copy(t[offDifficulty:offDifficulty+8], b[:])
}

// Time0 returns the 4-byte little-endian block time.
func (t *Trailer) Time0() uint32 {
	return binary.LittleEndian.Uint32(t[offTime0 : offTime0+4])
}

// SetTime0 sets the block time.
func (t *Trailer) SetTime0(v uint32) {
	binary.LittleEndian.PutUint32(t[offTime0:offTime0+4], v)
}

// TCount returns the transaction count.
func (t *Trailer) TCount() uint32 {
	return binary.LittleEndian.Uint32(t[offTCount : offTCount+4])
}

// SetTCount sets the transaction count.
func (t *Trailer) SetTCount(v uint32) {
	binary.LittleEndian.PutUint32(t[offTCount:offTCount+4], v)
}

// SeedHalf returns the host-supplied 16-byte half of the nonce field.
func (t *Trailer) SeedHalf() [nonceSeedLen]byte {
	var s [nonceSeedLen]byte
	copy(s[:], t[offNonce:offNonce+nonceSeedLen])
	return s
}

// SetSeedHalf sets the host-supplied half of the nonce field.
func (t *Trailer) SetSeedHalf(s [nonceSeedLen]byte) {
	copy(t[offNonce:offNonce+nonceSeedLen], s[:])
}

// FoundHalf returns the device-supplied 16-byte half of the nonce field.
func (t *Trailer) FoundHalf() [nonceFoundLen]byte {
	var f [nonceFoundLen]byte
	copy(f[:], t[offNonce+nonceSeedLen:offNonce+nonceSeedLen+nonceFoundLen])
	return f
}

// SetFoundHalf sets the device-supplied half of the nonce field.
func (t *Trailer) SetFoundHalf(f [nonceFoundLen]byte) {
	copy(t[offNonce+nonceSeedLen:offNonce+nonceSeedLen+nonceFoundLen], f[:])
}

// Nonce returns the full 32-byte nonce field (seed half + found half).
func (t *Trailer) Nonce() [32]byte {
	var n [32]byte
	copy(n[:], t[offNonce:offNonce+32])
	return n
}

// SetNonce sets the full 32-byte nonce field.
func (t *Trailer) SetNonce(n [32]byte) {
	copy(t[offNonce:offNonce+32], n[:])
}

// HeaderPrefix returns the first 92 bytes of the trailer: the region
// copied verbatim at a build-entry barrier and at the start of every solve
// attempt.
func (t *Trailer) HeaderPrefix() [HeaderPrefixSize]byte {
	var p [HeaderPrefixSize]byte
	copy(p[:], t[:HeaderPrefixSize])
	return p
}

// SetHeaderPrefix overwrites the first 92 bytes of the trailer, leaving
// the nonce and trailing "other" region untouched.
func (t *Trailer) SetHeaderPrefix(p [HeaderPrefixSize]byte) {
	copy(t[:HeaderPrefixSize], p[:])
}

// Other returns the trailing pass-through region (bytes 124-159).
func (t *Trailer) Other() [Size - offOther]byte {
	var o [Size - offOther]byte
	copy(o[:], t[offOther:])
	return o
}

// SetOther sets the trailing pass-through region.
func (t *Trailer) SetOther(o [Size - offOther]byte) {
	copy(t[offOther:], o[:])
}

// Bytes returns the raw 160-byte record.
func (t *Trailer) Bytes() []byte {
	return t[:]
}

// Decode populates t from a 160-byte slice.
func Decode(b []byte) (*Trailer, error) {
	if len(b) != Size {
		return nil, fmt.Errorf("trailer: want %d bytes, got %d", Size, len(b))
	}
	var t Trailer
	copy(t[:], b)
	return &t, nil
}

// String renders the trailer as a hex string, matching the hex-oriented
// wire representations used throughout the Stratum protocol.
func (t *Trailer) String() string {
	return hex.EncodeToString(t[:])
}

// EffectiveDifficulty computes the difficulty used for a solve attempt
// given a pool-imposed floor. When floor is non-zero and strictly less
// than the trailer's own difficulty byte, the floor wins; otherwise the
// trailer's own difficulty byte is used. This mirrors
// `diff && diff < bt->difficulty[0] ? diff : bt->difficulty[0]` from the
// reference implementation exactly.
func EffectiveDifficulty(t *Trailer, floor byte) byte {
	d := t.Difficulty()
	if floor != 0 && floor < d {
		return floor
	}
	return d
}
