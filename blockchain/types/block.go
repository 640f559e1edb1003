// Copyright 2018 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

package types

import "github.com/askchain/node/crypto"

// Block is one entry of the chain. IDs are 1-based; genesis is id 0.
// CumulativePow is carried on the struct (rather than recomputed from the
// whole ancestry on every comparison) since it is needed on every
// chain-selection decision.
type Block struct {
	ID            uint64 `json:"id"`
	Hash          string `json:"hash"`     // base64
	PreHash       string `json:"pre_hash"` // base64
	UTC           int64  `json:"utc"`
	Version       uint32 `json:"version"`
	ZeroBits      uint32 `json:"zero_bits"`
	MinerPubkey   string `json:"miner_pubkey"`
	Nonce         uint64 `json:"nonce"`
	MinerSign     string `json:"miner_sign"`
	TxList        []*Tx  `json:"tx_list"`
	CumulativePow uint64 `json:"cumulative_pow"`
}

// HeaderPreimage returns the deterministic bytes hashed to produce Hash.
// The tx list is part of the preimage (via each tx's own id, already a
// commitment to its contents) so a block's hash commits to its full body.
func (b *Block) HeaderPreimage() []byte {
	e := newEncoder()
	e.uint64(b.ID)
	e.string(b.PreHash)
	e.int64(b.UTC)
	e.uint32(b.Version)
	e.uint32(b.ZeroBits)
	e.string(b.MinerPubkey)
	e.uint64(b.Nonce)
	e.uint32(uint32(len(b.TxList)))
	for _, tx := range b.TxList {
		e.string(tx.ID)
	}
	return e.bytes()
}

// ComputeHash derives Hash from the current header fields.
func (b *Block) ComputeHash() string {
	digest := crypto.HashBytes(b.HeaderPreimage())
	return crypto.EncodeBase64(digest)
}

// Emission is the fixed per-block miner reward: a flat schedule, not
// Bitcoin-style halving.
const Emission uint64 = 50

// PowPerBlock returns 2^zeroBits, the unit of cumulative proof-of-work one
// block contributes.
func PowPerBlock(zeroBits uint32) uint64 {
	if zeroBits == 0 || zeroBits > 63 {
		return 0
	}
	return 1 << zeroBits
}
