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

// Header is the header-only form of a Block the brief sync phase carries:
// every field HeaderPreimage commits to except the full transaction
// bodies, which travel later in a detail response. TxIDs holds exactly the
// ids Block.TxList would produce, so Hash and the PoW check can be
// verified before any body is fetched.
type Header struct {
	ID          uint64   `json:"id"`
	Hash        string   `json:"hash"`
	PreHash     string   `json:"pre_hash"`
	UTC         int64    `json:"utc"`
	Version     uint32   `json:"version"`
	ZeroBits    uint32   `json:"zero_bits"`
	MinerPubkey string   `json:"miner_pubkey"`
	Nonce       uint64   `json:"nonce"`
	MinerSign   string   `json:"miner_sign"`
	TxIDs       []string `json:"tx_ids"`
}

func (h *Header) preimage() []byte {
	e := newEncoder()
	e.uint64(h.ID)
	e.string(h.PreHash)
	e.int64(h.UTC)
	e.uint32(h.Version)
	e.uint32(h.ZeroBits)
	e.string(h.MinerPubkey)
	e.uint64(h.Nonce)
	e.uint32(uint32(len(h.TxIDs)))
	for _, id := range h.TxIDs {
		e.string(id)
	}
	return e.bytes()
}

// ComputeHash mirrors Block.ComputeHash exactly, given the same field
// values, so a header fetched without its body still hashes identically to
// the eventual full block.
func (h *Header) ComputeHash() string {
	return crypto.EncodeBase64(crypto.HashBytes(h.preimage()))
}

// ToHeader extracts the header-only view of a full block, used when
// answering a CHAIN_BRIEF_REQ.
func (b *Block) ToHeader() *Header {
	ids := make([]string, len(b.TxList))
	for i, tx := range b.TxList {
		ids[i] = tx.ID
	}
	return &Header{
		ID: b.ID, Hash: b.Hash, PreHash: b.PreHash, UTC: b.UTC, Version: b.Version,
		ZeroBits: b.ZeroBits, MinerPubkey: b.MinerPubkey, Nonce: b.Nonce, MinerSign: b.MinerSign,
		TxIDs: ids,
	}
}

// MatchesBody reports whether a fetched full block is the body for this
// header: same hash, and its tx ids are the same in the same order.
func (h *Header) MatchesBody(b *Block) bool {
	if h.Hash != b.Hash {
		return false
	}
	if len(h.TxIDs) != len(b.TxList) {
		return false
	}
	for i, id := range h.TxIDs {
		if b.TxList[i].ID != id {
			return false
		}
	}
	return true
}
