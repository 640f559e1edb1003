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

package chain

import (
	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/config"
	"github.com/askchain/node/crypto"
	"github.com/askchain/node/log"
)

var validateLogger = log.NewModuleLogger(log.Validation)

// validateBlockHeader checks the block's header against its parent --
// linkage, monotonic id and utc, difficulty retarget, and proof of work --
// before any tx in the block is considered. nowUnix is the wall clock at
// receipt time; pass block.UTC itself for a locally mined block (it cannot
// be "from the future" relative to its own clock reading).
func validateBlockHeader(s *State, block, parent *types.Block, nowUnix int64) *ValidationError {
	if block.PreHash != parent.Hash {
		return newMalformed(ReasonMalformed, "block pre_hash does not match parent")
	}
	if block.ID != parent.ID+1 {
		return newMalformed(ReasonMalformed, "block id is not parent id + 1")
	}
	if block.UTC < parent.UTC {
		return newMalformed(ReasonMalformed, "block utc precedes parent utc")
	}
	if block.UTC > nowUnix+config.BlockMaxFutureSkewSeconds {
		return newStale("block utc too far in the future")
	}

	want := s.expectedZeroBits(parent)
	if block.ZeroBits != want {
		return newMalformed(ReasonMalformed, "zero_bits does not match expected difficulty")
	}

	wantHash := block.ComputeHash()
	if block.Hash != wantHash {
		return newMalformed(ReasonMalformed, "block hash does not match header")
	}
	digest, err := crypto.DecodeBase64(block.Hash)
	if err != nil || !crypto.PowOk(digest, block.ZeroBits) {
		return newMalformed(ReasonMalformed, "proof of work does not satisfy zero_bits")
	}

	sig, err := crypto.DecodeBase64(block.MinerSign)
	if err != nil {
		return newMalformed(ReasonInvalidSignature, "miner signature is not valid base64")
	}
	pub, err := crypto.DecodeBase64(block.MinerPubkey)
	if err != nil {
		return newMalformed(ReasonInvalidSignature, "miner pubkey is not valid base64")
	}
	if !crypto.Verify(pub, digest, sig) {
		return newMalformed(ReasonInvalidSignature, "miner signature does not verify")
	}
	return nil
}

// expectedZeroBits resolves the difficulty a block on top of parent must
// satisfy, walking back RetargetPeriod blocks on the active chain to find
// the window start when parent.ID+1 lands on a retarget boundary. Assumes
// s.mu is already held.
func (s *State) expectedZeroBits(parent *types.Block) uint32 {
	id := parent.ID + 1
	if id%config.RetargetPeriod != 0 {
		return parent.ZeroBits
	}
	windowStartID := id - config.RetargetPeriod
	windowStartHash, ok := s.activeChainByID[windowStartID]
	if !ok {
		return parent.ZeroBits
	}
	windowStart, ok := s.blocksByHash[windowStartHash]
	if !ok {
		return parent.ZeroBits
	}
	elapsed := parent.UTC - windowStart.UTC
	return config.NextZeroBits(parent.ZeroBits, elapsed)
}

// validateTxEnvelope checks the kind-independent half of a tx's rules: id
// integrity, signature, staleness window, and global uniqueness. Assumes
// s.mu is held by the caller.
func validateTxEnvelope(s *State, tx *types.Tx, blockUTC int64) *ValidationError {
	if tx.Data == nil {
		return newMalformed(ReasonMalformed, "tx has no payload")
	}
	wantID := crypto.EncodeBase64(crypto.HashBytes(tx.Preimage()))
	if tx.ID != wantID {
		return newMalformed(ReasonMalformed, "tx id does not match preimage hash")
	}
	if _, seen := s.seenTxIDs[tx.ID]; seen {
		return newConflict(ReasonDuplicateTxID, "tx id already applied on this chain")
	}
	skew := tx.UTC - blockUTC
	if skew < 0 {
		skew = -skew
	}
	if skew > config.TxMaxSkewSeconds {
		return newStale("tx utc too far from block utc")
	}
	pub, err := crypto.DecodeBase64(tx.Pubkey)
	if err != nil {
		return newMalformed(ReasonInvalidSignature, "tx pubkey is not valid base64")
	}
	sig, err := crypto.DecodeBase64(tx.Sign)
	if err != nil {
		return newMalformed(ReasonInvalidSignature, "tx signature is not valid base64")
	}
	if !crypto.Verify(pub, tx.Digest(), sig) {
		return newMalformed(ReasonInvalidSignature, "tx signature does not verify")
	}
	return nil
}
