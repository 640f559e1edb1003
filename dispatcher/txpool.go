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

package dispatcher

import (
	"sync"

	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/common"
	"github.com/askchain/node/crypto"
)

// rejectedCacheSize bounds how many known-bad tx ids the pool remembers, so
// a peer repeatedly re-broadcasting the same malformed or badly-signed tx
// costs one signature verification instead of one per rebroadcast.
const rejectedCacheSize = 4096

// txPool is the candidate set the miner packs into blocks. It only checks
// signature validity and id uniqueness on admission; everything
// context-dependent (balance, duplicate-on-active-chain, staleness against
// a block's own utc) is left to chain.State.Apply, which is the sole
// authority and runs on every candidate regardless of pool membership.
// Order of insertion is preserved so packing is FIFO.
type txPool struct {
	mu       sync.Mutex
	byID     map[string]*types.Tx
	order    []string
	rejected *common.Cache // tx id -> struct{}, known-bad signatures/encodings
}

func newTxPool() *txPool {
	return &txPool{
		byID:     make(map[string]*types.Tx),
		rejected: common.NewCache(rejectedCacheSize),
	}
}

// Add admits tx if its signature verifies and it isn't already pooled.
// Returns false (and does not add) otherwise. A tx id that has already
// failed verification once is rejected again without re-running Verify,
// so a peer rebroadcasting the same bad tx only costs one signature check.
func (p *txPool) Add(tx *types.Tx) bool {
	if tx == nil || tx.Data == nil {
		return false
	}
	if p.rejected.Contains(tx.ID) {
		return false
	}
	pub, err := crypto.DecodeBase64(tx.Pubkey)
	if err != nil {
		p.rejected.Add(tx.ID, struct{}{})
		return false
	}
	sig, err := crypto.DecodeBase64(tx.Sign)
	if err != nil {
		p.rejected.Add(tx.ID, struct{}{})
		return false
	}
	if !crypto.Verify(pub, tx.Digest(), sig) {
		p.rejected.Add(tx.ID, struct{}{})
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.byID[tx.ID]; dup {
		return false
	}
	p.byID[tx.ID] = tx
	p.order = append(p.order, tx.ID)
	return true
}

// Pending returns up to max pooled txs, oldest first, implementing
// work.TxSource.
func (p *txPool) Pending(max int) []*types.Tx {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.order)
	if n > max {
		n = max
	}
	out := make([]*types.Tx, 0, n)
	for _, id := range p.order[:n] {
		out = append(out, p.byID[id])
	}
	return out
}

// Remove drops ids that have just been confirmed in an applied block.
func (p *txPool) Remove(ids []string) {
	if len(ids) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		delete(p.byID, id)
	}
	kept := p.order[:0]
	for _, id := range p.order {
		if _, still := p.byID[id]; still {
			kept = append(kept, id)
		}
	}
	p.order = kept
}
