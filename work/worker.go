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

// Package work is the mining loop: candidate-block assembly plus the
// CpuAgent nonce search. There is no EVM here, so a Task is just a
// zero-bits target and a tx list -- no gas pool, tx-by-price ordering, or
// uncles to account for.
package work

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ed25519"

	metrics "github.com/rcrowley/go-metrics"

	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/chain"
	"github.com/askchain/node/crypto"
	"github.com/askchain/node/log"
)

var logger = log.NewModuleLogger(log.Miner)

var metricBlocksSealed = metrics.NewRegisteredCounter("miner/blocks/sealed", nil)

const resultQueueSize = 4

// MaxTxPerBlock bounds how many pending txs one candidate block packs; an
// unbounded pull from the pool would let a single block's validation cost
// grow without limit.
const MaxTxPerBlock = 500

// TxSource supplies the pending transactions to pack into the next
// candidate block; the dispatcher's tx pool implements this.
type TxSource interface {
	Pending(max int) []*types.Tx
}

// Submitter receives a freshly sealed block. The dispatcher implements this
// so the block is applied on the single writer goroutine rather than by the
// miner directly.
type Submitter interface {
	SubmitMinedBlock(b *types.Block)
}

// Miner assembles candidate blocks from chain.State's current tip and hands
// them to a CpuAgent to seal, resubmitting a fresh candidate every time the
// tip advances or a block is found. Version is the protocol version this
// node stamps onto blocks it mines.
type Miner struct {
	mu sync.Mutex

	state    *chain.State
	minerKey ed25519.PrivateKey
	minerPub string
	version  uint32

	txSource TxSource
	submit   Submitter

	agent *CpuAgent
	recv  chan *Result

	mining int32
	quit   chan struct{}
}

func NewMiner(state *chain.State, minerKey ed25519.PrivateKey, version uint32, txSource TxSource, submit Submitter) *Miner {
	return &Miner{
		state:    state,
		minerKey: minerKey,
		minerPub: crypto.EncodeBase64(minerKey.Public().(ed25519.PublicKey)),
		version:  version,
		txSource: txSource,
		submit:   submit,
		agent:    NewCpuAgent(),
		recv:     make(chan *Result, resultQueueSize),
	}
}

// Start begins continuous mining: build a candidate on the current tip,
// seal it, submit it, repeat.
func (m *Miner) Start() {
	if !atomic.CompareAndSwapInt32(&m.mining, 0, 1) {
		return
	}
	m.agent.SetReturnCh(m.recv)
	m.agent.Start()
	m.quit = make(chan struct{})
	go m.wait()
	m.NewWork()
}

// Stop halts the agent. A Task already mid-search returns nil on its next
// nonce-check and is discarded.
func (m *Miner) Stop() {
	if !atomic.CompareAndSwapInt32(&m.mining, 1, 0) {
		return
	}
	m.agent.Stop()
	close(m.quit)
}

func (m *Miner) Mining() bool { return atomic.LoadInt32(&m.mining) == 1 }

// NewWork assembles a fresh candidate from the current chain tip and pushes
// it to the agent, preempting whatever nonce search is in flight. Call this
// whenever the tip changes out from under the miner (a new block arrived
// via sync) so the agent is never searching a stale parent.
func (m *Miner) NewWork() {
	if !m.Mining() {
		return
	}
	snap := m.state.Snapshot()
	txs := m.txSource.Pending(MaxTxPerBlock)

	candidate := &types.Block{
		ID:          snap.Tip.ID + 1,
		PreHash:     snap.Tip.Hash,
		UTC:         time.Now().Unix(),
		Version:     m.version,
		ZeroBits:    snap.ZeroBits,
		MinerPubkey: m.minerPub,
		TxList:      txs,
	}
	if candidate.UTC < snap.Tip.UTC {
		candidate.UTC = snap.Tip.UTC
	}

	logger.Debug("starting new mining attempt", "id", candidate.ID, "zero_bits", candidate.ZeroBits, "txs", len(txs))
	m.agent.Work() <- &Task{Block: candidate, MinerKey: m.minerKey}
}

func (m *Miner) wait() {
	for {
		select {
		case result := <-m.recv:
			if result == nil {
				continue // preempted or stopped mid-search
			}
			logger.Info("sealed new block", "id", result.Block.ID, "hash", result.Block.Hash)
			metricBlocksSealed.Inc(1)
			m.submit.SubmitMinedBlock(result.Block)
			m.NewWork()
		case <-m.quit:
			return
		}
	}
}
