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

package work

import (
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/ed25519"

	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/crypto"
)

// Task is one attempt's candidate block, unsealed (no Nonce/Hash/MinerSign
// yet) plus the data the agent needs to seal it.
type Task struct {
	Block    *types.Block
	MinerKey ed25519.PrivateKey
}

// Result is a sealed candidate ready for Submitter.SubmitMinedBlock, or nil
// if the attempt was aborted before finding a valid nonce.
type Result struct {
	Task  *Task
	Block *types.Block
}

// CpuAgent brute-forces a nonce for the current Task until it satisfies the
// task's zero_bits or a new Task preempts it. There is only one sealing
// algorithm here, so mine() calls crypto.PowOk directly rather than going
// through a pluggable consensus engine.
type CpuAgent struct {
	mu sync.Mutex

	workCh        chan *Task
	stop          chan struct{}
	quitCurrentOp chan struct{}
	returnCh      chan<- *Result

	isMining int32
}

func NewCpuAgent() *CpuAgent {
	return &CpuAgent{
		stop:   make(chan struct{}, 1),
		workCh: make(chan *Task, 1),
	}
}

func (a *CpuAgent) Work() chan<- *Task            { return a.workCh }
func (a *CpuAgent) SetReturnCh(ch chan<- *Result) { a.returnCh = ch }

func (a *CpuAgent) Start() {
	if !atomic.CompareAndSwapInt32(&a.isMining, 0, 1) {
		return
	}
	go a.update()
}

func (a *CpuAgent) Stop() {
	if !atomic.CompareAndSwapInt32(&a.isMining, 1, 0) {
		return
	}
	a.stop <- struct{}{}
done:
	for {
		select {
		case <-a.workCh:
		default:
			break done
		}
	}
}

func (a *CpuAgent) update() {
	for {
		select {
		case work := <-a.workCh:
			a.mu.Lock()
			if a.quitCurrentOp != nil {
				close(a.quitCurrentOp)
			}
			a.quitCurrentOp = make(chan struct{})
			go a.mine(work, a.quitCurrentOp)
			a.mu.Unlock()
		case <-a.stop:
			a.mu.Lock()
			if a.quitCurrentOp != nil {
				close(a.quitCurrentOp)
				a.quitCurrentOp = nil
			}
			a.mu.Unlock()
			return
		}
	}
}

// mine brute-forces Nonce starting at 0 until crypto.PowOk accepts the
// resulting hash, then signs the block as miner. Checks stop between
// attempts so a preempting Task or Stop() interrupts promptly.
func (a *CpuAgent) mine(work *Task, stop <-chan struct{}) {
	b := work.Block
	for nonce := uint64(0); ; nonce++ {
		select {
		case <-stop:
			a.returnCh <- nil
			return
		default:
		}
		b.Nonce = nonce
		digest := crypto.HashBytes(b.HeaderPreimage())
		if crypto.PowOk(digest, b.ZeroBits) {
			b.Hash = crypto.EncodeBase64(digest)
			b.MinerSign = crypto.EncodeBase64(crypto.Sign(work.MinerKey, digest))
			a.returnCh <- &Result{Task: work, Block: b}
			return
		}
	}
}
