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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/crypto"
)

const testZeroBits = 1 // cheap enough to brute-force in a unit test

func TestCpuAgentSealsValidBlock(t *testing.T) {
	_, priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	recv := make(chan *Result, 1)
	a := NewCpuAgent()
	a.SetReturnCh(recv)
	a.Start()
	defer a.Stop()

	b := &types.Block{ID: 1, PreHash: "genesis", UTC: 1000, Version: 1, ZeroBits: testZeroBits}
	a.Work() <- &Task{Block: b, MinerKey: priv}

	select {
	case res := <-recv:
		require.NotNil(t, res)
		digest, err := crypto.DecodeBase64(res.Block.Hash)
		require.NoError(t, err)
		require.True(t, crypto.PowOk(digest, testZeroBits))
		require.NotEmpty(t, res.Block.MinerSign)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sealed block")
	}
}

func TestCpuAgentPreemptionAbandonsStaleWork(t *testing.T) {
	_, priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	recv := make(chan *Result, 2)
	a := NewCpuAgent()
	a.SetReturnCh(recv)
	a.Start()
	defer a.Stop()

	// An impossible target keeps the first task spinning forever.
	stale := &types.Block{ID: 1, PreHash: "genesis", UTC: 1000, Version: 1, ZeroBits: 64}
	a.Work() <- &Task{Block: stale, MinerKey: priv}

	fresh := &types.Block{ID: 1, PreHash: "genesis", UTC: 1000, Version: 1, ZeroBits: testZeroBits}
	a.Work() <- &Task{Block: fresh, MinerKey: priv}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case res := <-recv:
			if res == nil {
				continue // the preempted stale attempt reporting its abandonment
			}
			require.Equal(t, fresh, res.Task.Block)
			return
		case <-deadline:
			t.Fatal("timed out waiting for sealed block")
		}
	}
}
