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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/chain"
	"github.com/askchain/node/crypto"
	"github.com/askchain/node/storage/database"
)

type emptyTxSource struct{}

func (emptyTxSource) Pending(max int) []*types.Tx { return nil }

type captureSubmitter struct {
	mu      sync.Mutex
	applied chan *types.Block
}

func newCaptureSubmitter() *captureSubmitter {
	return &captureSubmitter{applied: make(chan *types.Block, 4)}
}

func (c *captureSubmitter) SubmitMinedBlock(b *types.Block) {
	c.applied <- b
}

func newTestStateForMining(t *testing.T) *chain.State {
	pub, _, err := crypto.GenerateKey()
	require.NoError(t, err)
	genesis := &types.Block{ID: 0, PreHash: "", UTC: 1000, Version: 1, ZeroBits: testZeroBits, MinerPubkey: crypto.EncodeBase64(pub)}
	genesis.Hash = genesis.ComputeHash()
	store := database.NewManager(database.NewMemDatabase())
	s, err := chain.NewState(store, genesis)
	require.NoError(t, err)
	return s
}

func TestMinerSealsAndSubmitsOneBlock(t *testing.T) {
	s := newTestStateForMining(t)
	_, priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	submitter := newCaptureSubmitter()
	m := NewMiner(s, priv, 1, emptyTxSource{}, submitter)
	m.Start()
	defer m.Stop()

	select {
	case b := <-submitter.applied:
		require.Equal(t, uint64(1), b.ID)
		require.Equal(t, s.Tip().Hash, b.PreHash)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for mined block")
	}
}

func TestMinerStopPreventsFurtherSubmissions(t *testing.T) {
	s := newTestStateForMining(t)
	_, priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	submitter := newCaptureSubmitter()
	m := NewMiner(s, priv, 1, emptyTxSource{}, submitter)
	require.False(t, m.Mining())
	m.Start()
	require.True(t, m.Mining())
	m.Stop()
	require.False(t, m.Mining())

	// Stop is idempotent and a second Start/Stop pair should not panic.
	m.Start()
	m.Stop()
}
