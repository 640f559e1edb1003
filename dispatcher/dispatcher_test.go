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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/chain"
	"github.com/askchain/node/config"
	"github.com/askchain/node/crypto"
	"github.com/askchain/node/storage/database"
	"github.com/askchain/node/work"
)

const testZeroBits = 1

// noopNetwork satisfies PeerNetwork and Broadcaster with no-ops; these
// tests drive the dispatcher through its client and peer queues directly
// and never need a real transport.
type noopNetwork struct{}

func (noopNetwork) SendChainBriefRequest(peer chain.PeerID, fromHash string) error  { return nil }
func (noopNetwork) SendChainDetailRequest(peer chain.PeerID, hashes []string) error { return nil }
func (noopNetwork) PunishPeer(peer chain.PeerID, reason string)                    {}
func (noopNetwork) SendChainBriefResponse(peer chain.PeerID, headers []*types.Header, done bool) error {
	return nil
}
func (noopNetwork) SendChainDetailResponse(peer chain.PeerID, bodies []*types.Block) error { return nil }
func (noopNetwork) SendPong(peer chain.PeerID) error                                       { return nil }
func (noopNetwork) BroadcastBlock(b *types.Block)                                          {}
func (noopNetwork) BroadcastTx(tx *types.Tx)                                                {}

type captureExchange struct {
	deposits chan string
}

func (c *captureExchange) NotifyDeposit(toPubkey string, amount uint64, txID string) {
	c.deposits <- toPubkey
}

type testNode struct {
	d     *Dispatcher
	state *chain.State
}

func newTestNode(t *testing.T) (*testNode, ed25519TestKey) {
	minerPub, minerPriv, err := crypto.GenerateKey()
	require.NoError(t, err)

	genesisUTC := time.Now().Unix() - 100
	genesis := &types.Block{ID: 0, PreHash: "", UTC: genesisUTC, Version: 1, ZeroBits: testZeroBits, MinerPubkey: crypto.EncodeBase64(minerPub)}
	genesis.Hash = genesis.ComputeHash()

	store := database.NewManager(database.NewMemDatabase())
	state, err := chain.NewState(store, genesis)
	require.NoError(t, err)
	state.SeedGenesisAccount(&types.Account{ID: 0, Name: "genesis_owner", Pubkey: crypto.EncodeBase64(minerPub), Balance: 1000})

	sy := chain.NewSync(state, noopNetwork{})
	disp := New(state, sy, noopNetwork{}, noopNetwork{}, &captureExchange{deposits: make(chan string, 4)}, 16, time.Hour)
	miner := work.NewMiner(state, minerPriv, config.ProtocolVersionMajor, disp.TxSource(), disp)
	disp.SetMiner(miner)

	go disp.Run()

	return &testNode{d: disp, state: state}, ed25519TestKey{pub: minerPub, priv: minerPriv}
}

type ed25519TestKey struct {
	pub  []byte
	priv []byte
}

func TestDispatcherAppliesRegisterSubmittedByClient(t *testing.T) {
	node, owner := newTestNode(t)
	node.d.EnqueueCommand(Command{Kind: CmdEnableMine})

	newPub, _, err := crypto.GenerateKey()
	require.NoError(t, err)
	ownerPubB64 := crypto.EncodeBase64(owner.pub)
	tx := &types.Tx{UTC: time.Now().Unix(), Pubkey: ownerPubB64, Data: &types.RegisterData{Name: "alice", Pubkey: crypto.EncodeBase64(newPub), ReferrerPubkey: ownerPubB64}}
	tx.Finalize()
	tx.Sign = crypto.EncodeBase64(crypto.Sign(owner.priv, tx.Digest()))

	replyCh := make(chan ClientResult, 1)
	node.d.EnqueueClientMessage(ClientMessage{Kind: ClientRegister, Tx: tx, ReplyCh: replyCh})

	select {
	case res := <-replyCh:
		require.Equal(t, chain.ReasonOK, res.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for admission reply")
	}

	deadline := time.After(10 * time.Second)
	for {
		if acct, ok := node.state.AccountByPubkey(crypto.EncodeBase64(newPub)); ok {
			require.Equal(t, "alice", acct.Name)
			node.d.EnqueueCommand(Command{Kind: CmdStop})
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the registration to be mined")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
