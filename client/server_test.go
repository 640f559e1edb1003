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

package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/chain"
	"github.com/askchain/node/config"
	"github.com/askchain/node/crypto"
	"github.com/askchain/node/dispatcher"
	"github.com/askchain/node/storage/database"
	"github.com/askchain/node/work"
)

const testZeroBits = 1

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

type noopExchange struct{}

func (noopExchange) NotifyDeposit(toPubkey string, amount uint64, txID string) {}

// newTestServer wires a full Dispatcher backed by an in-memory chain.State
// and returns a Server attached to it, mirroring how cmd/askchaind wires the
// client protocol on top of the same Dispatcher the peer transport drives.
func newTestServer(t *testing.T) (*Server, chain.PeerID, *chain.State, ed25519Key) {
	ownerPub, ownerPriv, err := crypto.GenerateKey()
	require.NoError(t, err)

	genesis := &types.Block{ID: 0, PreHash: "", UTC: time.Now().Unix() - 100, Version: 1, ZeroBits: testZeroBits, MinerPubkey: crypto.EncodeBase64(ownerPub)}
	genesis.Hash = genesis.ComputeHash()

	store := database.NewManager(database.NewMemDatabase())
	state, err := chain.NewState(store, genesis)
	require.NoError(t, err)
	state.SeedGenesisAccount(&types.Account{ID: 0, Name: "genesis_owner", Pubkey: crypto.EncodeBase64(ownerPub), Balance: 1000})

	sy := chain.NewSync(state, noopNetwork{})
	disp := dispatcher.New(state, sy, noopNetwork{}, noopNetwork{}, noopExchange{}, 16, time.Hour)
	miner := work.NewMiner(state, ownerPriv, config.ProtocolVersionMajor, disp.TxSource(), disp)
	disp.SetMiner(miner)
	go disp.Run()

	return NewServer(disp), "local", state, ed25519Key{pub: ownerPub, priv: ownerPriv}
}

type ed25519Key struct {
	pub  []byte
	priv []byte
}

func TestServerQueryBalanceUnknownAccount(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	resp := s.queryBalance("not-a-real-pubkey")
	require.Equal(t, "error", resp.Status)
	require.Equal(t, chain.ReasonUnknownAccount.String(), resp.Reason)
}

func TestServerQueryBalanceKnownAccount(t *testing.T) {
	s, _, _, owner := newTestServer(t)
	resp := s.queryBalance(crypto.EncodeBase64(owner.pub))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, "genesis_owner", resp.Account.Name)
}

func TestServerSubmitTxRejectsMalformed(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	resp := s.submitTx(nil)
	require.Equal(t, "error", resp.Status)
	require.Equal(t, chain.ReasonMalformed.String(), resp.Reason)
}

func TestServerSubscribeDeliversAccountUpdate(t *testing.T) {
	s, _, _, owner := newTestServer(t)
	s.disp.EnqueueCommand(dispatcher.Command{Kind: dispatcher.CmdEnableMine})

	newPub, _, err := crypto.GenerateKey()
	require.NoError(t, err)

	ownerPubB64 := crypto.EncodeBase64(owner.pub)
	updates := make(chan interface{}, 4)

	id, resp := s.subscribe(ownerPubB64, func(v interface{}) { updates <- v })
	require.Equal(t, "ok", resp.Status)
	require.NotEqual(t, "", id.String())

	tx := &types.Tx{
		UTC:    time.Now().Unix(),
		Pubkey: ownerPubB64,
		Data:   &types.RegisterData{Name: "alice", Pubkey: crypto.EncodeBase64(newPub), ReferrerPubkey: ownerPubB64},
	}
	tx.Finalize()
	tx.Sign = crypto.EncodeBase64(crypto.Sign(owner.priv, tx.Digest()))
	require.Equal(t, "ok", s.submitTx(tx).Status)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case v := <-updates:
			push, ok := v.(Push)
			require.True(t, ok)
			require.Equal(t, accountUpdatePush, push.Kind)
			require.Equal(t, ownerPubB64, push.Account.Pubkey)
			s.removeSubscription(id)
			return
		case <-deadline:
			t.Fatal("timed out waiting for account_update push")
		}
	}
}
