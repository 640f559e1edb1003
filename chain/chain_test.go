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
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ed25519"

	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/config"
	"github.com/askchain/node/crypto"
	"github.com/askchain/node/storage/database"
)

const testZeroBits = 1 // cheap enough to brute-force in a unit test

type testKey struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newTestKey(t *testing.T) testKey {
	pub, priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return testKey{pub: pub, priv: priv}
}

func (k testKey) pubkeyB64() string { return crypto.EncodeBase64(k.pub) }

func newTestState(t *testing.T) (*State, testKey, *types.Block) {
	genesisMiner := newTestKey(t)
	genesis := &types.Block{ID: 0, PreHash: "", UTC: 1000, Version: 1, ZeroBits: testZeroBits, MinerPubkey: genesisMiner.pubkeyB64()}
	genesis.Hash = genesis.ComputeHash()

	store := database.NewManager(database.NewMemDatabase())
	s, err := NewState(store, genesis)
	require.NoError(t, err)

	owner := &types.Account{ID: 0, Name: "genesis_owner", Pubkey: genesisMiner.pubkeyB64(), Balance: 1000}
	s.SeedGenesisAccount(owner)
	return s, genesisMiner, genesis
}

// mineBlock assembles a valid block on top of parent signed by miner,
// brute-forcing a nonce that satisfies the fixed test difficulty.
func mineBlock(t *testing.T, parent *types.Block, miner testKey, utc int64, txs []*types.Tx) *types.Block {
	return mineBlockBits(t, parent, miner, utc, txs, testZeroBits)
}

// mineBlockBits is mineBlock with an explicit difficulty, for chains long
// enough to cross a retarget boundary.
func mineBlockBits(t *testing.T, parent *types.Block, miner testKey, utc int64, txs []*types.Tx, zeroBits uint32) *types.Block {
	b := &types.Block{
		ID: parent.ID + 1, PreHash: parent.Hash, UTC: utc, Version: 1,
		ZeroBits: zeroBits, MinerPubkey: miner.pubkeyB64(), TxList: txs,
	}
	for nonce := uint64(0); ; nonce++ {
		b.Nonce = nonce
		digest := crypto.HashBytes(b.HeaderPreimage())
		if crypto.PowOk(digest, b.ZeroBits) {
			b.Hash = crypto.EncodeBase64(digest)
			break
		}
	}
	b.MinerSign = crypto.EncodeBase64(crypto.Sign(miner.priv, crypto.HashBytes(b.HeaderPreimage())))
	return b
}

func signedTx(priv ed25519.PrivateKey, pub ed25519.PublicKey, utc int64, data types.TxData) *types.Tx {
	tx := &types.Tx{UTC: utc, Pubkey: crypto.EncodeBase64(pub), Data: data}
	tx.Finalize()
	tx.Sign = crypto.EncodeBase64(crypto.Sign(priv, tx.Digest()))
	return tx
}

// Registers "alice" via referrer "genesis_owner" paying the fee, then sends
// 10 to pre-registered "bob". alice's balance is untouched by her own
// registration (the referrer pays); bob gains 10; the miner collects the
// send fee plus the block emission (registration fees are burned).
func TestRegisterThenSendScenario(t *testing.T) {
	s, genesisMiner, _ := newTestState(t)
	ownerKey := genesisMiner // genesis_owner shares the genesis miner keypair in this test fixture

	alice := newTestKey(t)
	bob := newTestKey(t)

	utc := int64(1001)
	regAlice := signedTx(ownerKey.priv, ownerKey.pub, utc, &types.RegisterData{
		Name: "alice", Pubkey: alice.pubkeyB64(), ReferrerPubkey: ownerKey.pubkeyB64(),
	})
	regBob := signedTx(bob.priv, bob.pub, utc, &types.RegisterData{
		Name: "bob", Pubkey: bob.pubkeyB64(), ReferrerPubkey: ownerKey.pubkeyB64(),
	})
	block1 := mineBlock(t, s.Tip(), genesisMiner, utc, []*types.Tx{regAlice, regBob})
	require.Nil(t, s.Apply(block1, utc))

	balAfterRegs := uint64(1000) - 2*config.RegistrationFee + types.Emission

	// genesis_owner itself sends 10 to bob; alice never transacts, so her
	// balance must stay at the 0 registration left her with.
	sendTx := signedTx(ownerKey.priv, ownerKey.pub, utc+1, &types.SendData{ToPubkey: bob.pubkeyB64(), Amount: 10})
	block2 := mineBlock(t, s.Tip(), genesisMiner, utc+1, []*types.Tx{sendTx})
	require.Nil(t, s.Apply(block2, utc+1))

	aliceAcct, ok := s.AccountByPubkey(alice.pubkeyB64())
	require.True(t, ok)
	require.Equal(t, uint64(0), aliceAcct.Balance)

	bobAcct, ok := s.AccountByPubkey(bob.pubkeyB64())
	require.True(t, ok)
	require.Equal(t, uint64(10), bobAcct.Balance)

	minerAcct, ok := s.AccountByPubkey(ownerKey.pubkeyB64())
	require.True(t, ok)
	// genesis_owner is both sender and miner, so it pays the send fee and
	// collects it back.
	want := balAfterRegs - 10 - config.SendFee + types.Emission + config.SendFee
	require.Equal(t, want, minerAcct.Balance)
}

// A new_topic with reward 100 at block id 1, no replies awarded; once the
// topic's lifetime elapses, it disappears and the owner's balance has
// increased by exactly the unawarded reward.
func TestTopicExpiryRefundsOwner(t *testing.T) {
	s, miner, _ := newTestState(t)
	owner, _ := s.AccountByName("genesis_owner")
	ownerPriv := miner.priv

	utc := int64(2000)
	newTopicTx := signedTx(ownerPriv, miner.pub, utc, &types.NewTopicData{Reward: 100})
	block1 := mineBlock(t, s.Tip(), miner, utc, []*types.Tx{newTopicTx})
	require.Nil(t, s.Apply(block1, utc))

	balAfterLock := owner.Balance - 100 - config.NewTopicFee + types.Emission
	got, _ := s.AccountByPubkey(miner.pubkeyB64())
	require.Equal(t, balAfterLock, got.Balance)

	topic, ok := s.TopicByKey(newTopicTx.ID)
	require.True(t, ok)
	require.Equal(t, uint64(100), topic.Reward)

	cur := s.Tip()
	for cur.ID < 1+types.TopicLifeTime {
		cur = mineBlockBits(t, cur, miner, utc+int64(cur.ID), nil, s.Snapshot().ZeroBits)
		require.Nil(t, s.Apply(cur, utc+int64(cur.ID)))
	}

	_, stillThere := s.TopicByKey(newTopicTx.ID)
	require.False(t, stillThere)

	final, _ := s.AccountByPubkey(miner.pubkeyB64())
	require.Equal(t, balAfterLock+100+types.Emission*types.TopicLifeTime, final.Balance)
}

// A block whose body includes a send tx that overdraws the sender is
// rejected outright and the tip does not move.
func TestOverdraftBlockRejected(t *testing.T) {
	s, miner, _ := newTestState(t)
	poor := newTestKey(t)

	utc := int64(3000)
	regPoor := signedTx(miner.priv, miner.pub, utc, &types.RegisterData{
		Name: "poor", Pubkey: poor.pubkeyB64(), ReferrerPubkey: miner.pubkeyB64(),
	})
	block1 := mineBlock(t, s.Tip(), miner, utc, []*types.Tx{regPoor})
	require.Nil(t, s.Apply(block1, utc))

	tipBefore := s.Tip()
	overdraft := signedTx(poor.priv, poor.pub, utc+1, &types.SendData{ToPubkey: miner.pubkeyB64(), Amount: 999})
	block2 := mineBlock(t, tipBefore, miner, utc+1, []*types.Tx{overdraft})
	verr := s.Apply(block2, utc+1)
	require.NotNil(t, verr)
	require.Equal(t, ReasonInsufficientBalance, verr.Reason)
	require.Equal(t, tipBefore.Hash, s.Tip().Hash)
}

// Rolling back to a prior block and reapplying the same blocks produces
// identical state.
func TestRollbackThenReapplyIsIdentical(t *testing.T) {
	s, miner, _ := newTestState(t)
	bob := newTestKey(t)

	utc := int64(4000)
	regBob := signedTx(bob.priv, bob.pub, utc, &types.RegisterData{
		Name: "bob", Pubkey: bob.pubkeyB64(), ReferrerPubkey: miner.pubkeyB64(),
	})
	block1 := mineBlock(t, s.Tip(), miner, utc, []*types.Tx{regBob})
	require.Nil(t, s.Apply(block1, utc))

	sendTx := signedTx(miner.priv, miner.pub, utc+1, &types.SendData{ToPubkey: bob.pubkeyB64(), Amount: 5})
	block2 := mineBlock(t, s.Tip(), miner, utc+1, []*types.Tx{sendTx})
	require.Nil(t, s.Apply(block2, utc+1))

	before, ok := s.AccountByPubkey(bob.pubkeyB64())
	require.True(t, ok)
	beforeBytes, err := types.EncodeAccount(before)
	require.NoError(t, err)

	s.Rollback(0)
	require.Nil(t, s.Apply(block1, utc))
	require.Nil(t, s.Apply(block2, utc+1))

	after, ok := s.AccountByPubkey(bob.pubkeyB64())
	require.True(t, ok)
	afterBytes, err := types.EncodeAccount(after)
	require.NoError(t, err)
	require.Equal(t, beforeBytes, afterBytes)
}

// Two branches rooted at the same fork point, one shorter (active) and one
// longer with strictly greater cumulative PoW. SwitchChain must replace the
// active suffix with the more-difficult one.
func TestSwitchChainPrefersHigherCumulativePow(t *testing.T) {
	s, miner, genesis := newTestState(t)
	utc := int64(5000)

	active := mineBlock(t, genesis, miner, utc, nil)
	require.Nil(t, s.Apply(active, utc))
	require.Equal(t, active.Hash, s.Tip().Hash)

	rival1 := mineBlock(t, genesis, miner, utc+1, nil)
	rival2 := mineBlock(t, rival1, miner, utc+2, nil)

	tip, verr := s.SwitchChain(genesis.ID, []*types.Block{rival1, rival2}, utc+2)
	require.Nil(t, verr)
	require.Equal(t, rival2.ID, tip)
	require.Equal(t, rival2.Hash, s.Tip().Hash)
	require.True(t, s.Tip().CumulativePow > active.CumulativePow)
}

// A registers and a bob pre-funded by the miner, then bob sends to alice in
// a block mined by a third account. The miner's balance must rise by
// exactly the block emission plus the send fee, not emission alone.
func TestSendFeeCreditsMiner(t *testing.T) {
	s, genesisMiner, _ := newTestState(t)
	ownerKey := genesisMiner

	alice := newTestKey(t)
	bob := newTestKey(t)

	utc := int64(8000)
	regAlice := signedTx(ownerKey.priv, ownerKey.pub, utc, &types.RegisterData{
		Name: "alice", Pubkey: alice.pubkeyB64(), ReferrerPubkey: ownerKey.pubkeyB64(),
	})
	regBob := signedTx(ownerKey.priv, ownerKey.pub, utc, &types.RegisterData{
		Name: "bob", Pubkey: bob.pubkeyB64(), ReferrerPubkey: ownerKey.pubkeyB64(),
	})
	block1 := mineBlock(t, s.Tip(), genesisMiner, utc, []*types.Tx{regAlice, regBob})
	require.Nil(t, s.Apply(block1, utc))

	fundBob := signedTx(ownerKey.priv, ownerKey.pub, utc+1, &types.SendData{ToPubkey: bob.pubkeyB64(), Amount: 50})
	block2 := mineBlock(t, s.Tip(), genesisMiner, utc+1, []*types.Tx{fundBob})
	require.Nil(t, s.Apply(block2, utc+1))

	minerBefore, ok := s.AccountByPubkey(ownerKey.pubkeyB64())
	require.True(t, ok)

	// bob (sender) sends to alice (receiver); the block is mined by the
	// genesis owner, distinct from both, so the fee credit is observable.
	bobSend := signedTx(bob.priv, bob.pub, utc+2, &types.SendData{ToPubkey: alice.pubkeyB64(), Amount: 10})
	block3 := mineBlock(t, s.Tip(), genesisMiner, utc+2, []*types.Tx{bobSend})
	require.Nil(t, s.Apply(block3, utc+2))

	minerAfter, ok := s.AccountByPubkey(ownerKey.pubkeyB64())
	require.True(t, ok)
	require.Equal(t, minerBefore.Balance+types.Emission+config.SendFee, minerAfter.Balance)

	bobAcct, ok := s.AccountByPubkey(bob.pubkeyB64())
	require.True(t, ok)
	require.Equal(t, uint64(50)-10-config.SendFee, bobAcct.Balance)

	aliceAcct, ok := s.AccountByPubkey(alice.pubkeyB64())
	require.True(t, ok)
	require.Equal(t, uint64(10), aliceAcct.Balance)
}

// Two blocks mined on top of the same tip compete for the same height. The
// first-applied block keeps the tip; the equal-work rival is rejected as
// stale (not punished, since this is routine race between miners) and kept
// on record as a known sibling rather than applied over the existing tip's
// mutated state. A further block extending the rival, tipping its branch's
// cumulative PoW strictly above the active tip's, wins the fork via
// rollback-and-replay.
func TestCompetingBlockTieBreakThenFork(t *testing.T) {
	s, miner, genesis := newTestState(t)
	utc := int64(9000)

	tipA := mineBlock(t, genesis, miner, utc, nil)
	require.Nil(t, s.Apply(tipA, utc))
	require.Equal(t, tipA.Hash, s.Tip().Hash)

	rival := mineBlock(t, genesis, miner, utc+1, nil)
	verr := s.Apply(rival, utc+1)
	require.NotNil(t, verr)
	require.Equal(t, ReasonStale, verr.Reason)
	require.False(t, verr.Punish)
	require.Equal(t, tipA.Hash, s.Tip().Hash)

	_, known := s.BlockByHash(rival.Hash)
	require.True(t, known)

	rival2 := mineBlock(t, rival, miner, utc+2, nil)
	verr2 := s.Apply(rival2, utc+2)
	require.Nil(t, verr2)
	require.Equal(t, rival2.Hash, s.Tip().Hash)
	require.True(t, s.Tip().CumulativePow > tipA.CumulativePow)
}
