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

	"github.com/stretchr/testify/require"

	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/crypto"
)

func newSignedSendTx(t *testing.T, utc int64, to string, amount uint64) *types.Tx {
	pub, priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := &types.Tx{UTC: utc, Pubkey: crypto.EncodeBase64(pub), Data: &types.SendData{ToPubkey: to, Amount: amount}}
	tx.Finalize()
	tx.Sign = crypto.EncodeBase64(crypto.Sign(priv, tx.Digest()))
	return tx
}

func TestTxPoolAddRejectsBadSignature(t *testing.T) {
	p := newTxPool()
	tx := newSignedSendTx(t, 1000, "someone", 5)
	tx.Sign = crypto.EncodeBase64([]byte("not a real signature"))
	require.False(t, p.Add(tx))
	require.Empty(t, p.Pending(10))
}

func TestTxPoolAddDedupsByID(t *testing.T) {
	p := newTxPool()
	tx := newSignedSendTx(t, 1000, "someone", 5)
	require.True(t, p.Add(tx))
	require.False(t, p.Add(tx))
	require.Len(t, p.Pending(10), 1)
}

func TestTxPoolPendingIsFIFOAndBounded(t *testing.T) {
	p := newTxPool()
	a := newSignedSendTx(t, 1000, "a", 1)
	b := newSignedSendTx(t, 1001, "b", 2)
	c := newSignedSendTx(t, 1002, "c", 3)
	require.True(t, p.Add(a))
	require.True(t, p.Add(b))
	require.True(t, p.Add(c))

	got := p.Pending(2)
	require.Len(t, got, 2)
	require.Equal(t, a.ID, got[0].ID)
	require.Equal(t, b.ID, got[1].ID)
}

func TestTxPoolAddRememberesRejectedID(t *testing.T) {
	p := newTxPool()
	tx := newSignedSendTx(t, 1000, "someone", 5)
	tx.Sign = crypto.EncodeBase64([]byte("not a real signature"))
	require.False(t, p.Add(tx))
	require.True(t, p.rejected.Contains(tx.ID))

	// Resubmitting the exact same bad tx is rejected again, without ever
	// reaching crypto.Verify a second time.
	require.False(t, p.Add(tx))
	require.Empty(t, p.Pending(10))
}

func TestTxPoolRemoveDropsConfirmed(t *testing.T) {
	p := newTxPool()
	a := newSignedSendTx(t, 1000, "a", 1)
	b := newSignedSendTx(t, 1001, "b", 2)
	require.True(t, p.Add(a))
	require.True(t, p.Add(b))

	p.Remove([]string{a.ID})

	got := p.Pending(10)
	require.Len(t, got, 1)
	require.Equal(t, b.ID, got[0].ID)
}
