package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTxFinalizeIsDeterministic(t *testing.T) {
	tx1 := &Tx{UTC: 1000, Pubkey: "pk", Data: &SendData{ToPubkey: "other", Amount: 10}}
	tx1.Finalize()

	tx2 := &Tx{UTC: 1000, Pubkey: "pk", Data: &SendData{ToPubkey: "other", Amount: 10}}
	tx2.Finalize()

	require.Equal(t, tx1.ID, tx2.ID)

	tx3 := &Tx{UTC: 1000, Pubkey: "pk", Data: &SendData{ToPubkey: "other", Amount: 11}}
	tx3.Finalize()
	require.NotEqual(t, tx1.ID, tx3.ID)
}

func TestTxJSONRoundTrip(t *testing.T) {
	tx := &Tx{UTC: 42, Pubkey: "pk", Sign: "sig", Data: &ReplyData{TopicKey: "topic1", RewardToID: "r1", RewardAmount: 5}}
	tx.Finalize()

	raw, err := json.Marshal(tx)
	require.NoError(t, err)

	var got Tx
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, tx.ID, got.ID)
	require.Equal(t, TxReply, got.Data.Kind())
	require.Equal(t, tx.Data.(*ReplyData).RewardAmount, got.Data.(*ReplyData).RewardAmount)
}

func TestIsValidName(t *testing.T) {
	require.True(t, IsValidName("alice"))
	require.False(t, IsValidName(""))
	require.False(t, IsValidName("this_name_is_way_too_long_for_us"))
	require.False(t, IsValidName("bad name"))
}

func TestTopicExpiry(t *testing.T) {
	topic := &Topic{Key: "k", BlockID: 1000}
	require.False(t, topic.Expired(1000+TopicLifeTime-1))
	require.True(t, topic.Expired(1000+TopicLifeTime))
}
