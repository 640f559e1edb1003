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
//
// At-rest records (storage/database values) are plain JSON. Byte-stability
// only matters for the hash preimages (HeaderPreimage, Tx Preimage), not
// the disk format, so JSON's flexibility is free to use here. Tx.Data is an
// interface, so Tx needs a tagged-union marshaler.

package types

import "encoding/json"

type txWire struct {
	ID     string          `json:"id"`
	UTC    int64           `json:"utc"`
	Pubkey string          `json:"pubkey"`
	Sign   string          `json:"sign"`
	Kind   TxKind          `json:"kind"`
	Data   json.RawMessage `json:"data"`
}

func (tx *Tx) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(tx.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(txWire{
		ID: tx.ID, UTC: tx.UTC, Pubkey: tx.Pubkey, Sign: tx.Sign,
		Kind: tx.Data.Kind(), Data: data,
	})
}

func (tx *Tx) UnmarshalJSON(b []byte) error {
	var w txWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	tx.ID, tx.UTC, tx.Pubkey, tx.Sign = w.ID, w.UTC, w.Pubkey, w.Sign

	var data TxData
	switch w.Kind {
	case TxRegister:
		data = &RegisterData{}
	case TxSend:
		data = &SendData{}
	case TxNewTopic:
		data = &NewTopicData{}
	case TxReply:
		data = &ReplyData{}
	default:
		return errUnknownTxKind(w.Kind)
	}
	if len(w.Data) > 0 {
		if err := json.Unmarshal(w.Data, data); err != nil {
			return err
		}
	}
	tx.Data = data
	return nil
}

type unknownTxKindError TxKind

func (e unknownTxKindError) Error() string { return "types: unknown tx kind " + TxKind(e).String() }

func errUnknownTxKind(k TxKind) error { return unknownTxKindError(k) }

// EncodeAccount / DecodeAccount round-trip an Account through its disk form.
func EncodeAccount(a *Account) ([]byte, error) { return json.Marshal(a) }
func DecodeAccount(b []byte) (*Account, error) {
	var a Account
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// EncodeBlock / DecodeBlock round-trip a Block through its disk form.
func EncodeBlock(blk *Block) ([]byte, error) { return json.Marshal(blk) }
func DecodeBlock(b []byte) (*Block, error) {
	var blk Block
	if err := json.Unmarshal(b, &blk); err != nil {
		return nil, err
	}
	return &blk, nil
}

// EncodeTopic / DecodeTopic round-trip a Topic through its disk form.
func EncodeTopic(t *Topic) ([]byte, error) { return json.Marshal(t) }
func DecodeTopic(b []byte) (*Topic, error) {
	var t Topic
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, err
	}
	t.ReplySet = make(map[string]bool, len(t.ReplyList))
	for _, id := range t.ReplyList {
		t.ReplySet[id] = true
	}
	return &t, nil
}
