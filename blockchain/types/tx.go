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
// Tx and its kind-specific payloads share one common envelope (Tx) carrying
// a TxData implementation chosen by Kind.

package types

import (
	"encoding/binary"

	"github.com/askchain/node/crypto"
)

// TxKind identifies which of the four transaction shapes a Tx carries.
type TxKind uint8

const (
	TxRegister TxKind = iota
	TxSend
	TxNewTopic
	TxReply
)

func (k TxKind) String() string {
	switch k {
	case TxRegister:
		return "register"
	case TxSend:
		return "send"
	case TxNewTopic:
		return "new_topic"
	case TxReply:
		return "reply"
	default:
		return "unknown"
	}
}

// TxData is implemented by each kind-specific payload. Encode must be
// deterministic: it feeds directly into the tx id hash preimage.
type TxData interface {
	Kind() TxKind
	Encode() []byte
}

// Tx is the common envelope for every transaction kind.
type Tx struct {
	ID     string `json:"id"` // base64 SHA-256 of the signed body
	UTC    int64  `json:"utc"`
	Pubkey string `json:"pubkey"` // base64, the signer
	Sign   string `json:"sign"`   // base64
	Data   TxData `json:"-"`
}

// RegisterData creates a new account.
type RegisterData struct {
	Name           string `json:"name"`
	Pubkey         string `json:"pubkey"` // the new account's own pubkey
	Avatar         uint32 `json:"avatar"`
	ReferrerPubkey string `json:"referrer_pubkey"`
}

func (d *RegisterData) Kind() TxKind { return TxRegister }
func (d *RegisterData) Encode() []byte {
	b := newEncoder()
	b.string(d.Name)
	b.string(d.Pubkey)
	b.uint32(d.Avatar)
	b.string(d.ReferrerPubkey)
	return b.bytes()
}

// SendData transfers Amount of balance to ToPubkey's account.
type SendData struct {
	ToPubkey string `json:"to_pubkey"`
	Amount   uint64 `json:"amount"`
}

func (d *SendData) Kind() TxKind { return TxSend }
func (d *SendData) Encode() []byte {
	b := newEncoder()
	b.string(d.ToPubkey)
	b.uint64(d.Amount)
	return b.bytes()
}

// NewTopicData locks Reward out of the sender's balance into a new topic
// (the topic key is the enclosing Tx's own id).
type NewTopicData struct {
	Reward uint64 `json:"reward"`
}

func (d *NewTopicData) Kind() TxKind { return TxNewTopic }
func (d *NewTopicData) Encode() []byte {
	b := newEncoder()
	b.uint64(d.Reward)
	return b.bytes()
}

// ReplyData posts a reply into TopicKey's thread, optionally awarding
// RewardAmount out of the topic pool to the account behind RewardToID (the
// tx id of an earlier reply in the same topic).
type ReplyData struct {
	TopicKey     string `json:"topic_key"`
	ReplyToID    string `json:"reply_to_id,omitempty"` // empty for a top-level reply
	RewardToID   string `json:"reward_to_id,omitempty"`
	RewardAmount uint64 `json:"reward_amount,omitempty"`
}

func (d *ReplyData) Kind() TxKind { return TxReply }
func (d *ReplyData) Encode() []byte {
	b := newEncoder()
	b.string(d.TopicKey)
	b.string(d.ReplyToID)
	b.string(d.RewardToID)
	b.uint64(d.RewardAmount)
	return b.bytes()
}

// Preimage returns the deterministic byte sequence whose hash is both the
// tx id and the digest the signature covers.
func (tx *Tx) Preimage() []byte {
	b := newEncoder()
	b.uint8(uint8(tx.Data.Kind()))
	b.int64(tx.UTC)
	b.string(tx.Pubkey)
	b.bytes_(tx.Data.Encode())
	return b.bytes()
}

// Finalize computes and sets ID from the current field values. Call this
// once the tx is fully populated and before signing.
func (tx *Tx) Finalize() {
	digest := crypto.HashBytes(tx.Preimage())
	tx.ID = crypto.EncodeBase64(digest)
}

// Digest returns the hash the signature is verified against; equal to the
// raw bytes backing ID.
func (tx *Tx) Digest() []byte {
	return crypto.HashBytes(tx.Preimage())
}

// --- tiny deterministic binary encoder -----------------------------------
//
// This module has no canonical RLP-style struct codec, so the preimage
// encoder below is hand-rolled on top of the standard library's
// encoding/binary. It is intentionally minimal: every variable-length field
// is length-prefixed so no field's bytes can bleed into the next.

type encoder struct {
	buf []byte
}

func newEncoder() *encoder { return &encoder{} }

func (e *encoder) uint8(v uint8)   { e.buf = append(e.buf, v) }
func (e *encoder) uint32(v uint32) { e.buf = appendUint32(e.buf, v) }
func (e *encoder) uint64(v uint64) { e.buf = appendUint64(e.buf, v) }
func (e *encoder) int64(v int64)   { e.buf = appendUint64(e.buf, uint64(v)) }

func (e *encoder) string(s string) { e.bytes_([]byte(s)) }

func (e *encoder) bytes_(b []byte) {
	e.buf = appendUint32(e.buf, uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) bytes() []byte { return e.buf }

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
