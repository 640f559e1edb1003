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

// Package p2p is the peer transport: JSON messages over a length-prefixed
// stream, one connection per peer and one message loop per connection,
// built on plain net.Conn framing rather than an encrypted RLPx-style
// handshake.
package p2p

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"

	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/dispatcher"
)

// maxFrameSize bounds a single message so a malformed or hostile length
// prefix cannot make the reader allocate unbounded memory.
const maxFrameSize = 32 << 20 // 32 MiB

var errFrameTooLarge = errors.New("p2p: frame exceeds maxFrameSize")

// wireMessage is the JSON body of one frame: the union of every field any
// peer message kind in dispatcher.PeerMsgKind may carry. Reusing
// dispatcher's own enum keeps the wire kind and the dispatch kind a single
// source of truth.
type wireMessage struct {
	Kind dispatcher.PeerMsgKind `json:"kind"`

	Block   *types.Block    `json:"block,omitempty"`
	Tx      *types.Tx       `json:"tx,omitempty"`
	Headers []*types.Header `json:"headers,omitempty"`
	Bodies  []*types.Block  `json:"bodies,omitempty"`
	Done    bool            `json:"done,omitempty"`

	FromHash string   `json:"from_hash,omitempty"`
	Hashes   []string `json:"hashes,omitempty"`

	TipHash       string `json:"tip_hash,omitempty"`
	CumulativePow uint64 `json:"cumulative_pow,omitempty"`

	VersionMajor uint32 `json:"version_major,omitempty"`
	VersionMinor uint32 `json:"version_minor,omitempty"`
}

// writeFrame writes a 4-byte big-endian length prefix followed by m's JSON
// encoding.
func writeFrame(w io.Writer, m wireMessage) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// readFrame reads one length-prefixed JSON message.
func readFrame(r io.Reader) (wireMessage, error) {
	var m wireMessage
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return m, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameSize {
		return m, errFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return m, err
	}
	err := json.Unmarshal(body, &m)
	return m, err
}
