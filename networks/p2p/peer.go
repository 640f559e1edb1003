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

package p2p

import (
	"bufio"
	"net"
	"sync"

	"github.com/askchain/node/chain"
)

// Peer wraps one live connection. Writes are serialized; reads happen only
// on the owning readLoop goroutine, so no lock is needed there.
type Peer struct {
	ID   chain.PeerID
	conn net.Conn

	sendMu sync.Mutex
	w      *bufio.Writer
	r      *bufio.Reader
}

func newPeer(id chain.PeerID, conn net.Conn) *Peer {
	return &Peer{
		ID:   id,
		conn: conn,
		w:    bufio.NewWriter(conn),
		r:    bufio.NewReader(conn),
	}
}

func (p *Peer) send(m wireMessage) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if err := writeFrame(p.w, m); err != nil {
		return err
	}
	return p.w.Flush()
}

// readLoop delivers frames to onMessage until the connection errors or
// closes, then returns. The caller is responsible for removing the peer.
func (p *Peer) readLoop(onMessage func(wireMessage)) {
	for {
		m, err := readFrame(p.r)
		if err != nil {
			return
		}
		onMessage(m)
	}
}

func (p *Peer) Close() error {
	return p.conn.Close()
}
