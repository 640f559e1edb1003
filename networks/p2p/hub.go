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
	"errors"
	"net"
	"sync"

	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/chain"
	"github.com/askchain/node/config"
	"github.com/askchain/node/dispatcher"
	"github.com/askchain/node/log"
)

var errPeerNotConnected = errors.New("p2p: peer not connected")

var logger = log.NewModuleLogger(log.PeerProtocol)

// Hub owns every live Peer connection and implements both
// chain.Transport (outbound sync requests) and dispatcher.PeerNetwork
// (inbound-request responses) plus dispatcher.Broadcaster, so a single
// object is all cmd/askchaind needs to wire into a Dispatcher.
type Hub struct {
	mu    sync.Mutex
	peers map[chain.PeerID]*Peer

	disp *dispatcher.Dispatcher
}

func NewHub(disp *dispatcher.Dispatcher) *Hub {
	return &Hub{peers: make(map[chain.PeerID]*Peer), disp: disp}
}

// SetDispatcher attaches the Dispatcher inbound peer messages are delivered
// to. Needed because cmd/askchaind must pass this Hub to dispatcher.New as
// a PeerNetwork/Broadcaster before the Dispatcher itself exists -- the same
// construction-order problem Dispatcher.SetMiner solves on the other side.
func (h *Hub) SetDispatcher(disp *dispatcher.Dispatcher) { h.disp = disp }

// Listen accepts inbound connections on addr until the listener is closed.
func (h *Hub) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				logger.Warn("listener closed", "err", err)
				return
			}
			id := chain.PeerID(conn.RemoteAddr().String())
			h.addPeer(id, conn)
		}
	}()
	return nil
}

// Dial connects outbound to a peer at addr, identified thereafter by id.
func (h *Hub) Dial(id chain.PeerID, addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	h.addPeer(id, conn)
	return nil
}

func (h *Hub) addPeer(id chain.PeerID, conn net.Conn) {
	p := newPeer(id, conn)
	h.mu.Lock()
	h.peers[id] = p
	h.mu.Unlock()
	go h.serve(p)
}

func (h *Hub) serve(p *Peer) {
	p.readLoop(func(m wireMessage) {
		h.disp.EnqueuePeerMessage(toPeerMessage(p.ID, m))
	})
	h.removePeer(p.ID)
}

func (h *Hub) removePeer(id chain.PeerID) {
	h.mu.Lock()
	p, ok := h.peers[id]
	delete(h.peers, id)
	h.mu.Unlock()
	if ok {
		p.Close()
	}
}

func (h *Hub) peerByID(id chain.PeerID) (*Peer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.peers[id]
	return p, ok
}

func (h *Hub) sendTo(id chain.PeerID, m wireMessage) error {
	p, ok := h.peerByID(id)
	if !ok {
		return errPeerNotConnected
	}
	return p.send(m)
}

func (h *Hub) broadcast(m wireMessage) {
	h.mu.Lock()
	peers := make([]*Peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		if err := p.send(m); err != nil {
			logger.Warn("broadcast send failed", "peer", p.ID, "err", err)
		}
	}
}

// --- chain.Transport ------------------------------------------------------

func (h *Hub) SendChainBriefRequest(peer chain.PeerID, fromHash string) error {
	return h.sendTo(peer, wireMessage{Kind: dispatcher.MsgChainBriefReq, FromHash: fromHash})
}

func (h *Hub) SendChainDetailRequest(peer chain.PeerID, hashes []string) error {
	return h.sendTo(peer, wireMessage{Kind: dispatcher.MsgChainDetailReq, Hashes: hashes})
}

func (h *Hub) PunishPeer(peer chain.PeerID, reason string) {
	logger.Warn("punishing peer", "peer", peer, "reason", reason)
	h.removePeer(peer)
}

// --- dispatcher.PeerNetwork (beyond chain.Transport) ----------------------

func (h *Hub) SendChainBriefResponse(peer chain.PeerID, headers []*types.Header, done bool) error {
	return h.sendTo(peer, wireMessage{Kind: dispatcher.MsgChainBriefResp, Headers: headers, Done: done})
}

func (h *Hub) SendChainDetailResponse(peer chain.PeerID, bodies []*types.Block) error {
	return h.sendTo(peer, wireMessage{Kind: dispatcher.MsgChainDetailResp, Bodies: bodies})
}

func (h *Hub) SendPong(peer chain.PeerID) error {
	return h.sendTo(peer, wireMessage{Kind: dispatcher.MsgPong})
}

// --- dispatcher.Broadcaster ------------------------------------------------

func (h *Hub) BroadcastBlock(b *types.Block) {
	h.broadcast(wireMessage{Kind: dispatcher.MsgBlockBroadcast, Block: b})
}

func (h *Hub) BroadcastTx(tx *types.Tx) {
	h.broadcast(wireMessage{Kind: dispatcher.MsgTxBroadcast, Tx: tx})
}

// AnnounceTip sends our own tip advertisement to every connected peer.
func (h *Hub) AnnounceTip(tipHash string, cumulativePow uint64) {
	h.broadcast(wireMessage{
		Kind: dispatcher.MsgPeerAnnounce, TipHash: tipHash, CumulativePow: cumulativePow,
	})
}

// Ping sends a version handshake probe to peer.
func (h *Hub) Ping(peer chain.PeerID) error {
	return h.sendTo(peer, wireMessage{
		Kind: dispatcher.MsgPing,
		VersionMajor: config.ProtocolVersionMajor, VersionMinor: config.ProtocolVersionMinor,
	})
}

func toPeerMessage(id chain.PeerID, m wireMessage) dispatcher.PeerMessage {
	return dispatcher.PeerMessage{
		Peer: id, Kind: m.Kind,
		Block: m.Block, Tx: m.Tx, Headers: m.Headers, Bodies: m.Bodies, Done: m.Done,
		FromHash: m.FromHash, Hashes: m.Hashes,
		TipHash: m.TipHash, CumulativePow: m.CumulativePow,
		VersionMajor: m.VersionMajor, VersionMinor: m.VersionMinor,
	}
}
