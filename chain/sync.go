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

// Sync protocol: pending brief/detail request bookkeeping, driven entirely
// from the dispatcher goroutine -- every method here assumes that
// single-writer discipline; pending request state is created, mutated, and
// destroyed only on that one goroutine.
package chain

import (
	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/config"
	"github.com/askchain/node/crypto"
	"github.com/askchain/node/log"
)

var syncLogger = log.NewModuleLogger(log.SyncProtocol)

// PeerID names a remote peer well enough to key pending requests and issue
// punishment, without this package depending on the peer-transport package.
type PeerID string

// Transport is the narrow send/punish surface Sync needs from the peer
// layer.
type Transport interface {
	SendChainBriefRequest(peer PeerID, fromHash string) error
	SendChainDetailRequest(peer PeerID, hashes []string) error
	PunishPeer(peer PeerID, reason string)
}

// PendingChain is a peer-attested, not-yet-validated list of headers.
type PendingChain struct {
	Peer          PeerID
	Headers       []*types.Header // oldest to newest
	CumulativePow uint64
}

type pendingBriefRequest struct {
	peer     PeerID
	deadline int64
	chain    *PendingChain
}

type pendingDetailRequest struct {
	peer     PeerID
	deadline int64
	forkID   uint64
	headers  []*types.Header // expected, oldest to newest
	bodies   map[string]*types.Block
}

// Sync owns the pending-request tables and drives brief/detail exchanges to
// completion, invoking State.SwitchChain once a full suffix is buffered and
// internally consistent.
type Sync struct {
	state     *State
	transport Transport

	briefByPeer  map[PeerID]*pendingBriefRequest
	detailByPeer map[PeerID]*pendingDetailRequest
}

func NewSync(state *State, transport Transport) *Sync {
	return &Sync{
		state:        state,
		transport:    transport,
		briefByPeer:  make(map[PeerID]*pendingBriefRequest),
		detailByPeer: make(map[PeerID]*pendingDetailRequest),
	}
}

// OnPeerAnnounce handles a peer's tip advertisement. If its claimed
// cumulative PoW exceeds the local most-difficult block and no request is
// already outstanding for this peer, it issues a brief request. At most one
// brief or detail request may be outstanding per peer at a time.
func (sy *Sync) OnPeerAnnounce(peer PeerID, tipHash string, cumulativePow uint64, nowUnix int64) {
	if cumulativePow <= sy.state.MostDifficultBlock().CumulativePow {
		return
	}
	if _, busy := sy.briefByPeer[peer]; busy {
		return
	}
	if _, busy := sy.detailByPeer[peer]; busy {
		return
	}
	if err := sy.transport.SendChainBriefRequest(peer, tipHash); err != nil {
		syncLogger.Warn("failed to send brief request", "peer", peer, "err", err)
		return
	}
	sy.briefByPeer[peer] = &pendingBriefRequest{
		peer:     peer,
		deadline: nowUnix + config.BriefRequestDeadlineSeconds,
		chain:    &PendingChain{Peer: peer, CumulativePow: cumulativePow},
	}
}

// OnBriefResponse appends one chunk of headers. done marks the final chunk
// for this request. Headers must chain together (each PreHash matching the
// previous Hash) and each must satisfy its own PoW; any violation cancels
// the request and punishes the peer.
func (sy *Sync) OnBriefResponse(peer PeerID, headers []*types.Header, done bool, nowUnix int64) {
	req, ok := sy.briefByPeer[peer]
	if !ok {
		return // no outstanding request: stale or unsolicited response, ignore
	}
	for _, h := range headers {
		if h.ComputeHash() != h.Hash {
			sy.cancelBrief(peer, "header hash does not match its own preimage")
			return
		}
		digest, err := crypto.DecodeBase64(h.Hash)
		if err != nil || !crypto.PowOk(digest, h.ZeroBits) {
			sy.cancelBrief(peer, "header does not satisfy its own proof of work")
			return
		}
		if len(req.chain.Headers) > 0 {
			last := req.chain.Headers[len(req.chain.Headers)-1]
			if h.PreHash != last.Hash || h.ID != last.ID+1 {
				sy.cancelBrief(peer, "header chunk is not contiguous")
				return
			}
		}
		req.chain.Headers = append(req.chain.Headers, h)
	}
	if !done {
		return
	}
	delete(sy.briefByPeer, peer)
	sy.finishBrief(req.chain, nowUnix)
}

func (sy *Sync) cancelBrief(peer PeerID, reason string) {
	delete(sy.briefByPeer, peer)
	sy.transport.PunishPeer(peer, reason)
	syncLogger.Warn("cancelled brief request", "peer", peer, "reason", reason)
}

// finishBrief locates the fork point against the now-complete candidate
// chain and, if found, issues a detail request for the suffix above it.
func (sy *Sync) finishBrief(chain *PendingChain, nowUnix int64) {
	hashes := make([]string, len(chain.Headers))
	for i, h := range chain.Headers {
		hashes[i] = h.Hash
	}
	forkID, found := sy.state.ForkPoint(hashes)
	if !found {
		sy.transport.PunishPeer(chain.Peer, "advertised chain shares no known ancestor")
		return
	}
	var suffix []*types.Header
	for _, h := range chain.Headers {
		if h.ID > forkID {
			suffix = append(suffix, h)
		}
	}
	if len(suffix) == 0 {
		return
	}
	detailHashes := make([]string, len(suffix))
	for i, h := range suffix {
		detailHashes[i] = h.Hash
	}
	if err := sy.transport.SendChainDetailRequest(chain.Peer, detailHashes); err != nil {
		syncLogger.Warn("failed to send detail request", "peer", chain.Peer, "err", err)
		return
	}
	sy.detailByPeer[chain.Peer] = &pendingDetailRequest{
		peer:     chain.Peer,
		deadline: nowUnix + config.DetailRequestDeadlineSeconds,
		forkID:   forkID,
		headers:  suffix,
		bodies:   make(map[string]*types.Block),
	}
}

// ArmDetailDeadline sets the expiry on an outstanding detail request; split
// out from finishBrief so callers that construct a detail request directly
// (tests) can still exercise the deadline path.
func (sy *Sync) ArmDetailDeadline(peer PeerID, nowUnix int64) {
	if req, ok := sy.detailByPeer[peer]; ok {
		req.deadline = nowUnix + config.DetailRequestDeadlineSeconds
	}
}

// OnDetailResponse buffers one or more full block bodies. Once every header
// in the suffix has a matching body, SwitchChain is invoked.
func (sy *Sync) OnDetailResponse(peer PeerID, bodies []*types.Block, nowUnix int64) {
	req, ok := sy.detailByPeer[peer]
	if !ok {
		return
	}
	byHash := make(map[string]*types.Header, len(req.headers))
	for _, h := range req.headers {
		byHash[h.Hash] = h
	}
	for _, b := range bodies {
		h, expected := byHash[b.Hash]
		if !expected {
			sy.cancelDetail(peer, "received body for an unrequested hash")
			return
		}
		if !h.MatchesBody(b) {
			sy.cancelDetail(peer, "body does not match its header")
			return
		}
		req.bodies[b.Hash] = b
	}
	if len(req.bodies) < len(req.headers) {
		return
	}
	delete(sy.detailByPeer, peer)

	suffix := make([]*types.Block, len(req.headers))
	for i, h := range req.headers {
		suffix[i] = req.bodies[h.Hash]
	}
	_, verr := sy.state.SwitchChain(req.forkID, suffix, nowUnix)
	if verr != nil {
		sy.transport.PunishPeer(peer, "offered chain suffix failed validation: "+verr.Reason.String())
	}
}

func (sy *Sync) cancelDetail(peer PeerID, reason string) {
	delete(sy.detailByPeer, peer)
	sy.transport.PunishPeer(peer, reason)
	syncLogger.Warn("cancelled detail request", "peer", peer, "reason", reason)
}

// Tick expires any pending request past its deadline. Called periodically
// by the dispatcher's timer.
func (sy *Sync) Tick(nowUnix int64) {
	for peer, req := range sy.briefByPeer {
		if nowUnix > req.deadline {
			delete(sy.briefByPeer, peer)
			sy.transport.PunishPeer(peer, "brief request deadline exceeded")
		}
	}
	for peer, req := range sy.detailByPeer {
		if nowUnix > req.deadline {
			delete(sy.detailByPeer, peer)
			sy.transport.PunishPeer(peer, "detail request deadline exceeded")
		}
	}
}
