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

	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/crypto"
)

type fakeTransport struct {
	briefSent   []PeerID
	detailSent  []PeerID
	punished    map[PeerID]string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{punished: make(map[PeerID]string)}
}

func (f *fakeTransport) SendChainBriefRequest(peer PeerID, fromHash string) error {
	f.briefSent = append(f.briefSent, peer)
	return nil
}

func (f *fakeTransport) SendChainDetailRequest(peer PeerID, hashes []string) error {
	f.detailSent = append(f.detailSent, peer)
	return nil
}

func (f *fakeTransport) PunishPeer(peer PeerID, reason string) {
	f.punished[peer] = reason
}

// mineHeader brute-forces a nonce so h satisfies its own ZeroBits, then
// sets h.Hash accordingly; used for headers that never have a real body.
func mineHeader(h *types.Header) *types.Header {
	for nonce := uint64(0); ; nonce++ {
		h.Nonce = nonce
		hash := h.ComputeHash()
		digest, err := crypto.DecodeBase64(hash)
		if err == nil && crypto.PowOk(digest, h.ZeroBits) {
			h.Hash = hash
			return h
		}
	}
}

// A brief-request response arriving after its deadline finds the request
// already cancelled and its source peer punished, with no state mutation.
func TestBriefRequestDeadlineExpiry(t *testing.T) {
	s, _, _ := newTestState(t)
	transport := newFakeTransport()
	sy := NewSync(s, transport)

	const peer PeerID = "peer-1"
	sy.OnPeerAnnounce(peer, "some-hash", s.MostDifficultBlock().CumulativePow+1000, 0)
	require.Len(t, transport.briefSent, 1)

	sy.Tick(1000) // well past the 10s deadline from nowUnix=0
	_, stillPunished := transport.punished[peer]
	require.True(t, stillPunished)

	// A late response after cancellation must be ignored, not crash or
	// mutate state.
	sy.OnBriefResponse(peer, []*types.Header{{ID: 1}}, true, 1000)
	require.Equal(t, s.Tip().ID, uint64(0))
}

// A single peer may not have two outstanding brief requests at once.
func TestAtMostOneOutstandingBriefRequestPerPeer(t *testing.T) {
	s, _, _ := newTestState(t)
	transport := newFakeTransport()
	sy := NewSync(s, transport)

	const peer PeerID = "peer-1"
	target := s.MostDifficultBlock().CumulativePow + 1000
	sy.OnPeerAnnounce(peer, "hash-a", target, 0)
	sy.OnPeerAnnounce(peer, "hash-b", target, 1)
	require.Len(t, transport.briefSent, 1)
}

// A peer offering a chain with no shared ancestor is punished once the
// brief response completes, rather than accepted blindly.
func TestBriefResponseWithNoForkPointIsPunished(t *testing.T) {
	s, _, _ := newTestState(t)
	transport := newFakeTransport()
	sy := NewSync(s, transport)

	const peer PeerID = "peer-1"
	target := s.MostDifficultBlock().CumulativePow + 1000
	sy.OnPeerAnnounce(peer, "unknown-hash", target, 0)

	orphan := mineHeader(&types.Header{ID: 999, PreHash: "nowhere", UTC: 1, ZeroBits: testZeroBits})
	sy.OnBriefResponse(peer, []*types.Header{orphan}, true, 0)

	reason, punished := transport.punished[peer]
	require.True(t, punished)
	require.Contains(t, reason, "no known ancestor")
}
