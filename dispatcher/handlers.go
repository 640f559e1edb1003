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
	"time"

	"github.com/otiai10/copy"

	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/chain"
	"github.com/askchain/node/config"
)

func (d *Dispatcher) handlePeer(m PeerMessage) {
	now := time.Now().Unix()
	switch m.Kind {
	case MsgBlockBroadcast:
		d.handleBlockBroadcast(m, now)
	case MsgTxBroadcast:
		if d.txPool.Add(m.Tx) {
			d.pendingTxs = append(d.pendingTxs, m.Tx)
		}
	case MsgChainBriefReq:
		d.handleBriefRequest(m)
	case MsgChainBriefResp:
		d.sync.OnBriefResponse(m.Peer, m.Headers, m.Done, now)
	case MsgChainDetailReq:
		d.handleDetailRequest(m)
	case MsgChainDetailResp:
		tipBefore := d.state.Tip().Hash
		d.sync.OnDetailResponse(m.Peer, m.Bodies, now)
		if d.miner != nil && d.state.Tip().Hash != tipBefore {
			d.miner.NewWork()
		}
	case MsgPeerAnnounce:
		d.sync.OnPeerAnnounce(m.Peer, m.TipHash, m.CumulativePow, now)
	case MsgPing:
		if m.VersionMajor != config.ProtocolVersionMajor || m.VersionMinor != config.ProtocolVersionMinor {
			d.network.PunishPeer(m.Peer, "protocol version mismatch")
			return
		}
		if err := d.network.SendPong(m.Peer); err != nil {
			logger.Warn("failed to send pong", "peer", m.Peer, "err", err)
		}
	case MsgPong:
		// no state to update; presence alone keeps the peer link considered live.
	}
}

func (d *Dispatcher) handleBlockBroadcast(m PeerMessage, now int64) {
	tipBefore := d.state.Tip().Hash
	verr := d.state.Apply(m.Block, now)
	if verr != nil {
		if verr.Punish && m.Peer != LocalPeer {
			d.network.PunishPeer(m.Peer, verr.Error())
		}
		logger.Debug("rejected broadcast block", "peer", m.Peer, "reason", verr.Reason.String())
		return
	}
	d.txPool.Remove(txIDs(m.Block.TxList))
	if d.state.Tip().Hash != tipBefore {
		d.pendingBlocks = append(d.pendingBlocks, m.Block)
		if d.miner != nil {
			d.miner.NewWork()
		}
		d.notifyExchangeDeposits(m.Block)
		d.notifyAccountWatcher(m.Block)
	}
}

// notifyAccountWatcher pushes every account touched by b's txs to the
// attached AccountWatcher, the asynchronous half of subscribe_account. A
// no-op if no client server is attached.
func (d *Dispatcher) notifyAccountWatcher(b *types.Block) {
	if d.watcher == nil {
		return
	}
	seen := make(map[string]bool)
	notify := func(pubkey string) {
		if pubkey == "" || seen[pubkey] {
			return
		}
		seen[pubkey] = true
		if acct, ok := d.state.AccountByPubkey(pubkey); ok {
			d.watcher.AccountChanged(acct)
		}
	}
	for _, tx := range b.TxList {
		notify(tx.Pubkey)
		switch data := tx.Data.(type) {
		case *types.RegisterData:
			notify(data.Pubkey)
		case *types.SendData:
			notify(data.ToPubkey)
		case *types.ReplyData:
			if topic, ok := d.state.TopicByKey(data.TopicKey); ok {
				notify(topic.OwnerPubkey)
			}
		}
	}
}

func txIDs(txs []*types.Tx) []string {
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	return ids
}

func (d *Dispatcher) notifyExchangeDeposits(b *types.Block) {
	if d.exch == nil || d.exchangeAccountPubkey == "" {
		return
	}
	for _, tx := range b.TxList {
		send, ok := tx.Data.(*types.SendData)
		if !ok || send.ToPubkey != d.exchangeAccountPubkey {
			continue
		}
		d.exch.NotifyDeposit(send.ToPubkey, send.Amount, tx.ID)
	}
}

// handleBriefRequest answers a peer's CHAIN_BRIEF_REQ: headers from one past
// FromHash up to the active tip, in chunks of config.BriefChunkSize.
func (d *Dispatcher) handleBriefRequest(m PeerMessage) {
	from, ok := d.state.BlockByHash(m.FromHash)
	if !ok {
		d.network.PunishPeer(m.Peer, "brief request references unknown hash")
		return
	}
	tip := d.state.Tip()
	var headers []*types.Header
	for id := from.ID + 1; id <= tip.ID; id++ {
		b, ok := d.blockAtActiveHeight(id)
		if !ok {
			break
		}
		headers = append(headers, b.ToHeader())
	}
	for i := 0; i < len(headers); i += config.BriefChunkSize {
		end := i + config.BriefChunkSize
		if end > len(headers) {
			end = len(headers)
		}
		done := end == len(headers)
		if err := d.network.SendChainBriefResponse(m.Peer, headers[i:end], done); err != nil {
			logger.Warn("failed to send brief response", "peer", m.Peer, "err", err)
			return
		}
	}
	if len(headers) == 0 {
		if err := d.network.SendChainBriefResponse(m.Peer, nil, true); err != nil {
			logger.Warn("failed to send empty brief response", "peer", m.Peer, "err", err)
		}
	}
}

// handleDetailRequest answers a peer's CHAIN_DETAIL_REQ: the full bodies for
// the requested hashes, which must already be known locally.
func (d *Dispatcher) handleDetailRequest(m PeerMessage) {
	bodies := make([]*types.Block, 0, len(m.Hashes))
	for _, h := range m.Hashes {
		b, ok := d.state.BlockByHash(h)
		if !ok {
			d.network.PunishPeer(m.Peer, "detail request references unknown hash")
			return
		}
		bodies = append(bodies, b)
	}
	if err := d.network.SendChainDetailResponse(m.Peer, bodies); err != nil {
		logger.Warn("failed to send detail response", "peer", m.Peer, "err", err)
	}
}

func (d *Dispatcher) blockAtActiveHeight(id uint64) (*types.Block, bool) {
	tip := d.state.Tip()
	b := tip
	for b.ID > id {
		parent, ok := d.state.BlockByHash(b.PreHash)
		if !ok {
			return nil, false
		}
		b = parent
	}
	if b.ID != id {
		return nil, false
	}
	return b, true
}

func (d *Dispatcher) handleClient(m ClientMessage) {
	switch m.Kind {
	case ClientRegister, ClientSend, ClientNewTopic, ClientReply:
		d.handleClientTx(m)
	case ClientQueryBalance:
		acct, ok := d.state.AccountByPubkey(m.Pubkey)
		if !ok {
			m.ReplyCh <- ClientResult{Reason: chain.ReasonUnknownAccount}
			return
		}
		m.ReplyCh <- ClientResult{Reason: chain.ReasonOK, Account: acct}
	case ClientSubscribeAccount:
		// Subscription bookkeeping (per-connection) lives in the client
		// package; the dispatcher only needs to answer the initial state.
		acct, _ := d.state.AccountByPubkey(m.Pubkey)
		m.ReplyCh <- ClientResult{Reason: chain.ReasonOK, Account: acct}
	}
}

// handleClientTx admits a client-submitted, already-signed tx into the
// shared pool; it is not applied synchronously, only picked up by the next
// mined (or peer-supplied) block. Handlers never block on chain
// application.
func (d *Dispatcher) handleClientTx(m ClientMessage) {
	if d.txPool.Add(m.Tx) {
		d.pendingTxs = append(d.pendingTxs, m.Tx)
		m.ReplyCh <- ClientResult{Reason: chain.ReasonOK}
		return
	}
	m.ReplyCh <- ClientResult{Reason: chain.ReasonDuplicateTxID}
}

func (d *Dispatcher) handleCommand(c Command) bool {
	switch c.Kind {
	case CmdStop:
		if d.miner != nil {
			d.miner.Stop()
		}
		return false
	case CmdEnableMine:
		if d.miner != nil {
			d.miner.Start()
		}
	case CmdDisableMine:
		if d.miner != nil {
			d.miner.Stop()
		}
	case CmdSetMergePoint:
		if err := copy.Copy(c.MergeFrom, c.MergeTo); err != nil {
			logger.Error("set_merge_point failed", "from", c.MergeFrom, "to", c.MergeTo, "err", err)
		}
	case CmdSetExchangeAccount:
		d.exchangeAccountPubkey = c.ExchangeAccountPubkey
	}
	return true
}
