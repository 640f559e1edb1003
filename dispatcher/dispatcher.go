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

// Package dispatcher is the single-consumer loop draining the peer,
// client, and command queues and owning the only write access to
// chain.State. Everything that mutates chain state funnels through one
// goroutine rather than a worker pool, since only one writer is ever
// needed.
package dispatcher

import (
	"time"

	metrics "github.com/rcrowley/go-metrics"

	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/chain"
	"github.com/askchain/node/log"
	"github.com/askchain/node/work"
)

var logger = log.NewModuleLogger(log.Dispatcher)

var (
	metricPeerQueueDropped   = metrics.NewRegisteredCounter("dispatcher/peerqueue/dropped", nil)
	metricClientQueueDropped = metrics.NewRegisteredCounter("dispatcher/clientqueue/dropped", nil)
)

// LocalPeer names the synthetic source of a block this node mined itself,
// so the dispatcher can run it through the exact same MsgBlockBroadcast
// handler a peer-supplied block takes.
const LocalPeer chain.PeerID = "local"

// Broadcaster fans a locally-accepted block or tx out to peers. Handlers
// never call it inline; accepted items are queued and flushed at the next
// batch boundary.
type Broadcaster interface {
	BroadcastBlock(b *types.Block)
	BroadcastTx(tx *types.Tx)
}

// PeerNetwork is everything the dispatcher needs from the peer transport
// beyond what chain.Sync already owns (chain.Transport covers the two
// outbound request kinds and punishment; this covers answering inbound
// requests other peers make of us).
type PeerNetwork interface {
	chain.Transport
	SendChainBriefResponse(peer chain.PeerID, headers []*types.Header, done bool) error
	SendChainDetailResponse(peer chain.PeerID, bodies []*types.Block) error
	SendPong(peer chain.PeerID) error
}

// ExchangeNotifier is told about a confirmed deposit into the configured
// exchange account.
type ExchangeNotifier interface {
	NotifyDeposit(toPubkey string, amount uint64, txID string)
}

// AccountWatcher is told whenever an applied block changes an account's
// state, the push side of the client protocol's subscribe_account.
// Optional: nil if no client server is attached.
type AccountWatcher interface {
	AccountChanged(acct *types.Account)
}

// PeerMsgKind enumerates the peer-protocol message kinds.
type PeerMsgKind int

const (
	MsgBlockBroadcast PeerMsgKind = iota
	MsgTxBroadcast
	MsgChainBriefReq
	MsgChainBriefResp
	MsgChainDetailReq
	MsgChainDetailResp
	MsgPeerAnnounce
	MsgPing
	MsgPong
)

// PeerMessage is one inbound item off the peer queue. Only the fields
// relevant to Kind are populated.
type PeerMessage struct {
	Peer chain.PeerID
	Kind PeerMsgKind

	Block   *types.Block
	Tx      *types.Tx
	Headers []*types.Header
	Bodies  []*types.Block
	Done    bool

	FromHash string   // CHAIN_BRIEF_REQ
	Hashes   []string // CHAIN_DETAIL_REQ

	TipHash       string // PeerAnnounce
	CumulativePow uint64 // PeerAnnounce

	VersionMajor, VersionMinor uint32 // PING
}

// ClientRequestKind enumerates the local wallet operations.
type ClientRequestKind int

const (
	ClientRegister ClientRequestKind = iota
	ClientSend
	ClientNewTopic
	ClientReply
	ClientQueryBalance
	ClientSubscribeAccount
)

// ClientMessage is one inbound item off the client queue. Register/Send/
// NewTopic/Reply carry an already-signed Tx (the client package builds and
// signs it); QueryBalance/SubscribeAccount carry only Pubkey.
type ClientMessage struct {
	Kind    ClientRequestKind
	Tx      *types.Tx
	Pubkey  string
	ReplyCh chan<- ClientResult
}

// ClientResult is the synchronous reply to a ClientMessage. Reason is
// ReasonOK on success. Account is populated for QueryBalance and
// SubscribeAccount; tx submissions leave it nil.
type ClientResult struct {
	Reason  chain.ReasonCode
	Account *types.Account
}

// CommandKind enumerates the minimal command-queue set the node supports.
type CommandKind int

const (
	CmdStop CommandKind = iota
	CmdEnableMine
	CmdDisableMine
	CmdSetMergePoint
	CmdSetExchangeAccount
)

// Command is one inbound item off the local command queue.
type Command struct {
	Kind CommandKind

	MergeFrom, MergeTo string // CmdSetMergePoint: import MergeFrom's data dir into MergeTo

	ExchangeAccountPubkey string // CmdSetExchangeAccount
}

// Dispatcher is the single writer of chain.State. All of its exported
// Enqueue* methods may be called from any goroutine; everything else runs
// only on the Run goroutine.
type Dispatcher struct {
	state   *chain.State
	sync    *chain.Sync
	miner   *work.Miner
	txPool  *txPool
	network PeerNetwork
	bcast   Broadcaster
	exch    ExchangeNotifier
	watcher AccountWatcher

	exchangeAccountPubkey string

	peerCh   chan PeerMessage
	clientCh chan ClientMessage
	cmdCh    chan Command

	pendingBlocks []*types.Block
	pendingTxs    []*types.Tx

	tickEvery time.Duration
	quit      chan struct{}
}

// New builds a Dispatcher. queueSize bounds each of the three input queues:
// a message admitted to a queue is never dropped, but one offered to a full
// queue is dropped and its Enqueue* call returns false, so callers must
// treat a full queue as a transient, retryable error rather than a fatal one.
//
// The miner is attached separately via SetMiner: work.NewMiner itself needs
// this Dispatcher's TxSource/Submitter, so the two can't be constructed in a
// single step.
func New(state *chain.State, sy *chain.Sync, network PeerNetwork, bcast Broadcaster, exch ExchangeNotifier, queueSize int, tickEvery time.Duration) *Dispatcher {
	return &Dispatcher{
		state:     state,
		sync:      sy,
		txPool:    newTxPool(),
		network:   network,
		bcast:     bcast,
		exch:      exch,
		peerCh:    make(chan PeerMessage, queueSize),
		clientCh:  make(chan ClientMessage, queueSize),
		cmdCh:     make(chan Command, queueSize),
		tickEvery: tickEvery,
		quit:      make(chan struct{}),
	}
}

// SetMiner attaches the miner this dispatcher drives with CmdEnableMine /
// CmdDisableMine and notifies via NewWork on every tip advance. Call once,
// before Run, after constructing the miner from d.TxSource()/d as Submitter.
func (d *Dispatcher) SetMiner(m *work.Miner) { d.miner = m }

// SetAccountWatcher attaches the push-notification hook subscribe_account
// uses. Set once, before Run, by whatever wires up the client server; nil
// is a valid no-op default.
func (d *Dispatcher) SetAccountWatcher(w AccountWatcher) { d.watcher = w }

// TxSource exposes the shared pool as work.TxSource for Miner construction.
func (d *Dispatcher) TxSource() work.TxSource { return d.txPool }

// SubmitMinedBlock implements work.Submitter: the miner hands a freshly
// sealed block back to the dispatcher rather than applying it itself.
func (d *Dispatcher) SubmitMinedBlock(b *types.Block) {
	d.EnqueuePeerMessage(PeerMessage{Peer: LocalPeer, Kind: MsgBlockBroadcast, Block: b})
}

func (d *Dispatcher) EnqueuePeerMessage(m PeerMessage) bool {
	select {
	case d.peerCh <- m:
		return true
	default:
		metricPeerQueueDropped.Inc(1)
		logger.Warn("peer queue full, dropping message", "peer", m.Peer, "kind", m.Kind)
		return false
	}
}

func (d *Dispatcher) EnqueueClientMessage(m ClientMessage) bool {
	select {
	case d.clientCh <- m:
		return true
	default:
		metricClientQueueDropped.Inc(1)
		logger.Warn("client queue full, dropping request", "kind", m.Kind)
		return false
	}
}

func (d *Dispatcher) EnqueueCommand(c Command) bool {
	select {
	case d.cmdCh <- c:
		return true
	default:
		logger.Warn("command queue full, dropping command", "kind", c.Kind)
		return false
	}
}

// Run drains the three queues until a CmdStop command arrives. Each pass
// takes one item from whichever queue is ready; when several are, Go's
// select picks one at random, so the order is not strict round-robin. It
// must be started in its own goroutine; it blocks.
func (d *Dispatcher) Run() {
	ticker := time.NewTicker(d.tickEvery)
	defer ticker.Stop()
	for {
		select {
		case m := <-d.peerCh:
			d.handlePeer(m)
		case m := <-d.clientCh:
			d.handleClient(m)
		case c := <-d.cmdCh:
			if !d.handleCommand(c) {
				return
			}
		case <-ticker.C:
			d.sync.Tick(time.Now().Unix())
			d.flushBroadcasts()
		case <-d.quit:
			return
		}
	}
}

func (d *Dispatcher) flushBroadcasts() {
	for _, b := range d.pendingBlocks {
		d.bcast.BroadcastBlock(b)
	}
	for _, tx := range d.pendingTxs {
		d.bcast.BroadcastTx(tx)
	}
	d.pendingBlocks = nil
	d.pendingTxs = nil
}
