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

// Package chain holds the chain state, validation pipeline, and sync
// protocol: the authoritative in-memory indices, mutated only from the
// dispatcher goroutine, plus the apply/rollback/switch_chain machinery that
// keeps the persistent store in lock-step.
package chain

import (
	"sort"
	"sync"

	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/config"
	"github.com/askchain/node/log"
	"github.com/askchain/node/storage/database"
	metrics "github.com/rcrowley/go-metrics"
)

var logger = log.NewModuleLogger(log.ChainState)

var (
	metricAppliedBlocks  = metrics.NewRegisteredCounter("chain/blocks/applied", nil)
	metricRejectedTx     = metrics.NewRegisteredCounter("chain/tx/rejected", nil)
	metricRollbackDepth  = metrics.NewRegisteredCounter("chain/rollback/depth", nil)
)

// blockJournal is the per-block undo log: everything apply touched,
// captured before mutation, so rollback can restore it verbatim instead of
// recomputing state.
type blockJournal struct {
	hash     string
	parent   string
	accounts map[uint64]*types.Account // nil value means the id did not exist before this block
	topics   map[string]*types.Topic   // nil value means the key did not exist before this block
	txIDs    []string
	preNextAccountID uint64
	sendFees uint64 // sum of send fees collected this block; credited to the miner alongside Emission
}

// State holds the chain's authoritative indices plus the rollback journal.
// Every method assumes single-writer discipline (the
// dispatcher goroutine) except Snapshot, which the miner goroutine calls
// concurrently.
type State struct {
	mu sync.RWMutex

	store *database.Manager

	curBlock           *types.Block
	mostDifficultBlock *types.Block

	blocksByHash    map[string]*types.Block
	childrenByHash  map[string][]string
	activeChainByID map[uint64]string

	accountsByID     map[uint64]*types.Account
	accountsByPubkey map[string]*types.Account
	accountsByName   map[string]*types.Account
	richness         []uint64 // account ids, sorted by balance descending

	topics map[string]*types.Topic

	seenTxIDs map[string]string // tx id -> block hash, scoped to the active chain

	nextAccountID uint64

	journal map[string]*blockJournal // by block hash
}

// NewState builds an empty Chain State rooted at genesis. genesis must have
// ID 0 and PreHash "".
func NewState(store *database.Manager, genesis *types.Block) (*State, error) {
	s := &State{
		store:            store,
		blocksByHash:     make(map[string]*types.Block),
		childrenByHash:   make(map[string][]string),
		activeChainByID:  make(map[uint64]string),
		accountsByID:     make(map[uint64]*types.Account),
		accountsByPubkey: make(map[string]*types.Account),
		accountsByName:   make(map[string]*types.Account),
		topics:           make(map[string]*types.Topic),
		seenTxIDs:        make(map[string]string),
		journal:          make(map[string]*blockJournal),
		nextAccountID:    0,
	}
	if genesis.Hash == "" {
		genesis.Hash = genesis.ComputeHash()
	}
	s.blocksByHash[genesis.Hash] = genesis
	s.activeChainByID[genesis.ID] = genesis.Hash
	s.curBlock = genesis
	s.mostDifficultBlock = genesis
	if store != nil {
		batch := store.NewBatch()
		data, err := types.EncodeBlock(genesis)
		if err != nil {
			return nil, err
		}
		if err := store.WriteBlock(batch, genesis.Hash, data); err != nil {
			return nil, err
		}
		if err := store.WriteTip(batch, genesis.Hash); err != nil {
			return nil, err
		}
		if err := batch.Write(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Snapshot is the read-only view the mining loop latches at the start of
// each attempt. It is a shallow copy; the returned Tip block must not be
// mutated by the caller.
type Snapshot struct {
	Tip      *types.Block
	ZeroBits uint32
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Tip: s.curBlock, ZeroBits: s.expectedZeroBits(s.curBlock)}
}

// Tip returns the current active-chain tip.
func (s *State) Tip() *types.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.curBlock
}

// MostDifficultBlock returns the highest cumulative-PoW fully validated
// block seen, which may sit on an abandoned branch relative to the tip only
// in the instant between validating it and switch_chain completing.
func (s *State) MostDifficultBlock() *types.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mostDifficultBlock
}

// BlockByHash looks up any known block, active chain or not.
func (s *State) BlockByHash(hash string) (*types.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocksByHash[hash]
	return b, ok
}

// AccountByID, AccountByPubkey, AccountByName resolve the three independent
// account indices.
func (s *State) AccountByID(id uint64) (*types.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accountsByID[id]
	return a, ok
}

func (s *State) AccountByPubkey(pubkey string) (*types.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accountsByPubkey[pubkey]
	return a, ok
}

func (s *State) AccountByName(name string) (*types.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accountsByName[name]
	return a, ok
}

// RichestAccounts returns up to n account ids ordered by balance descending,
// the read side of the richness index.
func (s *State) RichestAccounts(n int) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > len(s.richness) {
		n = len(s.richness)
	}
	out := make([]uint64, n)
	copy(out, s.richness[:n])
	return out
}

func (s *State) TopicByKey(key string) (*types.Topic, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.topics[key]
	return t, ok
}

// TxApplied reports whether txID already sits in an applied block on the
// active chain.
func (s *State) TxApplied(txID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seenTxIDs[txID]
	return ok
}

// --- mutation helpers, all assume the caller already holds s.mu ----------

func (s *State) rankInsert(id uint64) {
	bal := s.accountsByID[id].Balance
	i := sort.Search(len(s.richness), func(i int) bool {
		return s.accountsByID[s.richness[i]].Balance <= bal
	})
	s.richness = append(s.richness, 0)
	copy(s.richness[i+1:], s.richness[i:])
	s.richness[i] = id
}

// rebuildRank re-sorts the richness index from scratch; used after a
// rollback touches an unpredictable number of balances.
func (s *State) rebuildRank() {
	ids := make([]uint64, 0, len(s.accountsByID))
	for id := range s.accountsByID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		bi, bj := s.accountsByID[ids[i]].Balance, s.accountsByID[ids[j]].Balance
		if bi != bj {
			return bi > bj
		}
		return ids[i] < ids[j]
	})
	s.richness = ids
}

// touchAccount records id's pre-mutation value (or nil if it doesn't exist
// yet) in j the first time this block touches it.
func touchAccount(j *blockJournal, s *State, id uint64) {
	if _, ok := j.accounts[id]; ok {
		return
	}
	if a, ok := s.accountsByID[id]; ok {
		j.accounts[id] = a.Clone()
	} else {
		j.accounts[id] = nil
	}
}

func touchTopic(j *blockJournal, s *State, key string) {
	if _, ok := j.topics[key]; ok {
		return
	}
	if t, ok := s.topics[key]; ok {
		j.topics[key] = t.Clone()
	} else {
		j.topics[key] = nil
	}
}

func (s *State) putAccount(a *types.Account) {
	s.accountsByID[a.ID] = a
	s.accountsByPubkey[a.Pubkey] = a
	s.accountsByName[a.Name] = a
}

// addChild records childHash under parentHash's children list, skipping a
// duplicate add: a block recorded once as a stale sibling and later replayed
// through applyLocked (after its branch wins a fork) must not appear twice.
func (s *State) addChild(parentHash, childHash string) {
	for _, h := range s.childrenByHash[parentHash] {
		if h == childHash {
			return
		}
	}
	s.childrenByHash[parentHash] = append(s.childrenByHash[parentHash], childHash)
}

func (s *State) deleteAccount(a *types.Account) {
	delete(s.accountsByID, a.ID)
	delete(s.accountsByPubkey, a.Pubkey)
	delete(s.accountsByName, a.Name)
}

// SeedGenesisAccount installs an account directly into the index without
// going through a register tx, for the one or two accounts the genesis
// block itself must pre-populate (e.g. the referrer every first real
// "register" tx needs). Only valid before any block above genesis has been
// applied.
func (s *State) SeedGenesisAccount(a *types.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putAccount(a)
	if a.ID >= s.nextAccountID {
		s.nextAccountID = a.ID + 1
	}
	s.rebuildRank()
	if s.store != nil {
		batch := s.store.NewBatch()
		data, err := types.EncodeAccount(a)
		if err != nil {
			logger.Crit("failed to encode genesis account", "err", err)
		}
		if err := s.store.WriteAccount(batch, a.ID, data); err != nil {
			logger.Crit("failed to persist genesis account", "err", err)
		}
		if err := batch.Write(); err != nil {
			logger.Crit("failed to commit genesis account batch", "err", err)
		}
	}
}
