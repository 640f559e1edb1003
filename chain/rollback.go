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

import "github.com/askchain/node/blockchain/types"

// Rollback reverts the active chain tip back to height targetID, undoing
// tx effects in reverse order via the per-block journal. A journal miss for
// a block still above targetID is a fatal state error: the node refuses to
// continue rather than risk diverging silently.
func (s *State) Rollback(targetID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbackLocked(targetID)
}

func (s *State) rollbackLocked(targetID uint64) {
	for s.curBlock.ID > targetID {
		cur := s.curBlock
		j, ok := s.journal[cur.Hash]
		if !ok {
			logger.Crit("missing rollback journal for active block", "id", cur.ID, "hash", cur.Hash)
		}
		s.undoJournal(j)
		delete(s.journal, cur.Hash)
		delete(s.activeChainByID, cur.ID)

		parent, ok := s.blocksByHash[j.parent]
		if !ok {
			logger.Crit("rollback parent block missing from index", "parent_hash", j.parent)
		}
		s.curBlock = parent
		metricRollbackDepth.Inc(1)
	}
	if s.store != nil {
		batch := s.store.NewBatch()
		if err := s.store.WriteTip(batch, s.curBlock.Hash); err != nil {
			logger.Crit("failed to persist tip after rollback", "err", err)
		}
		if err := batch.Write(); err != nil {
			logger.Crit("failed to commit rollback batch", "err", err)
		}
	}
	logger.Info("rolled back chain", "to_id", s.curBlock.ID, "hash", s.curBlock.Hash)
}

// SwitchChain atomically replaces the suffix above forkID with newSuffix, a
// contiguous, already-fork-located run of blocks ordered oldest-first. It
// returns the id of the highest successfully applied block on the chain
// that is active once SwitchChain returns -- the new tip on success, or the
// restored original tip if newSuffix fails partway through.
func (s *State) SwitchChain(forkID uint64, newSuffix []*types.Block, nowUnix int64) (uint64, *ValidationError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switchChainLocked(forkID, newSuffix, nowUnix)
}

// switchChainLocked is SwitchChain's body, assuming s.mu is already held.
// Used directly by applyCompeting, which has already taken the lock to
// compare cumulative PoW before deciding to switch.
func (s *State) switchChainLocked(forkID uint64, newSuffix []*types.Block, nowUnix int64) (uint64, *ValidationError) {
	if len(newSuffix) == 0 {
		return s.curBlock.ID, nil
	}

	originalSuffix := s.collectSuffixLocked(forkID)

	s.rollbackLocked(forkID)

	for i, block := range newSuffix {
		if verr := s.applyLocked(block, nowUnix); verr != nil {
			logger.Warn("switch_chain candidate suffix rejected, restoring original chain",
				"failed_at", i, "reason", verr.Reason.String())
			s.rollbackLocked(forkID)
			for _, ob := range originalSuffix {
				if rverr := s.applyLocked(ob, nowUnix); rverr != nil {
					logger.Crit("failed to restore original chain suffix after a failed switch_chain", "err", rverr)
				}
			}
			return s.curBlock.ID, verr
		}
	}
	logger.Info("switched active chain", "fork_id", forkID, "new_tip", s.curBlock.ID)
	return s.curBlock.ID, nil
}

// collectSuffixLocked returns every block strictly above forkID on the
// current active chain, oldest-first, so it can be replayed if a candidate
// suffix turns out to be invalid.
func (s *State) collectSuffixLocked(forkID uint64) []*types.Block {
	var out []*types.Block
	for id := forkID + 1; id <= s.curBlock.ID; id++ {
		hash, ok := s.activeChainByID[id]
		if !ok {
			break
		}
		out = append(out, s.blocksByHash[hash])
	}
	return out
}

// ForkPoint returns the height of the first hash in candidateChain, in the
// order given, that sits on the active chain; for an oldest-first list that
// is the lowest common height. Used by the sync protocol to locate where a
// peer's advertised chain diverges from the local one.
func (s *State) ForkPoint(candidateChain []string) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, hash := range candidateChain {
		if b, ok := s.blocksByHash[hash]; ok {
			if active, ok := s.activeChainByID[b.ID]; ok && active == hash {
				return b.ID, true
			}
		}
	}
	return 0, false
}
