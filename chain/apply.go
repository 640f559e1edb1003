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
	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/config"
)

// Apply validates block and, if it extends the current tip, applies it
// directly. A block that does not extend the current tip -- any block whose
// parent is not the tip, whatever its height -- is routed to applyCompeting instead
// of being applied in place, so it is judged by cumulative PoW and, if it
// wins, replayed from the correct fork point rather than layered on top of
// whatever the current (unrelated) tip already mutated. nowUnix is the
// wall-clock reading used for the "not from the future" check; pass
// block.UTC for a block this node just mined.
func (s *State) Apply(block *types.Block, nowUnix int64) *ValidationError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if block.PreHash == s.curBlock.Hash {
		return s.applyLocked(block, nowUnix)
	}
	return s.applyCompeting(block, nowUnix)
}

// applyCompeting handles a block whose parent is not the current tip: most
// often a competing miner's block at the same height as the tip. It is
// promoted only if its cumulative PoW strictly exceeds the current tip's;
// ties and lesser forks keep the current tip (monotonic stickiness) with
// the block merely recorded as a known sibling, so a later block extending
// it still has a parent to resolve against. A winning block is replayed via
// switchChainLocked, which rolls back to the fork point first -- never
// applied directly against whatever the current, unrelated tip left behind.
func (s *State) applyCompeting(block *types.Block, nowUnix int64) *ValidationError {
	parent, ok := s.blocksByHash[block.PreHash]
	if !ok {
		return newMalformed(ReasonMalformed, "unknown parent block")
	}
	if verr := validateBlockHeader(s, block, parent, nowUnix); verr != nil {
		return verr
	}
	candidatePow := parent.CumulativePow + types.PowPerBlock(block.ZeroBits)

	if candidatePow <= s.curBlock.CumulativePow {
		block.CumulativePow = candidatePow
		s.blocksByHash[block.Hash] = block
		s.addChild(block.PreHash, block.Hash)
		if candidatePow > s.mostDifficultBlock.CumulativePow {
			s.mostDifficultBlock = block
		}
		return newStale("competing block does not exceed the current tip's cumulative pow")
	}

	forkID, suffix, ok := s.pendingForkSuffix(block)
	if !ok {
		return newMalformed(ReasonMalformed, "competing block's ancestry does not connect to the active chain")
	}
	if _, verr := s.switchChainLocked(forkID, suffix, nowUnix); verr != nil {
		return verr
	}
	return nil
}

// pendingForkSuffix walks block's PreHash ancestry back to the fork point
// with the active chain, returning that fork's id and the full run of
// blocks from just above it through block (oldest first). Every ancestor in
// that run was previously only recorded as a known sibling (the stale branch
// of applyCompeting stops short of applying), so switchChainLocked must
// replay all of them, not just block itself.
func (s *State) pendingForkSuffix(block *types.Block) (uint64, []*types.Block, bool) {
	var suffix []*types.Block
	cur := block
	for {
		suffix = append([]*types.Block{cur}, suffix...)
		parent, ok := s.blocksByHash[cur.PreHash]
		if !ok {
			return 0, nil, false
		}
		if active, ok := s.activeChainByID[parent.ID]; ok && active == parent.Hash {
			return parent.ID, suffix, true
		}
		cur = parent
	}
}

// applyLocked validates block against parent (block.PreHash, required to be
// the current tip -- see Apply/applyCompeting) and, if it passes, mutates
// every index and persists the result in one batch. Used directly by
// switch_chain when re-applying a journaled suffix.
func (s *State) applyLocked(block *types.Block, nowUnix int64) *ValidationError {
	parent, ok := s.blocksByHash[block.PreHash]
	if !ok {
		return newMalformed(ReasonMalformed, "unknown parent block")
	}
	if verr := validateBlockHeader(s, block, parent, nowUnix); verr != nil {
		metricRejectedTx.Inc(1)
		return verr
	}

	j := &blockJournal{
		hash:             block.Hash,
		parent:           block.PreHash,
		accounts:         make(map[uint64]*types.Account),
		topics:           make(map[string]*types.Topic),
		preNextAccountID: s.nextAccountID,
	}

	for _, tx := range block.TxList {
		if verr := s.applyTx(j, tx, block); verr != nil {
			s.undoJournal(j)
			metricRejectedTx.Inc(1)
			return verr
		}
		j.txIDs = append(j.txIDs, tx.ID)
		s.seenTxIDs[tx.ID] = block.Hash
	}

	s.procTopicExpired(j, block.ID)
	s.rewardMiner(j, block)

	block.CumulativePow = parent.CumulativePow + types.PowPerBlock(block.ZeroBits)

	s.blocksByHash[block.Hash] = block
	s.activeChainByID[block.ID] = block.Hash
	s.addChild(block.PreHash, block.Hash)
	s.curBlock = block
	if block.CumulativePow > s.mostDifficultBlock.CumulativePow {
		s.mostDifficultBlock = block
	}
	s.rebuildRank()
	s.journal[block.Hash] = j

	if s.store != nil {
		if err := s.persistApply(j, block); err != nil {
			logger.Crit("failed to persist applied block", "hash", block.Hash, "err", err)
		}
	}
	metricAppliedBlocks.Inc(1)
	logger.Info("applied block", "id", block.ID, "hash", block.Hash, "txs", len(block.TxList))
	return nil
}

func (s *State) persistApply(j *blockJournal, block *types.Block) error {
	batch := s.store.NewBatch()
	data, err := types.EncodeBlock(block)
	if err != nil {
		return err
	}
	if err := s.store.WriteBlock(batch, block.Hash, data); err != nil {
		return err
	}
	if err := s.store.WriteTip(batch, block.Hash); err != nil {
		return err
	}
	children := s.childrenByHash[block.PreHash]
	if err := s.store.WriteChildren(batch, block.PreHash, children); err != nil {
		return err
	}
	for id := range j.accounts {
		a, ok := s.accountsByID[id]
		if !ok {
			continue // deleted by this block, nothing to persist (never happens today: accounts never delete)
		}
		buf, err := types.EncodeAccount(a)
		if err != nil {
			return err
		}
		if err := s.store.WriteAccount(batch, id, buf); err != nil {
			return err
		}
	}
	for key := range j.topics {
		t, ok := s.topics[key]
		if !ok {
			if err := s.store.DeleteTopic(batch, key); err != nil {
				return err
			}
			continue
		}
		buf, err := types.EncodeTopic(t)
		if err != nil {
			return err
		}
		if err := s.store.WriteTopic(batch, key, buf); err != nil {
			return err
		}
	}
	return batch.Write()
}

// applyTx validates and applies one transaction against the in-progress
// block, mutating journal j on success; no state is mutated on failure.
func (s *State) applyTx(j *blockJournal, tx *types.Tx, block *types.Block) *ValidationError {
	if verr := validateTxEnvelope(s, tx, block.UTC); verr != nil {
		return verr
	}
	switch d := tx.Data.(type) {
	case *types.RegisterData:
		return s.applyRegister(j, tx, d, block)
	case *types.SendData:
		return s.applySend(j, tx, d, block)
	case *types.NewTopicData:
		return s.applyNewTopic(j, tx, d, block)
	case *types.ReplyData:
		return s.applyReply(j, tx, d, block)
	default:
		return newMalformed(ReasonMalformed, "unknown tx payload type")
	}
}

func (s *State) applyRegister(j *blockJournal, tx *types.Tx, d *types.RegisterData, block *types.Block) *ValidationError {
	if !types.IsValidName(d.Name) {
		return newMalformed(ReasonMalformed, "register name fails charset/length rule")
	}
	if _, exists := s.accountsByName[d.Name]; exists {
		return newConflict(ReasonDuplicateName, "account name already registered")
	}
	if _, exists := s.accountsByPubkey[d.Pubkey]; exists {
		return newConflict(ReasonDuplicatePubkey, "account pubkey already registered")
	}
	referrer, ok := s.accountsByPubkey[d.ReferrerPubkey]
	if !ok {
		return newConflict(ReasonUnknownAccount, "referrer account does not exist")
	}
	if referrer.Balance < config.RegistrationFee {
		return newConflict(ReasonInsufficientBalance, "referrer cannot cover registration fee")
	}

	touchAccount(j, s, referrer.ID)
	referrer = referrer.Clone()
	referrer.Balance -= config.RegistrationFee
	referrer.AddHistory(types.HistorySendOut, d.Pubkey, config.RegistrationFee, block.ID, tx.ID)
	s.putAccount(referrer)

	id := s.nextAccountID
	s.nextAccountID++
	touchAccount(j, s, id)
	acct := &types.Account{ID: id, Name: d.Name, Pubkey: d.Pubkey, Avatar: d.Avatar, Balance: 0, RegBlockID: block.ID}
	acct.AddHistory(types.HistoryRegister, d.ReferrerPubkey, 0, block.ID, tx.ID)
	s.putAccount(acct)
	return nil
}

func (s *State) applySend(j *blockJournal, tx *types.Tx, d *types.SendData, block *types.Block) *ValidationError {
	if d.Amount == 0 {
		return newMalformed(ReasonInvalidAmount, "send amount must be positive")
	}
	sender, ok := s.accountsByPubkey[tx.Pubkey]
	if !ok {
		return newConflict(ReasonUnknownAccount, "sender account does not exist")
	}
	receiver, ok := s.accountsByPubkey[d.ToPubkey]
	if !ok {
		return newConflict(ReasonUnknownAccount, "receiver account does not exist")
	}
	need := d.Amount + config.SendFee
	if sender.Balance < need {
		return newConflict(ReasonInsufficientBalance, "sender balance cannot cover amount+fee")
	}

	touchAccount(j, s, sender.ID)
	touchAccount(j, s, receiver.ID)

	sender = sender.Clone()
	sender.Balance -= need
	sender.AddHistory(types.HistorySendOut, d.ToPubkey, d.Amount, block.ID, tx.ID)
	s.putAccount(sender)

	receiver = receiver.Clone()
	receiver.Balance += d.Amount
	receiver.AddHistory(types.HistorySendIn, tx.Pubkey, d.Amount, block.ID, tx.ID)
	s.putAccount(receiver)

	j.sendFees += config.SendFee
	return nil
}

func (s *State) applyNewTopic(j *blockJournal, tx *types.Tx, d *types.NewTopicData, block *types.Block) *ValidationError {
	author, ok := s.accountsByPubkey[tx.Pubkey]
	if !ok {
		return newConflict(ReasonUnknownAccount, "topic author account does not exist")
	}
	need := d.Reward + config.NewTopicFee
	if author.Balance < need {
		return newConflict(ReasonInsufficientBalance, "author balance cannot cover reward+fee")
	}
	if _, exists := s.topics[tx.ID]; exists {
		return newConflict(ReasonMalformed, "topic key already in use")
	}

	touchAccount(j, s, author.ID)
	author = author.Clone()
	author.Balance -= need
	author.AddHistory(types.HistoryTopicLock, tx.ID, d.Reward, block.ID, tx.ID)
	s.putAccount(author)

	touchTopic(j, s, tx.ID)
	s.topics[tx.ID] = &types.Topic{Key: tx.ID, OwnerPubkey: tx.Pubkey, Reward: d.Reward, BlockID: block.ID}
	return nil
}

func (s *State) applyReply(j *blockJournal, tx *types.Tx, d *types.ReplyData, block *types.Block) *ValidationError {
	topic, ok := s.topics[d.TopicKey]
	if !ok {
		return newConflict(ReasonTopicNotFound, "topic does not exist")
	}
	if topic.Expired(block.ID) {
		return newConflict(ReasonTopicExpired, "topic has expired")
	}
	replier, ok := s.accountsByPubkey[tx.Pubkey]
	if !ok {
		return newConflict(ReasonUnknownAccount, "replier account does not exist")
	}
	if replier.Balance < config.ReplyFee {
		return newConflict(ReasonInsufficientBalance, "replier cannot cover reply fee")
	}
	var awarded *types.Account
	if d.RewardToID != "" {
		if !topic.HasReply(d.RewardToID) {
			return newConflict(ReasonUnknownReplyTarget, "reward_to does not reference an existing reply")
		}
		if topic.Reward < d.RewardAmount {
			return newConflict(ReasonInsufficientBalance, "topic pool cannot cover reward amount")
		}
		rewardTx, ok := s.blockTxByID(d.RewardToID)
		if !ok {
			return newConflict(ReasonUnknownReplyTarget, "reward_to tx is not resolvable")
		}
		awarded, ok = s.accountsByPubkey[rewardTx.Pubkey]
		if !ok {
			return newConflict(ReasonUnknownAccount, "awarded account no longer exists")
		}
	}

	touchAccount(j, s, replier.ID)
	replier = replier.Clone()
	replier.Balance -= config.ReplyFee
	replier.AddHistory(types.HistoryReplyFee, d.TopicKey, config.ReplyFee, block.ID, tx.ID)
	s.putAccount(replier)

	touchTopic(j, s, topic.Key)
	topic = topic.Clone()
	topic.AddReply(tx.ID)
	if awarded != nil {
		topic.Reward -= d.RewardAmount
		touchAccount(j, s, awarded.ID)
		awarded = awarded.Clone()
		awarded.Balance += d.RewardAmount
		awarded.AddHistory(types.HistoryAwardIn, d.TopicKey, d.RewardAmount, block.ID, tx.ID)
		s.putAccount(awarded)
		replier = s.accountsByPubkey[tx.Pubkey].Clone()
		replier.AddHistory(types.HistoryAwardOut, d.TopicKey, d.RewardAmount, block.ID, tx.ID)
		s.putAccount(replier)
	}
	s.topics[topic.Key] = topic
	return nil
}

// blockTxByID resolves a tx id to the Tx struct it belongs to by scanning
// the block it was applied in. Reply rewards reference replies from the
// same topic, which by construction sit somewhere on the active chain.
func (s *State) blockTxByID(txID string) (*types.Tx, bool) {
	hash, ok := s.seenTxIDs[txID]
	if !ok {
		return nil, false
	}
	block, ok := s.blocksByHash[hash]
	if !ok {
		return nil, false
	}
	for _, tx := range block.TxList {
		if tx.ID == txID {
			return tx, true
		}
	}
	return nil, false
}

// procTopicExpired runs the topic-expiry sweep inline with apply: every
// applied block is a new tip, so there is no separate timer. Nothing else
// sweeps topics; while no block is applied, expired topics stay in place.
// The unawarded residue returns to the topic's owner, not
// the miner (see DESIGN.md for the reasoning).
func (s *State) procTopicExpired(j *blockJournal, curBlockID uint64) {
	for key, topic := range s.topics {
		if !topic.Expired(curBlockID) {
			continue
		}
		touchTopic(j, s, key)
		if topic.Reward > 0 {
			if owner, ok := s.accountsByPubkey[topic.OwnerPubkey]; ok {
				touchAccount(j, s, owner.ID)
				owner = owner.Clone()
				owner.Balance += topic.Reward
				owner.AddHistory(types.HistoryTopicRefund, key, topic.Reward, curBlockID, "")
				s.putAccount(owner)
			}
		}
		delete(s.topics, key)
	}
}

// rewardMiner credits the block's miner with the fixed emission plus every
// send fee collected in this block. Registration, new_topic, and reply fees
// are not included here -- they are burned, not paid to the miner, per the
// conservation invariant "Σ balances + Σ topic pools = cumulative emission
// - burned fees".
func (s *State) rewardMiner(j *blockJournal, block *types.Block) {
	miner, ok := s.accountsByPubkey[block.MinerPubkey]
	if !ok {
		// Unregistered miner pubkey: emission is simply not credited
		// anywhere, matching the "malformed data must never crash the
		// node" rule; this case should already have been caught upstream
		// by requiring miners to register before mining, so it is logged
		// loudly rather than silently dropped.
		logger.Warn("mined block credits unregistered miner pubkey", "pubkey", block.MinerPubkey)
		return
	}
	reward := types.Emission + j.sendFees
	touchAccount(j, s, miner.ID)
	miner = miner.Clone()
	miner.Balance += reward
	miner.AddHistory(types.HistoryMiningReward, "", reward, block.ID, "")
	s.putAccount(miner)
}

// undoJournal reverts every mutation recorded in j, used when a later tx in
// the same in-progress block fails so the whole block is rejected
// atomically: a block is applied as one unit, never partially.
func (s *State) undoJournal(j *blockJournal) {
	for id, before := range j.accounts {
		if before == nil {
			if a, ok := s.accountsByID[id]; ok {
				s.deleteAccount(a)
			}
			continue
		}
		s.putAccount(before)
	}
	for key, before := range j.topics {
		if before == nil {
			delete(s.topics, key)
			continue
		}
		s.topics[key] = before
	}
	for _, txID := range j.txIDs {
		delete(s.seenTxIDs, txID)
	}
	s.nextAccountID = j.preNextAccountID
	s.rebuildRank()
}
