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

package types

// TopicLifeTime is the fixed number of blocks a topic survives after creation.
const TopicLifeTime = 4320

// Topic is a discussion thread with an attached reward pool.
// Key is the hash of the new_topic transaction that created it.
type Topic struct {
	Key       string          `json:"key"`
	OwnerPubkey string        `json:"owner_pubkey"`
	Reward    uint64          `json:"reward"`
	BlockID   uint64          `json:"block_id"`
	ReplyList []string        `json:"reply_list"` // tx ids, in arrival order
	ReplySet  map[string]bool `json:"-"`          // derived from ReplyList on load
}

// Expired reports whether the topic's lifetime has elapsed as of curBlockID:
// a topic exists for exactly TopicLifeTime blocks after creation.
func (t *Topic) Expired(curBlockID uint64) bool {
	return t.BlockID+TopicLifeTime <= curBlockID
}

// HasReply reports whether a reply with the given tx id already exists in
// this topic, used to validate a reward_to reference.
func (t *Topic) HasReply(txID string) bool {
	if t.ReplySet != nil {
		return t.ReplySet[txID]
	}
	for _, id := range t.ReplyList {
		if id == txID {
			return true
		}
	}
	return false
}

// AddReply appends a reply id and keeps ReplySet in sync.
func (t *Topic) AddReply(txID string) {
	t.ReplyList = append(t.ReplyList, txID)
	if t.ReplySet == nil {
		t.ReplySet = make(map[string]bool, len(t.ReplyList))
	}
	t.ReplySet[txID] = true
}

// RemoveLastReply undoes the most recent AddReply, used by rollback.
func (t *Topic) RemoveLastReply() {
	if len(t.ReplyList) == 0 {
		return
	}
	last := t.ReplyList[len(t.ReplyList)-1]
	t.ReplyList = t.ReplyList[:len(t.ReplyList)-1]
	delete(t.ReplySet, last)
}

// Clone returns a deep copy for the rollback journal.
func (t *Topic) Clone() *Topic {
	cp := *t
	cp.ReplyList = append([]string(nil), t.ReplyList...)
	cp.ReplySet = make(map[string]bool, len(t.ReplySet))
	for k, v := range t.ReplySet {
		cp.ReplySet[k] = v
	}
	return &cp
}
