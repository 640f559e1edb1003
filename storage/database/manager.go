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

package database

import (
	"encoding/binary"
	"encoding/json"
)

// Key prefixes for the flat keyspace this store multiplexes over one kv backend.
const (
	prefixChild   = "child:"
	prefixBlock   = "block:"
	prefixAccount = "account:"
	prefixTopic   = "topic:"
	keyTip        = "meta:cur_block"
)

func childKey(parentHash string) []byte { return []byte(prefixChild + parentHash) }
func blockKey(hash string) []byte       { return []byte(prefixBlock + hash) }
func topicKey(key string) []byte        { return []byte(prefixTopic + key) }

func accountKey(id uint64) []byte {
	buf := make([]byte, len(prefixAccount)+8)
	copy(buf, prefixAccount)
	binary.BigEndian.PutUint64(buf[len(prefixAccount):], id)
	return buf
}

// Manager is the domain-narrow facade Chain State writes and reads through.
// It knows key layout only; the caller supplies and parses values, so no
// model type needs to be imported here (avoids an import cycle between
// storage/database and blockchain/types).
type Manager struct {
	db Database
}

func NewManager(db Database) *Manager { return &Manager{db: db} }

func (m *Manager) Close() { m.db.Close() }

func (m *Manager) NewBatch() Batch { return m.db.NewBatch() }

// --- tip -------------------------------------------------------------

func (m *Manager) ReadTip() (string, bool) {
	v, err := m.db.Get([]byte(keyTip))
	if err != nil {
		return "", false
	}
	return string(v), true
}

func (m *Manager) WriteTip(batch Batch, hash string) error {
	return batch.Put([]byte(keyTip), []byte(hash))
}

// --- blocks ------------------------------------------------------------

func (m *Manager) ReadBlock(hash string) ([]byte, bool) {
	v, err := m.db.Get(blockKey(hash))
	if err != nil {
		return nil, false
	}
	return v, true
}

func (m *Manager) WriteBlock(batch Batch, hash string, data []byte) error {
	return batch.Put(blockKey(hash), data)
}

func (m *Manager) DeleteBlock(batch Batch, hash string) error {
	return batch.Delete(blockKey(hash))
}

// --- child index, for locating sibling/competing branches --------------

func (m *Manager) ReadChildren(parentHash string) []string {
	v, err := m.db.Get(childKey(parentHash))
	if err != nil {
		return nil
	}
	var children []string
	if jerr := json.Unmarshal(v, &children); jerr != nil {
		return nil
	}
	return children
}

func (m *Manager) WriteChildren(batch Batch, parentHash string, children []string) error {
	data, err := json.Marshal(children)
	if err != nil {
		return err
	}
	return batch.Put(childKey(parentHash), data)
}

// --- accounts ------------------------------------------------------------

func (m *Manager) ReadAccount(id uint64) ([]byte, bool) {
	v, err := m.db.Get(accountKey(id))
	if err != nil {
		return nil, false
	}
	return v, true
}

func (m *Manager) WriteAccount(batch Batch, id uint64, data []byte) error {
	return batch.Put(accountKey(id), data)
}

// --- topics ------------------------------------------------------------

func (m *Manager) ReadTopic(key string) ([]byte, bool) {
	v, err := m.db.Get(topicKey(key))
	if err != nil {
		return nil, false
	}
	return v, true
}

func (m *Manager) WriteTopic(batch Batch, key string, data []byte) error {
	return batch.Put(topicKey(key), data)
}

func (m *Manager) DeleteTopic(batch Batch, key string) error {
	return batch.Delete(topicKey(key))
}

// IterateAccounts walks every persisted account record in ascending id
// order, used when warming chain state indices from disk at startup.
func (m *Manager) IterateAccounts(fn func(data []byte) error) error {
	it := m.db.NewIteratorWithPrefix([]byte(prefixAccount))
	defer it.Release()
	for it.Next() {
		if err := fn(it.Value()); err != nil {
			return err
		}
	}
	return nil
}

// IterateTopics walks every persisted topic record.
func (m *Manager) IterateTopics(fn func(data []byte) error) error {
	it := m.db.NewIteratorWithPrefix([]byte(prefixTopic))
	defer it.Release()
	for it.Next() {
		if err := fn(it.Value()); err != nil {
			return err
		}
	}
	return nil
}
