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
	"sort"
	"sync"
)

// MemDatabase is the in-memory Database used by ephemeral nodes and by
// every test in this module.
type MemDatabase struct {
	mu sync.RWMutex
	kv map[string][]byte
}

func NewMemDatabase() *MemDatabase {
	return &MemDatabase{kv: make(map[string][]byte)}
}

func (m *MemDatabase) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.kv[string(key)] = cp
	return nil
}

func (m *MemDatabase) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.kv[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *MemDatabase) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.kv[string(key)]
	return ok, nil
}

func (m *MemDatabase) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, string(key))
	return nil
}

func (m *MemDatabase) NewIteratorWithPrefix(prefix []byte) Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0)
	for k := range m.kv {
		if len(k) >= len(prefix) && k[:len(prefix)] == string(prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return &memIterator{db: m, keys: keys, pos: -1}
}

func (m *MemDatabase) NewBatch() Batch { return &memBatch{db: m} }

func (m *MemDatabase) Close() {}

type memIterator struct {
	db   *MemDatabase
	keys []string
	pos  int
}

func (it *memIterator) Next() bool {
	it.pos++
	return it.pos < len(it.keys)
}

func (it *memIterator) Key() []byte { return []byte(it.keys[it.pos]) }

func (it *memIterator) Value() []byte {
	it.db.mu.RLock()
	defer it.db.mu.RUnlock()
	return it.db.kv[it.keys[it.pos]]
}

func (it *memIterator) Release() {}

type memBatchOp struct {
	key    []byte
	value  []byte
	delete bool
}

type memBatch struct {
	db   *MemDatabase
	ops  []memBatchOp
	size int
}

func (b *memBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, memBatchOp{key: key, value: value})
	b.size += len(key) + len(value)
	return nil
}

func (b *memBatch) Delete(key []byte) error {
	b.ops = append(b.ops, memBatchOp{key: key, delete: true})
	b.size += len(key)
	return nil
}

func (b *memBatch) ValueSize() int { return b.size }

func (b *memBatch) Write() error {
	for _, op := range b.ops {
		if op.delete {
			b.db.Delete(op.key)
		} else {
			b.db.Put(op.key, op.value)
		}
	}
	return nil
}

func (b *memBatch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}
