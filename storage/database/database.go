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

// Package database is an ordered-key, batched-write key/value store. Chain
// State is the only component that writes through it; the facade itself
// knows nothing about blocks or accounts, only bytes.
package database

import "errors"

// ErrKeyNotFound is returned by Get when the key is absent, matching the
// sentinel both backends surface so callers can type-switch uniformly.
var ErrKeyNotFound = errors.New("database: key not found")

// DBType selects which backend a Config should open.
type DBType string

const (
	LevelDB DBType = "leveldb"
	Badger  DBType = "badger"
	Memory  DBType = "memory"
)

// Database is the minimal ordered key/value contract the chain state
// depends on. Both backends (LevelDB, Badger) and the in-memory test double
// implement it identically.
type Database interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	NewIteratorWithPrefix(prefix []byte) Iterator
	NewBatch() Batch
	Close()
}

// Iterator walks keys in ascending lexicographic order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
}

// Batch buffers writes for one atomic commit: a tip transition must either
// land in full or not at all, so every call site that changes
// `meta:cur_block` writes everything else in the same batch.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	ValueSize() int
	Write() error
	Reset()
}

// Open opens (or creates) a database of the requested type rooted at dir.
// An empty dir with Memory type is the normal case for tests.
func Open(kind DBType, dir string) (Database, error) {
	switch kind {
	case Memory, "":
		return NewMemDatabase(), nil
	case LevelDB:
		return NewLevelDB(dir)
	case Badger:
		return NewBadgerDB(dir)
	default:
		return nil, errors.New("database: unknown backend type " + string(kind))
	}
}
