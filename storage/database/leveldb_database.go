// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package database

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	askchainlog "github.com/askchain/node/log"
	"github.com/rcrowley/go-metrics"
)

var ldbLogger = askchainlog.NewModuleLogger(askchainlog.StorageDatabase)

const defaultCacheSizeMB = 16
const defaultHandles = 64

func ldbOptions() *opt.Options {
	return &opt.Options{
		OpenFilesCacheCapacity: defaultHandles,
		BlockCacheCapacity:     defaultCacheSizeMB / 2 * opt.MiB,
		WriteBuffer:            defaultCacheSizeMB / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	}
}

type levelDB struct {
	fn  string
	db  *leveldb.DB
	log *askchainlog.Logger

	writeMeter metrics.Meter
	readMeter  metrics.Meter
}

// NewLevelDB opens (or creates) a LevelDB-backed Database at dir, recovering
// from a corrupted manifest rather than failing outright.
func NewLevelDB(dir string) (*levelDB, error) {
	l := ldbLogger.NewWith("dir", dir)
	db, err := leveldb.OpenFile(dir, ldbOptions())
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(dir, nil)
	}
	if err != nil {
		return nil, err
	}
	l.Info("opened leveldb store")
	return &levelDB{
		fn:         dir,
		db:         db,
		log:        l,
		writeMeter: metrics.NewRegisteredMeter("askchain/db/leveldb/write", nil),
		readMeter:  metrics.NewRegisteredMeter("askchain/db/leveldb/read", nil),
	}, nil
}

func (db *levelDB) Put(key, value []byte) error {
	db.writeMeter.Mark(int64(len(value)))
	return db.db.Put(key, value, nil)
}

func (db *levelDB) Get(key []byte) ([]byte, error) {
	v, err := db.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	db.readMeter.Mark(int64(len(v)))
	return v, nil
}

func (db *levelDB) Has(key []byte) (bool, error) {
	return db.db.Has(key, nil)
}

func (db *levelDB) Delete(key []byte) error {
	return db.db.Delete(key, nil)
}

func (db *levelDB) NewIteratorWithPrefix(prefix []byte) Iterator {
	return &ldbIterator{it: db.db.NewIterator(util.BytesPrefix(prefix), nil)}
}

func (db *levelDB) NewBatch() Batch {
	return &ldbBatch{db: db.db, b: new(leveldb.Batch)}
}

func (db *levelDB) Close() {
	if err := db.db.Close(); err != nil {
		db.log.Error("failed to close leveldb store", "err", err)
		return
	}
	db.log.Info("closed leveldb store")
}

type ldbIterator struct {
	it iteratorAdapter
}

// iteratorAdapter narrows goleveldb's richer iterator.Iterator down to the
// subset this module's Iterator contract needs.
type iteratorAdapter interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
}

func (i *ldbIterator) Next() bool    { return i.it.Next() }
func (i *ldbIterator) Key() []byte   { return i.it.Key() }
func (i *ldbIterator) Value() []byte { return i.it.Value() }
func (i *ldbIterator) Release()      { i.it.Release() }

type ldbBatch struct {
	db   *leveldb.DB
	b    *leveldb.Batch
	size int
}

func (b *ldbBatch) Put(key, value []byte) error {
	b.b.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

func (b *ldbBatch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size += len(key)
	return nil
}

func (b *ldbBatch) ValueSize() int { return b.size }

func (b *ldbBatch) Write() error { return b.db.Write(b.b, nil) }

func (b *ldbBatch) Reset() {
	b.b.Reset()
	b.size = 0
}
