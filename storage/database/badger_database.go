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
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger"

	askchainlog "github.com/askchain/node/log"
)

const gcThreshold = int64(1 << 30)
const sizeGCTickerTime = 1 * time.Minute

var bgLogger = askchainlog.NewModuleLogger(askchainlog.StorageDatabase)

type badgerDB struct {
	fn       string
	db       *badger.DB
	gcTicker *time.Ticker
	log      *askchainlog.Logger
	quit     chan struct{}
}

func badgerOptions(dir string) badger.Options {
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	return opts
}

// NewBadgerDB opens (or creates) a Badger-backed Database at dir, including
// the periodic value-log GC.
func NewBadgerDB(dir string) (*badgerDB, error) {
	l := bgLogger.NewWith("dir", dir)

	if fi, err := os.Stat(dir); err == nil {
		if !fi.IsDir() {
			return nil, fmt.Errorf("badgerdb: %s is not a directory", dir)
		}
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("badgerdb: failed to create %s: %v", dir, err)
		}
	} else {
		return nil, err
	}

	db, err := badger.Open(badgerOptions(dir))
	if err != nil {
		return nil, fmt.Errorf("badgerdb: failed to open %s: %v", dir, err)
	}

	bg := &badgerDB{
		fn:       dir,
		db:       db,
		log:      l,
		gcTicker: time.NewTicker(sizeGCTickerTime),
		quit:     make(chan struct{}),
	}
	go bg.runValueLogGC()
	l.Info("opened badger store")
	return bg, nil
}

// runValueLogGC periodically reclaims space in the value log once the
// on-disk size exceeds gcThreshold.
func (db *badgerDB) runValueLogGC() {
	for {
		select {
		case <-db.gcTicker.C:
			lsm, vlog := db.db.Size()
			if lsm+vlog < gcThreshold {
				continue
			}
			if err := db.db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
				db.log.Warn("value log gc failed", "err", err)
			}
		case <-db.quit:
			return
		}
	}
}

func (db *badgerDB) Put(key, value []byte) error {
	return db.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (db *badgerDB) Get(key []byte) ([]byte, error) {
	var out []byte
	err := db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrKeyNotFound
	}
	return out, err
}

func (db *badgerDB) Has(key []byte) (bool, error) {
	err := db.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	return err == nil, err
}

func (db *badgerDB) Delete(key []byte) error {
	return db.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (db *badgerDB) NewIteratorWithPrefix(prefix []byte) Iterator {
	txn := db.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	return &badgerIterator{txn: txn, it: it, prefix: prefix, started: false}
}

func (db *badgerDB) NewBatch() Batch {
	return &badgerBatch{db: db.db, wb: db.db.NewWriteBatch()}
}

func (db *badgerDB) Close() {
	close(db.quit)
	db.gcTicker.Stop()
	if err := db.db.Close(); err != nil {
		db.log.Error("failed to close badger store", "err", err)
		return
	}
	db.log.Info("closed badger store")
}

type badgerIterator struct {
	txn     *badger.Txn
	it      *badger.Iterator
	prefix  []byte
	started bool
}

func (i *badgerIterator) Next() bool {
	if !i.started {
		i.it.Seek(i.prefix)
		i.started = true
	} else {
		i.it.Next()
	}
	return i.it.ValidForPrefix(i.prefix)
}

func (i *badgerIterator) Key() []byte {
	return append([]byte(nil), i.it.Item().Key()...)
}

func (i *badgerIterator) Value() []byte {
	v, _ := i.it.Item().ValueCopy(nil)
	return v
}

func (i *badgerIterator) Release() {
	i.it.Close()
	i.txn.Discard()
}

type badgerBatch struct {
	db   *badger.DB
	wb   *badger.WriteBatch
	size int
}

func (b *badgerBatch) Put(key, value []byte) error {
	b.size += len(key) + len(value)
	return b.wb.Set(key, value)
}

func (b *badgerBatch) Delete(key []byte) error {
	b.size += len(key)
	return b.wb.Delete(key)
}

func (b *badgerBatch) ValueSize() int { return b.size }

func (b *badgerBatch) Write() error { return b.wb.Flush() }

func (b *badgerBatch) Reset() {
	b.wb.Cancel()
	b.wb = b.db.NewWriteBatch()
	b.size = 0
}
