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

// Package common holds small pieces of infrastructure shared by more than
// one package. Every id this module caches (tx id, block hash, pubkey) is
// already a plain string, so Cache stays a simple string-keyed LRU rather
// than sharding on a struct key.
package common

import (
	lru "github.com/hashicorp/golang-lru"
)

// Cache is a bounded, string-keyed LRU.
type Cache struct {
	lru *lru.Cache
}

// NewCache builds a Cache holding up to size entries, evicting least
// recently used once full.
func NewCache(size int) *Cache {
	c, _ := lru.New(size) // only errors on size <= 0, never the case for our fixed call sites
	return &Cache{lru: c}
}

func (c *Cache) Add(key string, value interface{}) { c.lru.Add(key, value) }
func (c *Cache) Get(key string) (interface{}, bool) { return c.lru.Get(key) }
func (c *Cache) Contains(key string) bool { return c.lru.Contains(key) }
func (c *Cache) Purge() { c.lru.Purge() }
