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

// Package types holds the data model -- Account, Block, Topic, Tx -- and
// their canonical encodings. Chain State (package chain) owns the only
// mutable copies; everything else resolves references by id/hash through
// the indices chain.State exposes, so these types never hold pointers back
// into chain state.
package types

// MaxNameLen / MinNameLen bound an account name: 1-20 bytes, printable
// ASCII subset.
const (
	MinNameLen = 1
	MaxNameLen = 20
)

// Account is a registered identity. It is immutable except Balance and
// History; Name, Pubkey, Avatar and RegBlockID are fixed at registration.
type Account struct {
	ID         uint64    `json:"id"`
	Name       string    `json:"name"`
	Pubkey     string    `json:"pubkey"` // base64
	Avatar     uint32    `json:"avatar"`
	Balance    uint64    `json:"balance"`
	RegBlockID uint64    `json:"reg_block_id"`
	History    []History `json:"history"`
}

// IsValidName reports whether name satisfies the length and charset rule:
// 1-20 bytes of printable ASCII excluding space and control chars.
func IsValidName(name string) bool {
	n := len(name)
	if n < MinNameLen || n > MaxNameLen {
		return false
	}
	for i := 0; i < n; i++ {
		c := name[i]
		if c < '!' || c > '~' {
			return false
		}
	}
	return true
}

// AddHistory appends one ledger event. It does not change Balance; callers
// adjust Balance themselves.
func (a *Account) AddHistory(kind HistoryKind, counterparty string, amount uint64, blockID uint64, txID string) {
	a.History = append(a.History, History{
		Kind:         kind,
		Counterparty: counterparty,
		Amount:       amount,
		BlockID:      blockID,
		TxID:         txID,
	})
}

// Clone returns a deep copy, used by Chain State before mutating an account
// so the pre-mutation value can be captured in the rollback journal.
func (a *Account) Clone() *Account {
	cp := *a
	cp.History = append([]History(nil), a.History...)
	return &cp
}
