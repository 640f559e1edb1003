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

// HistoryKind enumerates the ledger-affecting events recorded against an
// Account, used by wallets to render a balance history and by
// notify_exchange_account_deposit-style hooks to detect deposits.
type HistoryKind uint8

const (
	HistoryRegister HistoryKind = iota
	HistorySendIn
	HistorySendOut
	HistoryTopicLock
	HistoryTopicRefund
	HistoryReplyFee
	HistoryAwardIn
	HistoryAwardOut
	HistoryMiningReward
)

// History is one entry in an Account's append-only activity log.
type History struct {
	Kind          HistoryKind `json:"kind"`
	Counterparty  string      `json:"counterparty,omitempty"` // pubkey or topic key, kind-dependent
	Amount        uint64      `json:"amount"`
	BlockID       uint64      `json:"block_id"`
	TxID          string      `json:"tx_id"`
}
