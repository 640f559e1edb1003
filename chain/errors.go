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

import "github.com/pkg/errors"

// ReasonCode is the stable numeric reason surfaced to client-interface
// callers on failure.
type ReasonCode uint32

const (
	ReasonOK ReasonCode = iota
	ReasonUnknownAccount
	ReasonInsufficientBalance
	ReasonDuplicateName
	ReasonInvalidSignature
	ReasonTopicExpired
	ReasonTopicNotFound
	ReasonFeeTooLow
	ReasonNotSynced
	ReasonMalformed
	ReasonDuplicateTxID
	ReasonDuplicatePubkey
	ReasonInvalidAmount
	ReasonUnknownReplyTarget
	ReasonStale
)

func (r ReasonCode) String() string {
	switch r {
	case ReasonOK:
		return "ok"
	case ReasonUnknownAccount:
		return "unknown_account"
	case ReasonInsufficientBalance:
		return "insufficient_balance"
	case ReasonDuplicateName:
		return "duplicate_name"
	case ReasonInvalidSignature:
		return "invalid_signature"
	case ReasonTopicExpired:
		return "topic_expired"
	case ReasonTopicNotFound:
		return "topic_not_found"
	case ReasonFeeTooLow:
		return "fee_too_low"
	case ReasonNotSynced:
		return "not_synced"
	case ReasonMalformed:
		return "malformed"
	case ReasonDuplicateTxID:
		return "duplicate_tx_id"
	case ReasonDuplicatePubkey:
		return "duplicate_pubkey"
	case ReasonInvalidAmount:
		return "invalid_amount"
	case ReasonUnknownReplyTarget:
		return "unknown_reply_target"
	case ReasonStale:
		return "stale"
	default:
		return "unknown"
	}
}

// ValidationError pairs a ReasonCode with the class of response it demands:
// Punish reports whether the offering peer should be punished for sending
// this -- only malformed input does; a conflict or stale block is just a
// normal outcome of concurrent mining or a slow peer.
type ValidationError struct {
	Reason  ReasonCode
	Punish  bool
	Wrapped error
}

func (e *ValidationError) Error() string {
	if e.Wrapped != nil {
		return e.Reason.String() + ": " + e.Wrapped.Error()
	}
	return e.Reason.String()
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

func newMalformed(reason ReasonCode, msg string) *ValidationError {
	return &ValidationError{Reason: reason, Punish: true, Wrapped: errors.New(msg)}
}

func newConflict(reason ReasonCode, msg string) *ValidationError {
	return &ValidationError{Reason: reason, Punish: false, Wrapped: errors.New(msg)}
}

func newStale(msg string) *ValidationError {
	return &ValidationError{Reason: ReasonStale, Punish: false, Wrapped: errors.New(msg)}
}

// ErrFatalState marks a State error so severe the node must refuse to
// continue rather than risk diverging. Callers that see this should route
// it to log.Logger.Crit, never attempt to recover in place.
var ErrFatalState = errors.New("chain: fatal state error, refusing to continue")
