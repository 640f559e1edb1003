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

// Package client is the local wallet-facing protocol: JSON request/response
// over a websocket, framed as plain JSON objects rather than JSON-RPC 2.0
// envelopes, since there are only six fixed operations rather than an
// open-ended method-dispatch RPC surface. A wallet signs its own Tx
// locally and submits the finished envelope; this package never holds a
// private key.
package client

import (
	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/chain"
)

// RequestKind names one of the six wallet operations this protocol exposes,
// or unsubscribe_account, which cancels a subscribe_account.
type RequestKind string

const (
	KindRegister          RequestKind = "register"
	KindSend              RequestKind = "send"
	KindQueryBalance      RequestKind = "query_balance"
	KindNewTopic          RequestKind = "new_topic"
	KindReply             RequestKind = "reply"
	KindSubscribeAccount  RequestKind = "subscribe_account"
	KindUnsubscribeAccount RequestKind = "unsubscribe_account"
)

// Request is one client-to-node message. Tx is required (and must already
// be signed) for register/send/new_topic/reply; Pubkey is required for
// query_balance/subscribe_account/unsubscribe_account.
type Request struct {
	Kind           RequestKind `json:"kind"`
	Tx             *types.Tx   `json:"tx,omitempty"`
	Pubkey         string      `json:"pubkey,omitempty"`
	SubscriptionID string      `json:"subscription_id,omitempty"` // unsubscribe_account
}

// Response is the synchronous reply to a Request.
type Response struct {
	Status         string         `json:"status"` // "ok" or "error"
	Reason         string         `json:"reason,omitempty"`
	Account        *types.Account `json:"account,omitempty"`
	SubscriptionID string         `json:"subscription_id,omitempty"`
}

// PushKind names an asynchronous, unsolicited message the server sends down
// an open connection without a matching Request.
type PushKind string

const accountUpdatePush PushKind = "account_update"

// Push is an asynchronous account_update delivered to a subscribed
// connection whenever the subscribed pubkey's account changes.
type Push struct {
	Kind           PushKind       `json:"kind"`
	SubscriptionID string         `json:"subscription_id"`
	Account        *types.Account `json:"account"`
}

func okResponse(acct *types.Account) Response {
	return Response{Status: "ok", Reason: chain.ReasonOK.String(), Account: acct}
}

func errorResponse(reason chain.ReasonCode) Response {
	return Response{Status: "error", Reason: reason.String()}
}
