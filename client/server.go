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

package client

import (
	"net/http"
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"
	"golang.org/x/net/websocket"

	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/chain"
	"github.com/askchain/node/dispatcher"
	"github.com/askchain/node/log"
)

var logger = log.NewModuleLogger(log.ClientAPI)

// replyTimeout bounds how long serveConn waits for the dispatcher to answer
// a ClientMessage before giving up on the connection; the dispatcher's
// queue is bounded and lossless once admitted, but a message offered to a
// full queue is dropped and never answered, and this timeout is what ends
// the wait in that case (or when the dispatcher is slow to reply).
const replyTimeout = 5 * time.Second

// subscription is one open subscribe_account registration: pushes for
// Pubkey are forwarded to updates until the owning connection closes or
// sends unsubscribe_account.
type subscription struct {
	pubkey  string
	updates chan *types.Account
}

// Server is the websocket front end for the six wallet operations. One
// Server instance is created per node and also implements
// dispatcher.AccountWatcher so subscribe_account can receive pushes.
type Server struct {
	disp *dispatcher.Dispatcher

	mu   sync.Mutex
	subs map[uuid.UUID]*subscription
}

func NewServer(disp *dispatcher.Dispatcher) *Server {
	s := &Server{disp: disp, subs: make(map[uuid.UUID]*subscription)}
	disp.SetAccountWatcher(s)
	return s
}

// Handler returns the net/http Handler to mount at the websocket endpoint.
func (s *Server) Handler() http.Handler {
	return websocket.Handler(s.serveConn)
}

// ListenAndServe blocks serving the client protocol on addr.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/", s.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	logger.Info("client server listening", "addr", addr)
	return srv.ListenAndServe()
}

func (s *Server) serveConn(ws *websocket.Conn) {
	var sendMu sync.Mutex
	send := func(v interface{}) {
		sendMu.Lock()
		defer sendMu.Unlock()
		if err := websocket.JSON.Send(ws, v); err != nil {
			logger.Debug("client send failed", "err", err)
		}
	}

	var mySubs []uuid.UUID
	defer func() {
		for _, id := range mySubs {
			s.removeSubscription(id)
		}
		ws.Close()
	}()

	for {
		var req Request
		if err := websocket.JSON.Receive(ws, &req); err != nil {
			return
		}
		switch req.Kind {
		case KindRegister, KindSend, KindNewTopic, KindReply:
			send(s.submitTx(req.Tx))
		case KindQueryBalance:
			send(s.queryBalance(req.Pubkey))
		case KindSubscribeAccount:
			id, resp := s.subscribe(req.Pubkey, send)
			if resp.Status == "ok" {
				mySubs = append(mySubs, id)
			}
			send(resp)
		case KindUnsubscribeAccount:
			id, err := uuid.FromString(req.SubscriptionID)
			if err != nil {
				send(errorResponse(chain.ReasonMalformed))
				continue
			}
			s.removeSubscription(id)
			send(Response{Status: "ok"})
		default:
			send(errorResponse(chain.ReasonMalformed))
		}
	}
}

func (s *Server) submitTx(tx *types.Tx) Response {
	if tx == nil || tx.Data == nil {
		return errorResponse(chain.ReasonMalformed)
	}
	replyCh := make(chan dispatcher.ClientResult, 1)
	s.disp.EnqueueClientMessage(dispatcher.ClientMessage{Kind: clientKindFor(tx), Tx: tx, ReplyCh: replyCh})
	select {
	case res := <-replyCh:
		if res.Reason != chain.ReasonOK {
			return errorResponse(res.Reason)
		}
		return okResponse(res.Account)
	case <-time.After(replyTimeout):
		return errorResponse(chain.ReasonNotSynced)
	}
}

func clientKindFor(tx *types.Tx) dispatcher.ClientRequestKind {
	switch tx.Data.Kind() {
	case types.TxRegister:
		return dispatcher.ClientRegister
	case types.TxSend:
		return dispatcher.ClientSend
	case types.TxNewTopic:
		return dispatcher.ClientNewTopic
	default:
		return dispatcher.ClientReply
	}
}

func (s *Server) queryBalance(pubkey string) Response {
	replyCh := make(chan dispatcher.ClientResult, 1)
	s.disp.EnqueueClientMessage(dispatcher.ClientMessage{Kind: dispatcher.ClientQueryBalance, Pubkey: pubkey, ReplyCh: replyCh})
	select {
	case res := <-replyCh:
		if res.Reason != chain.ReasonOK {
			return errorResponse(res.Reason)
		}
		return okResponse(res.Account)
	case <-time.After(replyTimeout):
		return errorResponse(chain.ReasonNotSynced)
	}
}

func (s *Server) subscribe(pubkey string, send func(interface{})) (uuid.UUID, Response) {
	replyCh := make(chan dispatcher.ClientResult, 1)
	s.disp.EnqueueClientMessage(dispatcher.ClientMessage{Kind: dispatcher.ClientSubscribeAccount, Pubkey: pubkey, ReplyCh: replyCh})
	var res dispatcher.ClientResult
	select {
	case res = <-replyCh:
	case <-time.After(replyTimeout):
		return uuid.UUID{}, errorResponse(chain.ReasonNotSynced)
	}
	if res.Reason != chain.ReasonOK {
		return uuid.UUID{}, errorResponse(res.Reason)
	}

	id := uuid.NewV4()
	sub := &subscription{pubkey: pubkey, updates: make(chan *types.Account, 8)}
	s.mu.Lock()
	s.subs[id] = sub
	s.mu.Unlock()

	go func() {
		for acct := range sub.updates {
			send(Push{Kind: accountUpdatePush, SubscriptionID: id.String(), Account: acct})
		}
	}()

	resp := okResponse(res.Account)
	resp.SubscriptionID = id.String()
	return id, resp
}

func (s *Server) removeSubscription(id uuid.UUID) {
	s.mu.Lock()
	sub, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()
	if ok {
		close(sub.updates)
	}
}

// AccountChanged implements dispatcher.AccountWatcher: fan the update out to
// every open subscription for acct.Pubkey, dropping it if that
// subscription's buffer is full rather than blocking the dispatcher's
// single writer goroutine.
func (s *Server) AccountChanged(acct *types.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.pubkey != acct.Pubkey {
			continue
		}
		select {
		case sub.updates <- acct:
		default:
			logger.Warn("subscription update dropped, buffer full", "pubkey", acct.Pubkey)
		}
	}
}
