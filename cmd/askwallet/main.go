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

// askwallet is the wallet-side counterpart to cmd/askchaind: one cli.Command
// per operation, a keyfile on disk. Every operation that builds a Tx signs
// it locally and submits the finished envelope over the client websocket
// protocol (client package); no private key ever leaves this process.
package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"time"

	"golang.org/x/net/websocket"
	"gopkg.in/urfave/cli.v1"

	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/client"
	"github.com/askchain/node/crypto"
)

var (
	keyFlag = cli.StringFlag{
		Name:  "key",
		Usage: "path to the wallet's base64 ed25519 private key file",
		Value: "wallet.key",
	}
	nodeFlag = cli.StringFlag{
		Name:  "node",
		Usage: "node client websocket address",
		Value: "ws://localhost:8700/",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "askwallet"
	app.Usage = "askchain wallet CLI"
	app.Commands = []cli.Command{
		keygenCommand,
		registerCommand,
		sendCommand,
		topicCommand,
		replyCommand,
		balanceCommand,
		subscribeCommand,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var keygenCommand = cli.Command{
	Name:  "keygen",
	Usage: "generate a new wallet keypair and save it to --key",
	Flags: []cli.Flag{keyFlag},
	Action: func(ctx *cli.Context) error {
		pub, priv, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		if err := ioutil.WriteFile(ctx.String(keyFlag.Name), []byte(crypto.EncodeBase64(priv)), 0600); err != nil {
			return err
		}
		fmt.Println("pubkey:", crypto.EncodeBase64(pub))
		return nil
	},
}

var registerCommand = cli.Command{
	Name:  "register",
	Usage: "register a new account, paying the registration fee out of --referrer",
	Flags: []cli.Flag{
		keyFlag, nodeFlag,
		cli.StringFlag{Name: "name", Usage: "the new account's name"},
		cli.StringFlag{Name: "newkey", Usage: "path to save the new account's own keypair to"},
		cli.StringFlag{Name: "referrer", Usage: "base64 pubkey of the account paying the registration fee (defaults to --key's own account)"},
	},
	Action: func(ctx *cli.Context) error {
		w, err := loadWallet(ctx.String(keyFlag.Name))
		if err != nil {
			return err
		}
		newPub, newPriv, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		if path := ctx.String("newkey"); path != "" {
			if err := ioutil.WriteFile(path, []byte(crypto.EncodeBase64(newPriv)), 0600); err != nil {
				return err
			}
		}
		referrer := ctx.String("referrer")
		if referrer == "" {
			referrer = w.pubkeyB64()
		}
		tx := w.sign(&types.RegisterData{
			Name:           ctx.String("name"),
			Pubkey:         crypto.EncodeBase64(newPub),
			ReferrerPubkey: referrer,
		})
		resp, err := submit(ctx.String(nodeFlag.Name), tx)
		if err != nil {
			return err
		}
		fmt.Println("new account pubkey:", crypto.EncodeBase64(newPub))
		return printResponse(resp)
	},
}

var sendCommand = cli.Command{
	Name:  "send",
	Usage: "send balance to another account",
	Flags: []cli.Flag{
		keyFlag, nodeFlag,
		cli.StringFlag{Name: "to", Usage: "base64 pubkey of the recipient"},
		cli.Uint64Flag{Name: "amount"},
	},
	Action: func(ctx *cli.Context) error {
		w, err := loadWallet(ctx.String(keyFlag.Name))
		if err != nil {
			return err
		}
		tx := w.sign(&types.SendData{ToPubkey: ctx.String("to"), Amount: ctx.Uint64("amount")})
		resp, err := submit(ctx.String(nodeFlag.Name), tx)
		if err != nil {
			return err
		}
		return printResponse(resp)
	},
}

var topicCommand = cli.Command{
	Name:  "topic",
	Usage: "open a new topic, locking --reward out of the wallet's balance",
	Flags: []cli.Flag{keyFlag, nodeFlag, cli.Uint64Flag{Name: "reward"}},
	Action: func(ctx *cli.Context) error {
		w, err := loadWallet(ctx.String(keyFlag.Name))
		if err != nil {
			return err
		}
		tx := w.sign(&types.NewTopicData{Reward: ctx.Uint64("reward")})
		resp, err := submit(ctx.String(nodeFlag.Name), tx)
		if err != nil {
			return err
		}
		fmt.Println("topic key (this tx's id):", tx.ID)
		return printResponse(resp)
	},
}

var replyCommand = cli.Command{
	Name:  "reply",
	Usage: "post a reply into a topic, optionally awarding part of the reward pool",
	Flags: []cli.Flag{
		keyFlag, nodeFlag,
		cli.StringFlag{Name: "topic", Usage: "the topic's key (its opening tx's id)"},
		cli.StringFlag{Name: "replyto", Usage: "tx id of the reply this one answers, empty for top-level"},
		cli.StringFlag{Name: "rewardto", Usage: "tx id of the reply being awarded, if any"},
		cli.Uint64Flag{Name: "rewardamount"},
	},
	Action: func(ctx *cli.Context) error {
		w, err := loadWallet(ctx.String(keyFlag.Name))
		if err != nil {
			return err
		}
		tx := w.sign(&types.ReplyData{
			TopicKey:     ctx.String("topic"),
			ReplyToID:    ctx.String("replyto"),
			RewardToID:   ctx.String("rewardto"),
			RewardAmount: ctx.Uint64("rewardamount"),
		})
		resp, err := submit(ctx.String(nodeFlag.Name), tx)
		if err != nil {
			return err
		}
		return printResponse(resp)
	},
}

var balanceCommand = cli.Command{
	Name:  "balance",
	Usage: "query an account's balance (defaults to --key's own account)",
	Flags: []cli.Flag{keyFlag, nodeFlag, cli.StringFlag{Name: "pubkey"}},
	Action: func(ctx *cli.Context) error {
		pubkey := ctx.String("pubkey")
		if pubkey == "" {
			w, err := loadWallet(ctx.String(keyFlag.Name))
			if err != nil {
				return err
			}
			pubkey = w.pubkeyB64()
		}
		ws, err := dial(ctx.String(nodeFlag.Name))
		if err != nil {
			return err
		}
		defer ws.Close()
		if err := websocket.JSON.Send(ws, client.Request{Kind: client.KindQueryBalance, Pubkey: pubkey}); err != nil {
			return err
		}
		var resp client.Response
		if err := websocket.JSON.Receive(ws, &resp); err != nil {
			return err
		}
		return printResponse(resp)
	},
}

var subscribeCommand = cli.Command{
	Name:  "subscribe",
	Usage: "subscribe to an account's updates and print them as they arrive",
	Flags: []cli.Flag{keyFlag, nodeFlag, cli.StringFlag{Name: "pubkey"}},
	Action: func(ctx *cli.Context) error {
		pubkey := ctx.String("pubkey")
		if pubkey == "" {
			w, err := loadWallet(ctx.String(keyFlag.Name))
			if err != nil {
				return err
			}
			pubkey = w.pubkeyB64()
		}
		ws, err := dial(ctx.String(nodeFlag.Name))
		if err != nil {
			return err
		}
		defer ws.Close()
		if err := websocket.JSON.Send(ws, client.Request{Kind: client.KindSubscribeAccount, Pubkey: pubkey}); err != nil {
			return err
		}
		var resp client.Response
		if err := websocket.JSON.Receive(ws, &resp); err != nil {
			return err
		}
		if err := printResponse(resp); err != nil {
			return err
		}
		for {
			var push client.Push
			if err := websocket.JSON.Receive(ws, &push); err != nil {
				return err
			}
			fmt.Printf("[%s] %s balance=%d\n", time.Now().Format(time.RFC3339), push.Account.Name, push.Account.Balance)
		}
	},
}

// wallet holds a loaded keypair in memory only for the lifetime of one CLI
// invocation.
type wallet struct {
	pub  []byte
	priv []byte
}

func loadWallet(path string) (*wallet, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading wallet key %s (run 'askwallet keygen' first): %w", path, err)
	}
	priv, err := base64.StdEncoding.DecodeString(string(b))
	if err != nil {
		return nil, err
	}
	pub, ok := publicFromPrivate(priv)
	if !ok {
		return nil, errors.New("askwallet: malformed wallet key")
	}
	return &wallet{pub: pub, priv: priv}, nil
}

func (w *wallet) pubkeyB64() string { return crypto.EncodeBase64(w.pub) }

// sign builds, finalizes and signs a Tx carrying data, stamped with the
// current wall clock (the node independently checks this against its own
// block utc within config.TxMaxSkewSeconds).
func (w *wallet) sign(data types.TxData) *types.Tx {
	tx := &types.Tx{UTC: time.Now().Unix(), Pubkey: w.pubkeyB64(), Data: data}
	tx.Finalize()
	tx.Sign = crypto.EncodeBase64(crypto.Sign(w.priv, tx.Digest()))
	return tx
}

func dial(addr string) (*websocket.Conn, error) {
	return websocket.Dial(addr, "", "http://localhost/")
}

func submit(nodeAddr string, tx *types.Tx) (client.Response, error) {
	ws, err := dial(nodeAddr)
	if err != nil {
		return client.Response{}, err
	}
	defer ws.Close()
	if err := websocket.JSON.Send(ws, requestFor(tx)); err != nil {
		return client.Response{}, err
	}
	var resp client.Response
	if err := websocket.JSON.Receive(ws, &resp); err != nil {
		return client.Response{}, err
	}
	return resp, nil
}

func requestFor(tx *types.Tx) client.Request {
	kind := client.KindSend
	switch tx.Data.Kind() {
	case types.TxRegister:
		kind = client.KindRegister
	case types.TxSend:
		kind = client.KindSend
	case types.TxNewTopic:
		kind = client.KindNewTopic
	case types.TxReply:
		kind = client.KindReply
	}
	return client.Request{Kind: kind, Tx: tx}
}

func printResponse(resp client.Response) error {
	if resp.Status != "ok" {
		return fmt.Errorf("node rejected request: %s", resp.Reason)
	}
	if resp.Account != nil {
		fmt.Printf("account %q pubkey=%s balance=%d\n", resp.Account.Name, resp.Account.Pubkey, resp.Account.Balance)
	}
	if resp.SubscriptionID != "" {
		fmt.Println("subscription id:", resp.SubscriptionID)
	}
	return nil
}

// publicFromPrivate derives the 32-byte ed25519 public key suffix out of a
// 64-byte private key, mirroring ed25519.PrivateKey.Public() without
// importing the package twice for one line.
func publicFromPrivate(priv []byte) ([]byte, bool) {
	const privSize, pubSize = 64, 32
	if len(priv) != privSize {
		return nil, false
	}
	pub := make([]byte, pubSize)
	copy(pub, priv[privSize-pubSize:])
	return pub, true
}
