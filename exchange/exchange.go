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

// Package exchange is the optional exchange-deposit notifier: when activity
// on a watched exchange account occurs, publish a deposit event to Kafka
// rather than make an external integration poll the websocket client
// interface. Publish-only, one fixed topic, no consumer side.
package exchange

import (
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"
	uuid "github.com/hashicorp/go-uuid"

	"github.com/askchain/node/dispatcher"
	"github.com/askchain/node/log"
)

var logger = log.NewModuleLogger(log.Exchange)

// DepositEvent is the JSON body published for every confirmed deposit into
// the configured exchange account.
type DepositEvent struct {
	ID       string `json:"id"` // hashicorp/go-uuid, one per publish attempt
	ToPubkey string `json:"to_pubkey"`
	Amount   uint64 `json:"amount"`
	TxID     string `json:"tx_id"`
	UTC      int64  `json:"utc"`
}

// KafkaNotifier implements dispatcher.ExchangeNotifier by publishing a
// DepositEvent to a fixed Kafka topic via an async producer.
type KafkaNotifier struct {
	producer sarama.AsyncProducer
	topic    string
}

var _ dispatcher.ExchangeNotifier = (*KafkaNotifier)(nil)

// NewKafkaNotifier dials brokers and returns a notifier publishing to topic.
func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 500 * time.Millisecond
	cfg.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	n := &KafkaNotifier{producer: producer, topic: topic}
	go n.logProducerErrors()
	return n, nil
}

func (n *KafkaNotifier) logProducerErrors() {
	for err := range n.producer.Errors() {
		logger.Warn("exchange deposit publish failed", "err", err)
	}
}

// NotifyDeposit implements dispatcher.ExchangeNotifier. Publishing is
// fire-and-forget from the dispatcher's perspective: a broker outage
// degrades to dropped deposit events, never to a blocked dispatcher.
func (n *KafkaNotifier) NotifyDeposit(toPubkey string, amount uint64, txID string) {
	event := buildDepositEvent(toPubkey, amount, txID, time.Now().Unix())
	body, err := json.Marshal(event)
	if err != nil {
		logger.Error("failed to marshal deposit event", "err", err)
		return
	}
	n.producer.Input() <- &sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(toPubkey),
		Value: sarama.ByteEncoder(body),
	}
}

// buildDepositEvent fills a DepositEvent, falling back to txID as the event
// id if uuid generation ever fails (it only reads /dev/urandom, but the
// fallback keeps NotifyDeposit from ever silently dropping an event over it).
func buildDepositEvent(toPubkey string, amount uint64, txID string, utc int64) DepositEvent {
	id, err := uuid.GenerateUUID()
	if err != nil {
		logger.Warn("failed to generate deposit event id", "err", err)
		id = txID
	}
	return DepositEvent{ID: id, ToPubkey: toPubkey, Amount: amount, TxID: txID, UTC: utc}
}

// Close releases the underlying producer.
func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}

// NoopNotifier implements dispatcher.ExchangeNotifier by discarding every
// deposit; used when config.ExchangeKafkaBrokers is empty, so the notifier
// is disabled by default.
type NoopNotifier struct{}

var _ dispatcher.ExchangeNotifier = NoopNotifier{}

func (NoopNotifier) NotifyDeposit(toPubkey string, amount uint64, txID string) {}
