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

// askchaind is the node entrypoint: a cli.v1 app with a single command (no
// console/attach/account subcommand surface -- a wallet is a separate
// binary, cmd/askwallet) and a flag set scoped to what a single PoW node
// actually takes.
package main

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	metrics "github.com/rcrowley/go-metrics"
	"golang.org/x/crypto/ed25519"
	"gopkg.in/urfave/cli.v1"

	"github.com/askchain/node/blockchain/types"
	"github.com/askchain/node/chain"
	"github.com/askchain/node/client"
	"github.com/askchain/node/config"
	"github.com/askchain/node/crypto"
	"github.com/askchain/node/dispatcher"
	"github.com/askchain/node/exchange"
	"github.com/askchain/node/log"
	"github.com/askchain/node/networks/p2p"
	"github.com/askchain/node/storage/database"
	"github.com/askchain/node/work"
)

var logger = log.NewModuleLogger(log.Dispatcher)

// genesisUTC is fixed so every node that has never persisted a chain starts
// from the same genesis hash.
const genesisUTC int64 = 1577836800 // 2020-01-01T00:00:00Z

var (
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the chain database",
		Value: config.DefaultDataDir(),
	}
	dbTypeFlag = cli.StringFlag{
		Name:  "dbtype",
		Usage: `Chain storage database type ("leveldb", "badger", "memory")`,
		Value: string(config.DefaultConfig.DBType),
	}
	clientAddrFlag = cli.StringFlag{
		Name:  "clientaddr",
		Usage: "Listen address for the wallet-facing websocket client protocol",
		Value: config.DefaultClientListenAddr,
	}
	peerAddrFlag = cli.StringFlag{
		Name:  "peeraddr",
		Usage: "Listen address for the peer protocol",
		Value: config.DefaultPeerListenAddr,
	}
	bootnodeFlag = cli.StringFlag{
		Name:  "bootnode",
		Usage: "address:port of one peer to dial at startup",
	}
	minerKeyFlag = cli.StringFlag{
		Name:  "minerkey",
		Usage: "base64 ed25519 private key identifying this node's miner; generated and printed once if empty",
	}
	mineFlag = cli.BoolFlag{
		Name:  "mine",
		Usage: "Start mining immediately",
	}
	exchangeBrokersFlag = cli.StringFlag{
		Name:  "exchange.brokers",
		Usage: "Comma-separated Kafka broker list; empty disables the exchange deposit notifier",
	}
	exchangeTopicFlag = cli.StringFlag{
		Name:  "exchange.topic",
		Usage: "Kafka topic the exchange deposit notifier publishes to",
		Value: config.DefaultConfig.ExchangeKafkaTopic,
	}
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML config file; values it sets override the flags above, including ones passed on the command line",
	}
	metricsPortFlag = cli.IntFlag{
		Name:  "metrics.port",
		Usage: "Port the Prometheus /metrics exporter listens on (0 disables it)",
		Value: 7300,
	}
)

var app = cli.NewApp()

func init() {
	app.Name = "askchaind"
	app.Usage = "askchain proof-of-work node"
	app.Flags = []cli.Flag{
		dataDirFlag, dbTypeFlag,
		clientAddrFlag, peerAddrFlag, bootnodeFlag,
		minerKeyFlag, mineFlag,
		exchangeBrokersFlag, exchangeTopicFlag,
		configFileFlag, metricsPortFlag,
	}
	app.Action = run
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig
	cfg.DataDir = ctx.GlobalString(dataDirFlag.Name)
	cfg.DBType = database.DBType(ctx.GlobalString(dbTypeFlag.Name))
	cfg.ClientListenAddr = ctx.GlobalString(clientAddrFlag.Name)
	cfg.PeerListenAddr = ctx.GlobalString(peerAddrFlag.Name)
	cfg.MinerPrivkey = ctx.GlobalString(minerKeyFlag.Name)
	cfg.EnableMine = ctx.GlobalBool(mineFlag.Name)
	cfg.ExchangeKafkaTopic = ctx.GlobalString(exchangeTopicFlag.Name)
	if brokers := ctx.GlobalString(exchangeBrokersFlag.Name); brokers != "" {
		cfg.ExchangeKafkaBrokers = strings.Split(brokers, ",")
	}

	if path := ctx.GlobalString(configFileFlag.Name); path != "" {
		if err := config.LoadTOML(path, &cfg); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}
	return &cfg, nil
}

func run(ctx *cli.Context) error {
	runtime.GOMAXPROCS(runtime.NumCPU())

	cfg, err := buildConfig(ctx)
	if err != nil {
		return err
	}

	minerPub, minerPriv, err := loadOrGenerateMinerKey(cfg.MinerPrivkey)
	if err != nil {
		return fmt.Errorf("miner key: %w", err)
	}

	db, err := cfg.OpenDatabase("chaindata")
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	store := database.NewManager(db)

	genesis := &types.Block{
		ID:          0,
		PreHash:     "",
		UTC:         genesisUTC,
		Version:     config.ProtocolVersionMajor,
		ZeroBits:    config.GenesisZeroBits,
		MinerPubkey: crypto.EncodeBase64(minerPub),
	}
	genesis.Hash = genesis.ComputeHash()

	state, err := chain.NewState(store, genesis)
	if err != nil {
		return fmt.Errorf("initializing chain state: %w", err)
	}
	state.SeedGenesisAccount(&types.Account{
		ID:      0,
		Name:    "genesis",
		Pubkey:  crypto.EncodeBase64(minerPub),
		Balance: 1_000_000,
	})

	notifier, closeNotifier, err := buildExchangeNotifier(cfg)
	if err != nil {
		return fmt.Errorf("exchange notifier: %w", err)
	}
	if closeNotifier != nil {
		defer closeNotifier()
	}

	hub := p2p.NewHub(nil) // SetDispatcher once the Dispatcher it will feed exists
	sy := chain.NewSync(state, hub)
	disp := dispatcher.New(state, sy, hub, hub, notifier, 256, time.Second)
	hub.SetDispatcher(disp)

	miner := work.NewMiner(state, minerPriv, config.ProtocolVersionMajor, disp.TxSource(), disp)
	disp.SetMiner(miner)

	clientSrv := client.NewServer(disp)

	go disp.Run()

	if cfg.EnableMine {
		disp.EnqueueCommand(dispatcher.Command{Kind: dispatcher.CmdEnableMine})
	}

	if addr := ctx.GlobalString(bootnodeFlag.Name); addr != "" {
		if err := hub.Dial(chain.PeerID(addr), addr); err != nil {
			logger.Warn("bootnode dial failed", "addr", addr, "err", err)
		}
	}

	if port := ctx.GlobalInt(metricsPortFlag.Name); port != 0 {
		startMetricsExporter(port)
	}

	go func() {
		logger.Info("peer listener starting", "addr", cfg.PeerListenAddr)
		if err := hub.Listen(cfg.PeerListenAddr); err != nil {
			logger.Error("peer listener stopped", "err", err)
		}
	}()

	logger.Info("client server starting", "addr", cfg.ClientListenAddr)
	return clientSrv.ListenAndServe(cfg.ClientListenAddr)
}

// loadOrGenerateMinerKey decodes privkeyB64, or mints a fresh keypair and
// prints it once; askwallet is the only place keys are meant to be handled
// long-term.
func loadOrGenerateMinerKey(privkeyB64 string) (pub, priv []byte, err error) {
	if privkeyB64 == "" {
		pub, priv, err = crypto.GenerateKey()
		if err != nil {
			return nil, nil, err
		}
		logger.Info("generated ephemeral miner key", "privkey", crypto.EncodeBase64(priv))
		return pub, priv, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(privkeyB64)
	if err != nil {
		return nil, nil, err
	}
	if len(decoded) != ed25519.PrivateKeySize {
		return nil, nil, fmt.Errorf("malformed miner privkey: want %d bytes, got %d", ed25519.PrivateKeySize, len(decoded))
	}
	priv = ed25519.PrivateKey(decoded)
	pub = ed25519.PrivateKey(priv).Public().(ed25519.PublicKey)
	return pub, priv, nil
}

// startMetricsExporter bridges every rcrowley/go-metrics counter already
// registered across chain/work/dispatcher (chain/state.go's
// metricAppliedBlocks and friends) onto a prometheus/client_golang registry
// and serves it. GaugeFunc wrapping each counter's Count() does the job
// with only client_golang itself, no separate bridge package needed.
func startMetricsExporter(port int) {
	metrics.RegisterRuntimeMemStats(metrics.DefaultRegistry)
	go metrics.CaptureRuntimeMemStats(metrics.DefaultRegistry, 3*time.Second)

	reg := prometheus.NewRegistry()
	metrics.DefaultRegistry.Each(func(name string, i interface{}) {
		counter, ok := i.(metrics.Counter)
		if !ok {
			return
		}
		reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: sanitizeMetricName(name), Help: name},
			func() float64 { return float64(counter.Count()) },
		))
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", port)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics exporter stopped", "addr", addr, "err", err)
		}
	}()
	logger.Info("metrics exporter listening", "addr", addr)
}

func sanitizeMetricName(name string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, "/", "_"), "-", "_")
}

func buildExchangeNotifier(cfg *config.Config) (dispatcher.ExchangeNotifier, func(), error) {
	if len(cfg.ExchangeKafkaBrokers) == 0 {
		return exchange.NoopNotifier{}, nil, nil
	}
	n, err := exchange.NewKafkaNotifier(cfg.ExchangeKafkaBrokers, cfg.ExchangeKafkaTopic)
	if err != nil {
		return nil, nil, err
	}
	return n, func() { n.Close() }, nil
}
