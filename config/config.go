// Copyright 2018 The klaytn Authors
// Copyright 2016 The go-ethereum Authors
// This file is part of go-ethereum.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.
//
// This file is derived from node/config.go + node/defaults.go (2018/06/04).
// Modified and improved for the klaytn development.

// Package config holds the Config struct the cmd/askchaind entrypoint loads
// (flags + optional TOML file) and the constants table in params.go.
package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/naoina/toml"

	"github.com/askchain/node/storage/database"
)

// Config is every knob the node needs at startup.
type Config struct {
	DataDir string `toml:",omitempty"`
	DBType  database.DBType

	ClientListenAddr string // local websocket client interface
	PeerListenAddr   string // peer protocol listen address (out of scope transport, kept for wiring)

	MinerPrivkey string `toml:",omitempty"` // base64; empty means a fresh key is generated at startup
	EnableMine   bool

	// ExchangeKafkaBrokers, when non-empty, turns on the optional
	// exchange-deposit notifier; empty means the no-op producer is used
	// instead.
	ExchangeKafkaBrokers []string `toml:",omitempty"`
	ExchangeKafkaTopic   string   `toml:",omitempty"`
}

const (
	DefaultClientListenAddr = "localhost:8700"
	DefaultPeerListenAddr   = ":8701"
)

// DefaultConfig is one struct literal with every field given a workable
// default for a single local node.
var DefaultConfig = Config{
	DBType:           database.LevelDB,
	DataDir:          DefaultDataDir(),
	ClientListenAddr: DefaultClientListenAddr,
	PeerListenAddr:   DefaultPeerListenAddr,
	EnableMine:       true,
	ExchangeKafkaTopic: "askchain-deposits",
}

// DefaultDataDir picks a per-OS default data directory under the user's home.
func DefaultDataDir() string {
	dirname := filepath.Base(os.Args[0])
	if dirname == "" {
		dirname = "askchain"
	}
	home := homeDir()
	if home == "" {
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", strings.ToUpper(dirname))
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", strings.ToUpper(dirname))
	default:
		return filepath.Join(home, "."+dirname)
	}
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// ResolvePath joins a relative name onto DataDir, or returns it unchanged if
// the node is ephemeral (no DataDir) or the path is already absolute.
func (c *Config) ResolvePath(name string) string {
	if filepath.IsAbs(name) || c.DataDir == "" {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// OpenDatabase opens the configured backend, or a MemDatabase if the node is
// ephemeral (no DataDir).
func (c *Config) OpenDatabase(name string) (database.Database, error) {
	if c.DataDir == "" {
		return database.NewMemDatabase(), nil
	}
	return database.Open(c.DBType, c.ResolvePath(name))
}

// LoadTOML reads a TOML config file into cfg, leaving fields the file
// doesn't set at their current (caller-supplied default) value.
func LoadTOML(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	d := toml.NewDecoder(f)
	return d.Decode(cfg)
}
