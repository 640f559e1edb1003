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

// Package log provides a small module-scoped logging facade over zap, in the
// shape the rest of this module calls into: one package-level *Logger per
// module, key/value pairs on every call, and a per-module level that can be
// changed at runtime (e.g. from the debug API).
package log

import (
	"fmt"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ModuleID identifies one logical component for the purpose of independent
// log-level control. New modules are added here as the module grows.
type ModuleID int

const (
	ChainState ModuleID = iota
	Validation
	SyncProtocol
	Miner
	Dispatcher
	StorageDatabase
	ClientAPI
	PeerProtocol
	Exchange
	Config
	Crypto
	Common
)

var moduleNames = map[ModuleID]string{
	ChainState:      "chainstate",
	Validation:      "validate",
	SyncProtocol:    "sync",
	Miner:           "miner",
	Dispatcher:      "dispatcher",
	StorageDatabase: "storage",
	ClientAPI:       "clientapi",
	PeerProtocol:    "p2p",
	Exchange:        "exchange",
	Config:          "config",
	Crypto:          "crypto",
	Common:          "common",
}

func (m ModuleID) String() string {
	if name, ok := moduleNames[m]; ok {
		return name
	}
	return "unknown"
}

// Lvl mirrors the standard log15-style level names.
type Lvl int8

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

var levelToZap = map[Lvl]zapcore.Level{
	LvlCrit:  zapcore.DPanicLevel,
	LvlError: zapcore.ErrorLevel,
	LvlWarn:  zapcore.WarnLevel,
	LvlInfo:  zapcore.InfoLevel,
	LvlDebug: zapcore.DebugLevel,
	LvlTrace: zapcore.DebugLevel,
}

var (
	mu       sync.Mutex
	levels   = map[ModuleID]*zap.AtomicLevel{}
	baseCore zapcore.Core
)

func init() {
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "t",
		LevelKey:       "lvl",
		NameKey:        "mod",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	baseCore = zapcore.NewCore(enc, zapcore.AddSync(colorable.NewColorableStdout()), zapcore.DebugLevel)
}

// Logger is the module-scoped handle the rest of the code logs through.
type Logger struct {
	z    *zap.Logger
	id   ModuleID
	lvl  *zap.AtomicLevel
}

// NewModuleLogger returns (creating if necessary) the shared logger for a
// module. Calling it twice for the same ModuleID returns loggers that share
// the same level control.
func NewModuleLogger(id ModuleID) *Logger {
	mu.Lock()
	defer mu.Unlock()
	lvl, ok := levels[id]
	if !ok {
		a := zap.NewAtomicLevelAt(zapcore.InfoLevel)
		lvl = &a
		levels[id] = lvl
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			TimeKey: "t", LevelKey: "lvl", NameKey: "mod", MessageKey: "msg",
			EncodeLevel: zapcore.CapitalLevelEncoder, EncodeTime: zapcore.ISO8601TimeEncoder,
		}),
		zapcore.Lock(zapcore.AddSync(colorable.NewColorableStdout())),
		lvl,
	)
	z := zap.New(core).Named(id.String())
	return &Logger{z: z, id: id, lvl: lvl}
}

// ChangeLogLevelWithID adjusts the runtime level of one module at a time,
// for use by an admin RPC or debug endpoint.
func ChangeLogLevelWithID(id ModuleID, lvl Lvl) error {
	mu.Lock()
	defer mu.Unlock()
	l, ok := levels[id]
	if !ok {
		return fmt.Errorf("log: unknown module %v", id)
	}
	l.SetLevel(levelToZap[lvl])
	return nil
}

func fields(kv []interface{}) []zap.Field {
	fs := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		fs = append(fs, zap.Any(key, kv[i+1]))
	}
	return fs
}

func (l *Logger) Trace(msg string, kv ...interface{}) { l.z.Debug(msg, fields(kv)...) }
func (l *Logger) Debug(msg string, kv ...interface{}) { l.z.Debug(msg, fields(kv)...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.z.Info(msg, fields(kv)...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.z.Warn(msg, fields(kv)...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.z.Error(msg, fields(kv)...) }

// Crit logs at the highest severity and terminates the process: a node must
// refuse to continue rather than risk diverging from the network.
func (l *Logger) Crit(msg string, kv ...interface{}) {
	l.z.Error(msg, fields(kv)...)
	os.Exit(1)
}

// NewWith returns a child logger with additional permanent key/value context.
func (l *Logger) NewWith(kv ...interface{}) *Logger {
	return &Logger{z: l.z.With(fields(kv)...), id: l.id, lvl: l.lvl}
}
