// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
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
// This file holds the chain's consensus, fee, and protocol-compatibility
// constants.

package config

// Consensus and emission constants.
const (
	// GenesisZeroBits is the proof-of-work difficulty of block 0 and the
	// starting point for retargeting.
	GenesisZeroBits uint32 = 16

	// RetargetPeriod is how many blocks elapse between difficulty
	// adjustments.
	RetargetPeriod uint64 = 2016

	// TargetIntervalSeconds is the desired average seconds-per-block the
	// retarget rule steers toward.
	TargetIntervalSeconds int64 = 60

	// MaxZeroBitsStep bounds how much one retarget can move ZeroBits, so a
	// single volatile window cannot swing difficulty unboundedly.
	MaxZeroBitsStep uint32 = 2

	// MaxZeroBits / MinZeroBits bound the retargeted difficulty to the
	// range the PoW predicate (crypto.PowOk) accepts.
	MaxZeroBits uint32 = 32
	MinZeroBits uint32 = 1

	// ProtocolVersionMajor / Minor gate peer compatibility: peers whose
	// major.minor differs are rejected.
	ProtocolVersionMajor uint32 = 1
	ProtocolVersionMinor uint32 = 0

	// Fee schedule.
	RegistrationFee uint64 = 1
	SendFee         uint64 = 1
	NewTopicFee     uint64 = 1
	ReplyFee        uint64 = 1

	// BlockMaxFutureSkewSeconds is how far into the future a received
	// block's utc may sit before it is rejected as stale.
	BlockMaxFutureSkewSeconds int64 = 10

	// TxMaxSkewSeconds bounds a tx's utc distance from its enclosing
	// block's utc.
	TxMaxSkewSeconds int64 = 24 * 3600

	// BriefRequestDeadlineSeconds / DetailRequestDeadlineSeconds bound how
	// long a pending sync request may remain outstanding before it is
	// cancelled and its peer punished.
	BriefRequestDeadlineSeconds  int64 = 10
	DetailRequestDeadlineSeconds int64 = 20

	// BriefChunkSize is how many headers one brief-response page carries.
	BriefChunkSize = 100
)

// NextZeroBits applies the retarget rule at a period boundary as a step
// table against the target span: under half of it raises zero_bits by
// MaxZeroBitsStep, under it by 1; over twice it lowers by MaxZeroBitsStep,
// over it by 1; exactly on it leaves zero_bits unchanged. The result is
// clamped to [MinZeroBits, MaxZeroBits]. actualElapsedSeconds is the
// wall-clock span of the last RetargetPeriod blocks.
func NextZeroBits(prevZeroBits uint32, actualElapsedSeconds int64) uint32 {
	if actualElapsedSeconds <= 0 {
		actualElapsedSeconds = 1
	}
	target := TargetIntervalSeconds * int64(RetargetPeriod)
	var step uint32
	switch {
	case actualElapsedSeconds*2 < target:
		step = MaxZeroBitsStep // chain is running fast: raise difficulty
	case actualElapsedSeconds < target:
		step = 1
	case actualElapsedSeconds > target*2:
		if MaxZeroBitsStep > prevZeroBits {
			return MinZeroBits
		}
		return clampZeroBits(prevZeroBits - MaxZeroBitsStep)
	case actualElapsedSeconds > target:
		if prevZeroBits <= 1 {
			return MinZeroBits
		}
		return clampZeroBits(prevZeroBits - 1)
	default:
		return prevZeroBits
	}
	return clampZeroBits(prevZeroBits + step)
}

func clampZeroBits(z uint32) uint32 {
	if z < MinZeroBits {
		return MinZeroBits
	}
	if z > MaxZeroBits {
		return MaxZeroBits
	}
	return z
}

// ExpectedZeroBits returns the difficulty a block at height id must satisfy,
// given the parent block's zero_bits and the elapsed wall-clock time over
// the retarget window (0 before the first retarget).
func ExpectedZeroBits(id uint64, prevZeroBits uint32, elapsedSinceWindowStart int64) uint32 {
	if id == 0 {
		return GenesisZeroBits
	}
	if id%RetargetPeriod != 0 {
		return prevZeroBits
	}
	return NextZeroBits(prevZeroBits, elapsedSinceWindowStart)
}
