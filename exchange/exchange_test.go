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

package exchange

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildDepositEventPopulatesFields(t *testing.T) {
	e := buildDepositEvent("some-pubkey", 42, "some-tx-id", 1234)
	require.NotEmpty(t, e.ID)
	require.Equal(t, "some-pubkey", e.ToPubkey)
	require.Equal(t, uint64(42), e.Amount)
	require.Equal(t, "some-tx-id", e.TxID)
	require.Equal(t, int64(1234), e.UTC)
}

func TestNoopNotifierDoesNotPanic(t *testing.T) {
	require.NotPanics(t, func() {
		NoopNotifier{}.NotifyDeposit("pubkey", 1, "tx")
	})
}
