// Copyright (C) 2025, Blackhole Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package validator

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/blackhole-tools/voterkit/explorer"
	"github.com/blackhole-tools/voterkit/registry"
)

const (
	voterAddr  = "0xe30d0c8532721551a51a9fec7fb233759964d9e3"
	escrowAddr = "0xeac562811cc6abdbb2c9ee88719eca4ee79ad763"

	// vote(4438, [0x8fef4fe4970a5d6bfa7c65871a2ebfd0f42aa822], [1000])
	knownVoteInput = "0x7ac09bf7" +
		"0000000000000000000000000000000000000000000000000000000000001156" +
		"0000000000000000000000000000000000000000000000000000000000000060" +
		"00000000000000000000000000000000000000000000000000000000000000a0" +
		"0000000000000000000000000000000000000000000000000000000000000001" +
		"0000000000000000000000008fef4fe4970a5d6bfa7c65871a2ebfd0f42aa822" +
		"0000000000000000000000000000000000000000000000000000000000000001" +
		"00000000000000000000000000000000000000000000000000000000000003e8"

	// Same tuple, but the tail segments are laid out weights-first. It
	// decodes to the identical parameters yet is not the canonical byte
	// sequence, so re-encoding must flag it.
	swappedTailVoteInput = "0x7ac09bf7" +
		"0000000000000000000000000000000000000000000000000000000000001156" +
		"00000000000000000000000000000000000000000000000000000000000000a0" +
		"0000000000000000000000000000000000000000000000000000000000000060" +
		"0000000000000000000000000000000000000000000000000000000000000001" +
		"00000000000000000000000000000000000000000000000000000000000003e8" +
		"0000000000000000000000000000000000000000000000000000000000000001" +
		"0000000000000000000000008fef4fe4970a5d6bfa7c65871a2ebfd0f42aa822"

	// merge(20156, 4438)
	knownMergeInput = "0xd1c2babb" +
		"0000000000000000000000000000000000000000000000000000000000004ebc" +
		"0000000000000000000000000000000000000000000000000000000000001156"
)

type stubSource struct {
	txs []explorer.Transaction
	err error
}

func (s *stubSource) AccountTransactions(context.Context, common.Address) ([]explorer.Transaction, error) {
	return s.txs, s.err
}

func newValidator(source HistorySource) *Validator {
	return New(source, registry.Mainnet(), nil, nil)
}

func TestValidateHistoryPass(t *testing.T) {
	source := &stubSource{txs: []explorer.Transaction{
		{Hash: "0xv1", To: voterAddr, Input: knownVoteInput, BlockNumber: "100"},
		{Hash: "0xm1", To: escrowAddr, Input: knownMergeInput, BlockNumber: "90"},
		{Hash: "0xother", To: "0x00000000000000000000000000000000000000ff", Input: "0xdeadbeef"},
	}}

	report, err := newValidator(source).ValidateHistory(context.Background(), common.Address{0x01})
	require.NoError(t, err)
	require.Equal(t, StatusPass, report.Status)
	require.Equal(t, 1, report.Checked)
	require.Equal(t, 1, report.Passed)
	require.Zero(t, report.Failed)

	require.Len(t, report.Votes, 1)
	rec := report.Votes[0].Record
	require.Zero(t, rec.TokenID.Cmp(big.NewInt(4438)))
	require.Equal(t, []common.Address{common.HexToAddress("0x8fef4fe4970a5d6bfa7c65871a2ebfd0f42aa822")}, rec.Pools)

	require.Len(t, report.Merges, 1)
	require.Zero(t, report.Merges[0].FromID.Cmp(big.NewInt(20156)))
	require.Zero(t, report.Merges[0].ToID.Cmp(big.NewInt(4438)))
}

func TestValidateHistoryUppercaseHexInput(t *testing.T) {
	// On-chain hex may arrive in any case; comparison happens on raw bytes.
	upper := "0x" + strings.ToUpper(knownVoteInput[2:])
	source := &stubSource{txs: []explorer.Transaction{
		{Hash: "0xv1", To: voterAddr, Input: upper, BlockNumber: "100"},
	}}

	report, err := newValidator(source).ValidateHistory(context.Background(), common.Address{0x01})
	require.NoError(t, err)
	require.Equal(t, StatusPass, report.Status)
}

func TestValidateHistoryInconclusiveOnEmpty(t *testing.T) {
	tests := map[string][]explorer.Transaction{
		"no transactions at all": {},
		"no matching transactions": {
			{Hash: "0x1", To: "0x00000000000000000000000000000000000000ff", Input: "0x7ac09bf7"},
			{Hash: "0x2", To: voterAddr, Input: "0xd1c2babb"},
		},
		"merge only": {
			{Hash: "0x3", To: escrowAddr, Input: knownMergeInput},
		},
	}
	for name, txs := range tests {
		t.Run(name, func(t *testing.T) {
			report, err := newValidator(&stubSource{txs: txs}).ValidateHistory(context.Background(), common.Address{0x01})
			require.NoError(t, err)
			require.Equal(t, StatusInconclusive, report.Status)
			require.Zero(t, report.Checked)
		})
	}
}

func TestValidateHistoryFetchFailure(t *testing.T) {
	source := &stubSource{err: explorer.ErrFetchFailed}

	report, err := newValidator(source).ValidateHistory(context.Background(), common.Address{0x01})
	require.ErrorIs(t, err, ErrHistoryUnavailable)
	require.Equal(t, StatusInconclusive, report.Status)

	var mismatch *EncodingMismatchError
	require.False(t, errors.As(err, &mismatch))
}

func TestValidateHistoryMismatchIsFatal(t *testing.T) {
	source := &stubSource{txs: []explorer.Transaction{
		{Hash: "0xswapped", To: voterAddr, Input: swappedTailVoteInput, BlockNumber: "100"},
	}}

	report, err := newValidator(source).ValidateHistory(context.Background(), common.Address{0x01})
	require.Error(t, err)
	require.Equal(t, StatusFail, report.Status)

	var mismatch *EncodingMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "0xswapped", mismatch.TxHash)
	// Head word 1 (the pools offset) is the first divergence: canonical
	// encoding puts 0x60 there, the swapped layout 0xa0.
	require.Equal(t, 67, mismatch.Offset)
	require.Equal(t, byte(0xa0), mismatch.Want)
	require.Equal(t, byte(0x60), mismatch.Got)
}

func TestValidateHistoryDecodeFailureFailsRun(t *testing.T) {
	truncated := knownVoteInput[:len(knownVoteInput)-64]
	source := &stubSource{txs: []explorer.Transaction{
		{Hash: "0xbad", To: voterAddr, Input: truncated, BlockNumber: "100"},
		{Hash: "0xgood", To: voterAddr, Input: knownVoteInput, BlockNumber: "101"},
	}}

	report, err := newValidator(source).ValidateHistory(context.Background(), common.Address{0x01})
	require.ErrorIs(t, err, errDecodeFailed)
	require.Equal(t, StatusFail, report.Status)
	require.Equal(t, 2, report.Checked)
	require.Equal(t, 1, report.Passed)
	require.Equal(t, 1, report.Failed)
}

func TestValidateHistoryManyTransactions(t *testing.T) {
	var txs []explorer.Transaction
	for i := 0; i < 25; i++ {
		txs = append(txs, explorer.Transaction{
			Hash: common.Hash{byte(i)}.Hex(), To: voterAddr, Input: knownVoteInput,
		})
	}

	report, err := newValidator(&stubSource{txs: txs}).ValidateHistory(context.Background(), common.Address{0x01})
	require.NoError(t, err)
	require.Equal(t, StatusPass, report.Status)
	require.Equal(t, 25, report.Checked)
	require.Equal(t, 25, report.Passed)
}
