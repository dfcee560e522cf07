// Copyright (C) 2025, Blackhole Tools. All rights reserved.
// See the file LICENSE for licensing terms.

// Package validator is the trust-building substitute for a testnet. A vote
// can be cast once per weekly epoch, so before any real transaction is
// constructed the encoder is proven against the wallet's own history: every
// past vote call is decoded, re-encoded, and compared byte for byte with the
// on-chain input. Any divergence is fatal for the calling workflow.
package validator

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blackhole-tools/voterkit/codec"
	"github.com/blackhole-tools/voterkit/explorer"
	"github.com/blackhole-tools/voterkit/registry"
)

const defaultParallelism = 4

var (
	// ErrHistoryUnavailable means the explorer could not be reached after
	// bounded retries. It is recoverable and must never be conflated with an
	// encoding mismatch.
	ErrHistoryUnavailable = errors.New("could not fetch transaction history")

	errDecodeFailed = errors.New("historical transaction failed to decode")
)

// EncodingMismatchError reports the first byte at which a re-encoded vote
// call diverged from the on-chain input. This is the highest-consequence
// defect class in the system; callers must abort on it.
type EncodingMismatchError struct {
	TxHash     string
	Offset     int
	Want       byte // on-chain byte at Offset, zero when past the shorter end
	Got        byte // re-encoded byte at Offset, zero when past the shorter end
	ActualLen  int
	EncodedLen int
}

func (e *EncodingMismatchError) Error() string {
	if e.ActualLen != e.EncodedLen {
		return fmt.Sprintf(
			"encoding mismatch for %s: first divergence at byte %d (on-chain %#02x, re-encoded %#02x), length %d vs %d",
			e.TxHash, e.Offset, e.Want, e.Got, e.ActualLen, e.EncodedLen,
		)
	}
	return fmt.Sprintf(
		"encoding mismatch for %s: first divergence at byte %d (on-chain %#02x, re-encoded %#02x)",
		e.TxHash, e.Offset, e.Want, e.Got,
	)
}

// Status is the aggregate outcome of one validation run.
type Status string

const (
	// StatusPass: every matching vote transaction re-encoded byte-exact.
	StatusPass Status = "pass"
	// StatusFail: at least one mismatch or decode failure.
	StatusFail Status = "fail"
	// StatusInconclusive: no matching vote transactions were found, so
	// nothing was proven. Never reported as a pass.
	StatusInconclusive Status = "inconclusive"
)

// VoteRecord carries the parameters recovered from one historical vote,
// kept for audit output.
type VoteRecord struct {
	Hash    string
	Block   string
	TokenID *big.Int
	Pools   []common.Address
	Weights []*big.Int
}

// VoteResult pairs a record with its validation outcome.
type VoteResult struct {
	Record VoteRecord
	Err    error
}

// MergeRecord is a decoded merge() call on the VotingEscrow. Merges are
// informational only: two uint256 words cannot exercise the array encoding
// under test.
type MergeRecord struct {
	Hash   string
	Block  string
	FromID *big.Int
	ToID   *big.Int
}

// Report aggregates one validation run.
type Report struct {
	Wallet  common.Address
	Status  Status
	Votes   []VoteResult
	Merges  []MergeRecord
	Checked int
	Passed  int
	Failed  int
}

// HistorySource lists transactions for a wallet. *explorer.Client satisfies
// it; retries and timeouts live behind this boundary.
type HistorySource interface {
	AccountTransactions(ctx context.Context, addr common.Address) ([]explorer.Transaction, error)
}

type Validator struct {
	source      HistorySource
	reg         *registry.Registry
	log         *zap.Logger
	metrics     *Metrics
	parallelism int
}

func New(source HistorySource, reg *registry.Registry, log *zap.Logger, metrics *Metrics) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Validator{
		source:      source,
		reg:         reg,
		log:         log,
		metrics:     metrics,
		parallelism: defaultParallelism,
	}
}

// ValidateHistory fetches the wallet's transactions, validates every vote
// call against re-encoding and reports merge calls alongside. Validation of
// individual transactions is pure and order-independent, so they are checked
// concurrently; only the tally is joined.
//
// Zero matching vote transactions yield StatusInconclusive, never a pass.
// The first encoding mismatch aborts the run and is returned as the error.
func (v *Validator) ValidateHistory(ctx context.Context, wallet common.Address) (*Report, error) {
	report := &Report{Wallet: wallet, Status: StatusInconclusive}

	txs, err := v.source.AccountTransactions(ctx, wallet)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}

	voteTxs := v.classify(txs, report)
	if len(voteTxs) == 0 {
		v.metrics.inconclusiveRuns.Inc()
		v.log.Warn("no vote transactions found, validation inconclusive",
			zap.Stringer("wallet", wallet),
			zap.Int("transactions_scanned", len(txs)),
		)
		return report, nil
	}

	report.Votes = make([]VoteResult, len(voteTxs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.parallelism)
	for i, tx := range voteTxs {
		i, tx := i, tx
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report.Votes[i] = v.checkVote(tx)
			var mismatch *EncodingMismatchError
			if errors.As(report.Votes[i].Err, &mismatch) {
				// Fatal: stop validating, the encoder cannot be trusted.
				return mismatch
			}
			return nil
		})
	}
	waitErr := g.Wait()

	var decodeErrs []error
	for _, res := range report.Votes {
		if res.Record.Hash == "" {
			continue // not reached before an abort
		}
		report.Checked++
		switch {
		case res.Err == nil:
			report.Passed++
		default:
			report.Failed++
			if errors.Is(res.Err, errDecodeFailed) {
				decodeErrs = append(decodeErrs, res.Err)
			}
		}
	}

	var mismatch *EncodingMismatchError
	switch {
	case errors.As(waitErr, &mismatch):
		report.Status = StatusFail
		v.log.Error("encoding mismatch against historical transaction",
			zap.String("tx", mismatch.TxHash),
			zap.Int("offset", mismatch.Offset),
		)
		return report, mismatch
	case waitErr != nil:
		report.Status = StatusInconclusive
		return report, waitErr
	case report.Failed > 0:
		report.Status = StatusFail
		return report, errors.Join(decodeErrs...)
	default:
		report.Status = StatusPass
		v.log.Info("all historical votes re-encoded byte-exact",
			zap.Stringer("wallet", wallet),
			zap.Int("validated", report.Checked),
			zap.Int("merges", len(report.Merges)),
		)
		return report, nil
	}
}

// classify splits the raw transaction list into vote candidates and decoded
// merge records. Transactions that match neither contract are ignored.
func (v *Validator) classify(txs []explorer.Transaction, report *Report) []explorer.Transaction {
	var voteTxs []explorer.Transaction
	for _, tx := range txs {
		to, ok := tx.ToAddress()
		if !ok {
			continue
		}
		data, err := codec.ParseCallData(tx.Input)
		if err != nil || len(data) < 4 {
			continue
		}
		switch {
		case v.reg.IsVoter(to) && codec.HasSelector(data, codec.VoteSelector):
			voteTxs = append(voteTxs, tx)
		case v.reg.IsVotingEscrow(to) && codec.HasSelector(data, codec.MergeSelector):
			from, toID, err := codec.DecodeMerge(data)
			if err != nil {
				v.log.Warn("skipping undecodable merge transaction",
					zap.String("tx", tx.Hash), zap.Error(err))
				continue
			}
			report.Merges = append(report.Merges, MergeRecord{
				Hash:   tx.Hash,
				Block:  tx.BlockNumber,
				FromID: from,
				ToID:   toID,
			})
		}
	}
	return voteTxs
}

// checkVote decodes one historical vote, re-encodes the recovered tuple and
// compares byte for byte with the original input.
func (v *Validator) checkVote(tx explorer.Transaction) VoteResult {
	res := VoteResult{Record: VoteRecord{Hash: tx.Hash, Block: tx.BlockNumber}}
	v.metrics.txsValidated.Inc()

	data, err := codec.ParseCallData(tx.Input)
	if err != nil {
		v.metrics.decodeFailures.Inc()
		res.Err = fmt.Errorf("%w: %s: %v", errDecodeFailed, tx.Hash, err)
		return res
	}
	tokenID, pools, weights, err := codec.DecodeVote(data)
	if err != nil {
		v.metrics.decodeFailures.Inc()
		res.Err = fmt.Errorf("%w: %s: %v", errDecodeFailed, tx.Hash, err)
		return res
	}
	res.Record.TokenID = tokenID
	res.Record.Pools = pools
	res.Record.Weights = weights

	call, err := codec.EncodeVote(tokenID, pools, weights)
	if err != nil {
		v.metrics.decodeFailures.Inc()
		res.Err = fmt.Errorf("%w: %s: re-encode: %v", errDecodeFailed, tx.Hash, err)
		return res
	}

	if !call.Equal(data) {
		v.metrics.mismatches.Inc()
		offset := call.FirstDivergence(data)
		mismatch := &EncodingMismatchError{
			TxHash:     tx.Hash,
			Offset:     offset,
			ActualLen:  len(data),
			EncodedLen: call.Len(),
		}
		if offset < len(data) {
			mismatch.Want = data[offset]
		}
		if encoded := call.Bytes(); offset < len(encoded) {
			mismatch.Got = encoded[offset]
		}
		res.Err = mismatch
		return res
	}

	v.log.Debug("historical vote re-encoded byte-exact",
		zap.String("tx", tx.Hash),
		zap.String("token_id", tokenID.String()),
		zap.Int("pools", len(pools)),
	)
	return res
}
