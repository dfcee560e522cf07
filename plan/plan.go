// Copyright (C) 2025, Blackhole Tools. All rights reserved.
// See the file LICENSE for licensing terms.

// Package plan turns human-supplied percentage allocations into the integer
// weight tuple the voter contract expects. The on-chain convention, verified
// against past transactions, represents 100% as the literal weight 1000.
package plan

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blackhole-tools/voterkit/codec"
)

const (
	// TotalWeight is the integer weight representing a 100% allocation.
	TotalWeight = 1000

	// sumTolerance absorbs float accumulation when percentages are meant to
	// sum to exactly 100.
	sumTolerance = 1e-6
)

var (
	ErrEmptyPlan         = errors.New("plan has no allocations")
	ErrInvalidPercentage = errors.New("invalid percentage")
)

// PoolAllocation is one entry of a vote: a pool and the share of voting
// power, in percent, to allocate to it.
type PoolAllocation struct {
	Pool    common.Address
	Percent float64
}

// VotePlan is the canonical, ordered parameter tuple for one vote call.
// Pools[i] corresponds to Weights[i]; the contract encodes both arrays
// positionally, so order is preserved end-to-end.
type VotePlan struct {
	TokenID *big.Int
	Pools   []common.Address
	Weights []*big.Int
}

// Build validates the allocations and normalizes their percentages into
// integer weights. Percentages must each be >= 0 and sum to a value in
// (0, 100]; the weights sum to round(sum/100 * TotalWeight) exactly, with
// rounding drift pushed onto the largest allocation so that the intended
// shape is never silently distorted.
func Build(tokenID *big.Int, allocs []PoolAllocation) (*VotePlan, error) {
	if len(allocs) == 0 {
		return nil, ErrEmptyPlan
	}
	if tokenID == nil || tokenID.Sign() < 0 || tokenID.BitLen() > 256 {
		return nil, fmt.Errorf("%w: token id", codec.ErrValueOutOfRange)
	}

	sum := 0.0
	for i, a := range allocs {
		if math.IsNaN(a.Percent) || math.IsInf(a.Percent, 0) || a.Percent < 0 {
			return nil, fmt.Errorf("%w: allocation %d has percentage %v", ErrInvalidPercentage, i, a.Percent)
		}
		sum += a.Percent
	}
	if sum <= 0 {
		return nil, fmt.Errorf("%w: percentages sum to %v, must be > 0", ErrInvalidPercentage, sum)
	}
	if sum > 100+sumTolerance {
		return nil, fmt.Errorf("%w: percentages sum to %v, must be <= 100", ErrInvalidPercentage, sum)
	}

	weights := normalize(allocs, sum)

	p := &VotePlan{
		TokenID: new(big.Int).Set(tokenID),
		Pools:   make([]common.Address, len(allocs)),
		Weights: make([]*big.Int, len(allocs)),
	}
	for i, a := range allocs {
		p.Pools[i] = a.Pool
		p.Weights[i] = big.NewInt(weights[i])
	}
	return p, nil
}

// normalize rounds each percentage to its weight, then corrects accumulated
// rounding drift on the largest entry so the weights sum to the scaled
// target. Relying on per-entry rounding alone can turn a 60/40 intent into
// 601/399 undetected.
func normalize(allocs []PoolAllocation, sum float64) []int64 {
	target := int64(math.Round(sum / 100 * TotalWeight))

	weights := make([]int64, len(allocs))
	var total int64
	largest := 0
	for i, a := range allocs {
		weights[i] = int64(math.Round(a.Percent / 100 * TotalWeight))
		total += weights[i]
		if weights[i] > weights[largest] {
			largest = i
		}
	}
	weights[largest] += target - total
	return weights
}

// Encode serializes the plan through the ABI codec.
func (p *VotePlan) Encode() (codec.EncodedCall, error) {
	return codec.EncodeVote(p.TokenID, p.Pools, p.Weights)
}
