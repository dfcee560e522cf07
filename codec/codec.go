// Copyright (C) 2025, Blackhole Tools. All rights reserved.
// See the file LICENSE for licensing terms.

// Package codec translates between vote parameters and the raw calldata of
// the Blackhole voter contract. Encoding must be byte-exact: a vote can be
// cast once per epoch and there is no testnet, so a wrong encoding burns the
// epoch. Decoding is deliberately strict and never truncates silently.
package codec

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// VoteSignature is the canonical signature of the voter contract's vote
	// function, verified against historical on-chain transactions.
	VoteSignature = "vote(uint256,address[],uint256[])"
	// MergeSignature is the VotingEscrow function that merges one lock into
	// another.
	MergeSignature = "merge(uint256,uint256)"

	wordSize = 32
)

var (
	// VoteSelector is keccak256(VoteSignature)[:4].
	VoteSelector = [4]byte{0x7a, 0xc0, 0x9b, 0xf7}
	// MergeSelector is keccak256(MergeSignature)[:4].
	MergeSelector = [4]byte{0xd1, 0xc2, 0xba, 0xbb}

	ErrArityMismatch    = errors.New("pool and weight arrays differ in length")
	ErrEmptyVote        = errors.New("vote has no pool allocations")
	ErrInvalidAddress   = errors.New("invalid pool address")
	ErrValueOutOfRange  = errors.New("value does not fit in uint256")
	ErrSelectorMismatch = errors.New("unexpected function selector")
	ErrTruncatedData    = errors.New("calldata truncated")
)

// The ABI fragment below is the single source of truth for the encode path.
// It was reconstructed from decoded historical transactions, not from a
// published artifact, so the derived selectors are cross-checked at init.
const voterABIJSON = `[
	{"name":"vote","type":"function","stateMutability":"nonpayable","inputs":[
		{"name":"_tokenId","type":"uint256"},
		{"name":"_poolVote","type":"address[]"},
		{"name":"_weights","type":"uint256[]"}],"outputs":[]},
	{"name":"merge","type":"function","stateMutability":"nonpayable","inputs":[
		{"name":"_from","type":"uint256"},
		{"name":"_to","type":"uint256"}],"outputs":[]}
]`

var voterABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(voterABIJSON))
	if err != nil {
		panic(fmt.Sprintf("codec: invalid voter ABI: %v", err))
	}
	voterABI = parsed

	mustMatchSelector("vote", VoteSignature, VoteSelector)
	mustMatchSelector("merge", MergeSignature, MergeSelector)
}

func mustMatchSelector(method, signature string, want [4]byte) {
	derived := crypto.Keccak256([]byte(signature))[:4]
	if !equalSelector(voterABI.Methods[method].ID, want) || !equalSelector(derived, want) {
		panic(fmt.Sprintf("codec: selector drift for %s: abi=%x keccak=%x want=%x",
			method, voterABI.Methods[method].ID, derived, want))
	}
}

func equalSelector(got []byte, want [4]byte) bool {
	return len(got) == 4 && got[0] == want[0] && got[1] == want[1] && got[2] == want[2] && got[3] == want[3]
}

// EncodeVote builds the calldata for vote(tokenID, pools, weights). The
// positional correspondence between pools and weights is preserved verbatim;
// the contract interprets weights[i] as the share for pools[i].
func EncodeVote(tokenID *big.Int, pools []common.Address, weights []*big.Int) (EncodedCall, error) {
	if len(pools) != len(weights) {
		return EncodedCall{}, fmt.Errorf("%w: %d pools, %d weights", ErrArityMismatch, len(pools), len(weights))
	}
	if len(pools) == 0 {
		return EncodedCall{}, ErrEmptyVote
	}
	if err := checkUint256("token id", tokenID); err != nil {
		return EncodedCall{}, err
	}
	for i, w := range weights {
		if err := checkUint256(fmt.Sprintf("weight %d", i), w); err != nil {
			return EncodedCall{}, err
		}
	}

	args, err := voterABI.Methods["vote"].Inputs.Pack(tokenID, pools, weights)
	if err != nil {
		return EncodedCall{}, fmt.Errorf("packing vote arguments: %w", err)
	}
	data := make([]byte, 0, len(VoteSelector)+len(args))
	data = append(data, VoteSelector[:]...)
	data = append(data, args...)
	return newEncodedCall(data), nil
}

// DecodeVote recovers (tokenID, pools, weights) from vote calldata. It reads
// the head words, follows both array offsets and requires every declared
// element to be present; short input fails with ErrTruncatedData rather than
// yielding a partial tuple.
func DecodeVote(data []byte) (*big.Int, []common.Address, []*big.Int, error) {
	params, err := stripSelector(data, VoteSelector)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(params) < 3*wordSize {
		return nil, nil, nil, fmt.Errorf("%w: head needs %d bytes, have %d", ErrTruncatedData, 3*wordSize, len(params))
	}

	tokenID := new(big.Int).SetBytes(params[:wordSize])
	poolsOffset, err := readOffset(params, 1)
	if err != nil {
		return nil, nil, nil, err
	}
	weightsOffset, err := readOffset(params, 2)
	if err != nil {
		return nil, nil, nil, err
	}

	poolWords, err := readArray(params, poolsOffset)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pool array: %w", err)
	}
	weightWords, err := readArray(params, weightsOffset)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("weight array: %w", err)
	}

	pools := make([]common.Address, len(poolWords))
	for i, word := range poolWords {
		pools[i] = common.BytesToAddress(word[wordSize-common.AddressLength:])
	}
	weights := make([]*big.Int, len(weightWords))
	for i, word := range weightWords {
		weights[i] = new(big.Int).SetBytes(word)
	}
	return tokenID, pools, weights, nil
}

// DecodeMerge recovers (from, to) lock ids from merge calldata.
func DecodeMerge(data []byte) (from, to *big.Int, err error) {
	params, err := stripSelector(data, MergeSelector)
	if err != nil {
		return nil, nil, err
	}
	if len(params) < 2*wordSize {
		return nil, nil, fmt.Errorf("%w: merge needs %d bytes after selector, have %d", ErrTruncatedData, 2*wordSize, len(params))
	}
	from = new(big.Int).SetBytes(params[:wordSize])
	to = new(big.Int).SetBytes(params[wordSize : 2*wordSize])
	return from, to, nil
}

// HasSelector reports whether data begins with the given 4-byte selector.
func HasSelector(data []byte, selector [4]byte) bool {
	return len(data) >= 4 && equalSelector(data[:4], selector)
}

func stripSelector(data []byte, want [4]byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: %d bytes, selector needs 4", ErrTruncatedData, len(data))
	}
	if !equalSelector(data[:4], want) {
		return nil, fmt.Errorf("%w: got %x, want %x", ErrSelectorMismatch, data[:4], want)
	}
	return data[4:], nil
}

// readOffset returns the dynamic-data offset stored in head word i. Offsets
// are relative to the start of the parameter block (after the selector).
func readOffset(params []byte, i int) (int, error) {
	word := new(big.Int).SetBytes(params[i*wordSize : (i+1)*wordSize])
	if !word.IsInt64() || word.Int64() > int64(len(params)) {
		return 0, fmt.Errorf("%w: offset in word %d points past end of calldata", ErrTruncatedData, i)
	}
	return int(word.Int64()), nil
}

// readArray reads a dynamic array tail: a length word followed by exactly
// length 32-byte element words.
func readArray(params []byte, offset int) ([][]byte, error) {
	if offset+wordSize > len(params) {
		return nil, fmt.Errorf("%w: length word at offset %d past end", ErrTruncatedData, offset)
	}
	length := new(big.Int).SetBytes(params[offset : offset+wordSize])
	if !length.IsInt64() || length.Int64() > int64((len(params)-offset-wordSize)/wordSize) {
		return nil, fmt.Errorf("%w: declared %s elements exceed remaining calldata", ErrTruncatedData, length)
	}
	n := int(length.Int64())
	words := make([][]byte, n)
	for i := 0; i < n; i++ {
		start := offset + wordSize + i*wordSize
		words[i] = params[start : start+wordSize]
	}
	return words, nil
}

func checkUint256(what string, v *big.Int) error {
	if v == nil || v.Sign() < 0 || v.BitLen() > 256 {
		return fmt.Errorf("%w: %s", ErrValueOutOfRange, what)
	}
	return nil
}

// ParseAddress parses a 0x-prefixed hex address, rejecting anything that is
// not exactly 20 bytes.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}
