// Copyright (C) 2025, Blackhole Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EncodedCall is an immutable selector-prefixed calldata blob. Two calls are
// equal iff their byte sequences are identical; that equality is what the
// whole validation pipeline is built on.
type EncodedCall struct {
	data []byte
}

func newEncodedCall(data []byte) EncodedCall {
	return EncodedCall{data: data}
}

// ParseCallData converts a transaction input field (0x-prefixed hex, any
// case) into raw bytes. Hex case is normalized here so byte comparison is
// the only equality used downstream.
func ParseCallData(s string) ([]byte, error) {
	data, err := hexutil.Decode(strings.ToLower(s))
	if err != nil {
		return nil, fmt.Errorf("parsing calldata hex: %w", err)
	}
	return data, nil
}

// Bytes returns a copy of the calldata.
func (c EncodedCall) Bytes() []byte {
	return append([]byte(nil), c.data...)
}

// Hex returns the 0x-prefixed lowercase hex form, matching the on-chain
// transaction input field formatting.
func (c EncodedCall) Hex() string {
	return hexutil.Encode(c.data)
}

// Selector returns the leading 4 bytes.
func (c EncodedCall) Selector() [4]byte {
	var sel [4]byte
	copy(sel[:], c.data)
	return sel
}

func (c EncodedCall) Len() int {
	return len(c.data)
}

// Equal reports byte-for-byte equality with raw calldata.
func (c EncodedCall) Equal(other []byte) bool {
	return bytes.Equal(c.data, other)
}

// FirstDivergence returns the first byte offset at which the call differs
// from other, or -1 if they are identical. When one side is a prefix of the
// other the offset is the shorter length.
func (c EncodedCall) FirstDivergence(other []byte) int {
	n := len(c.data)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if c.data[i] != other[i] {
			return i
		}
	}
	if len(c.data) != len(other) {
		return n
	}
	return -1
}

func (c EncodedCall) String() string {
	return c.Hex()
}
