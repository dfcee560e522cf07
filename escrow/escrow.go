// Copyright (C) 2025, Blackhole Tools. All rights reserved.
// See the file LICENSE for licensing terms.

// Package escrow reads a wallet's voting-escrow state: the NFT-style lock
// token ids that carry voting power, and the current power itself. All calls
// are read-only eth_call queries; nothing here mutates chain state.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var errEmptyResult = errors.New("empty eth_call result")

// The VotingEscrow is an ERC-721 enumerable; locks are enumerated through
// balanceOf/tokenOfOwnerByIndex and power through getVotes.
const escrowABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[
		{"name":"owner","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"name":"tokenOfOwnerByIndex","type":"function","stateMutability":"view","inputs":[
		{"name":"owner","type":"address"},
		{"name":"index","type":"uint256"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"name":"getVotes","type":"function","stateMutability":"view","inputs":[
		{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]}
]`

var escrowABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(escrowABIJSON))
	if err != nil {
		panic(fmt.Sprintf("escrow: invalid ABI: %v", err))
	}
	escrowABI = parsed
}

// Caller is the read-only slice of an RPC client. *ethclient.Client
// satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type Client struct {
	contract common.Address
	caller   Caller
	log      *zap.Logger
}

func NewClient(contract common.Address, caller Caller, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{contract: contract, caller: caller, log: log}
}

// LockTokenIDs enumerates the lock token ids owned by owner, in enumeration
// order. A wallet without locks returns an empty slice.
func (c *Client) LockTokenIDs(ctx context.Context, owner common.Address) ([]*big.Int, error) {
	balance, err := c.callUint256(ctx, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("querying lock balance: %w", err)
	}
	if !balance.IsInt64() {
		return nil, fmt.Errorf("implausible lock balance %s", balance)
	}

	n := balance.Int64()
	ids := make([]*big.Int, 0, n)
	for i := int64(0); i < n; i++ {
		id, err := c.callUint256(ctx, "tokenOfOwnerByIndex", owner, big.NewInt(i))
		if err != nil {
			return nil, fmt.Errorf("querying lock %d of %d: %w", i, n, err)
		}
		ids = append(ids, id)
	}

	c.log.Debug("enumerated lock tokens",
		zap.Stringer("owner", owner),
		zap.Int("count", len(ids)),
	)
	return ids, nil
}

// VotingPower returns the wallet's current voting power in wei-scale units.
func (c *Client) VotingPower(ctx context.Context, owner common.Address) (*big.Int, error) {
	power, err := c.callUint256(ctx, "getVotes", owner)
	if err != nil {
		return nil, fmt.Errorf("querying voting power: %w", err)
	}
	return power, nil
}

func (c *Client) callUint256(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	data, err := escrowABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	ret, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("%w: %s", errEmptyResult, method)
	}
	out, err := escrowABI.Unpack(method, ret)
	if err != nil {
		return nil, err
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned %T, want *big.Int", method, out[0])
	}
	return value, nil
}
