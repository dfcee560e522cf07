// Copyright (C) 2025, Blackhole Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package escrow

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var escrowAddr = common.HexToAddress("0xeac562811cc6abdbb2c9ee88719eca4ee79ad763")

type stubCaller struct {
	t        *testing.T
	balance  *big.Int
	tokenIDs []*big.Int
	votes    *big.Int
	err      error
}

func packOutput(t *testing.T, method string, v *big.Int) []byte {
	t.Helper()
	out, err := escrowABI.Methods[method].Outputs.Pack(v)
	require.NoError(t, err)
	return out
}

func (s *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	require.Equal(s.t, escrowAddr, *msg.To)

	method, err := escrowABI.MethodById(msg.Data[:4])
	require.NoError(s.t, err)

	switch method.Name {
	case "balanceOf":
		return packOutput(s.t, "balanceOf", s.balance), nil
	case "tokenOfOwnerByIndex":
		args, err := method.Inputs.Unpack(msg.Data[4:])
		require.NoError(s.t, err)
		index := args[1].(*big.Int)
		return packOutput(s.t, "tokenOfOwnerByIndex", s.tokenIDs[index.Int64()]), nil
	case "getVotes":
		return packOutput(s.t, "getVotes", s.votes), nil
	}
	s.t.Fatalf("unexpected method %s", method.Name)
	return nil, nil
}

func TestLockTokenIDs(t *testing.T) {
	caller := &stubCaller{
		t:        t,
		balance:  big.NewInt(2),
		tokenIDs: []*big.Int{big.NewInt(4438), big.NewInt(20156)},
	}
	c := NewClient(escrowAddr, caller, nil)

	ids, err := c.LockTokenIDs(context.Background(), common.Address{0x01})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Zero(t, ids[0].Cmp(big.NewInt(4438)))
	require.Zero(t, ids[1].Cmp(big.NewInt(20156)))
}

func TestLockTokenIDsNoLocks(t *testing.T) {
	c := NewClient(escrowAddr, &stubCaller{t: t, balance: big.NewInt(0)}, nil)

	ids, err := c.LockTokenIDs(context.Background(), common.Address{0x01})
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestLockTokenIDsCallError(t *testing.T) {
	rpcErr := errors.New("connection refused")
	c := NewClient(escrowAddr, &stubCaller{t: t, err: rpcErr}, nil)

	_, err := c.LockTokenIDs(context.Background(), common.Address{0x01})
	require.ErrorIs(t, err, rpcErr)
}

func TestVotingPower(t *testing.T) {
	power, _ := new(big.Int).SetString("2500000000000000000", 10)
	c := NewClient(escrowAddr, &stubCaller{t: t, votes: power}, nil)

	got, err := c.VotingPower(context.Background(), common.Address{0x01})
	require.NoError(t, err)
	require.Zero(t, got.Cmp(power))
}
