// Copyright (C) 2025, Blackhole Tools. All rights reserved.
// See the file LICENSE for licensing terms.

// Package voter assembles vote transactions for the Blackhole voter
// contract. It strings together the plan builder, the ABI codec and an RPC
// backend, and defaults to dry-run: nothing is signed or broadcast unless
// explicitly armed.
//
// Whether a vote set by vote() persists across weekly epochs or must be
// resent is a property of the deployed protocol, not of this package;
// callers are expected to submit once per epoch.
package voter

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"go.uber.org/zap"

	"github.com/blackhole-tools/voterkit/plan"
	"github.com/blackhole-tools/voterkit/registry"
)

const (
	// DefaultRPCURL is the public Avalanche C-Chain JSON-RPC endpoint.
	DefaultRPCURL = "https://api.avax.network/ext/bc/C/rpc"

	// Gas heuristics used when estimation is unavailable, sized from
	// observed vote transactions: a flat base plus a per-pool increment.
	fallbackGasBase    = 100_000
	fallbackGasPerPool = 50_000

	// Estimated gas gets a 20% buffer; votes revert entirely on
	// out-of-gas, wasting the epoch's one shot.
	gasBufferNum = 120
	gasBufferDen = 100

	fallbackGasPriceGwei = 30
)

// ChainID identifies Avalanche C-Chain mainnet.
var ChainID = big.NewInt(43114)

var (
	ErrDryRun   = errors.New("voter is in dry-run mode")
	ErrNoSigner = errors.New("no signing key configured")
)

// Backend is the slice of an RPC client the voter needs. *ethclient.Client
// satisfies it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

type Voter struct {
	backend Backend
	reg     *registry.Registry
	log     *zap.Logger

	key  *ecdsa.PrivateKey
	from common.Address

	dryRun bool
}

type Option func(*Voter)

// WithKey arms the voter with a signing key. Without it only PrepareVote is
// usable.
func WithKey(key *ecdsa.PrivateKey) Option {
	return func(v *Voter) {
		v.key = key
		v.from = crypto.PubkeyToAddress(key.PublicKey)
	}
}

// WithSender sets the from address for nonce and gas estimation without a
// key (dry-run workflows).
func WithSender(from common.Address) Option {
	return func(v *Voter) {
		v.from = from
	}
}

// WithLiveMode disarms dry-run. Submit refuses to work without this.
func WithLiveMode() Option {
	return func(v *Voter) {
		v.dryRun = false
	}
}

func New(backend Backend, reg *registry.Registry, log *zap.Logger, opts ...Option) *Voter {
	if log == nil {
		log = zap.NewNop()
	}
	v := &Voter{
		backend: backend,
		reg:     reg,
		log:     log,
		dryRun:  true,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.dryRun {
		log.Warn("dry-run mode: transactions will be prepared but never sent")
	}
	return v
}

// PrepareVote builds an unsigned legacy transaction carrying the encoded
// vote call, with a fresh nonce, the suggested gas price and buffered gas.
func (v *Voter) PrepareVote(ctx context.Context, tokenID *big.Int, allocs []plan.PoolAllocation) (*types.Transaction, error) {
	p, err := plan.Build(tokenID, allocs)
	if err != nil {
		return nil, fmt.Errorf("building vote plan: %w", err)
	}
	call, err := p.Encode()
	if err != nil {
		return nil, fmt.Errorf("encoding vote: %w", err)
	}

	voterContract, err := v.reg.Contract(registry.VoterProxy)
	if err != nil {
		return nil, err
	}

	nonce, err := v.backend.PendingNonceAt(ctx, v.from)
	if err != nil {
		return nil, fmt.Errorf("fetching nonce: %w", err)
	}

	gasPrice, err := v.backend.SuggestGasPrice(ctx)
	if err != nil {
		gasPrice = new(big.Int).SetUint64(fallbackGasPriceGwei * params.GWei)
		v.log.Warn("gas price suggestion failed, using fallback",
			zap.Error(err),
			zap.String("gas_price", gasPrice.String()),
		)
	}

	gas := v.estimateGas(ctx, voterContract.Address, call.Bytes(), len(p.Pools))

	tx := types.NewTransaction(nonce, voterContract.Address, common.Big0, gas, gasPrice, call.Bytes())

	v.log.Info("prepared vote transaction",
		zap.String("token_id", p.TokenID.String()),
		zap.Int("pools", len(p.Pools)),
		zap.Stringer("to", voterContract.Address),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
		zap.String("gas_price", gasPrice.String()),
		zap.Bool("dry_run", v.dryRun),
	)
	return tx, nil
}

// estimateGas asks the backend, falling back to an array-size heuristic. In
// dry-run the sender usually has no lock, so estimation would revert; the
// heuristic is used directly.
func (v *Voter) estimateGas(ctx context.Context, to common.Address, data []byte, pools int) uint64 {
	fallback := uint64(fallbackGasBase + pools*fallbackGasPerPool)
	if v.dryRun {
		return fallback
	}
	estimated, err := v.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: v.from,
		To:   &to,
		Data: data,
	})
	if err != nil {
		v.log.Warn("gas estimation failed, using fallback",
			zap.Error(err),
			zap.Uint64("gas", fallback),
		)
		return fallback
	}
	return estimated * gasBufferNum / gasBufferDen
}

// Submit signs and broadcasts a prepared transaction. It refuses in dry-run
// mode and without a key.
func (v *Voter) Submit(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	if v.dryRun {
		return common.Hash{}, ErrDryRun
	}
	if v.key == nil {
		return common.Hash{}, ErrNoSigner
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(ChainID), v.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("signing transaction: %w", err)
	}
	if err := v.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("broadcasting transaction: %w", err)
	}

	hash := signed.Hash()
	v.log.Info("vote transaction sent",
		zap.Stringer("tx", hash),
		zap.Uint64("nonce", signed.Nonce()),
	)
	return hash, nil
}
