// Copyright (C) 2025, Blackhole Tools. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry holds the verified contract surface the toolkit talks to.
// Addresses and selectors were discovered offline against historical
// transactions; at load time every selector is recomputed from its canonical
// signature, so a misconfigured or upgraded contract fails construction
// instead of producing a silently wrong encoding.
package registry

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/viper"

	"github.com/blackhole-tools/voterkit/codec"
)

// Logical contract names.
const (
	VoterProxy          = "voter-proxy"
	VoterImplementation = "voter-implementation"
	VotingEscrow        = "voting-escrow"
)

// Viper keys for address overrides.
const (
	VoterProxyAddressKey          = "voter-proxy-address"
	VoterImplementationAddressKey = "voter-implementation-address"
	VotingEscrowAddressKey        = "voting-escrow-address"
)

// Avalanche C-Chain mainnet deployment.
const (
	mainnetVoterProxy          = "0xe30d0c8532721551a51a9fec7fb233759964d9e3"
	mainnetVoterImplementation = "0x6bd81e7eafa4b21d5ad069b452ab4b8bb40c4525"
	mainnetVotingEscrow        = "0xeac562811cc6abdbb2c9ee88719eca4ee79ad763"
)

var (
	errUnknownContract  = errors.New("unknown contract name")
	errDuplicateName    = errors.New("duplicate contract name")
	ErrSelectorMismatch = errors.New("selector does not match signature")
)

// Contract binds a logical name to a deployed address and the one function
// of it this toolkit encodes or decodes.
type Contract struct {
	Name      string
	Address   common.Address
	Signature string
	Selector  [4]byte
}

// Registry is an immutable name -> Contract mapping.
type Registry struct {
	contracts map[string]Contract
}

// New builds a registry, revalidating every selector against
// keccak256(signature)[:4].
func New(contracts []Contract) (*Registry, error) {
	byName := make(map[string]Contract, len(contracts))
	for _, c := range contracts {
		if _, ok := byName[c.Name]; ok {
			return nil, fmt.Errorf("%w: %s", errDuplicateName, c.Name)
		}
		derived := crypto.Keccak256([]byte(c.Signature))[:4]
		var sel [4]byte
		copy(sel[:], derived)
		if sel != c.Selector {
			return nil, fmt.Errorf("%w: %s: signature %q derives %x, registry says %x",
				ErrSelectorMismatch, c.Name, c.Signature, sel, c.Selector)
		}
		byName[c.Name] = c
	}
	return &Registry{contracts: byName}, nil
}

// Mainnet returns the verified Avalanche C-Chain deployment.
func Mainnet() *Registry {
	r, err := New(mainnetContracts(
		common.HexToAddress(mainnetVoterProxy),
		common.HexToAddress(mainnetVoterImplementation),
		common.HexToAddress(mainnetVotingEscrow),
	))
	if err != nil {
		// Constants are validated by tests; reaching this is a build defect.
		panic(err)
	}
	return r
}

// FromViper builds a registry from configuration, falling back to the
// mainnet addresses for unset keys.
func FromViper(v *viper.Viper) (*Registry, error) {
	v.SetDefault(VoterProxyAddressKey, mainnetVoterProxy)
	v.SetDefault(VoterImplementationAddressKey, mainnetVoterImplementation)
	v.SetDefault(VotingEscrowAddressKey, mainnetVotingEscrow)

	proxy, err := codec.ParseAddress(v.GetString(VoterProxyAddressKey))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", VoterProxyAddressKey, err)
	}
	impl, err := codec.ParseAddress(v.GetString(VoterImplementationAddressKey))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", VoterImplementationAddressKey, err)
	}
	escrow, err := codec.ParseAddress(v.GetString(VotingEscrowAddressKey))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", VotingEscrowAddressKey, err)
	}
	return New(mainnetContracts(proxy, impl, escrow))
}

func mainnetContracts(proxy, impl, escrow common.Address) []Contract {
	return []Contract{
		{
			Name:      VoterProxy,
			Address:   proxy,
			Signature: codec.VoteSignature,
			Selector:  codec.VoteSelector,
		},
		{
			Name:      VoterImplementation,
			Address:   impl,
			Signature: codec.VoteSignature,
			Selector:  codec.VoteSelector,
		},
		{
			Name:      VotingEscrow,
			Address:   escrow,
			Signature: codec.MergeSignature,
			Selector:  codec.MergeSelector,
		},
	}
}

// Contract looks up a contract by logical name.
func (r *Registry) Contract(name string) (Contract, error) {
	c, ok := r.contracts[name]
	if !ok {
		return Contract{}, fmt.Errorf("%w: %s", errUnknownContract, name)
	}
	return c, nil
}

// IsVoter reports whether addr is either the voter proxy or its
// implementation. Historical transactions carry both as destinations.
func (r *Registry) IsVoter(addr common.Address) bool {
	return addr == r.contracts[VoterProxy].Address ||
		addr == r.contracts[VoterImplementation].Address
}

// IsVotingEscrow reports whether addr is the VotingEscrow contract.
func (r *Registry) IsVotingEscrow(addr common.Address) bool {
	return addr == r.contracts[VotingEscrow].Address
}
