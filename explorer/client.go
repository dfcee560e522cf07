// Copyright (C) 2025, Blackhole Tools. All rights reserved.
// See the file LICENSE for licensing terms.

// Package explorer is a read-only client for Snowtrace-compatible
// (etherscan-style) blockchain explorer APIs. It is the only network
// collaborator of the validation pipeline; every request carries an explicit
// timeout and a bounded exponential retry, and exhaustion is reported as
// ErrFetchFailed so callers can distinguish "could not look" from "looked
// and found a problem".
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the public Snowtrace API for Avalanche C-Chain.
	DefaultBaseURL = "https://api.snowtrace.io/api"

	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
	retryBase         = 500 * time.Millisecond
	retryCap          = 5 * time.Second
)

var (
	ErrFetchFailed = errors.New("could not fetch from explorer")
	errAPIFailure  = errors.New("explorer API returned failure")
)

// Transaction mirrors the explorer's transaction row. Numeric fields stay in
// their wire form (decimal strings for txlist, hex for proxy calls); the
// validator only needs Hash, To and Input.
type Transaction struct {
	Hash        string `json:"hash"`
	To          string `json:"to"`
	Input       string `json:"input"`
	BlockNumber string `json:"blockNumber"`
}

// ToAddress parses the destination, which is empty for contract creations.
func (tx *Transaction) ToAddress() (common.Address, bool) {
	if !common.IsHexAddress(tx.To) {
		return common.Address{}, false
	}
	return common.HexToAddress(tx.To), true
}

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries uint64
}

type Client struct {
	baseURL    string
	apiKey     string
	maxRetries uint64
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// AccountTransactions lists transactions sent from or to addr, newest first.
// An address with no history is an empty slice, not an error.
func (c *Client) AccountTransactions(ctx context.Context, addr common.Address) ([]Transaction, error) {
	params := url.Values{
		"module":     {"account"},
		"action":     {"txlist"},
		"address":    {strings.ToLower(addr.Hex())},
		"startblock": {"0"},
		"endblock":   {"99999999"},
		"sort":       {"desc"},
	}

	var txs []Transaction
	err := c.getWithRetry(ctx, params, func(body []byte) error {
		var envelope struct {
			Status  string          `json:"status"`
			Message string          `json:"message"`
			Result  json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return err
		}
		// Etherscan-style APIs report "no transactions found" as a failure
		// status with an empty result array.
		if envelope.Status != "1" && !strings.Contains(strings.ToLower(envelope.Message), "no transactions") {
			return fmt.Errorf("%w: %s", errAPIFailure, envelope.Message)
		}
		txs = nil
		if len(envelope.Result) > 0 && envelope.Result[0] == '[' {
			return json.Unmarshal(envelope.Result, &txs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// TransactionByHash fetches a single transaction through the explorer's
// eth_getTransactionByHash proxy.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*Transaction, error) {
	params := url.Values{
		"module": {"proxy"},
		"action": {"eth_getTransactionByHash"},
		"txhash": {hash.Hex()},
	}

	var tx *Transaction
	err := c.getWithRetry(ctx, params, func(body []byte) error {
		var envelope struct {
			Result *Transaction `json:"result"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return err
		}
		if envelope.Result == nil || envelope.Result.Hash == "" {
			return fmt.Errorf("%w: transaction %s not found", errAPIFailure, hash)
		}
		tx = envelope.Result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// getWithRetry performs a GET with capped exponential backoff and jitter.
// Every failure mode is retryable here: the API is read-only and idempotent.
func (c *Client) getWithRetry(ctx context.Context, params url.Values, parse func([]byte) error) error {
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}
	reqURL := c.baseURL + "?" + params.Encode()

	backoff := retry.NewExponential(retryBase)
	backoff = retry.WithCappedDuration(retryCap, backoff)
	backoff = retry.WithJitterPercent(10, backoff)
	backoff = retry.WithMaxRetries(c.maxRetries, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := c.getOnce(ctx, reqURL, parse); err != nil {
			c.log.Warn("explorer request failed",
				zap.Int("attempt", attempt),
				zap.String("action", params.Get("action")),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFetchFailed, params.Get("action"), err)
	}
	return nil
}

func (c *Client) getOnce(ctx context.Context, reqURL string, parse func([]byte) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return err
	}
	return parse(body)
}
