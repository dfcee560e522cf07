// Copyright (C) 2025, Blackhole Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package validator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/blackhole-tools/voterkit/explorer"
	"github.com/blackhole-tools/voterkit/registry"
)

// Drives the validator through the real explorer client against a stub
// Snowtrace API, mirroring the operator workflow end to end.
func TestValidateHistoryThroughExplorerClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "txlist", r.URL.Query().Get("action"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "1",
			"message": "OK",
			"result": []map[string]string{
				{
					"hash":        "0x4d7488026056bf83b3a0a2cd292b2d009708be76c47681630dfdf88f29cf7ac8",
					"to":          voterAddr,
					"input":       knownVoteInput,
					"blockNumber": "34012345",
				},
				{
					"hash":        "0xfeed",
					"to":          escrowAddr,
					"input":       knownMergeInput,
					"blockNumber": "33990000",
				},
			},
		})
	}))
	t.Cleanup(srv.Close)

	client := explorer.NewClient(explorer.Config{
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	}, nil)
	v := New(client, registry.Mainnet(), nil, nil)

	report, err := v.ValidateHistory(context.Background(), common.HexToAddress("0x0000000000000000000000000000000000000001"))
	require.NoError(t, err)
	require.Equal(t, StatusPass, report.Status)
	require.Equal(t, 1, report.Passed)
	require.Len(t, report.Merges, 1)
}
