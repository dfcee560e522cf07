// Copyright (C) 2025, Blackhole Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package validator

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	txsValidated     prometheus.Counter
	mismatches       prometheus.Counter
	decodeFailures   prometheus.Counter
	inconclusiveRuns prometheus.Counter
}

func NewMetrics(namespace string, registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		txsValidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_validated",
			Help:      "Historical vote transactions checked against re-encoding",
		}),
		mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encoding_mismatches",
			Help:      "Re-encoded calldata that diverged from on-chain bytes",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures",
			Help:      "Historical transactions whose input could not be decoded",
		}),
		inconclusiveRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inconclusive_runs",
			Help:      "Validation runs that found no matching vote transactions",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.txsValidated,
		m.mismatches,
		m.decodeFailures,
		m.inconclusiveRuns,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NopMetrics returns metrics that are not registered anywhere.
func NopMetrics() *Metrics {
	m, _ := NewMetrics("noop", prometheus.NewRegistry())
	return m
}
