// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package txpool

import (
	kitmetrics "github.com/go-kit/kit/metrics"
	"github.com/sunyihoo/go-txpool/metrics"
)

// Metrics contains the pool metrics.
type Metrics struct {
	// Number of pooled transactions.
	Size kitmetrics.Gauge
	// Serialized size of admitted transactions, in bytes.
	TxSizeBytes kitmetrics.Histogram
	// Number of admitted transactions.
	Added kitmetrics.Counter
	// Number of rejected transactions, labelled by error code.
	Rejected kitmetrics.Counter
	// Number of transactions removed (reverted or evicted).
	Removed kitmetrics.Counter
	// Number of transactions removed because they expired.
	Expired kitmetrics.Counter
	// Number of transactions dropped because they were forged.
	Forged kitmetrics.Counter
}

// PrometheusMetrics returns Metrics registered in the given registry.
func PrometheusMetrics(r *metrics.Registry) *Metrics {
	return &Metrics{
		Size:        r.GetOrRegisterGauge("pool/size", "Number of pooled transactions."),
		TxSizeBytes: r.GetOrRegisterHistogram("pool/tx_size_bytes", "Serialized transaction sizes in bytes.", []float64{64, 128, 256, 512, 1024, 4096, 16384, 65536}),
		Added:       r.GetOrRegisterCounter("pool/added", "Number of admitted transactions."),
		Rejected:    r.GetOrRegisterCounter("pool/rejected", "Number of rejected transactions.", "code"),
		Removed:     r.GetOrRegisterCounter("pool/removed", "Number of removed transactions."),
		Expired:     r.GetOrRegisterCounter("pool/expired", "Number of expired transactions."),
		Forged:      r.GetOrRegisterCounter("pool/forged", "Number of transactions dropped after being forged."),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Size:        metrics.NopGauge(),
		TxSizeBytes: metrics.NopHistogram(),
		Added:       metrics.NopCounter(),
		Rejected:    metrics.NopCounter(),
		Removed:     metrics.NopCounter(),
		Expired:     metrics.NopCounter(),
		Forged:      metrics.NopCounter(),
	}
}
