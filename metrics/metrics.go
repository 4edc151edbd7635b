// Copyright 2015 The go-ethereum Authors
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

// Package metrics wires the pool's counters and gauges to a Prometheus
// registry through the go-kit metric interfaces.
//
// 包 metrics 通过 go-kit 的指标接口把交易池的计数器和仪表挂到 Prometheus 注册表上。
// 各组件只依赖 go-kit 接口，未开启指标时使用 discard 实现，不产生任何开销。
package metrics

import (
	"strings"
	"sync"

	kitmetrics "github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	kitprom "github.com/go-kit/kit/metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Namespace is prepended to every metric registered through this package.
const Namespace = "txpool"

// Config contains the configuration for the metric collection.
// Config 指标采集的配置。
type Config struct {
	Enabled bool   `toml:",omitempty"`
	HTTP    string `toml:",omitempty"`
	Port    int    `toml:",omitempty"`
}

// DefaultConfig is the default config for metrics used in the pool.
var DefaultConfig = Config{
	Enabled: false,
	HTTP:    "127.0.0.1",
	Port:    6060,
}

// Registry hands out go-kit metrics backed by a private Prometheus registry.
// Metrics are keyed by their full name, so asking twice for the same metric
// returns the same instance instead of failing registration.
//
// Registry 以完整名称为键缓存指标，重复获取同名指标返回同一个实例。
type Registry struct {
	reg *prometheus.Registry

	lock       sync.Mutex
	gauges     map[string]kitmetrics.Gauge
	counters   map[string]kitmetrics.Counter
	histograms map[string]kitmetrics.Histogram
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		reg:        prometheus.NewRegistry(),
		gauges:     make(map[string]kitmetrics.Gauge),
		counters:   make(map[string]kitmetrics.Counter),
		histograms: make(map[string]kitmetrics.Histogram),
	}
}

// DefaultRegistry is the registry used by the package level helpers. It also
// exports the Go runtime and process collectors.
var DefaultRegistry = func() *Registry {
	r := NewRegistry()
	r.reg.MustRegister(collectors.NewGoCollector())
	r.reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}()

// Gatherer exposes the underlying Prometheus registry for HTTP export.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// GetOrRegisterGauge returns an existing gauge or registers a new one. The
// name may use '/' separators ("database/disk/size"), which are folded into
// Prometheus compatible underscores.
func (r *Registry) GetOrRegisterGauge(name, help string, labels ...string) kitmetrics.Gauge {
	key := metricName(name)
	r.lock.Lock()
	defer r.lock.Unlock()

	if g, ok := r.gauges[key]; ok {
		return g
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: Namespace, Name: key, Help: help}, labels)
	r.reg.MustRegister(vec)
	g := kitprom.NewGauge(vec)
	r.gauges[key] = g
	return g
}

// GetOrRegisterCounter returns an existing counter or registers a new one.
func (r *Registry) GetOrRegisterCounter(name, help string, labels ...string) kitmetrics.Counter {
	key := metricName(name)
	r.lock.Lock()
	defer r.lock.Unlock()

	if c, ok := r.counters[key]; ok {
		return c
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: Namespace, Name: key, Help: help}, labels)
	r.reg.MustRegister(vec)
	c := kitprom.NewCounter(vec)
	r.counters[key] = c
	return c
}

// GetOrRegisterHistogram returns an existing histogram or registers a new one
// with the given buckets.
func (r *Registry) GetOrRegisterHistogram(name, help string, buckets []float64, labels ...string) kitmetrics.Histogram {
	key := metricName(name)
	r.lock.Lock()
	defer r.lock.Unlock()

	if h, ok := r.histograms[key]; ok {
		return h
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: Namespace, Name: key, Help: help, Buckets: buckets}, labels)
	r.reg.MustRegister(vec)
	h := kitprom.NewHistogram(vec)
	r.histograms[key] = h
	return h
}

// GetOrRegisterGauge is a shorthand for DefaultRegistry.GetOrRegisterGauge.
func GetOrRegisterGauge(name, help string, labels ...string) kitmetrics.Gauge {
	return DefaultRegistry.GetOrRegisterGauge(name, help, labels...)
}

// GetOrRegisterCounter is a shorthand for DefaultRegistry.GetOrRegisterCounter.
func GetOrRegisterCounter(name, help string, labels ...string) kitmetrics.Counter {
	return DefaultRegistry.GetOrRegisterCounter(name, help, labels...)
}

// GetOrRegisterHistogram is a shorthand for DefaultRegistry.GetOrRegisterHistogram.
func GetOrRegisterHistogram(name, help string, buckets []float64, labels ...string) kitmetrics.Histogram {
	return DefaultRegistry.GetOrRegisterHistogram(name, help, buckets, labels...)
}

// NopGauge returns a gauge that drops every update.
func NopGauge() kitmetrics.Gauge { return discard.NewGauge() }

// NopCounter returns a counter that drops every update.
func NopCounter() kitmetrics.Counter { return discard.NewCounter() }

// NopHistogram returns a histogram that drops every observation.
func NopHistogram() kitmetrics.Histogram { return discard.NewHistogram() }

// metricName turns a slash separated metric path into a Prometheus name.
func metricName(name string) string {
	return strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(name)
}
