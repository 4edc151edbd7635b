// Package exp serves the pool metrics over HTTP, both in the Prometheus text
// format and as a flat JSON object for quick inspection.
// 包 exp 通过 HTTP 暴露交易池指标：Prometheus 文本格式以及便于查看的扁平 JSON。
package exp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/sunyihoo/go-txpool/log"
	"github.com/sunyihoo/go-txpool/metrics"
)

// Handler returns the Prometheus exposition handler for the registry.
func Handler(r *metrics.Registry) http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{})
}

// ExpHandler returns a handler rendering every sample of the registry as a
// single JSON object, keyed by metric name and label values.
// ExpHandler 将注册表中的每个样本渲染为一个 JSON 对象，键为指标名加标签值。
func ExpHandler(r *metrics.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		families, err := r.Gatherer().Gather()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.Encode(flatten(families))
	})
}

// flatten turns the gathered metric families into name → value pairs.
func flatten(families []*dto.MetricFamily) map[string]float64 {
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := sampleName(mf.GetName(), m.GetLabel())
			switch {
			case m.GetGauge() != nil:
				out[name] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				out[name] = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				out[name+".count"] = float64(m.GetHistogram().GetSampleCount())
				out[name+".sum"] = m.GetHistogram().GetSampleSum()
			case m.GetUntyped() != nil:
				out[name] = m.GetUntyped().GetValue()
			}
		}
	}
	return out
}

func sampleName(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, l.GetName()+"="+l.GetValue())
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}

// Setup starts a dedicated metrics server at the given address and blocks
// until the context is cancelled or the listener fails.
// Setup 在给定地址启动独立的指标服务器，直到上下文取消或监听失败才返回。
func Setup(ctx context.Context, address string, r *metrics.Registry) error {
	m := http.NewServeMux()
	m.Handle("/debug/metrics", ExpHandler(r))
	m.Handle("/debug/metrics/prometheus", Handler(r))

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: m, ReadHeaderTimeout: 5 * time.Second}
	log.Info("Starting metrics server", "addr", "http://"+listener.Addr().String()+"/debug/metrics")

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(listener) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		log.Error("Failure in running metrics server", "err", err)
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
