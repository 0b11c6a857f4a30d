package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder 持有下单指标，使用独立 Registry，避免与全局注册表冲突。
type Recorder struct {
	registry   *prometheus.Registry
	legs       *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	strategies *prometheus.CounterVec
}

// New 创建并注册全部指标。
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		legs: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "orderbot_legs_total", Help: "Order legs dispatched"},
			[]string{"strategy", "side", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orderbot_leg_latency_seconds",
				Help:    "Exchange round-trip latency per order leg",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"strategy"},
		),
		strategies: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "orderbot_strategies_total", Help: "Strategies executed by result"},
			[]string{"strategy", "result"},
		),
	}
	r.registry.MustRegister(
		r.legs,
		r.latency,
		r.strategies,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveLeg 记录单腿结果与耗时。
func (r *Recorder) ObserveLeg(strategy, side, status string, latency time.Duration) {
	r.legs.WithLabelValues(strategy, side, status).Inc()
	r.latency.WithLabelValues(strategy).Observe(latency.Seconds())
}

// ObserveStrategy 记录策略级结果。
func (r *Recorder) ObserveStrategy(strategy, result string) {
	r.strategies.WithLabelValues(strategy, result).Inc()
}

// Gatherer 暴露注册表，供测试与导出使用。
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler 返回 /metrics 处理器。
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
