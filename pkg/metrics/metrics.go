// Package metrics 提供 Prometheus 指标集合与 /metrics 暴露
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wyfcoding/exchange/pkg/logger"
)

// Metrics 撮合引擎指标集合
type Metrics struct {
	registry *prometheus.Registry

	// 已执行的撮合轮次
	TicksTotal prometheus.Counter
	// 行情快照拉取失败次数
	RateFetchFailures prometheus.Counter
	// 单轮撮合耗时
	TickDuration prometheus.Histogram
	// 本轮匹配到的订单数
	OrdersMatched prometheus.Counter
	// 结算成功次数
	SettlementsTotal prometheus.Counter
	// 结算竞态空转次数（订单已被其他路径处理）
	SettlementRaces prometheus.Counter
	// 结算失败次数（需对账的完整性错误）
	SettlementFailures prometheus.Counter
	// 成交事件发布失败次数
	PublishFailures prometheus.Counter
	// 引擎是否在运行
	EngineRunning prometheus.Gauge
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "ticks_total",
			Help:      "Total matching ticks executed",
		}),
		RateFetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "rate_fetch_failures_total",
			Help:      "Total rate snapshot fetch failures",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "tick_duration_seconds",
			Help:      "Matching tick duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		OrdersMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "orders_matched_total",
			Help:      "Total orders matched for settlement",
		}),
		SettlementsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "settlements_total",
			Help:      "Total successful settlements",
		}),
		SettlementRaces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "settlement_races_total",
			Help:      "Total settlements skipped because the order already left waiting",
		}),
		SettlementFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "settlement_failures_total",
			Help:      "Total settlement integrity failures",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "publish_failures_total",
			Help:      "Total fill event publish failures",
		}),
		EngineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "engine_running",
			Help:      "Whether the matching engine is running (1) or stopped (0)",
		}),
	}

	m.registry.MustRegister(
		m.TicksTotal,
		m.RateFetchFailures,
		m.TickDuration,
		m.OrdersMatched,
		m.SettlementsTotal,
		m.SettlementRaces,
		m.SettlementFailures,
		m.PublishFailures,
		m.EngineRunning,
	)

	return m
}

// ExposeHTTP 启动 /metrics 暴露端口
func (m *Metrics) ExposeHTTP(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info(context.Background(), "metrics server started", "port", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error(context.Background(), "metrics server failed", "error", err)
	}
}
