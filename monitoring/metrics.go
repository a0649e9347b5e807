package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "busdelay"

// MetricsCollector 指标收集器
//
// 所有方法对 nil 接收者安全，未启用监控时可直接传 nil。
type MetricsCollector struct {
	registry *prometheus.Registry

	modelState      *prometheus.GaugeVec
	modelLoadTime   prometheus.Gauge
	rowsPredicted   prometheus.Counter
	predictLatency  prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
	missingCells    prometheus.Counter
	coercedCells    prometheus.Counter
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	auditDropped    prometheus.Counter
	streamClients   prometheus.Gauge

	startTime time.Time
}

// NewMetricsCollector 创建指标收集器并注册到独立的 registry
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()
	mc := &MetricsCollector{
		registry:  reg,
		startTime: time.Now(),
		modelState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_state",
			Help:      "1 for the current model readiness phase, 0 otherwise.",
		}, []string{"phase"}),
		modelLoadTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_load_seconds",
			Help:      "Time spent loading the model.",
		}),
		rowsPredicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_predicted_total",
			Help:      "Number of records that received a prediction.",
		}),
		predictLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "predict_duration_seconds",
			Help:      "Normalization plus model inference time per batch.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_cache_lookups_total",
			Help:      "Row cache lookups by result.",
		}, []string{"result"}),
		missingCells: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_cells_total",
			Help:      "Cells filled with the missing-value sentinel because the column was absent.",
		}),
		coercedCells: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coerced_cells_total",
			Help:      "Non-numeric cells replaced with the missing-value sentinel.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_dropped_total",
			Help:      "Audit entries dropped because the queue was full.",
		}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Open WebSocket prediction streams.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		mc.modelState,
		mc.modelLoadTime,
		mc.rowsPredicted,
		mc.predictLatency,
		mc.cacheLookups,
		mc.missingCells,
		mc.coercedCells,
		mc.requests,
		mc.requestDuration,
		mc.auditDropped,
		mc.streamClients,
	)
	return mc
}

// Registry 返回底层 registry，供测试读取
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	return mc.registry
}

// Handler 返回 /metrics 处理器
func (mc *MetricsCollector) Handler() http.Handler {
	if mc == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{Registry: mc.registry})
}

// SetModelState 记录模型就绪阶段
func (mc *MetricsCollector) SetModelState(phase string, phases ...string) {
	if mc == nil {
		return
	}
	for _, p := range phases {
		mc.modelState.WithLabelValues(p).Set(0)
	}
	mc.modelState.WithLabelValues(phase).Set(1)
}

// ObserveModelLoad 记录加载耗时
func (mc *MetricsCollector) ObserveModelLoad(d time.Duration) {
	if mc == nil {
		return
	}
	mc.modelLoadTime.Set(d.Seconds())
}

// PredictionStats 单批预测的统计
type PredictionStats struct {
	Rows         int
	CacheHits    int
	CacheMisses  int
	MissingCells int
	CoercedCells int
	Duration     time.Duration
}

// ObservePrediction 记录一次批量预测
func (mc *MetricsCollector) ObservePrediction(s PredictionStats) {
	if mc == nil {
		return
	}
	mc.rowsPredicted.Add(float64(s.Rows))
	mc.predictLatency.Observe(s.Duration.Seconds())
	mc.cacheLookups.WithLabelValues("hit").Add(float64(s.CacheHits))
	mc.cacheLookups.WithLabelValues("miss").Add(float64(s.CacheMisses))
	mc.missingCells.Add(float64(s.MissingCells))
	mc.coercedCells.Add(float64(s.CoercedCells))
}

// ObserveRequest 记录 HTTP 请求
func (mc *MetricsCollector) ObserveRequest(route string, code int, d time.Duration) {
	if mc == nil {
		return
	}
	mc.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	mc.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (mc *MetricsCollector) IncAuditDropped() {
	if mc == nil {
		return
	}
	mc.auditDropped.Inc()
}

func (mc *MetricsCollector) StreamOpened() {
	if mc == nil {
		return
	}
	mc.streamClients.Inc()
}

func (mc *MetricsCollector) StreamClosed() {
	if mc == nil {
		return
	}
	mc.streamClients.Dec()
}

// GetUptime 获取运行时间
func (mc *MetricsCollector) GetUptime() time.Duration {
	if mc == nil {
		return 0
	}
	return time.Since(mc.startTime)
}
