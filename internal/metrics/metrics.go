// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordCompletionSuccess()
	RecordCompletionFallback()
	RecordCompletionLatency(duration time.Duration)
	RecordAuthResolution(channel string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	completionSuccess  prometheus.Counter
	completionFallback prometheus.Counter
	completionLatency  prometheus.Histogram
	authResolution     *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		completionSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatbridge_completion_success_total",
			Help: "AI補完成功の合計数",
		}),
		completionFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatbridge_completion_fallback_total",
			Help: "フォールバック文言で応答したAI補完の合計数",
		}),
		completionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatbridge_completion_latency_seconds",
			Help:    "AI補完のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		authResolution: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatbridge_auth_resolution_total",
			Help: "認証チャネル別の解決成功数",
		}, []string{"channel"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatbridge_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.completionSuccess,
		c.completionFallback,
		c.completionLatency,
		c.authResolution,
		c.httpStatus,
	)

	return c
}

// RecordCompletionSuccess はAI補完の成功を記録する。
func (c *Collector) RecordCompletionSuccess() {
	c.completionSuccess.Inc()
}

// RecordCompletionFallback はフォールバック文言での応答を記録する。
func (c *Collector) RecordCompletionFallback() {
	c.completionFallback.Inc()
}

// RecordCompletionLatency はAI補完のレイテンシを記録する。
func (c *Collector) RecordCompletionLatency(duration time.Duration) {
	c.completionLatency.Observe(duration.Seconds())
}

// RecordAuthResolution は認証チャネル（session / token）別の解決成功を記録する。
func (c *Collector) RecordAuthResolution(channel string) {
	c.authResolution.WithLabelValues(channel).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
