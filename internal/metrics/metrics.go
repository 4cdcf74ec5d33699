// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 自由応答（フォールバック）の結果ラベル。
const (
	FallbackAnswered = "answered"
	FallbackEmpty    = "empty"
	FallbackError    = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 会話サービス、セッションストア、ワーカーから利用する。
type MetricsCollector interface {
	RecordTurn(step string)
	RecordTurnLatency(duration time.Duration)
	RecordTurnFailure(reason string)
	RecordFallbackResponse(outcome string)
	RecordSessionStoreFallback(op string)
	RecordEligibilityMatches(count int)
	RecordLinkCheck(ok bool)
	RecordHTTPStatus(statusCode int)
	RecordApplicationsPurged(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	turns              *prometheus.CounterVec
	turnLatency        prometheus.Histogram
	turnFailures       *prometheus.CounterVec
	fallbackResponses  *prometheus.CounterVec
	storeFallbacks     *prometheus.CounterVec
	eligibilityMatches prometheus.Histogram
	linkChecks         *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
	applicationsPurged prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemebot_conversation_turns_total",
			Help: "会話ターンの合計数（処理後のステップ別）",
		}, []string{"step"}),
		turnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "schemebot_conversation_turn_seconds",
			Help:    "会話ターンの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		turnFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemebot_conversation_turn_failures_total",
			Help: "内部障害でリセットされた会話ターンの数",
		}, []string{"reason"}),
		fallbackResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemebot_fallback_responses_total",
			Help: "自由応答の結果別件数",
		}, []string{"outcome"}),
		storeFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemebot_session_store_fallback_total",
			Help: "セッションストア障害によりメモリへ切り替えた回数",
		}, []string{"op"}),
		eligibilityMatches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "schemebot_eligibility_matches",
			Help:    "適格性判定で一致した制度数",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		}),
		linkChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemebot_link_checks_total",
			Help: "制度リンク確認の結果別件数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemebot_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		applicationsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schemebot_applications_purged_total",
			Help: "保持期間を過ぎて削除された申請の合計数",
		}),
	}

	reg.MustRegister(
		c.turns,
		c.turnLatency,
		c.turnFailures,
		c.fallbackResponses,
		c.storeFallbacks,
		c.eligibilityMatches,
		c.linkChecks,
		c.httpStatus,
		c.applicationsPurged,
	)

	return c
}

// RecordTurn は会話ターンを処理後のステップとともに記録する。
func (c *Collector) RecordTurn(step string) {
	c.turns.WithLabelValues(step).Inc()
}

// RecordTurnLatency は会話ターンの処理時間を記録する。
func (c *Collector) RecordTurnLatency(duration time.Duration) {
	c.turnLatency.Observe(duration.Seconds())
}

// RecordTurnFailure は内部障害によるリセットを記録する。
func (c *Collector) RecordTurnFailure(reason string) {
	c.turnFailures.WithLabelValues(reason).Inc()
}

// RecordFallbackResponse は自由応答の結果を記録する。
func (c *Collector) RecordFallbackResponse(outcome string) {
	c.fallbackResponses.WithLabelValues(outcome).Inc()
}

// RecordSessionStoreFallback はセッションストアのフォールバックを記録する。
func (c *Collector) RecordSessionStoreFallback(op string) {
	c.storeFallbacks.WithLabelValues(op).Inc()
}

// RecordEligibilityMatches は一致した制度数を記録する。
func (c *Collector) RecordEligibilityMatches(count int) {
	c.eligibilityMatches.Observe(float64(count))
}

// RecordLinkCheck はリンク確認の結果を記録する。
func (c *Collector) RecordLinkCheck(ok bool) {
	result := "ok"
	if !ok {
		result = "broken"
	}
	c.linkChecks.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordApplicationsPurged は削除された申請数を記録する。
func (c *Collector) RecordApplicationsPurged(count int) {
	c.applicationsPurged.Add(float64(count))
}

// NopCollector は何も記録しないMetricsCollector実装。
type NopCollector struct{}

func (NopCollector) RecordTurn(string)                 {}
func (NopCollector) RecordTurnLatency(time.Duration)   {}
func (NopCollector) RecordTurnFailure(string)          {}
func (NopCollector) RecordFallbackResponse(string)     {}
func (NopCollector) RecordSessionStoreFallback(string) {}
func (NopCollector) RecordEligibilityMatches(int)      {}
func (NopCollector) RecordLinkCheck(bool)              {}
func (NopCollector) RecordHTTPStatus(int)              {}
func (NopCollector) RecordApplicationsPurged(int)      {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
