// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証操作の結果ラベル
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービスやミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordRegistration(outcome string)
	RecordLogin(outcome string)
	RecordRefresh(outcome string)
	RecordPasswordChange(outcome string)
	RecordResetRequested()
	RecordResetCompleted(outcome string)
	RecordHashDuration(op string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordResetTokensCleared(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations   *prometheus.CounterVec
	logins          *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	passwordChanges *prometheus.CounterVec
	resetRequested  prometheus.Counter
	resetCompleted  *prometheus.CounterVec
	hashDuration    *prometheus.HistogramVec
	httpStatus      *prometheus.CounterVec
	resetCleared    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sexta_registrations_total",
			Help: "アカウント登録の試行数（結果別）",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sexta_logins_total",
			Help: "ログインの試行数（結果別）",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sexta_token_refreshes_total",
			Help: "アクセストークン再発行の試行数（結果別）",
		}, []string{"outcome"}),
		passwordChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sexta_password_changes_total",
			Help: "パスワード変更の試行数（結果別）",
		}, []string{"outcome"}),
		resetRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sexta_password_reset_requests_total",
			Help: "パスワードリセット要求の合計数",
		}),
		resetCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sexta_password_resets_total",
			Help: "パスワードリセット実行の試行数（結果別）",
		}, []string{"outcome"}),
		hashDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sexta_hash_duration_seconds",
			Help:    "ハッシュ計算・照合の所要時間（秒）",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"op"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sexta_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		resetCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sexta_reset_tokens_cleared_total",
			Help: "クリーンアップで削除された期限切れリセットトークンの合計数",
		}),
	}

	reg.MustRegister(
		c.registrations,
		c.logins,
		c.refreshes,
		c.passwordChanges,
		c.resetRequested,
		c.resetCompleted,
		c.hashDuration,
		c.httpStatus,
		c.resetCleared,
	)

	return c
}

// RecordRegistration は登録の結果を記録する。
func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

// RecordLogin はログインの結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordRefresh はトークン再発行の結果を記録する。
func (c *Collector) RecordRefresh(outcome string) {
	c.refreshes.WithLabelValues(outcome).Inc()
}

// RecordPasswordChange はパスワード変更の結果を記録する。
func (c *Collector) RecordPasswordChange(outcome string) {
	c.passwordChanges.WithLabelValues(outcome).Inc()
}

// RecordResetRequested はリセット要求を記録する。
func (c *Collector) RecordResetRequested() {
	c.resetRequested.Inc()
}

// RecordResetCompleted はリセット実行の結果を記録する。
func (c *Collector) RecordResetCompleted(outcome string) {
	c.resetCompleted.WithLabelValues(outcome).Inc()
}

// RecordHashDuration はハッシュ操作の所要時間を記録する。opは"hash"または"verify"。
func (c *Collector) RecordHashDuration(op string, duration time.Duration) {
	c.hashDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordResetTokensCleared はクリーンアップで削除したリセットトークン数を記録する。
func (c *Collector) RecordResetTokensCleared(count int64) {
	c.resetCleared.Add(float64(count))
}

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

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
