// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OTP検証結果のラベル値。
const (
	VerifyResultOK       = "ok"
	VerifyResultMissing  = "missing"
	VerifyResultMismatch = "mismatch"
	VerifyResultLocked   = "locked"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、メール配信、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordOTPRequested()
	RecordOTPVerify(result string)
	RecordTokenIssued(remember bool)
	RecordMailSent()
	RecordMailFailed()
	RecordHTTPStatus(statusCode int)
	RecordRequestDuration(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	otpRequested    prometheus.Counter
	otpVerify       *prometheus.CounterVec
	tokensIssued    *prometheus.CounterVec
	mailSent        prometheus.Counter
	mailFailed      prometheus.Counter
	httpStatus      *prometheus.CounterVec
	requestDuration prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		otpRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todoman_otp_requested_total",
			Help: "発行したOTPの合計数",
		}),
		otpVerify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_otp_verify_total",
			Help: "結果別のOTP検証数",
		}, []string{"result"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_tokens_issued_total",
			Help: "発行したアクセストークンの合計数",
		}, []string{"remember"}),
		mailSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todoman_mail_sent_total",
			Help: "送信に成功したメールの合計数",
		}),
		mailFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todoman_mail_failed_total",
			Help: "送信を断念したメールの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_http_requests_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "todoman_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.otpRequested,
		c.otpVerify,
		c.tokensIssued,
		c.mailSent,
		c.mailFailed,
		c.httpStatus,
		c.requestDuration,
	)

	return c
}

// RecordOTPRequested はOTP発行を記録する。
func (c *Collector) RecordOTPRequested() {
	c.otpRequested.Inc()
}

// RecordOTPVerify はOTP検証結果を記録する。
func (c *Collector) RecordOTPVerify(result string) {
	c.otpVerify.WithLabelValues(result).Inc()
}

// RecordTokenIssued はトークン発行を記録する。
func (c *Collector) RecordTokenIssued(remember bool) {
	c.tokensIssued.WithLabelValues(strconv.FormatBool(remember)).Inc()
}

// RecordMailSent はメール送信成功を記録する。
func (c *Collector) RecordMailSent() {
	c.mailSent.Inc()
}

// RecordMailFailed はメール送信失敗を記録する。
func (c *Collector) RecordMailFailed() {
	c.mailFailed.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestDuration はHTTPリクエストの処理時間を記録する。
func (c *Collector) RecordRequestDuration(duration time.Duration) {
	c.requestDuration.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordOTPRequested()                 {}
func (Nop) RecordOTPVerify(string)              {}
func (Nop) RecordTokenIssued(bool)              {}
func (Nop) RecordMailSent()                     {}
func (Nop) RecordMailFailed()                   {}
func (Nop) RecordHTTPStatus(int)                {}
func (Nop) RecordRequestDuration(time.Duration) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
