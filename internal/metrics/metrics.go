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
// ミドルウェア、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordLogCreated(activity string)
	RecordCheer()
	RecordHTTPStatus(statusCode int)
	RecordDashboardLatency(duration time.Duration)
	RecordCacheHit()
	RecordCacheMiss()
	RecordImportSuccess(service string, imported int)
	RecordImportFailure(service string, reason string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logsCreated      *prometheus.CounterVec
	cheers           prometheus.Counter
	httpStatus       *prometheus.CounterVec
	dashboardLatency prometheus.Histogram
	cacheRequests    *prometheus.CounterVec
	importRuns       *prometheus.CounterVec
	importedLogs     *prometheus.CounterVec
	cleanupDeleted   *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "habits_logs_created_total",
			Help: "作成された活動記録の合計数",
		}, []string{"activity"}),
		cheers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "habits_cheers_total",
			Help: "応援の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "habits_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		dashboardLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "habits_dashboard_compute_seconds",
			Help:    "ダッシュボード集計のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "habits_dashboard_cache_requests_total",
			Help: "ダッシュボードキャッシュの参照数",
		}, []string{"result"}),
		importRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "habits_import_runs_total",
			Help: "外部サービスインポートの実行数",
		}, []string{"service", "result"}),
		importedLogs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "habits_imported_logs_total",
			Help: "外部サービスからインポートされた記録の合計数",
		}, []string{"service"}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "habits_cleanup_deleted_total",
			Help: "クリーンアップジョブが削除した行数",
		}, []string{"target"}),
	}

	reg.MustRegister(
		c.logsCreated,
		c.cheers,
		c.httpStatus,
		c.dashboardLatency,
		c.cacheRequests,
		c.importRuns,
		c.importedLogs,
		c.cleanupDeleted,
	)

	return c
}

// RecordLogCreated は記録作成を記録する。
func (c *Collector) RecordLogCreated(activity string) {
	c.logsCreated.WithLabelValues(activity).Inc()
}

// RecordCheer は応援を記録する。
func (c *Collector) RecordCheer() {
	c.cheers.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordDashboardLatency はダッシュボード集計のレイテンシを記録する。
func (c *Collector) RecordDashboardLatency(duration time.Duration) {
	c.dashboardLatency.Observe(duration.Seconds())
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit() {
	c.cacheRequests.WithLabelValues("hit").Inc()
}

// RecordCacheMiss はキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss() {
	c.cacheRequests.WithLabelValues("miss").Inc()
}

// RecordImportSuccess はインポート成功と取り込んだ件数を記録する。
func (c *Collector) RecordImportSuccess(service string, imported int) {
	c.importRuns.WithLabelValues(service, "success").Inc()
	c.importedLogs.WithLabelValues(service).Add(float64(imported))
}

// RecordImportFailure はインポート失敗を記録する。
// reasonはラベルに含めず、ログ側で扱う。
func (c *Collector) RecordImportFailure(service string, reason string) {
	c.importRuns.WithLabelValues(service, "failure").Inc()
}

// RecordCleanup はクリーンアップジョブの削除件数を記録する。
func (c *Collector) RecordCleanup(target string, deleted int64) {
	c.cleanupDeleted.WithLabelValues(target).Add(float64(deleted))
}

// Nop は何も記録しないMetricsCollector実装。CLIやテストで使う。
type Nop struct{}

func (Nop) RecordLogCreated(string) {}
func (Nop) RecordCheer() {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordDashboardLatency(time.Duration) {}
func (Nop) RecordCacheHit() {}
func (Nop) RecordCacheMiss() {}
func (Nop) RecordImportSuccess(string, int) {}
func (Nop) RecordImportFailure(string, string) {}
func (Nop) RecordCleanup(string, int64) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
