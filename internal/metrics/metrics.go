// Package metrics 同步任务、评测平台调用和 HTTP 请求的 Prometheus 指标。
// 所有方法对 nil *Recorder 安全，未启用指标时直接传 nil 即可。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 同步结果标签
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeBusy    = "busy"
)

// Recorder 指标集合，使用独立 registry
type Recorder struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	syncTotal       *prometheus.CounterVec
	syncDuration    prometheus.Histogram
	batchTotal      *prometheus.CounterVec
	lastBatchUnix   prometheus.Gauge
	recordsUpserted *prometheus.CounterVec
	recordsSkipped  *prometheus.CounterVec
	judgeRequests   *prometheus.CounterVec
	judgeDuration   *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	jobsInFlight    prometheus.Gauge
	remindersSent   *prometheus.CounterVec
}

// Option 配置项
type Option func(*Recorder)

// WithNamespace 指标命名空间，默认 progress_sync
func WithNamespace(ns string) Option {
	return func(r *Recorder) {
		if ns != "" {
			r.namespace = ns
		}
	}
}

// WithBuckets 耗时直方图分桶（秒）
func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = buckets
		}
	}
}

// WithGoCollectors 注册 Go 运行时与进程指标
func WithGoCollectors() Option {
	return func(r *Recorder) {
		r.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
}

// New 创建指标集合
func New(opts ...Option) *Recorder {
	r := &Recorder{
		namespace: "progress_sync",
		buckets:   prometheus.DefBuckets,
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}

	auto := promauto.With(r.registry)
	r.syncTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: "sync", Name: "students_total",
		Help: "单个学生同步次数（按结果）",
	}, []string{"outcome"})
	r.syncDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: r.namespace, Subsystem: "sync", Name: "student_duration_seconds",
		Help: "单个学生同步耗时", Buckets: r.buckets,
	})
	r.batchTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: "sync", Name: "batch_students_total",
		Help: "批量同步处理的学生数（按结果）",
	}, []string{"outcome"})
	r.lastBatchUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace, Subsystem: "sync", Name: "last_batch_timestamp_seconds",
		Help: "最近一次批量同步完成时间",
	})
	r.recordsUpserted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: "reconcile", Name: "records_upserted_total",
		Help: "对账写入的记录数",
	}, []string{"kind"})
	r.recordsSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: "reconcile", Name: "records_skipped_total",
		Help: "对账跳过的记录数",
	}, []string{"kind", "reason"})
	r.judgeRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: "judge", Name: "requests_total",
		Help: "评测平台请求次数",
	}, []string{"method", "outcome"})
	r.judgeDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace, Subsystem: "judge", Name: "request_duration_seconds",
		Help: "评测平台请求耗时（含限速等待）", Buckets: r.buckets,
	}, []string{"method"})
	r.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: "http", Name: "requests_total",
		Help: "HTTP 请求数",
	}, []string{"route", "method", "status_code"})
	r.httpDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help: "HTTP 请求耗时", Buckets: r.buckets,
	}, []string{"route", "method"})
	r.jobsInFlight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace, Subsystem: "worker", Name: "jobs_in_flight",
		Help: "排队或执行中的后台任务数",
	})
	r.remindersSent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: "reminder", Name: "emails_total",
		Help: "不活跃提醒邮件发送次数",
	}, []string{"outcome"})
	return r
}

// Registry 底层 registry（测试用）
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler /metrics 处理器
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveSync 记录一次单学生同步
func (r *Recorder) ObserveSync(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.syncTotal.WithLabelValues(outcome).Inc()
	r.syncDuration.Observe(d.Seconds())
}

// ObserveBatch 记录一次批量同步
func (r *Recorder) ObserveBatch(succeeded, failed int, finishedAt time.Time) {
	if r == nil {
		return
	}
	r.batchTotal.WithLabelValues(OutcomeSuccess).Add(float64(succeeded))
	r.batchTotal.WithLabelValues(OutcomeError).Add(float64(failed))
	r.lastBatchUnix.Set(float64(finishedAt.Unix()))
}

// AddUpserted kind: contest/problem/activity
func (r *Recorder) AddUpserted(kind string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.recordsUpserted.WithLabelValues(kind).Add(float64(n))
}

// AddSkipped reason: duplicate/error
func (r *Recorder) AddSkipped(kind, reason string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.recordsSkipped.WithLabelValues(kind, reason).Add(float64(n))
}

// ObserveJudge 记录一次评测平台请求
func (r *Recorder) ObserveJudge(method, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.judgeRequests.WithLabelValues(method, outcome).Inc()
	r.judgeDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveHTTP 记录一次 HTTP 请求
func (r *Recorder) ObserveHTTP(route, method string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// JobsInFlight 后台任务数增减
func (r *Recorder) JobsInFlight(delta int) {
	if r == nil {
		return
	}
	r.jobsInFlight.Add(float64(delta))
}

// ObserveReminder 记录一封提醒邮件
func (r *Recorder) ObserveReminder(outcome string) {
	if r == nil {
		return
	}
	r.remindersSent.WithLabelValues(outcome).Inc()
}
