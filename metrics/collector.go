// Package metrics 把重排、特征抽取与并发调度的观测数据导出为 Prometheus 指标。
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/feature"
	"github.com/rushteam/ltrkit/governor"
	"github.com/rushteam/ltrkit/rerank"
)

// Collector 指标收集器，同时实现 feature.FeatureMonitor、governor.Observer 与 rerank.Observer。
type Collector struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	// 重排
	rerankTotal    *prometheus.CounterVec
	rerankDuration *prometheus.HistogramVec
	rerankDocs     *prometheus.CounterVec

	// 特征
	featureValues  *prometheus.CounterVec
	featureMissing *prometheus.CounterVec
	featureErrors  *prometheus.CounterVec

	// 调度
	taskTotal       *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	acquireTimeouts prometheus.Counter
	skippedTasks    prometheus.Counter
}

var (
	_ feature.FeatureMonitor = (*Collector)(nil)
	_ governor.Observer      = (*Collector)(nil)
	_ rerank.Observer        = (*Collector)(nil)
)

// NewCollector 在 reg 上注册全部指标，reg 为 nil 时新建一个独立的 Registry。
func NewCollector(namespace string, reg *prometheus.Registry, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := promauto.With(reg)
	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.rerankTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_requests_total",
			Help:      "Total number of rerank executions",
		},
		[]string{"model", "status"},
	)
	c.rerankDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rerank_duration_seconds",
			Help:      "Rerank execution duration in seconds",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"model"},
	)
	c.rerankDocs = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_docs_total",
			Help:      "Total number of first-pass hits passed to the reranker",
		},
		[]string{"model"},
	)

	c.featureValues = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_values_total",
			Help:      "Total number of feature values computed",
		},
		[]string{"feature"},
	)
	c.featureMissing = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_missing_total",
			Help:      "Total number of feature values replaced by the default because the feature did not match",
		},
		[]string{"feature"},
	)
	c.featureErrors = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_errors_total",
			Help:      "Total number of feature values replaced by the default because extraction failed",
		},
		[]string{"feature"},
	)

	c.taskTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "governor",
			Name:      "tasks_total",
			Help:      "Total number of segment tasks by execution mode",
		},
		[]string{"mode", "status"},
	)
	c.taskDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "governor",
			Name:      "task_duration_seconds",
			Help:      "Segment task duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
	c.acquireTimeouts = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "governor",
		Name:      "acquire_timeouts_total",
		Help:      "Total number of tasks run on the caller because no slot was free in time",
	})
	c.skippedTasks = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "governor",
		Name:      "skipped_tasks_total",
		Help:      "Total number of tasks never started because the request was cancelled",
	})

	c.logger.Debug("collector initialized", zap.String("namespace", namespace))
	return c
}

// Registry 返回指标所在的 Registry
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler 返回 /metrics 的 HTTP handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case core.IsBadRequest(err):
		return "bad_request"
	default:
		return "error"
	}
}

func (c *Collector) ObserveRescore(model string, docs int, d time.Duration, err error) {
	c.rerankTotal.WithLabelValues(model, status(err)).Inc()
	c.rerankDuration.WithLabelValues(model).Observe(d.Seconds())
	c.rerankDocs.WithLabelValues(model).Add(float64(docs))
}

func (c *Collector) RecordFeatureUsage(_ context.Context, featureName string, _ float64) {
	c.featureValues.WithLabelValues(featureName).Inc()
}

func (c *Collector) RecordFeatureMissing(_ context.Context, featureName string, _ string, _ string) {
	c.featureMissing.WithLabelValues(featureName).Inc()
}

func (c *Collector) RecordFeatureError(_ context.Context, featureName string, err error) {
	c.featureErrors.WithLabelValues(featureName).Inc()
	c.logger.Debug("feature error", zap.String("feature", featureName), zap.Error(err))
}

func (c *Collector) ObserveTask(mode string, d time.Duration, err error) {
	c.taskTotal.WithLabelValues(mode, status(err)).Inc()
	c.taskDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (c *Collector) ObserveAcquireTimeout() { c.acquireTimeouts.Inc() }

func (c *Collector) ObserveSkipped(n int) { c.skippedTasks.Add(float64(n)) }
