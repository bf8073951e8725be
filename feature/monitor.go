package feature

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rushteam/ltrkit/core"
)

// FeatureMonitor 记录特征抽取的取值、缺失与错误，实现需并发安全。
//
// 实现：
//   - MemoryFeatureMonitor：内存统计
//   - metrics.Collector：Prometheus 指标
type FeatureMonitor interface {
	// RecordFeatureUsage 记录成功取到的特征值
	RecordFeatureUsage(ctx context.Context, featureName string, value float64)

	// RecordFeatureMissing 记录特征缺失（使用了默认值）
	RecordFeatureMissing(ctx context.Context, featureName string, entityType string, entityID string)

	// RecordFeatureError 记录特征抽取错误（使用了默认值）
	RecordFeatureError(ctx context.Context, featureName string, err error)
}

// FeatureStats 特征统计信息
type FeatureStats struct {
	FeatureName    string    `json:"feature"`
	UsageCount     int64     `json:"usage_count"`
	MissingCount   int64     `json:"missing_count"`
	ErrorCount     int64     `json:"error_count"`
	Mean           float64   `json:"mean"`
	Std            float64   `json:"std"`
	Min            float64   `json:"min"`
	Max            float64   `json:"max"`
	P50            float64   `json:"p50"`
	P95            float64   `json:"p95"`
	P99            float64   `json:"p99"`
	LastUpdateTime time.Time `json:"last_update_time"`
}

// ErrFeatureStatsNotFound 表示特征没有任何统计记录
var ErrFeatureStatsNotFound = core.NewDomainError(core.ModuleFeature, core.ErrorCodeNotFound, "feature: no stats recorded")

// MemoryFeatureMonitor 是内存特征监控实现，统计使用量、缺失率、错误率及取值分布。
// 分布统计由后台协程按 updateInterval 刷新，也可调用 Flush 立即刷新。
type MemoryFeatureMonitor struct {
	mu            sync.RWMutex
	featureStats  map[string]*FeatureStats
	featureValues map[string][]float64
	maxSamples    int

	updateInterval time.Duration
	stopUpdate     chan struct{}
	stopOnce       sync.Once
}

// NewMemoryFeatureMonitor 创建内存特征监控，每个特征最多保留 maxSamples 个样本
func NewMemoryFeatureMonitor(maxSamples int) *MemoryFeatureMonitor {
	if maxSamples <= 0 {
		maxSamples = 1000
	}
	m := &MemoryFeatureMonitor{
		featureStats:   make(map[string]*FeatureStats),
		featureValues:  make(map[string][]float64),
		maxSamples:     maxSamples,
		updateInterval: 10 * time.Second,
		stopUpdate:     make(chan struct{}),
	}
	go m.updateStats()
	return m
}

func (m *MemoryFeatureMonitor) updateStats() {
	ticker := time.NewTicker(m.updateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Flush()
		case <-m.stopUpdate:
			return
		}
	}
}

// Flush 立即重新计算分布统计
func (m *MemoryFeatureMonitor) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for name, values := range m.featureValues {
		if len(values) == 0 {
			continue
		}
		stats := m.statsLocked(name)
		computed := ComputeStatistics(values)
		stats.Mean = computed.Mean
		stats.Std = computed.Std
		stats.Min = computed.Min
		stats.Max = computed.Max
		stats.P50 = computed.Median
		stats.P95 = computed.P95
		stats.P99 = computed.P99
		stats.LastUpdateTime = now
	}
}

func (m *MemoryFeatureMonitor) statsLocked(name string) *FeatureStats {
	stats := m.featureStats[name]
	if stats == nil {
		stats = &FeatureStats{FeatureName: name}
		m.featureStats[name] = stats
	}
	return stats
}

func (m *MemoryFeatureMonitor) RecordFeatureUsage(_ context.Context, featureName string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statsLocked(featureName).UsageCount++
	values := m.featureValues[featureName]
	if len(values) >= m.maxSamples {
		values = values[1:]
	}
	m.featureValues[featureName] = append(values, value)
}

func (m *MemoryFeatureMonitor) RecordFeatureMissing(_ context.Context, featureName string, _ string, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statsLocked(featureName).MissingCount++
}

func (m *MemoryFeatureMonitor) RecordFeatureError(_ context.Context, featureName string, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statsLocked(featureName).ErrorCount++
}

// GetFeatureStats 返回统计副本
func (m *MemoryFeatureMonitor) GetFeatureStats(_ context.Context, featureName string) (*FeatureStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats, ok := m.featureStats[featureName]
	if !ok {
		return nil, ErrFeatureStatsNotFound
	}
	cp := *stats
	return &cp, nil
}

// AllFeatureStats 返回全部特征的统计副本，按特征名排序
func (m *MemoryFeatureMonitor) AllFeatureStats(_ context.Context) []*FeatureStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*FeatureStats, 0, len(m.featureStats))
	for _, stats := range m.featureStats {
		cp := *stats
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FeatureName < out[j].FeatureName })
	return out
}

// Close 停止后台统计协程，可重复调用
func (m *MemoryFeatureMonitor) Close() {
	m.stopOnce.Do(func() { close(m.stopUpdate) })
}

// multiMonitor 把记录广播给多个监控
type multiMonitor []FeatureMonitor

// Monitors 组合多个监控，nil 会被忽略
func Monitors(ms ...FeatureMonitor) FeatureMonitor {
	out := make(multiMonitor, 0, len(ms))
	for _, m := range ms {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

func (mm multiMonitor) RecordFeatureUsage(ctx context.Context, name string, value float64) {
	for _, m := range mm {
		m.RecordFeatureUsage(ctx, name, value)
	}
}

func (mm multiMonitor) RecordFeatureMissing(ctx context.Context, name, entityType, entityID string) {
	for _, m := range mm {
		m.RecordFeatureMissing(ctx, name, entityType, entityID)
	}
}

func (mm multiMonitor) RecordFeatureError(ctx context.Context, name string, err error) {
	for _, m := range mm {
		m.RecordFeatureError(ctx, name, err)
	}
}

type nopMonitor struct{}

func (nopMonitor) RecordFeatureUsage(context.Context, string, float64)          {}
func (nopMonitor) RecordFeatureMissing(context.Context, string, string, string) {}
func (nopMonitor) RecordFeatureError(context.Context, string, error)            {}

// FeatureStatistics 是一组样本的分布统计
type FeatureStatistics struct {
	Mean   float64
	Std    float64
	Min    float64
	Max    float64
	Median float64
	P25    float64
	P75    float64
	P95    float64
	P99    float64
}

// ComputeStatistics 计算样本的分布统计
func ComputeStatistics(values []float64) *FeatureStatistics {
	if len(values) == 0 {
		return &FeatureStatistics{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	stats := &FeatureStatistics{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	stats.Mean = sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - stats.Mean) * (v - stats.Mean)
	}
	stats.Std = math.Sqrt(variance / float64(len(values)))

	stats.Median = computePercentile(sorted, 0.5)
	stats.P25 = computePercentile(sorted, 0.25)
	stats.P75 = computePercentile(sorted, 0.75)
	stats.P95 = computePercentile(sorted, 0.95)
	stats.P99 = computePercentile(sorted, 0.99)
	return stats
}

// computePercentile 线性插值计算分位数，sorted 须升序
func computePercentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := p * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
