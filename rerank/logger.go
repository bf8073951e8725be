package rerank

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"sync"
)

// FeatureRecord 是一条被打分文档的特征全集取值
type FeatureRecord struct {
	Model  string
	Store  string
	DocID  string
	Doc    int
	Score  float64
	Names  []string
	Values []float64
}

// FeatureLogger 接收每条重排文档的特征向量，只做观察，不影响打分。实现需并发安全。
type FeatureLogger interface {
	LogFeatures(ctx context.Context, rec FeatureRecord)
}

// FormatFeatures 把特征格式化为 "name=value,name=value"
func FormatFeatures(names []string, values []float64, kvSep, featureSep byte) string {
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(featureSep)
		}
		b.WriteString(name)
		b.WriteByte(kvSep)
		b.WriteString(strconv.FormatFloat(values[i], 'g', -1, 64))
	}
	return b.String()
}

// CSVLogger 把特征记录写成 CSV 行：model,store,doc_id,score,"f1=v1,f2=v2"
type CSVLogger struct {
	mu sync.Mutex
	w  *csv.Writer
}

func NewCSVLogger(w io.Writer) *CSVLogger {
	return &CSVLogger{w: csv.NewWriter(w)}
}

func (l *CSVLogger) LogFeatures(_ context.Context, rec FeatureRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.w.Write([]string{
		rec.Model,
		rec.Store,
		rec.DocID,
		strconv.FormatFloat(rec.Score, 'g', -1, 64),
		FormatFeatures(rec.Names, rec.Values, '=', ','),
	})
	l.w.Flush()
}

// Err 返回写入过程中的错误
func (l *CSVLogger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Error()
}

// MemoryLogger 在内存中收集特征记录
type MemoryLogger struct {
	mu      sync.Mutex
	records []FeatureRecord
}

func (l *MemoryLogger) LogFeatures(_ context.Context, rec FeatureRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
}

// Records 返回已收集记录的副本
func (l *MemoryLogger) Records() []FeatureRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]FeatureRecord(nil), l.records...)
}
